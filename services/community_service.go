package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"veriHabitAPI/internal/types/feed"
)

const (
	feedDefaultLimit = 20
	feedMaxLimit     = 50
)

type CommunityService struct {
	db *pgxpool.Pool
}

func NewCommunityService(db *pgxpool.Pool) *CommunityService {
	return &CommunityService{db: db}
}

// encodeCursor packs the keyset position (created_at, id) of the last row
// returned. Keyset pagination keeps pages stable under concurrent inserts,
// unlike offsets.
func encodeCursor(createdAt time.Time, id uuid.UUID) string {
	raw := createdAt.UTC().Format(time.RFC3339Nano) + "|" + id.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}

	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}

	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: malformed cursor timestamp", ErrValidation)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: malformed cursor id", ErrValidation)
	}

	return ts, id, nil
}

// GetFeed serves the public feed. viewerClerkID may be empty for anonymous
// viewers; authenticated viewers additionally get their block list applied
// and a per-item isLiked flag.
func (s *CommunityService) GetFeed(ctx context.Context, viewerClerkID string, cursor string, limit int) (*feed.Page, error) {
	if limit <= 0 {
		limit = feedDefaultLimit
	}
	if limit > feedMaxLimit {
		limit = feedMaxLimit
	}

	var viewerID *uuid.UUID
	if viewerClerkID != "" {
		id, _, err := resolveUser(ctx, s.db, viewerClerkID)
		if err == nil {
			viewerID = &id
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	var cursorAt *time.Time
	var cursorID *uuid.UUID
	if cursor != "" {
		at, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		cursorAt, cursorID = &at, &id
	}

	query := `
	SELECT s.id, s.image_url, h.title, h.description, u.username, s.ai_feedback,
	       s.like_count, s.comment_count, s.created_at
	FROM submissions s
	JOIN habits h ON h.id = s.habit_id
	JOIN users u ON u.id = s.user_id
	WHERE (s.ai_verification_result = TRUE OR s.appeal_status = 'approved')
	  AND s.is_flagged = FALSE
	  AND h.is_public = TRUE
	  AND ($1::uuid IS NULL OR NOT EXISTS (
	      SELECT 1 FROM user_blocks b WHERE b.blocker_id = $1 AND b.blocked_id = s.user_id))
	  AND ($2::timestamptz IS NULL OR (s.created_at, s.id) < ($2, $3::uuid))
	ORDER BY s.created_at DESC, s.id DESC
	LIMIT $4`

	// One extra row decides hasMore without a second count query.
	rows, err := s.db.Query(ctx, query, viewerID, cursorAt, cursorID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed: %w", err)
	}
	defer rows.Close()

	items := []feed.Item{}
	for rows.Next() {
		var it feed.Item
		err := rows.Scan(&it.ID, &it.ImageURL, &it.HabitTitle, &it.HabitDescription,
			&it.Username, &it.AIFeedback, &it.LikeCount, &it.CommentCount, &it.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	if viewerID != nil && len(items) > 0 {
		if err := s.attachLikedFlags(ctx, *viewerID, items); err != nil {
			return nil, err
		}
	}

	page := &feed.Page{Data: items, HasMore: hasMore}
	if hasMore {
		last := items[len(items)-1]
		next := encodeCursor(last.CreatedAt, last.ID)
		page.NextCursor = &next
	}

	return page, nil
}

// attachLikedFlags marks the viewer's likes with a single membership query
// over the page's ids, independent of total like counts.
func (s *CommunityService) attachLikedFlags(ctx context.Context, viewerID uuid.UUID, items []feed.Item) error {
	ids := make([]uuid.UUID, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}

	rows, err := s.db.Query(ctx,
		`SELECT submission_id FROM likes WHERE user_id = $1 AND submission_id = ANY($2)`,
		viewerID, ids)
	if err != nil {
		return fmt.Errorf("failed to query likes: %w", err)
	}
	defer rows.Close()

	liked := map[uuid.UUID]bool{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan like: %w", err)
		}
		liked[id] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read likes: %w", err)
	}

	for i := range items {
		items[i].IsLiked = liked[items[i].ID]
	}
	return nil
}

// ToggleLike likes or unlikes a submission. The like row and the denormalized
// counter move in one transaction, and uniqueness of (user, submission) is
// enforced by the storage layer, so two concurrent likes collapse into one.
func (s *CommunityService) ToggleLike(ctx context.Context, clerkID string, submissionID uuid.UUID) (*feed.LikeResponse, error) {
	userID, _, err := resolveUser(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Unlike first: if a like already exists it is removed. Otherwise insert,
	// where ON CONFLICT absorbs the race of two simultaneous likes — the
	// loser sees zero rows and must NOT fall through to an unlike, or the
	// pair would annihilate the like they both asked for.
	delTag, err := tx.Exec(ctx,
		`DELETE FROM likes WHERE user_id = $1 AND submission_id = $2`, userID, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete like: %w", err)
	}

	var liked bool
	var likeCount int

	if delTag.RowsAffected() == 1 {
		err = tx.QueryRow(ctx,
			`UPDATE submissions SET like_count = like_count - 1 WHERE id = $1 RETURNING like_count`,
			submissionID).Scan(&likeCount)
	} else {
		liked = true
		insTag, insErr := tx.Exec(ctx, `
			INSERT INTO likes (user_id, submission_id) VALUES ($1, $2)
			ON CONFLICT (user_id, submission_id) DO NOTHING`, userID, submissionID)
		if insErr != nil {
			if isForeignKeyViolation(insErr) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("failed to insert like: %w", insErr)
		}
		if insTag.RowsAffected() == 1 {
			err = tx.QueryRow(ctx,
				`UPDATE submissions SET like_count = like_count + 1 WHERE id = $1 RETURNING like_count`,
				submissionID).Scan(&likeCount)
		} else {
			// Lost the insert race: the like exists, counter already bumped.
			err = tx.QueryRow(ctx,
				`SELECT like_count FROM submissions WHERE id = $1`, submissionID).Scan(&likeCount)
		}
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update like count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit like: %w", err)
	}

	return &feed.LikeResponse{Liked: liked, LikeCount: likeCount}, nil
}

// AddComment inserts the comment and bumps the denormalized counter in one
// transaction to keep the two from drifting under concurrent writes.
func (s *CommunityService) AddComment(ctx context.Context, clerkID string, submissionID uuid.UUID, text string) (*feed.CommentResponse, error) {
	userID, _, err := resolveUser(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	c := feed.Comment{SubmissionID: submissionID, Text: text}
	err = tx.QueryRow(ctx, `
		INSERT INTO comments (user_id, submission_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, (SELECT username FROM users WHERE id = $1)`,
		userID, submissionID, text).Scan(&c.ID, &c.CreatedAt, &c.Username)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}

	var commentCount int
	err = tx.QueryRow(ctx,
		`UPDATE submissions SET comment_count = comment_count + 1 WHERE id = $1 RETURNING comment_count`,
		submissionID).Scan(&commentCount)
	if err != nil {
		return nil, fmt.Errorf("failed to update comment count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit comment: %w", err)
	}

	return &feed.CommentResponse{Comment: c, CommentCount: commentCount}, nil
}

// 23503 is the Postgres foreign_key_violation class.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
