package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"veriHabitAPI/internal/types/submission"
)

type SubmissionService struct {
	db *pgxpool.Pool
}

func NewSubmissionService(db *pgxpool.Pool) *SubmissionService {
	return &SubmissionService{db: db}
}

const submissionColumns = `id, user_id, habit_id, image_url, ai_verification_result, ai_feedback,
	is_flagged, is_appealed, appeal_status, like_count, comment_count, created_at`

// ListHabitSubmissions returns the caller's verification history for one of
// their habits, newest first.
func (s *SubmissionService) ListHabitSubmissions(ctx context.Context, clerkID string, habitID uuid.UUID) ([]submission.Submission, error) {
	userID, _, err := resolveUser(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + submissionColumns + `
	FROM submissions
	WHERE habit_id = $1 AND user_id = $2
	ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, habitID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	subs := []submission.Submission{}
	for rows.Next() {
		var sub submission.Submission
		err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.HabitID, &sub.ImageURL, &sub.AIVerificationResult, &sub.AIFeedback,
			&sub.IsFlagged, &sub.IsAppealed, &sub.AppealStatus, &sub.LikeCount, &sub.CommentCount, &sub.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read submissions: %w", err)
	}

	return subs, nil
}

// Appeal moves a rejected submission from none to pending. A user gets one
// appeal per submission; the guards live in the WHERE clause so two
// concurrent appeals cannot both transition it.
func (s *SubmissionService) Appeal(ctx context.Context, clerkID string, submissionID uuid.UUID) (*submission.AppealResponse, error) {
	userID, _, err := resolveUser(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	query := `
	UPDATE submissions
	SET is_appealed = TRUE, appeal_status = 'pending'
	WHERE id = $1 AND user_id = $2 AND ai_verification_result = FALSE AND appeal_status = 'none'
	RETURNING appeal_status`

	var status submission.AppealStatus
	err = s.db.QueryRow(ctx, query, submissionID, userID).Scan(&status)
	if err == nil {
		return &submission.AppealResponse{
			Success:      true,
			Message:      "Appeal submitted. A reviewer will take a look.",
			AppealStatus: status,
		}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to appeal submission: %w", err)
	}

	// The guarded update matched nothing; find out which rule failed.
	var verified bool
	err = s.db.QueryRow(ctx,
		`SELECT ai_verification_result, appeal_status FROM submissions WHERE id = $1 AND user_id = $2`,
		submissionID, userID).Scan(&verified, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to inspect submission: %w", err)
	}

	if status != submission.AppealNone {
		return nil, ErrAlreadyAppealed
	}
	if verified {
		return nil, fmt.Errorf("%w: only rejected submissions can be appealed", ErrValidation)
	}
	return nil, fmt.Errorf("%w: submission cannot be appealed", ErrValidation)
}

// ReviewAppeal resolves a pending appeal. Approval makes the submission
// feed-eligible without rewriting the original AI verdict, which stays as
// ground truth for auditing.
func (s *SubmissionService) ReviewAppeal(ctx context.Context, submissionID uuid.UUID, approve bool) (*submission.AppealResponse, error) {
	status := submission.AppealRejected
	if approve {
		status = submission.AppealApproved
	}

	query := `
	UPDATE submissions
	SET appeal_status = $2
	WHERE id = $1 AND appeal_status = 'pending'
	RETURNING appeal_status`

	var got submission.AppealStatus
	err := s.db.QueryRow(ctx, query, submissionID, status).Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no pending appeal for this submission", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to review appeal: %w", err)
	}

	return &submission.AppealResponse{
		Success:      true,
		Message:      fmt.Sprintf("Appeal %s", got),
		AppealStatus: got,
	}, nil
}
