package services

import (
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"veriHabitAPI/internal/judge"
	"veriHabitAPI/internal/storage"
	"veriHabitAPI/internal/types/habit"
	"veriHabitAPI/internal/types/submission"
	"veriHabitAPI/internal/types/user"

	"veriHabitAPI/internal/streak"
)

// Free-plan users get this many verification attempts per local calendar day.
const freePlanDailyLimit = 3

type VerificationService struct {
	db     *pgxpool.Pool
	judge  judge.Judge
	images storage.ImageStore
}

func NewVerificationService(db *pgxpool.Pool, j judge.Judge, images storage.ImageStore) *VerificationService {
	return &VerificationService{db: db, judge: j, images: images}
}

// Verify runs the full gateway sequence: ownership check, lazy streak
// evaluation, daily quota, AI judgement, image storage, and a transactional
// streak-increment + submission insert. imagePath is a local temp file owned
// by this call; it is removed on every exit path.
func (s *VerificationService) Verify(ctx context.Context, clerkID string, habitID uuid.UUID, imagePath, fileName string, loc *time.Location) (*submission.VerifyResponse, error) {
	defer func() {
		if err := os.Remove(imagePath); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to remove temp upload %s: %v", imagePath, err)
		}
	}()

	userID, plan, err := resolveUser(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	h, err := loadOwnedHabit(ctx, s.db, habitID, userID)
	if err != nil {
		return nil, err
	}

	// Expire a stale streak before judging so the streak returned after a
	// verified proof is never inflated by missed days.
	now := time.Now()
	if err := evaluateHabitStreak(ctx, s.db, h, loc, now); err != nil {
		return nil, err
	}

	if plan == user.PlanFree {
		count, err := s.countVerifiedToday(ctx, userID, loc, now)
		if err != nil {
			return nil, err
		}
		if count >= freePlanDailyLimit {
			return nil, ErrRateLimited
		}
	}

	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read uploaded image", ErrValidation)
	}
	if len(imageBytes) == 0 {
		return nil, fmt.Errorf("%w: uploaded image is empty", ErrValidation)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(fileName))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	verdict, err := s.judge.Judge(ctx, imageBytes, mimeType, habit.Context{
		Title:       h.Title,
		Description: h.Description,
		Strictness:  h.Strictness,
	})
	if err != nil {
		return nil, err
	}

	category := storage.CategoryRejected
	if verdict.Verified {
		category = storage.CategoryVerified
	}
	imageURL, err := s.images.UploadProof(ctx, category, h.ID.String(), fileName, imageBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to store proof image: %w", err)
	}

	// Streak mutation and the submission record must land together: a crash
	// between the two would either inflate the streak silently or leave an
	// orphaned increment with no audit trail.
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	streakNow := h.CurrentStreak
	if verdict.Verified {
		err = tx.QueryRow(ctx, `
			UPDATE habits
			SET current_streak = current_streak + 1,
			    completed_dates = array_append(completed_dates, $2),
			    updated_at = now()
			WHERE id = $1
			RETURNING current_streak`, h.ID, now).Scan(&streakNow)
		if err != nil {
			return nil, fmt.Errorf("failed to increment streak: %w", err)
		}
	}

	var submissionID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO submissions (user_id, habit_id, image_url, ai_verification_result, ai_feedback)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, userID, h.ID, imageURL, verdict.Verified, verdict.Reason).Scan(&submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to record submission: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit verification: %w", err)
	}

	return &submission.VerifyResponse{
		Success:      verdict.Verified,
		Feedback:     verdict.Reason,
		Streak:       streakNow,
		SubmissionID: submissionID,
	}, nil
}

// countVerifiedToday counts verified submissions inside the user's current
// local calendar day. Rejected attempts are persisted but do not consume the
// quota. Deriving the count from the submissions table keeps it consistent
// with history and needs no midnight reset job.
func (s *VerificationService) countVerifiedToday(ctx context.Context, userID uuid.UUID, loc *time.Location, now time.Time) (int, error) {
	dayStart, dayEnd := streak.LocalDayBounds(now, loc)

	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM submissions
		WHERE user_id = $1 AND ai_verification_result = TRUE
		  AND created_at >= $2 AND created_at < $3`,
		userID, dayStart, dayEnd).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count daily verifications: %w", err)
	}
	return count, nil
}
