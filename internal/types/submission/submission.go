package submission

import (
	"time"

	"github.com/google/uuid"
)

type AppealStatus string

const (
	AppealNone     AppealStatus = "none"
	AppealPending  AppealStatus = "pending"
	AppealApproved AppealStatus = "approved"
	AppealRejected AppealStatus = "rejected"
)

type Submission struct {
	ID                   uuid.UUID    `json:"id" db:"id"`
	UserID               uuid.UUID    `json:"user_id" db:"user_id"`
	HabitID              uuid.UUID    `json:"habit_id" db:"habit_id"`
	ImageURL             string       `json:"image_url" db:"image_url"`
	AIVerificationResult bool         `json:"ai_verification_result" db:"ai_verification_result"`
	AIFeedback           string       `json:"ai_feedback" db:"ai_feedback"`
	IsFlagged            bool         `json:"is_flagged" db:"is_flagged"`
	IsAppealed           bool         `json:"is_appealed" db:"is_appealed"`
	AppealStatus         AppealStatus `json:"appeal_status" db:"appeal_status"`
	LikeCount            int          `json:"like_count" db:"like_count"`
	CommentCount         int          `json:"comment_count" db:"comment_count"`
	CreatedAt            time.Time    `json:"created_at" db:"created_at"`
}

type VerifyResponse struct {
	Success      bool      `json:"success"`
	Feedback     string    `json:"feedback"`
	Streak       int       `json:"streak"`
	SubmissionID uuid.UUID `json:"submissionId"`
}

type AppealResponse struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message"`
	AppealStatus AppealStatus `json:"appealStatus"`
}
