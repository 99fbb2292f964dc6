package feed

import (
	"time"

	"github.com/google/uuid"
)

type Item struct {
	ID               uuid.UUID `json:"id"`
	ImageURL         string    `json:"image_url"`
	HabitTitle       string    `json:"habit_title"`
	HabitDescription string    `json:"habit_description"`
	Username         string    `json:"username"`
	AIFeedback       string    `json:"ai_feedback"`
	LikeCount        int       `json:"like_count"`
	CommentCount     int       `json:"comment_count"`
	IsLiked          bool      `json:"is_liked"`
	CreatedAt        time.Time `json:"created_at"`
}

type Page struct {
	Data       []Item  `json:"data"`
	NextCursor *string `json:"nextCursor"`
	HasMore    bool    `json:"hasMore"`
}

type LikeResponse struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"like_count"`
}

type Comment struct {
	ID           uuid.UUID `json:"id"`
	SubmissionID uuid.UUID `json:"submission_id"`
	Username     string    `json:"username"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
}

type CommentResponse struct {
	Comment      Comment `json:"comment"`
	CommentCount int     `json:"comment_count"`
}

type AddCommentRequest struct {
	Text string `json:"text" validate:"required,max=500"`
}
