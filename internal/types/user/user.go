package user

import (
	"time"

	"github.com/google/uuid"
)

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ClerkID   string    `json:"clerk_id" db:"clerk_id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	Plan      Plan      `json:"plan" db:"plan"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CreateUserRequest struct {
	ClerkID  string `json:"clerk_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}
