package habit

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeRecurring Type = "recurring"
	TypeOneTime   Type = "one-time"
)

type Frequency string

const (
	FrequencyDaily  Frequency = "Daily"
	FrequencyWeekly Frequency = "Weekly"
	FrequencyOnce   Frequency = "Once"
)

type Strictness string

const (
	StrictnessLow    Strictness = "low"
	StrictnessMedium Strictness = "medium"
	StrictnessHigh   Strictness = "high"
)

type Habit struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	OwnerID         uuid.UUID   `json:"owner_id" db:"owner_id"`
	Title           string      `json:"title" db:"title"`
	Description     string      `json:"description" db:"description"`
	Type            Type        `json:"type" db:"type"`
	Frequency       Frequency   `json:"frequency" db:"frequency"`
	Strictness      Strictness  `json:"strictness" db:"strictness"`
	CurrentStreak   int         `json:"current_streak" db:"current_streak"`
	CompletedDates  []time.Time `json:"completed_dates" db:"completed_dates"`
	LastStreakCheck *time.Time  `json:"last_streak_check" db:"last_streak_check"`
	IsPublic        bool        `json:"is_public" db:"is_public"`
	Active          bool        `json:"active" db:"active"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

type CreateHabitRequest struct {
	Title       string `json:"title" validate:"required,max=120"`
	Description string `json:"description" validate:"max=1000"`
	Type        string `json:"type" validate:"omitempty,oneof=recurring one-time"`
	Frequency   string `json:"frequency" validate:"omitempty,oneof=Daily Weekly Once"`
	Strictness  string `json:"strictness" validate:"omitempty,oneof=low medium high"`
	IsPublic    bool   `json:"is_public"`
}

type UpdateHabitRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=120"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	Strictness  *string `json:"strictness" validate:"omitempty,oneof=low medium high"`
	IsPublic    *bool   `json:"is_public"`
}

// Context is the slice of a habit the AI judge needs to rule on a proof image.
type Context struct {
	Title       string
	Description string
	Strictness  Strictness
}
