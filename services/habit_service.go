package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"veriHabitAPI/internal/streak"
	"veriHabitAPI/internal/types/habit"
)

type HabitService struct {
	db *pgxpool.Pool
}

func NewHabitService(db *pgxpool.Pool) *HabitService {
	return &HabitService{db: db}
}

const habitColumns = `id, owner_id, title, description, type, frequency, strictness,
	current_streak, completed_dates, last_streak_check, is_public, active, created_at, updated_at`

func scanHabit(row pgx.Row) (*habit.Habit, error) {
	h := &habit.Habit{}
	err := row.Scan(
		&h.ID, &h.OwnerID, &h.Title, &h.Description, &h.Type, &h.Frequency, &h.Strictness,
		&h.CurrentStreak, &h.CompletedDates, &h.LastStreakCheck, &h.IsPublic, &h.Active,
		&h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (s *HabitService) CreateHabit(ctx context.Context, clerkID string, req *habit.CreateHabitRequest) (*habit.Habit, error) {
	ownerID, _, err := resolveUser(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	habitType := req.Type
	if habitType == "" {
		habitType = string(habit.TypeRecurring)
	}
	frequency := req.Frequency
	if frequency == "" {
		frequency = string(habit.FrequencyDaily)
	}
	strictness := req.Strictness
	if strictness == "" {
		strictness = string(habit.StrictnessMedium)
	}

	query := `
	INSERT INTO habits (owner_id, title, description, type, frequency, strictness, is_public)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING ` + habitColumns

	h, err := scanHabit(s.db.QueryRow(ctx, query,
		ownerID, req.Title, req.Description, habitType, frequency, strictness, req.IsPublic))
	if err != nil {
		return nil, fmt.Errorf("failed to create habit: %w", err)
	}

	return h, nil
}

// ListHabits returns the caller's habits with streaks evaluated against the
// caller's local day. Stale streaks are never returned: the lazy check runs
// in every read path.
func (s *HabitService) ListHabits(ctx context.Context, clerkID string, loc *time.Location) ([]habit.Habit, error) {
	ownerID, _, err := resolveUser(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + habitColumns + ` FROM habits WHERE owner_id = $1 AND active = TRUE ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	defer rows.Close()

	habits := []habit.Habit{}
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		habits = append(habits, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read habits: %w", err)
	}

	now := time.Now()
	for i := range habits {
		if err := s.evaluateStreak(ctx, &habits[i], loc, now); err != nil {
			return nil, err
		}
	}

	return habits, nil
}

func (s *HabitService) GetHabit(ctx context.Context, clerkID string, habitID uuid.UUID, loc *time.Location) (*habit.Habit, error) {
	ownerID, _, err := resolveUser(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	h, err := loadOwnedHabit(ctx, s.db, habitID, ownerID)
	if err != nil {
		return nil, err
	}

	if err := s.evaluateStreak(ctx, h, loc, time.Now()); err != nil {
		return nil, err
	}

	return h, nil
}

func (s *HabitService) UpdateHabit(ctx context.Context, clerkID string, habitID uuid.UUID, req *habit.UpdateHabitRequest) (*habit.Habit, error) {
	ownerID, _, err := resolveUser(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	query := `
	UPDATE habits SET
		title = COALESCE($3, title),
		description = COALESCE($4, description),
		strictness = COALESCE($5, strictness),
		is_public = COALESCE($6, is_public),
		updated_at = now()
	WHERE id = $1 AND owner_id = $2
	RETURNING ` + habitColumns

	h, err := scanHabit(s.db.QueryRow(ctx, query, habitID, ownerID,
		req.Title, req.Description, req.Strictness, req.IsPublic))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update habit: %w", err)
	}

	return h, nil
}

func (s *HabitService) DeleteHabit(ctx context.Context, clerkID string, habitID uuid.UUID) error {
	ownerID, _, err := resolveUser(ctx, s.db, clerkID)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM habits WHERE id = $1 AND owner_id = $2`, habitID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// evaluateStreak runs the lazy evaluator and persists the outcome when it
// changed anything. Resets to zero happen here and nowhere else.
func (s *HabitService) evaluateStreak(ctx context.Context, h *habit.Habit, loc *time.Location, now time.Time) error {
	return evaluateHabitStreak(ctx, s.db, h, loc, now)
}

func evaluateHabitStreak(ctx context.Context, db *pgxpool.Pool, h *habit.Habit, loc *time.Location, now time.Time) error {
	res := streak.Evaluate(streak.State{
		Type:            h.Type,
		Frequency:       h.Frequency,
		CurrentStreak:   h.CurrentStreak,
		CompletedDates:  h.CompletedDates,
		LastStreakCheck: h.LastStreakCheck,
	}, loc, now)

	if !res.Changed {
		return nil
	}

	_, err := db.Exec(ctx,
		`UPDATE habits SET current_streak = $2, last_streak_check = $3, updated_at = now() WHERE id = $1`,
		h.ID, res.Streak, res.CheckedAt)
	if err != nil {
		return fmt.Errorf("failed to persist streak check: %w", err)
	}

	if res.Reset {
		log.Printf("Streak reset for habit %s (%q)", h.ID, h.Title)
	}

	h.CurrentStreak = res.Streak
	h.LastStreakCheck = res.CheckedAt
	return nil
}

func loadOwnedHabit(ctx context.Context, db *pgxpool.Pool, habitID, ownerID uuid.UUID) (*habit.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE id = $1 AND owner_id = $2`
	h, err := scanHabit(db.QueryRow(ctx, query, habitID, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load habit: %w", err)
	}
	return h, nil
}
