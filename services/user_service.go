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

	"veriHabitAPI/internal/types/user"
)

type UserService struct {
	db *pgxpool.Pool
}

func NewUserService(db *pgxpool.Pool) *UserService {
	return &UserService{db: db}
}

func (s *UserService) CreateUser(ctx context.Context, req *user.CreateUserRequest) (*user.User, error) {
	u := &user.User{
		ID:        uuid.New(),
		ClerkID:   req.ClerkID,
		Email:     req.Email,
		Username:  req.Username,
		Plan:      user.PlanFree,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	query := `
	INSERT INTO users (id, clerk_id, username, email, plan, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (clerk_id) DO UPDATE SET username = EXCLUDED.username, email = EXCLUDED.email, updated_at = EXCLUDED.updated_at
	RETURNING id, clerk_id, username, email, plan, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		u.ID, u.ClerkID, u.Username, u.Email, u.Plan, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID, &u.ClerkID, &u.Username, &u.Email, &u.Plan, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return u, nil
}

func (s *UserService) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	query := `
	SELECT id, clerk_id, username, email, plan, created_at, updated_at
	FROM users
	WHERE clerk_id = $1
	`

	u := &user.User{}
	err := s.db.QueryRow(ctx, query, clerkID).Scan(
		&u.ID, &u.ClerkID, &u.Username, &u.Email, &u.Plan, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return u, nil
}

// DeleteUser removes the account; habits, submissions, likes and comments go
// with it through the foreign-key cascades.
func (s *UserService) DeleteUser(ctx context.Context, clerkID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE clerk_id = $1`, clerkID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	log.Printf("Deleted account for clerk user %s", clerkID)
	return nil
}

func (s *UserService) BlockUser(ctx context.Context, clerkID string, blockedID uuid.UUID) error {
	blockerID, _, err := resolveUser(ctx, s.db, clerkID)
	if err != nil {
		return err
	}
	if blockerID == blockedID {
		return fmt.Errorf("%w: cannot block yourself", ErrValidation)
	}

	query := `
	INSERT INTO user_blocks (blocker_id, blocked_id)
	VALUES ($1, $2)
	ON CONFLICT (blocker_id, blocked_id) DO NOTHING
	`
	if _, err := s.db.Exec(ctx, query, blockerID, blockedID); err != nil {
		return fmt.Errorf("failed to block user: %w", err)
	}
	return nil
}

func (s *UserService) UnblockUser(ctx context.Context, clerkID string, blockedID uuid.UUID) error {
	blockerID, _, err := resolveUser(ctx, s.db, clerkID)
	if err != nil {
		return err
	}

	query := `DELETE FROM user_blocks WHERE blocker_id = $1 AND blocked_id = $2`
	if _, err := s.db.Exec(ctx, query, blockerID, blockedID); err != nil {
		return fmt.Errorf("failed to unblock user: %w", err)
	}
	return nil
}

// resolveUser maps the authenticated clerk id onto the internal user row.
func resolveUser(ctx context.Context, db *pgxpool.Pool, clerkID string) (uuid.UUID, user.Plan, error) {
	var id uuid.UUID
	var plan user.Plan
	err := db.QueryRow(ctx, `SELECT id, plan FROM users WHERE clerk_id = $1`, clerkID).Scan(&id, &plan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, "", ErrNotFound
		}
		return uuid.Nil, "", fmt.Errorf("failed to resolve user: %w", err)
	}
	return id, plan, nil
}
