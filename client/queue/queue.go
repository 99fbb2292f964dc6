// Package queue persists habit submissions made while offline so they can be
// replayed against the API later. Items survive process restarts.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MaxRetries is the ceiling for permanent-failure retries. An item whose
// retry count reaches this value is dropped on the next drain.
const MaxRetries = 3

type Item struct {
	ID         string    `json:"id"`
	HabitID    string    `json:"habitId"`
	HabitTitle string    `json:"habitTitle"`
	ImagePath  string    `json:"imagePath"`
	RetryCount int       `json:"retryCount"`
	LastError  string    `json:"lastError,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Queue struct {
	db       *sql.DB
	imageDir string
}

// Open opens (or creates) the queue database under dir. Queued proof images
// are migrated into dir/images so they outlive the caller's temp files.
func Open(dir string) (*Queue, error) {
	imageDir := filepath.Join(dir, "images")
	if err := os.MkdirAll(imageDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "pending.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pending_submissions (
			id TEXT PRIMARY KEY,
			habit_id TEXT NOT NULL,
			habit_title TEXT NOT NULL DEFAULT '',
			image_path TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			seq INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_pending_seq ON pending_submissions(seq)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create queue schema: %w", err)
	}

	return &Queue{db: db, imageDir: imageDir}, nil
}

func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue records a submission and takes ownership of the image at imagePath.
// The image is moved into the queue's own directory so cache eviction cannot
// destroy unsynced evidence; if a rename across filesystems fails it falls
// back to copy-then-delete. If even the copy fails, the item is enqueued with
// the original path: a riskier path beats losing the submission outright.
func (q *Queue) Enqueue(ctx context.Context, habitID, habitTitle, imagePath string) (*Item, error) {
	id := uuid.New().String()
	dest := filepath.Join(q.imageDir, id+filepath.Ext(imagePath))

	if err := migrateImage(imagePath, dest); err != nil {
		log.Printf("Warning: could not migrate queued image, keeping %s: %v", imagePath, err)
		dest = imagePath
	}

	item := &Item{
		ID:         id,
		HabitID:    habitID,
		HabitTitle: habitTitle,
		ImagePath:  dest,
		CreatedAt:  time.Now().UTC(),
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO pending_submissions (id, habit_id, habit_title, image_path, retry_count, created_at, seq)
		VALUES (?, ?, ?, ?, 0, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM pending_submissions))`,
		item.ID, item.HabitID, item.HabitTitle, item.ImagePath, item.CreatedAt)
	if err != nil {
		if dest != imagePath {
			os.Remove(dest)
		}
		return nil, fmt.Errorf("failed to enqueue submission: %w", err)
	}
	return item, nil
}

// List returns all pending items in insertion order.
func (q *Queue) List(ctx context.Context) ([]Item, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, habit_id, habit_title, image_path, retry_count, last_error, created_at
		FROM pending_submissions ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.HabitID, &it.HabitTitle, &it.ImagePath, &it.RetryCount, &it.LastError, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (q *Queue) Count(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_submissions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}

// Remove deletes the item and its stored image. Missing images are not an
// error; the row is what matters.
func (q *Queue) Remove(ctx context.Context, id string) error {
	var imagePath string
	err := q.db.QueryRowContext(ctx,
		`SELECT image_path FROM pending_submissions WHERE id = ?`, id).Scan(&imagePath)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up queue item: %w", err)
	}

	if _, err := q.db.ExecContext(ctx, `DELETE FROM pending_submissions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove queue item: %w", err)
	}
	os.Remove(imagePath)
	return nil
}

// RecordFailure stores the latest failure message without touching the
// permanent-failure counter. Retriable failures land here.
func (q *Queue) RecordFailure(ctx context.Context, id, message string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE pending_submissions SET last_error = ? WHERE id = ?`, message, id)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

// IncrementRetry bumps the permanent-failure counter and reports the new
// value.
func (q *Queue) IncrementRetry(ctx context.Context, id string) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `
		UPDATE pending_submissions SET retry_count = retry_count + 1
		WHERE id = ? RETURNING retry_count`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry count: %w", err)
	}
	return count, nil
}

func migrateImage(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	os.Remove(src)
	return nil
}
