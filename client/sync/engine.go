// Package sync drains the offline submission queue once connectivity comes
// back. Items are replayed oldest first so streak math on the server sees
// submissions in the order they were made.
package sync

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync/atomic"

	"veriHabitAPI/client/api"
	"veriHabitAPI/client/queue"
)

// Submitter replays one queued submission against the server.
type Submitter interface {
	Ping(ctx context.Context) bool
	Submit(ctx context.Context, token, habitID, imagePath string) error
}

// Result summarizes one drain pass. Failed counts items that stayed in the
// queue or were dropped, not transport errors.
type Result struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

type Engine struct {
	queue     *queue.Queue
	submitter Submitter
	draining  atomic.Bool
}

func NewEngine(q *queue.Queue, submitter Submitter) *Engine {
	return &Engine{
		queue:     q,
		submitter: submitter,
	}
}

// Drain replays every pending submission. It is single-flight: a call that
// overlaps a running drain returns immediately with a zero Result, as does a
// drain started while offline. Drain never returns an error; per-item
// failures are counted and the items kept for the next pass.
func (e *Engine) Drain(ctx context.Context, token string) Result {
	if !e.draining.CompareAndSwap(false, true) {
		return Result{}
	}
	defer e.draining.Store(false)

	if !e.submitter.Ping(ctx) {
		// Offline: every pending item counts as failed for this cycle, but
		// none of them were attempted, so retry counts and failure bookkeeping
		// stay untouched.
		n, err := e.queue.Count(ctx)
		if err != nil {
			log.Printf("Failed to count pending queue: %v", err)
			return Result{}
		}
		return Result{Failed: n}
	}

	items, err := e.queue.List(ctx)
	if err != nil {
		log.Printf("Failed to read pending queue: %v", err)
		return Result{}
	}

	var res Result
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}

		err := e.submitter.Submit(ctx, token, item.HabitID, item.ImagePath)
		if err == nil {
			if err := e.queue.Remove(ctx, item.ID); err != nil {
				log.Printf("Failed to remove synced item %s: %v", item.ID, err)
			}
			res.Success++
			continue
		}

		res.Failed++
		if recErr := e.queue.RecordFailure(ctx, item.ID, err.Error()); recErr != nil {
			log.Printf("Failed to record failure for %s: %v", item.ID, recErr)
		}
		if !isPermanentFailure(err) {
			// Offline again, server trouble, or a timeout. Keep the item and
			// retry on the next drain without burning the retry budget.
			continue
		}

		count, incErr := e.queue.IncrementRetry(ctx, item.ID)
		if incErr != nil {
			log.Printf("Failed to update retry count for %s: %v", item.ID, incErr)
			continue
		}
		if count >= queue.MaxRetries {
			log.Printf("Dropping submission %s after %d rejections: %v", item.ID, count, err)
			if err := e.queue.Remove(ctx, item.ID); err != nil {
				log.Printf("Failed to drop item %s: %v", item.ID, err)
			}
		}
	}
	return res
}

// isPermanentFailure reports whether the server definitively rejected the
// submission. Network errors carry no status; 5xx means server trouble; 408
// is a timeout despite its 4xx shape. Everything else in the 4xx range will
// never succeed by retrying alone.
func isPermanentFailure(err error) bool {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == http.StatusRequestTimeout {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}
