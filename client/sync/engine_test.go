package sync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veriHabitAPI/client/api"
	"veriHabitAPI/client/queue"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	online  bool
	err     error
	block   chan struct{}
	submits []string
}

func (f *fakeSubmitter) Ping(ctx context.Context) bool { return f.online }

func (f *fakeSubmitter) Submit(ctx context.Context, token, habitID, imagePath string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.submits = append(f.submits, habitID)
	f.mu.Unlock()
	return f.err
}

func newTestQueue(t *testing.T, n int) *queue.Queue {
	t.Helper()
	q, err := queue.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	for i := 0; i < n; i++ {
		src := filepath.Join(t.TempDir(), "proof.jpg")
		require.NoError(t, os.WriteFile(src, []byte("img"), 0600))
		_, err := q.Enqueue(context.Background(), string(rune('a'+i)), "habit", src)
		require.NoError(t, err)
	}
	return q
}

func TestDrainOfflineCountsAllFailed(t *testing.T) {
	q := newTestQueue(t, 2)
	sub := &fakeSubmitter{online: false}
	eng := NewEngine(q, sub)

	res := eng.Drain(context.Background(), "tok")
	assert.Equal(t, Result{Failed: 2}, res, "every pending item counts as failed this cycle")
	assert.Empty(t, sub.submits, "nothing is attempted while offline")

	items, err := q.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, 0, it.RetryCount, "offline drains never touch retry counts")
		assert.Empty(t, it.LastError, "offline drains record no failure message")
	}
}

func TestDrainSuccessEmptiesQueueInOrder(t *testing.T) {
	q := newTestQueue(t, 3)
	sub := &fakeSubmitter{online: true}
	eng := NewEngine(q, sub)

	res := eng.Drain(context.Background(), "tok")
	assert.Equal(t, Result{Success: 3, Failed: 0}, res)
	assert.Equal(t, []string{"a", "b", "c"}, sub.submits, "oldest first")

	n, err := q.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDrainDropsAfterThreeRejections(t *testing.T) {
	q := newTestQueue(t, 1)
	sub := &fakeSubmitter{online: true, err: &api.APIError{StatusCode: 400, Message: "bad habit"}}
	eng := NewEngine(q, sub)
	ctx := context.Background()

	for pass := 1; pass <= 2; pass++ {
		res := eng.Drain(ctx, "tok")
		assert.Equal(t, Result{Failed: 1}, res)

		items, err := q.List(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1, "pass %d keeps the item", pass)
		assert.Equal(t, pass, items[0].RetryCount)
	}

	res := eng.Drain(ctx, "tok")
	assert.Equal(t, Result{Failed: 1}, res)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "third rejection drops the item")
}

func TestDrainKeepsRetriableFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"network error", errors.New("dial tcp: connection refused")},
		{"server error", &api.APIError{StatusCode: 502}},
		{"request timeout", &api.APIError{StatusCode: 408}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := newTestQueue(t, 1)
			eng := NewEngine(q, &fakeSubmitter{online: true, err: tc.err})
			ctx := context.Background()

			res := eng.Drain(ctx, "tok")
			assert.Equal(t, Result{Failed: 1}, res)

			items, err := q.List(ctx)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, 0, items[0].RetryCount, "retriable failures never burn a retry")
			assert.NotEmpty(t, items[0].LastError)
		})
	}
}

func TestDrainSingleFlight(t *testing.T) {
	q := newTestQueue(t, 1)
	sub := &fakeSubmitter{online: true, block: make(chan struct{})}
	eng := NewEngine(q, sub)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Drain(context.Background(), "tok")
	}()

	// Wait until the first drain is parked inside Submit, then race a second.
	for !eng.draining.Load() {
	}
	res := eng.Drain(context.Background(), "tok")
	assert.Equal(t, Result{}, res, "overlapping drain returns immediately")

	close(sub.block)
	wg.Wait()

	assert.Len(t, sub.submits, 1, "the item was submitted exactly once")
}
