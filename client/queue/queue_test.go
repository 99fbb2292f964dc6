package queue

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("fake-jpeg-bytes"), 0600))
	return path
}

func TestEnqueueMigratesImage(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir)
	require.NoError(t, err)
	defer q.Close()

	src := writeTempImage(t, "proof.jpg")
	item, err := q.Enqueue(context.Background(), "habit-1", "Morning run", src)
	require.NoError(t, err)

	assert.NoFileExists(t, src, "source image is moved, not copied")
	assert.FileExists(t, item.ImagePath)
	assert.Equal(t, ".jpg", filepath.Ext(item.ImagePath))
	assert.Equal(t, 0, item.RetryCount)
}

func TestListPreservesInsertionOrder(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	var ids []string
	for i := 0; i < 5; i++ {
		item, err := q.Enqueue(ctx, "habit-1", "Morning run", writeTempImage(t, "p.jpg"))
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 5)
	for i, it := range items {
		assert.Equal(t, ids[i], it.ID, "position %d", i)
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	q, err := Open(dir)
	require.NoError(t, err)
	item, err := q.Enqueue(ctx, "habit-1", "Morning run", writeTempImage(t, "p.jpg"))
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q2, err := Open(dir)
	require.NoError(t, err)
	defer q2.Close()

	items, err := q2.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)
	assert.FileExists(t, items[0].ImagePath)
}

func TestRemoveDeletesRowAndImage(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	item, err := q.Enqueue(ctx, "habit-1", "Morning run", writeTempImage(t, "p.jpg"))
	require.NoError(t, err)

	require.NoError(t, q.Remove(ctx, item.ID))
	assert.NoFileExists(t, item.ImagePath)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Removing an unknown id is a no-op.
	assert.NoError(t, q.Remove(ctx, "missing"))
}

func TestRecordFailureKeepsRetryCount(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	item, err := q.Enqueue(ctx, "habit-1", "Morning run", writeTempImage(t, "p.jpg"))
	require.NoError(t, err)

	require.NoError(t, q.RecordFailure(ctx, item.ID, "dial tcp: connection refused"))

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "dial tcp: connection refused", items[0].LastError)
	assert.Equal(t, 0, items[0].RetryCount)
}

func TestIncrementRetry(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	item, err := q.Enqueue(ctx, "habit-1", "Morning run", writeTempImage(t, "p.jpg"))
	require.NoError(t, err)

	for want := 1; want <= MaxRetries; want++ {
		got, err := q.IncrementRetry(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, MaxRetries, items[0].RetryCount)
}
