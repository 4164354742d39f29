package queue

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestQueue(t *testing.T) *SQLiteQueue {
	t.Helper()
	q, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueueAndGet(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "bootstrap_demo", map[string]any{"note": "hello"}, 3)
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	task, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bootstrap_demo", task.Type)
	assert.Equal(t, StatusQueued, task.Status)
	assert.Equal(t, 3, task.Priority)
	assert.Equal(t, "hello", task.Payload["note"])
	assert.Empty(t, task.RunID)
	assert.False(t, task.CreatedAt.IsZero())
}

func TestGetMissingTask(t *testing.T) {
	q := openTestQueue(t)

	_, err := q.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestClaimOrderPriorityThenFIFO(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	// Priorities 5, 1, 5: both fives go first in enqueue order, then the one.
	first, err := q.Enqueue(ctx, "bootstrap_demo", nil, 5)
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, "bootstrap_demo", nil, 1)
	require.NoError(t, err)
	third, err := q.Enqueue(ctx, "bootstrap_demo", nil, 5)
	require.NoError(t, err)

	var order []int64
	for i := 0; i < 3; i++ {
		claimed, err := q.ClaimNext(ctx, "run-a")
		require.NoError(t, err)
		require.NotNil(t, claimed)
		order = append(order, claimed.ID)
	}
	assert.Equal(t, []int64{first, third, second}, order)
}

func TestClaimMarksRunningAndStampsRunID(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "bootstrap_demo", nil, 0)
	require.NoError(t, err)

	claimed, err := q.ClaimNext(ctx, "run-123")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, id, claimed.ID)

	task, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, task.Status)
	assert.Equal(t, "run-123", task.RunID)

	// A running task is never claimed again.
	again, err := q.ClaimNext(ctx, "run-456")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestClaimEmptyBacklog(t *testing.T) {
	q := openTestQueue(t)

	claimed, err := q.ClaimNext(context.Background(), "run-a")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestSetStatus(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "bootstrap_demo", nil, 0)
	require.NoError(t, err)

	require.NoError(t, q.SetStatus(ctx, id, StatusCompleted))
	task, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)

	assert.ErrorIs(t, q.SetStatus(ctx, 999, StatusFailed), ErrTaskNotFound)
}

func TestRequeueOrphans(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, "bootstrap_demo", nil, 0)
	require.NoError(t, err)
	id2, err := q.Enqueue(ctx, "bootstrap_demo", nil, 0)
	require.NoError(t, err)

	claimed, err := q.ClaimNext(ctx, "run-dead")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, q.SetStatus(ctx, id2, StatusFailed))

	n, err := q.RequeueOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task, err := q.Get(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, task.Status)
	assert.Empty(t, task.RunID)

	// Terminal tasks are untouched.
	task, err = q.Get(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
}

func TestDepthAndIsEmpty(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	empty, err := q.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)

	_, err = q.Enqueue(ctx, "bootstrap_demo", nil, 0)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "bootstrap_demo", nil, 0)
	require.NoError(t, err)

	depth, err = q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)

	claimed, err := q.ClaimNext(ctx, "run-a")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	// Depth counts only queued; IsEmpty looks at all rows.
	depth, err = q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	empty, err = q.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestListNewestFirst(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, "bootstrap_demo", nil, i)
		require.NoError(t, err)
	}

	tasks, err := q.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, int64(3), tasks[0].ID)
	assert.Equal(t, int64(2), tasks[1].ID)
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.db")
	ctx := context.Background()

	q, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	id, err := q.Enqueue(ctx, "bootstrap_demo", map[string]any{"n": float64(1)}, 2)
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer q.Close()

	task, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, task.Status)
	assert.Equal(t, 2, task.Priority)
}
