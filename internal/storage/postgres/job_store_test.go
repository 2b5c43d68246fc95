package postgres

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/storage"
)

func TestJobStore_EnqueueDequeueFIFO(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewJobStore(pool)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		store.now = func() time.Time { return at }
		id, err := store.Enqueue(ctx, domain.JobKindCreateAgent, json.RawMessage(`{"i":1}`))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	store.now = time.Now

	for _, want := range ids {
		j, err := store.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, j)
		assert.Equal(t, want, j.JobID)
		assert.Equal(t, domain.JobStatusProcessing, j.Status)
		assert.Equal(t, domain.JobKindCreateAgent, j.Kind)
		assert.JSONEq(t, `{"i":1}`, string(j.Payload))
	}

	j, err := store.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestJobStore_ConcurrentDequeue(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewJobStore(pool)

	const jobs = 50
	for i := 0; i < jobs; i++ {
		_, err := store.Enqueue(ctx, domain.JobKindExecuteTrading, nil)
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, err := store.Dequeue(ctx)
				if err != nil || j == nil {
					return
				}
				mu.Lock()
				seen[j.JobID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, jobs)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s dequeued more than once", id)
	}
}

func TestJobStore_ResultLifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewJobStore(pool)

	_, err := store.GetResult(ctx, "unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	id, err := store.Enqueue(ctx, domain.JobKindCreateAgent, nil)
	require.NoError(t, err)

	r, err := store.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, r.Status)
	assert.Nil(t, r.Result)

	require.NoError(t, store.StoreResult(ctx, id, json.RawMessage(`{"agent_id":"a"}`), domain.JobStatusCompleted))
	require.NoError(t, store.Complete(ctx, id, domain.JobStatusCompleted))

	first, err := store.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, first.Status)
	assert.JSONEq(t, `{"agent_id":"a"}`, string(first.Result))
	require.NotNil(t, first.CompletedAt)

	// Idempotent re-store keeps completed_at.
	store.now = func() time.Time { return time.Now().Add(time.Hour) }
	require.NoError(t, store.StoreResult(ctx, id, json.RawMessage(`{ "agent_id" : "a" }`), domain.JobStatusCompleted))
	second, err := store.GetResult(ctx, id)
	require.NoError(t, err)
	assert.True(t, first.CompletedAt.Equal(*second.CompletedAt))

	j, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, j.Status)
}

func TestJobStore_CompleteErrors(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewJobStore(pool)

	assert.ErrorIs(t, store.Complete(ctx, "missing", domain.JobStatusCompleted), storage.ErrNotFound)
	assert.ErrorIs(t, store.Complete(ctx, "missing", domain.JobStatusPending), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.StoreResult(ctx, "x", json.RawMessage(`{bad`), domain.JobStatusCompleted), storage.ErrInvalidInput)
}

func TestJobStore_Cleanup(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewJobStore(pool)

	old := time.Now().Add(-10 * 24 * time.Hour)
	store.now = func() time.Time { return old }
	oldID, err := store.Enqueue(ctx, domain.JobKindCreateAgent, nil)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, oldID, domain.JobStatusCompleted))
	require.NoError(t, store.StoreResult(ctx, oldID, json.RawMessage(`{}`), domain.JobStatusCompleted))

	store.now = time.Now
	newID, err := store.Enqueue(ctx, domain.JobKindCreateAgent, nil)
	require.NoError(t, err)
	require.NoError(t, store.StoreResult(ctx, newID, json.RawMessage(`{}`), domain.JobStatusCompleted))

	removed, err := store.Cleanup(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetResult(ctx, oldID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetResult(ctx, newID)
	assert.NoError(t, err)
}
