package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/storage"
)

// setupTestRedis starts a Redis container and returns a connected client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewClient(ctx, fmt.Sprintf("%s:%s", host, port.Port()), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, client *redis.Client) (*JobStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := NewJobStore(client, "test:"+t.Name()+":")
	s.now = clock.Now
	return s, clock
}

func TestJobStore(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	t.Run("fifo dequeue", func(t *testing.T) {
		s, _ := newTestStore(t, client)

		first, err := s.Enqueue(ctx, domain.JobKindCreateAgent, json.RawMessage(`{"n": 1}`))
		require.NoError(t, err)
		second, err := s.Enqueue(ctx, domain.JobKindExecuteTrading, json.RawMessage(`{"n":2}`))
		require.NoError(t, err)

		j, err := s.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, j)
		assert.Equal(t, first, j.JobID)
		assert.Equal(t, domain.JobStatusProcessing, j.Status)
		assert.Equal(t, domain.JobKindCreateAgent, j.Kind)
		assert.JSONEq(t, `{"n":1}`, string(j.Payload))

		j, err = s.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, second, j.JobID)

		j, err = s.Dequeue(ctx)
		require.NoError(t, err)
		assert.Nil(t, j)
	})

	t.Run("concurrent dequeue hands out each job once", func(t *testing.T) {
		s, _ := newTestStore(t, client)
		const n = 30
		for i := 0; i < n; i++ {
			_, err := s.Enqueue(ctx, domain.JobKindCreateAgent, nil)
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
					j, err := s.Dequeue(ctx)
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

		assert.Len(t, seen, n)
		for id, c := range seen {
			assert.Equal(t, 1, c, "job %s dequeued %d times", id, c)
		}
	})

	t.Run("complete", func(t *testing.T) {
		s, _ := newTestStore(t, client)
		id, err := s.Enqueue(ctx, domain.JobKindCreateAgent, nil)
		require.NoError(t, err)

		assert.ErrorIs(t, s.Complete(ctx, id, domain.JobStatusProcessing), storage.ErrInvalidInput)
		assert.ErrorIs(t, s.Complete(ctx, "missing", domain.JobStatusCompleted), storage.ErrNotFound)

		require.NoError(t, s.Complete(ctx, id, domain.JobStatusFailed))
		j, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, j.Status)
	})

	t.Run("results", func(t *testing.T) {
		s, clock := newTestStore(t, client)
		id, err := s.Enqueue(ctx, domain.JobKindCreateAgent, nil)
		require.NoError(t, err)

		r, err := s.GetResult(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusPending, r.Status)
		assert.Nil(t, r.Result)

		_, err = s.GetResult(ctx, "missing")
		assert.True(t, errors.Is(err, storage.ErrNotFound))

		require.NoError(t, s.StoreResult(ctx, id, json.RawMessage(`{"ok": true}`), domain.JobStatusCompleted))
		r, err = s.GetResult(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, r.CompletedAt)
		firstAt := *r.CompletedAt
		assert.JSONEq(t, `{"ok":true}`, string(r.Result))

		clock.Advance(time.Minute)
		require.NoError(t, s.StoreResult(ctx, id, json.RawMessage(`{"ok":true}`), domain.JobStatusCompleted))
		r, err = s.GetResult(ctx, id)
		require.NoError(t, err)
		assert.True(t, firstAt.Equal(*r.CompletedAt), "identical re-store must keep completed_at")

		assert.ErrorIs(t, s.StoreResult(ctx, id, json.RawMessage(`{bad`), domain.JobStatusCompleted), storage.ErrInvalidInput)
	})

	t.Run("cleanup", func(t *testing.T) {
		s, clock := newTestStore(t, client)

		old, err := s.Enqueue(ctx, domain.JobKindCreateAgent, nil)
		require.NoError(t, err)
		require.NoError(t, s.StoreResult(ctx, old, json.RawMessage(`{}`), domain.JobStatusCompleted))
		require.NoError(t, s.Complete(ctx, old, domain.JobStatusCompleted))

		clock.Advance(48 * time.Hour)
		fresh, err := s.Enqueue(ctx, domain.JobKindCreateAgent, nil)
		require.NoError(t, err)
		require.NoError(t, s.StoreResult(ctx, fresh, json.RawMessage(`{}`), domain.JobStatusCompleted))

		n, err := s.Cleanup(ctx, clock.Now().Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.GetResult(ctx, old)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.Get(ctx, old)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		r, err := s.GetResult(ctx, fresh)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, r.Status)
	})
}
