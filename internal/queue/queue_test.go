package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/storage"
	"airdrop-optimizer/internal/storage/memory"
)

var quiet = log.New(io.Discard, "", 0)

// flakyStore fails the first n StoreResult calls.
type flakyStore struct {
	storage.JobStore
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyStore) StoreResult(ctx context.Context, id string, r json.RawMessage, s domain.JobStatus) error {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return errors.New("connection reset")
	}
	return f.JobStore.StoreResult(ctx, id, r, s)
}

func startDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestSubmit(t *testing.T) {
	store := memory.NewJobStore()
	q := New(store)
	ctx := context.Background()

	h, err := q.Submit(ctx, domain.JobKindCreateAgent, map[string]string{"campaign_id": "c1"})
	require.NoError(t, err)
	require.NotEmpty(t, h.ID())

	job, err := store.Get(ctx, h.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.JSONEq(t, `{"campaign_id":"c1"}`, string(job.Payload))

	r, err := h.Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, r.Status)

	raw, err := q.Submit(ctx, domain.JobKindExecuteTrading, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	job, err = store.Get(ctx, raw.ID())
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(job.Payload))

	_, err = q.Submit(ctx, domain.JobKindCreateAgent, func() {})
	assert.Error(t, err)
}

func TestDispatcher_RunsHandlers(t *testing.T) {
	store := memory.NewJobStore()
	q := New(store)
	d := NewDispatcher(DispatcherOptions{Store: store, Workers: 3, PollInterval: 5 * time.Millisecond, Logger: quiet})

	d.Handle(domain.JobKindCreateAgent, func(_ context.Context, job *domain.Job) (json.RawMessage, error) {
		var in struct{ N int }
		if err := json.Unmarshal(job.Payload, &in); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int{"double": in.N * 2})
	})
	d.Handle(domain.JobKindExecuteTrading, func(context.Context, *domain.Job) (json.RawMessage, error) {
		return nil, errors.New("boom")
	})
	startDispatcher(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := q.Submit(ctx, domain.JobKindCreateAgent, map[string]int{"n": 21})
	require.NoError(t, err)
	bad, err := q.Submit(ctx, domain.JobKindExecuteTrading, nil)
	require.NoError(t, err)

	r, err := ok.Wait(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, r.Status)
	assert.JSONEq(t, `{"double":42}`, string(r.Result))

	r, err = bad.Wait(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, r.Status)
	assert.JSONEq(t, `{"error":"boom"}`, string(r.Result))

	job, err := store.Get(ctx, bad.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
}

func TestDispatcher_UnknownKindAndPanic(t *testing.T) {
	store := memory.NewJobStore()
	q := New(store)
	d := NewDispatcher(DispatcherOptions{Store: store, Workers: 1, PollInterval: 5 * time.Millisecond, Logger: quiet})
	d.Handle(domain.JobKindCreateAgent, func(context.Context, *domain.Job) (json.RawMessage, error) {
		panic("nil map")
	})
	startDispatcher(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	panicking, err := q.Submit(ctx, domain.JobKindCreateAgent, nil)
	require.NoError(t, err)
	unknown, err := q.Submit(ctx, domain.JobKindExecuteTrading, nil)
	require.NoError(t, err)

	for _, h := range []*Handle{panicking, unknown} {
		r, err := h.Wait(ctx, 5*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, r.Status)
	}
}

func TestDispatcher_EachJobRunsOnce(t *testing.T) {
	store := memory.NewJobStore()
	q := New(store)
	d := NewDispatcher(DispatcherOptions{Store: store, Workers: 8, PollInterval: time.Millisecond, Logger: quiet})

	var (
		mu   sync.Mutex
		runs = make(map[string]int)
	)
	d.Handle(domain.JobKindCreateAgent, func(_ context.Context, job *domain.Job) (json.RawMessage, error) {
		mu.Lock()
		runs[job.JobID]++
		mu.Unlock()
		return json.RawMessage(`{}`), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var handles []*Handle
	for i := 0; i < 50; i++ {
		h, err := q.Submit(ctx, domain.JobKindCreateAgent, nil)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	startDispatcher(t, d)

	for _, h := range handles {
		_, err := h.Wait(ctx, 2*time.Millisecond)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, runs, 50)
	for id, n := range runs {
		assert.Equal(t, 1, n, "job %s ran %d times", id, n)
	}
}

func TestDispatcher_RetriesResultStorage(t *testing.T) {
	store := &flakyStore{JobStore: memory.NewJobStore()}
	store.failures.Store(2)
	q := New(store)
	d := NewDispatcher(DispatcherOptions{
		Store:        store,
		Workers:      1,
		PollInterval: 5 * time.Millisecond,
		RetryBackoff: time.Millisecond,
		Logger:       quiet,
	})
	d.Handle(domain.JobKindCreateAgent, func(context.Context, *domain.Job) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})
	startDispatcher(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := q.Submit(ctx, domain.JobKindCreateAgent, nil)
	require.NoError(t, err)
	r, err := h.Wait(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, r.Status)
	assert.Equal(t, int32(3), store.calls.Load())
}

func TestHandle_WaitHonorsContext(t *testing.T) {
	store := memory.NewJobStore()
	h, err := New(store).Submit(context.Background(), domain.JobKindCreateAgent, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.Wait(ctx, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = NewHandle(store, "unknown").Wait(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSweeper(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := memory.NewJobStoreWithClock(clock)
	ctx := context.Background()

	id, err := store.Enqueue(ctx, domain.JobKindCreateAgent, nil)
	require.NoError(t, err)
	require.NoError(t, store.StoreResult(ctx, id, json.RawMessage(`{}`), domain.JobStatusCompleted))

	s := NewSweeper(store, 0, 0, quiet)
	s.now = clock

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	now = now.Add(DefaultRetention + time.Minute)
	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
