package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestJobStore_FIFO(t *testing.T) {
	clock := newClock()
	store := NewJobStoreWithClock(clock.Now)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.Enqueue(ctx, domain.JobKindCreateAgent, json.RawMessage(`{"n":1}`))
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		ids = append(ids, id)
		clock.Advance(time.Millisecond)
	}

	for i, want := range ids {
		j, err := store.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if j == nil {
			t.Fatalf("Dequeue %d returned nil", i)
		}
		if j.JobID != want {
			t.Errorf("Dequeue %d: got %s, want %s", i, j.JobID, want)
		}
		if j.Status != domain.JobStatusProcessing {
			t.Errorf("status = %s, want PROCESSING", j.Status)
		}
	}

	j, err := store.Dequeue(ctx)
	if err != nil || j != nil {
		t.Errorf("Dequeue on empty queue = (%v, %v), want (nil, nil)", j, err)
	}
}

func TestJobStore_ConcurrentDequeueAtMostOnce(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	const jobs = 200
	for i := 0; i < jobs; i++ {
		if _, err := store.Enqueue(ctx, domain.JobKindExecuteTrading, nil); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, err := store.Dequeue(ctx)
				if err != nil {
					t.Errorf("Dequeue failed: %v", err)
					return
				}
				if j == nil {
					return
				}
				mu.Lock()
				seen[j.JobID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != jobs {
		t.Errorf("dequeued %d distinct jobs, want %d", len(seen), jobs)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s dequeued %d times", id, n)
		}
	}
}

func TestJobStore_Complete(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	id, _ := store.Enqueue(ctx, domain.JobKindCreateAgent, nil)
	if err := store.Complete(ctx, id, domain.JobStatusProcessing); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Complete with non-terminal status: got %v, want ErrInvalidInput", err)
	}
	if err := store.Complete(ctx, "missing", domain.JobStatusCompleted); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Complete unknown job: got %v, want ErrNotFound", err)
	}
	if err := store.Complete(ctx, id, domain.JobStatusFailed); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	j, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if j.Status != domain.JobStatusFailed {
		t.Errorf("status = %s, want FAILED", j.Status)
	}

	// A completed job is never dequeued.
	if j, _ := store.Dequeue(ctx); j != nil {
		t.Errorf("Dequeue returned completed job %s", j.JobID)
	}
}

func TestJobStore_GetResult(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	if _, err := store.GetResult(ctx, "unknown"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetResult unknown: got %v, want ErrNotFound", err)
	}

	id, _ := store.Enqueue(ctx, domain.JobKindCreateAgent, nil)
	r, err := store.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if r.Status != domain.JobStatusPending || r.Result != nil || r.CompletedAt != nil {
		t.Errorf("GetResult before completion = %+v, want PENDING with no result", r)
	}

	if err := store.StoreResult(ctx, id, json.RawMessage(`{"agent_id": "a"}`), domain.JobStatusCompleted); err != nil {
		t.Fatalf("StoreResult failed: %v", err)
	}
	r, err = store.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if r.Status != domain.JobStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", r.Status)
	}
	if string(r.Result) != `{"agent_id":"a"}` {
		t.Errorf("result = %s", r.Result)
	}
}

func TestJobStore_StoreResultIdempotent(t *testing.T) {
	clock := newClock()
	store := NewJobStoreWithClock(clock.Now)
	ctx := context.Background()

	id, _ := store.Enqueue(ctx, domain.JobKindCreateAgent, nil)
	result := json.RawMessage(`{"ok":true}`)

	if err := store.StoreResult(ctx, id, result, domain.JobStatusCompleted); err != nil {
		t.Fatalf("StoreResult failed: %v", err)
	}
	first, _ := store.GetResult(ctx, id)

	clock.Advance(time.Minute)
	if err := store.StoreResult(ctx, id, json.RawMessage(`{ "ok": true }`), domain.JobStatusCompleted); err != nil {
		t.Fatalf("second StoreResult failed: %v", err)
	}
	second, _ := store.GetResult(ctx, id)

	if !first.CompletedAt.Equal(*second.CompletedAt) {
		t.Errorf("re-store changed completed_at: %v -> %v", first.CompletedAt, second.CompletedAt)
	}
	if string(first.Result) != string(second.Result) {
		t.Errorf("re-store changed result: %s -> %s", first.Result, second.Result)
	}

	// A different result overwrites.
	if err := store.StoreResult(ctx, id, json.RawMessage(`{"ok":false}`), domain.JobStatusFailed); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	third, _ := store.GetResult(ctx, id)
	if third.Status != domain.JobStatusFailed || third.CompletedAt.Equal(*first.CompletedAt) {
		t.Errorf("overwrite not applied: %+v", third)
	}
}

func TestJobStore_StoreResultInvalidJSON(t *testing.T) {
	store := NewJobStore()
	err := store.StoreResult(context.Background(), "x", json.RawMessage(`{broken`), domain.JobStatusCompleted)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("got %v, want ErrInvalidInput", err)
	}
}

func TestJobStore_Cleanup(t *testing.T) {
	clock := newClock()
	store := NewJobStoreWithClock(clock.Now)
	ctx := context.Background()

	oldID, _ := store.Enqueue(ctx, domain.JobKindCreateAgent, nil)
	_ = store.Complete(ctx, oldID, domain.JobStatusCompleted)
	_ = store.StoreResult(ctx, oldID, json.RawMessage(`{}`), domain.JobStatusCompleted)

	pendingID, _ := store.Enqueue(ctx, domain.JobKindCreateAgent, nil)

	clock.Advance(8 * 24 * time.Hour)
	newID, _ := store.Enqueue(ctx, domain.JobKindCreateAgent, nil)
	_ = store.Complete(ctx, newID, domain.JobStatusCompleted)
	_ = store.StoreResult(ctx, newID, json.RawMessage(`{}`), domain.JobStatusCompleted)

	removed, err := store.Cleanup(ctx, clock.Now().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := store.GetResult(ctx, oldID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("old job still present: %v", err)
	}
	if r, err := store.GetResult(ctx, pendingID); err != nil || r.Status != domain.JobStatusPending {
		t.Errorf("pending job affected by cleanup: %+v, %v", r, err)
	}
	if r, err := store.GetResult(ctx, newID); err != nil || r.Status != domain.JobStatusCompleted {
		t.Errorf("recent result removed: %+v, %v", r, err)
	}
}
