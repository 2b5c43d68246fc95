package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/idhash"
	"airdrop-optimizer/internal/observability"
	"airdrop-optimizer/internal/storage"
)

// Key layout, relative to the prefix:
//
//	pending        list of PENDING job ids, oldest first
//	job:<id>       hash: kind, payload, status, created_at, updated_at
//	result:<id>    hash: result, status, completed_at
//	results        zset of job ids scored by completed_at
//	finished       zset of terminal job ids scored by updated_at
//
// Timestamps are unix nanoseconds.

// dequeueScript pops ids until one is still PENDING and claims it.
var dequeueScript = redis.NewScript(`
local id = redis.call('LPOP', KEYS[1])
while id do
  local key = ARGV[1] .. id
  if redis.call('HGET', key, 'status') == 'PENDING' then
    redis.call('HSET', key, 'status', 'PROCESSING', 'updated_at', ARGV[2])
    return id
  end
  id = redis.call('LPOP', KEYS[1])
end
return false
`)

// completeScript returns 0 for an unknown job.
var completeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'updated_at', ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
return 1
`)

// storeResultScript leaves an identical result untouched.
var storeResultScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'result', 'status')
if cur[1] == ARGV[1] and cur[2] == ARGV[2] then
  return 0
end
redis.call('HSET', KEYS[1], 'result', ARGV[1], 'status', ARGV[2], 'completed_at', ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
return 1
`)

// JobStore implements storage.JobStore using Redis.
type JobStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewJobStore creates a job store. An empty prefix uses DefaultPrefix.
func NewJobStore(client *redis.Client, prefix string) *JobStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &JobStore{client: client, prefix: prefix, now: time.Now}
}

// Compile-time interface check.
var _ storage.JobStore = (*JobStore)(nil)

func (s *JobStore) pendingKey() string { return s.prefix + "pending" }
func (s *JobStore) jobKey(id string) string { return s.prefix + "job:" + id }
func (s *JobStore) resultKey(id string) string { return s.prefix + "result:" + id }
func (s *JobStore) resultsIndex() string { return s.prefix + "results" }
func (s *JobStore) finishedIndex() string { return s.prefix + "finished" }
func (s *JobStore) stamp() string { return strconv.FormatInt(s.now().UnixNano(), 10) }

// Enqueue adds a PENDING job and returns its id.
func (s *JobStore) Enqueue(ctx context.Context, kind domain.JobKind, payload json.RawMessage) (string, error) {
	if kind == "" {
		return "", storage.ErrInvalidInput
	}
	compacted, err := compactJSON(payload)
	if err != nil {
		return "", err
	}

	start := time.Now()
	id := idhash.NewJobID()
	ts := s.stamp()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.jobKey(id),
			"kind", string(kind),
			"payload", string(compacted),
			"status", string(domain.JobStatusPending),
			"created_at", ts,
			"updated_at", ts,
		)
		pipe.RPush(ctx, s.pendingKey(), id)
		return nil
	})
	recordQuery("enqueue", start, err)
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// Dequeue claims the oldest PENDING job.
func (s *JobStore) Dequeue(ctx context.Context) (*domain.Job, error) {
	start := time.Now()
	id, err := dequeueScript.Run(ctx, s.client, []string{s.pendingKey()}, s.prefix+"job:", s.stamp()).Text()
	recordQuery("dequeue", start, err)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return s.Get(ctx, id)
}

// Complete sets a terminal status on a job.
func (s *JobStore) Complete(ctx context.Context, jobID string, status domain.JobStatus) error {
	if !status.IsTerminal() {
		return storage.ErrInvalidInput
	}

	n, err := completeScript.Run(ctx, s.client,
		[]string{s.jobKey(jobID), s.finishedIndex()},
		string(status), s.stamp(), jobID,
	).Int()
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Get retrieves a job by id.
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	fields, err := s.client.HGetAll(ctx, s.jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}

	job := &domain.Job{
		JobID:     jobID,
		Kind:      domain.JobKind(fields["kind"]),
		Status:    domain.JobStatus(fields["status"]),
		CreatedAt: parseStamp(fields["created_at"]),
		UpdatedAt: parseStamp(fields["updated_at"]),
	}
	if p := fields["payload"]; p != "" {
		job.Payload = json.RawMessage(p)
	}
	return job, nil
}

// StoreResult upserts a job result.
func (s *JobStore) StoreResult(ctx context.Context, jobID string, result json.RawMessage, status domain.JobStatus) error {
	if jobID == "" || !status.IsValid() {
		return storage.ErrInvalidInput
	}
	compacted, err := compactJSON(result)
	if err != nil {
		return err
	}

	start := time.Now()
	err = storeResultScript.Run(ctx, s.client,
		[]string{s.resultKey(jobID), s.resultsIndex()},
		string(compacted), string(status), s.stamp(), jobID,
	).Err()
	recordQuery("store_result", start, err)
	if err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

// GetResult returns the stored result, a PENDING placeholder for a known
// job without one, or ErrNotFound.
func (s *JobStore) GetResult(ctx context.Context, jobID string) (*domain.JobResult, error) {
	fields, err := s.client.HGetAll(ctx, s.resultKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	if len(fields) > 0 {
		completedAt := parseStamp(fields["completed_at"])
		r := &domain.JobResult{
			JobID:       jobID,
			Status:      domain.JobStatus(fields["status"]),
			CompletedAt: &completedAt,
		}
		if raw := fields["result"]; raw != "" {
			r.Result = json.RawMessage(raw)
		}
		return r, nil
	}

	n, err := s.client.Exists(ctx, s.jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("check job: %w", err)
	}
	if n == 0 {
		return nil, storage.ErrNotFound
	}
	return &domain.JobResult{JobID: jobID, Status: domain.JobStatusPending}, nil
}

// Cleanup removes results completed before olderThan, then terminal jobs
// last updated before olderThan that no longer have a result.
func (s *JobStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	cutoff := "(" + strconv.FormatInt(olderThan.UnixNano(), 10)
	rangeBy := &redis.ZRangeBy{Min: "-inf", Max: cutoff}

	start := time.Now()
	expired, err := s.client.ZRangeByScore(ctx, s.resultsIndex(), rangeBy).Result()
	if err != nil {
		return 0, fmt.Errorf("list expired results: %w", err)
	}

	removed := 0
	if len(expired) > 0 {
		keys := make([]string, 0, len(expired))
		members := make([]interface{}, 0, len(expired))
		for _, id := range expired {
			keys = append(keys, s.resultKey(id))
			members = append(members, id)
		}
		var del *redis.IntCmd
		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			del = pipe.Del(ctx, keys...)
			pipe.ZRem(ctx, s.resultsIndex(), members...)
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("delete expired results: %w", err)
		}
		removed = int(del.Val())
	}

	finished, err := s.client.ZRangeByScore(ctx, s.finishedIndex(), rangeBy).Result()
	if err != nil {
		return removed, fmt.Errorf("list finished jobs: %w", err)
	}
	for _, id := range finished {
		n, err := s.client.Exists(ctx, s.resultKey(id)).Result()
		if err != nil {
			return removed, fmt.Errorf("check result: %w", err)
		}
		if n > 0 {
			continue
		}
		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.jobKey(id))
			pipe.ZRem(ctx, s.finishedIndex(), id)
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("delete job %s: %w", id, err)
		}
	}
	recordQuery("cleanup", start, nil)

	return removed, nil
}

func parseStamp(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func compactJSON(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, storage.ErrInvalidInput
	}
	return buf.Bytes(), nil
}

func recordQuery(operation string, start time.Time, err error) {
	if errors.Is(err, redis.Nil) {
		err = nil
	}
	observability.RecordDBQuery("redis", operation, time.Since(start).Seconds(), err)
}
