package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisTaskPrefix  = "jobradar:q:task:"
	redisBatchPrefix = "jobradar:q:batch:"
	redisStatePrefix = "jobradar:q:state:"
	redisReadyKey    = "jobradar:q:ready"
	redisDelayedKey  = "jobradar:q:delayed"

	// priorityBias separates priority bands in the ready zset score so a
	// higher-priority task always sorts before an older lower-priority one.
	priorityBias = 1e13
)

// RedisStore is the Redis Store backing: one JSON value per task, a
// sorted-set ready queue ordered by priority then schedule time, and a
// delayed sorted-set scored by wake-up time. ZPOPMIN makes claiming a task
// atomic, so a task is never dispatched to two workers.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client) (*RedisStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("queue: redis client is required")
	}
	return &RedisStore{rdb: rdb}, nil
}

var _ Store = (*RedisStore)(nil)

func readyScore(t *Task) float64 {
	return -float64(t.Priority)*priorityBias + float64(t.ScheduledAt.UnixMilli())
}

func (s *RedisStore) Enqueue(ctx context.Context, t *Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("queue: marshal task: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, redisTaskPrefix+t.ID, raw, 0)
	pipe.SAdd(ctx, redisStatePrefix+string(t.State), t.ID)
	if t.State == StateDelayed {
		pipe.ZAdd(ctx, redisDelayedKey, redis.Z{Score: float64(t.ScheduledAt.UnixMilli()), Member: t.ID})
	} else {
		pipe.ZAdd(ctx, redisReadyKey, redis.Z{Score: readyScore(t), Member: t.ID})
	}
	if t.BatchID != "" {
		pipe.SAdd(ctx, redisBatchPrefix+t.BatchID, t.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	return nil
}

func (s *RedisStore) Dequeue(ctx context.Context, now time.Time) (*Task, error) {
	if err := s.promoteDue(ctx, now); err != nil {
		return nil, err
	}

	popped, err := s.rdb.ZPopMin(ctx, redisReadyKey, 1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: pop ready: %w", err)
	}
	if len(popped) == 0 {
		return nil, nil
	}
	id, _ := popped[0].Member.(string)

	t, err := s.load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			// Cancelled between promotion and claim; nothing to run.
			return nil, nil
		}
		return nil, err
	}
	if !t.ScheduledAt.After(now) {
		prev := t.State
		t.State = StateActive
		t.AttemptCount++
		t.UpdatedAt = now
		if err := s.save(ctx, t, prev); err != nil {
			return nil, err
		}
		return t, nil
	}
	// Not due yet; put it back.
	if err := s.rdb.ZAdd(ctx, redisReadyKey, redis.Z{Score: readyScore(t), Member: id}).Err(); err != nil {
		return nil, fmt.Errorf("queue: requeue: %w", err)
	}
	return nil, nil
}

// promoteDue moves delayed tasks whose wake-up time has passed into the
// ready queue.
func (s *RedisStore) promoteDue(ctx context.Context, now time.Time) error {
	due, err := s.rdb.ZRangeByScore(ctx, redisDelayedKey, &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return fmt.Errorf("queue: scan delayed: %w", err)
	}
	for _, id := range due {
		t, err := s.load(ctx, id)
		if err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				s.rdb.ZRem(ctx, redisDelayedKey, id)
				continue
			}
			return err
		}
		prev := t.State
		t.State = StateWaiting
		if err := s.save(ctx, t, prev); err != nil {
			return err
		}
		pipe := s.rdb.TxPipeline()
		pipe.ZRem(ctx, redisDelayedKey, id)
		pipe.ZAdd(ctx, redisReadyKey, redis.Z{Score: readyScore(t), Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("queue: promote %s: %w", id, err)
		}
	}
	return nil
}

func (s *RedisStore) Ack(ctx context.Context, id string) error {
	return s.transition(ctx, id, func(t *Task) {
		t.State = StateCompleted
		t.LastError = ""
	})
}

func (s *RedisStore) Retry(ctx context.Context, id string, nextAt time.Time, lastErr string) error {
	err := s.transition(ctx, id, func(t *Task) {
		t.State = StateDelayed
		t.ScheduledAt = nextAt
		t.LastError = lastErr
	})
	if err != nil {
		return err
	}
	return s.rdb.ZAdd(ctx, redisDelayedKey, redis.Z{Score: float64(nextAt.UnixMilli()), Member: id}).Err()
}

func (s *RedisStore) Fail(ctx context.Context, id string, lastErr string) error {
	return s.transition(ctx, id, func(t *Task) {
		t.State = StateFailed
		t.LastError = lastErr
	})
}

func (s *RedisStore) transition(ctx context.Context, id string, mutate func(*Task)) error {
	t, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	prev := t.State
	mutate(t)
	t.UpdatedAt = time.Now()
	return s.save(ctx, t, prev)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Task, error) {
	return s.load(ctx, id)
}

func (s *RedisStore) Cancel(ctx context.Context, id string) error {
	t, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if t.State != StateWaiting && t.State != StateDelayed {
		return ErrNotCancellable
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, redisTaskPrefix+id)
	pipe.SRem(ctx, redisStatePrefix+string(t.State), id)
	pipe.ZRem(ctx, redisReadyKey, id)
	pipe.ZRem(ctx, redisDelayedKey, id)
	if t.BatchID != "" {
		pipe.SRem(ctx, redisBatchPrefix+t.BatchID, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: cancel %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Counts(ctx context.Context) (Counts, error) {
	states := []State{StateWaiting, StateActive, StateCompleted, StateFailed, StateDelayed}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(states))
	for i, state := range states {
		cmds[i] = pipe.SCard(ctx, redisStatePrefix+string(state))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return Counts{}, fmt.Errorf("queue: counts: %w", err)
	}
	return Counts{
		Waiting:   int(cmds[0].Val()),
		Active:    int(cmds[1].Val()),
		Completed: int(cmds[2].Val()),
		Failed:    int(cmds[3].Val()),
		Delayed:   int(cmds[4].Val()),
	}, nil
}

func (s *RedisStore) ByBatch(ctx context.Context, batchID string) ([]Task, error) {
	ids, err := s.rdb.SMembers(ctx, redisBatchPrefix+batchID).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: batch members: %w", err)
	}
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.load(ctx, id)
		if err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

func (s *RedisStore) PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	purged := 0
	for _, state := range []State{StateCompleted, StateFailed} {
		ids, err := s.rdb.SMembers(ctx, redisStatePrefix+string(state)).Result()
		if err != nil {
			return purged, fmt.Errorf("queue: purge scan: %w", err)
		}
		for _, id := range ids {
			t, err := s.load(ctx, id)
			if errors.Is(err, ErrTaskNotFound) {
				s.rdb.SRem(ctx, redisStatePrefix+string(state), id)
				continue
			}
			if err != nil {
				return purged, err
			}
			if !t.UpdatedAt.Before(cutoff) {
				continue
			}
			pipe := s.rdb.TxPipeline()
			pipe.Del(ctx, redisTaskPrefix+id)
			pipe.SRem(ctx, redisStatePrefix+string(state), id)
			if t.BatchID != "" {
				pipe.SRem(ctx, redisBatchPrefix+t.BatchID, id)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return purged, fmt.Errorf("queue: purge %s: %w", id, err)
			}
			purged++
		}
	}
	return purged, nil
}

func (s *RedisStore) load(ctx context.Context, id string) (*Task, error) {
	raw, err := s.rdb.Get(ctx, redisTaskPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("queue: load task %s: %w", id, err)
	}
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("queue: decode task %s: %w", id, err)
	}
	return &t, nil
}

func (s *RedisStore) save(ctx context.Context, t *Task, prev State) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("queue: marshal task: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, redisTaskPrefix+t.ID, raw, 0)
	if prev != t.State {
		pipe.SMove(ctx, redisStatePrefix+string(prev), redisStatePrefix+string(t.State), t.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: save task %s: %w", t.ID, err)
	}
	return nil
}
