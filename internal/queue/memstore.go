package queue

import (
	"context"
	"sync"
	"time"
)

// MemStore is the in-memory Store backing. All state lives in one
// mutex-guarded map; dequeue scans for the best ready task, which is fine
// for the queue depths this system runs at.
type MemStore struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{tasks: make(map[string]*Task)}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) Enqueue(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *t
	s.tasks[t.ID] = &copied
	return nil
}

func (s *MemStore) Dequeue(_ context.Context, now time.Time) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Task
	for _, t := range s.tasks {
		if !t.Ready(now) {
			continue
		}
		if best == nil || t.Priority > best.Priority ||
			(t.Priority == best.Priority && t.ScheduledAt.Before(best.ScheduledAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, nil
	}
	best.State = StateActive
	best.AttemptCount++
	best.UpdatedAt = now
	copied := *best
	return &copied, nil
}

func (s *MemStore) Ack(_ context.Context, id string) error {
	return s.transition(id, func(t *Task) {
		t.State = StateCompleted
		t.LastError = ""
	})
}

func (s *MemStore) Retry(_ context.Context, id string, nextAt time.Time, lastErr string) error {
	return s.transition(id, func(t *Task) {
		t.State = StateDelayed
		t.ScheduledAt = nextAt
		t.LastError = lastErr
	})
}

func (s *MemStore) Fail(_ context.Context, id string, lastErr string) error {
	return s.transition(id, func(t *Task) {
		t.State = StateFailed
		t.LastError = lastErr
	})
}

func (s *MemStore) transition(id string, mutate func(*Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	mutate(t)
	t.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	copied := *t
	return &copied, nil
}

func (s *MemStore) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if t.State != StateWaiting && t.State != StateDelayed {
		return ErrNotCancellable
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemStore) Counts(_ context.Context) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c Counts
	for _, t := range s.tasks {
		switch t.State {
		case StateWaiting:
			c.Waiting++
		case StateDelayed:
			c.Delayed++
		case StateActive:
			c.Active++
		case StateCompleted:
			c.Completed++
		case StateFailed:
			c.Failed++
		}
	}
	return c, nil
}

func (s *MemStore) ByBatch(_ context.Context, batchID string) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Task
	for _, t := range s.tasks {
		if t.BatchID == batchID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *MemStore) PurgeTerminal(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, t := range s.tasks {
		if t.State.Terminal() && t.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			purged++
		}
	}
	return purged, nil
}
