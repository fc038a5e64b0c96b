package queue

import (
	"context"
	"errors"
	"time"
)

// ErrTaskNotFound is returned for lookups of unknown task ids.
var ErrTaskNotFound = errors.New("task not found")

// ErrNotCancellable is returned when cancelling a task that already started
// or finished. Running handlers are cancelled cooperatively, never yanked.
var ErrNotCancellable = errors.New("task is not waiting or delayed")

// Counts are the per-state task totals.
type Counts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// Store is the minimal backing-queue contract. Scheduler and worker logic
// depend only on this, so the concrete backing (in-memory, Redis) is
// swappable.
type Store interface {
	// Enqueue persists a new task in its initial state.
	Enqueue(ctx context.Context, t *Task) error
	// Dequeue claims the highest-priority ready task and marks it active.
	// Returns (nil, nil) when nothing is ready.
	Dequeue(ctx context.Context, now time.Time) (*Task, error)
	// Ack marks an active task completed.
	Ack(ctx context.Context, id string) error
	// Retry schedules an active task for another attempt.
	Retry(ctx context.Context, id string, nextAt time.Time, lastErr string) error
	// Fail marks an active task terminally failed.
	Fail(ctx context.Context, id string, lastErr string) error
	// Get returns a task by id.
	Get(ctx context.Context, id string) (*Task, error)
	// Cancel removes a waiting or delayed task.
	Cancel(ctx context.Context, id string) error
	// Counts reports per-state totals.
	Counts(ctx context.Context) (Counts, error)
	// ByBatch lists every task sharing a batch id.
	ByBatch(ctx context.Context, batchID string) ([]Task, error)
	// PurgeTerminal deletes terminal tasks finished before the cutoff and
	// returns how many were removed.
	PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error)
}
