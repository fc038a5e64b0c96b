package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jobradar/jobradar/pkg/logging"
)

// Handler executes one task. A returned error makes the attempt eligible
// for retry under the task's backoff policy.
type Handler func(ctx context.Context, t *Task) error

// Queue drains a Store with a fixed worker pool and exposes the
// introspection surface: counts, batch status, health, pause/resume.
type Queue struct {
	store        Store
	handlers     map[Kind]Handler
	workers      int
	pollInterval time.Duration
	taskTimeout  time.Duration
	retention    time.Duration
	clock        func() time.Time
	log          *logging.Logger

	paused atomic.Bool
	wg     sync.WaitGroup
}

// Option configures Queue.
type Option func(*Queue)

// WithWorkers sets the pool size.
func WithWorkers(n int) Option {
	return func(q *Queue) { q.workers = n }
}

// WithPollInterval sets the idle polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) { q.pollInterval = d }
}

// WithTaskTimeout bounds each handler invocation.
func WithTaskTimeout(d time.Duration) Option {
	return func(q *Queue) { q.taskTimeout = d }
}

// WithRetention sets how long terminal tasks are kept before purging.
func WithRetention(d time.Duration) Option {
	return func(q *Queue) { q.retention = d }
}

// WithClock sets a custom clock.
func WithClock(clock func() time.Time) Option {
	return func(q *Queue) { q.clock = clock }
}

// New builds a Queue over the given store.
func New(store Store, log *logging.Logger, opts ...Option) (*Queue, error) {
	if store == nil {
		return nil, fmt.Errorf("queue: store is required")
	}
	q := &Queue{
		store:        store,
		handlers:     make(map[Kind]Handler),
		workers:      4,
		pollInterval: 500 * time.Millisecond,
		taskTimeout:  5 * time.Minute,
		retention:    time.Hour,
		clock:        time.Now,
		log:          log.With("component", "queue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// RegisterHandler binds a task kind to its handler. Must be called before
// Start; the handler map is not guarded afterwards.
func (q *Queue) RegisterHandler(kind Kind, h Handler) error {
	if h == nil {
		return fmt.Errorf("queue: nil handler for %s", kind)
	}
	if _, exists := q.handlers[kind]; exists {
		return fmt.Errorf("queue: handler for %s already registered", kind)
	}
	q.handlers[kind] = h
	return nil
}

// Enqueue persists a new task and returns its id.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	t, err := newTask(req, q.clock())
	if err != nil {
		return "", err
	}
	if err := q.store.Enqueue(ctx, t); err != nil {
		return "", err
	}
	q.log.Debug("task enqueued", "id", t.ID, "kind", t.Kind, "priority", t.Priority, "state", t.State)
	return t.ID, nil
}

// EnqueueBatch fans out one extract-ai task per URL under a shared batch id
// and returns the id.
func (q *Queue) EnqueueBatch(ctx context.Context, payload ProcessBatchPayload) (string, error) {
	batchID := payload.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	if _, err := q.Enqueue(ctx, EnqueueRequest{
		Kind:    KindProcessBatch,
		Payload: payload,
		BatchID: batchID,
	}); err != nil {
		return "", err
	}
	return batchID, nil
}

// Start launches the worker pool and the terminal-task janitor. Workers run
// until ctx is cancelled; Wait blocks until they have drained.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(worker int) {
			defer q.wg.Done()
			q.runWorker(ctx, worker)
		}(i)
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.runJanitor(ctx)
	}()
	q.log.Info("queue started", "workers", q.workers)
}

// Wait blocks until all workers have exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) runWorker(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		if q.paused.Load() {
			q.idle(ctx)
			continue
		}
		t, err := q.store.Dequeue(ctx, q.clock())
		if err != nil {
			q.log.Warn("dequeue failed", "worker", worker, "err", err)
			q.idle(ctx)
			continue
		}
		if t == nil {
			q.idle(ctx)
			continue
		}
		q.runTask(ctx, t)
	}
}

func (q *Queue) runTask(ctx context.Context, t *Task) {
	handler, ok := q.handlers[t.Kind]
	if !ok {
		q.log.Error("no handler for task kind", "id", t.ID, "kind", t.Kind)
		if err := q.store.Fail(ctx, t.ID, fmt.Sprintf("no handler for kind %s", t.Kind)); err != nil {
			q.log.Error("failed to mark task failed", "id", t.ID, "err", err)
		}
		return
	}

	taskCtx := ctx
	if q.taskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, q.taskTimeout)
		defer cancel()
	}

	err := runHandler(taskCtx, handler, t)
	if err == nil {
		if ackErr := q.store.Ack(ctx, t.ID); ackErr != nil {
			q.log.Error("failed to ack task", "id", t.ID, "err", ackErr)
		}
		return
	}

	if t.AttemptCount < t.MaxAttempts {
		delay := t.Backoff.Delay(t.AttemptCount - 1)
		nextAt := q.clock().Add(delay)
		q.log.Warn("task attempt failed, retrying",
			"id", t.ID, "kind", t.Kind, "attempt", t.AttemptCount, "maxAttempts", t.MaxAttempts,
			"retryIn", delay, "err", err)
		if retryErr := q.store.Retry(ctx, t.ID, nextAt, err.Error()); retryErr != nil {
			q.log.Error("failed to schedule retry", "id", t.ID, "err", retryErr)
		}
		return
	}

	q.log.Error("task exhausted retries",
		"id", t.ID, "kind", t.Kind, "attempts", t.AttemptCount, "err", err)
	if failErr := q.store.Fail(ctx, t.ID, err.Error()); failErr != nil {
		q.log.Error("failed to mark task failed", "id", t.ID, "err", failErr)
	}
}

// runHandler converts a handler panic into an ordinary failure so one bad
// payload cannot take a worker down.
func runHandler(ctx context.Context, h Handler, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, t)
}

func (q *Queue) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := q.clock().Add(-q.retention)
			purged, err := q.store.PurgeTerminal(ctx, cutoff)
			if err != nil {
				q.log.Warn("terminal task purge failed", "err", err)
				continue
			}
			if purged > 0 {
				q.log.Debug("purged terminal tasks", "count", purged)
			}
		}
	}
}

func (q *Queue) idle(ctx context.Context) {
	t := time.NewTimer(q.pollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Pause stops dispatching new tasks. Running handlers finish normally.
func (q *Queue) Pause() {
	q.paused.Store(true)
	q.log.Info("queue paused")
}

// Resume re-enables dispatch.
func (q *Queue) Resume() {
	q.paused.Store(false)
	q.log.Info("queue resumed")
}

// Paused reports whether dispatch is paused.
func (q *Queue) Paused() bool {
	return q.paused.Load()
}

// Cancel removes a waiting or delayed task. Active tasks are only ever
// cancelled cooperatively via context.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	return q.store.Cancel(ctx, id)
}

// Task returns a task by id.
func (q *Queue) Task(ctx context.Context, id string) (*Task, error) {
	return q.store.Get(ctx, id)
}

// Counts reports per-state task totals.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	return q.store.Counts(ctx)
}

// Health derives the 0-100 queue health score from the current counts and
// paused state.
func (q *Queue) Health(ctx context.Context) (Health, error) {
	counts, err := q.store.Counts(ctx)
	if err != nil {
		return Health{}, err
	}
	return computeHealth(counts, q.paused.Load()), nil
}

// BatchStatus aggregates the states of every task sharing a batch id.
func (q *Queue) BatchStatus(ctx context.Context, batchID string) (BatchStatus, error) {
	tasks, err := q.store.ByBatch(ctx, batchID)
	if err != nil {
		return BatchStatus{}, err
	}
	return aggregateBatch(batchID, tasks), nil
}
