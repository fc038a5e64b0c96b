package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func mustTask(t *testing.T, req EnqueueRequest, now time.Time) *Task {
	t.Helper()
	task, err := newTask(req, now)
	if err != nil {
		t.Fatalf("newTask: %v", err)
	}
	return task
}

func TestMemStore_DelayedTasksWaitForTheirSchedule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemStore()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	delayed := mustTask(t, EnqueueRequest{
		Kind: KindScrapeSite, Payload: ScrapeSitePayload{Source: "dev.bg"},
		Delay: time.Hour,
	}, now)
	if delayed.State != StateDelayed {
		t.Fatalf("state = %s", delayed.State)
	}
	if err := store.Enqueue(ctx, delayed); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if got, _ := store.Dequeue(ctx, now); got != nil {
		t.Fatalf("not due yet, dequeued %+v", got)
	}
	if got, _ := store.Dequeue(ctx, now.Add(30*time.Minute)); got != nil {
		t.Fatalf("still not due, dequeued %+v", got)
	}
	got, err := store.Dequeue(ctx, now.Add(time.Hour))
	if err != nil || got == nil {
		t.Fatalf("due task must dequeue: %v %v", got, err)
	}
	if got.State != StateActive || got.AttemptCount != 1 {
		t.Fatalf("dequeued = %+v", got)
	}
}

func TestMemStore_RetryGoesBackToDelayed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemStore()
	now := time.Now()

	task := mustTask(t, EnqueueRequest{Kind: KindExtractAI, Payload: ExtractAIPayload{Content: "x"}}, now)
	_ = store.Enqueue(ctx, task)
	claimed, _ := store.Dequeue(ctx, now)
	if claimed == nil {
		t.Fatal("expected a task")
	}

	nextAt := now.Add(time.Minute)
	if err := store.Retry(ctx, claimed.ID, nextAt, "transient"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	stored, _ := store.Get(ctx, claimed.ID)
	if stored.State != StateDelayed || !stored.ScheduledAt.Equal(nextAt) || stored.LastError != "transient" {
		t.Fatalf("stored = %+v", stored)
	}

	counts, _ := store.Counts(ctx)
	if counts.Delayed != 1 || counts.Active != 0 {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestMemStore_CountsAndPurge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemStore()
	now := time.Now()

	done := mustTask(t, EnqueueRequest{Kind: KindHealthCheck, Payload: HealthCheckPayload{}}, now)
	_ = store.Enqueue(ctx, done)
	claimed, _ := store.Dequeue(ctx, now)
	_ = store.Ack(ctx, claimed.ID)

	waiting := mustTask(t, EnqueueRequest{Kind: KindHealthCheck, Payload: HealthCheckPayload{}}, now)
	_ = store.Enqueue(ctx, waiting)

	counts, _ := store.Counts(ctx)
	if counts.Completed != 1 || counts.Waiting != 1 {
		t.Fatalf("counts = %+v", counts)
	}

	// Too-recent terminal tasks survive the purge.
	purged, err := store.PurgeTerminal(ctx, now.Add(-time.Hour))
	if err != nil || purged != 0 {
		t.Fatalf("purged=%d err=%v", purged, err)
	}
	purged, err = store.PurgeTerminal(ctx, time.Now().Add(time.Hour))
	if err != nil || purged != 1 {
		t.Fatalf("purged=%d err=%v", purged, err)
	}
	if _, err := store.Get(ctx, claimed.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("terminal task should be purged, got %v", err)
	}
	// The waiting task is never purged.
	if _, err := store.Get(ctx, waiting.ID); err != nil {
		t.Fatalf("waiting task must survive: %v", err)
	}
}

func TestMemStore_ByBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemStore()
	now := time.Now()

	for i := 0; i < 3; i++ {
		task := mustTask(t, EnqueueRequest{
			Kind: KindExtractAI, Payload: ExtractAIPayload{Content: "x"}, BatchID: "b1",
		}, now)
		_ = store.Enqueue(ctx, task)
	}
	other := mustTask(t, EnqueueRequest{Kind: KindHealthCheck, Payload: HealthCheckPayload{}}, now)
	_ = store.Enqueue(ctx, other)

	members, err := store.ByBatch(ctx, "b1")
	if err != nil || len(members) != 3 {
		t.Fatalf("members=%d err=%v", len(members), err)
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	b := Backoff{Base: time.Second, Max: 10 * time.Second}
	if d := b.Delay(0); d != time.Second {
		t.Fatalf("attempt 0 = %v", d)
	}
	if d := b.Delay(2); d != 4*time.Second {
		t.Fatalf("attempt 2 = %v", d)
	}
	if d := b.Delay(10); d != 10*time.Second {
		t.Fatalf("attempt 10 should cap at max, got %v", d)
	}

	jittered := Backoff{Base: time.Second, Max: 10 * time.Second, JitterFrac: 0.2}
	for i := 0; i < 50; i++ {
		d := jittered.Delay(1)
		if d < 1600*time.Millisecond || d > 2400*time.Millisecond {
			t.Fatalf("jittered delay out of +/-20%% band: %v", d)
		}
	}
}

func TestComputeHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		counts     Counts
		paused     bool
		wantStatus string
	}{
		{name: "no history", counts: Counts{}, wantStatus: StatusHealthy},
		{name: "all succeeding", counts: Counts{Completed: 50}, wantStatus: StatusHealthy},
		{name: "some failures", counts: Counts{Completed: 60, Failed: 40}, wantStatus: StatusDegraded},
		{name: "mostly failing", counts: Counts{Completed: 10, Failed: 90}, wantStatus: StatusUnhealthy},
		{name: "paused but succeeding sits at the healthy threshold", counts: Counts{Completed: 50}, paused: true, wantStatus: StatusHealthy},
		{name: "paused with some failures", counts: Counts{Completed: 80, Failed: 20}, paused: true, wantStatus: StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := computeHealth(tt.counts, tt.paused)
			if h.Score < 0 || h.Score > 100 {
				t.Fatalf("score out of range: %d", h.Score)
			}
			if h.Status != tt.wantStatus {
				t.Fatalf("status = %s (score %d), want %s", h.Status, h.Score, tt.wantStatus)
			}
		})
	}
}

func TestAggregateBatch(t *testing.T) {
	t.Parallel()

	mk := func(state State) Task { return Task{State: state} }
	status := aggregateBatch("b", []Task{mk(StateCompleted), mk(StateCompleted), mk(StateCompleted)})
	if status.Status != "completed" {
		t.Fatalf("status = %s", status.Status)
	}
	status = aggregateBatch("b", []Task{mk(StateCompleted), mk(StateFailed)})
	if status.Status != "partial" {
		t.Fatalf("status = %s", status.Status)
	}
	status = aggregateBatch("b", []Task{mk(StateFailed)})
	if status.Status != "failed" {
		t.Fatalf("status = %s", status.Status)
	}
	status = aggregateBatch("b", []Task{mk(StateCompleted), mk(StateActive)})
	if status.Status != "running" {
		t.Fatalf("status = %s", status.Status)
	}
	if aggregateBatch("b", nil).Status != "empty" {
		t.Fatal("empty batch")
	}
}
