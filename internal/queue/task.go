package queue

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the schedulable work types.
type Kind string

const (
	KindScrapeSite   Kind = "scrape-site"
	KindExtractAI    Kind = "extract-ai"
	KindProcessBatch Kind = "process-batch"
	KindHealthCheck  Kind = "health-check"
)

// State is a task's lifecycle position. Completed and failed are terminal.
type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Backoff is a declared retry policy: exponential from Base, capped at Max,
// with +/- JitterFrac applied to every delay.
type Backoff struct {
	Base       time.Duration `json:"base"`
	Max        time.Duration `json:"max"`
	JitterFrac float64       `json:"jitterFrac"`
}

// DefaultBackoff is the policy applied when a task declares none.
func DefaultBackoff() Backoff {
	return Backoff{Base: 2 * time.Second, Max: 5 * time.Minute, JitterFrac: 0.2}
}

// Delay returns the sleep before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoff().Base
	}
	max := b.Max
	if max <= 0 {
		max = DefaultBackoff().Max
	}
	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
		if d > max {
			d = max
			break
		}
	}
	if b.JitterFrac > 0 {
		d = time.Duration(float64(d) * (1 + (rand.Float64()*2-1)*b.JitterFrac))
	}
	return d
}

// Task is one schedulable unit of work.
type Task struct {
	ID           string          `json:"id"`
	Kind         Kind            `json:"kind"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Priority     int             `json:"priority"`
	AttemptCount int             `json:"attemptCount"`
	MaxAttempts  int             `json:"maxAttempts"`
	Backoff      Backoff         `json:"backoff"`
	ScheduledAt  time.Time       `json:"scheduledAt"`
	BatchID      string          `json:"batchId,omitempty"`

	State     State     `json:"state"`
	LastError string    `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Ready reports whether the task is eligible for dispatch at the given time.
func (t *Task) Ready(now time.Time) bool {
	if t.State != StateWaiting && t.State != StateDelayed {
		return false
	}
	return !t.ScheduledAt.After(now)
}

// ScrapeSitePayload drives a scrape-site task.
type ScrapeSitePayload struct {
	Source      string `json:"source"`
	TriggeredBy string `json:"triggeredBy"`
	Options     struct {
		IncludeDetails bool `json:"includeDetails"`
	} `json:"options"`
}

// ExtractAIPayload drives an extract-ai task. RetryCount is the retry number
// this payload was written at; the live attempt counter stays on the Task.
type ExtractAIPayload struct {
	VacancyID   string `json:"vacancyId,omitempty"`
	ContentHash string `json:"contentHash"`
	Content     string `json:"content"`
	SourceURL   string `json:"sourceUrl"`
	Priority    int    `json:"priority"`
	RetryCount  int    `json:"retryCount"`
	MaxRetries  int    `json:"maxRetries"`
	BatchID     string `json:"batchId,omitempty"`
}

// ProcessBatchPayload fans out N extraction units under one batch id.
type ProcessBatchPayload struct {
	BatchID string   `json:"batchId"`
	URLs    []string `json:"urls"`
	Options struct {
		MaxConcurrent        int           `json:"maxConcurrent"`
		DelayBetweenRequests time.Duration `json:"delayBetweenRequests"`
		EnableAIExtraction   bool          `json:"enableAiExtraction"`
		QualityThreshold     int           `json:"qualityThreshold"`
	} `json:"options"`
}

// HealthCheckPayload is empty; the task kind is the instruction.
type HealthCheckPayload struct{}

// EnqueueRequest describes a task to enqueue. Payload may be any
// JSON-marshalable value, typically one of the payload structs above.
type EnqueueRequest struct {
	Kind        Kind
	Payload     any
	Priority    int
	MaxAttempts int
	Backoff     Backoff
	Delay       time.Duration
	BatchID     string
}

func newTask(req EnqueueRequest, now time.Time) (*Task, error) {
	if req.Kind == "" {
		return nil, fmt.Errorf("queue: task kind is required")
	}
	var payload json.RawMessage
	if req.Payload != nil {
		raw, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("queue: marshal payload: %w", err)
		}
		payload = raw
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := req.Backoff
	if backoff.Base <= 0 {
		backoff = DefaultBackoff()
	}
	state := StateWaiting
	scheduledAt := now
	if req.Delay > 0 {
		state = StateDelayed
		scheduledAt = now.Add(req.Delay)
	}
	return &Task{
		ID:          uuid.NewString(),
		Kind:        req.Kind,
		Payload:     payload,
		Priority:    req.Priority,
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		ScheduledAt: scheduledAt,
		BatchID:     req.BatchID,
		State:       state,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// DecodePayload unmarshals the task payload into out.
func (t *Task) DecodePayload(out any) error {
	if len(t.Payload) == 0 {
		return fmt.Errorf("queue: task %s has no payload", t.ID)
	}
	if err := json.Unmarshal(t.Payload, out); err != nil {
		return fmt.Errorf("queue: decode %s payload: %w", t.Kind, err)
	}
	return nil
}
