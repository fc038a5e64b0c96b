package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/jobradar/jobradar/pkg/logging"
)

// Extraction is the structured output produced from a listing's free text.
type Extraction struct {
	Title            string
	Description      string
	Requirements     []string
	Responsibilities []string
	Location         string
	WorkModel        string
	ExperienceLevel  string
	SalaryMin        int
	SalaryMax        int
	SalaryCurrency   string
	Technologies     []string
	Benefits         []string
	Confidence       float64
}

// ExtractOptions controls a single extractor call.
type ExtractOptions struct {
	SkipCache bool
}

// ExtractOutput carries the extractor's structured result together with the
// raw response, which is retained for audit even when parsing failed.
type ExtractOutput struct {
	Result      *Extraction
	RawResponse string
	CacheHit    bool
}

// Extractor is the external structured-extraction collaborator. The pipeline
// treats it as opaque; availability is its own concern.
type Extractor interface {
	Extract(ctx context.Context, text, sourceURL string, opts ExtractOptions) (ExtractOutput, error)
	Healthy(ctx context.Context) error
}

// TransientError marks a failure as retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether an error should be retried with backoff.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// Result is the outcome of one pipeline run. The cleaned text and raw
// extractor response are always carried for traceability.
type Result struct {
	Success     bool
	Data        *Extraction
	CleanedText string
	RawResponse string

	Quality    int
	Confidence float64
	CacheHit   bool
	Retries    int

	StageTimings map[string]time.Duration
	Duration     time.Duration

	Errors   []string
	Warnings []string
}

// Config holds the pipeline tuning knobs.
type Config struct {
	// ContentSelectors are tried in order during content extraction before
	// falling back to a stripped body.
	ContentSelectors []string
	// ProfileName selects the cleaning profile.
	ProfileName string

	MinConfidence     float64
	MinQuality        int
	MaxExtractRetries int

	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffJitterFrac float64
}

// DefaultConfig returns the tuning constants used in production. They are
// calibration candidates, not ground truth.
func DefaultConfig() Config {
	return Config{
		ContentSelectors:  []string{"div.job_description", "div.job-description", "section.description", "article", "main"},
		ProfileName:       "job-posting",
		MinConfidence:     0.5,
		MinQuality:        40,
		MaxExtractRetries: 2,
		BackoffInitial:    500 * time.Millisecond,
		BackoffMax:        8 * time.Second,
		BackoffJitterFrac: 0.2,
	}
}

// Pipeline turns (html, sourceURL) into a quality-gated structured record.
type Pipeline struct {
	extractor Extractor
	profiles  Profiles
	quality   QualityConfig
	cfg       Config
	sleep     func(ctx context.Context, d time.Duration) error
	log       *logging.Logger
}

// Option configures Pipeline.
type Option func(*Pipeline)

// WithConfig overrides the default tuning config.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) { p.cfg = cfg }
}

// WithProfiles overrides the cleaning profile set.
func WithProfiles(profiles Profiles) Option {
	return func(p *Pipeline) { p.profiles = profiles }
}

// WithQualityConfig overrides the quality scoring weights.
func WithQualityConfig(q QualityConfig) Option {
	return func(p *Pipeline) { p.quality = q }
}

// New wires a Pipeline around the given extraction collaborator.
func New(extractor Extractor, log *logging.Logger, opts ...Option) (*Pipeline, error) {
	if extractor == nil {
		return nil, fmt.Errorf("pipeline: extractor is required")
	}
	p := &Pipeline{
		extractor: extractor,
		profiles:  DefaultProfiles(),
		quality:   DefaultQualityConfig(),
		cfg:       DefaultConfig(),
		sleep:     sleepCtx,
		log:       log.With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process runs the four stages over one input. It never returns a Go error:
// failures are reported inside the Result. Stage 2 and 3 internal faults
// degrade to warnings; only an empty content extraction, extractor
// exhaustion or a failed quality gate mark the run unsuccessful.
func (p *Pipeline) Process(ctx context.Context, html, sourceURL string) Result {
	start := time.Now()
	res := Result{StageTimings: make(map[string]time.Duration)}
	profile := p.profiles.Get(p.cfg.ProfileName)

	// Stage 1: content extraction.
	stageStart := time.Now()
	text, warnings, err := extractContent(html, p.cfg.ContentSelectors, profile.RemoveSelectors)
	res.StageTimings["extract"] = time.Since(stageStart)
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("content extraction: %v", err))
		res.Duration = time.Since(start)
		return res
	}

	// Stage 2: cleaning. A profile fault never aborts the run.
	stageStart = time.Now()
	cleaned, err := profile.Apply(text)
	res.StageTimings["clean"] = time.Since(stageStart)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("cleaning failed, using raw content: %v", err))
		cleaned = text
	}
	res.CleanedText = cleaned

	// Stage 3: structured extraction with retry.
	stageStart = time.Now()
	p.runExtraction(ctx, cleaned, sourceURL, &res)
	res.StageTimings["ai"] = time.Since(stageStart)
	if res.Data == nil {
		res.Duration = time.Since(start)
		return res
	}

	// Stage 4: quality gate.
	stageStart = time.Now()
	res.Quality = p.quality.Score(res.Data)
	res.StageTimings["quality"] = time.Since(stageStart)
	if res.Quality < p.cfg.MinQuality {
		res.Errors = append(res.Errors, fmt.Sprintf("quality score %d below minimum %d", res.Quality, p.cfg.MinQuality))
	}

	res.Success = len(res.Errors) == 0
	res.Duration = time.Since(start)
	return res
}

// runExtraction calls the collaborator, retrying transient failures and
// low-confidence results while budget remains. Exhaustion is a reported
// failure, but the last raw response seen is preserved either way.
func (p *Pipeline) runExtraction(ctx context.Context, text, sourceURL string, res *Result) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		out, err := p.extractor.Extract(ctx, text, sourceURL, ExtractOptions{SkipCache: attempt > 0})
		if out.RawResponse != "" {
			res.RawResponse = out.RawResponse
		}
		if out.CacheHit {
			res.CacheHit = true
		}

		if err == nil && out.Result != nil {
			res.Confidence = out.Result.Confidence
			if out.Result.Confidence >= p.cfg.MinConfidence || attempt >= p.cfg.MaxExtractRetries {
				if out.Result.Confidence < p.cfg.MinConfidence {
					res.Warnings = append(res.Warnings,
						fmt.Sprintf("accepted low-confidence extraction (%.2f) after %d attempts", out.Result.Confidence, attempt+1))
				}
				res.Data = out.Result
				res.Retries = attempt
				return
			}
			p.log.Debug("extraction confidence below threshold, retrying",
				"confidence", out.Result.Confidence, "attempt", attempt+1, "url", sourceURL)
		} else {
			if err == nil {
				err = fmt.Errorf("extractor returned no result")
			}
			lastErr = err
			if !IsTransient(err) || attempt >= p.cfg.MaxExtractRetries {
				res.Errors = append(res.Errors, fmt.Sprintf("extraction failed after %d attempts: %v", attempt+1, lastErr))
				res.Retries = attempt
				return
			}
			p.log.Warn("extraction attempt failed, retrying", "attempt", attempt+1, "url", sourceURL, "err", err)
		}

		if err := p.sleep(ctx, backoff(p.cfg.BackoffInitial, p.cfg.BackoffMax, p.cfg.BackoffJitterFrac, attempt)); err != nil {
			msg := "extraction cancelled"
			if lastErr != nil {
				msg = fmt.Sprintf("extraction cancelled: last error: %v", lastErr)
			}
			res.Errors = append(res.Errors, msg)
			res.Retries = attempt
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func backoff(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	sleep := initial
	for i := 0; i < attempt && sleep < max; i++ {
		sleep *= 2
		if sleep > max {
			sleep = max
			break
		}
	}
	if jitterFrac <= 0 {
		return sleep
	}
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}

// Healthy checks the extraction collaborator's availability.
func (p *Pipeline) Healthy(ctx context.Context) error {
	return p.extractor.Healthy(ctx)
}
