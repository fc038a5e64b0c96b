package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jobradar/jobradar/pkg/logging"
)

const testHTML = `<html><body>
<nav>Home | Jobs | About</nav>
<div class="job_description">
We are looking for a Senior Go Developer to join our platform team in Sofia.
You will design and operate high-throughput ingestion services written in Go,
backed by PostgreSQL and Redis, deployed on Kubernetes. We offer a hybrid
work model, 25 days of vacation and a learning budget. Apply now!
</div>
<footer>© 2026</footer>
</body></html>`

type call struct {
	text string
	opts ExtractOptions
}

type step struct {
	out    ExtractOutput
	err    error
	panics bool
}

type scriptedExtractor struct {
	mu    sync.Mutex
	steps []step
	calls []call
}

func (s *scriptedExtractor) Extract(_ context.Context, text, _ string, opts ExtractOptions) (ExtractOutput, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{text: text, opts: opts})
	idx := len(s.calls) - 1
	s.mu.Unlock()

	st := s.steps[len(s.steps)-1]
	if idx < len(s.steps) {
		st = s.steps[idx]
	}
	if st.panics {
		panic("scripted panic")
	}
	return st.out, st.err
}

func (s *scriptedExtractor) Healthy(context.Context) error { return nil }

func fullExtraction(confidence float64) *Extraction {
	return &Extraction{
		Title:           "Senior Go Developer",
		Description:     strings.Repeat("Design and operate ingestion services. ", 8),
		Requirements:    []string{"5+ years Go", "Kubernetes in production"},
		Location:        "Sofia",
		ExperienceLevel: "senior",
		SalaryMin:       5000,
		SalaryMax:       7000,
		SalaryCurrency:  "BGN",
		Technologies:    []string{"Go", "PostgreSQL", "Redis", "Kubernetes"},
		Confidence:      confidence,
	}
}

func newTestPipeline(t *testing.T, ex Extractor, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(ex, logging.New("error"), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestProcess_HappyPath(t *testing.T) {
	t.Parallel()

	ex := &scriptedExtractor{steps: []step{
		{out: ExtractOutput{Result: fullExtraction(0.9), RawResponse: `{"title":"Senior Go Developer"}`}},
	}}
	p := newTestPipeline(t, ex)

	res := p.Process(context.Background(), testHTML, "https://dev.bg/job/go/")
	if !res.Success {
		t.Fatalf("expected success: errors=%v warnings=%v", res.Errors, res.Warnings)
	}
	if res.Data == nil || res.Data.Title != "Senior Go Developer" {
		t.Fatalf("data = %+v", res.Data)
	}
	if res.Quality != 100 {
		t.Fatalf("fully populated high-confidence extraction should score 100, got %d", res.Quality)
	}
	if res.CleanedText == "" || res.RawResponse == "" {
		t.Fatal("cleaned text and raw response must be carried for traceability")
	}
	if strings.Contains(res.CleanedText, "Apply now") {
		t.Fatal("cleaning profile should strip noise phrases")
	}
	// The extractor must receive exactly the cleaned text the result reports.
	if ex.calls[0].text != res.CleanedText {
		t.Fatal("extractor input and reported cleaned text diverge")
	}
	for _, stage := range []string{"extract", "clean", "ai", "quality"} {
		if _, ok := res.StageTimings[stage]; !ok {
			t.Fatalf("missing stage timing %q", stage)
		}
	}
}

func TestProcess_EmptyInputIsHardError(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, &scriptedExtractor{steps: []step{{}}})
	res := p.Process(context.Background(), "   ", "https://dev.bg/job/x/")
	if res.Success || len(res.Errors) == 0 {
		t.Fatalf("empty document must fail: %+v", res)
	}
	if res.Data != nil {
		t.Fatal("no extraction should be attempted")
	}
}

func TestProcess_CleaningFailureFallsBackToRawContent(t *testing.T) {
	t.Parallel()

	ex := &scriptedExtractor{steps: []step{
		{out: ExtractOutput{Result: fullExtraction(0.9), RawResponse: "{}"}},
	}}
	// A minimum far above the content length makes the profile fail.
	profiles, err := buildProfiles([]Profile{{Name: "strict", MinLength: 100000}})
	if err != nil {
		t.Fatalf("buildProfiles: %v", err)
	}
	cfg := DefaultConfig()
	cfg.ProfileName = "strict"
	p := newTestPipeline(t, ex, WithConfig(cfg), WithProfiles(profiles))

	res := p.Process(context.Background(), testHTML, "https://dev.bg/job/go/")
	if !res.Success {
		t.Fatalf("cleaning faults must not abort the run: %v", res.Errors)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "cleaning failed") {
		t.Fatalf("expected a cleaning warning, got %v", res.Warnings)
	}
	if !strings.Contains(res.CleanedText, "Apply now!") {
		t.Fatal("fallback should use the uncleaned stage-1 output")
	}
}

func TestProcess_LowConfidenceRetriesThenAccepts(t *testing.T) {
	t.Parallel()

	low := ExtractOutput{Result: fullExtraction(0.2), RawResponse: "{}"}
	ex := &scriptedExtractor{steps: []step{{out: low}, {out: low}, {out: low}}}
	p := newTestPipeline(t, ex)

	res := p.Process(context.Background(), testHTML, "https://dev.bg/job/go/")
	if len(ex.calls) != 3 {
		t.Fatalf("expected 3 attempts (1 + MaxExtractRetries), got %d", len(ex.calls))
	}
	if ex.calls[0].opts.SkipCache || !ex.calls[1].opts.SkipCache {
		t.Fatal("retries must bypass the extractor cache")
	}
	if res.Data == nil || res.Retries != 2 {
		t.Fatalf("low confidence is accepted once the budget is spent: %+v", res)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "low-confidence") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a low-confidence warning: %v", res.Warnings)
	}
}

func TestProcess_TransientErrorRetriedThenSucceeds(t *testing.T) {
	t.Parallel()

	ex := &scriptedExtractor{steps: []step{
		{err: &TransientError{Err: errors.New("503")}},
		{out: ExtractOutput{Result: fullExtraction(0.9), RawResponse: "{}"}},
	}}
	p := newTestPipeline(t, ex)

	res := p.Process(context.Background(), testHTML, "https://dev.bg/job/go/")
	if !res.Success || res.Retries != 1 {
		t.Fatalf("transient failure should be retried: %+v", res)
	}
}

func TestProcess_ExhaustionPreservesLastRawResponse(t *testing.T) {
	t.Parallel()

	ex := &scriptedExtractor{steps: []step{
		{err: &TransientError{Err: errors.New("overloaded")}, out: ExtractOutput{RawResponse: "first"}},
		{err: &TransientError{Err: errors.New("overloaded")}, out: ExtractOutput{RawResponse: "second"}},
		{err: &TransientError{Err: errors.New("overloaded")}, out: ExtractOutput{RawResponse: "last raw"}},
	}}
	p := newTestPipeline(t, ex)

	res := p.Process(context.Background(), testHTML, "https://dev.bg/job/go/")
	if res.Success || res.Data != nil {
		t.Fatalf("exhaustion is a reported failure: %+v", res)
	}
	if res.RawResponse != "last raw" {
		t.Fatalf("last raw response must survive exhaustion, got %q", res.RawResponse)
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], "after 3 attempts") {
		t.Fatalf("errors = %v", res.Errors)
	}
}

func TestProcess_NonTransientErrorFailsImmediately(t *testing.T) {
	t.Parallel()

	ex := &scriptedExtractor{steps: []step{{err: errors.New("bad request")}}}
	p := newTestPipeline(t, ex)

	res := p.Process(context.Background(), testHTML, "https://dev.bg/job/go/")
	if res.Success || len(ex.calls) != 1 {
		t.Fatalf("non-transient errors must not be retried: calls=%d res=%+v", len(ex.calls), res)
	}
}

func TestProcess_QualityGate(t *testing.T) {
	t.Parallel()

	sparse := &Extraction{Title: "Go Dev", Confidence: 0.9}
	ex := &scriptedExtractor{steps: []step{{out: ExtractOutput{Result: sparse, RawResponse: "{}"}}}}
	p := newTestPipeline(t, ex)

	res := p.Process(context.Background(), testHTML, "https://dev.bg/job/go/")
	if res.Success {
		t.Fatalf("sparse extraction must fail the quality gate: quality=%d", res.Quality)
	}
	if res.Data == nil {
		t.Fatal("the extraction itself is still returned alongside the gate failure")
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], "below minimum") {
		t.Fatalf("errors = %v", res.Errors)
	}
}

type perURLExtractor struct {
	scriptedExtractor
	panicURL string
}

func (p *perURLExtractor) Extract(ctx context.Context, text, sourceURL string, opts ExtractOptions) (ExtractOutput, error) {
	if sourceURL == p.panicURL {
		panic("corrupt input")
	}
	return p.scriptedExtractor.Extract(ctx, text, sourceURL, opts)
}

func TestProcessBatch_OneFaultingInputDoesNotAbortSiblings(t *testing.T) {
	t.Parallel()

	ex := &perURLExtractor{
		scriptedExtractor: scriptedExtractor{steps: []step{
			{out: ExtractOutput{Result: fullExtraction(0.9), RawResponse: "{}"}},
		}},
		panicURL: "https://dev.bg/job/2/",
	}
	p := newTestPipeline(t, ex)

	inputs := []BatchInput{
		{HTML: testHTML, SourceURL: "https://dev.bg/job/1/"},
		{HTML: testHTML, SourceURL: "https://dev.bg/job/2/"},
		{HTML: testHTML, SourceURL: "https://dev.bg/job/3/"},
	}
	report := p.ProcessBatch(context.Background(), inputs, BatchOptions{MaxConcurrent: 2})

	if report.Succeeded != 2 || report.Failed != 1 {
		t.Fatalf("expected 2 ok / 1 failed, got %+v", report)
	}
	faulted := report.Results[1]
	if faulted.Success || len(faulted.Errors) == 0 || !strings.Contains(faulted.Errors[0], "unhandled fault") {
		t.Fatalf("faulting input must be attributed: %+v", faulted)
	}
	for _, idx := range []int{0, 2} {
		if !report.Results[idx].Success {
			t.Fatalf("sibling %d should be unaffected: %+v", idx, report.Results[idx])
		}
	}
}

func TestProcessBatch_Aggregates(t *testing.T) {
	t.Parallel()

	ex := &scriptedExtractor{steps: []step{
		{out: ExtractOutput{Result: fullExtraction(0.9), RawResponse: "{}", CacheHit: true}},
	}}
	p := newTestPipeline(t, ex)

	report := p.ProcessBatch(context.Background(), []BatchInput{
		{HTML: testHTML, SourceURL: "https://dev.bg/job/1/"},
		{HTML: testHTML, SourceURL: "https://dev.bg/job/2/"},
	}, BatchOptions{MaxConcurrent: 1})

	if report.Succeeded != 2 || report.AvgQuality != 100 {
		t.Fatalf("report = %+v", report)
	}
	if report.CacheHitRate != 1.0 {
		t.Fatalf("cache hit rate = %v", report.CacheHitRate)
	}
	if report.AvgLatency < 0 {
		t.Fatalf("avg latency = %v", report.AvgLatency)
	}
}

func TestProcessBatch_Empty(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, &scriptedExtractor{steps: []step{{}}})
	report := p.ProcessBatch(context.Background(), nil, BatchOptions{})
	if len(report.Results) != 0 || report.Succeeded != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	if !IsTransient(&TransientError{Err: errors.New("x")}) {
		t.Fatal("TransientError must be retryable")
	}
	if !IsTransient(context.DeadlineExceeded) {
		t.Fatal("deadline exceeded must be retryable")
	}
	if IsTransient(errors.New("schema mismatch")) {
		t.Fatal("plain errors are not retryable")
	}
	if IsTransient(nil) {
		t.Fatal("nil is not an error")
	}
}
