package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BatchInput is one unit of a batch run.
type BatchInput struct {
	HTML      string
	SourceURL string
}

// BatchOptions controls batch fan-out.
type BatchOptions struct {
	MaxConcurrent int
	// RateLimitRPS is a global limit shared by all workers. <=0 disables it.
	RateLimitRPS float64
	// PerInputTimeout bounds each input's run. <=0 disables it.
	PerInputTimeout time.Duration
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 4
	}
	if o.PerInputTimeout <= 0 {
		o.PerInputTimeout = 2 * time.Minute
	}
	return o
}

// BatchReport aggregates a batch run. Results are index-aligned with the
// inputs; every input gets an outcome.
type BatchReport struct {
	Results      []Result
	Succeeded    int
	Failed       int
	AvgQuality   float64
	AvgLatency   time.Duration
	CacheHitRate float64
}

// ProcessBatch fans inputs out across workers with independent completion:
// one input's failure, or even a panicking stage, never aborts its siblings.
func (p *Pipeline) ProcessBatch(ctx context.Context, inputs []BatchInput, opts BatchOptions) BatchReport {
	opts = opts.withDefaults()
	report := BatchReport{Results: make([]Result, len(inputs))}
	if len(inputs) == 0 {
		return report
	}

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	type job struct {
		idx int
		in  BatchInput
	}
	jobs := make(chan job)

	var wg sync.WaitGroup
	for i := 0; i < opts.MaxConcurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				report.Results[j.idx] = p.processOne(ctx, j.in, limiter, opts)
			}
		}()
	}

dispatch:
	for i := 0; i < len(inputs); i++ {
		select {
		case jobs <- job{idx: i, in: inputs[i]}:
		case <-ctx.Done():
			for k := i; k < len(inputs); k++ {
				report.Results[k] = Result{Errors: []string{fmt.Sprintf("batch cancelled: %v", ctx.Err())}}
			}
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	var qualitySum, latencySum float64
	cacheHits := 0
	for _, r := range report.Results {
		if r.Success {
			report.Succeeded++
			qualitySum += float64(r.Quality)
		} else {
			report.Failed++
		}
		latencySum += float64(r.Duration)
		if r.CacheHit {
			cacheHits++
		}
	}
	if report.Succeeded > 0 {
		report.AvgQuality = qualitySum / float64(report.Succeeded)
	}
	report.AvgLatency = time.Duration(latencySum / float64(len(inputs)))
	report.CacheHitRate = float64(cacheHits) / float64(len(inputs))

	p.log.Info("batch finished",
		"inputs", len(inputs), "succeeded", report.Succeeded, "failed", report.Failed,
		"avgQuality", report.AvgQuality, "cacheHitRate", report.CacheHitRate)
	return report
}

func (p *Pipeline) processOne(ctx context.Context, in BatchInput, limiter *rate.Limiter, opts BatchOptions) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pipeline input panicked", "url", in.SourceURL, "panic", r)
			res.Success = false
			res.Errors = append(res.Errors, fmt.Sprintf("unhandled fault: %v", r))
		}
	}()

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("batch cancelled: %v", err))
			return res
		}
	}

	runCtx := ctx
	if opts.PerInputTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.PerInputTimeout)
		defer cancel()
	}
	return p.Process(runCtx, in.HTML, in.SourceURL)
}
