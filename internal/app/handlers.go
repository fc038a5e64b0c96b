package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jobradar/jobradar/internal/domain"
	"github.com/jobradar/jobradar/internal/domain/scrape"
	"github.com/jobradar/jobradar/internal/pipeline"
	"github.com/jobradar/jobradar/internal/queue"
	"github.com/jobradar/jobradar/internal/repository"
	"github.com/jobradar/jobradar/pkg/logging"
)

// queueEnqueuer adapts the task queue to the scrape service's enqueuer
// boundary
type queueEnqueuer struct {
	q *queue.Queue
}

var _ scrape.ExtractEnqueuer = (*queueEnqueuer)(nil)

func (e *queueEnqueuer) EnqueueExtract(ctx context.Context, req scrape.ExtractRequest) (string, error) {
	sum := sha256.Sum256([]byte(req.Content))
	return e.q.Enqueue(ctx, queue.EnqueueRequest{
		Kind: queue.KindExtractAI,
		Payload: queue.ExtractAIPayload{
			VacancyID:   req.VacancyID.String(),
			ContentHash: hex.EncodeToString(sum[:]),
			Content:     req.Content,
			SourceURL:   req.SourceURL,
			Priority:    req.Priority,
			MaxRetries:  req.MaxRetries,
			BatchID:     req.BatchID,
		},
		Priority:    req.Priority,
		MaxAttempts: req.MaxRetries,
		BatchID:     req.BatchID,
	})
}

// handlers binds the four task kinds to the domain services
type handlers struct {
	scrape    *scrape.Service
	pipe      *pipeline.Pipeline
	vacancies repository.VacancyRepository
	q         *queue.Queue
	httpc     *http.Client
	log       *logging.Logger
}

func newHandlers(s *scrape.Service, p *pipeline.Pipeline, vacancies repository.VacancyRepository, q *queue.Queue, log *logging.Logger) *handlers {
	return &handlers{
		scrape:    s,
		pipe:      p,
		vacancies: vacancies,
		q:         q,
		httpc:     &http.Client{Timeout: 30 * time.Second},
		log:       log.With("component", "handlers"),
	}
}

func (h *handlers) register(q *queue.Queue) error {
	for kind, fn := range map[queue.Kind]queue.Handler{
		queue.KindScrapeSite:   h.handleScrapeSite,
		queue.KindExtractAI:    h.handleExtract,
		queue.KindProcessBatch: h.handleProcessBatch,
		queue.KindHealthCheck:  h.handleHealthCheck,
	} {
		if err := q.RegisterHandler(kind, fn); err != nil {
			return err
		}
	}
	return nil
}

func (h *handlers) handleScrapeSite(ctx context.Context, t *queue.Task) error {
	var p queue.ScrapeSitePayload
	if err := t.DecodePayload(&p); err != nil {
		return err
	}
	report, err := h.scrape.ScrapeSite(ctx, p.Source, scrape.Options{
		IncludeDetails: p.Options.IncludeDetails,
		TriggeredBy:    p.TriggeredBy,
	})
	if err != nil {
		return err
	}
	if len(report.Errors) > 0 {
		h.log.Warn("scrape finished with listing errors",
			"site", p.Source, "found", report.Found, "errors", len(report.Errors))
	}
	return nil
}

// handleExtract runs AI extraction for one posting. Tasks carrying only a
// URL fetch the page first; tasks queued from a scrape carry the full text
// inline.
func (h *handlers) handleExtract(ctx context.Context, t *queue.Task) error {
	var p queue.ExtractAIPayload
	if err := t.DecodePayload(&p); err != nil {
		return err
	}

	content := p.Content
	if content == "" {
		if p.SourceURL == "" {
			return fmt.Errorf("extract task %s has neither content nor source url", t.ID)
		}
		fetched, err := h.fetchPage(ctx, p.SourceURL)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", p.SourceURL, err)
		}
		content = fetched
	}

	res := h.pipe.Process(ctx, content, p.SourceURL)
	if !res.Success {
		return fmt.Errorf("extraction failed: %s", strings.Join(res.Errors, "; "))
	}

	h.log.Info("extraction succeeded",
		"url", p.SourceURL, "quality", res.Quality, "confidence", res.Confidence,
		"cacheHit", res.CacheHit, "retries", res.Retries)

	if p.VacancyID == "" {
		return nil
	}
	id, err := uuid.Parse(p.VacancyID)
	if err != nil {
		return fmt.Errorf("extract task %s: bad vacancy id %q: %w", t.ID, p.VacancyID, err)
	}
	return h.absorbExtraction(ctx, id, res.Data)
}

// absorbExtraction backfills empty vacancy fields from the extraction.
// Scraped values win over extracted ones; extraction only ever fills gaps.
func (h *handlers) absorbExtraction(ctx context.Context, id domain.VacancyID, ex *pipeline.Extraction) error {
	v, err := h.vacancies.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load vacancy %s: %w", id, err)
	}

	if v.Location == "" {
		v.Location = ex.Location
	}
	if v.WorkModel == domain.WorkModelUnknown || v.WorkModel == "" {
		v.WorkModel = workModelFrom(ex.WorkModel)
	}
	if v.Experience == domain.ExperienceUnknown {
		v.Experience = experienceFrom(ex.ExperienceLevel)
	}
	if v.Salary.Min == 0 && v.Salary.Max == 0 {
		v.Salary = domain.Salary{Min: ex.SalaryMin, Max: ex.SalaryMax, Currency: ex.SalaryCurrency}
	}
	v.Technologies = unionTechnologies(v.Technologies, ex.Technologies)

	if err := h.vacancies.Update(ctx, v); err != nil {
		return fmt.Errorf("update vacancy %s: %w", id, err)
	}
	return nil
}

// handleProcessBatch fans one batch request out into independent extract
// tasks sharing the batch id. Child tasks are staggered by the requested
// inter-request delay so a batch cannot hammer one site.
func (h *handlers) handleProcessBatch(ctx context.Context, t *queue.Task) error {
	var p queue.ProcessBatchPayload
	if err := t.DecodePayload(&p); err != nil {
		return err
	}
	if !p.Options.EnableAIExtraction {
		h.log.Info("batch extraction disabled, nothing to fan out", "batchId", t.BatchID, "urls", len(p.URLs))
		return nil
	}

	var failed []string
	for i, url := range p.URLs {
		_, err := h.q.Enqueue(ctx, queue.EnqueueRequest{
			Kind: queue.KindExtractAI,
			Payload: queue.ExtractAIPayload{
				SourceURL: url,
				BatchID:   t.BatchID,
			},
			Delay:   time.Duration(i) * p.Options.DelayBetweenRequests,
			BatchID: t.BatchID,
		})
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", url, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("batch fan-out: %d of %d enqueues failed: %s",
			len(failed), len(p.URLs), strings.Join(failed, "; "))
	}
	h.log.Info("batch fanned out", "batchId", t.BatchID, "tasks", len(p.URLs))
	return nil
}

// handleHealthCheck probes the queue and the extractor; an unhealthy
// extractor fails the task so the degradation shows up in the failed counts.
func (h *handlers) handleHealthCheck(ctx context.Context, t *queue.Task) error {
	health, err := h.q.Health(ctx)
	if err != nil {
		return fmt.Errorf("queue health: %w", err)
	}
	h.log.Info("health check",
		"status", health.Status, "score", health.Score,
		"waiting", health.Counts.Waiting, "active", health.Counts.Active,
		"failed", health.Counts.Failed)

	if err := h.pipe.Healthy(ctx); err != nil {
		return fmt.Errorf("extractor unhealthy: %w", err)
	}
	return nil
}

func (h *handlers) fetchPage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "jobradar/1.0")

	resp, err := h.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func workModelFrom(s string) domain.WorkModel {
	switch s {
	case "remote":
		return domain.WorkModelRemote
	case "hybrid":
		return domain.WorkModelHybrid
	case "office", "onsite", "on-site":
		return domain.WorkModelOffice
	default:
		return domain.WorkModelUnknown
	}
}

func experienceFrom(s string) domain.ExperienceLevel {
	switch s {
	case "junior", "entry", "intern":
		return domain.ExperienceJunior
	case "mid", "middle", "intermediate":
		return domain.ExperienceMid
	case "senior", "lead", "principal":
		return domain.ExperienceSenior
	default:
		return domain.ExperienceUnknown
	}
}

func unionTechnologies(have, extracted []string) []string {
	seen := make(map[string]bool, len(have))
	for _, t := range have {
		seen[strings.ToLower(t)] = true
	}
	out := have
	for _, t := range extracted {
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	return out
}
