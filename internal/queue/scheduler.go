package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jobradar/jobradar/pkg/logging"
)

// SchedulerConfig holds the recurring-trigger settings.
type SchedulerConfig struct {
	// Enabled gates all recurring triggers. When off, due triggers are
	// logged and skipped, never errored.
	Enabled bool
	// ScrapeSpec is the cron spec for the full-site scrape (default daily).
	ScrapeSpec string
	// HealthSpec is the cron spec for the self health check (default hourly).
	HealthSpec string
	// IncludeDetails asks scheduled scrapes to queue extraction work too.
	IncludeDetails bool
}

// Scheduler registers the recurring triggers against a cron runner and
// turns each firing into ordinary queue tasks.
type Scheduler struct {
	cron  *cron.Cron
	queue *Queue
	sites func() []string
	cfg   SchedulerConfig
	log   *logging.Logger
}

// NewScheduler wires the recurring triggers. sites supplies the enabled
// site keys at fire time, so adapters registered later are still covered.
func NewScheduler(queue *Queue, sites func() []string, cfg SchedulerConfig, log *logging.Logger) (*Scheduler, error) {
	if queue == nil {
		return nil, fmt.Errorf("scheduler: queue is required")
	}
	if sites == nil {
		return nil, fmt.Errorf("scheduler: site provider is required")
	}
	if cfg.ScrapeSpec == "" {
		cfg.ScrapeSpec = "@daily"
	}
	if cfg.HealthSpec == "" {
		cfg.HealthSpec = "@hourly"
	}
	return &Scheduler{
		cron:  cron.New(),
		queue: queue,
		sites: sites,
		cfg:   cfg,
		log:   log.With("component", "scheduler"),
	}, nil
}

// Start registers the cron entries and begins firing them.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.ScrapeSpec, s.fireScrape); err != nil {
		return fmt.Errorf("scheduler: register scrape trigger: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.HealthSpec, s.fireHealthCheck); err != nil {
		return fmt.Errorf("scheduler: register health trigger: %w", err)
	}
	s.cron.Start()
	s.log.Info("scheduler started",
		"scrapeSpec", s.cfg.ScrapeSpec, "healthSpec", s.cfg.HealthSpec, "enabled", s.cfg.Enabled)
	return nil
}

// Stop halts the cron runner and waits for in-flight trigger functions.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) fireScrape() {
	if !s.cfg.Enabled {
		s.log.Info("scheduled scrape skipped, scheduler disabled")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, site := range s.sites() {
		payload := ScrapeSitePayload{Source: site, TriggeredBy: "scheduler"}
		payload.Options.IncludeDetails = s.cfg.IncludeDetails
		id, err := s.queue.Enqueue(ctx, EnqueueRequest{
			Kind:    KindScrapeSite,
			Payload: payload,
		})
		if err != nil {
			s.log.Error("failed to enqueue scheduled scrape", "site", site, "err", err)
			continue
		}
		s.log.Info("scheduled scrape enqueued", "site", site, "task", id)
	}
}

func (s *Scheduler) fireHealthCheck() {
	if !s.cfg.Enabled {
		s.log.Info("scheduled health check skipped, scheduler disabled")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.queue.Enqueue(ctx, EnqueueRequest{Kind: KindHealthCheck, Payload: HealthCheckPayload{}}); err != nil {
		s.log.Error("failed to enqueue health check", "err", err)
	}
}
