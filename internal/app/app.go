// Package app wires the ingestion core: storage clients, identity
// resolution, the extraction pipeline, the task queue and its scheduler.
package app

import (
	"context"
	"fmt"

	"github.com/jobradar/jobradar/internal/config"
	"github.com/jobradar/jobradar/internal/domain/companymatch"
	"github.com/jobradar/jobradar/internal/domain/dedup"
	"github.com/jobradar/jobradar/internal/domain/scrape"
	adzunaadapter "github.com/jobradar/jobradar/internal/domain/scrape/adapters/adzuna"
	"github.com/jobradar/jobradar/internal/domain/scrape/adapters/devbg"
	"github.com/jobradar/jobradar/internal/domain/sourcecache"
	"github.com/jobradar/jobradar/internal/pipeline"
	"github.com/jobradar/jobradar/internal/pipeline/gemini"
	"github.com/jobradar/jobradar/internal/queue"
	"github.com/jobradar/jobradar/internal/repository"
	storageneo4j "github.com/jobradar/jobradar/internal/storage/neo4j"
	storageredis "github.com/jobradar/jobradar/internal/storage/redis"
	"github.com/jobradar/jobradar/pkg/adzuna"
	"github.com/jobradar/jobradar/pkg/logging"
	n4j "github.com/jobradar/jobradar/pkg/neo4j"
	pkgredis "github.com/jobradar/jobradar/pkg/redis"
)

// Resources holds every wired component of the running service
type Resources struct {
	Neo4jClient *n4j.Client
	Vacancies   repository.VacancyRepository
	Companies   repository.CompanyRepository
	Sources     repository.CompanySourceRepository

	Registry  *scrape.Registry
	Scrape    *scrape.Service
	Pipeline  *pipeline.Pipeline
	Queue     *queue.Queue
	Scheduler *queue.Scheduler

	log  *logging.Logger
	stop context.CancelFunc
}

// New wires all resources from config. On success the queue handlers are
// registered and the scheduler is constructed but not yet started.
func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Resources, error) {
	n4jClient, err := n4j.NewClient(ctx, n4j.Config{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("app: neo4j: %w", err)
	}

	rdb, err := pkgredis.New(ctx, cfg.Redis.URL)
	if err != nil {
		_ = n4jClient.Close(ctx)
		return nil, fmt.Errorf("app: redis: %w", err)
	}

	vacancies := storageneo4j.NewVacancyRepository(n4jClient)
	companies := storageneo4j.NewCompanyRepository(n4jClient)
	sources, err := storageredis.NewCompanySourceRepository(rdb)
	if err != nil {
		return nil, fmt.Errorf("app: company source repository: %w", err)
	}

	matcher, err := companymatch.NewMatcher(companies, logger)
	if err != nil {
		return nil, fmt.Errorf("app: matcher: %w", err)
	}
	detector, err := dedup.NewDetector(vacancies, companies, logger)
	if err != nil {
		return nil, fmt.Errorf("app: detector: %w", err)
	}

	ttl := sourcecache.DefaultTTLTable()
	if cfg.TTLTablePath != "" {
		ttl, err = sourcecache.LoadTTLTable(cfg.TTLTablePath)
		if err != nil {
			return nil, fmt.Errorf("app: ttl table: %w", err)
		}
	}
	cache, err := sourcecache.NewService(sources, logger, sourcecache.WithTTLTable(ttl))
	if err != nil {
		return nil, fmt.Errorf("app: source cache: %w", err)
	}

	registry, err := scrape.NewRegistry(devbg.New())
	if err != nil {
		return nil, fmt.Errorf("app: adapter registry: %w", err)
	}
	if adapter, err := buildAdzunaAdapter(cfg); err == nil {
		if err := registry.Register(adapter); err != nil {
			return nil, fmt.Errorf("app: register adzuna adapter: %w", err)
		}
		logger.Info("Adzuna adapter registered", "country", cfg.Adzuna.Country)
	} else {
		logger.Warn("Adzuna adapter disabled", "reason", err)
	}

	extractor, err := gemini.New(ctx, gemini.Config{
		APIKey: cfg.Gemini.APIKey,
		Model:  cfg.Gemini.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("app: gemini extractor: %w", err)
	}

	pipeOpts := []pipeline.Option{}
	if cfg.ProfilesPath != "" {
		profiles, err := pipeline.LoadProfiles(cfg.ProfilesPath)
		if err != nil {
			return nil, fmt.Errorf("app: cleaning profiles: %w", err)
		}
		pipeOpts = append(pipeOpts, pipeline.WithProfiles(profiles))
	}
	pipe, err := pipeline.New(extractor, logger, pipeOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: pipeline: %w", err)
	}

	store, err := queue.NewRedisStore(rdb)
	if err != nil {
		return nil, fmt.Errorf("app: queue store: %w", err)
	}
	q, err := queue.New(store, logger,
		queue.WithWorkers(cfg.Queue.Workers),
		queue.WithTaskTimeout(cfg.Queue.TaskTimeout),
		queue.WithRetention(cfg.Queue.Retention),
	)
	if err != nil {
		return nil, fmt.Errorf("app: queue: %w", err)
	}

	scrapeSvc, err := scrape.NewService(registry, matcher, detector, cache, vacancies, logger,
		scrape.WithEnqueuer(&queueEnqueuer{q: q}),
	)
	if err != nil {
		return nil, fmt.Errorf("app: scrape service: %w", err)
	}

	h := newHandlers(scrapeSvc, pipe, vacancies, q, logger)
	if err := h.register(q); err != nil {
		return nil, fmt.Errorf("app: register handlers: %w", err)
	}

	scheduler, err := queue.NewScheduler(q, registry.EnabledSites, queue.SchedulerConfig{
		Enabled:        cfg.Scheduler.Enabled,
		ScrapeSpec:     cfg.Scheduler.ScrapeSpec,
		HealthSpec:     cfg.Scheduler.HealthSpec,
		IncludeDetails: cfg.Scheduler.IncludeDetails,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("app: scheduler: %w", err)
	}

	return &Resources{
		Neo4jClient: n4jClient,
		Vacancies:   vacancies,
		Companies:   companies,
		Sources:     sources,
		Registry:    registry,
		Scrape:      scrapeSvc,
		Pipeline:    pipe,
		Queue:       q,
		Scheduler:   scheduler,
		log:         logger.With("component", "app"),
	}, nil
}

func buildAdzunaAdapter(cfg config.Config) (*adzunaadapter.Adapter, error) {
	if cfg.Adzuna.AppID == "" || cfg.Adzuna.AppKey == "" {
		return nil, fmt.Errorf("adzuna credentials missing")
	}
	client, err := adzuna.NewClient(adzuna.Config{
		AppID:   cfg.Adzuna.AppID,
		AppKey:  cfg.Adzuna.AppKey,
		Country: cfg.Adzuna.Country,
	})
	if err != nil {
		return nil, err
	}
	opts := []adzunaadapter.Option{}
	if cfg.Adzuna.Query != "" {
		opts = append(opts, adzunaadapter.WithQuery(cfg.Adzuna.Query))
	}
	return adzunaadapter.New(client, opts...)
}

// Start launches the queue workers and, when enabled, the scheduler. The
// passed context bounds the whole run; Shutdown cancels it.
func (r *Resources) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.stop = cancel
	r.Queue.Start(runCtx)
	if err := r.Scheduler.Start(); err != nil {
		cancel()
		return fmt.Errorf("app: start scheduler: %w", err)
	}
	return nil
}

// Shutdown stops the scheduler, lets in-flight tasks drain and closes the
// storage clients
func (r *Resources) Shutdown(ctx context.Context) error {
	r.Scheduler.Stop()
	if r.stop != nil {
		r.stop()
	}
	r.Queue.Wait()
	if err := r.Neo4jClient.Close(ctx); err != nil {
		return fmt.Errorf("app: close neo4j: %w", err)
	}
	r.log.Info("resources released")
	return nil
}
