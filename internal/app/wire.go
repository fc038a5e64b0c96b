//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/google/wire"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jobradar/jobradar/internal/config"
	"github.com/jobradar/jobradar/internal/domain/companymatch"
	"github.com/jobradar/jobradar/internal/domain/dedup"
	"github.com/jobradar/jobradar/internal/domain/scrape"
	"github.com/jobradar/jobradar/internal/domain/scrape/adapters/devbg"
	"github.com/jobradar/jobradar/internal/domain/sourcecache"
	"github.com/jobradar/jobradar/internal/pipeline"
	"github.com/jobradar/jobradar/internal/pipeline/gemini"
	"github.com/jobradar/jobradar/internal/queue"
	"github.com/jobradar/jobradar/internal/repository"
	storageneo4j "github.com/jobradar/jobradar/internal/storage/neo4j"
	storageredis "github.com/jobradar/jobradar/internal/storage/redis"
	"github.com/jobradar/jobradar/pkg/logging"
	n4j "github.com/jobradar/jobradar/pkg/neo4j"
	pkgredis "github.com/jobradar/jobradar/pkg/redis"
)

// InitializeResources creates Resources with all components wired up
func InitializeResources(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Resources, error) {
	wire.Build(
		// Infrastructure - Neo4j
		provideNeo4jConfig,
		n4j.NewClient,

		// Infrastructure - Redis
		provideRedisClient,

		// Repositories
		storageneo4j.NewVacancyRepository,
		wire.Bind(new(repository.VacancyRepository), new(*storageneo4j.VacancyRepository)),
		storageneo4j.NewCompanyRepository,
		wire.Bind(new(repository.CompanyRepository), new(*storageneo4j.CompanyRepository)),
		storageredis.NewCompanySourceRepository,
		wire.Bind(new(repository.CompanySourceRepository), new(*storageredis.CompanySourceRepository)),

		// Identity resolution
		provideMatcher,
		provideDetector,
		provideSourceCache,
		provideRegistry,

		// Extraction pipeline
		provideExtractor,
		providePipeline,

		// Queue
		provideQueue,
		provideScheduler,

		newWiredResources,
	)

	return &Resources{}, nil
}

// provideNeo4jConfig extracts Neo4j config from main config
func provideNeo4jConfig(cfg config.Config) n4j.Config {
	return n4j.Config{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
	}
}

// provideRedisClient opens the shared Redis connection
func provideRedisClient(ctx context.Context, cfg config.Config) (*goredis.Client, error) {
	return pkgredis.New(ctx, cfg.Redis.URL)
}

// provideMatcher builds the company matcher with default thresholds
func provideMatcher(companies repository.CompanyRepository, logger *logging.Logger) (*companymatch.Matcher, error) {
	return companymatch.NewMatcher(companies, logger)
}

// provideDetector builds the duplicate detector with default thresholds
func provideDetector(vacancies repository.VacancyRepository, companies repository.CompanyRepository, logger *logging.Logger) (*dedup.Detector, error) {
	return dedup.NewDetector(vacancies, companies, logger)
}

// provideSourceCache builds the company-page cache with its TTL table
func provideSourceCache(cfg config.Config, repo repository.CompanySourceRepository, logger *logging.Logger) (*sourcecache.Service, error) {
	ttl := sourcecache.DefaultTTLTable()
	if cfg.TTLTablePath != "" {
		var err error
		ttl, err = sourcecache.LoadTTLTable(cfg.TTLTablePath)
		if err != nil {
			return nil, err
		}
	}
	return sourcecache.NewService(repo, logger, sourcecache.WithTTLTable(ttl))
}

// provideRegistry builds the adapter registry with the enabled site adapters
func provideRegistry(cfg config.Config, logger *logging.Logger) (*scrape.Registry, error) {
	registry, err := scrape.NewRegistry(devbg.New())
	if err != nil {
		return nil, err
	}
	if adapter, err := buildAdzunaAdapter(cfg); err == nil {
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("Adzuna adapter disabled", "reason", err)
	}
	return registry, nil
}

// provideExtractor builds the Gemini extractor
func provideExtractor(ctx context.Context, cfg config.Config) (*gemini.Extractor, error) {
	return gemini.New(ctx, gemini.Config{APIKey: cfg.Gemini.APIKey, Model: cfg.Gemini.Model})
}

// providePipeline builds the extraction pipeline, with cleaning profile
// overrides when configured
func providePipeline(cfg config.Config, extractor *gemini.Extractor, logger *logging.Logger) (*pipeline.Pipeline, error) {
	opts := []pipeline.Option{}
	if cfg.ProfilesPath != "" {
		profiles, err := pipeline.LoadProfiles(cfg.ProfilesPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithProfiles(profiles))
	}
	return pipeline.New(extractor, logger, opts...)
}

// provideQueue builds the Redis-backed task queue
func provideQueue(cfg config.Config, rdb *goredis.Client, logger *logging.Logger) (*queue.Queue, error) {
	store, err := queue.NewRedisStore(rdb)
	if err != nil {
		return nil, err
	}
	return queue.New(store, logger,
		queue.WithWorkers(cfg.Queue.Workers),
		queue.WithTaskTimeout(cfg.Queue.TaskTimeout),
		queue.WithRetention(cfg.Queue.Retention),
	)
}

// provideScheduler builds the recurring-trigger scheduler
func provideScheduler(cfg config.Config, q *queue.Queue, registry *scrape.Registry, logger *logging.Logger) (*queue.Scheduler, error) {
	return queue.NewScheduler(q, registry.EnabledSites, queue.SchedulerConfig{
		Enabled:        cfg.Scheduler.Enabled,
		ScrapeSpec:     cfg.Scheduler.ScrapeSpec,
		HealthSpec:     cfg.Scheduler.HealthSpec,
		IncludeDetails: cfg.Scheduler.IncludeDetails,
	}, logger)
}

// newWiredResources assembles Resources, wires the scrape service to the
// queue and registers the task handlers
func newWiredResources(
	cfg config.Config,
	logger *logging.Logger,
	n4jClient *n4j.Client,
	vacancies repository.VacancyRepository,
	companies repository.CompanyRepository,
	sources repository.CompanySourceRepository,
	matcher *companymatch.Matcher,
	detector *dedup.Detector,
	cache *sourcecache.Service,
	registry *scrape.Registry,
	pipe *pipeline.Pipeline,
	q *queue.Queue,
	scheduler *queue.Scheduler,
) (*Resources, error) {
	scrapeSvc, err := scrape.NewService(registry, matcher, detector, cache, vacancies, logger,
		scrape.WithEnqueuer(&queueEnqueuer{q: q}),
	)
	if err != nil {
		return nil, err
	}
	h := newHandlers(scrapeSvc, pipe, vacancies, q, logger)
	if err := h.register(q); err != nil {
		return nil, err
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
