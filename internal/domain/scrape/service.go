package scrape

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobradar/jobradar/internal/domain"
	"github.com/jobradar/jobradar/internal/domain/companymatch"
	"github.com/jobradar/jobradar/internal/domain/dedup"
	"github.com/jobradar/jobradar/internal/domain/sourcecache"
	"github.com/jobradar/jobradar/internal/repository"
	"github.com/jobradar/jobradar/pkg/logging"
)

// ExtractRequest asks for AI extraction of one listing's full text
type ExtractRequest struct {
	VacancyID  domain.VacancyID
	Content    string
	SourceURL  string
	Priority   int
	MaxRetries int
	BatchID    string
}

// ExtractEnqueuer schedules extraction work without the service knowing
// anything about the queue backing it
type ExtractEnqueuer interface {
	EnqueueExtract(ctx context.Context, req ExtractRequest) (string, error)
}

// Options controls one site scrape run
type Options struct {
	Limit          int
	Page           int
	IncludeDetails bool
	TriggeredBy    string
}

// Report summarizes one site scrape run. Per-listing failures accumulate in
// Errors; one bad listing never aborts the run.
type Report struct {
	Site             string
	Found            int
	Created          int
	Merged           int
	CompaniesCreated int
	ExtractQueued    int
	Errors           []string
}

// ProfileReport summarizes one company profile refresh
type ProfileReport struct {
	Refetched bool
	Reason    string
	Saved     bool
}

// Service orchestrates adapters, identity resolution and the source cache
// into the ingestion flow
type Service struct {
	registry  *Registry
	matcher   *companymatch.Matcher
	detector  *dedup.Detector
	cache     *sourcecache.Service
	vacancies repository.VacancyRepository
	enqueuer  ExtractEnqueuer
	patterns  TechPatterns
	blacklist BoardBlacklist
	clock     func() time.Time
	log       *logging.Logger

	// Merge and create are serialized per target entity so two concurrent
	// scrapes cannot both create a canonical record for the same job.
	entityLocks [64]sync.Mutex
}

// ServiceOption configures Service
type ServiceOption func(*Service)

// WithEnqueuer sets the extraction enqueuer
func WithEnqueuer(e ExtractEnqueuer) ServiceOption {
	return func(s *Service) { s.enqueuer = e }
}

// WithTechPatterns overrides the technology detection table
func WithTechPatterns(p TechPatterns) ServiceOption {
	return func(s *Service) { s.patterns = p }
}

// WithBoardBlacklist overrides the job-board blacklist
func WithBoardBlacklist(b BoardBlacklist) ServiceOption {
	return func(s *Service) { s.blacklist = b }
}

// WithClock sets a custom clock
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// NewService wires the ingestion service
func NewService(
	registry *Registry,
	matcher *companymatch.Matcher,
	detector *dedup.Detector,
	cache *sourcecache.Service,
	vacancies repository.VacancyRepository,
	log *logging.Logger,
	opts ...ServiceOption,
) (*Service, error) {
	if registry == nil || matcher == nil || detector == nil || cache == nil || vacancies == nil {
		return nil, fmt.Errorf("scrape: registry, matcher, detector, cache and vacancy repository are all required")
	}
	s := &Service{
		registry:  registry,
		matcher:   matcher,
		detector:  detector,
		cache:     cache,
		vacancies: vacancies,
		patterns:  DefaultTechPatterns(),
		blacklist: DefaultBoardBlacklist(),
		clock:     time.Now,
		log:       log.With("component", "scrape"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ScrapeSite runs one listing-page scrape for a site and resolves every
// listing against the canonical store
func (s *Service) ScrapeSite(ctx context.Context, site string, opts Options) (Report, error) {
	report := Report{Site: site}

	adapter, err := s.registry.BySite(site)
	if err != nil {
		return report, err
	}

	s.log.Info("scrape started", "site", site, "page", opts.Page, "triggeredBy", opts.TriggeredBy)
	result, err := adapter.ScrapeListings(ctx, ListingsOptions{Limit: opts.Limit, Page: opts.Page})
	if err != nil {
		return report, fmt.Errorf("scrape: %s listings: %w", site, err)
	}
	report.Found = len(result.Listings)
	report.Errors = append(report.Errors, result.Errors...)

	for _, raw := range result.Listings {
		if err := s.ingestListing(ctx, raw, opts, &report); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", raw.DetailURL, err))
			s.log.Warn("listing ingestion failed", "site", site, "url", raw.DetailURL, "err", err)
		}
	}

	s.log.Info("scrape finished", "site", site,
		"found", report.Found, "created", report.Created, "merged", report.Merged,
		"companiesCreated", report.CompaniesCreated, "errors", len(report.Errors))
	return report, nil
}

func (s *Service) ingestListing(ctx context.Context, raw domain.RawListing, opts Options, report *Report) error {
	n := Normalize(raw, s.patterns, s.clock)
	if n.Title == "" {
		return fmt.Errorf("listing has no title")
	}

	companyID := uuid.Nil
	if n.CompanyName != "" && !s.blacklist.IsBoard(n.CompanyName, "") {
		company, created, err := s.matcher.Resolve(ctx, companymatch.CompanyInfo{Name: n.CompanyName})
		if err != nil {
			return fmt.Errorf("resolve company: %w", err)
		}
		companyID = company.ID
		if created {
			report.CompaniesCreated++
		}
	}

	listing := dedup.Listing{
		Title:        n.Title,
		CompanyID:    companyID,
		CompanyName:  n.CompanyName,
		DetailURL:    n.DetailURL,
		NativeID:     n.NativeID,
		SourceSite:   n.SourceSite,
		Technologies: n.Technologies,
		PostedAt:     n.PostedAt,
	}

	lock := s.lockFor(n.Title, n.CompanyName)
	lock.Lock()
	vacancyID, merged, err := s.upsertListing(ctx, listing, n)
	lock.Unlock()
	if err != nil {
		return err
	}
	if merged {
		report.Merged++
	} else {
		report.Created++
	}

	if opts.IncludeDetails && s.enqueuer != nil && strings.TrimSpace(n.FullText) != "" {
		if _, err := s.enqueuer.EnqueueExtract(ctx, ExtractRequest{
			VacancyID: vacancyID,
			Content:   n.FullText,
			SourceURL: n.DetailURL,
		}); err != nil {
			// Extraction is enrichment; a queue hiccup is not an ingestion failure.
			s.log.Warn("failed to enqueue extraction", "vacancy", vacancyID, "err", err)
		} else {
			report.ExtractQueued++
		}
	}
	return nil
}

func (s *Service) upsertListing(ctx context.Context, listing dedup.Listing, n Normalized) (domain.VacancyID, bool, error) {
	res := s.detector.Detect(ctx, listing)

	target := res.Exact
	if target == nil && len(res.Matches) > 0 && res.Matches[0].ShouldMerge {
		target = &res.Matches[0]
	}
	if target != nil {
		if err := s.detector.Merge(ctx, target.VacancyID, listing); err != nil {
			return uuid.Nil, false, err
		}
		return target.VacancyID, true, nil
	}

	v := &domain.Vacancy{
		ID:           uuid.New(),
		Title:        n.Title,
		CompanyID:    listing.CompanyID,
		Location:     n.Location,
		WorkModel:    n.WorkModel,
		Technologies: n.Technologies,
		Salary:       n.Salary,
		Experience:   n.Experience,
		PostedAt:     n.PostedAt,
		Status:       domain.VacancyActive,
	}
	v.RecordSource(n.SourceSite, n.DetailURL, n.NativeID, s.clock())
	if err := s.vacancies.Create(ctx, v); err != nil {
		return uuid.Nil, false, fmt.Errorf("create vacancy: %w", err)
	}
	return v.ID, false, nil
}

// RefreshCompanyProfile refetches a company page unless the cache says the
// stored copy is still good. Every attempt is recorded, failed ones included.
func (s *Service) RefreshCompanyProfile(ctx context.Context, companyID domain.CompanyID, site, url string, force bool) (ProfileReport, error) {
	decision := s.cache.ShouldRefetch(ctx, companyID, site, url, force)
	if !decision.Refetch {
		s.log.Debug("company profile still fresh", "company", companyID, "site", site, "reason", decision.Reason)
		return ProfileReport{Refetched: false, Reason: decision.Reason}, nil
	}

	adapter, err := s.registry.BySite(site)
	if err != nil {
		return ProfileReport{}, err
	}

	result := adapter.ScrapeCompanyProfile(ctx, url)

	raw := ""
	if result.Data != nil {
		raw = result.Data.RawHTML
	}
	if err := s.cache.Save(ctx, sourcecache.SaveInput{
		CompanyID:  companyID,
		SourceSite: site,
		SourceURL:  url,
		RawContent: raw,
		Valid:      result.Success,
	}); err != nil {
		return ProfileReport{Refetched: true, Reason: decision.Reason}, err
	}

	if !result.Success {
		s.log.Warn("company profile scrape failed", "company", companyID, "site", site, "err", result.Err)
		return ProfileReport{Refetched: true, Reason: decision.Reason, Saved: true}, nil
	}

	if err := s.matcher.AbsorbInto(ctx, companyID, companymatch.CompanyInfo{
		Name:        result.Data.Name,
		Website:     result.Data.Website,
		Location:    result.Data.Location,
		Industry:    result.Data.Industry,
		Description: result.Data.Description,
	}); err != nil {
		return ProfileReport{Refetched: true, Reason: decision.Reason, Saved: true}, err
	}
	return ProfileReport{Refetched: true, Reason: decision.Reason, Saved: true}, nil
}

func (s *Service) lockFor(title, company string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(title)))
	h.Write([]byte("|"))
	h.Write([]byte(strings.ToLower(company)))
	return &s.entityLocks[h.Sum32()%uint32(len(s.entityLocks))]
}
