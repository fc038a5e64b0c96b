// Package dedup matches newly scraped job listings against canonical
// vacancies, exactly by key and fuzzily by similarity score, and performs the
// provenance-preserving cross-site merge.
package dedup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jobradar/jobradar/internal/domain"
	"github.com/jobradar/jobradar/internal/repository"
	"github.com/jobradar/jobradar/pkg/logging"
)

// Listing is the normalized view of a scraped listing the detector works on
type Listing struct {
	Title        string
	CompanyID    domain.CompanyID
	CompanyName  string
	DetailURL    string
	NativeID     string
	SourceSite   string
	Technologies []string
	PostedAt     time.Time
}

// Match is one candidate vacancy with its blended similarity score
type Match struct {
	VacancyID   domain.VacancyID
	Score       float64
	ShouldMerge bool
	Exact       bool
	Reasons     []string
}

// Result is the outcome of a duplicate check. When Exact is set the fuzzy
// matcher never ran.
type Result struct {
	Exact   *Match
	Matches []Match
}

// Config holds the detector's tuning constants. The defaults mirror observed
// product behavior and are deliberately overridable; treat them as a starting
// point for calibration, not ground truth.
type Config struct {
	TitleWeight     float64
	CompanyWeight   float64
	TechWeight      float64
	TemporalWeight  float64
	TemporalWindow  time.Duration
	ReportThreshold float64
	MergeThreshold  float64
	CandidateLimit  int
}

// DefaultConfig returns the stock tuning constants
func DefaultConfig() Config {
	return Config{
		TitleWeight:     0.4,
		CompanyWeight:   0.3,
		TechWeight:      0.2,
		TemporalWeight:  0.1,
		TemporalWindow:  30 * 24 * time.Hour,
		ReportThreshold: 0.6,
		MergeThreshold:  0.8,
		CandidateLimit:  50,
	}
}

// Detector resolves listing identity against stored vacancies
type Detector struct {
	vacancies repository.VacancyRepository
	companies repository.CompanyRepository
	cfg       Config
	clock     func() time.Time
	log       *logging.Logger
}

// Option configures Detector
type Option func(*Detector)

// WithConfig overrides the tuning constants
func WithConfig(cfg Config) Option {
	return func(d *Detector) { d.cfg = cfg }
}

// WithClock sets a custom clock
func WithClock(clock func() time.Time) Option {
	return func(d *Detector) { d.clock = clock }
}

// NewDetector builds a Detector over the vacancy and company repositories
func NewDetector(vacancies repository.VacancyRepository, companies repository.CompanyRepository, log *logging.Logger, opts ...Option) (*Detector, error) {
	if vacancies == nil {
		return nil, fmt.Errorf("dedup: vacancy repository is required")
	}
	if companies == nil {
		return nil, fmt.Errorf("dedup: company repository is required")
	}
	d := &Detector{
		vacancies: vacancies,
		companies: companies,
		cfg:       DefaultConfig(),
		clock:     time.Now,
		log:       log.With("component", "dedup"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Detect checks the listing against stored vacancies. An exact hit on detail
// URL or native id short-circuits fuzzy scoring. Lookup faults degrade to an
// empty result so degraded dedup never blocks ingestion.
func (d *Detector) Detect(ctx context.Context, listing Listing) Result {
	if exact := d.exactMatch(ctx, listing); exact != nil {
		return Result{Exact: exact}
	}
	return Result{Matches: d.fuzzyMatches(ctx, listing)}
}

func (d *Detector) exactMatch(ctx context.Context, listing Listing) *Match {
	if listing.DetailURL != "" {
		v, err := d.vacancies.FindByDetailURL(ctx, listing.DetailURL)
		if err != nil {
			d.log.Warn("exact url lookup failed", "url", listing.DetailURL, "err", err)
		} else if v != nil {
			return &Match{
				VacancyID:   v.ID,
				Score:       1,
				ShouldMerge: true,
				Exact:       true,
				Reasons:     []string{"Identical detail URL"},
			}
		}
	}
	if listing.SourceSite != "" && listing.NativeID != "" {
		v, err := d.vacancies.FindByExternalID(ctx, listing.SourceSite, listing.NativeID)
		if err != nil {
			d.log.Warn("exact external id lookup failed", "site", listing.SourceSite, "err", err)
		} else if v != nil {
			return &Match{
				VacancyID:   v.ID,
				Score:       1,
				ShouldMerge: true,
				Exact:       true,
				Reasons:     []string{fmt.Sprintf("Same native id on %s", listing.SourceSite)},
			}
		}
	}
	return nil
}

func (d *Detector) fuzzyMatches(ctx context.Context, listing Listing) []Match {
	candidates, err := d.vacancies.FindCandidates(ctx, listing.Title, listing.CompanyID, d.cfg.CandidateLimit)
	if err != nil {
		// Degraded dedup favors creating a duplicate over blocking ingestion.
		d.log.Warn("candidate lookup failed, treating as no match", "title", listing.Title, "err", err)
		return nil
	}

	var matches []Match
	for _, candidate := range candidates {
		m := d.score(ctx, listing, candidate)
		if m.Score >= d.cfg.ReportThreshold {
			matches = append(matches, m)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches
}

func (d *Detector) score(ctx context.Context, listing Listing, candidate domain.Vacancy) Match {
	titleSim := stringSimilarity(listing.Title, candidate.Title)
	companySim := d.companySimilarity(ctx, listing, candidate)
	overlap := techOverlap(listing.Technologies, candidate.Technologies)
	temporal := temporalProximity(listing.PostedAt, candidate.PostedAt, d.cfg.TemporalWindow)

	score := d.cfg.TitleWeight*titleSim +
		d.cfg.CompanyWeight*companySim +
		d.cfg.TechWeight*overlap +
		d.cfg.TemporalWeight*temporal

	var reasons []string
	if titleSim >= 0.8 {
		reasons = append(reasons, "Similar job title")
	}
	if companySim >= 0.99 {
		reasons = append(reasons, "Same company")
	} else if companySim >= 0.8 {
		reasons = append(reasons, "Similar company name")
	}
	if overlap >= 0.5 {
		reasons = append(reasons, "High technology overlap")
	}
	if temporal >= 0.8 {
		reasons = append(reasons, "Posted around the same time")
	}

	return Match{
		VacancyID:   candidate.ID,
		Score:       score,
		ShouldMerge: score >= d.cfg.MergeThreshold,
		Reasons:     reasons,
	}
}

func (d *Detector) companySimilarity(ctx context.Context, listing Listing, candidate domain.Vacancy) float64 {
	if listing.CompanyID != uuid.Nil && listing.CompanyID == candidate.CompanyID {
		return 1
	}
	if listing.CompanyName == "" {
		return 0
	}
	company, err := d.companies.GetByID(ctx, candidate.CompanyID)
	if err != nil || company == nil {
		// Scoring fault inside fuzzy search degrades to no company signal.
		return 0
	}
	return stringSimilarity(listing.CompanyName, company.Name)
}

// Merge records the listing's source site on an existing vacancy. Prior
// entries from other sites are untouched and no new row is created. Unlike
// lookups, a fault here propagates: silently dropping a merge loses
// provenance.
func (d *Detector) Merge(ctx context.Context, vacancyID domain.VacancyID, listing Listing) error {
	v, err := d.vacancies.GetByID(ctx, vacancyID)
	if err != nil {
		return fmt.Errorf("dedup: load vacancy %s for merge: %w", vacancyID, err)
	}
	v.RecordSource(listing.SourceSite, listing.DetailURL, listing.NativeID, d.clock())
	if err := d.vacancies.Update(ctx, v); err != nil {
		return fmt.Errorf("dedup: merge %s into vacancy %s: %w", listing.SourceSite, vacancyID, err)
	}
	d.log.Info("listing merged into existing vacancy",
		"vacancy", vacancyID, "site", listing.SourceSite, "nativeID", listing.NativeID)
	return nil
}
