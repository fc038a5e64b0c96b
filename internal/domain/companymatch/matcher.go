// Package companymatch resolves scraped company data against canonical
// companies across sources, merging on a confident match and creating a new
// record otherwise.
package companymatch

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/jobradar/jobradar/internal/domain"
	"github.com/jobradar/jobradar/internal/repository"
	"github.com/jobradar/jobradar/pkg/logging"
)

// CompanyInfo is the observed company data being resolved
type CompanyInfo struct {
	Name        string
	Website     string
	Location    string
	Industry    string
	Description string
}

// MatchKind says which rule produced a match
type MatchKind string

const (
	MatchDomain MatchKind = "domain"
	MatchName   MatchKind = "exact-name"
	MatchAlias  MatchKind = "alias"
	MatchFuzzy  MatchKind = "fuzzy"
	MatchNone   MatchKind = "none"
)

// Match is one candidate company with its score
type Match struct {
	Company *domain.Company
	Kind    MatchKind
	Score   float64
	Reason  string
}

// Config holds the matcher's tuning constants, named and overridable rather
// than buried as literals. Flagged for calibration against real data.
type Config struct {
	NameWeight     float64
	AliasWeight    float64
	LocationWeight float64
	IndustryWeight float64

	// DomainOverrideScore is applied when a fuzzy candidate shares the
	// query's website domain. Domain identity beats any name heuristic.
	DomainOverrideScore float64

	MergeThreshold float64
	CandidateLimit int
}

// DefaultConfig returns the stock tuning constants
func DefaultConfig() Config {
	return Config{
		NameWeight:          0.5,
		AliasWeight:         0.3,
		LocationWeight:      0.1,
		IndustryWeight:      0.1,
		DomainOverrideScore: 0.95,
		MergeThreshold:      0.8,
		CandidateLimit:      50,
	}
}

// Matcher resolves company identity against the repository
type Matcher struct {
	repo repository.CompanyRepository
	cfg  Config
	log  *logging.Logger

	// Merge and create are serialized per company identity so two concurrent
	// resolutions of the same name cannot both create a canonical record.
	identityLocks [64]sync.Mutex
}

// Option configures Matcher
type Option func(*Matcher)

// WithConfig overrides the tuning constants
func WithConfig(cfg Config) Option {
	return func(m *Matcher) { m.cfg = cfg }
}

// NewMatcher builds a Matcher over the company repository
func NewMatcher(repo repository.CompanyRepository, log *logging.Logger, opts ...Option) (*Matcher, error) {
	if repo == nil {
		return nil, fmt.Errorf("companymatch: repository is required")
	}
	m := &Matcher{
		repo: repo,
		cfg:  DefaultConfig(),
		log:  log.With("component", "companymatch"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Match finds the best canonical company for the observed data. Exact rules
// run first in priority order: domain, exact name, alias; fuzzy scoring only
// when all three miss. Lookup faults degrade to no match.
func (m *Matcher) Match(ctx context.Context, info CompanyInfo) Match {
	if exact := m.exactMatch(ctx, info); exact != nil {
		return *exact
	}
	return m.fuzzyMatch(ctx, info)
}

func (m *Matcher) exactMatch(ctx context.Context, info CompanyInfo) *Match {
	if host := extractDomain(info.Website); host != "" {
		companies, err := m.repo.FindByDomain(ctx, host)
		if err != nil {
			m.log.Warn("domain lookup failed", "host", host, "err", err)
		}
		for i := range companies {
			c := &companies[i]
			if extractDomain(c.Website) == host || extractDomain(c.OriginalWebsite) == host {
				return &Match{Company: c, Kind: MatchDomain, Score: 1, Reason: "Same website domain"}
			}
		}
	}

	if info.Name != "" {
		c, err := m.repo.FindByName(ctx, info.Name)
		if err != nil {
			m.log.Warn("name lookup failed", "name", info.Name, "err", err)
		} else if c != nil {
			return &Match{Company: c, Kind: MatchName, Score: 1, Reason: "Exact company name"}
		}

		c, err = m.repo.FindByAlias(ctx, info.Name)
		if err != nil {
			m.log.Warn("alias lookup failed", "name", info.Name, "err", err)
		} else if c != nil {
			return &Match{Company: c, Kind: MatchAlias, Score: 1, Reason: "Known company alias"}
		}
	}
	return nil
}

func (m *Matcher) fuzzyMatch(ctx context.Context, info CompanyInfo) Match {
	words := nameWords(info.Name)
	if len(words) == 0 {
		return Match{Kind: MatchNone}
	}

	candidates, err := m.repo.FindCandidates(ctx, words, m.cfg.CandidateLimit)
	if err != nil {
		// Favor creating a possible duplicate over blocking ingestion.
		m.log.Warn("candidate lookup failed, treating as no match", "name", info.Name, "err", err)
		return Match{Kind: MatchNone}
	}
	if len(candidates) == 0 {
		return Match{Kind: MatchNone}
	}

	queryName := normalizeName(info.Name)
	queryHost := extractDomain(info.Website)

	scored := make([]Match, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		score, reason := m.scoreCandidate(queryName, queryHost, info, c)
		scored = append(scored, Match{Company: c, Kind: MatchFuzzy, Score: score, Reason: reason})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored[0]
}

func (m *Matcher) scoreCandidate(queryName, queryHost string, info CompanyInfo, c *domain.Company) (float64, string) {
	// Domain identity on the fuzzy path forces a near-maximal score.
	if queryHost != "" && (extractDomain(c.Website) == queryHost || extractDomain(c.OriginalWebsite) == queryHost) {
		return m.cfg.DomainOverrideScore, "Same website domain"
	}

	nameSim := nameSimilarity(queryName, normalizeName(c.Name))

	bestAlias := 0.0
	for _, alias := range c.Aliases {
		if sim := nameSimilarity(queryName, normalizeName(alias)); sim > bestAlias {
			bestAlias = sim
		}
	}

	score := m.cfg.NameWeight*nameSim +
		m.cfg.AliasWeight*bestAlias +
		m.cfg.LocationWeight*fieldSimilarity(info.Location, c.Location) +
		m.cfg.IndustryWeight*fieldSimilarity(info.Industry, c.Industry)

	reason := "Similar company name"
	if bestAlias > nameSim {
		reason = "Similar to a known alias"
	}
	return score, reason
}

// Resolve matches the observed company and either merges into the canonical
// record (score at or above the merge threshold) or creates a new one.
// Returns the canonical company and whether it was created. Write faults
// propagate; silently losing a merge is worse than a visible failure.
// Lookup and write run under the identity lock so the second of two
// concurrent resolutions observes the first one's create.
func (m *Matcher) Resolve(ctx context.Context, info CompanyInfo) (*domain.Company, bool, error) {
	lock := m.lockFor(info)
	lock.Lock()
	defer lock.Unlock()

	match := m.Match(ctx, info)

	if match.Company != nil && match.Score >= m.cfg.MergeThreshold {
		c := match.Company
		c.Absorb(info.Name, info.Website, info.Location, info.Industry, info.Description)
		if err := m.repo.Update(ctx, c); err != nil {
			return nil, false, fmt.Errorf("companymatch: merge into %s: %w", c.ID, err)
		}
		m.log.Info("company matched",
			"company", c.ID, "kind", match.Kind, "score", match.Score, "name", info.Name)
		return c, false, nil
	}

	c := domain.NewCompany(info.Name)
	c.Absorb("", info.Website, info.Location, info.Industry, info.Description)
	if err := m.repo.Create(ctx, c); err != nil {
		return nil, false, fmt.Errorf("companymatch: create %q: %w", info.Name, err)
	}
	m.log.Info("company created", "company", c.ID, "name", info.Name)
	return c, true, nil
}

func (m *Matcher) lockFor(info CompanyInfo) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(normalizeName(info.Name)))
	return &m.identityLocks[h.Sum32()%uint32(len(m.identityLocks))]
}

// AbsorbInto merges observed data into an already-identified company, used
// when a profile refetch lands for a known company id. Write faults
// propagate.
func (m *Matcher) AbsorbInto(ctx context.Context, id domain.CompanyID, info CompanyInfo) error {
	c, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("companymatch: load %s: %w", id, err)
	}
	c.Absorb(info.Name, info.Website, info.Location, info.Industry, info.Description)
	if err := m.repo.Update(ctx, c); err != nil {
		return fmt.Errorf("companymatch: absorb into %s: %w", id, err)
	}
	return nil
}
