// Package sourcecache decides whether previously scraped company pages are
// stale. Cache evaluation never blocks ingestion: internal faults degrade to
// a refetch decision instead of an error.
package sourcecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jobradar/jobradar/internal/domain"
	"github.com/jobradar/jobradar/internal/repository"
	"github.com/jobradar/jobradar/pkg/logging"
)

// Decision is the outcome of a staleness check
type Decision struct {
	Refetch  bool
	Reason   string
	Existing *domain.CompanySource
}

// SaveInput carries one scrape attempt's outcome. Failed attempts are saved
// too, with Valid=false.
type SaveInput struct {
	CompanyID  domain.CompanyID
	SourceSite string
	SourceURL  string
	RawContent string
	Valid      bool
}

// Service evaluates and records company page cache state
type Service struct {
	repo  repository.CompanySourceRepository
	ttl   TTLTable
	clock func() time.Time
	log   *logging.Logger
}

// Option configures Service
type Option func(*Service)

// WithTTLTable overrides the per-source TTL table
func WithTTLTable(t TTLTable) Option {
	return func(s *Service) { s.ttl = t }
}

// WithClock sets a custom clock
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// NewService builds a cache service over a company source repository
func NewService(repo repository.CompanySourceRepository, log *logging.Logger, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("sourcecache: repository is required")
	}
	s := &Service{
		repo:  repo,
		ttl:   DefaultTTLTable(),
		clock: time.Now,
		log:   log.With("component", "sourcecache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ShouldRefetch evaluates staleness for one company page, first match wins:
// no stored row, force, URL changed, invalidated, TTL expired; otherwise the
// cached row is still good and the reason carries the remaining time.
func (s *Service) ShouldRefetch(ctx context.Context, companyID domain.CompanyID, sourceSite, sourceURL string, force bool) Decision {
	existing, err := s.repo.Get(ctx, companyID, sourceSite)
	if err != nil {
		// Caching must never block ingestion.
		s.log.Warn("cache lookup failed, refetching anyway", "company", companyID, "site", sourceSite, "err", err)
		return Decision{Refetch: true, Reason: fmt.Sprintf("cache lookup failed: %v", err)}
	}

	if existing == nil {
		return Decision{Refetch: true, Reason: "no cached source"}
	}
	if force {
		return Decision{Refetch: true, Reason: "forced refetch", Existing: existing}
	}
	if existing.SourceURL != sourceURL {
		return Decision{Refetch: true, Reason: "URL changed", Existing: existing}
	}
	if !existing.IsValid {
		return Decision{Refetch: true, Reason: "cached source marked invalid", Existing: existing}
	}

	ttl := s.ttl.For(sourceSite)
	expiresAt := existing.LastScrapedAt.Add(ttl)
	now := s.clock()
	if now.After(expiresAt) {
		return Decision{
			Refetch:  true,
			Reason:   fmt.Sprintf("TTL expired %s ago (ttl %s)", now.Sub(expiresAt).Round(time.Minute), ttl),
			Existing: existing,
		}
	}

	return Decision{
		Refetch:  false,
		Reason:   fmt.Sprintf("cached source still fresh, expires in %s", expiresAt.Sub(now).Round(time.Minute)),
		Existing: existing,
	}
}

// Save records one scrape attempt, successful or not. The row is upserted
// with lastScrapedAt stamped now and a content hash when content is present.
func (s *Service) Save(ctx context.Context, in SaveInput) error {
	src := &domain.CompanySource{
		CompanyID:     in.CompanyID,
		SourceSite:    in.SourceSite,
		SourceURL:     in.SourceURL,
		LastScrapedAt: s.clock(),
		IsValid:       in.Valid,
		RawContent:    in.RawContent,
	}
	if in.RawContent != "" {
		src.ContentHash = hashContent(in.RawContent)
	}
	if err := s.repo.Upsert(ctx, src); err != nil {
		return fmt.Errorf("sourcecache: save %s/%s: %w", in.CompanyID, in.SourceSite, err)
	}
	return nil
}

// MarkInvalid flags a cached row so the next check refetches it
func (s *Service) MarkInvalid(ctx context.Context, companyID domain.CompanyID, sourceSite, reason string) error {
	existing, err := s.repo.Get(ctx, companyID, sourceSite)
	if err != nil {
		return fmt.Errorf("sourcecache: mark invalid %s/%s: %w", companyID, sourceSite, err)
	}
	if existing == nil {
		return nil
	}
	existing.IsValid = false
	if err := s.repo.Upsert(ctx, existing); err != nil {
		return fmt.Errorf("sourcecache: mark invalid %s/%s: %w", companyID, sourceSite, err)
	}
	s.log.Info("cached source invalidated", "company", companyID, "site", sourceSite, "reason", reason)
	return nil
}

// CleanupOlderThan purges rows last scraped more than days ago
func (s *Service) CleanupOlderThan(ctx context.Context, days int) (int, error) {
	cutoff := s.clock().AddDate(0, 0, -days)
	removed, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sourcecache: cleanup: %w", err)
	}
	if removed > 0 {
		s.log.Info("stale cached sources removed", "count", removed, "olderThanDays", days)
	}
	return removed, nil
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
