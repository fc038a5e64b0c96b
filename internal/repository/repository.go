// Package repository declares the persistence boundary of the ingestion core.
// Storage implementations live under internal/storage; everything above this
// interface treats persistence as opaque.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jobradar/jobradar/internal/domain"
)

// ErrNotFound is returned by Get operations when no row exists for the key.
// Find operations instead return (nil, nil) on no match.
var ErrNotFound = errors.New("repository: not found")

// VacancyRepository persists canonical vacancies
type VacancyRepository interface {
	GetByID(ctx context.Context, id domain.VacancyID) (*domain.Vacancy, error)

	// FindByDetailURL looks up a vacancy that has url recorded for any source
	FindByDetailURL(ctx context.Context, url string) (*domain.Vacancy, error)

	// FindByExternalID looks up a vacancy by a source site's native id
	FindByExternalID(ctx context.Context, site, nativeID string) (*domain.Vacancy, error)

	// FindCandidates returns a bounded set of vacancies sharing a title or
	// company signal with the query, for fuzzy matching
	FindCandidates(ctx context.Context, title string, companyID domain.CompanyID, limit int) ([]domain.Vacancy, error)

	// Create inserts the vacancy; the upsert is conditional on ID so two
	// concurrent creates of the same entity cannot both land
	Create(ctx context.Context, v *domain.Vacancy) error

	Update(ctx context.Context, v *domain.Vacancy) error
}

// CompanyRepository persists canonical companies
type CompanyRepository interface {
	GetByID(ctx context.Context, id domain.CompanyID) (*domain.Company, error)

	// FindByDomain returns companies whose website or original website lives
	// on the given host (scheme/www/path already stripped by the caller)
	FindByDomain(ctx context.Context, host string) ([]domain.Company, error)

	// FindByName looks up a company by case-insensitive exact name
	FindByName(ctx context.Context, name string) (*domain.Company, error)

	// FindByAlias looks up a company carrying name on its alias list
	FindByAlias(ctx context.Context, name string) (*domain.Company, error)

	// FindCandidates returns a bounded set of companies overlapping any of
	// the given name words, for fuzzy matching
	FindCandidates(ctx context.Context, nameWords []string, limit int) ([]domain.Company, error)

	Create(ctx context.Context, c *domain.Company) error
	Update(ctx context.Context, c *domain.Company) error
}

// CompanySourceRepository persists per-site company page cache rows
type CompanySourceRepository interface {
	// Get returns the row for companyID+site, or (nil, nil) when absent
	Get(ctx context.Context, companyID domain.CompanyID, site string) (*domain.CompanySource, error)

	// Upsert writes the row, replacing any existing row for the same key
	Upsert(ctx context.Context, src *domain.CompanySource) error

	// DeleteOlderThan removes rows last scraped before cutoff and reports
	// how many were removed
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
