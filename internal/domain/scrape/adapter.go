// Package scrape holds the site adapter contract, the adapter registry, raw
// listing normalization, and the ingestion service that turns scraped pages
// into canonical records.
package scrape

import (
	"context"

	"github.com/jobradar/jobradar/internal/domain"
)

// ListingsOptions controls one listing-page scrape
type ListingsOptions struct {
	Limit int
	Page  int
}

// ListingsResult is the outcome of scraping one listing page. Errors holds
// per-fragment parse failures; a malformed card never fails the page.
type ListingsResult struct {
	Listings    []domain.RawListing
	TotalFound  int
	HasNextPage bool
	Errors      []string
}

// CompanyProfileResult is the outcome of scraping one company profile page
type CompanyProfileResult struct {
	Success bool
	Data    *domain.RawCompanyPage
	Err     string
}

// Adapter is the per-site scraping contract. One implementation per source
// site, registered under its site key (e.g. "dev.bg", "jobs.bg"). Concrete
// selector logic stays inside the adapter.
type Adapter interface {
	// Site returns the site key this adapter serves
	Site() string

	// ScrapeListings fetches and parses one page of job listings
	ScrapeListings(ctx context.Context, opts ListingsOptions) (ListingsResult, error)

	// ScrapeCompanyProfile fetches and parses a single company profile page
	ScrapeCompanyProfile(ctx context.Context, url string) CompanyProfileResult
}
