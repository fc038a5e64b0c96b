// Package adzuna adapts the Adzuna aggregator API to the site adapter
// contract. Unlike board adapters it parses no HTML; the API already hands
// back structured postings.
package adzuna

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jobradar/jobradar/internal/domain"
	"github.com/jobradar/jobradar/internal/domain/scrape"
	"github.com/jobradar/jobradar/pkg/adzuna"
)

const (
	siteKey      = "adzuna.com"
	defaultQuery = "software developer"
)

// Adapter sources listings from the Adzuna search API
type Adapter struct {
	client *adzuna.Client
	query  string
	clock  func() time.Time
}

// Option configures Adapter
type Option func(*Adapter)

// WithQuery overrides the search query used for listing pages
func WithQuery(q string) Option {
	return func(a *Adapter) { a.query = q }
}

// WithClock sets a custom clock
func WithClock(clock func() time.Time) Option {
	return func(a *Adapter) { a.clock = clock }
}

// New constructs the Adzuna adapter over an API client
func New(client *adzuna.Client, opts ...Option) (*Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("adzuna adapter: client is required")
	}
	a := &Adapter{
		client: client,
		query:  defaultQuery,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

var _ scrape.Adapter = (*Adapter)(nil)

// Site returns the registry key
func (a *Adapter) Site() string { return siteKey }

// ScrapeListings fetches one result page from the search API
func (a *Adapter) ScrapeListings(ctx context.Context, opts scrape.ListingsOptions) (scrape.ListingsResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}

	res, err := a.client.SearchJobs(ctx, a.query, adzuna.SearchParams{Page: page})
	if err != nil {
		return scrape.ListingsResult{}, fmt.Errorf("adzuna: search page %d: %w", page, err)
	}

	result := scrape.ListingsResult{
		TotalFound:  res.TotalFound,
		HasNextPage: page < res.Pages,
	}
	scrapedAt := a.clock()

	for _, job := range res.Jobs {
		if opts.Limit > 0 && len(result.Listings) >= opts.Limit {
			break
		}
		listing, err := mapJob(job, scrapedAt)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("posting %s: %v", job.ID, err))
			continue
		}
		result.Listings = append(result.Listings, listing)
	}
	return result, nil
}

func mapJob(job adzuna.Job, scrapedAt time.Time) (domain.RawListing, error) {
	if strings.TrimSpace(job.Title) == "" {
		return domain.RawListing{}, fmt.Errorf("missing title")
	}
	if strings.TrimSpace(job.URL) == "" {
		return domain.RawListing{}, fmt.Errorf("missing redirect url")
	}

	locationText := job.Location
	if job.Remote {
		locationText = strings.TrimSpace(locationText + " Remote")
	}

	var salaryText string
	if job.SalaryMin > 0 || job.SalaryMax > 0 {
		salaryText = fmt.Sprintf("%.0f - %.0f", job.SalaryMin, job.SalaryMax)
	}

	var postedText string
	if !job.PostedAt.IsZero() {
		postedText = job.PostedAt.Format("2006-01-02")
	}

	return domain.RawListing{
		Title:        strings.TrimSpace(job.Title),
		CompanyName:  strings.TrimSpace(job.CompanyName),
		DetailURL:    job.URL,
		NativeID:     job.ID,
		LocationText: locationText,
		SalaryText:   salaryText,
		PostedText:   postedText,
		FullText:     strings.TrimSpace(job.Title + "\n" + job.Description),
		SourceSite:   siteKey,
		ScrapedAt:    scrapedAt,
	}, nil
}

// ScrapeCompanyProfile is unsupported; the aggregator API exposes no company
// pages
func (a *Adapter) ScrapeCompanyProfile(ctx context.Context, url string) scrape.CompanyProfileResult {
	_ = ctx
	return scrape.CompanyProfileResult{Err: fmt.Sprintf("adzuna: no company profile pages (url %s)", url)}
}
