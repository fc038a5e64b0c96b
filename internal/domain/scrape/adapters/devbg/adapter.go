// Package devbg is the reference site adapter for dev.bg. It demonstrates
// the adapter contract; other boards follow the same shape with their own
// selectors.
package devbg

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jobradar/jobradar/internal/domain"
	"github.com/jobradar/jobradar/internal/domain/scrape"
)

const (
	siteKey     = "dev.bg"
	baseURL     = "https://dev.bg"
	listingPath = "/company/jobs/"
	httpTimeout = 15 * time.Second
)

// Adapter scrapes dev.bg listing and company profile pages
type Adapter struct {
	baseURL string
	client  *http.Client
	clock   func() time.Time
}

// Option configures Adapter
type Option func(*Adapter)

// WithBaseURL overrides the site base URL, for tests
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// New constructs the dev.bg adapter
func New(opts ...Option) *Adapter {
	a := &Adapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: httpTimeout},
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Site returns the registry key
func (a *Adapter) Site() string { return siteKey }

// ScrapeListings fetches one page of the job board and parses each card.
// A malformed card is reported in Errors and skipped, never fatal.
func (a *Adapter) ScrapeListings(ctx context.Context, opts scrape.ListingsOptions) (scrape.ListingsResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}

	pageURL := fmt.Sprintf("%s%s?_paged=%d", a.baseURL, listingPath, page)
	doc, err := a.fetch(ctx, pageURL)
	if err != nil {
		return scrape.ListingsResult{}, fmt.Errorf("devbg: fetch listings page %d: %w", page, err)
	}

	var result scrape.ListingsResult
	scrapedAt := a.clock()

	doc.Find("div.job-list-item").EachWithBreak(func(i int, card *goquery.Selection) bool {
		if opts.Limit > 0 && len(result.Listings) >= opts.Limit {
			return false
		}
		listing, err := a.parseCard(card, scrapedAt)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("card %d: %v", i, err))
			return true
		}
		result.Listings = append(result.Listings, listing)
		return true
	})

	result.TotalFound = siteTotal(doc)
	if result.TotalFound == 0 {
		// No count element; the page's own cards are the best lower bound.
		result.TotalFound = doc.Find("div.job-list-item").Length()
	}
	result.HasNextPage = doc.Find("a.next.page-numbers").Length() > 0
	return result, nil
}

var listingCountRe = regexp.MustCompile(`\d+`)

// siteTotal reads the board-wide listing count from the results header
func siteTotal(doc *goquery.Document) int {
	text := strings.TrimSpace(doc.Find("span.listing-count").First().Text())
	if text == "" {
		return 0
	}
	n, err := strconv.Atoi(listingCountRe.FindString(text))
	if err != nil {
		return 0
	}
	return n
}

func (a *Adapter) parseCard(card *goquery.Selection, scrapedAt time.Time) (domain.RawListing, error) {
	title := strings.TrimSpace(card.Find("h6.job-title").Text())
	if title == "" {
		return domain.RawListing{}, fmt.Errorf("missing title")
	}

	href, _ := card.Find("a.overlay-link").Attr("href")
	detailURL := a.absoluteURL(href)
	if detailURL == "" {
		return domain.RawListing{}, fmt.Errorf("missing detail link")
	}

	var hints []string
	card.Find("div.tech-stack span").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			hints = append(hints, t)
		}
	})

	return domain.RawListing{
		Title:        title,
		CompanyName:  strings.TrimSpace(card.Find("span.company-name").Text()),
		DetailURL:    detailURL,
		NativeID:     nativeIDFromURL(detailURL),
		LocationText: strings.TrimSpace(card.Find("span.badge-location").Text()),
		SalaryText:   strings.TrimSpace(card.Find("span.badge-salary").Text()),
		PostedText:   strings.TrimSpace(card.Find("span.date").Text()),
		TechHints:    hints,
		FullText:     strings.TrimSpace(card.Text()),
		SourceSite:   siteKey,
		ScrapedAt:    scrapedAt,
	}, nil
}

// ScrapeCompanyProfile fetches and parses a single company page
func (a *Adapter) ScrapeCompanyProfile(ctx context.Context, profileURL string) scrape.CompanyProfileResult {
	doc, err := a.fetch(ctx, profileURL)
	if err != nil {
		return scrape.CompanyProfileResult{Err: fmt.Sprintf("devbg: fetch profile: %v", err)}
	}

	name := strings.TrimSpace(doc.Find("h1.company-name").Text())
	if name == "" {
		return scrape.CompanyProfileResult{Err: "devbg: profile page has no company name"}
	}

	website, _ := doc.Find("a.company-website").Attr("href")
	html, _ := doc.Html()

	return scrape.CompanyProfileResult{
		Success: true,
		Data: &domain.RawCompanyPage{
			Name:        name,
			Website:     strings.TrimSpace(website),
			Location:    strings.TrimSpace(doc.Find("span.company-location").Text()),
			Industry:    strings.TrimSpace(doc.Find("span.company-industry").Text()),
			Description: strings.TrimSpace(doc.Find("div.company-description").Text()),
			SourceURL:   profileURL,
			SourceSite:  siteKey,
			RawHTML:     html,
		},
	}
}

func (a *Adapter) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

func (a *Adapter) absoluteURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return a.baseURL + "/" + strings.TrimPrefix(href, "/")
}

// nativeIDFromURL uses the job slug as the board's native id; dev.bg has no
// numeric ids in its public markup
func nativeIDFromURL(detailURL string) string {
	u, err := url.Parse(detailURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
