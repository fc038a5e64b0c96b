package adzuna

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jobradar/jobradar/internal/domain/scrape"
	pkgadzuna "github.com/jobradar/jobradar/pkg/adzuna"
)

const searchResponse = `{
  "count": 42,
  "pages": 3,
  "results": [
    {
      "id": "5001",
      "title": "Backend Engineer",
      "company": {"display_name": "Acme Corp"},
      "location": {"display_name": "Portland, OR"},
      "description": "Build services in Go.",
      "created": "2026-08-20T10:00:00Z",
      "redirect_url": "https://www.adzuna.com/land/ad/5001",
      "contract_time": "remote",
      "salary_min": 120000,
      "salary_max": 150000
    },
    {
      "id": "5002",
      "title": "",
      "company": {"display_name": "Nameless"},
      "redirect_url": "https://www.adzuna.com/land/ad/5002"
    }
  ]
}`

func newTestAdapter(t *testing.T, srv *httptest.Server) *Adapter {
	t.Helper()
	client, err := pkgadzuna.NewClient(pkgadzuna.Config{
		AppID:      "test-id",
		AppKey:     "test-key",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	a, err := New(client)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestScrapeListings_MapsPostingsAndSkipsBrokenOnes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchResponse))
	}))
	defer srv.Close()

	got, err := newTestAdapter(t, srv).ScrapeListings(context.Background(), scrape.ListingsOptions{Page: 1})
	if err != nil {
		t.Fatalf("ScrapeListings: %v", err)
	}

	if len(got.Listings) != 1 {
		t.Fatalf("listings = %d, want 1", len(got.Listings))
	}
	if len(got.Errors) != 1 {
		t.Fatalf("errors = %v, want one entry for the titleless posting", got.Errors)
	}
	if got.TotalFound != 42 {
		t.Errorf("TotalFound = %d, want 42", got.TotalFound)
	}
	if !got.HasNextPage {
		t.Error("HasNextPage = false, want true on page 1 of 3")
	}

	l := got.Listings[0]
	if l.Title != "Backend Engineer" || l.CompanyName != "Acme Corp" {
		t.Errorf("listing = %q @ %q", l.Title, l.CompanyName)
	}
	if l.NativeID != "5001" {
		t.Errorf("NativeID = %q, want 5001", l.NativeID)
	}
	if l.SourceSite != "adzuna.com" {
		t.Errorf("SourceSite = %q", l.SourceSite)
	}
	if l.LocationText != "Portland, OR Remote" {
		t.Errorf("LocationText = %q, want remote hint appended", l.LocationText)
	}
	if l.SalaryText != "120000 - 150000" {
		t.Errorf("SalaryText = %q", l.SalaryText)
	}
	if l.PostedText != "2026-08-20" {
		t.Errorf("PostedText = %q", l.PostedText)
	}
}

func TestScrapeCompanyProfile_IsUnsupported(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	got := newTestAdapter(t, srv).ScrapeCompanyProfile(context.Background(), "https://www.adzuna.com/company/x")
	if got.Success {
		t.Fatal("Success = true, want unsupported failure")
	}
	if got.Err == "" {
		t.Fatal("Err empty, want a reason")
	}
}
