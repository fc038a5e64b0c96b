package devbg

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jobradar/jobradar/internal/domain/scrape"
)

const listingsPage = `<!DOCTYPE html>
<html><body>
<span class="listing-count">128 обяви</span>
<div class="job-listing">
  <div class="job-list-item">
    <a class="overlay-link" href="/job/senior-go-developer-ukg/"></a>
    <h6 class="job-title">Senior Go Developer</h6>
    <span class="company-name">UKG</span>
    <span class="badge-location">Sofia / Remote</span>
    <span class="badge-salary">4000 - 6000 BGN</span>
    <span class="date">преди 3 дни</span>
    <div class="tech-stack"><span>Go</span><span>Kubernetes</span></div>
  </div>
  <div class="job-list-item">
    <a class="overlay-link" href="/job/qa-engineer-chaos/"></a>
    <h6 class="job-title">QA Engineer</h6>
    <span class="company-name">Chaos</span>
    <span class="badge-location">Plovdiv</span>
    <span class="date">днес</span>
  </div>
  <div class="job-list-item">
    <!-- broken card: no title, no link -->
    <span class="company-name">Mystery Co</span>
  </div>
</div>
<a class="next page-numbers" href="?_paged=2">2</a>
</body></html>`

const profilePage = `<!DOCTYPE html>
<html><body>
<h1 class="company-name">UKG (Ultimate Kronos Group)</h1>
<a class="company-website" href="https://www.ukg.com">ukg.com</a>
<span class="company-location">Sofia, Bulgaria</span>
<span class="company-industry">HR Technology</span>
<div class="company-description">Workforce management software.</div>
</body></html>`

func TestScrapeListings_ParsesCardsAndSkipsBrokenOnes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(listingsPage))
	}))
	defer srv.Close()

	a := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	got, err := a.ScrapeListings(context.Background(), scrape.ListingsOptions{})
	if err != nil {
		t.Fatalf("ScrapeListings: %v", err)
	}

	if len(got.Listings) != 2 {
		t.Fatalf("expected 2 parsed listings, got %d", len(got.Listings))
	}
	if len(got.Errors) != 1 {
		t.Fatalf("broken card should be reported, errors = %v", got.Errors)
	}
	if got.TotalFound != 128 || !got.HasNextPage {
		t.Fatalf("totalFound=%d hasNext=%v, want the board-wide count", got.TotalFound, got.HasNextPage)
	}

	first := got.Listings[0]
	if first.Title != "Senior Go Developer" || first.CompanyName != "UKG" {
		t.Fatalf("unexpected first listing: %+v", first)
	}
	if first.NativeID != "senior-go-developer-ukg" {
		t.Fatalf("native id = %q", first.NativeID)
	}
	if first.SalaryText != "4000 - 6000 BGN" || first.LocationText != "Sofia / Remote" {
		t.Fatalf("badges not captured: %+v", first)
	}
	if len(first.TechHints) != 2 {
		t.Fatalf("tech hints = %v", first.TechHints)
	}
	if first.SourceSite != "dev.bg" {
		t.Fatalf("source site = %q", first.SourceSite)
	}
}

func TestScrapeCompanyProfile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(profilePage))
	}))
	defer srv.Close()

	a := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	got := a.ScrapeCompanyProfile(context.Background(), srv.URL+"/company/ukg/")

	if !got.Success {
		t.Fatalf("profile scrape failed: %s", got.Err)
	}
	if got.Data.Name != "UKG (Ultimate Kronos Group)" || got.Data.Website != "https://www.ukg.com" {
		t.Fatalf("unexpected profile: %+v", got.Data)
	}
	if got.Data.RawHTML == "" {
		t.Fatal("raw html must be retained for the source cache")
	}
}

func TestScrapeCompanyProfile_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	got := a.ScrapeCompanyProfile(context.Background(), srv.URL+"/company/x/")
	if got.Success || got.Err == "" {
		t.Fatalf("expected failure result, got %+v", got)
	}
}

func TestScrapeListings_TotalFallsBackToPageCards(t *testing.T) {
	t.Parallel()

	page := `<!DOCTYPE html><html><body>
<div class="job-list-item">
  <a class="overlay-link" href="/job/solo/"></a>
  <h6 class="job-title">Solo Listing</h6>
</div>
</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	a := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	got, err := a.ScrapeListings(context.Background(), scrape.ListingsOptions{})
	if err != nil {
		t.Fatalf("ScrapeListings: %v", err)
	}
	if got.TotalFound != 1 {
		t.Fatalf("totalFound = %d, want the page card count when no count element exists", got.TotalFound)
	}
}
