package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRecordSource_Additive(t *testing.T) {
	t.Parallel()

	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := Vacancy{ID: uuid.New()}
	v.RecordSource("dev.bg", "https://dev.bg/job/1", "dev-1", seen)
	v.RecordSource("jobs.bg", "https://jobs.bg/job/9", "jobs-9", seen.Add(time.Hour))

	if len(v.ScrapedSites) != 2 || len(v.ExternalIDs) != 2 {
		t.Fatalf("expected 2 sources, got sites=%d ids=%d", len(v.ScrapedSites), len(v.ExternalIDs))
	}
	first := v.ScrapedSites["dev.bg"]
	if first.URL != "https://dev.bg/job/1" || first.NativeID != "dev-1" || !first.LastSeenAt.Equal(seen) {
		t.Fatalf("dev.bg provenance mutated by second source: %+v", first)
	}
	if v.ExternalIDs["jobs.bg"] != "jobs-9" {
		t.Fatalf("jobs.bg external id = %q, want jobs-9", v.ExternalIDs["jobs.bg"])
	}

	// Re-recording the same site refreshes it without touching others.
	v.RecordSource("jobs.bg", "https://jobs.bg/job/9", "jobs-9", seen.Add(2*time.Hour))
	if v.ScrapedSites["dev.bg"] != first {
		t.Fatalf("dev.bg provenance changed on jobs.bg refresh")
	}
	if !v.ScrapedSites["jobs.bg"].LastSeenAt.Equal(seen.Add(2 * time.Hour)) {
		t.Fatalf("jobs.bg last-seen not refreshed")
	}
}

func TestRecordSource_KeysStayPaired(t *testing.T) {
	t.Parallel()

	var v Vacancy
	v.RecordSource("dev.bg", "https://dev.bg/job/1", "dev-1", time.Now())
	for site := range v.ExternalIDs {
		if _, ok := v.ScrapedSites[site]; !ok {
			t.Fatalf("external id for %q has no scraped-site entry", site)
		}
	}
}

func TestCompanyAbsorb_FillAndAlias(t *testing.T) {
	t.Parallel()

	c := NewCompany("UKG")
	if !c.HasAlias("ukg") {
		t.Fatal("creation name should be an alias (case-insensitive)")
	}

	c.Absorb("UKG (Ultimate Kronos Group)", "", "Sofia", "HR Tech", "")
	if len(c.Aliases) != 2 {
		t.Fatalf("expected 2 aliases, got %v", c.Aliases)
	}
	if c.Location != "Sofia" || c.Industry != "HR Tech" {
		t.Fatalf("empty fields not filled: %+v", c)
	}

	// Already-filled fields are not overwritten.
	c.Absorb("UKG", "", "Plovdiv", "Other", "desc")
	if c.Location != "Sofia" || c.Industry != "HR Tech" {
		t.Fatalf("filled fields were overwritten: %+v", c)
	}
	if c.Description != "desc" {
		t.Fatalf("empty description should fill, got %q", c.Description)
	}
	if len(c.Aliases) != 2 {
		t.Fatalf("duplicate alias appended: %v", c.Aliases)
	}
}

func TestCompanyAbsorb_WebsiteHistoryPreserved(t *testing.T) {
	t.Parallel()

	c := NewCompany("UKG")
	c.Absorb("", "https://ukg.com", "", "", "")
	if c.Website != "https://ukg.com" || c.OriginalWebsite != "" {
		t.Fatalf("first website should set without history: %+v", c)
	}

	c.Absorb("", "https://www.ukg.com/bg", "", "", "")
	if c.Website != "https://www.ukg.com/bg" {
		t.Fatalf("website not overwritten: %q", c.Website)
	}
	if c.OriginalWebsite != "https://ukg.com" {
		t.Fatalf("previous website lost: %q", c.OriginalWebsite)
	}
}
