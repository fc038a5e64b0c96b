package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// VacancyID uniquely identifies a canonical vacancy
type VacancyID = uuid.UUID

// CompanyID uniquely identifies a canonical company
type CompanyID = uuid.UUID

// WorkModel describes where the work happens
type WorkModel string

const (
	WorkModelUnknown WorkModel = "unknown"
	WorkModelRemote  WorkModel = "remote"
	WorkModelHybrid  WorkModel = "hybrid"
	WorkModelOffice  WorkModel = "office"
)

// ExperienceLevel buckets seniority
type ExperienceLevel string

const (
	ExperienceUnknown ExperienceLevel = ""
	ExperienceJunior  ExperienceLevel = "junior"
	ExperienceMid     ExperienceLevel = "mid"
	ExperienceSenior  ExperienceLevel = "senior"
)

// VacancyStatus is the lifecycle state of a canonical vacancy
type VacancyStatus string

const (
	VacancyActive   VacancyStatus = "active"
	VacancyArchived VacancyStatus = "archived"
)

// Salary is a normalized salary range
type Salary struct {
	Min      int
	Max      int
	Currency string
}

// RawListing is an unprocessed listing fragment as parsed by a site adapter.
// Consumed immediately by normalization; never persisted.
type RawListing struct {
	Title        string
	CompanyName  string
	DetailURL    string
	NativeID     string
	LocationText string // raw location / work-model badge text
	SalaryText   string
	PostedText   string
	TechHints    []string
	FullText     string
	SourceSite   string
	ScrapedAt    time.Time
}

// RawCompanyPage is an unprocessed company profile page
type RawCompanyPage struct {
	Name        string
	Website     string
	Location    string
	Industry    string
	Description string
	SourceURL   string
	SourceSite  string
	RawHTML     string
}

// SiteProvenance records what one source site last contributed to a vacancy
type SiteProvenance struct {
	LastSeenAt time.Time
	URL        string
	NativeID   string
}

// Vacancy is the canonical job posting entity, one row per real-world job.
// Every key present in ExternalIDs has a matching key in ScrapedSites.
type Vacancy struct {
	ID           VacancyID
	Title        string
	CompanyID    CompanyID
	Location     string
	WorkModel    WorkModel
	Technologies []string
	Salary       Salary
	Experience   ExperienceLevel
	PostedAt     time.Time
	ExternalIDs  map[string]string
	ScrapedSites map[string]SiteProvenance
	Status       VacancyStatus
}

// RecordSource additively registers a source site on the vacancy. Entries for
// other sites are never touched; re-recording the same site refreshes it.
// All provenance mutation goes through here, not direct map writes.
func (v *Vacancy) RecordSource(site, url, nativeID string, seenAt time.Time) {
	if v.ExternalIDs == nil {
		v.ExternalIDs = make(map[string]string)
	}
	if v.ScrapedSites == nil {
		v.ScrapedSites = make(map[string]SiteProvenance)
	}
	v.ExternalIDs[site] = nativeID
	v.ScrapedSites[site] = SiteProvenance{
		LastSeenAt: seenAt,
		URL:        url,
		NativeID:   nativeID,
	}
}

// Company is the canonical company entity
type Company struct {
	ID              CompanyID
	Name            string
	Website         string
	OriginalWebsite string
	Location        string
	Industry        string
	Description     string
	Aliases         []string
}

// NewCompany creates a company whose alias list starts with the creation name
func NewCompany(name string) *Company {
	return &Company{
		ID:      uuid.New(),
		Name:    name,
		Aliases: []string{name},
	}
}

// HasAlias reports whether name is already on the alias list, case-insensitively
func (c *Company) HasAlias(name string) bool {
	for _, a := range c.Aliases {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// Absorb merges observed company data into the canonical record. Aliases grow
// additively, descriptive fields fill only when empty, and a differing website
// moves the old value to OriginalWebsite before being overwritten.
func (c *Company) Absorb(name, website, location, industry, description string) {
	if name != "" && !c.HasAlias(name) {
		c.Aliases = append(c.Aliases, name)
	}
	if website != "" && !strings.EqualFold(website, c.Website) {
		if c.Website != "" {
			c.OriginalWebsite = c.Website
		}
		c.Website = website
	}
	if c.Location == "" {
		c.Location = location
	}
	if c.Industry == "" {
		c.Industry = industry
	}
	if c.Description == "" {
		c.Description = description
	}
}

// CompanySource is the cached state of one company page on one source site.
// Key is CompanyID + SourceSite; at most one row per key.
type CompanySource struct {
	CompanyID     CompanyID
	SourceSite    string
	SourceURL     string
	LastScrapedAt time.Time
	IsValid       bool
	ContentHash   string
	RawContent    string
}
