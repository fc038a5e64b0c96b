package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jobradar/jobradar/internal/domain"
	"github.com/jobradar/jobradar/internal/repository"
	"github.com/jobradar/jobradar/pkg/logging"
)

type fakeVacancyRepo struct {
	vacancies  map[domain.VacancyID]*domain.Vacancy
	lookupErr  error
	updateErr  error
	candidates []domain.Vacancy
}

func newFakeVacancyRepo() *fakeVacancyRepo {
	return &fakeVacancyRepo{vacancies: make(map[domain.VacancyID]*domain.Vacancy)}
}

func (f *fakeVacancyRepo) GetByID(_ context.Context, id domain.VacancyID) (*domain.Vacancy, error) {
	v, ok := f.vacancies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *v
	return &copied, nil
}

func (f *fakeVacancyRepo) FindByDetailURL(_ context.Context, url string) (*domain.Vacancy, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for _, v := range f.vacancies {
		for _, prov := range v.ScrapedSites {
			if prov.URL == url {
				copied := *v
				return &copied, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeVacancyRepo) FindByExternalID(_ context.Context, site, nativeID string) (*domain.Vacancy, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for _, v := range f.vacancies {
		if v.ExternalIDs[site] == nativeID {
			copied := *v
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeVacancyRepo) FindCandidates(_ context.Context, _ string, _ domain.CompanyID, _ int) ([]domain.Vacancy, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.candidates, nil
}

func (f *fakeVacancyRepo) Create(_ context.Context, v *domain.Vacancy) error {
	copied := *v
	f.vacancies[v.ID] = &copied
	return nil
}

func (f *fakeVacancyRepo) Update(_ context.Context, v *domain.Vacancy) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	copied := *v
	f.vacancies[v.ID] = &copied
	return nil
}

type fakeCompanyRepo struct {
	companies map[domain.CompanyID]*domain.Company
}

func newFakeCompanyRepo() *fakeCompanyRepo {
	return &fakeCompanyRepo{companies: make(map[domain.CompanyID]*domain.Company)}
}

func (f *fakeCompanyRepo) GetByID(_ context.Context, id domain.CompanyID) (*domain.Company, error) {
	c, ok := f.companies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCompanyRepo) FindByDomain(context.Context, string) ([]domain.Company, error) {
	return nil, nil
}
func (f *fakeCompanyRepo) FindByName(context.Context, string) (*domain.Company, error) {
	return nil, nil
}
func (f *fakeCompanyRepo) FindByAlias(context.Context, string) (*domain.Company, error) {
	return nil, nil
}
func (f *fakeCompanyRepo) FindCandidates(context.Context, []string, int) ([]domain.Company, error) {
	return nil, nil
}
func (f *fakeCompanyRepo) Create(_ context.Context, c *domain.Company) error {
	f.companies[c.ID] = c
	return nil
}
func (f *fakeCompanyRepo) Update(_ context.Context, c *domain.Company) error {
	f.companies[c.ID] = c
	return nil
}

func newDetector(t *testing.T, vacancies *fakeVacancyRepo, companies *fakeCompanyRepo, opts ...Option) *Detector {
	t.Helper()
	d, err := NewDetector(vacancies, companies, logging.New("error"), opts...)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	return d
}

func TestDetect_IdenticalURLIsAlwaysExact(t *testing.T) {
	t.Parallel()

	repo := newFakeVacancyRepo()
	companyID := uuid.New()
	stored := &domain.Vacancy{ID: uuid.New(), Title: "Go Developer", CompanyID: companyID}
	stored.RecordSource("dev.bg", "https://dev.bg/job/42", "42", time.Now())
	repo.vacancies[stored.ID] = stored
	// Same vacancy is also a perfect fuzzy candidate; exact must win.
	repo.candidates = []domain.Vacancy{*stored}

	d := newDetector(t, repo, newFakeCompanyRepo())
	res := d.Detect(context.Background(), Listing{
		Title:      "Go Developer",
		CompanyID:  companyID,
		DetailURL:  "https://dev.bg/job/42",
		NativeID:   "42",
		SourceSite: "dev.bg",
	})

	if res.Exact == nil {
		t.Fatal("identical URL must yield an exact match")
	}
	if !res.Exact.Exact || res.Exact.VacancyID != stored.ID || !res.Exact.ShouldMerge {
		t.Fatalf("unexpected exact match: %+v", res.Exact)
	}
	if len(res.Matches) != 0 {
		t.Fatal("exact match must short-circuit fuzzy matching")
	}
}

func TestDetect_ExternalIDMatch(t *testing.T) {
	t.Parallel()

	repo := newFakeVacancyRepo()
	stored := &domain.Vacancy{ID: uuid.New(), Title: "Java Developer"}
	stored.RecordSource("jobs.bg", "https://jobs.bg/job/7", "7", time.Now())
	repo.vacancies[stored.ID] = stored

	d := newDetector(t, repo, newFakeCompanyRepo())
	// Different URL, same native id on the same site.
	res := d.Detect(context.Background(), Listing{
		Title:      "Java Developer (Backend)",
		DetailURL:  "https://jobs.bg/front_job_details.php?id=7",
		NativeID:   "7",
		SourceSite: "jobs.bg",
	})
	if res.Exact == nil || res.Exact.VacancyID != stored.ID {
		t.Fatalf("expected external id exact match, got %+v", res)
	}
}

func TestDetect_FuzzyScoringAndThresholds(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()
	companies := newFakeCompanyRepo()
	companies.companies[companyID] = &domain.Company{ID: companyID, Name: "UKG"}

	posted := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	candidate := domain.Vacancy{
		ID:           uuid.New(),
		Title:        "Senior Go Developer",
		CompanyID:    companyID,
		Technologies: []string{"Go", "Kubernetes", "PostgreSQL"},
		PostedAt:     posted,
	}
	repo := newFakeVacancyRepo()
	repo.candidates = []domain.Vacancy{candidate}

	d := newDetector(t, repo, companies)
	res := d.Detect(context.Background(), Listing{
		Title:        "Senior Go Developer",
		CompanyID:    companyID,
		CompanyName:  "UKG",
		DetailURL:    "https://jobs.bg/job/990",
		Technologies: []string{"Go", "Kubernetes", "PostgreSQL"},
		PostedAt:     posted,
		SourceSite:   "jobs.bg",
	})

	if res.Exact != nil {
		t.Fatalf("no exact key matches here, got %+v", res.Exact)
	}
	if len(res.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(res.Matches))
	}
	m := res.Matches[0]
	if !m.ShouldMerge || m.Score < 0.99 {
		t.Fatalf("identical listing should score ~1.0 and merge: %+v", m)
	}
	wantReasons := map[string]bool{
		"Similar job title": true, "Same company": true,
		"High technology overlap": true, "Posted around the same time": true,
	}
	for _, r := range m.Reasons {
		if !wantReasons[r] {
			t.Fatalf("unexpected reason %q", r)
		}
		delete(wantReasons, r)
	}
	if len(wantReasons) != 0 {
		t.Fatalf("missing reasons: %v", wantReasons)
	}
}

func TestDetect_DisjointTechStillMatchesOnTitleCompanyDate(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()
	posted := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	candidate := domain.Vacancy{
		ID:           uuid.New(),
		Title:        "DevOps Engineer",
		CompanyID:    companyID,
		Technologies: []string{"AWS", "Terraform"},
		PostedAt:     posted,
	}
	repo := newFakeVacancyRepo()
	repo.candidates = []domain.Vacancy{candidate}

	d := newDetector(t, repo, newFakeCompanyRepo())
	res := d.Detect(context.Background(), Listing{
		Title:        "DevOps Engineer",
		CompanyID:    companyID,
		Technologies: []string{"Azure", "Pulumi"}, // disjoint
		PostedAt:     posted,
		SourceSite:   "jobs.bg",
	})

	if len(res.Matches) != 1 {
		t.Fatalf("title+company+date alone should clear the report threshold, got %d matches", len(res.Matches))
	}
	// 0.4 + 0.3 + 0 + 0.1 = 0.8, which also clears the merge threshold.
	m := res.Matches[0]
	if m.Score < 0.6 {
		t.Fatalf("score %v below report threshold", m.Score)
	}
	if m.ShouldMerge != (m.Score >= DefaultConfig().MergeThreshold) {
		t.Fatalf("ShouldMerge must be determined solely by the combined score: %+v", m)
	}
}

func TestDetect_ScoreMonotonicInTechOverlap(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()
	posted := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	moreOverlap := domain.Vacancy{
		ID: uuid.New(), Title: "Backend Engineer", CompanyID: companyID,
		Technologies: []string{"Go", "Redis", "Kafka"}, PostedAt: posted,
	}
	lessOverlap := domain.Vacancy{
		ID: uuid.New(), Title: "Backend Engineer", CompanyID: companyID,
		Technologies: []string{"Go", "Rails", "MySQL"}, PostedAt: posted,
	}
	repo := newFakeVacancyRepo()
	repo.candidates = []domain.Vacancy{lessOverlap, moreOverlap}

	d := newDetector(t, repo, newFakeCompanyRepo())
	res := d.Detect(context.Background(), Listing{
		Title: "Backend Engineer", CompanyID: companyID,
		Technologies: []string{"Go", "Redis", "Kafka"}, PostedAt: posted,
		SourceSite: "jobs.bg",
	})

	if len(res.Matches) != 2 {
		t.Fatalf("expected both candidates reported, got %d", len(res.Matches))
	}
	// Results come back descending by score, strictly-more-overlap first.
	if res.Matches[0].VacancyID != moreOverlap.ID {
		t.Fatalf("higher overlap candidate must rank first")
	}
	if res.Matches[0].Score < res.Matches[1].Score {
		t.Fatalf("score not monotonic in overlap: %v < %v", res.Matches[0].Score, res.Matches[1].Score)
	}
}

func TestDetect_LookupFaultYieldsEmptyResult(t *testing.T) {
	t.Parallel()

	repo := newFakeVacancyRepo()
	repo.lookupErr = errors.New("store offline")

	d := newDetector(t, repo, newFakeCompanyRepo())
	res := d.Detect(context.Background(), Listing{Title: "Go Developer", DetailURL: "https://dev.bg/job/1"})
	if res.Exact != nil || len(res.Matches) != 0 {
		t.Fatalf("lookup fault must degrade to no match, got %+v", res)
	}
}

func TestMerge_AdditiveAndFaultsPropagate(t *testing.T) {
	t.Parallel()

	repo := newFakeVacancyRepo()
	seen := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	stored := &domain.Vacancy{ID: uuid.New(), Title: "Go Developer"}
	stored.RecordSource("dev.bg", "https://dev.bg/job/42", "42", seen)
	repo.vacancies[stored.ID] = stored

	now := seen.Add(48 * time.Hour)
	d := newDetector(t, repo, newFakeCompanyRepo(), WithClock(func() time.Time { return now }))

	listing := Listing{
		Title: "Go Developer", DetailURL: "https://jobs.bg/job/9000",
		NativeID: "9000", SourceSite: "jobs.bg",
	}
	if err := d.Merge(context.Background(), stored.ID, listing); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	merged := repo.vacancies[stored.ID]
	if len(merged.ScrapedSites) != 2 {
		t.Fatalf("expected 2 sites after merge, got %d", len(merged.ScrapedSites))
	}
	if prov := merged.ScrapedSites["dev.bg"]; prov.URL != "https://dev.bg/job/42" || !prov.LastSeenAt.Equal(seen) {
		t.Fatalf("merge mutated the other source's entry: %+v", prov)
	}
	if prov := merged.ScrapedSites["jobs.bg"]; prov.NativeID != "9000" || !prov.LastSeenAt.Equal(now) {
		t.Fatalf("new source not recorded: %+v", prov)
	}
	if merged.ExternalIDs["jobs.bg"] != "9000" {
		t.Fatalf("external id not recorded: %v", merged.ExternalIDs)
	}

	// A write fault during merge must surface, unlike lookup faults.
	repo.updateErr = errors.New("write refused")
	if err := d.Merge(context.Background(), stored.ID, listing); err == nil {
		t.Fatal("merge write fault must propagate")
	}
}

func TestStringSimilarity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"Go Developer", "Go Developer", 1, 1},
		{"Go Developer", "go developer", 1, 1},
		{"Go Developer", "Go Develoepr", 0.7, 0.99},
		{"Go Developer", "Accountant", 0, 0.4},
		{"", "", 0, 0},
	}
	for _, tc := range cases {
		got := stringSimilarity(tc.a, tc.b)
		if got < tc.min || got > tc.max {
			t.Errorf("stringSimilarity(%q, %q) = %v, want in [%v, %v]", tc.a, tc.b, got, tc.min, tc.max)
		}
	}
}

func TestTemporalProximity(t *testing.T) {
	t.Parallel()

	window := 30 * 24 * time.Hour
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	sameDay := temporalProximity(base, base, window)
	week := temporalProximity(base, base.AddDate(0, 0, 7), window)
	month := temporalProximity(base, base.AddDate(0, 0, 31), window)

	if sameDay != 1 {
		t.Fatalf("same day = %v, want 1", sameDay)
	}
	if !(sameDay > week && week > month) {
		t.Fatalf("proximity must decay: %v, %v, %v", sameDay, week, month)
	}
	if month != 0 {
		t.Fatalf("outside window = %v, want 0", month)
	}
	if temporalProximity(time.Time{}, base, window) != 0 {
		t.Fatal("missing date should give no signal")
	}
}
