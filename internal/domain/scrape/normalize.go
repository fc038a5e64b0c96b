package scrape

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jobradar/jobradar/internal/domain"
)

// Normalized is a raw listing after badge/salary/date parsing, ready for
// identity resolution
type Normalized struct {
	Title        string
	CompanyName  string
	DetailURL    string
	NativeID     string
	SourceSite   string
	Location     string
	WorkModel    domain.WorkModel
	Technologies []string
	Salary       domain.Salary
	Experience   domain.ExperienceLevel
	PostedAt     time.Time
	FullText     string
}

var (
	salaryRangeRe  = regexp.MustCompile(`(\d[\d\s.,]*)\s*[-–—]\s*[^\d]*(\d[\d\s.,]*)`)
	salarySingleRe = regexp.MustCompile(`(\d[\d\s.,]*)`)
	currencyRe     = regexp.MustCompile(`(?i)(bgn|eur|usd|лв|€|\$)`)
	daysAgoRe      = regexp.MustCompile(`(?i)(?:преди\s+)?(\d+)\s*(?:days?\s+ago|дни|ден)`)
)

// Normalize turns a raw listing into structured fields. Parsing is best
// effort: anything unparsable lands in the unknown/zero value, never an
// error, because a half-parsed listing still deduplicates fine.
func Normalize(raw domain.RawListing, patterns TechPatterns, clock func() time.Time) Normalized {
	n := Normalized{
		Title:       strings.TrimSpace(raw.Title),
		CompanyName: strings.TrimSpace(raw.CompanyName),
		DetailURL:   strings.TrimSpace(raw.DetailURL),
		NativeID:    strings.TrimSpace(raw.NativeID),
		SourceSite:  raw.SourceSite,
		FullText:    raw.FullText,
	}
	n.Location, n.WorkModel = parseLocationBadge(raw.LocationText)
	n.Salary = parseSalary(raw.SalaryText)
	n.PostedAt = parsePostedDate(raw.PostedText, clock)
	n.Experience = parseExperience(raw.Title)
	n.Technologies = patterns.Detect(raw.Title+" "+raw.FullText, raw.TechHints)
	return n
}

// parseLocationBadge splits "Sofia / Remote"-style badge text into a location
// and a work model. Bulgarian boards mix both languages.
func parseLocationBadge(text string) (string, domain.WorkModel) {
	lower := strings.ToLower(text)
	model := domain.WorkModelUnknown
	switch {
	case strings.Contains(lower, "remote"), strings.Contains(lower, "дистанционно"):
		model = domain.WorkModelRemote
	case strings.Contains(lower, "hybrid"), strings.Contains(lower, "хибрид"):
		model = domain.WorkModelHybrid
	case strings.Contains(lower, "office"), strings.Contains(lower, "on-site"), strings.Contains(lower, "офис"):
		model = domain.WorkModelOffice
	}

	location := text
	for _, sep := range []string{"/", "|", "·", ","} {
		if idx := strings.Index(location, sep); idx >= 0 {
			location = location[:idx]
		}
	}
	location = strings.TrimSpace(location)
	switch strings.ToLower(location) {
	case "remote", "дистанционно", "hybrid", "хибрид", "office", "офис":
		location = ""
	}
	return location, model
}

func parseSalary(text string) domain.Salary {
	if strings.TrimSpace(text) == "" {
		return domain.Salary{}
	}
	s := domain.Salary{Currency: parseCurrency(text)}
	if m := salaryRangeRe.FindStringSubmatch(text); m != nil {
		s.Min = parseAmount(m[1])
		s.Max = parseAmount(m[2])
		return s
	}
	if m := salarySingleRe.FindStringSubmatch(text); m != nil {
		amount := parseAmount(m[1])
		s.Min, s.Max = amount, amount
		return s
	}
	return domain.Salary{}
}

func parseCurrency(text string) string {
	m := currencyRe.FindString(text)
	switch strings.ToLower(strings.TrimSuffix(m, ".")) {
	case "bgn", "лв":
		return "BGN"
	case "eur", "€":
		return "EUR"
	case "usd", "$":
		return "USD"
	}
	return ""
}

func parseAmount(s string) int {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0
	}
	return n
}

// parsePostedDate understands relative phrasing ("today", "преди 3 дни") and
// the date layouts the boards actually render
func parsePostedDate(text string, clock func() time.Time) time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}
	}
	now := clock()
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "today"), strings.Contains(lower, "днес"):
		return now.Truncate(24 * time.Hour)
	case strings.Contains(lower, "yesterday"), strings.Contains(lower, "вчера"):
		return now.Truncate(24 * time.Hour).AddDate(0, 0, -1)
	}
	if m := daysAgoRe.FindStringSubmatch(lower); m != nil {
		days, _ := strconv.Atoi(m[1])
		return now.Truncate(24 * time.Hour).AddDate(0, 0, -days)
	}
	for _, layout := range []string{"02.01.2006", "2006-01-02", "02 Jan 2006", "Jan 2, 2006"} {
		if t, err := time.Parse(layout, text); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseExperience(title string) domain.ExperienceLevel {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "senior"), strings.Contains(lower, "lead"),
		strings.Contains(lower, "principal"), strings.Contains(lower, "staff"):
		return domain.ExperienceSenior
	case strings.Contains(lower, "junior"), strings.Contains(lower, "intern"),
		strings.Contains(lower, "graduate"), strings.Contains(lower, "trainee"):
		return domain.ExperienceJunior
	case strings.Contains(lower, "mid"), strings.Contains(lower, "regular"),
		strings.Contains(lower, "intermediate"):
		return domain.ExperienceMid
	}
	return domain.ExperienceUnknown
}
