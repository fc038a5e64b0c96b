package scrape

import (
	"regexp"
	"strings"
)

// TechPatterns maps canonical technology names to the patterns that detect
// them in listing text. Tables are immutable after construction; WithPattern
// returns a new table, so shared tables are safe across workers.
type TechPatterns struct {
	patterns map[string]*regexp.Regexp
}

// DefaultTechPatterns covers the technologies the known boards tag most often
func DefaultTechPatterns() TechPatterns {
	raw := map[string]string{
		"Go":         `(?i)\b(golang|go)\b`,
		"Java":       `(?i)\bjava\b`,
		"Python":     `(?i)\bpython\b`,
		"JavaScript": `(?i)\b(javascript|js)\b`,
		"TypeScript": `(?i)\btypescript\b`,
		"C#":         `(?i)(\bc#|\.net\b)`,
		"PHP":        `(?i)\bphp\b`,
		"Ruby":       `(?i)\bruby\b`,
		"Kotlin":     `(?i)\bkotlin\b`,
		"React":      `(?i)\breact(\.js)?\b`,
		"Angular":    `(?i)\bangular\b`,
		"Vue":        `(?i)\bvue(\.js)?\b`,
		"Kubernetes": `(?i)\b(kubernetes|k8s)\b`,
		"Docker":     `(?i)\bdocker\b`,
		"AWS":        `(?i)\baws\b`,
		"PostgreSQL": `(?i)\b(postgresql|postgres)\b`,
		"MySQL":      `(?i)\bmysql\b`,
		"Redis":      `(?i)\bredis\b`,
		"Kafka":      `(?i)\bkafka\b`,
	}
	compiled := make(map[string]*regexp.Regexp, len(raw))
	for tech, pattern := range raw {
		compiled[tech] = regexp.MustCompile(pattern)
	}
	return TechPatterns{patterns: compiled}
}

// WithPattern returns a new table with one pattern added or replaced
func (t TechPatterns) WithPattern(tech, pattern string) (TechPatterns, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return TechPatterns{}, err
	}
	next := make(map[string]*regexp.Regexp, len(t.patterns)+1)
	for k, v := range t.patterns {
		next[k] = v
	}
	next[tech] = re
	return TechPatterns{patterns: next}, nil
}

// Detect returns the canonical names of all technologies found in text,
// merged with the adapter's explicit hints
func (t TechPatterns) Detect(text string, hints []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(tech string) {
		key := strings.ToLower(tech)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, tech)
	}
	for _, hint := range hints {
		if hint = strings.TrimSpace(hint); hint != "" {
			add(hint)
		}
	}
	for tech, re := range t.patterns {
		if re.MatchString(text) {
			add(tech)
		}
	}
	return out
}

// BoardBlacklist holds job-board names and domains that must never be
// mistaken for employer companies (aggregators re-posting under their own
// banner). Immutable; WithEntry returns a new list.
type BoardBlacklist struct {
	names   map[string]struct{}
	domains map[string]struct{}
}

// DefaultBoardBlacklist covers the sources we scrape plus common aggregators
func DefaultBoardBlacklist() BoardBlacklist {
	names := map[string]struct{}{
		"dev.bg": {}, "jobs.bg": {}, "zaplata.bg": {}, "linkedin": {}, "indeed": {},
	}
	domains := map[string]struct{}{
		"dev.bg": {}, "jobs.bg": {}, "zaplata.bg": {}, "linkedin.com": {}, "indeed.com": {},
	}
	return BoardBlacklist{names: names, domains: domains}
}

// WithEntry returns a new blacklist including the given name and domain
func (b BoardBlacklist) WithEntry(name, domain string) BoardBlacklist {
	names := make(map[string]struct{}, len(b.names)+1)
	for k := range b.names {
		names[k] = struct{}{}
	}
	domains := make(map[string]struct{}, len(b.domains)+1)
	for k := range b.domains {
		domains[k] = struct{}{}
	}
	if name != "" {
		names[strings.ToLower(name)] = struct{}{}
	}
	if domain != "" {
		domains[strings.ToLower(domain)] = struct{}{}
	}
	return BoardBlacklist{names: names, domains: domains}
}

// IsBoard reports whether the company name or website points at a job board
// rather than an employer
func (b BoardBlacklist) IsBoard(companyName, website string) bool {
	if _, ok := b.names[strings.ToLower(strings.TrimSpace(companyName))]; ok {
		return true
	}
	host := strings.ToLower(website)
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	host = strings.TrimPrefix(host, "www.")
	if idx := strings.IndexAny(host, "/?#:"); idx >= 0 {
		host = host[:idx]
	}
	_, ok := b.domains[host]
	return ok
}
