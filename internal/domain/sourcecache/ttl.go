package sourcecache

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TTLTable maps source sites to the maximum age before a cached page is
// considered stale. Staleness policy is data, not code.
type TTLTable struct {
	defaultTTL time.Duration
	perSite    map[string]time.Duration
}

// DefaultTTLTable reflects how quickly the known boards churn: dev.bg company
// profiles barely change, jobs.bg rotates faster.
func DefaultTTLTable() TTLTable {
	return TTLTable{
		defaultTTL: 14 * 24 * time.Hour,
		perSite: map[string]time.Duration{
			"dev.bg":  30 * 24 * time.Hour,
			"jobs.bg": 7 * 24 * time.Hour,
		},
	}
}

// NewTTLTable builds a table from explicit entries
func NewTTLTable(defaultTTL time.Duration, perSite map[string]time.Duration) TTLTable {
	copied := make(map[string]time.Duration, len(perSite))
	for k, v := range perSite {
		copied[k] = v
	}
	return TTLTable{defaultTTL: defaultTTL, perSite: copied}
}

// For returns the TTL for a source site
func (t TTLTable) For(site string) time.Duration {
	if ttl, ok := t.perSite[site]; ok {
		return ttl
	}
	return t.defaultTTL
}

// WithSite returns a new table with one entry added or changed. The receiver
// is never mutated, so tables can be shared across goroutines.
func (t TTLTable) WithSite(site string, ttl time.Duration) TTLTable {
	next := NewTTLTable(t.defaultTTL, t.perSite)
	next.perSite[site] = ttl
	return next
}

type ttlFile struct {
	DefaultDays int            `yaml:"defaultDays"`
	Sites       map[string]int `yaml:"sites"`
}

// LoadTTLTable reads a per-site TTL table from a YAML file of day counts
func LoadTTLTable(path string) (TTLTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return TTLTable{}, fmt.Errorf("sourcecache: read ttl table: %w", err)
	}
	var file ttlFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return TTLTable{}, fmt.Errorf("sourcecache: parse ttl table: %w", err)
	}
	if file.DefaultDays <= 0 {
		return TTLTable{}, fmt.Errorf("sourcecache: ttl table needs a positive defaultDays")
	}
	perSite := make(map[string]time.Duration, len(file.Sites))
	for site, days := range file.Sites {
		if days <= 0 {
			return TTLTable{}, fmt.Errorf("sourcecache: ttl for %q must be positive", site)
		}
		perSite[site] = time.Duration(days) * 24 * time.Hour
	}
	return TTLTable{
		defaultTTL: time.Duration(file.DefaultDays) * 24 * time.Hour,
		perSite:    perSite,
	}, nil
}
