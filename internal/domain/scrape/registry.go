package scrape

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Registry resolves site keys or URLs to their adapters. Registration happens
// during wiring; lookups are safe for concurrent use afterwards.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter under its site key
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("scrape: cannot register nil adapter")
	}
	site := strings.ToLower(strings.TrimSpace(a.Site()))
	if site == "" {
		return fmt.Errorf("scrape: adapter has empty site key")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[site]; exists {
		return fmt.Errorf("scrape: adapter for %q already registered", site)
	}
	r.adapters[site] = a
	return nil
}

// BySite resolves a site key to its adapter
func (r *Registry) BySite(site string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(site))]
	if !ok {
		return nil, fmt.Errorf("scrape: no adapter for site %q", site)
	}
	return a, nil
}

// ByURL resolves a page URL to the adapter serving its host
func (r *Registry) ByURL(rawURL string) (Adapter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("scrape: parse url %q: %w", rawURL, err)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return nil, fmt.Errorf("scrape: url %q has no host", rawURL)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.adapters[host]; ok {
		return a, nil
	}
	// A site key may be the registrable part of a deeper host.
	for site, a := range r.adapters {
		if strings.HasSuffix(host, "."+site) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("scrape: no adapter for host %q", host)
}

// EnabledSites lists registered site keys in stable order
func (r *Registry) EnabledSites() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sites := make([]string, 0, len(r.adapters))
	for site := range r.adapters {
		sites = append(sites, site)
	}
	sort.Strings(sites)
	return sites
}
