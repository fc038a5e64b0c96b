package pipeline

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is a named declarative cleaning recipe: elements stripped during
// content extraction, noise phrases removed from the text, and length bounds
// applied with word-boundary-safe truncation.
type Profile struct {
	Name            string
	RemoveSelectors []string
	NoisePatterns   []string
	MinLength       int
	MaxLength       int

	noise []*regexp.Regexp
}

// Profiles is an immutable named profile set.
type Profiles struct {
	byName map[string]Profile
}

// DefaultProfiles returns the built-in profile set.
func DefaultProfiles() Profiles {
	p, err := buildProfiles([]Profile{
		{
			Name:      "default",
			MinLength: 50,
			MaxLength: 15000,
		},
		{
			Name: "job-posting",
			RemoveSelectors: []string{
				".apply-button", ".similar-jobs", ".job-alerts", "form",
			},
			NoisePatterns: []string{
				`(?i)apply\s+now`,
				`(?i)share\s+this\s+(job|position)`,
				`(?i)(we use|this site uses)\s+cookies[^.]*\.?`,
				`(?i)кандидатствай(те)?\s*(сега)?`,
				`(?i)сподели\s+обявата`,
			},
			MinLength: 100,
			MaxLength: 12000,
		},
	})
	if err != nil {
		// Built-in patterns are compile-checked by tests.
		panic(err)
	}
	return p
}

func buildProfiles(list []Profile) (Profiles, error) {
	byName := make(map[string]Profile, len(list))
	for _, p := range list {
		compiled, err := p.compile()
		if err != nil {
			return Profiles{}, err
		}
		byName[compiled.Name] = compiled
	}
	return Profiles{byName: byName}, nil
}

func (p Profile) compile() (Profile, error) {
	if strings.TrimSpace(p.Name) == "" {
		return p, fmt.Errorf("cleaning profile has no name")
	}
	p.noise = p.noise[:0]
	for _, pattern := range p.NoisePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return p, fmt.Errorf("profile %q: pattern %q: %w", p.Name, pattern, err)
		}
		p.noise = append(p.noise, re)
	}
	return p, nil
}

// Get returns the named profile, falling back to "default" and then to a
// zero profile so a bad name never breaks a run.
func (ps Profiles) Get(name string) Profile {
	if p, ok := ps.byName[name]; ok {
		return p
	}
	if p, ok := ps.byName["default"]; ok {
		return p
	}
	return Profile{Name: name}
}

// Names lists the available profiles.
func (ps Profiles) Names() []string {
	out := make([]string, 0, len(ps.byName))
	for name := range ps.byName {
		out = append(out, name)
	}
	return out
}

// Apply removes noise phrases and enforces the length bounds. Truncation
// never splits a word. Text shorter than the profile minimum is an error so
// the pipeline can fall back to the uncleaned input.
func (p Profile) Apply(text string) (string, error) {
	cleaned := text
	for _, re := range p.noise {
		cleaned = re.ReplaceAllString(cleaned, " ")
	}
	cleaned = collapseWhitespace(cleaned)

	if p.MaxLength > 0 && len(cleaned) > p.MaxLength {
		cleaned = truncateAtWord(cleaned, p.MaxLength)
	}
	if p.MinLength > 0 && len(cleaned) < p.MinLength {
		return "", fmt.Errorf("profile %q: cleaned text is %d chars, minimum is %d", p.Name, len(cleaned), p.MinLength)
	}
	return cleaned, nil
}

func truncateAtWord(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

type profileFile struct {
	Profiles []struct {
		Name            string   `yaml:"name"`
		RemoveSelectors []string `yaml:"removeSelectors"`
		NoisePatterns   []string `yaml:"noisePatterns"`
		MinLength       int      `yaml:"minLength"`
		MaxLength       int      `yaml:"maxLength"`
	} `yaml:"profiles"`
}

// LoadProfiles reads a profile set from a YAML file. The built-in defaults
// are kept for any name the file does not redefine.
func LoadProfiles(path string) (Profiles, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profiles{}, fmt.Errorf("read cleaning profiles: %w", err)
	}
	var file profileFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Profiles{}, fmt.Errorf("parse cleaning profiles: %w", err)
	}

	out := DefaultProfiles()
	for _, entry := range file.Profiles {
		compiled, err := Profile{
			Name:            entry.Name,
			RemoveSelectors: entry.RemoveSelectors,
			NoisePatterns:   entry.NoisePatterns,
			MinLength:       entry.MinLength,
			MaxLength:       entry.MaxLength,
		}.compile()
		if err != nil {
			return Profiles{}, err
		}
		out.byName[compiled.Name] = compiled
	}
	return out, nil
}
