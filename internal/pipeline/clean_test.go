package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestProfileApply_RemovesNoiseAndCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	p := DefaultProfiles().Get("job-posting")
	in := "We build payment systems.   Apply now!  Share this job with friends. " +
		strings.Repeat("Go services at scale. ", 10)
	out, err := p.Apply(in)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if strings.Contains(out, "Apply now") || strings.Contains(out, "Share this job") {
		t.Fatalf("noise survived: %q", out)
	}
	if strings.Contains(out, "  ") {
		t.Fatal("whitespace should be collapsed")
	}
}

func TestProfileApply_TruncatesAtWordBoundary(t *testing.T) {
	t.Parallel()

	p, err := Profile{Name: "tiny", MaxLength: 25}.compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := p.Apply("one two three four five six seven")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) > 25 {
		t.Fatalf("len=%d out=%q", len(out), out)
	}
	if strings.HasSuffix(out, "thre") || strings.HasSuffix(out, "fou") {
		t.Fatalf("truncation split a word: %q", out)
	}
	for _, w := range strings.Fields(out) {
		if !strings.Contains("one two three four five six seven", w) {
			t.Fatalf("unexpected fragment %q in %q", w, out)
		}
	}
}

func TestProfileApply_BelowMinimumErrors(t *testing.T) {
	t.Parallel()

	p, err := Profile{Name: "strict", MinLength: 500}.compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := p.Apply("too short"); err == nil {
		t.Fatal("expected a minimum-length error")
	}
}

func TestProfilesGet_FallsBackToDefault(t *testing.T) {
	t.Parallel()

	ps := DefaultProfiles()
	p := ps.Get("no-such-profile")
	if p.Name != "default" {
		t.Fatalf("expected default fallback, got %q", p.Name)
	}
}

func TestLoadProfiles(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profiles.yaml")
	data := `profiles:
  - name: minimal
    noisePatterns:
      - "(?i)confidential"
    minLength: 10
    maxLength: 500
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	ps, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	p := ps.Get("minimal")
	if p.Name != "minimal" || p.MaxLength != 500 {
		t.Fatalf("profile = %+v", p)
	}
	out, err := p.Apply("This posting is Confidential but otherwise fine.")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if strings.Contains(strings.ToLower(out), "confidential") {
		t.Fatalf("loaded pattern not applied: %q", out)
	}
	// Built-ins survive a file load.
	if DefaultProfiles().Get("job-posting").Name != ps.Get("job-posting").Name {
		t.Fatal("defaults should be retained")
	}
}

func TestLoadProfiles_BadPattern(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profiles.yaml")
	data := `profiles:
  - name: broken
    noisePatterns:
      - "(unclosed"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadProfiles(path); err == nil {
		t.Fatal("invalid regex should fail the load")
	}
}

func TestExtractContent_SelectorThenFallback(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("Substantive description text. ", 20)
	html := `<html><body><nav>menu</nav><div class="job_description">` + long + `</div></body></html>`
	text, warnings, err := extractContent(html, []string{"div.job_description"}, nil)
	if err != nil {
		t.Fatalf("extractContent: %v", err)
	}
	if strings.Contains(text, "menu") {
		t.Fatal("selector extraction must not include navigation")
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}

	// No selector match: body fallback with chrome stripped.
	html = `<html><body><nav>menu</nav><script>x=1</script><p>` + long + `</p></body></html>`
	text, _, err = extractContent(html, []string{"div.job_description"}, nil)
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if strings.Contains(text, "menu") || strings.Contains(text, "x=1") {
		t.Fatalf("chrome survived the fallback: %q", text)
	}

	// Very short content gets a quality warning.
	_, warnings, err = extractContent(`<html><body><p>tiny</p></body></html>`, nil, nil)
	if err != nil {
		t.Fatalf("short content: %v", err)
	}
	if len(warnings) == 0 || !strings.Contains(warnings[0], "very short") {
		t.Fatalf("warnings = %v", warnings)
	}
}
