package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/jobradar/jobradar/internal/pipeline"
)

// Config holds the Gemini client settings.
type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Extractor turns job-posting text into structured vacancy data using
// Gemini's JSON response schema. Responses are cached by content hash so a
// re-run over unchanged text costs nothing.
type Extractor struct {
	client *genai.Client
	model  string

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	result pipeline.Extraction
	raw    string
}

// New builds an Extractor. The API key and model are required.
func New(ctx context.Context, cfg Config) (*Extractor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("gemini: model is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		client: client,
		model:  strings.TrimSpace(cfg.Model),
		cache:  make(map[string]cached),
	}, nil
}

type responseSchema struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Requirements     []string `json:"requirements"`
	Responsibilities []string `json:"responsibilities"`
	Location         string   `json:"location"`
	WorkModel        string   `json:"work_model"`
	ExperienceLevel  string   `json:"experience_level"`
	SalaryMin        int      `json:"salary_min"`
	SalaryMax        int      `json:"salary_max"`
	SalaryCurrency   string   `json:"salary_currency"`
	Technologies     []string `json:"technologies"`
	Benefits         []string `json:"benefits"`
	Confidence       float64  `json:"confidence"`
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":            {Type: genai.TypeString},
		"description":      {Type: genai.TypeString},
		"requirements":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"responsibilities": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"location":         {Type: genai.TypeString},
		"work_model":       {Type: genai.TypeString},
		"experience_level": {Type: genai.TypeString},
		"salary_min":       {Type: genai.TypeInteger},
		"salary_max":       {Type: genai.TypeInteger},
		"salary_currency":  {Type: genai.TypeString},
		"technologies":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"benefits":         {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"confidence":       {Type: genai.TypeNumber},
	},
	Required: []string{"title", "description", "confidence"},
}

// Extract implements pipeline.Extractor.
func (e *Extractor) Extract(ctx context.Context, text, sourceURL string, opts pipeline.ExtractOptions) (pipeline.ExtractOutput, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return pipeline.ExtractOutput{}, errors.New("gemini: empty input text")
	}

	key := contentKey(text)
	if !opts.SkipCache {
		e.mu.Lock()
		hit, ok := e.cache[key]
		e.mu.Unlock()
		if ok {
			result := hit.result
			return pipeline.ExtractOutput{Result: &result, RawResponse: hit.raw, CacheHit: true}, nil
		}
	}

	resp, err := e.client.Models.GenerateContent(
		ctx,
		e.model,
		genai.Text(buildPrompt(text, sourceURL)),
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   outputSchema,
		},
	)
	if err != nil {
		return pipeline.ExtractOutput{}, classifyErr(err)
	}

	raw := resp.Text()
	var parsed responseSchema
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return pipeline.ExtractOutput{RawResponse: raw}, fmt.Errorf("gemini: parse structured json: %w", err)
	}

	result := pipeline.Extraction{
		Title:            strings.TrimSpace(parsed.Title),
		Description:      strings.TrimSpace(parsed.Description),
		Requirements:     trimAll(parsed.Requirements),
		Responsibilities: trimAll(parsed.Responsibilities),
		Location:         strings.TrimSpace(parsed.Location),
		WorkModel:        strings.ToLower(strings.TrimSpace(parsed.WorkModel)),
		ExperienceLevel:  strings.ToLower(strings.TrimSpace(parsed.ExperienceLevel)),
		SalaryMin:        parsed.SalaryMin,
		SalaryMax:        parsed.SalaryMax,
		SalaryCurrency:   strings.ToUpper(strings.TrimSpace(parsed.SalaryCurrency)),
		Technologies:     trimAll(parsed.Technologies),
		Benefits:         trimAll(parsed.Benefits),
		Confidence:       parsed.Confidence,
	}

	e.mu.Lock()
	e.cache[key] = cached{result: result, raw: raw}
	e.mu.Unlock()

	out := result
	return pipeline.ExtractOutput{Result: &out, RawResponse: raw}, nil
}

// Healthy issues a minimal generation to confirm the model is reachable.
func (e *Extractor) Healthy(ctx context.Context) error {
	_, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text("ping"), &genai.GenerateContentConfig{
		CandidateCount: 1,
	})
	if err != nil {
		return fmt.Errorf("gemini: health check: %w", classifyErr(err))
	}
	return nil
}

var _ pipeline.Extractor = (*Extractor)(nil)

func buildPrompt(text, sourceURL string) string {
	return strings.TrimSpace(`
You are a job posting parser. Extract structured fields from the posting text below.

Return ONLY a single JSON object with these keys:
- title (string)
- description (string; a concise summary of the role, 2-4 sentences)
- requirements (array of strings)
- responsibilities (array of strings)
- location (string; city or region, empty if unknown)
- work_model (string; one of: remote, hybrid, office, or empty)
- experience_level (string; one of: junior, mid, senior, or empty)
- salary_min (integer; 0 if not stated)
- salary_max (integer; 0 if not stated)
- salary_currency (string; ISO code like BGN or EUR, empty if not stated)
- technologies (array of strings; languages, frameworks, tools)
- benefits (array of strings)
- confidence (number between 0 and 1; how confident you are in the extraction overall)

Rules:
- If you cannot find a field, use an empty string, empty array, or 0.
- Do not invent salary figures or technologies not present in the text.
- The posting may be in English or Bulgarian; output field values in the posting's language, keys always as above.

Source URL: ` + sourceURL + `

Posting text:
` + text + `
`)
}

func classifyErr(err error) error {
	// Wrap rate limits and server-side failures so the caller retries with backoff.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &pipeline.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &pipeline.TransientError{Err: err}
	}
	return err
}

func contentKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
