package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains runtime settings for the ingestion server
type Config struct {
	LogLevel string

	Neo4j struct {
		URI      string
		Username string
		Password string
	}
	Redis struct {
		URL string
	}
	Gemini struct {
		APIKey string
		Model  string // default gemini-2.0-flash
	}
	// Adzuna is optional; the aggregator adapter is only registered when
	// credentials are present.
	Adzuna struct {
		AppID   string
		AppKey  string
		Country string
		Query   string
	}
	Queue struct {
		Workers     int           // default 4
		TaskTimeout time.Duration // default 5m
		Retention   time.Duration // default 1h
	}
	Scheduler struct {
		Enabled        bool   // SCHEDULER_ENABLED, default false
		ScrapeSpec     string // default @daily
		HealthSpec     string // default @hourly
		IncludeDetails bool
	}
	// TTLTablePath and ProfilesPath point at optional YAML overrides for the
	// source cache TTLs and the pipeline cleaning profiles.
	TTLTablePath string
	ProfilesPath string
}

// Load populates config from environment variables. Missing required vars
// are aggregated into one error so a broken deploy reports everything at
// once.
func Load() (Config, error) {
	cfg := Config{
		LogLevel: "info",
	}
	cfg.Gemini.Model = "gemini-2.0-flash"
	cfg.Queue.Workers = 4
	cfg.Queue.TaskTimeout = 5 * time.Minute
	cfg.Queue.Retention = time.Hour
	cfg.Scheduler.ScrapeSpec = "@daily"
	cfg.Scheduler.HealthSpec = "@hourly"

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	cfg.Neo4j.URI = os.Getenv("NEO4J_URI")
	cfg.Neo4j.Username = os.Getenv("NEO4J_USERNAME")
	cfg.Neo4j.Password = os.Getenv("NEO4J_PASSWORD")

	cfg.Redis.URL = os.Getenv("REDIS_URL")

	cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.Gemini.Model = v
	}

	cfg.Adzuna.AppID = os.Getenv("ADZUNA_APP_ID")
	cfg.Adzuna.AppKey = os.Getenv("ADZUNA_APP_KEY")
	cfg.Adzuna.Country = os.Getenv("ADZUNA_COUNTRY")
	cfg.Adzuna.Query = os.Getenv("ADZUNA_QUERY")

	if v := os.Getenv("QUEUE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid QUEUE_WORKERS %q", v)
		}
		cfg.Queue.Workers = n
	}
	if v := os.Getenv("QUEUE_TASK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid QUEUE_TASK_TIMEOUT %q: %w", v, err)
		}
		cfg.Queue.TaskTimeout = d
	}
	if v := os.Getenv("QUEUE_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid QUEUE_RETENTION %q: %w", v, err)
		}
		cfg.Queue.Retention = d
	}

	cfg.Scheduler.Enabled = boolEnv("SCHEDULER_ENABLED")
	cfg.Scheduler.IncludeDetails = boolEnv("SCHEDULER_INCLUDE_DETAILS")
	if v := os.Getenv("SCHEDULER_SCRAPE_SPEC"); v != "" {
		cfg.Scheduler.ScrapeSpec = v
	}
	if v := os.Getenv("SCHEDULER_HEALTH_SPEC"); v != "" {
		cfg.Scheduler.HealthSpec = v
	}

	cfg.TTLTablePath = os.Getenv("TTL_TABLE_PATH")
	cfg.ProfilesPath = os.Getenv("CLEANING_PROFILES_PATH")

	var missingVars []string

	if cfg.Neo4j.URI == "" {
		missingVars = append(missingVars, "NEO4J_URI")
	}

	if cfg.Neo4j.Username == "" {
		missingVars = append(missingVars, "NEO4J_USERNAME")
	}

	if cfg.Neo4j.Password == "" {
		missingVars = append(missingVars, "NEO4J_PASSWORD")
	}

	if cfg.Redis.URL == "" {
		missingVars = append(missingVars, "REDIS_URL")
	}

	if cfg.Gemini.APIKey == "" {
		missingVars = append(missingVars, "GEMINI_API_KEY")
	}

	if len(missingVars) > 0 {
		return cfg, fmt.Errorf("missing required environment variables: %s", strings.Join(missingVars, ", "))
	}

	return cfg, nil
}

func boolEnv(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
