package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Pathstore connection (annotation storage)
	PathstoreURL    string
	PathstoreAPIKey string

	// Auth
	DocanchorAPIKey string

	// Anchoring
	ContextWindow         int
	MatchThreshold        float64
	PatternMatchThreshold float64
	MaxPatternLength      int
	HighlightClass        string

	// Re-anchor worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// Search latency stats window
	SearchStatsWindow time.Duration

	// PDF
	PDFFallbackPdftotext bool
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8091"),

		PathstoreURL:    envOr("PATHSTORE_URL", "http://localhost:8080"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),

		DocanchorAPIKey: os.Getenv("DOCANCHOR_API_KEY"),

		ContextWindow:         envInt("CONTEXT_WINDOW", 32),
		MatchThreshold:        envFloat("MATCH_THRESHOLD", 0.5),
		PatternMatchThreshold: envFloat("PATTERN_MATCH_THRESHOLD", 0.5),
		MaxPatternLength:      envInt("MAX_PATTERN_LENGTH", 32),
		HighlightClass:        envOr("HIGHLIGHT_CLASS", "docanchor-highlight"),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		SearchStatsWindow: envDuration("SEARCH_STATS_WINDOW", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 32
	}
	if cfg.MaxPatternLength <= 0 {
		cfg.MaxPatternLength = 32
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.SearchStatsWindow <= 0 {
		cfg.SearchStatsWindow = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.PathstoreAPIKey == "" {
		return fmt.Errorf("PATHSTORE_API_KEY is required")
	}
	if c.DocanchorAPIKey == "" {
		return fmt.Errorf("DOCANCHOR_API_KEY is required")
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("MATCH_THRESHOLD must be in (0, 1], got %v", c.MatchThreshold)
	}
	if c.PatternMatchThreshold <= 0 || c.PatternMatchThreshold > 1 {
		return fmt.Errorf("PATTERN_MATCH_THRESHOLD must be in (0, 1], got %v", c.PatternMatchThreshold)
	}
	// The bitap bit vector is a machine int.
	if c.MaxPatternLength > 63 {
		return fmt.Errorf("MAX_PATTERN_LENGTH must be at most 63, got %d", c.MaxPatternLength)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
