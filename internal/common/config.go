package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/tradewatch/tradewatch/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	Jobs        JobsConfig        `toml:"jobs"`
	Sources     SourcesConfig     `toml:"sources"`
	Insights    InsightsConfig    `toml:"insights"`
	Gemini      GeminiConfig      `toml:"gemini"`
	Claude      ClaudeConfig      `toml:"claude"`
	LLM         LLMConfig         `toml:"llm"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
}

// SQLiteConfig represents SQLite-specific configuration
type SQLiteConfig struct {
	Path          string `toml:"path"`            // Database file path
	CacheSizeMB   int    `toml:"cache_size_mb"`   // SQLite page cache size
	WALMode       bool   `toml:"wal_mode"`        // Enable write-ahead logging
	BusyTimeoutMS int    `toml:"busy_timeout_ms"` // Busy handler timeout
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// JobsConfig contains scheduler and job behavior configuration
type JobsConfig struct {
	Enabled         bool   `toml:"enabled"`           // Global switch; off blocks scheduled AND manual triggers
	Timezone        string `toml:"timezone"`          // IANA timezone for cron schedules (default: "UTC")
	DefaultSchedule string `toml:"default_schedule"`  // Cron cadence enforced on reseed (default: "*/10 * * * *")
	RetentionDays   int    `toml:"retention_days"`    // keep_days default for cleanup_snapshots
	WarmupOnStart   bool   `toml:"warmup_on_start"`   // Trigger data jobs once when the snapshot table is empty
	StaleRunTimeout string `toml:"stale_run_timeout"` // Heartbeat age before a running row is failed (default: "10m")
}

// SourcesConfig contains upstream fetch configuration shared by source adapters
type SourcesConfig struct {
	UserAgent      string `toml:"user_agent"`      // User agent sent to upstream hosts
	RequestTimeout string `toml:"request_timeout"` // Per-request timeout as duration string (default: "30s")
	RateLimit      string `toml:"rate_limit"`      // Minimum spacing between requests to the same host (default: "1s")
	MaxBodySize    int    `toml:"max_body_size"`   // Maximum response body size in bytes
	WorldBankURL   string `toml:"worldbank_url"`   // World Bank API base URL
}

// InsightsConfig contains insight generation configuration
type InsightsConfig struct {
	BatchSize        int      `toml:"batch_size"`         // Max (card,tab,scope,lang) combinations per job invocation
	Languages        []string `toml:"languages"`          // Languages to generate insights for (default: ["en"])
	PublicContextTTL string   `toml:"public_context_ttl"` // Cache TTL for public context excerpts (default: "24h")
	MaxExcerptChars  int      `toml:"max_excerpt_chars"`  // Truncation limit for public-context excerpts
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for insight generation (default: "gemini-2.5-flash")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 2048)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "2m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "4s" for 15 RPM)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.4)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // Model for insight generation (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 2048)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "2m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "1s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.4)
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
	// LLMProviderNone disables LLM calls; insights fall back to templates
	LLMProviderNone LLMProvider = "none"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "gemini", "claude", or "none"
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings should be exposed in tradewatch.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/tradewatch.db",
				CacheSizeMB:   64,
				WALMode:       true,
				BusyTimeoutMS: 5000,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Jobs: JobsConfig{
			Enabled:         true,
			Timezone:        "UTC",
			DefaultSchedule: "*/10 * * * *",
			RetentionDays:   30,
			WarmupOnStart:   true,
			StaleRunTimeout: "10m",
		},
		Sources: SourcesConfig{
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout: "30s",
			RateLimit:      "1s",
			MaxBodySize:    10 * 1024 * 1024, // 10MB
			WorldBankURL:   "https://api.worldbank.org/v2",
		},
		Insights: InsightsConfig{
			BatchSize:        12,
			Languages:        []string{"en"},
			PublicContextTTL: "24h",
			MaxExcerptChars:  4000,
		},
		Gemini: GeminiConfig{
			APIKey:      "", // User must provide API key (no fallback)
			Model:       "gemini-2.5-flash",
			MaxTokens:   2048,
			Timeout:     "2m",
			RateLimit:   "4s", // 15 RPM free tier
			Temperature: 0.4,
		},
		Claude: ClaudeConfig{
			APIKey:      "", // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   2048,
			Timeout:     "2m",
			RateLimit:   "1s",
			Temperature: 0.4,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files; later files override
// earlier files. Priority: CLI flags > env vars > last file > ... > defaults.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TRADEWATCH_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("TRADEWATCH_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("TRADEWATCH_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if dbPath := os.Getenv("TRADEWATCH_SQLITE_PATH"); dbPath != "" {
		config.Storage.SQLite.Path = dbPath
	}

	// Logging configuration
	if level := os.Getenv("TRADEWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("TRADEWATCH_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("TRADEWATCH_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Jobs configuration
	if enabled := os.Getenv("TRADEWATCH_JOBS_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Jobs.Enabled = e
		}
	}
	if tz := os.Getenv("TRADEWATCH_JOBS_TIMEZONE"); tz != "" {
		config.Jobs.Timezone = tz
	}
	if schedule := os.Getenv("TRADEWATCH_JOBS_DEFAULT_SCHEDULE"); schedule != "" {
		config.Jobs.DefaultSchedule = schedule
	}
	if retention := os.Getenv("TRADEWATCH_JOBS_RETENTION_DAYS"); retention != "" {
		if r, err := strconv.Atoi(retention); err == nil {
			config.Jobs.RetentionDays = r
		}
	}
	if warmup := os.Getenv("TRADEWATCH_JOBS_WARMUP_ON_START"); warmup != "" {
		if w, err := strconv.ParseBool(warmup); err == nil {
			config.Jobs.WarmupOnStart = w
		}
	}

	// Sources configuration
	if userAgent := os.Getenv("TRADEWATCH_SOURCES_USER_AGENT"); userAgent != "" {
		config.Sources.UserAgent = userAgent
	}
	if requestTimeout := os.Getenv("TRADEWATCH_SOURCES_REQUEST_TIMEOUT"); requestTimeout != "" {
		if _, err := time.ParseDuration(requestTimeout); err == nil {
			config.Sources.RequestTimeout = requestTimeout
		}
	}
	if rateLimit := os.Getenv("TRADEWATCH_SOURCES_RATE_LIMIT"); rateLimit != "" {
		if _, err := time.ParseDuration(rateLimit); err == nil {
			config.Sources.RateLimit = rateLimit
		}
	}
	if worldBankURL := os.Getenv("TRADEWATCH_SOURCES_WORLDBANK_URL"); worldBankURL != "" {
		config.Sources.WorldBankURL = worldBankURL
	}

	// Insights configuration
	if batchSize := os.Getenv("TRADEWATCH_INSIGHTS_BATCH_SIZE"); batchSize != "" {
		if bs, err := strconv.Atoi(batchSize); err == nil && bs > 0 {
			config.Insights.BatchSize = bs
		}
	}

	// Gemini configuration
	if apiKey := os.Getenv("TRADEWATCH_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("TRADEWATCH_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if timeout := os.Getenv("TRADEWATCH_GEMINI_TIMEOUT"); timeout != "" {
		config.Gemini.Timeout = timeout
	}
	if rateLimit := os.Getenv("TRADEWATCH_GEMINI_RATE_LIMIT"); rateLimit != "" {
		config.Gemini.RateLimit = rateLimit
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("TRADEWATCH_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // TRADEWATCH_ prefix takes priority
	}
	if model := os.Getenv("TRADEWATCH_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if timeout := os.Getenv("TRADEWATCH_CLAUDE_TIMEOUT"); timeout != "" {
		config.Claude.Timeout = timeout
	}
	if rateLimit := os.Getenv("TRADEWATCH_CLAUDE_RATE_LIMIT"); rateLimit != "" {
		config.Claude.RateLimit = rateLimit
	}

	// LLM provider configuration
	if provider := os.Getenv("TRADEWATCH_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// StaleRunTimeoutDuration returns the parsed stale-run timeout, defaulting to 10 minutes
func (c *Config) StaleRunTimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.Jobs.StaleRunTimeout); err == nil && d > 0 {
		return d
	}
	return 10 * time.Minute
}

// RequestTimeoutDuration returns the parsed upstream request timeout, defaulting to 30 seconds
func (c *Config) RequestTimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.Sources.RequestTimeout); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// SourceRateLimitDuration returns the parsed per-host request spacing, defaulting to 1 second
func (c *Config) SourceRateLimitDuration() time.Duration {
	if d, err := time.ParseDuration(c.Sources.RateLimit); err == nil && d > 0 {
		return d
	}
	return time.Second
}

// PublicContextTTLDuration returns the parsed public-context cache TTL, defaulting to 24 hours
func (c *Config) PublicContextTTLDuration() time.Duration {
	if d, err := time.ParseDuration(c.Insights.PublicContextTTL); err == nil && d > 0 {
		return d
	}
	return 24 * time.Hour
}

// ValidateJobSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateJobSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]

	// Every-minute schedules would hammer the upstream sources
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}

	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		interval, err := strconv.Atoi(intervalStr)
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// ValidateTimezone checks that a timezone name resolves to an IANA location
func ValidateTimezone(name string) error {
	if name == "" {
		return nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ResolveAPIKey resolves an API key by name with environment variable
// priority. Resolution order: environment variables → KV store → config
// fallback → error, so TRADEWATCH_* variables always win.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"TRADEWATCH_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"anthropic_api_key": {"TRADEWATCH_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// KV store holds operator-set keys (medium priority)
	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}
