package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ice/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	Gemini      GeminiConfig     `toml:"gemini"`
	Claude      ClaudeConfig     `toml:"claude"`
	LLM         LLMConfig        `toml:"llm"`
	Embeddings  EmbeddingsConfig `toml:"embeddings"`
	Query       QueryConfig      `toml:"query"`
	Ingestion   IngestionConfig  `toml:"ingestion"`
	Validation  ValidationConfig `toml:"validation"`
	Email       EmailConfig      `toml:"email"`
	Mailer      MailerConfig     `toml:"mailer"`
	WebSocket   WebSocketConfig  `toml:"websocket"`
	Connectors  ConnectorsConfig `toml:"connectors"`
	Keys        KeysDirConfig    `toml:"keys"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// KeysDirConfig points at a directory of TOML key files loaded into the
// KV store at startup. Each file holds [key-name] sections with 'value'
// and optional 'description' fields.
type KeysDirConfig struct {
	Dir string `toml:"dir"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for answer generation (default: "gemini-3-flash-preview")
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "2m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "4s" for 15 RPM)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.2)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // Model for answer generation (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 4096)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "2m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "1s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.2)
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "gemini" or "claude" (default: "gemini")
}

// EmbeddingsConfig contains embedding model configuration
type EmbeddingsConfig struct {
	Model     string `toml:"model"`     // Embedding model (default: "gemini-embedding-001")
	Dimension int    `toml:"dimension"` // Embedding vector dimension (default: 768)
	BatchSize int    `toml:"batch_size"`
}

// QueryConfig contains hybrid query pipeline thresholds
type QueryConfig struct {
	Mode              string  `toml:"mode"`               // Retrieval mode: "hybrid", "vector", or "graph"
	TopK              int     `toml:"top_k"`              // Chunks retrieved per query
	StrongThreshold   float64 `toml:"strong_threshold"`   // Cosine similarity for strong attribution
	ModerateThreshold float64 `toml:"moderate_threshold"` // Cosine similarity for moderate attribution
	WeakThreshold     float64 `toml:"weak_threshold"`     // Cosine similarity for weak attribution
	NumericBonus      float64 `toml:"numeric_bonus"`      // Similarity bonus when sentence numbers appear in chunk
	MaxContextChars   int     `toml:"max_context_chars"`  // Context budget handed to the LLM
}

// IngestionConfig contains scheduled ingestion configuration
type IngestionConfig struct {
	Enabled      bool     `toml:"enabled"`
	Schedule     string   `toml:"schedule"`      // Cron schedule (5-field)
	Watchlist    []string `toml:"watchlist"`     // Symbols fetched on each run
	Concurrency  int      `toml:"concurrency"`   // Parallel symbol fetches per run
	LookbackDays int      `toml:"lookback_days"` // History window for first fetch
}

// ValidationConfig contains record quality thresholds
type ValidationConfig struct {
	MinContentRunes    int      `toml:"min_content_runes"`    // Articles shorter than this get a quality warning
	MaxFutureSkew      string   `toml:"max_future_skew"`      // Timestamps further ahead than this are rejected
	MaxAge             string   `toml:"max_age"`              // Records older than this get a staleness warning
	QuoteDivergencePct float64  `toml:"quote_divergence_pct"` // Cross-source close-price divergence threshold
	DuplicateWindow    string   `toml:"duplicate_window"`     // Dedupe hash retention window
	PromoPhrases       []string `toml:"promo_phrases"`        // Promotional phrasing heuristics
}

// EmailAccountConfig configures one IMAP account to ingest
type EmailAccountConfig struct {
	Name           string   `toml:"name" validate:"required"`
	Server         string   `toml:"server" validate:"required"`
	Port           int      `toml:"port"`
	Username       string   `toml:"username"`
	Password       string   `toml:"password"` // supports {key-name} references
	Mailbox        string   `toml:"mailbox"`  // default INBOX
	UseTLS         bool     `toml:"use_tls"`
	MarkSeen       bool     `toml:"mark_seen"`
	FromAllowlist  []string `toml:"from_allowlist"`  // empty = accept all senders
	SubjectFilters []string `toml:"subject_filters"` // empty = accept all subjects
}

// EmailConfig contains IMAP ingestion configuration
type EmailConfig struct {
	Enabled  bool                 `toml:"enabled"`
	Schedule string               `toml:"schedule"` // Cron schedule for mailbox sync
	Accounts []EmailAccountConfig `toml:"accounts"`
}

// MailerConfig contains SMTP digest configuration
type MailerConfig struct {
	Enabled  bool     `toml:"enabled"`
	Host     string   `toml:"host"`
	Port     int      `toml:"port"`
	Username string   `toml:"username"`
	Password string   `toml:"password"` // supports {key-name} references
	From     string   `toml:"from"`
	To       []string `toml:"to"`
	UseTLS   bool     `toml:"use_tls"`  // implicit TLS with STARTTLS fallback
	Schedule string   `toml:"schedule"` // Cron schedule for digest sends
}

// WebSocketConfig contains configuration for the pipeline event stream
type WebSocketConfig struct {
	ExcludeEvents []string `toml:"exclude_events"` // Event types never broadcast ("document_stored", ...)

	// Log relay settings. Server log lines at or above the level are
	// streamed to clients as "log" frames.
	LogMinLevel        string   `toml:"log_min_level"`
	LogExcludePatterns []string `toml:"log_exclude_patterns"` // Messages containing any pattern are not relayed
}

// VendorConfig is the shared shape for API-key vendors
type VendorConfig struct {
	Enabled   bool   `toml:"enabled"`
	APIKey    string `toml:"api_key"` // supports {key-name} references
	BaseURL   string `toml:"base_url"`
	RateLimit string `toml:"rate_limit"` // requests-per-duration, e.g. "1s" = 1 req/s
	Burst     int    `toml:"burst"`
	Timeout   string `toml:"timeout"`
}

// EDGARConfig configures the SEC EDGAR connector. EDGAR has no API key
// but requires a descriptive User-Agent on every request.
type EDGARConfig struct {
	Enabled   bool     `toml:"enabled"`
	UserAgent string   `toml:"user_agent"` // e.g. "ICE research bot admin@example.com"
	BaseURL   string   `toml:"base_url"`
	RateLimit string   `toml:"rate_limit"`
	Forms     []string `toml:"forms"` // form types fetched by default
}

// ConnectorsConfig holds per-vendor connector configuration
type ConnectorsConfig struct {
	Benzinga VendorConfig `toml:"benzinga"`
	Polygon  VendorConfig `toml:"polygon"`
	NewsAPI  VendorConfig `toml:"newsapi"`
	OpenBB   VendorConfig `toml:"openbb"`
	Finnhub  VendorConfig `toml:"finnhub"`
	EDGAR    EDGARConfig  `toml:"edgar"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in ice.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Keys: KeysDirConfig{
			Dir: "./keys",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Gemini: GeminiConfig{
			APIKey:      "", // User must provide API key (no fallback)
			Model:       "gemini-3-flash-preview",
			Timeout:     "2m",
			RateLimit:   "4s", // Default to 4s (15 RPM) for free tier
			Temperature: 0.2,  // Low temperature: answers should stay close to sources
		},
		Claude: ClaudeConfig{
			APIKey:      "", // ANTHROPIC_API_KEY or config
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   4096,
			Timeout:     "2m",
			RateLimit:   "1s",
			Temperature: 0.2,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		Embeddings: EmbeddingsConfig{
			Model:     "gemini-embedding-001",
			Dimension: 768,
			BatchSize: 32,
		},
		Query: QueryConfig{
			Mode:              "hybrid",
			TopK:              12,
			StrongThreshold:   0.80,
			ModerateThreshold: 0.65,
			WeakThreshold:     0.50,
			NumericBonus:      0.05,
			MaxContextChars:   24000,
		},
		Ingestion: IngestionConfig{
			Enabled:      false,            // Disabled by default - user must explicitly opt-in
			Schedule:     "0 */6 * * *",    // Every 6 hours
			Watchlist:    []string{},       // User supplies symbols
			Concurrency:  3,                // Parallel symbol fetches
			LookbackDays: 30,               // First-fetch history window
		},
		Validation: ValidationConfig{
			MinContentRunes:    40,
			MaxFutureSkew:      "24h",
			MaxAge:             "8760h", // 1 year
			QuoteDivergencePct: 2.0,
			DuplicateWindow:    "168h", // 7 days
			PromoPhrases: []string{
				"sponsored content",
				"paid advertisement",
				"this is a press release",
			},
		},
		Email: EmailConfig{
			Enabled:  false,
			Schedule: "*/15 * * * *", // Every 15 minutes
		},
		Mailer: MailerConfig{
			Enabled:  false,
			Port:     587,
			UseTLS:   true,
			Schedule: "0 7 * * *", // Daily at 07:00
		},
		WebSocket: WebSocketConfig{
			// Every pipeline event streams by default.
			ExcludeEvents: nil,
			LogMinLevel:   "info",
		},
		Connectors: ConnectorsConfig{
			Benzinga: VendorConfig{
				BaseURL:   "https://api.benzinga.com",
				RateLimit: "1s",
				Burst:     2,
				Timeout:   "30s",
			},
			Polygon: VendorConfig{
				BaseURL:   "https://api.polygon.io",
				RateLimit: "12s", // 5 req/min free tier
				Burst:     1,
				Timeout:   "30s",
			},
			NewsAPI: VendorConfig{
				BaseURL:   "https://newsapi.org",
				RateLimit: "2s",
				Burst:     2,
				Timeout:   "30s",
			},
			OpenBB: VendorConfig{
				BaseURL:   "https://api.openbb.co",
				RateLimit: "1s",
				Burst:     2,
				Timeout:   "30s",
			},
			Finnhub: VendorConfig{
				BaseURL:   "https://finnhub.io",
				RateLimit: "2s", // Stay under the 60/min vendor cap
				Burst:     5,
				Timeout:   "30s",
			},
			EDGAR: EDGARConfig{
				UserAgent: "", // SEC requires contact info; user must provide
				BaseURL:   "https://data.sec.gov",
				RateLimit: "200ms", // 5 req/s, half the SEC cap
				Forms:     []string{"8-K", "10-Q", "10-K", "4"},
			},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI.
// kvStorage can be nil (key replacement will be skipped).
func LoadFromFile(kvStorage interfaces.KeyValueStorage, path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles(kvStorage)
	}
	return LoadFromFiles(kvStorage, path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI. Later files override
// earlier files.
func LoadFromFiles(kvStorage interfaces.KeyValueStorage, paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Perform {key-name} replacement if KV storage is available
	if kvStorage != nil {
		ctx := context.Background()
		kvMap, err := kvStorage.GetAll(ctx)
		if err != nil {
			logger := arbor.NewLogger()
			logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
		} else {
			logger := arbor.NewLogger()
			if err := ReplaceInStruct(config, kvMap, logger); err != nil {
				logger.Warn().Err(err).Msg("Failed to replace key references in config")
			}
		}
	}

	// Apply environment variables (overrides all file configs and replacements)
	applyEnvOverrides(config)

	return config, nil
}

// Validate checks structural config constraints
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Ingestion.Enabled && c.Ingestion.Schedule != "" {
		if err := ValidateSchedule(c.Ingestion.Schedule); err != nil {
			return fmt.Errorf("ingestion schedule: %w", err)
		}
	}
	if c.Email.Enabled && c.Email.Schedule != "" {
		if err := ValidateSchedule(c.Email.Schedule); err != nil {
			return fmt.Errorf("email schedule: %w", err)
		}
	}
	if c.Mailer.Enabled && c.Mailer.Schedule != "" {
		if err := ValidateSchedule(c.Mailer.Schedule); err != nil {
			return fmt.Errorf("mailer schedule: %w", err)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: ICE_ENV, fallback: GO_ENV)
	if env := os.Getenv("ICE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("ICE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("ICE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("ICE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("ICE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("ICE_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("ICE_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range splitString(output, ",") {
			trimmed := trimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Gemini configuration
	if apiKey := os.Getenv("ICE_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("ICE_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if timeout := os.Getenv("ICE_GEMINI_TIMEOUT"); timeout != "" {
		config.Gemini.Timeout = timeout
	}
	if rateLimit := os.Getenv("ICE_GEMINI_RATE_LIMIT"); rateLimit != "" {
		config.Gemini.RateLimit = rateLimit
	}
	if temperature := os.Getenv("ICE_GEMINI_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Gemini.Temperature = float32(t)
		}
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("ICE_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // ICE_ prefix takes priority
	}
	if model := os.Getenv("ICE_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if maxTokens := os.Getenv("ICE_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Claude.MaxTokens = mt
		}
	}
	if timeout := os.Getenv("ICE_CLAUDE_TIMEOUT"); timeout != "" {
		config.Claude.Timeout = timeout
	}

	// LLM provider configuration
	if provider := os.Getenv("ICE_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	// Embeddings configuration
	if model := os.Getenv("ICE_EMBEDDINGS_MODEL"); model != "" {
		config.Embeddings.Model = model
	}
	if dim := os.Getenv("ICE_EMBEDDINGS_DIMENSION"); dim != "" {
		if d, err := strconv.Atoi(dim); err == nil {
			config.Embeddings.Dimension = d
		}
	}

	// Query configuration
	if mode := os.Getenv("ICE_QUERY_MODE"); mode != "" {
		config.Query.Mode = mode
	}
	if topK := os.Getenv("ICE_QUERY_TOP_K"); topK != "" {
		if k, err := strconv.Atoi(topK); err == nil {
			config.Query.TopK = k
		}
	}

	// Ingestion configuration
	if enabled := os.Getenv("ICE_INGESTION_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Ingestion.Enabled = e
		}
	}
	if schedule := os.Getenv("ICE_INGESTION_SCHEDULE"); schedule != "" {
		config.Ingestion.Schedule = schedule
	}
	if watchlist := os.Getenv("ICE_INGESTION_WATCHLIST"); watchlist != "" {
		symbols := []string{}
		for _, s := range splitString(watchlist, ",") {
			trimmed := trimSpace(s)
			if trimmed != "" {
				symbols = append(symbols, strings.ToUpper(trimmed))
			}
		}
		if len(symbols) > 0 {
			config.Ingestion.Watchlist = symbols
		}
	}
	if concurrency := os.Getenv("ICE_INGESTION_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Ingestion.Concurrency = c
		}
	}

	// Email configuration
	if enabled := os.Getenv("ICE_EMAIL_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Email.Enabled = e
		}
	}
	if schedule := os.Getenv("ICE_EMAIL_SCHEDULE"); schedule != "" {
		config.Email.Schedule = schedule
	}

	// Connector API keys
	if apiKey := os.Getenv("ICE_BENZINGA_API_KEY"); apiKey != "" {
		config.Connectors.Benzinga.APIKey = apiKey
	}
	if apiKey := os.Getenv("ICE_POLYGON_API_KEY"); apiKey != "" {
		config.Connectors.Polygon.APIKey = apiKey
	}
	if apiKey := os.Getenv("ICE_NEWSAPI_API_KEY"); apiKey != "" {
		config.Connectors.NewsAPI.APIKey = apiKey
	}
	if apiKey := os.Getenv("ICE_OPENBB_API_KEY"); apiKey != "" {
		config.Connectors.OpenBB.APIKey = apiKey
	}
	if apiKey := os.Getenv("ICE_FINNHUB_API_KEY"); apiKey != "" {
		config.Connectors.Finnhub.APIKey = apiKey
	}
	if userAgent := os.Getenv("ICE_EDGAR_USER_AGENT"); userAgent != "" {
		config.Connectors.EDGAR.UserAgent = userAgent
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves an API key by name with environment variable priority.
// Resolution order: environment variables → KV store → config fallback → error.
// This ensures ICE_* environment variables always take precedence.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	// Map of KV store key names to environment variable names.
	// Environment variables have highest priority.
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"ICE_GEMINI_API_KEY"},
		"anthropic_api_key": {"ICE_CLAUDE_API_KEY"},
		"claude_api_key":    {"ICE_CLAUDE_API_KEY"},
		"benzinga_api_key":  {"ICE_BENZINGA_API_KEY"},
		"polygon_api_key":   {"ICE_POLYGON_API_KEY"},
		"newsapi_api_key":   {"ICE_NEWSAPI_API_KEY"},
		"openbb_api_key":    {"ICE_OPENBB_API_KEY"},
		"finnhub_api_key":   {"ICE_FINNHUB_API_KEY"},
	}

	// For Claude, also check the standard ANTHROPIC_API_KEY env var
	if name == "anthropic_api_key" || name == "claude_api_key" {
		if envValue := os.Getenv("ANTHROPIC_API_KEY"); envValue != "" {
			return envValue, nil
		}
	}

	// Check environment variables (highest priority)
	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// Try to resolve from KV store (medium priority - file-based variables)
	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	// Fallback to config value (lowest priority)
	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// Helper functions for string manipulation
func splitString(s, sep string) []string {
	result := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i = start - 1
		}
	}
	result = append(result, s[start:])
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

// ValidateSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateSchedule(schedule string) error {
	// Parse the cron expression
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// Check for minimum 5-minute interval
	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]

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

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// DeepCloneConfig creates a deep copy of the Config struct.
// Used when handing config snapshots to the status endpoint so callers
// cannot mutate the live configuration.
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	// Clone the config struct (shallow copy first)
	clone := *c

	// Deep clone slice fields to prevent shared memory
	if len(c.Logging.Output) > 0 {
		clone.Logging.Output = make([]string, len(c.Logging.Output))
		copy(clone.Logging.Output, c.Logging.Output)
	}

	if len(c.Ingestion.Watchlist) > 0 {
		clone.Ingestion.Watchlist = make([]string, len(c.Ingestion.Watchlist))
		copy(clone.Ingestion.Watchlist, c.Ingestion.Watchlist)
	}

	if len(c.Validation.PromoPhrases) > 0 {
		clone.Validation.PromoPhrases = make([]string, len(c.Validation.PromoPhrases))
		copy(clone.Validation.PromoPhrases, c.Validation.PromoPhrases)
	}

	if len(c.WebSocket.ExcludeEvents) > 0 {
		clone.WebSocket.ExcludeEvents = make([]string, len(c.WebSocket.ExcludeEvents))
		copy(clone.WebSocket.ExcludeEvents, c.WebSocket.ExcludeEvents)
	}

	if len(c.Email.Accounts) > 0 {
		clone.Email.Accounts = make([]EmailAccountConfig, len(c.Email.Accounts))
		copy(clone.Email.Accounts, c.Email.Accounts)
		for i := range clone.Email.Accounts {
			if len(c.Email.Accounts[i].FromAllowlist) > 0 {
				clone.Email.Accounts[i].FromAllowlist = append([]string(nil), c.Email.Accounts[i].FromAllowlist...)
			}
			if len(c.Email.Accounts[i].SubjectFilters) > 0 {
				clone.Email.Accounts[i].SubjectFilters = append([]string(nil), c.Email.Accounts[i].SubjectFilters...)
			}
		}
	}

	if len(c.Mailer.To) > 0 {
		clone.Mailer.To = make([]string, len(c.Mailer.To))
		copy(clone.Mailer.To, c.Mailer.To)
	}

	if len(c.Connectors.EDGAR.Forms) > 0 {
		clone.Connectors.EDGAR.Forms = make([]string, len(c.Connectors.EDGAR.Forms))
		copy(clone.Connectors.EDGAR.Forms, c.Connectors.EDGAR.Forms)
	}

	return &clone
}
