package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the complete configuration for a context engine deployment.
type Config struct {
	// LLM configures the profile extractor model.
	LLM LLMConfig `json:"llm"`

	// Embedder configures the embedding provider.
	Embedder EmbedderConfig `json:"embedder"`

	// Store configures the message and profile store.
	Store StoreConfig `json:"store"`

	// Memory configures the context policy and scoring parameters.
	Memory MemoryConfig `json:"memory"`
}

// LLMConfig configures the extractor LLM.
//
// Supported providers: openai, qwen, deepseek. An empty provider disables
// LLM extraction; the rule-based fallback handles distillation instead.
type LLMConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url,omitempty"`
}

// EmbedderConfig configures the embedding provider.
//
// Supported providers: openai, qwen.
type EmbedderConfig struct {
	Provider   string `json:"provider"`
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	BaseURL    string `json:"base_url,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// StoreConfig configures message and profile persistence.
//
// Supported providers: memory, sqlite, postgres, mysql. Options holds
// provider-specific settings: db_path for sqlite; host, port, user,
// password, db_name (and ssl_mode for postgres) for the servers.
type StoreConfig struct {
	Provider string         `json:"provider"`
	Options  map[string]any `json:"options,omitempty"`
}

// MemoryConfig configures the four-tier context policy.
type MemoryConfig struct {
	// Strategy is the default strategy for users without an assignment.
	Strategy string `json:"strategy"`

	// WindowTurns is the recency_window capacity in turns.
	WindowTurns int `json:"window_turns"`

	// RecentTurns is the verbatim tail span for gist and hybrid.
	RecentTurns int `json:"recent_turns"`

	// RetrievalTopK is the ranked retrieval result count for hybrid.
	RetrievalTopK int `json:"retrieval_top_k"`

	// GistMaxChars caps the length of the ad-hoc gist summary.
	GistMaxChars int `json:"gist_max_chars"`

	// Alpha, Beta and Gamma are the static retrieval weights for recency,
	// similarity and importance.
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`

	// ForgettingCurve configures dynamic-mode retrieval.
	ForgettingCurve ForgettingCurveConfig `json:"forgetting_curve"`
}

// ForgettingCurveConfig holds the dynamic retrieval parameters.
type ForgettingCurveConfig struct {
	// Enabled selects recall-probability ranking over weighted scoring.
	Enabled bool `json:"enabled"`

	// InitialG is the consolidation strength for messages vectorized with
	// zero salience.
	InitialG float64 `json:"initial_g"`

	// RecallThreshold is the minimum recall probability for a memory to
	// surface.
	RecallThreshold float64 `json:"recall_threshold"`

	// TimeUnit converts elapsed wall-clock time into curve time.
	TimeUnit time.Duration `json:"time_unit"`

	// UpdateOnRecall strengthens memories that surface.
	UpdateOnRecall bool `json:"update_on_recall"`

	// EmotionalBonusWeight scales the salience bonus on recall probability.
	EmotionalBonusWeight float64 `json:"emotional_bonus_weight"`

	// EncodingSalienceWeight scales how salience raises initial strength.
	EncodingSalienceWeight float64 `json:"encoding_salience_weight"`
}

// DefaultMemoryConfig returns the standard policy parameters: a 7-turn
// window, 3 verbatim recent turns, top-3 retrieval, 500-char gist cap,
// 0.3/0.5/0.2 static weights and day-granularity forgetting curve with a
// 0.86 recall threshold.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Strategy:      string(StrategyHybrid),
		WindowTurns:   7,
		RecentTurns:   3,
		RetrievalTopK: 3,
		GistMaxChars:  500,
		Alpha:         0.3,
		Beta:          0.5,
		Gamma:         0.2,
		ForgettingCurve: ForgettingCurveConfig{
			Enabled:                true,
			InitialG:               1.0,
			RecallThreshold:        0.86,
			TimeUnit:               24 * time.Hour,
			UpdateOnRecall:         true,
			EmotionalBonusWeight:   0.1,
			EncodingSalienceWeight: 0.5,
		},
	}
}

// LoadConfigFromEnv loads configuration from environment variables,
// reading a .env file first when one can be found in the current
// directory or up to five levels above it.
//
// Recognized variables:
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMENSIONS
//   - DATABASE_PROVIDER (memory, sqlite, postgres, mysql) plus
//     SQLITE_PATH, POSTGRES_*, MYSQL_* connection settings
//   - MEMORY_STRATEGY, MEMORY_WINDOW_TURNS, MEMORY_RECENT_TURNS,
//     MEMORY_TOP_K, MEMORY_GIST_MAX_CHARS, MEMORY_WEIGHT_ALPHA/BETA/GAMMA
//   - FORGETTING_CURVE_ENABLED, RECALL_THRESHOLD, RECALL_TIME_UNIT_HOURS,
//     UPDATE_ON_RECALL, EMOTIONAL_BONUS_WEIGHT, ENCODING_SALIENCE_WEIGHT
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		LLM: LLMConfig{
			Provider: os.Getenv("LLM_PROVIDER"),
			APIKey:   os.Getenv("LLM_API_KEY"),
			Model:    os.Getenv("LLM_MODEL"),
			BaseURL:  os.Getenv("LLM_BASE_URL"),
		},
		Embedder: EmbedderConfig{
			Provider:   getEnvOrDefault("EMBEDDING_PROVIDER", "openai"),
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      os.Getenv("EMBEDDING_MODEL"),
			BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		},
		Store:  storeConfigFromEnv(),
		Memory: memoryConfigFromEnv(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func storeConfigFromEnv() StoreConfig {
	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")
	options := make(map[string]any)

	switch provider {
	case "sqlite":
		options["db_path"] = getEnvOrDefault("SQLITE_PATH", "./recollect.db")
	case "postgres":
		options["host"] = getEnvOrDefault("POSTGRES_HOST", "localhost")
		options["port"] = getEnvInt("POSTGRES_PORT", 5432)
		options["user"] = getEnvOrDefault("POSTGRES_USER", "postgres")
		options["password"] = os.Getenv("POSTGRES_PASSWORD")
		options["db_name"] = getEnvOrDefault("POSTGRES_DATABASE", "recollect")
		options["ssl_mode"] = getEnvOrDefault("POSTGRES_SSLMODE", "disable")
	case "mysql":
		options["host"] = getEnvOrDefault("MYSQL_HOST", "127.0.0.1")
		options["port"] = getEnvInt("MYSQL_PORT", 3306)
		options["user"] = getEnvOrDefault("MYSQL_USER", "root")
		options["password"] = os.Getenv("MYSQL_PASSWORD")
		options["db_name"] = getEnvOrDefault("MYSQL_DATABASE", "recollect")
	}

	return StoreConfig{Provider: provider, Options: options}
}

func memoryConfigFromEnv() MemoryConfig {
	cfg := DefaultMemoryConfig()

	cfg.Strategy = getEnvOrDefault("MEMORY_STRATEGY", cfg.Strategy)
	cfg.WindowTurns = getEnvInt("MEMORY_WINDOW_TURNS", cfg.WindowTurns)
	cfg.RecentTurns = getEnvInt("MEMORY_RECENT_TURNS", cfg.RecentTurns)
	cfg.RetrievalTopK = getEnvInt("MEMORY_TOP_K", cfg.RetrievalTopK)
	cfg.GistMaxChars = getEnvInt("MEMORY_GIST_MAX_CHARS", cfg.GistMaxChars)
	cfg.Alpha = getEnvFloat("MEMORY_WEIGHT_ALPHA", cfg.Alpha)
	cfg.Beta = getEnvFloat("MEMORY_WEIGHT_BETA", cfg.Beta)
	cfg.Gamma = getEnvFloat("MEMORY_WEIGHT_GAMMA", cfg.Gamma)

	fc := &cfg.ForgettingCurve
	fc.Enabled = getEnvBool("FORGETTING_CURVE_ENABLED", fc.Enabled)
	fc.InitialG = getEnvFloat("INITIAL_CONSOLIDATION_G", fc.InitialG)
	fc.RecallThreshold = getEnvFloat("RECALL_THRESHOLD", fc.RecallThreshold)
	fc.TimeUnit = time.Duration(getEnvInt("RECALL_TIME_UNIT_HOURS", int(fc.TimeUnit/time.Hour))) * time.Hour
	fc.UpdateOnRecall = getEnvBool("UPDATE_ON_RECALL", fc.UpdateOnRecall)
	fc.EmotionalBonusWeight = getEnvFloat("EMOTIONAL_BONUS_WEIGHT", fc.EmotionalBonusWeight)
	fc.EncodingSalienceWeight = getEnvFloat("ENCODING_SALIENCE_WEIGHT", fc.EncodingSalienceWeight)

	return cfg
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}

	cfg := &Config{Memory: DefaultMemoryConfig()}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration. Unknown strategy names and negative
// scoring parameters fail here, at load time, rather than per request.
func (c *Config) Validate() error {
	if c.Embedder.Provider == "" {
		return NewEngineError("Validate", fmt.Errorf("%w: embedder provider is required", ErrInvalidConfig))
	}
	if c.Store.Provider == "" {
		return NewEngineError("Validate", fmt.Errorf("%w: store provider is required", ErrInvalidConfig))
	}
	return c.Memory.Validate()
}

// Validate checks the policy parameters.
func (m *MemoryConfig) Validate() error {
	if m.Strategy != "" && !NormalizeStrategy(m.Strategy).Valid() {
		return NewEngineError("Validate", fmt.Errorf("%w: %q", ErrInvalidStrategy, m.Strategy))
	}
	if m.WindowTurns < 0 || m.RecentTurns < 0 || m.RetrievalTopK < 0 || m.GistMaxChars < 0 {
		return NewEngineError("Validate", fmt.Errorf("%w: negative policy size", ErrInvalidConfig))
	}
	if m.Alpha < 0 || m.Beta < 0 || m.Gamma < 0 {
		return NewEngineError("Validate", fmt.Errorf("%w: negative scoring weight", ErrInvalidConfig))
	}
	fc := m.ForgettingCurve
	if fc.RecallThreshold < 0 || fc.RecallThreshold > 1 {
		return NewEngineError("Validate", fmt.Errorf("%w: recall threshold out of range", ErrInvalidConfig))
	}
	if fc.TimeUnit < 0 || fc.InitialG < 0 || fc.EmotionalBonusWeight < 0 || fc.EncodingSalienceWeight < 0 {
		return NewEngineError("Validate", fmt.Errorf("%w: negative forgetting curve parameter", ErrInvalidConfig))
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// FindEnvFile searches for a .env or .env.example file, checking the
// current directory and then up to five levels above it.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
