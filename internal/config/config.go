package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/query"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/throttle"
)

// Config holds the kbsearch API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig holds the per-client request rate limit. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds candidate store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbeddingConfig holds the query embedding settings.
type EmbeddingConfig struct {
	Provider    string                    `yaml:"provider"`
	Providers   map[string]ProviderConfig `yaml:"providers"`
	Model       string                    `yaml:"model"`
	Dimensions  int                       `yaml:"dimensions"`
	CacheTTLSec int                       `yaml:"cache_ttl_sec"` // 0 = no expiry

	// QueryInstruction is prepended to every query before embedding.
	QueryInstruction string      `yaml:"query_instruction"`
	Quota            QuotaConfig `yaml:"quota"`
}

// QuotaConfig holds embedding token quota settings.
type QuotaConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// Enabled reports whether any quota limit is set.
func (q QuotaConfig) Enabled() bool {
	return q.DailyTokenLimit > 0 || q.MonthlyTokenLimit > 0
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ActiveProvider returns the selected provider's settings.
func (e EmbeddingConfig) ActiveProvider() (ProviderConfig, bool) {
	p, ok := e.Providers[e.Provider]
	return p, ok
}

// CacheTTL returns the embedding cache TTL.
func (e EmbeddingConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLSec) * time.Second
}

// RetrieverConfig holds search defaults and the shared-resource policy.
type RetrieverConfig struct {
	DB              string         `yaml:"db"`
	Throttle        ThrottleConfig `yaml:"throttle"`
	CandidateLimit  int            `yaml:"candidate_limit"`
	DefaultK        int            `yaml:"default_k"`
	AbortIfDeadline bool           `yaml:"abort_if_deadline"`
	ManifestDir     string         `yaml:"manifest_dir"` // empty disables manifests
}

// ThrottleConfig mirrors throttle.Settings in YAML form.
type ThrottleConfig struct {
	LatencyBudgetMs     int `yaml:"latency_budget_ms"`
	Parallelism         int `yaml:"parallelism"`
	SleepMsBetweenCalls int `yaml:"sleep_ms_between_calls"`
	AcquireTimeoutMs    int `yaml:"acquire_timeout_ms"`
}

// ThrottleSettings builds the throttle policy; nil when every field is zero.
func (r RetrieverConfig) ThrottleSettings() *throttle.Settings {
	t := r.Throttle
	return throttle.New(t.LatencyBudgetMs, t.Parallelism, t.SleepMsBetweenCalls, t.AcquireTimeoutMs)
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit YAML path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Retriever.DB == "" {
		c.Retriever.DB = "default"
	}
	if c.Retriever.CandidateLimit <= 0 {
		c.Retriever.CandidateLimit = query.DefaultCandidateLimit
	}
	if c.Retriever.DefaultK <= 0 {
		c.Retriever.DefaultK = 8
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = int(math.Ceil(c.RateLimit.RPS))
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "kbsearch:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Embedding.Provider != "" {
		if _, ok := c.Embedding.ActiveProvider(); !ok {
			return fmt.Errorf("embedding.provider %q is not defined in embedding.providers", c.Embedding.Provider)
		}
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required when embedding.provider is set")
		}
	}
	switch c.Embedding.Quota.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf("embedding.quota.action must be \"warn\" or \"reject\", got %q", c.Embedding.Quota.Action)
	}
	if c.Embedding.Quota.DailyTokenLimit < 0 || c.Embedding.Quota.MonthlyTokenLimit < 0 {
		return fmt.Errorf("embedding.quota limits must be >= 0")
	}
	if c.Embedding.CacheTTLSec < 0 {
		return fmt.Errorf("embedding.cache_ttl_sec must be >= 0, got %d", c.Embedding.CacheTTLSec)
	}
	t := c.Retriever.Throttle
	if t.LatencyBudgetMs < 0 || t.Parallelism < 0 || t.SleepMsBetweenCalls < 0 || t.AcquireTimeoutMs < 0 {
		return fmt.Errorf("retriever.throttle values must be >= 0")
	}
	if c.Retriever.CandidateLimit > query.MaxCandidateLimit {
		return fmt.Errorf("retriever.candidate_limit must be <= %d, got %d",
			query.MaxCandidateLimit, c.Retriever.CandidateLimit)
	}
	if c.Retriever.DefaultK > query.MaxK {
		return fmt.Errorf("retriever.default_k must be <= %d, got %d", query.MaxK, c.Retriever.DefaultK)
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("rate_limit.rps must be >= 0, got %g", c.RateLimit.RPS)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
