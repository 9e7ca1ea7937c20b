package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server        ServerConfig        `json:"server"`
	Providers     []ProviderConfig    `json:"providers"`
	Database      DatabaseConfig      `json:"database"`
	Cognition     CognitionConfig     `json:"cognition"`
	RateLimit     RateLimitConfig     `json:"rate_limit"`
	Cache         CacheConfig         `json:"cache"`
	Contact       ContactConfig       `json:"contact"`
	Trust         TrustConfig         `json:"trust"`
	Consolidation ConsolidationConfig `json:"consolidation"`
	Notify        NotifyConfig        `json:"notify"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ProviderConfig struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Name     string   `json:"name"`
	Endpoint string   `json:"endpoint"`
	APIKey   string   `json:"api_key"`
	Model    string   `json:"model"`
	Fallback []string `json:"fallback,omitempty"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// CognitionConfig controls the main autonomy loop.
type CognitionConfig struct {
	CycleSeconds        int     `json:"cycle_seconds"`         // interval between cycles
	InitialDelaySeconds int     `json:"initial_delay_seconds"` // delay before the first cycle
	CallTimeoutSeconds  int     `json:"call_timeout_seconds"`  // per external call
	CallRetries         int     `json:"call_retries"`
	RetryBackoffSeconds int     `json:"retry_backoff_seconds"`
	PressureHighWater   float64 `json:"pressure_high_water"` // heap fraction above which a cycle is skipped
	SnapshotConcepts    int     `json:"snapshot_concepts"`   // top-N concepts in the decision snapshot
	SnapshotQuestions   int     `json:"snapshot_questions"`  // top-K pending questions
	SnapshotReflections int     `json:"snapshot_reflections"`
}

type RateLimitConfig struct {
	MinSpacingSeconds int `json:"min_spacing_seconds"`
	WindowCap         int `json:"window_cap"` // calls per rolling minute
	CooldownSeconds   int `json:"cooldown_seconds"`
}

type CacheConfig struct {
	Capacity           int `json:"capacity"`
	StateTTLMinutes    int `json:"state_ttl_minutes"`
	CreativeTTLMinutes int `json:"creative_ttl_minutes"`
}

type ContactConfig struct {
	MinQuestionPriority int `json:"min_question_priority"`
	MinIntensity        int `json:"min_intensity"`
	MaxDeliveryAttempts int `json:"max_delivery_attempts"`
}

type TrustConfig struct {
	ImpactDivisor int `json:"impact_divisor"` // raw event impact is divided by this before applying
}

type ConsolidationConfig struct {
	IntervalMinutes       int `json:"interval_minutes"`
	LogRetentionDays      int `json:"log_retention_days"`
	EpisodicRetentionDays int `json:"episodic_retention_days"`
	MinRelationStrength   int `json:"min_relation_strength"`
	MaxConcepts           int `json:"max_concepts"`
	MaxRelations          int `json:"max_relations"`
	MaxLogEntries         int `json:"max_log_entries"`
}

type NotifyConfig struct {
	Discord DiscordNotifyConfig `json:"discord"`
	Slack   SlackNotifyConfig   `json:"slack"`
	Stream  StreamNotifyConfig  `json:"stream"`
}

type DiscordNotifyConfig struct {
	Enabled   bool   `json:"enabled"`
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
}

type SlackNotifyConfig struct {
	Enabled   bool   `json:"enabled"`
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
}

type StreamNotifyConfig struct {
	Enabled bool   `json:"enabled"`
	Stream  string `json:"stream"`
}

// Duration accessors so callers never re-derive units.

func (c CognitionConfig) CycleInterval() time.Duration {
	return time.Duration(c.CycleSeconds) * time.Second
}

func (c CognitionConfig) InitialDelay() time.Duration {
	return time.Duration(c.InitialDelaySeconds) * time.Second
}

func (c CognitionConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

func (c CognitionConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSeconds) * time.Second
}

func (c RateLimitConfig) MinSpacing() time.Duration {
	return time.Duration(c.MinSpacingSeconds) * time.Second
}

func (c RateLimitConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

func (c CacheConfig) StateTTL() time.Duration {
	return time.Duration(c.StateTTLMinutes) * time.Minute
}

func (c CacheConfig) CreativeTTL() time.Duration {
	return time.Duration(c.CreativeTTLMinutes) * time.Minute
}

func (c ConsolidationConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c ConsolidationConfig) LogRetention() time.Duration {
	return time.Duration(c.LogRetentionDays) * 24 * time.Hour
}

func (c ConsolidationConfig) EpisodicRetention() time.Duration {
	return time.Duration(c.EpisodicRetentionDays) * 24 * time.Hour
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable references,
// and fills unset options with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with every tunable at its documented default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Cognition.CycleSeconds == 0 {
		c.Cognition.CycleSeconds = 300
	}
	if c.Cognition.InitialDelaySeconds == 0 {
		c.Cognition.InitialDelaySeconds = 10
	}
	if c.Cognition.CallTimeoutSeconds == 0 {
		c.Cognition.CallTimeoutSeconds = 30
	}
	if c.Cognition.CallRetries == 0 {
		c.Cognition.CallRetries = 2
	}
	if c.Cognition.RetryBackoffSeconds == 0 {
		c.Cognition.RetryBackoffSeconds = 2
	}
	if c.Cognition.PressureHighWater == 0 {
		c.Cognition.PressureHighWater = 0.9
	}
	if c.Cognition.SnapshotConcepts == 0 {
		c.Cognition.SnapshotConcepts = 5
	}
	if c.Cognition.SnapshotQuestions == 0 {
		c.Cognition.SnapshotQuestions = 3
	}
	if c.Cognition.SnapshotReflections == 0 {
		c.Cognition.SnapshotReflections = 3
	}
	if c.RateLimit.MinSpacingSeconds == 0 {
		c.RateLimit.MinSpacingSeconds = 2
	}
	if c.RateLimit.WindowCap == 0 {
		c.RateLimit.WindowCap = 20
	}
	if c.RateLimit.CooldownSeconds == 0 {
		c.RateLimit.CooldownSeconds = 120
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = 256
	}
	if c.Cache.StateTTLMinutes == 0 {
		c.Cache.StateTTLMinutes = 60
	}
	if c.Cache.CreativeTTLMinutes == 0 {
		c.Cache.CreativeTTLMinutes = 24 * 60
	}
	if c.Contact.MinQuestionPriority == 0 {
		c.Contact.MinQuestionPriority = 8
	}
	if c.Contact.MinIntensity == 0 {
		c.Contact.MinIntensity = 7
	}
	if c.Contact.MaxDeliveryAttempts == 0 {
		c.Contact.MaxDeliveryAttempts = 5
	}
	if c.Trust.ImpactDivisor == 0 {
		c.Trust.ImpactDivisor = 2
	}
	if c.Consolidation.IntervalMinutes == 0 {
		c.Consolidation.IntervalMinutes = 45
	}
	if c.Consolidation.LogRetentionDays == 0 {
		c.Consolidation.LogRetentionDays = 7
	}
	if c.Consolidation.EpisodicRetentionDays == 0 {
		c.Consolidation.EpisodicRetentionDays = 30
	}
	if c.Consolidation.MinRelationStrength == 0 {
		c.Consolidation.MinRelationStrength = 3
	}
	if c.Consolidation.MaxConcepts == 0 {
		c.Consolidation.MaxConcepts = 5000
	}
	if c.Consolidation.MaxRelations == 0 {
		c.Consolidation.MaxRelations = 20000
	}
	if c.Consolidation.MaxLogEntries == 0 {
		c.Consolidation.MaxLogEntries = 10000
	}
}
