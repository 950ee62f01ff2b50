package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreDynamoDB = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment"`

	// Storage
	StoreDriver string `yaml:"store_driver"`
	SQLitePath  string `yaml:"sqlite_path"`

	// AWS configuration
	AWSRegion     string `yaml:"aws_region"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	IndexName     string `yaml:"index_name"` // GSI1 - kind and status listings
	EventBusName  string `yaml:"event_bus_name"`

	// Reload broadcast between instances; empty disables it
	RedisURL      string `yaml:"redis_url"`
	ReloadChannel string `yaml:"reload_channel"`

	// Lambda configuration
	IsLambda bool `yaml:"is_lambda"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Authentication
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`

	// Feature flags
	EnableMetrics bool `yaml:"enable_metrics"`
	EnableTracing bool `yaml:"enable_tracing"`
	EnableCORS    bool `yaml:"enable_cors"`

	MetricsNamespace string `yaml:"metrics_namespace"`

	// Topic graph
	SuggestLimit int           `yaml:"suggest_limit"`
	LockTTL      time.Duration `yaml:"lock_ttl"`

	CircuitBreaker BreakerConfig `yaml:"circuit_breaker"`

	// ModerationFile holds the moderation rules and is watched for changes
	ModerationFile string           `yaml:"moderation_file"`
	Moderation     ModerationConfig `yaml:"moderation"`
}

// BreakerConfig tunes the store circuit breaker
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
}

// ModerationConfig is the rule set of the moderation policy
type ModerationConfig struct {
	Default      string            `yaml:"default"`
	TrustedRoles []string          `yaml:"trusted_roles"`
	Rules        map[string]string `yaml:"rules"`
}

func defaultConfig() *Config {
	return &Config{
		ServerAddress:    ":8080",
		Environment:      "development",
		StoreDriver:      StoreMemory,
		SQLitePath:       "topics.db",
		AWSRegion:        "us-west-2",
		DynamoDBTable:    "topics",
		IndexName:        "GSI1",
		EventBusName:     "topics-events",
		ReloadChannel:    "topics:reload",
		LogLevel:         "info",
		JWTIssuer:        "topics",
		EnableCORS:       true,
		MetricsNamespace: "Topics",
		SuggestLimit:     20,
		LockTTL:          10 * time.Second,
		CircuitBreaker: BreakerConfig{
			MaxRequests:      3,
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		Moderation: ModerationConfig{
			Default:      "allow",
			TrustedRoles: []string{"moderator", "admin"},
		},
	}
}

// LoadConfig loads configuration. Sources, lowest priority first:
// defaults, the YAML file named by CONFIG_FILE, environment variables.
// Rules in MODERATION_FILE replace the moderation section.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.ModerationFile != "" {
		rules, err := LoadModerationFile(cfg.ModerationFile)
		if err != nil {
			return nil, err
		}
		cfg.Moderation = rules
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

func (c *Config) applyEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.StoreDriver = getEnv("STORE_DRIVER", c.StoreDriver)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.DynamoDBTable = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", c.DynamoDBTable))
	c.IndexName = getEnv("INDEX_NAME", c.IndexName)
	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.ReloadChannel = getEnv("RELOAD_CHANNEL", c.ReloadChannel)
	c.IsLambda = getEnvBool("IS_LAMBDA", c.IsLambda || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "")
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTIssuer = getEnv("JWT_ISSUER", c.JWTIssuer)
	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.EnableCORS = getEnvBool("ENABLE_CORS", c.EnableCORS)
	c.MetricsNamespace = getEnv("METRICS_NAMESPACE", c.MetricsNamespace)
	c.SuggestLimit = getEnvInt("SUGGEST_LIMIT", c.SuggestLimit)
	c.LockTTL = getEnvDuration("LOCK_TTL", c.LockTTL)
	c.CircuitBreaker.Enabled = getEnvBool("CIRCUIT_BREAKER_ENABLED", c.CircuitBreaker.Enabled)
	c.ModerationFile = getEnv("MODERATION_FILE", c.ModerationFile)
	c.Moderation.Default = getEnv("MODERATION_DEFAULT", c.Moderation.Default)
	if roles := os.Getenv("MODERATION_TRUSTED_ROLES"); roles != "" {
		c.Moderation.TrustedRoles = splitList(roles)
	}
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case StoreDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.StoreDriver == StoreMemory {
			return fmt.Errorf("the memory store cannot be used in production")
		}
	}
	if c.SuggestLimit <= 0 {
		return fmt.Errorf("SUGGEST_LIMIT must be positive")
	}
	return c.Moderation.Validate()
}

// Validate checks the decisions of a moderation rule set
func (m ModerationConfig) Validate() error {
	valid := func(d string) bool { return d == "allow" || d == "queue" || d == "reject" }
	if !valid(m.Default) {
		return fmt.Errorf("invalid moderation default %q", m.Default)
	}
	for action, d := range m.Rules {
		if !valid(d) {
			return fmt.Errorf("invalid moderation decision %q for %s", d, action)
		}
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// LoadModerationFile reads a moderation rule set from YAML
func LoadModerationFile(path string) (ModerationConfig, error) {
	var file struct {
		Moderation ModerationConfig `yaml:"moderation"`
	}
	if err := loadYAML(path, &file); err != nil {
		return ModerationConfig{}, fmt.Errorf("failed to load moderation rules: %w", err)
	}
	if err := file.Moderation.Validate(); err != nil {
		return ModerationConfig{}, err
	}
	return file.Moderation, nil
}

func loadYAML(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
