// Package config loads the application configuration from defaults, an
// optional YAML file, and environment variable overrides, in that order of
// precedence.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("TRAVELGUARD").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment gates lenient behaviors (webhook signature acceptance) that
// must be strict in production.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config is the full application configuration tree.
type Config struct {
	Environment Environment `yaml:"environment" env:"ENVIRONMENT"`

	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	JWT       JWTConfig       `yaml:"jwt" env:"JWT"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Routing   RoutingConfig   `yaml:"routing" env:"ROUTING"`
	Claims    ClaimsConfig    `yaml:"claims" env:"CLAIMS"`
	Payment   PaymentConfig   `yaml:"payment" env:"PAYMENT"`
	Quote     QuoteConfig     `yaml:"quote" env:"QUOTE"`
	Postgres  PostgresConfig  `yaml:"postgres" env:"POSTGRES"`
	Mongo     MongoConfig     `yaml:"mongo" env:"MONGO"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
}

// ServerConfig configures the HTTP listener, its companion metrics
// listener, and the request-shaping middleware in front of both.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	RateLimitRPS       float64  `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst     int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// JWTConfig configures Bearer-token authentication on the tool-surface and
// purchase/webhook HTTP API. Either Secret (HS256) or PublicKey (RS256,
// PEM-encoded) must be set for JWTAuth to validate anything.
type JWTConfig struct {
	Secret    string `yaml:"secret" env:"SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// TelemetryConfig controls OpenTelemetry trace/metric export. Disabled by
// default so a deployment without a collector doesn't fail to start.
type TelemetryConfig struct {
	Enabled        bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName    string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRatio    float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// LLMConfig names the model used at each call site plus the gateway's
// concurrency and embedding controls.
type LLMConfig struct {
	APIKey              string        `yaml:"api_key" env:"API_KEY"`
	BaseURL             string        `yaml:"base_url" env:"BASE_URL"`
	RouterModel         string        `yaml:"router_model" env:"ROUTER_MODEL"`     // fast
	PlannerModel        string        `yaml:"planner_model" env:"PLANNER_MODEL"`   // reasoning
	SQLModel            string        `yaml:"sql_model" env:"SQL_MODEL"`           // precise
	SynthModel          string        `yaml:"synth_model" env:"SYNTH_MODEL"`       // reasoning
	EmbeddingModel      string        `yaml:"embedding_model" env:"EMBEDDING_MODEL"`
	EmbeddingDimensions int           `yaml:"embedding_dimensions" env:"EMBEDDING_DIMENSIONS"`
	ChatTimeout         time.Duration `yaml:"chat_timeout" env:"CHAT_TIMEOUT"`
	SynthTimeout        time.Duration `yaml:"synth_timeout" env:"SYNTH_TIMEOUT"`
	MaxRetries          int           `yaml:"max_retries" env:"MAX_RETRIES"`
	MaxInflightPerModel int           `yaml:"max_inflight_per_model" env:"MAX_INFLIGHT_PER_MODEL"`
	EmbeddingCacheSize  int           `yaml:"embedding_cache_size" env:"EMBEDDING_CACHE_SIZE"`
}

// RoutingConfig controls the Routing Engine (C5).
type RoutingConfig struct {
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
}

// ClaimsConfig controls the Claims Intelligence Orchestrator (C7).
type ClaimsConfig struct {
	MaxTopics        int           `yaml:"max_topics" env:"MAX_TOPICS"`
	MaxParallelSQL   int           `yaml:"max_parallel_sql" env:"MAX_PARALLEL_SQL"`
	PlanTimeout      time.Duration `yaml:"plan_timeout" env:"PLAN_TIMEOUT"`
	GenerateTimeout  time.Duration `yaml:"generate_timeout" env:"GENERATE_TIMEOUT"`
	ExecuteTimeout   time.Duration `yaml:"execute_timeout" env:"EXECUTE_TIMEOUT"`
	SynthesizeTimeout time.Duration `yaml:"synthesize_timeout" env:"SYNTHESIZE_TIMEOUT"`
	SampleRowLimit   int           `yaml:"sample_row_limit" env:"SAMPLE_ROW_LIMIT"`
	// SchemaPrompt describes the claims warehouse's table shape to the SQL
	// generation model. It is free-form text, not a parsed schema.
	SchemaPrompt string `yaml:"schema_prompt" env:"SCHEMA_PROMPT"`
}

// PaymentConfig controls the Payment Orchestrator (C9) and Webhook
// Receiver (C10).
type PaymentConfig struct {
	CurrencyDefault    string        `yaml:"currency_default" env:"CURRENCY_DEFAULT"`
	CheckoutSessionTTL time.Duration `yaml:"checkout_session_ttl" env:"CHECKOUT_SESSION_TTL"`
	WebhookSecret      string        `yaml:"webhook_secret" env:"WEBHOOK_SECRET"`

	CheckoutBaseURL string        `yaml:"checkout_base_url" env:"CHECKOUT_BASE_URL"`
	CheckoutAPIKey  string        `yaml:"checkout_api_key" env:"CHECKOUT_API_KEY"`
	IssuanceBaseURL string        `yaml:"issuance_base_url" env:"ISSUANCE_BASE_URL"`
	IssuanceAPIKey  string        `yaml:"issuance_api_key" env:"ISSUANCE_API_KEY"`
	ProviderTimeout time.Duration `yaml:"provider_timeout" env:"PROVIDER_TIMEOUT"`
}

// QuoteConfig configures the external pricing API client (C8).
type QuoteConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// PostgresConfig backs the vector store, claims warehouse, and
// payments/selections tables.
type PostgresConfig struct {
	DSN          string        `yaml:"dsn" env:"DSN"`
	MaxOpenConns int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// MongoConfig backs the managed conversational-memory provider adapter.
type MongoConfig struct {
	URI      string `yaml:"uri" env:"URI"`
	Database string `yaml:"database" env:"DATABASE"`
}

// RedisConfig backs the embedding cache and idempotency bookkeeping.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	PoolSize int    `yaml:"pool_size" env:"POOL_SIZE"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Loader loads Config with the builder pattern: defaults -> YAML -> env.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "TRAVELGUARD"}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator registers a post-load validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves Config: defaults, then YAML file (if set), then env vars.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("load config env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the config from path, panicking on failure. Intended for
// cmd/ entry points only.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}

// Validate checks invariants that DefaultConfig + env overrides must still
// satisfy before the application starts.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		problems = append(problems, "invalid http_port")
	}
	if c.LLM.EmbeddingDimensions <= 0 {
		problems = append(problems, "embedding_dimensions must be positive")
	}
	if c.Claims.MaxTopics < 1 || c.Claims.MaxTopics > 10 {
		problems = append(problems, "claims.max_topics must be in [1,10]")
	}
	if c.Routing.MaxRetries < 0 {
		problems = append(problems, "routing.max_retries must be >= 0")
	}
	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		problems = append(problems, "environment must be development, staging, or production")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(problems, "; "))
	}
	return nil
}
