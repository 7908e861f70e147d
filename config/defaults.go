package config

import "time"

// DefaultConfig returns the configuration with every component's documented
// defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server:      DefaultServerConfig(),
		JWT:         JWTConfig{},
		Telemetry:   DefaultTelemetryConfig(),
		LLM:         DefaultLLMConfig(),
		Routing:     DefaultRoutingConfig(),
		Claims:      DefaultClaimsConfig(),
		Payment:     DefaultPaymentConfig(),
		Quote:       DefaultQuoteConfig(),
		Postgres:    DefaultPostgresConfig(),
		Mongo:       DefaultMongoConfig(),
		Redis:       DefaultRedisConfig(),
		Log:         DefaultLogConfig(),
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9090,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:     false,
		ServiceName: "insurance-core",
		SampleRatio: 0.1,
	}
}

func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		RouterModel:         "gpt-4o-mini",
		PlannerModel:        "gpt-4o",
		SQLModel:            "gpt-4o",
		SynthModel:          "gpt-4o",
		EmbeddingModel:      "text-embedding-3-large",
		EmbeddingDimensions: 3072,
		ChatTimeout:         120 * time.Second,
		SynthTimeout:        300 * time.Second,
		MaxRetries:          3,
		MaxInflightPerModel: 10,
		EmbeddingCacheSize:  10_000,
	}
}

func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{MaxRetries: 3}
}

func DefaultClaimsConfig() ClaimsConfig {
	return ClaimsConfig{
		MaxTopics:         10,
		MaxParallelSQL:    5,
		PlanTimeout:       60 * time.Second,
		GenerateTimeout:   60 * time.Second,
		ExecuteTimeout:    30 * time.Second,
		SynthesizeTimeout: 300 * time.Second,
		SampleRowLimit:    5,
		SchemaPrompt: "Tables: claims(claim_id, policy_id, claimant_name, incident_date, " +
			"claim_type, status, amount_claimed, amount_paid, filed_at), " +
			"policies(policy_id, user_id, product_code, destination, start_date, end_date, premium), " +
			"payouts(payout_id, claim_id, amount, paid_at, method).",
	}
}

func DefaultPaymentConfig() PaymentConfig {
	return PaymentConfig{
		CurrencyDefault:    "SGD",
		CheckoutSessionTTL: 24 * time.Hour,
		ProviderTimeout:    30 * time.Second,
	}
}

func DefaultQuoteConfig() QuoteConfig {
	return QuoteConfig{Timeout: 30 * time.Second}
}

func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		DSN:             "host=localhost port=5432 user=travelguard dbname=travelguard sslmode=disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:      "mongodb://localhost:27017",
		Database: "travelguard_memory",
	}
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     "localhost:6379",
		DB:       0,
		PoolSize: 10,
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "json"}
}
