// Command insurance-core is the main entry point.
//
// Usage:
//
//	insurance-core serve                       # start the server
//	insurance-core serve --config config.yaml  # specify a config file
//	insurance-core version                     # print version info
//	insurance-core health                      # check a running server's health
//	insurance-core migrate up                  # run pending migrations
//	insurance-core migrate down                # roll back the last migration
//	insurance-core migrate status              # show migration status
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/travelguard/insurance-core/claims"
	"github.com/travelguard/insurance-core/config"
	"github.com/travelguard/insurance-core/graphsearch"
	"github.com/travelguard/insurance-core/httpapi/handlers"
	"github.com/travelguard/insurance-core/internal/cache"
	"github.com/travelguard/insurance-core/internal/database"
	"github.com/travelguard/insurance-core/internal/migration"
	"github.com/travelguard/insurance-core/internal/telemetry"
	"github.com/travelguard/insurance-core/llmgateway"
	"github.com/travelguard/insurance-core/llmgateway/openaicompat"
	"github.com/travelguard/insurance-core/memory"
	"github.com/travelguard/insurance-core/payments"
	"github.com/travelguard/insurance-core/quotation"
	"github.com/travelguard/insurance-core/routing"
	"github.com/travelguard/insurance-core/toolsurface"
	"github.com/travelguard/insurance-core/vectorsearch"
)

// Version, BuildTime, and GitCommit are injected at build time via
// -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting insurance-core",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		otelProviders = &telemetry.Providers{}
	}

	db, err := openPostgres(cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}

	if err := runEmbeddedMigrations(cfg.Postgres, logger); err != nil {
		logger.Fatal("failed to run database migrations", zap.Error(err))
	}

	pool, err := database.NewPoolManager(db, database.DefaultPoolConfig(), logger)
	if err != nil {
		logger.Fatal("failed to initialize connection pool", zap.Error(err))
	}
	db = pool.DB()

	redisCache, err := cache.NewManager(cache.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DefaultTTL:   10 * time.Minute,
		MinIdleConns: 2,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}

	mongoCollection, mongoClient, err := openMongoCollection(context.Background(), cfg.Mongo, logger)
	if err != nil {
		logger.Fatal("failed to connect to mongo", zap.Error(err))
	}

	completer := openaicompat.New(openaicompat.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.LLM.ChatTimeout,
	}, logger)

	gateway := llmgateway.New(completer, llmgateway.Config{
		DefaultChatTimeout:  cfg.LLM.ChatTimeout,
		SynthChatTimeout:    cfg.LLM.SynthTimeout,
		MaxRetries:          cfg.LLM.MaxRetries,
		MaxInflightPerModel: cfg.LLM.MaxInflightPerModel,
		EmbeddingCacheSize:  cfg.LLM.EmbeddingCacheSize,
	}, logger)

	vsClient := vectorsearch.New(db, gateway, redisCache, vectorsearch.Config{
		EmbeddingModel:      cfg.LLM.EmbeddingModel,
		EmbeddingDimensions: cfg.LLM.EmbeddingDimensions,
	}, logger)

	gsEmbedder := graphsearch.NewGatewayEmbedder(gateway, cfg.LLM.EmbeddingModel, cfg.LLM.EmbeddingDimensions)
	gsIndex := graphsearch.NewPostgresIndex(db)
	gsClient := graphsearch.New(gsIndex, gsEmbedder, logger)

	routingEngine := routing.New(gateway, vsClient, routing.Config{
		RouterModel: cfg.LLM.RouterModel,
		MaxRetries:  cfg.Routing.MaxRetries,
	}, logger)

	sandbox, err := claims.NewSandbox(db, claims.SandboxConfig{
		CommandTimeout: cfg.Claims.ExecuteTimeout,
		SampleRowLimit: cfg.Claims.SampleRowLimit,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize claims sandbox", zap.Error(err))
	}

	claimsOrchestrator := claims.New(gateway, sandbox, claims.Config{
		PlannerModel:   cfg.LLM.PlannerModel,
		SQLModel:       cfg.LLM.SQLModel,
		SynthModel:     cfg.LLM.SynthModel,
		MaxParallelSQL: cfg.Claims.MaxParallelSQL,
		SchemaPrompt:   cfg.Claims.SchemaPrompt,
		Timeouts: claims.PhaseTimeouts{
			Plan:      cfg.Claims.PlanTimeout,
			Generate:  cfg.Claims.GenerateTimeout,
			Execute:   cfg.Claims.ExecuteTimeout,
			Synthesize: cfg.Claims.SynthesizeTimeout,
		},
	}, logger)

	quotationClient := quotation.New(quotation.Config{
		BaseURL: cfg.Quote.BaseURL,
		APIKey:  cfg.Quote.APIKey,
		Timeout: cfg.Quote.Timeout,
	}, logger)

	checkoutProvider := payments.NewHTTPCheckoutProvider(payments.ProviderConfig{
		BaseURL: cfg.Payment.CheckoutBaseURL,
		APIKey:  cfg.Payment.CheckoutAPIKey,
		Timeout: cfg.Payment.ProviderTimeout,
	}, logger)
	issuanceClient := payments.NewHTTPIssuanceClient(payments.ProviderConfig{
		BaseURL: cfg.Payment.IssuanceBaseURL,
		APIKey:  cfg.Payment.IssuanceAPIKey,
		Timeout: cfg.Payment.ProviderTimeout,
	}, logger)

	paymentsOrchestrator := payments.New(db, checkoutProvider, issuanceClient, payments.Config{
		DefaultCurrency:    cfg.Payment.CurrencyDefault,
		CheckoutSessionTTL: cfg.Payment.CheckoutSessionTTL,
	}, logger)

	webhookReceiver := payments.NewReceiver(db, payments.ReceiverConfig{
		WebhookSecret: cfg.Payment.WebhookSecret,
		Environment:   payments.Environment(cfg.Environment),
	}, logger)

	memoryService := memory.New(mongoCollection, memory.Config{}, logger)

	hub := toolsurface.NewHub(toolsurface.HubConfig{SubscriberBufferSize: 32}, logger)
	surface := toolsurface.New(vsClient, gsClient, claimsOrchestrator, quotationClient, paymentsOrchestrator, memoryService, hub, logger)
	toolHandler := toolsurface.NewHandler(surface, hub, logger)

	claimsHandler := handlers.NewClaimsHandler(claimsOrchestrator, logger)
	memoryHandler := handlers.NewMemoryHandler(memoryService, logger)
	purchaseHandler := handlers.NewPurchaseHandler(paymentsOrchestrator, logger)
	searchHandler := handlers.NewSearchHandler(routingEngine, gsClient, logger)
	webhookHandler := handlers.NewWebhookHandler(webhookReceiver, logger)

	srv := NewServer(cfg, *configPath, logger, otelProviders,
		claimsHandler, memoryHandler, purchaseHandler, searchHandler, webhookHandler, toolHandler)

	srv.RegisterHealthCheck(handlers.NewDatabaseHealthCheck("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	}))
	srv.RegisterHealthCheck(handlers.NewRedisHealthCheck("redis", redisCache.Ping))
	srv.RegisterHealthCheck(handlers.NewDatabaseHealthCheck("mongo", func(ctx context.Context) error {
		return mongoClient.Ping(ctx, nil)
	}))

	if err := srv.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	srv.WaitForShutdown()

	_ = redisCache.Close()
	_ = mongoClient.Disconnect(context.Background())

	logger.Info("insurance-core stopped")
}

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

func printVersion() {
	fmt.Printf("insurance-core %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`insurance-core - TravelGuard conversational travel-insurance platform core

Usage:
  insurance-core <command> [options]

Commands:
  serve     Start the server
  migrate   Database migration commands
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Migration subcommands:
  migrate up        Apply all pending migrations
  migrate down      Rollback the last migration
  migrate status    Show migration status
  migrate version   Show current migration version
  migrate goto <v>  Migrate to a specific version
  migrate reset     Rollback all migrations

Examples:
  insurance-core serve
  insurance-core serve --config /etc/insurance-core/config.yaml
  insurance-core migrate up
  insurance-core migrate status
  insurance-core health --addr http://localhost:8080
  insurance-core version`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if zapConfig.Encoding != "console" {
		zapConfig.Encoding = "json"
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}

func openPostgres(cfg config.PostgresConfig, logger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	logger.Info("postgres connected")
	return db, nil
}

func runEmbeddedMigrations(cfg config.PostgresConfig, logger *zap.Logger) error {
	migrator, err := migration.NewMigrator(&migration.Config{
		DatabaseType: migration.DatabaseTypePostgres,
		DatabaseURL:  cfg.DSN,
	})
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Up(context.Background()); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	logger.Info("database migrations applied")
	return nil
}

func openMongoCollection(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*mongo.Collection, *mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("mongo connected", zap.String("database", cfg.Database))
	return client.Database(cfg.Database).Collection("memories"), client, nil
}
