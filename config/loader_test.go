package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "text-embedding-3-large", cfg.LLM.EmbeddingModel)
	assert.Equal(t, 3072, cfg.LLM.EmbeddingDimensions)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, 10, cfg.LLM.MaxInflightPerModel)

	assert.Equal(t, 3, cfg.Routing.MaxRetries)
	assert.Equal(t, 10, cfg.Claims.MaxTopics)

	assert.Equal(t, "SGD", cfg.Payment.CurrencyDefault)
	assert.Equal(t, 24*time.Hour, cfg.Payment.CheckoutSessionTTL)

	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, EnvDevelopment, cfg.Environment)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
environment: production

server:
  http_port: 8888
  read_timeout: 60s

llm:
  router_model: "gpt-4o-mini"
  embedding_dimensions: 2000

claims:
  max_topics: 5

payment:
  currency_default: "USD"

log:
  level: "debug"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 2000, cfg.LLM.EmbeddingDimensions)
	assert.Equal(t, 5, cfg.Claims.MaxTopics)
	assert.Equal(t, "USD", cfg.Payment.CurrencyDefault)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	envVars := map[string]string{
		"TRAVELGUARD_ENVIRONMENT":             "staging",
		"TRAVELGUARD_SERVER_HTTP_PORT":        "7777",
		"TRAVELGUARD_LLM_ROUTER_MODEL":        "gpt-4o-mini",
		"TRAVELGUARD_CLAIMS_MAX_TOPICS":       "4",
		"TRAVELGUARD_PAYMENT_CURRENCY_DEFAULT": "EUR",
		"TRAVELGUARD_LOG_LEVEL":               "warn",
	}
	for k, v := range envVars {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range envVars {
			os.Unsetenv(k)
		}
	}()

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.Environment)
	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.RouterModel)
	assert.Equal(t, 4, cfg.Claims.MaxTopics)
	assert.Equal(t, "EUR", cfg.Payment.CurrencyDefault)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 9000\n"), 0644))

	os.Setenv("TRAVELGUARD_SERVER_HTTP_PORT", "9500")
	defer os.Unsetenv("TRAVELGUARD_SERVER_HTTP_PORT")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 9500, cfg.Server.HTTPPort)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Server.HTTPPort = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Claims.MaxTopics = 11
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Environment = "nonsense"
	require.Error(t, cfg.Validate())
}
