package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "pigateway/pkg/domain-errors"
)

func validConfig() Config {
	return Config{
		Network:     NetworkTestnet,
		APIEndpoint: "https://api.minepi.com",
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		Environment: "testnet",
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid testnet config passes", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("unknown network mode rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Network = "devnet"
		err := cfg.Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConfig))
	})

	t.Run("non-zero mint value rejected outside production", func(t *testing.T) {
		cfg := validConfig()
		cfg.MintValue = 1
		err := cfg.Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConfig))
	})

	t.Run("non-zero mint value allowed in production", func(t *testing.T) {
		cfg := validConfig()
		cfg.Network = NetworkMainnet
		cfg.Environment = "production"
		cfg.MintValue = 1
		require.NoError(t, cfg.Validate())
	})

	t.Run("zero timeout rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Timeout = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("negative retries rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.MaxRetries = -1
		require.Error(t, cfg.Validate())
	})
}

func TestModePredicates(t *testing.T) {
	t.Run("mainnet production sandbox off is production", func(t *testing.T) {
		cfg := validConfig()
		cfg.Network = NetworkMainnet
		cfg.Environment = "production"
		assert.True(t, cfg.IsProduction())
		assert.False(t, cfg.IsTestnet())
	})

	t.Run("sandbox flag forces testnet even on mainnet", func(t *testing.T) {
		cfg := validConfig()
		cfg.Network = NetworkMainnet
		cfg.Environment = "production"
		cfg.SandboxMode = true
		assert.False(t, cfg.IsProduction())
		assert.True(t, cfg.IsTestnet())
	})
}

func TestAPIURL(t *testing.T) {
	cfg := validConfig()
	cfg.APIEndpoint = "https://api.minepi.com/"
	assert.Equal(t, "https://api.minepi.com/v2/payments/abc", cfg.APIURL("/v2/payments/abc"))
}

func TestRedactedHidesCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.APIKey = "secret"
	cfg.AppID = "app"
	cfg.WebhookSecret = "hook"

	view := cfg.ToRedacted()
	assert.True(t, view.APIKeyConfigured)
	assert.True(t, view.AppIDConfigured)
	assert.True(t, view.WebhookSecretSet)
	assert.Equal(t, NetworkTestnet, view.Network)
}

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "https://api.minepi.com", cfg.APIEndpoint)
}
