package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	dErrors "pigateway/pkg/domain-errors"
)

// Network selects which Pi chain the gateway talks to.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// Config captures everything the gateway reads from the environment.
// Validate must pass before the process serves traffic.
type Config struct {
	Addr string

	Network     Network
	APIKey      string
	AppID       string
	APIEndpoint string
	SandboxMode bool
	Timeout     time.Duration
	MaxRetries  int
	VerifySSL   bool

	// MintValue must stay 0 outside production; it gates real-value mint
	// operations and is the hard safety check in Validate.
	MintValue   int
	Environment string

	WebhookSecret   string
	JWTSigningKey   string
	NFTCollectionID string

	DatabaseURL  string
	Redis        RedisConfig
	KafkaBrokers []string
}

// RedisConfig tunes the optional Redis-backed session store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
// Defaults match the upstream developer-portal recommendations.
func FromEnv() Config {
	cfg := Config{
		Addr:            envOr("PI_GATEWAY_ADDR", ":8080"),
		Network:         Network(envOr("PI_NETWORK_MODE", "mainnet")),
		APIKey:          os.Getenv("PI_NETWORK_API_KEY"),
		AppID:           os.Getenv("PI_NETWORK_APP_ID"),
		APIEndpoint:     envOr("PI_NETWORK_API_ENDPOINT", "https://api.minepi.com"),
		SandboxMode:     os.Getenv("PI_SANDBOX_MODE") == "true",
		Timeout:         time.Duration(envInt("PI_NETWORK_TIMEOUT", 30)) * time.Second,
		MaxRetries:      envInt("PI_NETWORK_MAX_RETRIES", 3),
		VerifySSL:       strings.ToLower(os.Getenv("PI_VERIFY_SSL")) != "false",
		MintValue:       envInt("NFT_MINT_VALUE", 0),
		Environment:     envOr("APP_ENVIRONMENT", "testnet"),
		WebhookSecret:   os.Getenv("PI_NETWORK_WEBHOOK_SECRET"),
		JWTSigningKey:   os.Getenv("JWT_SIGNING_KEY"),
		NFTCollectionID: os.Getenv("NFT_COLLECTION_ID"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if cfg.JWTSigningKey == "" {
		// Development default - must be overridden in production
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	return cfg
}

// Validate enforces the startup invariants. The mint-value gate prevents
// real-value mint operations from running against a testnet/development
// deployment by accident.
func (c Config) Validate() error {
	if c.Network != NetworkMainnet && c.Network != NetworkTestnet {
		return dErrors.Newf(dErrors.CodeConfig, "invalid network mode %q: must be mainnet or testnet", c.Network)
	}
	if c.Environment == "testnet" || c.Environment == "development" {
		if c.MintValue != 0 {
			return dErrors.Newf(dErrors.CodeConfig,
				"safety violation: NFT_MINT_VALUE must be 0 for %s environments, got %d", c.Environment, c.MintValue)
		}
	}
	if c.Timeout <= 0 {
		return dErrors.Newf(dErrors.CodeConfig, "invalid timeout %s: must be positive", c.Timeout)
	}
	if c.MaxRetries < 0 {
		return dErrors.Newf(dErrors.CodeConfig, "invalid max retries %d: must be non-negative", c.MaxRetries)
	}
	return nil
}

// IsProduction reports whether real-value operations are in effect.
func (c Config) IsProduction() bool {
	return c.Network == NetworkMainnet && c.Environment == "production" && !c.SandboxMode
}

// IsTestnet reports whether any of the test-mode switches are on.
func (c Config) IsTestnet() bool {
	return c.Network == NetworkTestnet || c.SandboxMode ||
		c.Environment == "testnet" || c.Environment == "development"
}

// APIURL joins the endpoint base with a path segment.
func (c Config) APIURL(endpoint string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.APIEndpoint, "/"), strings.TrimLeft(endpoint, "/"))
}

// Redacted is the log-safe view: credentials are reduced to configured flags.
type Redacted struct {
	Network          Network       `json:"network"`
	APIEndpoint      string        `json:"api_endpoint"`
	SandboxMode      bool          `json:"sandbox_mode"`
	Timeout          time.Duration `json:"timeout"`
	MaxRetries       int           `json:"max_retries"`
	VerifySSL        bool          `json:"verify_ssl"`
	Environment      string        `json:"environment"`
	IsProduction     bool          `json:"is_production"`
	IsTestnet        bool          `json:"is_testnet"`
	APIKeyConfigured bool          `json:"api_key_configured"`
	AppIDConfigured  bool          `json:"app_id_configured"`
	WebhookSecretSet bool          `json:"webhook_secret_configured"`
}

// ToRedacted produces a representation safe for logging and status endpoints.
func (c Config) ToRedacted() Redacted {
	return Redacted{
		Network:          c.Network,
		APIEndpoint:      c.APIEndpoint,
		SandboxMode:      c.SandboxMode,
		Timeout:          c.Timeout,
		MaxRetries:       c.MaxRetries,
		VerifySSL:        c.VerifySSL,
		Environment:      c.Environment,
		IsProduction:     c.IsProduction(),
		IsTestnet:        c.IsTestnet(),
		APIKeyConfigured: c.APIKey != "",
		AppIDConfigured:  c.AppID != "",
		WebhookSecretSet: c.WebhookSecret != "",
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
