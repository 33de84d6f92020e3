package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
)

// Storage drivers
const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Config holds process configuration read from the environment
type Config struct {
	// Server
	Port            int           `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"INFO"`

	// Storage
	StorageDriver    string        `env:"STORAGE_DRIVER" envDefault:"postgres"`
	PostgresDSN      string        `env:"POSTGRES_DSN"`
	PostgresMaxConns int32         `env:"POSTGRES_MAX_CONNS" envDefault:"25"`
	PostgresMinConns int32         `env:"POSTGRES_MIN_CONNS" envDefault:"5"`
	PostgresConnTTL  time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME" envDefault:"1h"`
	SQLitePath       string        `env:"SQLITE_PATH" envDefault:"custody.db"`

	// Master secret. Hex for the local provider, a wrapped blob otherwise.
	MasterSecretProvider string `env:"MASTER_SECRET_PROVIDER" envDefault:"local"`
	MasterSecret         string `env:"MASTER_SECRET"`
	AWSKMSKeyID          string `env:"AWS_KMS_KEY_ID"`
	AWSRegion            string `env:"AWS_REGION"`
	VaultAddress         string `env:"VAULT_ADDR"`
	VaultToken           string `env:"VAULT_TOKEN"`
	VaultTransitKey      string `env:"VAULT_TRANSIT_KEY" envDefault:"agent-custody"`

	// EVM. EVM_RPC_URLS is a comma-separated list of chainId=url pairs.
	EVMRPCURLs        map[string]string `env:"EVM_RPC_URLS" envKeyValSeparator:"="`
	BundlerURL        string            `env:"BUNDLER_URL"`
	EntryPointAddress string            `env:"ENTRY_POINT_ADDRESS" envDefault:"0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"`

	// Mnemonic export
	ExportEnabled       bool   `env:"EXPORT_ENABLED" envDefault:"false"`
	ExportBundleURL     string `env:"EXPORT_BUNDLE_URL"`
	ExportRatePerMinute int    `env:"EXPORT_RATE_PER_MINUTE" envDefault:"3"`

	// HTTP rate limiting
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// Tracing
	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom loads configuration from the given variables instead of the process environment
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got: %d", c.Port)
	}

	switch c.StorageDriver {
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORAGE_DRIVER is 'postgres'")
		}
		if c.PostgresMaxConns <= 0 || c.PostgresMinConns < 0 {
			return fmt.Errorf("POSTGRES_MAX_CONNS must be positive and POSTGRES_MIN_CONNS not negative")
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORAGE_DRIVER is 'sqlite'")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be 'postgres' or 'sqlite', got: %s", c.StorageDriver)
	}

	switch c.MasterSecretProvider {
	case "local":
	case "aws-kms":
		if c.MasterSecret != "" && c.AWSKMSKeyID == "" {
			return fmt.Errorf("AWS_KMS_KEY_ID is required when MASTER_SECRET_PROVIDER is 'aws-kms'")
		}
	case "vault":
		if c.MasterSecret != "" && (c.VaultAddress == "" || c.VaultToken == "") {
			return fmt.Errorf("VAULT_ADDR and VAULT_TOKEN are required when MASTER_SECRET_PROVIDER is 'vault'")
		}
	default:
		return fmt.Errorf("MASTER_SECRET_PROVIDER must be 'local', 'aws-kms' or 'vault', got: %s", c.MasterSecretProvider)
	}

	if _, err := c.EVMEndpoints(); err != nil {
		return err
	}
	if !common.IsHexAddress(c.EntryPointAddress) {
		return fmt.Errorf("ENTRY_POINT_ADDRESS is not a valid address: %s", c.EntryPointAddress)
	}

	if c.ExportRatePerMinute <= 0 {
		return fmt.Errorf("EXPORT_RATE_PER_MINUTE must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	return nil
}

// EVMEndpoints returns EVM_RPC_URLS keyed by numeric chain id
func (c *Config) EVMEndpoints() (map[int64]string, error) {
	out := make(map[int64]string, len(c.EVMRPCURLs))
	for key, url := range c.EVMRPCURLs {
		chainID, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil || chainID <= 0 {
			return nil, fmt.Errorf("EVM_RPC_URLS has invalid chain id %q", key)
		}
		if strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("EVM_RPC_URLS has empty URL for chain %d", chainID)
		}
		out[chainID] = strings.TrimSpace(url)
	}
	return out, nil
}

// ExportConfigured reports whether mnemonic export may be served
func (c *Config) ExportConfigured() bool {
	return c.ExportEnabled && c.ExportBundleURL != ""
}
