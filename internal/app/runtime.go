package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/better-wallet/agent-custody/internal/chain"
	"github.com/better-wallet/agent-custody/internal/config"
	"github.com/better-wallet/agent-custody/internal/custody"
	"github.com/better-wallet/agent-custody/internal/eth"
	"github.com/better-wallet/agent-custody/internal/kms"
	"github.com/better-wallet/agent-custody/internal/logger"
	"github.com/better-wallet/agent-custody/internal/metrics"
	"github.com/better-wallet/agent-custody/internal/signing"
	"github.com/better-wallet/agent-custody/internal/storage"
	"github.com/better-wallet/agent-custody/internal/storage/sqlite"
	"github.com/better-wallet/agent-custody/internal/wallet"
)

// Stores groups the persistence ports used by the services
type Stores struct {
	Wallets     wallet.RecordStore
	AgentKeys   AgentKeyStore
	ExportAudit ExportAuditLog

	ping  func(ctx context.Context) error
	close func() error
}

// Ping checks the backing database
func (s *Stores) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the backing database
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStores connects the storage driver selected by cfg.
// SQLite applies its migrations on open; Postgres is migrated by cmd/migrate.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pg, err := storage.New(ctx, cfg.PostgresDSN, storage.PoolConfig{
			MaxConns:        cfg.PostgresMaxConns,
			MinConns:        cfg.PostgresMinConns,
			MaxConnLifetime: cfg.PostgresConnTTL,
		})
		if err != nil {
			return nil, err
		}
		return &Stores{
			Wallets:     storage.NewWalletRepository(pg),
			AgentKeys:   storage.NewAgentKeyRepository(pg),
			ExportAudit: storage.NewExportAuditRepository(pg),
			ping:        pg.Ping,
			close:       pg.Close,
		}, nil
	case config.StorageSQLite:
		lite, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStores(lite), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// NewSQLiteStores exposes one SQLite store through every port
func NewSQLiteStores(lite *sqlite.Store) *Stores {
	return &Stores{
		Wallets:     lite,
		AgentKeys:   lite,
		ExportAudit: lite,
		ping:        lite.Ping,
		close:       lite.Close,
	}
}

// KMSConfig maps process configuration to the master-secret provider config
func KMSConfig(cfg *config.Config) *kms.Config {
	return &kms.Config{
		Provider:        cfg.MasterSecretProvider,
		AWSKMSKeyID:     cfg.AWSKMSKeyID,
		AWSKMSRegion:    cfg.AWSRegion,
		VaultAddress:    cfg.VaultAddress,
		VaultToken:      cfg.VaultToken,
		VaultTransitKey: cfg.VaultTransitKey,
	}
}

// Runtime is the process-wide context built once at startup and passed to
// every component. It owns the long-lived clients and closes them on shutdown.
type Runtime struct {
	Config     *config.Config
	Metrics    *metrics.Metrics
	Stores     *Stores
	Custody    *custody.Service
	Dispatcher *chain.Dispatcher

	Wallets   *WalletService
	AgentKeys *AgentKeyService
	Exports   *ExportService

	evmClients []*eth.Client
	bundler    *eth.Bundler
}

// NewRuntime unwraps the master secret, dials the configured chain endpoints
// and assembles the services over stores.
func NewRuntime(ctx context.Context, cfg *config.Config, stores *Stores, m *metrics.Metrics) (*Runtime, error) {
	provider, err := kms.NewProvider(ctx, KMSConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create master secret provider: %w", err)
	}
	secret, err := kms.LoadMasterSecret(ctx, provider, cfg.MasterSecret)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		logger.Warn(ctx, "MASTER_SECRET not set; agent key operations will fail")
	}

	rt := &Runtime{
		Config:  cfg,
		Metrics: m,
		Stores:  stores,
		Custody: custody.NewService(secret, nil, m),
	}
	clear(secret)

	endpoints, err := cfg.EVMEndpoints()
	if err != nil {
		return nil, err
	}
	clients := make(map[int64]chain.EVMClient, len(endpoints))
	for id, url := range endpoints {
		client, err := eth.NewClient(url, id)
		if err != nil {
			rt.closeClients()
			return nil, fmt.Errorf("failed to create EVM client for chain %d: %w", id, err)
		}
		rt.evmClients = append(rt.evmClients, client)
		clients[id] = client
	}

	var bundler chain.UserOperationSender
	if cfg.BundlerURL != "" {
		b, err := eth.NewBundler(ctx, cfg.BundlerURL, common.HexToAddress(cfg.EntryPointAddress))
		if err != nil {
			rt.closeClients()
			return nil, fmt.Errorf("failed to create bundler client: %w", err)
		}
		rt.bundler = b
		bundler = b
	}

	provisioner := wallet.NewProvisioner(stores.Wallets, m)
	rt.Dispatcher = chain.NewDefaultDispatcher(provisioner, clients, bundler)
	rt.Wallets = NewWalletService(rt.Dispatcher, provisioner)
	rt.AgentKeys = NewAgentKeyService(stores.AgentKeys, rt.Custody, signing.NewService(m))

	var bundles BundleProvider
	if cfg.ExportConfigured() {
		bundles = NewHTTPBundleProvider(cfg.ExportBundleURL, nil)
	}
	rt.Exports = NewExportService(ExportConfig{
		Enabled:       cfg.ExportEnabled,
		Provider:      bundles,
		RatePerMinute: cfg.ExportRatePerMinute,
	}, stores.ExportAudit, m)

	logger.Info(ctx, "runtime ready",
		"storage", cfg.StorageDriver,
		"master_secret_provider", provider.Provider(),
		"evm_chains", len(clients),
		"bundler", cfg.BundlerURL != "",
		"export_enabled", rt.Exports.Enabled(),
	)
	return rt, nil
}

// Close releases chain clients and storage
func (rt *Runtime) Close() error {
	rt.closeClients()
	if rt.Stores == nil {
		return nil
	}
	return rt.Stores.Close()
}

func (rt *Runtime) closeClients() {
	for _, c := range rt.evmClients {
		c.Close()
	}
	if rt.bundler != nil {
		rt.bundler.Close()
	}
}
