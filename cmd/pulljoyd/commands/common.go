package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/btcsuite/btclog/v2"
	"github.com/roasbeef/pulljoy/internal/build"
	"github.com/roasbeef/pulljoy/internal/config"
	"github.com/roasbeef/pulljoy/internal/db"
	"github.com/roasbeef/pulljoy/internal/dispatch"
	"github.com/roasbeef/pulljoy/internal/gate"
	"github.com/roasbeef/pulljoy/internal/githost"
	"github.com/roasbeef/pulljoy/internal/mcp"
	"github.com/roasbeef/pulljoy/internal/metrics"
	"github.com/roasbeef/pulljoy/internal/mirror"
	"github.com/roasbeef/pulljoy/internal/notify"
	"github.com/roasbeef/pulljoy/internal/rpc"
	"github.com/roasbeef/pulljoy/internal/server"
	"github.com/roasbeef/pulljoy/internal/store"
)

// dbSubsystem tags the slog logger handed to the database layer.
const dbSubsystem = "DBSQ"

// loadConfig reads the configuration selected by the global flags.
func loadConfig() (*config.Config, error) {
	return config.Load(config.LoadOptions{
		ConfigPath: configPath,
		EnvFile:    envFile,
	})
}

// setupLogging builds the log manager and hands every package its
// subsystem logger. Console output goes to console.
func setupLogging(cfg *config.Config,
	console io.Writer) (*build.LogManager, error) {

	logMgr, err := build.NewLogManager(cfg.LogConfig(), console)
	if err != nil {
		return nil, fmt.Errorf("unable to set up logging: %w", err)
	}

	for subsystem, useLogger := range map[string]func(btclog.Logger){
		dispatch.Subsystem: dispatch.UseLogger,
		gate.Subsystem:     gate.UseLogger,
		githost.Subsystem:  githost.UseLogger,
		mcp.Subsystem:      mcp.UseLogger,
		metrics.Subsystem:  metrics.UseLogger,
		mirror.Subsystem:   mirror.UseLogger,
		notify.Subsystem:   notify.UseLogger,
		rpc.Subsystem:      rpc.UseLogger,
		server.Subsystem:   server.UseLogger,
		store.Subsystem:    store.UseLogger,
	} {
		useLogger(logMgr.Logger(subsystem))
	}

	return logMgr, nil
}

// stateStore is what the daemon needs from a state store backend.
type stateStore interface {
	store.ListingStore
	store.StateCounter
}

// openStore opens the configured state store backend. The returned
// function releases it.
func openStore(ctx context.Context, cfg *config.Config,
	dbLog *slog.Logger) (stateStore, func() error, error) {

	storeCfg := cfg.StateStoreConfig

	switch cfg.StateStoreType {
	case config.StoreMemory:
		return store.NewMemoryStore(), func() error { return nil }, nil

	case config.StoreSqlite:
		backend, err := db.NewSqliteStore(&db.SqliteConfig{
			DatabaseFileName:    storeCfg.SqlitePath,
			BackupBeforeMigrate: true,
		}, dbLog)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite: %w",
				err)
		}

		return store.NewSQLStore(backend, dbLog), backend.Close, nil

	case config.StorePostgres:
		backend, err := db.NewPostgresStore(&db.PostgresConfig{
			DSN: storeCfg.PostgresDSN,
		}, dbLog)
		if err != nil {
			return nil, nil, err
		}

		return store.NewSQLStore(backend, dbLog), backend.Close, nil

	case config.StoreRedis:
		rdb, err := store.DialRedis(
			ctx, storeCfg.RedisAddr, storeCfg.RedisPassword,
			storeCfg.RedisDB,
		)
		if err != nil {
			return nil, nil, err
		}

		redisStore := store.NewRedisStore(rdb, storeCfg.RedisKeyPrefix)

		return redisStore, rdb.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown state store type %q",
			cfg.StateStoreType)
	}
}

// newGitHubClient builds the API client from the configuration.
func newGitHubClient(cfg *config.Config) (*githost.GitHubClient, error) {
	var opts []githost.GitHubOption
	if cfg.GitHubAPIURL != "" {
		opts = append(opts, githost.WithBaseURL(cfg.GitHubAPIURL))
	}

	return githost.NewGitHubClient(cfg.GitHubAccessToken, opts...)
}

// outputJSON prints v as indented JSON.
func outputJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
