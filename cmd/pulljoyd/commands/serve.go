package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/roasbeef/pulljoy/internal/build"
	"github.com/roasbeef/pulljoy/internal/dispatch"
	"github.com/roasbeef/pulljoy/internal/gate"
	"github.com/roasbeef/pulljoy/internal/metrics"
	"github.com/roasbeef/pulljoy/internal/mirror"
	"github.com/roasbeef/pulljoy/internal/notify"
	"github.com/roasbeef/pulljoy/internal/rpc"
	"github.com/roasbeef/pulljoy/internal/server"
	"github.com/roasbeef/pulljoy/internal/store"
	"github.com/spf13/cobra"
)

// daemonSubsystem tags the serve command's own log lines.
const daemonSubsystem = "PJOY"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive webhooks and gate CI",
	Long: `Start the webhook server. Events for the same pull request are
processed one at a time in the order they arrive. SIGINT or SIGTERM drains
in-flight events and exits.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logMgr, err := setupLogging(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer logMgr.Close()

	logger := logMgr.Logger(daemonSubsystem)

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	logger.InfoS(ctx, "Starting pulljoyd", "version", build.Version(),
		"state_store", cfg.StateStoreType)

	states, closeStore, err := openStore(
		ctx, cfg, logMgr.SlogLogger(dbSubsystem),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.WarnS(ctx, "Unable to close state store", err)
		}
	}()

	host, err := newGitHubClient(cfg)
	if err != nil {
		return err
	}

	botLogin := cfg.BotUsername
	if botLogin == "" {
		botLogin, err = host.AuthenticatedLogin(ctx)
		if err != nil {
			return fmt.Errorf("unable to determine bot login: %w",
				err)
		}
	}

	gitMirror := mirror.NewGitMirror(mirror.Config{
		HostURL:      cfg.MirrorHostURL(),
		AuthStrategy: mirror.AuthStrategy(cfg.GitAuthStrategy),
		Token:        cfg.GitAuthToken,
		GitPath:      cfg.GitPath,
	})

	gateMetrics := metrics.New()
	gateMetrics.TrackStates(states)

	hub := notify.NewHub()
	hub.Start()
	defer hub.Stop()

	handler, err := gate.NewHandler(gate.Config{
		Store:     states,
		Host:      host,
		Mirror:    gitMirror,
		BotLogin:  botLogin,
		Notifiers: []gate.Notifier{gateMetrics, hub},
	})
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(handler, dispatch.Config{
		Partitions:  cfg.Dispatcher.Partitions,
		MailboxSize: cfg.Dispatcher.MailboxSize,
	})
	dispatcher.Start()

	srvCfg := server.Config{
		Addr:          cfg.ListenAddr,
		WebhookSecret: cfg.GitHubWebhookSecret,
		Events:        dispatcher,
		Observer:      gateMetrics,
		Metrics:       gateMetrics.Handler(),
		Transitions:   hub,
	}
	if cfg.GitHubWebhookSecret == "" {
		logger.WarnS(ctx, "Webhook signatures are not verified, "+
			"github_webhook_secret is empty", nil)
	}

	if cfg.DeliveryDedupe.Enabled {
		storeCfg := cfg.StateStoreConfig
		rdb, err := store.DialRedis(
			ctx, storeCfg.RedisAddr, storeCfg.RedisPassword,
			storeCfg.RedisDB,
		)
		if err != nil {
			dispatcher.Stop()
			return err
		}
		defer rdb.Close()

		srvCfg.Deliveries = server.NewRedisDeliveryLog(
			rdb, "", cfg.DeliveryDedupe.TTL,
		)
	}

	httpServer := server.New(srvCfg)
	if err := httpServer.Start(); err != nil {
		dispatcher.Stop()
		return err
	}

	var grpcServer *rpc.Server
	if cfg.GRPCListenAddr != "" {
		grpcCfg := rpc.DefaultServerConfig()
		grpcCfg.ListenAddr = cfg.GRPCListenAddr
		grpcCfg.Probe = func(ctx context.Context) error {
			_, err := states.CountByState(ctx)
			return err
		}

		grpcServer = rpc.NewServer(grpcCfg)
		if err := grpcServer.Start(); err != nil {
			shutdownHTTP(logger, httpServer, cfg.ShutdownWait)
			dispatcher.Stop()
			return err
		}
	}

	<-ctx.Done()
	logger.InfoS(context.Background(), "Shutting down")

	// Stop intake first, then drain the queued events.
	shutdownHTTP(logger, httpServer, cfg.ShutdownWait)
	if grpcServer != nil {
		if err := grpcServer.Stop(); err != nil {
			logger.WarnS(context.Background(),
				"gRPC server shutdown failed", err)
		}
	}
	dispatcher.Stop()

	logger.InfoS(context.Background(), "Shutdown complete")

	return nil
}

// shutdownHTTP stops the HTTP server, waiting at most wait for in-flight
// requests.
func shutdownHTTP(logger btclog.Logger, srv *server.Server,
	wait time.Duration) {

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WarnS(ctx, "HTTP server shutdown failed", err)
	}
}
