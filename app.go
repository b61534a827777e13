package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"claudeview/internal/ingest"
	"claudeview/internal/logs"
	"claudeview/internal/mcpserver"
	"claudeview/internal/notify"
	"claudeview/internal/server"
	"claudeview/internal/settings"
	"claudeview/internal/types"
	"claudeview/internal/watcher"
)

// App holds the state of a running server.
type App struct {
	cfg      *settings.Config
	logger   *zap.Logger
	registry prometheus.Registerer

	conversations *logs.Source
	metrics       *ingest.Metrics
	views         *ingest.Registry
	trigger       *ingest.Trigger
	store         *notify.Store
	inbox         *notify.Inbox
	hub           *server.Hub
	server        *server.Server
	watcher       *watcher.FileWatcher
	mcpServer     *mcpserver.Service
}

// NewApp creates an App. Nothing is opened until startup.
func NewApp(cfg *settings.Config, logger *zap.Logger, reg prometheus.Registerer) *App {
	return &App{cfg: cfg, logger: logger, registry: reg}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, log watcher, hook receiver and notification inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
				cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app := NewApp(cfg, logger, prometheus.DefaultRegisterer)
			if err := app.startup(); err != nil {
				app.shutdown()
				return err
			}
			defer app.shutdown()
			return app.run(ctx)
		},
	}
	cmd.Flags().String("listen", "", "HTTP listen address (overrides config)")
	return cmd
}

// =============================================================================
// STARTUP - Single Initialization Chain
// =============================================================================

// startup wires every component. A failure leaves the already-opened parts
// for shutdown to release.
func (a *App) startup() error {
	// Step 1: Conversation source over the projects directory
	mode, err := logs.ParseGroupMode(a.cfg.GroupBy)
	if err != nil {
		return err
	}
	a.conversations = logs.NewSource(a.cfg.ProjectsDir, mode, a.cfg.PageSize, a.logger.Named("logs"))

	// Step 2: Viewer sessions, each with its own reconciliation store
	a.metrics = ingest.NewMetrics(a.registry)
	a.views = ingest.NewRegistry(a.conversations, a.cfg.ViewTTL, a.logger.Named("views"), a.metrics)
	a.trigger = ingest.NewTrigger()

	// Step 3: Notification inbox, pushed to clients through the hub
	a.store, err = notify.OpenStore(a.cfg.DatabasePath())
	if err != nil {
		return err
	}
	a.hub = server.NewHub(a.logger.Named("ws"))
	a.inbox = notify.NewInbox(a.store, a.hub.Broadcast, a.logger.Named("inbox"))

	// Step 4: HTTP API
	a.server = server.New(server.Config{
		Version:       version,
		HookRateLimit: a.cfg.HookRateLimit,
		HookBurst:     a.cfg.HookBurst,
	}, a.conversations, a.views, a.inbox, a.hub, a.registry, a.logger.Named("http"))

	// Step 5: File watcher
	a.watcher, err = watcher.NewFileWatcher(a.cfg.ProjectsDir, a.cfg.Debounce, a.conversationsChanged, a.logger.Named("watcher"))
	if err != nil {
		return err
	}
	if err := a.watcher.Start(); err != nil {
		return err
	}

	// Step 6: MCP server
	if a.cfg.MCPEnabled {
		a.mcpServer = mcpserver.NewService(a.cfg.MCPPort, version, a.inbox, a.logger.Named("mcp"))
	}

	a.logger.Info("claudeview initialized",
		zap.String("version", version),
		zap.String("projects_dir", a.cfg.ProjectsDir),
		zap.String("database", a.cfg.DatabasePath()),
	)
	return nil
}

// conversationsChanged runs on every debounced log change. Remote clients
// refetch on the broadcast; server-side views refresh through the trigger.
func (a *App) conversationsChanged() {
	a.trigger.Fire()
	a.server.ConversationsChanged()
}

// run serves until ctx is done or a component fails.
func (a *App) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Run(ctx, a.cfg.Listen)
	})
	g.Go(func() error {
		return a.views.Run(ctx, a.trigger.C(), func(added int) {
			a.logger.Debug("views refreshed", zap.Int("added", added))
			// views fetched after the first broadcast may have been stale
			a.hub.Broadcast(types.EventEnvelope{EventType: types.EventConversationsChanged})
		})
	})
	if a.mcpServer != nil {
		g.Go(func() error {
			return a.mcpServer.Run(ctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// shutdown releases everything startup opened.
func (a *App) shutdown() {
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.logger.Warn("close watcher", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close notification store", zap.Error(err))
		}
	}
	a.logger.Info("claudeview stopped")
}

// loadSettings reads the config named by --config and builds the logger.
func loadSettings(cmd *cobra.Command) (*settings.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := settings.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}
