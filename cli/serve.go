package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gamification-engine/database"
	"gamification-engine/handlers"
	"gamification-engine/services"
	"gamification-engine/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", true, "run auto-migration before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, logger := rt.cfg, rt.logger

	if cfg.Server.ServiceToken == "" {
		return errors.New("GAME_SERVICE_TOKEN is not set, service cannot authenticate Gateway")
	}

	if autoMigrate {
		if err := database.Migrate(rt.db); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := services.NewCatalogService(rt.db, cfg.Gamification.CatalogCacheSize, logger)
	if err != nil {
		return err
	}
	if cfg.Storage.Enabled() {
		store, err := utils.NewR2Store(ctx, cfg.Storage, logger)
		if err != nil {
			return err
		}
		catalog.Icons = store
	} else {
		logger.Warn("R2 storage not configured, badge icon uploads disabled")
	}
	if !catalog.EnsureCatalog(ctx) {
		logger.Warn("catalog bootstrap skipped, will retry on schedule")
	}

	if cfg.Gamification.CatalogRefreshInterval > 0 {
		sched, err := catalog.StartRefreshScheduler(cfg.Gamification.CatalogRefreshInterval)
		if err != nil {
			return err
		}
		defer func() { _ = sched.Shutdown() }()
	}

	loc, err := cfg.Gamification.Location()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engine := services.NewEngine(rt.db, catalog, logger,
		services.WithLocation(loc),
		services.WithFeedSize(cfg.Gamification.FeedSize),
		services.WithMetrics(services.NewMetrics(reg)),
	)

	app := handlers.NewApp(handlers.Deps{
		Engine:         engine,
		Catalog:        catalog,
		Logger:         logger,
		Gatherer:       reg,
		ServiceToken:   cfg.Server.ServiceToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()
	logger.Info("server running",
		zap.String("port", cfg.Server.Port),
		zap.String("timezone", loc.String()),
		zap.Strings("origins", cfg.Server.AllowedOrigins),
	)

	<-ctx.Done()
	logger.Info("shutting down server")
	return app.ShutdownWithTimeout(10 * time.Second)
}
