// Package server wires the store, the provider and the services into the
// read (HTTP) and sync processes.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	v1 "github.com/gre/ledger-api-countervalue/internal/adapters/handler/http/v1"
	cmcadapter "github.com/gre/ledger-api-countervalue/internal/adapters/marketcap"
	"github.com/gre/ledger-api-countervalue/internal/adapters/providers"
	mongostore "github.com/gre/ledger-api-countervalue/internal/adapters/store/mongo"
	"github.com/gre/ledger-api-countervalue/internal/config"
	"github.com/gre/ledger-api-countervalue/internal/core/port"
	"github.com/gre/ledger-api-countervalue/internal/core/service/health"
	"github.com/gre/ledger-api-countervalue/internal/core/service/live"
	"github.com/gre/ledger-api-countervalue/internal/core/service/marketcap"
	"github.com/gre/ledger-api-countervalue/internal/core/service/prefetch"
	"github.com/gre/ledger-api-countervalue/internal/core/service/rates"
	"github.com/gre/ledger-api-countervalue/internal/core/service/refresh"
)

// Version is set at build time.
var Version = "dev"

type App struct {
	cfg      *config.Config
	router   *http.ServeMux
	store    port.Store
	provider port.Provider

	refreshService   port.RefreshService
	ratesService     port.RatesService
	marketcapService port.MarketCapService
	healthService    port.HealthService

	livePipeline *live.Pipeline
	prefetchJob  *prefetch.Job

	ctx    context.Context
	cancel context.CancelFunc
}

func NewApp(cfg *config.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{cfg: cfg, ctx: ctx, cancel: cancel}
}

// Initialize connects the store, checks the provider and builds the
// service graph.
func (app *App) Initialize() error {
	slog.Info("Initializing application...", "provider", app.cfg.Provider, "database", app.cfg.Database)

	connectCtx, cancel := context.WithTimeout(app.ctx, 15*time.Second)
	defer cancel()
	store, err := mongostore.New(connectCtx, app.cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("failed to connect store: %w", err)
	}
	app.store = store

	provider, err := providers.New(app.cfg)
	if err != nil {
		return err
	}
	if err := provider.Init(app.ctx); err != nil {
		return fmt.Errorf("provider init failed: %w", err)
	}
	app.provider = provider
	slog.Info("Provider ready", "provider", provider.Name())

	app.refreshService = refresh.NewService(provider, store, app.cfg.MinimalDays)
	app.marketcapService = marketcap.NewService(cmcadapter.NewCoinMarketCap(app.cfg.CMCAPIKey), store)
	app.ratesService = rates.NewService(store, app.refreshService, app.marketcapService, app.cfg.BlacklistExchanges)
	app.healthService = health.NewService(store)

	app.livePipeline = live.NewPipeline(provider, store, app.refreshService, app.cfg.DebugLiveRates)
	app.prefetchJob = prefetch.NewJob(store, app.refreshService)

	app.router = http.NewServeMux()
	v1.SetRoutes(app.router,
		v1.NewRatesHandler(app.ratesService),
		v1.NewExchangesHandler(app.ratesService),
		v1.NewHealthHandler(app.healthService, Version))

	slog.Info("Application initialized successfully")
	return nil
}

// RunServer serves the read API until ctx is cancelled. With
// HACK_SYNC_IN_SERVER the sync jobs are co-located in this process.
func (app *App) RunServer(ctx context.Context) error {
	if app.cfg.HackSyncInServer {
		slog.Warn("HACK_SYNC_IN_SERVER is set, co-locating sync in the read process")
		go app.runSyncJobs(ctx)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: v1.CORS(app.router),
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", app.cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	return nil
}

// RunSync runs the live pipeline supervisor and the prefetch job until
// ctx is cancelled.
func (app *App) RunSync(ctx context.Context) error {
	app.runSyncJobs(ctx)
	return nil
}

func (app *App) runSyncJobs(ctx context.Context) {
	if app.cfg.DisablePrefetch {
		slog.Info("Prefetch disabled (DISABLE_PREFETCH)")
	} else {
		go app.prefetchJob.Start(ctx)
	}
	app.livePipeline.Supervise(ctx)
}

// Store exposes the connected store (batch jobs).
func (app *App) Store() port.Store { return app.store }

// MinimalDays exposes the configured stats threshold (batch jobs).
func (app *App) MinimalDays() int { return app.cfg.MinimalDays }

// Shutdown releases the store connection.
func (app *App) Shutdown() error {
	slog.Info("Shutting down application...")
	app.cancel()

	if app.store != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.store.Close(closeCtx); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	}

	slog.Info("Application shutdown complete")
	return nil
}
