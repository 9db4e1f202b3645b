package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bookshelf/internal/bot"
	"bookshelf/internal/config"
	"bookshelf/internal/logging"
)

// App represents the application
type App struct {
	config     *config.Config
	logger     *zap.Logger
	components *Components
	registry   *prometheus.Registry
	bot        *bot.Bot
	server     *http.Server
}

// New creates and initializes a new application instance
func New() (*App, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, err
	}
	if envErr != nil {
		logger.Debug("No .env file found, using system environment variables")
	}
	logger.Info("Starting bookshelf sync daemon", zap.String("user_id", cfg.UserID))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	components, err := Open(cfg, registry, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:     cfg,
		logger:     logger,
		components: components,
		registry:   registry,
	}

	if err := a.initBot(); err != nil {
		_ = components.Close()
		return nil, err
	}
	a.initHTTPServer()
	return a, nil
}

// initBot initializes the Telegram front when a token is configured
func (a *App) initBot() error {
	if a.config.TelegramToken == "" {
		a.logger.Info("TELEGRAM_BOT_TOKEN not set, Telegram front disabled")
		return nil
	}

	c := a.components
	deps := bot.Deps{
		Library:     c.Library,
		Queues:      c.Local,
		Syncer:      c.Watcher,
		Collections: c.Collections,
		UserID:      a.config.UserID,
	}
	if c.Catalog != nil {
		deps.Searcher = c.Catalog
	}
	telegramBot, err := bot.NewBot(a.config.TelegramToken, deps, a.config.AllowedUserIDs, a.logger.Named("bot"))
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	a.logger.Info("Bot created", zap.Int64s("allowed_users", a.config.AllowedUserIDs))

	c.Watcher.OnChange(telegramBot.Listener())
	a.bot = telegramBot
	return nil
}

// initHTTPServer sets up the health and metrics endpoints
func (a *App) initHTTPServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Run starts the application and blocks until a shutdown signal arrives
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serving, workers sync.WaitGroup

	serving.Add(1)
	go func() {
		defer serving.Done()
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	watcher := a.components.Watcher
	userID := a.config.UserID

	workers.Add(1)
	go func() {
		defer workers.Done()
		// Startup counts as the sign-in trigger: reconcile once, then follow
		// remote changes.
		if _, err := watcher.SyncNow(ctx, userID); err != nil && ctx.Err() == nil {
			a.logger.Error("Initial sync failed", zap.Error(err))
		}
		if err := watcher.Run(ctx, userID); err != nil {
			a.logger.Error("Change watcher stopped", zap.Error(err))
		}
	}()

	if a.bot != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := a.bot.Start(ctx); err != nil {
				a.logger.Error("Bot stopped", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	a.logger.Info("Shutting down...")
	workers.Wait()
	err := a.Shutdown()
	serving.Wait()
	return err
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// Let a running pass finish before the stores close
	if err := a.components.Engine.Wait(shutdownCtx); err != nil {
		a.logger.Warn("Sync still running at shutdown", zap.Error(err))
	}

	if err := a.components.Close(); err != nil {
		a.logger.Error("Error closing stores", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	_ = a.logger.Sync()
	return nil
}
