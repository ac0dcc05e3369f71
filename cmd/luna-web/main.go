package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/luna/internal/api"
	"github.com/me/luna/internal/config"
	"github.com/me/luna/internal/controller"
	"github.com/me/luna/internal/logging"
	"github.com/me/luna/internal/store"
	"github.com/me/luna/internal/ui"
)

const (
	sweepInterval = time.Minute
	idleTimeout   = 30 * time.Minute
)

func main() {
	configFile := flag.String("config", "", "Config file (default ~/.luna/config.yaml)")
	addr := flag.String("addr", "", "Listen address (default from config, :3000)")
	server := flag.String("server", "", "Luna API base URL")
	dbPath := flag.String("db", "", "Session database path (default ~/.luna/luna.db)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	secure := flag.Bool("secure-cookies", false, "Mark session cookies Secure (serve over HTTPS)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.WebAddr = *addr
	}
	if *server != "" {
		cfg.ServerURL = *server
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *secure {
		cfg.SecureCookies = true
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	path, err := cfg.ResolveDBPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve database path: %v\n", err)
		os.Exit(1)
	}
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", path)

	factory := func(profile string) *controller.Controller {
		client := api.NewClient(cfg.ServerURL, cfg.RequestTimeout, logger)
		return controller.New(client, controller.Config{
			PollInterval:       cfg.PollInterval,
			SessionTTL:         cfg.SessionTTL,
			Latitude:           cfg.Latitude,
			Longitude:          cfg.Longitude,
			SyncFriendRemovals: cfg.SyncFriendRemovals,
			Store:              st,
			Profile:            profile,
		}, logger)
	}
	sessions := ui.NewSessionManager(st, factory)
	defer sessions.Close()

	httpServer := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           ui.New(sessions, logger, ui.Config{Secure: cfg.SecureCookies}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepLoop(ctx, sessions, logger)

	go func() {
		logger.Info("web server starting", "addr", cfg.WebAddr, "api", cfg.ServerURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// sweepLoop stops idle browser controllers and purges expired sessions.
func sweepLoop(ctx context.Context, sessions *ui.SessionManager, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stopped := sessions.Sweep(idleTimeout)
			purged, err := sessions.CleanupExpiredSessions(ctx)
			if err != nil {
				logger.Warn("purge expired sessions failed", "error", err)
				continue
			}
			if stopped > 0 || purged > 0 {
				logger.Debug("session sweep", "stopped", stopped, "purged", purged)
			}
		}
	}
}
