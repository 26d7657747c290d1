// Package main is the entry point of the game API server. It dispatches three
// subcommands (serve, migrate and version) with a plain switch on os.Args.
// serve applies pending migrations before accepting traffic.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/digitalpulse/tsom-api/internal/api"
	"github.com/digitalpulse/tsom-api/internal/config"
	"github.com/digitalpulse/tsom-api/internal/connection"
	"github.com/digitalpulse/tsom-api/internal/db"
	"github.com/digitalpulse/tsom-api/internal/db/repositories"
	"github.com/digitalpulse/tsom-api/internal/players"
	"github.com/digitalpulse/tsom-api/internal/releases"
	"github.com/digitalpulse/tsom-api/internal/safego"
	"github.com/digitalpulse/tsom-api/internal/telemetry"
)

const version = "0.1.0"

// warmupTimeout bounds the release lookups made right after startup.
const warmupTimeout = 2 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("tsom-api v%s\n", version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port,
		"user", cfg.Database.User, "dbname", cfg.Database.Name, "sslmode", cfg.Database.SSLMode)

	database, err := db.Connect(ctx, cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	telemetry.StartDBStatsCollector(ctx, database)

	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if v, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", v, "dirty", dirty)
	}

	playerService := players.NewService(
		repositories.NewPlayerRepository(sqlx.NewDb(database, "postgres")),
		players.NicknamePolicy{
			MaxLength:     cfg.Players.NicknameMaxLength,
			AllowNonASCII: cfg.Players.AllowNonASCII,
		},
	)

	releaseCache, err := newReleaseCache(cfg)
	if err != nil {
		return err
	}
	defer releaseCache.Close()

	issuer, err := newIssuer(cfg)
	if err != nil {
		return err
	}

	var redisClient redis.UniversalClient
	if addr := cfg.Security.RateLimiting.RedisAddr; cfg.Security.RateLimiting.Enabled && addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, rate limited requests will be allowed until it recovers", "addr", addr, "error", err)
		}
	}

	if cfg.Telemetry.Metrics.Enabled {
		startMetricsServer(cfg.Telemetry.Metrics.PrometheusPort)
	}

	safego.Go("warm-release-cache", func() {
		warmCtx, cancel := context.WithTimeout(ctx, warmupTimeout)
		defer cancel()
		if _, err := releaseCache.LatestUpdaterRelease(warmCtx); err != nil {
			slog.Warn("initial updater release lookup failed", "error", err)
		}
		if _, err := releaseCache.LatestGameRelease(warmCtx); err != nil {
			slog.Warn("initial game release lookup failed", "error", err)
		}
	})

	router, bgServices := api.NewRouter(cfg, api.Dependencies{
		DB:       database,
		Players:  playerService,
		Releases: releaseCache,
		Issuer:   issuer,
		Redis:    redisClient,
		Version:  version,
	})
	defer bgServices.Shutdown()

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", server.Addr, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func newReleaseCache(cfg *config.Config) (*releases.Cache, error) {
	rc := cfg.Releases
	fetcher := releases.NewFetcher(
		releases.NewRepo(rc.Owner, rc.GameRepository),
		releases.NewRepo(rc.Owner, rc.UpdaterRepository),
		releases.NewGitHubClient(context.Background(), rc.APIURL, rc.GitHubPAT),
		releases.NewHTTPChecksumSource(nil),
		releases.WithChecksumConcurrency(rc.ChecksumConcurrency),
	)

	cache, err := releases.NewCache(fetcher, rc.CacheLifespan)
	if err != nil {
		return nil, fmt.Errorf("failed to create release cache: %w", err)
	}
	return cache, nil
}

func newIssuer(cfg *config.Config) (*connection.Issuer, error) {
	key, err := cfg.Game.Key()
	if err != nil {
		return nil, err
	}

	issuer, err := connection.NewIssuer(key, cfg.Game.APITokenDuration, connection.ServerAddress{
		Address: cfg.Game.ServerAddress,
		Port:    uint16(cfg.Game.ServerPort), // #nosec G115 -- range checked by config.Validate
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection token issuer: %w", err)
	}
	return issuer, nil
}

// startMetricsServer serves /metrics on its own port so the scrape path stays
// off the public listener and its rate limits.
func startMetricsServer(port int) {
	addr := fmt.Sprintf(":%d", port)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		slog.Info("starting Prometheus metrics server", "addr", addr)
		srv := &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

func runMigrations(cfg *config.Config, direction string) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	database, err := db.Connect(context.Background(), cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", v, "dirty", dirty)
	return nil
}
