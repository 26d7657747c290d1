// Package api wires the HTTP routes of the game API.
//
// Every route shares the same middleware chain: panic recovery, request ids,
// Prometheus instrumentation, access logging and, when enabled, a per-IP
// rate limit. Account creation carries a second, much stricter limit of its
// own.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/digitalpulse/tsom-api/internal/api/game"
	"github.com/digitalpulse/tsom-api/internal/api/player"
	"github.com/digitalpulse/tsom-api/internal/config"
	"github.com/digitalpulse/tsom-api/internal/middleware"
)

// limiterCleanupInterval is how often in-memory limiters drop idle clients.
const limiterCleanupInterval = 5 * time.Minute

// Pinger reports database reachability; *sqlx.DB and *sql.DB implement it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PlayerService is implemented by *players.Service.
type PlayerService interface {
	player.Service
	game.PlayerLookup
}

// ReleaseCache is implemented by *releases.Cache.
type ReleaseCache interface {
	game.ReleaseSource
	// Warm reports whether every release kind has been resolved once.
	Warm() bool
}

// Dependencies are the services behind the routes.
type Dependencies struct {
	DB       Pinger
	Players  PlayerService
	Releases ReleaseCache
	Issuer   game.TokenIssuer
	// Redis, when set, holds rate limit state shared between instances.
	Redis redis.UniversalClient
	// Version is reported by GET /version.
	Version string
}

// BackgroundServices holds goroutines started by NewRouter.
type BackgroundServices struct {
	limiters []*middleware.MemoryLimiter
}

// Shutdown stops all background goroutines.
func (bg *BackgroundServices) Shutdown() {
	for _, l := range bg.limiters {
		l.Stop()
	}
	slog.Info("router background services stopped")
}

// NewRouter builds the gin engine serving the API.
func NewRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, *BackgroundServices) {
	bg := &BackgroundServices{}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())

	rl := cfg.Security.RateLimiting
	if rl.Enabled {
		global := middleware.PerMinute(rl.RequestsPerMinute, rl.Burst)
		router.Use(middleware.RateLimitMiddleware(bg.newLimiter(deps.Redis, "tsom:global", global), global))
	}

	router.GET("/health", healthCheckHandler(deps.DB))
	router.GET("/ready", readinessHandler(deps.DB, deps.Releases))
	router.GET("/version", versionHandler(deps.Version))

	playerHandler := player.NewHandler(deps.Players)
	gameHandler := game.NewHandler(deps.Players, deps.Issuer, deps.Releases, game.Config{
		APIURL:          cfg.Game.APIURL,
		APIToken:        cfg.Game.APIToken,
		UpdaterFilename: cfg.Releases.UpdaterFilename,
	})

	createPlayer := []gin.HandlerFunc{playerHandler.Create}
	if rl.Enabled {
		creation := middleware.PerSecond(rl.PlayerCreationPerSecond, rl.PlayerCreationBurst)
		limit := middleware.RateLimitMiddleware(bg.newLimiter(deps.Redis, "tsom:players", creation), creation)
		createPlayer = append([]gin.HandlerFunc{limit}, createPlayer...)
	}

	router.GET("/game_version", gameHandler.Version)

	v1 := router.Group("/v1")
	{
		v1.POST("/players", createPlayer...)
		v1.POST("/player/auth", playerHandler.Authenticate)
		v1.POST("/game/connect", gameHandler.Connect)
	}

	return router, bg
}

func (bg *BackgroundServices) newLimiter(client redis.UniversalClient, prefix string, config middleware.RateLimitConfig) middleware.Limiter {
	if client != nil {
		return middleware.NewRedisLimiter(client, prefix, config)
	}
	l := middleware.NewMemoryLimiter(config, limiterCleanupInterval)
	bg.limiters = append(bg.limiters, l)
	return l
}

// healthCheckHandler is the liveness probe. It only checks the database.
func healthCheckHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			slog.Warn("health check: database ping failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler gates on the database. Whether releases have been
// resolved yet is reported but does not gate, since a cold cache fills on
// the first /game_version request.
func readinessHandler(db Pinger, releases ReleaseCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if releases.Warm() {
			checks["release_cache"] = "warm"
		} else {
			checks["release_cache"] = "cold"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware writes one structured record per request through the
// default slog logger, whose format is chosen by telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}

		slog.LogAttrs(
			c.Request.Context(),
			level,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}
