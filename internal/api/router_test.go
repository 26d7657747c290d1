package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalpulse/tsom-api/internal/config"
	"github.com/digitalpulse/tsom-api/internal/connection"
	"github.com/digitalpulse/tsom-api/internal/db/models"
	"github.com/digitalpulse/tsom-api/internal/middleware"
	"github.com/digitalpulse/tsom-api/internal/players"
	"github.com/digitalpulse/tsom-api/internal/releases"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type stubPlayers struct{}

func (stubPlayers) Create(context.Context, string) (*players.Created, error) {
	return &players.Created{UUID: uuid.New(), Token: "dG9rZW4="}, nil
}

func (stubPlayers) Authenticate(context.Context, string) (*models.Player, error) {
	return &models.Player{ID: 1, UUID: uuid.New(), Nickname: "Lynix"}, nil
}

func (stubPlayers) Lookup(context.Context, string) (*models.Player, error) {
	return &models.Player{ID: 1, UUID: uuid.New(), Nickname: "Lynix"}, nil
}

type stubReleases struct{ warm bool }

func (stubReleases) LatestGameRelease(context.Context) (*releases.GameRelease, error) {
	return nil, releases.ErrNoReleaseFound
}

func (stubReleases) LatestUpdaterRelease(context.Context) (releases.Assets, error) {
	return nil, releases.ErrNoReleaseFound
}

func (s stubReleases) Warm() bool { return s.warm }

type stubIssuer struct{}

func (stubIssuer) Generate(context.Context, connection.PrivateToken) (*connection.Token, error) {
	return &connection.Token{TokenVersion: 1}, nil
}

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

func newHealthDB(t *testing.T, pingOK bool) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	if pingOK {
		mock.ExpectPing()
	} else {
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	}
	return db
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// ---------------------------------------------------------------------------
// health / ready / version
// ---------------------------------------------------------------------------

func TestHealthCheckHandler(t *testing.T) {
	tests := []struct {
		name   string
		pingOK bool
		want   int
		status string
	}{
		{"healthy", true, http.StatusOK, "healthy"},
		{"unhealthy", false, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", healthCheckHandler(newHealthDB(t, tt.pingOK)))

			w := get(r, "/health")

			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.status, decode(t, w)["status"])
		})
	}
}

func TestReadinessHandler_ReportsReleaseCache(t *testing.T) {
	tests := []struct {
		name string
		warm bool
		want string
	}{
		{"cold cache still ready", false, "cold"},
		{"warm cache", true, "warm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/ready", readinessHandler(newHealthDB(t, true), stubReleases{warm: tt.warm}))

			w := get(r, "/ready")

			require.Equal(t, http.StatusOK, w.Code)
			body := decode(t, w)
			assert.Equal(t, true, body["ready"])
			assert.Equal(t, map[string]any{"database": "healthy", "release_cache": tt.want}, body["checks"])
		})
	}
}

func TestReadinessHandler_DatabaseDown(t *testing.T) {
	r := gin.New()
	r.GET("/ready", readinessHandler(newHealthDB(t, false), stubReleases{warm: true}))

	w := get(r, "/ready")

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, decode(t, w)["ready"])
}

func TestVersionHandler(t *testing.T) {
	r := gin.New()
	r.GET("/version", versionHandler("1.4.2"))

	w := get(r, "/version")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"version": "1.4.2", "api_version": "v1"}, decode(t, w))
}

// ---------------------------------------------------------------------------
// LoggerMiddleware
// ---------------------------------------------------------------------------

func TestLoggerMiddleware_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.GET("/game_version", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/game_version?platform=amiga", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "http request", record["msg"])
	assert.Equal(t, "GET", record["method"])
	assert.Equal(t, "/game_version", record["path"])
	assert.Equal(t, "platform=amiga", record["query"])
	assert.EqualValues(t, http.StatusNotFound, record["status"])
	assert.Equal(t, "req-42", record["request_id"])
}

// ---------------------------------------------------------------------------
// NewRouter
// ---------------------------------------------------------------------------

func testConfig(rateLimiting bool) *config.Config {
	cfg := &config.Config{}
	cfg.Releases.UpdaterFilename = "this_updater_of_mine"
	cfg.Security.RateLimiting = config.RateLimitingConfig{
		Enabled:                 rateLimiting,
		RequestsPerMinute:       600,
		Burst:                   100,
		PlayerCreationPerSecond: 1,
		PlayerCreationBurst:     1,
	}
	return cfg
}

func newTestRouter(t *testing.T, rateLimiting bool) *gin.Engine {
	t.Helper()
	router, bg := NewRouter(testConfig(rateLimiting), Dependencies{
		DB:       okPinger{},
		Players:  stubPlayers{},
		Releases: stubReleases{},
		Issuer:   stubIssuer{},
		Version:  "test",
	})
	t.Cleanup(bg.Shutdown)
	return router
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:40000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewRouter_Routes(t *testing.T) {
	r := newTestRouter(t, false)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/ready", "", http.StatusOK},
		{http.MethodGet, "/version", "", http.StatusOK},
		{http.MethodPost, "/v1/players", `{"nickname":"Lynix"}`, http.StatusOK},
		{http.MethodPost, "/v1/player/auth", `{"token":"dG9rZW4="}`, http.StatusOK},
		{http.MethodPost, "/v1/game/connect", `{"token":"dG9rZW4="}`, http.StatusOK},
		{http.MethodGet, "/game_version?platform=linux_x86_64", "", http.StatusInternalServerError},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var w *httptest.ResponseRecorder
			if tt.method == http.MethodPost {
				w = postJSON(r, tt.path, tt.body)
			} else {
				w = get(r, tt.path)
			}
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestNewRouter_PlayerCreationIsRateLimited(t *testing.T) {
	r := newTestRouter(t, true)

	first := postJSON(r, "/v1/players", `{"nickname":"Lynix"}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := postJSON(r, "/v1/players", `{"nickname":"Lynix"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// the creation budget does not apply to other routes
	auth := postJSON(r, "/v1/player/auth", `{"token":"dG9rZW4="}`)
	assert.Equal(t, http.StatusOK, auth.Code)
}

func TestNewRouter_RateLimitingDisabled(t *testing.T) {
	r := newTestRouter(t, false)

	for range 3 {
		w := postJSON(r, "/v1/players", `{"nickname":"Lynix"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}
