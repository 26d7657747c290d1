// Package config loads and validates the API configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the TSOM_ prefix (e.g. TSOM_DATABASE_HOST
// overrides database.host in the YAML). Secrets may reference other variables
// with ${VAR} and are expanded after loading.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConnectionTokenKeySize is the size in bytes of the connection token key.
const ConnectionTokenKeySize = 32

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Releases  ReleasesConfig  `mapstructure:"releases"`
	Players   PlayersConfig   `mapstructure:"players"`
	Game      GameConfig      `mapstructure:"game"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// ReleasesConfig describes where game and updater builds are published.
type ReleasesConfig struct {
	Owner             string `mapstructure:"owner"`
	GameRepository    string `mapstructure:"game_repository"`
	UpdaterRepository string `mapstructure:"updater_repository"`
	// UpdaterFilename is the suffix of updater platform keys: the updater
	// for platform X is published as X_{UpdaterFilename}.
	UpdaterFilename string `mapstructure:"updater_filename"`
	APIURL          string `mapstructure:"api_url"`
	// GitHubPAT is optional. Without it the release host rate limits
	// anonymous requests aggressively.
	GitHubPAT           string        `mapstructure:"github_pat"` // #nosec G117 -- configuration field, not a hardcoded credential
	CacheLifespan       time.Duration `mapstructure:"cache_lifespan"`
	ChecksumConcurrency int           `mapstructure:"checksum_concurrency"`
}

// PlayersConfig holds the nickname policy.
type PlayersConfig struct {
	NicknameMaxLength int  `mapstructure:"nickname_max_length"`
	AllowNonASCII     bool `mapstructure:"allow_non_ascii"`
}

// GameConfig holds what goes into connection tokens.
type GameConfig struct {
	APIURL             string        `mapstructure:"api_url"`
	APIToken           string        `mapstructure:"api_token"`
	APITokenDuration   time.Duration `mapstructure:"api_token_duration"`
	ServerAddress      string        `mapstructure:"server_address"`
	ServerPort         int           `mapstructure:"server_port"`
	ConnectionTokenKey string        `mapstructure:"connection_token_key"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
	// Account creation gets its own, much stricter budget.
	PlayerCreationPerSecond int `mapstructure:"player_creation_per_second"`
	PlayerCreationBurst     int `mapstructure:"player_creation_burst"`
	// RedisAddr switches limit accounting to Redis so several API instances
	// share one budget. Empty means in-memory.
	RedisAddr string `mapstructure:"redis_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// bindEnvVars explicitly binds every config key to its TSOM_ environment
// variable. AutomaticEnv alone only resolves keys viper already knows about,
// so keys without a default would never be read from the environment.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",

		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		"releases.owner",
		"releases.game_repository",
		"releases.updater_repository",
		"releases.updater_filename",
		"releases.api_url",
		"releases.github_pat",
		"releases.cache_lifespan",
		"releases.checksum_concurrency",

		"players.nickname_max_length",
		"players.allow_non_ascii",

		"game.api_url",
		"game.api_token",
		"game.api_token_duration",
		"game.server_address",
		"game.server_port",
		"game.connection_token_key",

		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.player_creation_per_second",
		"security.rate_limiting.player_creation_burst",
		"security.rate_limiting.redis_addr",

		"logging.level",
		"logging.format",

		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/tsom-api")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("TSOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Releases.GitHubPAT = expandEnv(cfg.Releases.GitHubPAT)
	cfg.Game.APIToken = expandEnv(cfg.Game.APIToken)
	cfg.Game.ConnectionTokenKey = expandEnv(cfg.Game.ConnectionTokenKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 14770)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "tsom_db")
	v.SetDefault("database.user", "api")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	v.SetDefault("releases.owner", "DigitalpulseSoftware")
	v.SetDefault("releases.game_repository", "ThisSpaceOfMine")
	v.SetDefault("releases.updater_repository", "ThisUpdaterOfMine")
	v.SetDefault("releases.updater_filename", "this_updater_of_mine")
	v.SetDefault("releases.api_url", "https://api.github.com")
	v.SetDefault("releases.github_pat", "")
	v.SetDefault("releases.cache_lifespan", "5m")
	v.SetDefault("releases.checksum_concurrency", 8)

	v.SetDefault("players.nickname_max_length", 16)
	v.SetDefault("players.allow_non_ascii", false)

	v.SetDefault("game.api_url", "http://localhost:14770")
	v.SetDefault("game.api_token", "")
	v.SetDefault("game.api_token_duration", "15m")
	v.SetDefault("game.server_address", "localhost")
	v.SetDefault("game.server_port", 29536)

	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 600)
	v.SetDefault("security.rate_limiting.burst", 100)
	v.SetDefault("security.rate_limiting.player_creation_per_second", 10)
	v.SetDefault("security.rate_limiting.player_creation_burst", 1)
	v.SetDefault("security.rate_limiting.redis_addr", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
}

// expandEnv expands ${VAR} and $VAR references in a configuration value.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// MaxNicknameLength is the width of the players.nickname column.
const MaxNicknameLength = 64

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Releases.Owner == "" {
		return fmt.Errorf("releases.owner is required")
	}
	if c.Releases.GameRepository == "" || c.Releases.UpdaterRepository == "" {
		return fmt.Errorf("releases.game_repository and releases.updater_repository are required")
	}
	if c.Releases.UpdaterFilename == "" {
		return fmt.Errorf("releases.updater_filename is required")
	}
	if c.Releases.CacheLifespan <= 0 {
		return fmt.Errorf("releases.cache_lifespan must be positive, got %s", c.Releases.CacheLifespan)
	}

	if c.Players.NicknameMaxLength < 1 || c.Players.NicknameMaxLength > MaxNicknameLength {
		return fmt.Errorf("players.nickname_max_length must be between 1 and %d, got %d", MaxNicknameLength, c.Players.NicknameMaxLength)
	}

	if c.Game.ServerPort < 1 || c.Game.ServerPort > 65535 {
		return fmt.Errorf("invalid game server port: %d", c.Game.ServerPort)
	}
	if c.Game.APITokenDuration <= 0 {
		return fmt.Errorf("game.api_token_duration must be positive, got %s", c.Game.APITokenDuration)
	}
	if _, err := c.Game.Key(); err != nil {
		return err
	}

	if c.Security.RateLimiting.Enabled {
		rl := c.Security.RateLimiting
		if rl.RequestsPerMinute < 1 || rl.Burst < 1 {
			return fmt.Errorf("security.rate_limiting.requests_per_minute and burst must be positive")
		}
		if rl.PlayerCreationPerSecond < 1 || rl.PlayerCreationBurst < 1 {
			return fmt.Errorf("security.rate_limiting.player_creation_per_second and player_creation_burst must be positive")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// Key decodes the base64 connection token key.
func (c *GameConfig) Key() ([]byte, error) {
	if c.ConnectionTokenKey == "" {
		return nil, fmt.Errorf("game.connection_token_key is required")
	}
	key, err := base64.StdEncoding.DecodeString(c.ConnectionTokenKey)
	if err != nil {
		return nil, fmt.Errorf("game.connection_token_key is not valid base64: %w", err)
	}
	if len(key) != ConnectionTokenKeySize {
		return nil, fmt.Errorf("game.connection_token_key must decode to %d bytes, got %d", ConnectionTokenKeySize, len(key))
	}
	return key, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
