package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rpattn/contentql/internal/db"
)

// Config is the full service configuration.
type Config struct {
	Database db.Config
	Breaker  db.BreakerConfig
	HTTP     HTTPConfig
	Search   SearchConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Log      LogConfig
	// File is the config file that was read, empty when only defaults and env applied.
	File string
}

type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type SearchConfig struct {
	QueryTimeout   time.Duration
	MaxExportRows  int
	MaxCompatPages int
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type NATSConfig struct {
	Enabled bool
	URL     string
	Subject string
}

type LogConfig struct {
	Level       string
	Development bool
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Breaker: db.BreakerConfig{
			Enabled:          false,
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			ReadyToTripRatio: 0.6,
			MinRequests:      5,
		},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    60 * time.Second,
		},
		Search: SearchConfig{
			QueryTimeout:   10 * time.Second,
			MaxExportRows:  10000,
			MaxCompatPages: 10,
		},
		Redis: RedisConfig{Addr: "localhost:6379", TTL: 30 * time.Second},
		NATS:  NATSConfig{URL: "nats://localhost:4222", Subject: "search.executed"},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads config.yaml from configPath (optional) and CONTENTQL_* environment
// variables on top of Default. CONTENTQL_DATABASE_HOST overrides database.host.
func Load(configPath string) (Config, error) {
	def := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("CONTENTQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.driver", def.Database.Driver)
	v.SetDefault("database.host", def.Database.Host)
	v.SetDefault("database.port", def.Database.Port)
	v.SetDefault("database.user", def.Database.User)
	v.SetDefault("database.password", def.Database.Password)
	v.SetDefault("database.dbname", def.Database.DBName)
	v.SetDefault("database.sslmode", def.Database.SSLMode)
	v.SetDefault("database.sqlite_path", def.Database.SQLitePath)
	v.SetDefault("database.max_conns", def.Database.MaxConns)
	v.SetDefault("database.min_conns", def.Database.MinConns)

	v.SetDefault("breaker.enabled", def.Breaker.Enabled)
	v.SetDefault("breaker.max_requests", def.Breaker.MaxRequests)
	v.SetDefault("breaker.interval", def.Breaker.Interval)
	v.SetDefault("breaker.timeout", def.Breaker.Timeout)
	v.SetDefault("breaker.ready_to_trip_ratio", def.Breaker.ReadyToTripRatio)
	v.SetDefault("breaker.min_requests", def.Breaker.MinRequests)

	v.SetDefault("http.addr", def.HTTP.Addr)
	v.SetDefault("http.allowed_origins", def.HTTP.AllowedOrigins)
	v.SetDefault("http.read_timeout", def.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", def.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", def.HTTP.IdleTimeout)

	v.SetDefault("search.query_timeout", def.Search.QueryTimeout)
	v.SetDefault("search.max_export_rows", def.Search.MaxExportRows)
	v.SetDefault("search.max_compat_pages", def.Search.MaxCompatPages)

	v.SetDefault("redis.enabled", def.Redis.Enabled)
	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.password", def.Redis.Password)
	v.SetDefault("redis.db", def.Redis.DB)
	v.SetDefault("redis.ttl", def.Redis.TTL)

	v.SetDefault("nats.enabled", def.NATS.Enabled)
	v.SetDefault("nats.url", def.NATS.URL)
	v.SetDefault("nats.subject", def.NATS.Subject)

	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.development", def.Log.Development)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Config{
		Database: db.Config{
			Driver:     v.GetString("database.driver"),
			Host:       v.GetString("database.host"),
			Port:       v.GetInt("database.port"),
			User:       v.GetString("database.user"),
			Password:   v.GetString("database.password"),
			DBName:     v.GetString("database.dbname"),
			SSLMode:    v.GetString("database.sslmode"),
			SQLitePath: v.GetString("database.sqlite_path"),
			MaxConns:   v.GetInt32("database.max_conns"),
			MinConns:   v.GetInt32("database.min_conns"),
		},
		Breaker: db.BreakerConfig{
			Enabled:          v.GetBool("breaker.enabled"),
			MaxRequests:      v.GetUint32("breaker.max_requests"),
			Interval:         v.GetDuration("breaker.interval"),
			Timeout:          v.GetDuration("breaker.timeout"),
			ReadyToTripRatio: v.GetFloat64("breaker.ready_to_trip_ratio"),
			MinRequests:      v.GetUint32("breaker.min_requests"),
		},
		HTTP: HTTPConfig{
			Addr:           v.GetString("http.addr"),
			AllowedOrigins: v.GetStringSlice("http.allowed_origins"),
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
		},
		Search: SearchConfig{
			QueryTimeout:   v.GetDuration("search.query_timeout"),
			MaxExportRows:  v.GetInt("search.max_export_rows"),
			MaxCompatPages: v.GetInt("search.max_compat_pages"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			TTL:      v.GetDuration("redis.ttl"),
		},
		NATS: NATSConfig{
			Enabled: v.GetBool("nats.enabled"),
			URL:     v.GetString("nats.url"),
			Subject: v.GetString("nats.subject"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
		File: v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Search.MaxCompatPages < 1 {
		return fmt.Errorf("search.max_compat_pages must be positive")
	}
	if c.Search.MaxExportRows < 1 {
		return fmt.Errorf("search.max_export_rows must be positive")
	}
	return nil
}
