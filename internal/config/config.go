package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Log     LogConfig     `mapstructure:"log"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	// Host is the bind address; empty listens on every interface.
	Host    string    `mapstructure:"host"`
	Port    string    `mapstructure:"port"`
	BaseURL string    `mapstructure:"base_url"`
	TLS     TLSConfig `mapstructure:"tls"`
	// NotifyPath is where the persistence side posts change notifications.
	NotifyPath string `mapstructure:"notify_path"`
	// NotifyToken, when set, must be sent as a bearer token with every notification.
	NotifyToken string `mapstructure:"notify_token"`
}

// TLSConfig holds TLS-specific configuration.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

// DBConfig holds database-specific configuration.
type DBConfig struct {
	DSN            string `mapstructure:"dsn"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // e.g., "debug", "info", "warn", "error"
	Format string `mapstructure:"format"` // e.g., "json", "console"
}

// CacheConfig holds configuration of the published content cache.
type CacheConfig struct {
	LocalDB LocalDBConfig `mapstructure:"local_db"`
	// RehydrateFromLocal loads a non-empty local kit db at startup instead of
	// reading every kit from the database.
	RehydrateFromLocal bool `mapstructure:"rehydrate_from_local"`
}

// LocalDBConfig controls the on-disk kit copy used for cold starts.
type LocalDBConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	FilePath string `mapstructure:"file_path"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.notify_path", "/cache/notify")
	v.SetDefault("server.notify_token", "")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("db.dsn", "cache:cache@tcp(localhost:3306)/content?parseTime=true")
	v.SetDefault("db.migrations_path", "migrations")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("cache.local_db.enabled", true)
	v.SetDefault("cache.local_db.file_path", "content-cache.db")
	v.SetDefault("cache.rehydrate_from_local", true)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Set up viper to read from config file
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/go-content-cache/")
	v.AddConfigPath("$HOME/.go-content-cache")

	// Attempt to read the config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
		// Config file not found; proceed with defaults and env vars
	}

	// Set up viper to read from environment variables
	v.SetEnvPrefix("CONTENTCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal the config into the Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
