// Package config loads factorygrid's tool configuration.
//
// Sources, highest priority first:
//  1. FACTORYGRID_* environment variables (a .env file in the working
//     directory is loaded first)
//  2. the config file (factorygrid.yaml in ., ~/.config/factorygrid or
//     /etc/factorygrid, or an explicit path)
//  3. defaults
//
// Nested keys map to environment variables with "." replaced by "_", so
// cache.redis.addr is FACTORYGRID_CACHE_REDIS_ADDR.
package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/matzehuels/factorygrid/pkg/errors"
)

const (
	appName   = "factorygrid"
	envPrefix = "FACTORYGRID"
)

// Cache backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// Config is the complete tool configuration.
type Config struct {
	Paths   PathsConfig   `mapstructure:"paths"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Server  ServerConfig  `mapstructure:"server"`
	Solver  SolverConfig  `mapstructure:"solver"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// PathsConfig locates on-disk state.
type PathsConfig struct {
	CacheDir string `mapstructure:"cache_dir" validate:"required"`
	RunsDir  string `mapstructure:"runs_dir" validate:"required"`
	History  string `mapstructure:"history" validate:"required"`
}

// CacheConfig selects the solver hint cache.
type CacheConfig struct {
	Backend string      `mapstructure:"backend" validate:"oneof=file redis none"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0,lte=15"`
	Prefix   string `mapstructure:"prefix"`

	// Enabled is derived from cache.backend.
	Enabled bool `mapstructure:"-"`
}

// ArchiveConfig configures the optional MongoDB solution archive.
type ArchiveConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URI        string        `mapstructure:"uri" validate:"required_if=Enabled true"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required,hostname_port"`
	MaxTimeLimit time.Duration `mapstructure:"max_time_limit" validate:"gt=0"`
	MaxUnits     int           `mapstructure:"max_units" validate:"gt=0"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
}

// SolverConfig holds defaults for plans that do not set them.
type SolverConfig struct {
	TimeLimit time.Duration `mapstructure:"time_limit" validate:"gte=0"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// keys lists every configuration key so that environment variables bind
// even when the config file does not mention them.
var keys = []string{
	"paths.cache_dir", "paths.runs_dir", "paths.history",
	"cache.backend",
	"cache.redis.addr", "cache.redis.password", "cache.redis.db", "cache.redis.prefix",
	"archive.enabled", "archive.uri", "archive.database", "archive.collection", "archive.timeout",
	"server.addr", "server.max_time_limit", "server.max_units", "server.read_timeout", "server.write_timeout",
	"solver.time_limit",
	"logging.level",
}

// Load reads the configuration. An empty path searches the default
// locations; a missing config file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(appName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, appName))
		}
		v.AddConfigPath(filepath.Join("/etc", appName))
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "bind %s", k)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "decode config")
	}
	SetDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	var cfg Config
	SetDefaults(&cfg)
	return &cfg
}

// Validate checks the configuration's struct tags.
func Validate(cfg *Config) error {
	cfg.Cache.Redis.Enabled = cfg.Cache.Backend == CacheRedis
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, e.Namespace()+" failed "+e.Tag())
			}
			return errors.New(errors.ErrCodeInvalidConfig, "%s", strings.Join(msgs, "; "))
		}
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "validate config")
	}
	return nil
}
