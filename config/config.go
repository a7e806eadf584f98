// Package config holds the data service configuration, its YAML loading and
// its validation rules.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Supported connection drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Environment variables that override connection settings after the file is read.
const (
	EnvDBHost     = "DATASERVICE_DB_HOST"
	EnvDBPort     = "DATASERVICE_DB_PORT"
	EnvDBUser     = "DATASERVICE_DB_USER"
	EnvDBPassword = "DATASERVICE_DB_PASSWORD"
	EnvDBName     = "DATASERVICE_DB_NAME"
)

// Config is the full data service configuration.
type Config struct {
	Connection Connection `yaml:"connection"`
	Cache      Cache      `yaml:"cache"`
	Retry      Retry      `yaml:"retry"`
	Service    Service    `yaml:"service"`
	Log        Log        `yaml:"log"`
}

// Connection describes the database endpoint and the pool in front of it.
type Connection struct {
	Driver         string            `yaml:"driver"`
	Host           string            `yaml:"host"`
	Port           int               `yaml:"port"`
	Database       string            `yaml:"database"`
	Username       string            `yaml:"username"`
	Password       string            `yaml:"password"`
	Timeout        time.Duration     `yaml:"timeout"`
	SSLEnabled     bool              `yaml:"ssl_enabled"`
	PoolSize       int               `yaml:"pool_size"`
	AcquireTimeout time.Duration     `yaml:"acquire_timeout"`
	Metadata       map[string]string `yaml:"metadata"`
	Tags           []string          `yaml:"tags"`
}

// Cache configures the result cache.
type Cache struct {
	Backend            string        `yaml:"backend"`
	TTL                time.Duration `yaml:"ttl"`
	MaxSize            int           `yaml:"max_size"`
	Policy             string        `yaml:"policy"`
	NumShards          int           `yaml:"num_shards"`
	EvictionPercentage int           `yaml:"eviction_percentage"`
}

// Retry configures the retry executor.
type Retry struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	Exponential  bool          `yaml:"exponential"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// Service configures the data service operations.
type Service struct {
	BatchSize      int    `yaml:"batch_size"`
	SearchTable    string `yaml:"search_table"`
	DefaultLimit   int    `yaml:"default_limit"`
	CollapseMisses bool   `yaml:"collapse_misses"`
}

// Log configures logger construction.
type Log struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Default returns a configuration usable against a local PostgreSQL.
func Default() Config {
	return Config{
		Connection: Connection{
			Driver:         DriverPostgres,
			Host:           "localhost",
			Port:           5432,
			Database:       "app",
			Username:       "app",
			Timeout:        30 * time.Second,
			PoolSize:       10,
			AcquireTimeout: 0,
		},
		Cache: Cache{
			Backend:            "memory",
			TTL:                5 * time.Minute,
			MaxSize:            1000,
			Policy:             "evict_oldest",
			NumShards:          16,
			EvictionPercentage: 10,
		},
		Retry: Retry{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			Exponential:  true,
		},
		Service: Service{
			BatchSize:    100,
			SearchTable:  "data",
			DefaultLimit: 100,
		},
		Log: Log{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}

// Load reads a YAML file over Default(), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides connection settings from DATASERVICE_DB_* variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvDBHost); v != "" {
		c.Connection.Host = v
	}
	if v := os.Getenv(EnvDBPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvDBPort, err)
		}
		c.Connection.Port = port
	}
	if v := os.Getenv(EnvDBUser); v != "" {
		c.Connection.Username = v
	}
	if v := os.Getenv(EnvDBPassword); v != "" {
		c.Connection.Password = v
	}
	if v := os.Getenv(EnvDBName); v != "" {
		c.Connection.Database = v
	}
	return nil
}

// Validate checks every section.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Connection),
		validation.Field(&c.Cache),
		validation.Field(&c.Retry),
		validation.Field(&c.Service),
		validation.Field(&c.Log),
	)
}

func (c Connection) Validate() error {
	postgres := c.Driver == DriverPostgres
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverPostgres, DriverSQLite)),
		validation.Field(&c.Host, validation.When(postgres, validation.Required)),
		validation.Field(&c.Port, validation.When(postgres, validation.Required), validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Database, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.PoolSize, validation.Required, validation.Min(1)),
		validation.Field(&c.AcquireTimeout, validation.Min(time.Duration(0))),
	)
}

func (c Cache) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.In("memory", "sturdyc")),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxSize, validation.Required, validation.Min(1)),
		validation.Field(&c.Policy, validation.In("evict_oldest", "reject_new")),
		validation.Field(&c.NumShards, validation.Min(0)),
		validation.Field(&c.EvictionPercentage, validation.Min(0), validation.Max(100)),
	)
}

func (c Retry) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.InitialDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxDelay, validation.Min(time.Duration(0))),
	)
}

func (c Service) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.SearchTable, validation.Required),
		validation.Field(&c.DefaultLimit, validation.Required, validation.Min(1)),
	)
}

func (c Log) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.In("trace", "debug", "info", "warn", "error", "disabled")),
		validation.Field(&c.Format, validation.In("json", "console")),
		validation.Field(&c.Output, validation.In("stdout", "file", "both")),
		validation.Field(&c.FilePath, validation.When(c.Output == "file" || c.Output == "both", validation.Required)),
	)
}
