// Package config provides the configuration system for scriptpool.
// A single Config structure covers the script engine, the stored-function
// store, script execution limits, and logging.
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.Store.URI = "mongodb://localhost:27017"
//	cfg.Store.Database = "app"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"time"

	"github.com/acruikshank/scriptpool/pkg/errors"
)

// Config is the top-level configuration for a scriptpool process.
type Config struct {
	// Engine names the script engine registered at startup
	Engine EngineConfig `yaml:"engine" json:"engine"`

	// Store configures the stored-function repository
	Store StoreConfig `yaml:"store" json:"store"`

	// Script configures execution limits and entry points
	Script ScriptConfig `yaml:"script" json:"script"`

	// Logging configures the structured logger
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// EngineConfig identifies the script engine implementation.
type EngineConfig struct {
	// Name of the engine implementation selected at build time
	Name string `yaml:"name" json:"name"`
}

// StoreConfig configures the stored-function repository connection.
type StoreConfig struct {
	// URI is the MongoDB connection string
	URI string `yaml:"uri" json:"uri"`
	// Database is the local database whose stored functions are loaded
	Database string `yaml:"database" json:"database"`
	// Collection holding stored functions, defaults to system.js
	Collection string `yaml:"collection" json:"collection"`
	// ConnectTimeout bounds the initial connection attempt
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// ScriptConfig contains script execution settings.
type ScriptConfig struct {
	// Timeout bounds a single script invocation (0 = no limit)
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// PrintResult echoes evaluation results when executing files
	PrintResult bool `yaml:"print_result" json:"print_result"`
	// ReportError surfaces script errors when executing files
	ReportError bool `yaml:"report_error" json:"report_error"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level       string `yaml:"level" json:"level"`
	Encoding    string `yaml:"encoding" json:"encoding"`
	Development bool   `yaml:"development" json:"development"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Collection:     "system.js",
			ConnectTimeout: 10 * time.Second,
		},
		Script: ScriptConfig{
			ReportError: true,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Validate checks the configuration for required fields and consistency.
func (c *Config) Validate() error {
	if c.Store.URI != "" && c.Store.Database == "" {
		return errors.New(errors.ErrorTypeConfig, "store.database is required when store.uri is set")
	}
	if c.Store.Collection == "" {
		c.Store.Collection = "system.js"
	}
	if c.Script.Timeout < 0 {
		return errors.New(errors.ErrorTypeConfig, "script.timeout must not be negative")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return nil
}
