// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads codecheck configuration from YAML and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/codecheck/services/codecheck/validate"
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variables that override file values.
const (
	EnvPort         = "CODECHECK_PORT"
	EnvAuditPath    = "CODECHECK_AUDIT_PATH"
	EnvLogLevel     = "CODECHECK_LOG_LEVEL"
	EnvCatalogPath  = "CODECHECK_CATALOG_PATH"
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig        `yaml:"server"`
	Limits     LimitsConfig        `yaml:"limits"`
	Audit      AuditConfig         `yaml:"audit"`
	Logging    LoggingConfig       `yaml:"logging"`
	Tracing    TracingConfig       `yaml:"tracing"`
	Catalog    CatalogConfig       `yaml:"catalog"`
	Thresholds validate.Thresholds `yaml:"thresholds"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"gte=1,lte=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

// LimitsConfig bounds request cost.
type LimitsConfig struct {
	// MaxSourceBytes caps the size of submitted source text.
	MaxSourceBytes int64 `yaml:"max_source_bytes" validate:"gte=1"`

	// RatePerSecond is the sustained request rate. Zero disables limiting.
	RatePerSecond float64 `yaml:"rate_per_second" validate:"gte=0"`

	// Burst is the token bucket size.
	Burst int `yaml:"burst" validate:"gte=1"`
}

// AuditConfig configures the audit store.
type AuditConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path" validate:"required_if=Enabled true InMemory false"`
	InMemory  bool          `yaml:"in_memory"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
	Retention time.Duration `yaml:"retention" validate:"gte=0"`

	// LogRecords additionally writes a summary of each record to the log.
	LogRecords bool `yaml:"log_records"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	// Endpoint is the OTLP gRPC collector address. Empty disables export
	// unless Stdout is set.
	Endpoint    string `yaml:"endpoint"`
	Stdout      bool   `yaml:"stdout"`
	ServiceName string `yaml:"service_name" validate:"required"`
}

// CatalogConfig points at an optional catalog override file.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8090,
			ShutdownTimeout: 10 * time.Second,
		},
		Limits: LimitsConfig{
			MaxSourceBytes: 1 << 20,
			RatePerSecond:  20,
			Burst:          40,
		},
		Audit: AuditConfig{
			Enabled:   false,
			Timeout:   validate.DefaultAuditTimeout,
			Retention: 30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			ServiceName: "codecheck",
		},
		Thresholds: validate.DefaultThresholds(),
	}
}

var configValidate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Load reads configuration.
//
// Description:
//
//	Starts from Default, overlays the YAML file at path if path is not
//	empty, then applies environment overrides and validates the result.
//	Unknown YAML keys are rejected.
//
// Inputs:
//
//	path - YAML file path. Empty uses defaults and the environment only.
//
// Outputs:
//
//	*Config - The configuration
//	error - Non-nil if the file cannot be read or the result is invalid
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := decodeStrict(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, EnvPort, v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv(EnvAuditPath); v != "" {
		cfg.Audit.Enabled = true
		cfg.Audit.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvCatalogPath); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv(EnvOTLPEndpoint); v != "" {
		cfg.Tracing.Endpoint = v
	}
	return nil
}

// LoadCatalog builds the rule catalog.
//
// Description:
//
//	Returns validate.DefaultCatalog when path is empty. Otherwise reads a
//	YAML CatalogSpec; the file replaces the built-in tables entirely.
//
// Outputs:
//
//	*validate.Catalog - The catalog
//	error - Non-nil if the file is unreadable or the tables are malformed
func LoadCatalog(path string) (*validate.Catalog, error) {
	if path == "" {
		return validate.DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var spec validate.CatalogSpec
	if err := decodeStrict(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	catalog, err := validate.NewCatalog(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog %s: %v", ErrInvalidConfig, path, err)
	}
	return catalog, nil
}
