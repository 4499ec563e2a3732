// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config defines the pipeline's environment surface: the single
// Config struct every adapter, fetcher and the orchestrator are built
// from, loaded from an optional JSON file and overridable per-field from
// EUROSTAT_* environment variables.
//
// Loading a concrete file path or flag from a process's argv/env belongs
// to the out-of-scope CLI front end; this package only defines the shape
// and the validation rule, and a loader that front end can call.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/gowthamrao/eurostat-elt/pkg/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Config is the full set of externally supplied coordinates the pipeline
// needs. Every field can be set from the JSON config file and overridden
// by an EUROSTAT_* environment variable (see applyEnvOverrides).
type Config struct {
	// Database coordinates.
	DBDriver   string `json:"dbDriver"`   // "postgres" or "sqlite3"
	DBDSN      string `json:"dbDSN"`      // driver-specific connection string
	DataSchema string `json:"dataSchema"` // logical namespace for per-dataset tables
	MetaSchema string `json:"metaSchema"` // logical namespace for codelists + ingestion history

	// Fetcher / cache.
	BaseURL        string `json:"baseURL"`
	CacheRoot      string `json:"cacheRoot"`
	CacheEnabled   bool   `json:"cacheEnabled"`
	CacheMirrorS3  string `json:"cacheMirrorS3Bucket"` // empty disables the S3 mirror tier
	RequestTimeout int    `json:"requestTimeoutSeconds"`
	MaxRetries     int    `json:"maxRetries"`

	// Loader behavior.
	UseUnloggedStaging bool `json:"useUnloggedStaging"`

	// Ambient / observability.
	LogLevel      string `json:"logLevel"`
	NatsURL       string `json:"natsURL"` // empty disables lifecycle-event publishing
	MetricsListen string `json:"metricsListen"`
}

// Default returns a Config pre-populated with the same conservative
// defaults a fresh install should run with.
func Default() Config {
	return Config{
		DBDriver:           "sqlite3",
		DBDSN:              "./var/eurostat.db",
		DataSchema:         "data",
		MetaSchema:         "meta",
		BaseURL:            "https://ec.europa.eu/eurostat/api/dissemination",
		CacheRoot:          "./var/cache",
		CacheEnabled:       true,
		RequestTimeout:     30,
		MaxRetries:         5,
		UseUnloggedStaging: true,
		LogLevel:           "info",
	}
}

//go:embed config.schema.json
var schemaFS []byte

var compiled *jsonschema.Schema

func schema() (*jsonschema.Schema, error) {
	if compiled != nil {
		return compiled, nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("config.schema.json", bytes.NewReader(schemaFS)); err != nil {
		return nil, err
	}
	s, err := c.Compile("config.schema.json")
	if err != nil {
		return nil, err
	}
	compiled = s
	return s, nil
}

// Load reads a JSON config file, validates it against the embedded schema,
// merges it onto Default(), and applies EUROSTAT_* environment overrides.
// A missing file is not an error: Default() plus environment overrides is
// a valid configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else {
			s, err := schema()
			if err != nil {
				return Config{}, fmt.Errorf("compile config schema: %w", err)
			}
			var doc interface{}
			if err := json.Unmarshal(raw, &doc); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
			if err := s.Validate(doc); err != nil {
				return Config{}, fmt.Errorf("validate config %s: %w", path, err)
			}
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&cfg); err != nil {
				return Config{}, fmt.Errorf("decode config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite3" {
		return Config{}, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}

	log.SetLogLevel(cfg.LogLevel)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	strField := func(env string, dst *string) {
		if v, ok := os.LookupEnv(env); ok {
			*dst = v
		}
	}
	boolField := func(env string, dst *bool) {
		if v, ok := os.LookupEnv(env); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			} else {
				log.Warnf("config: ignoring invalid bool for %s: %q", env, v)
			}
		}
	}
	intField := func(env string, dst *int) {
		if v, ok := os.LookupEnv(env); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			} else {
				log.Warnf("config: ignoring invalid int for %s: %q", env, v)
			}
		}
	}

	strField("EUROSTAT_DB_DRIVER", &cfg.DBDriver)
	strField("EUROSTAT_DB_DSN", &cfg.DBDSN)
	strField("EUROSTAT_DATA_SCHEMA", &cfg.DataSchema)
	strField("EUROSTAT_META_SCHEMA", &cfg.MetaSchema)
	strField("EUROSTAT_BASE_URL", &cfg.BaseURL)
	strField("EUROSTAT_CACHE_ROOT", &cfg.CacheRoot)
	boolField("EUROSTAT_CACHE_ENABLED", &cfg.CacheEnabled)
	strField("EUROSTAT_CACHE_MIRROR_S3_BUCKET", &cfg.CacheMirrorS3)
	intField("EUROSTAT_REQUEST_TIMEOUT_SECONDS", &cfg.RequestTimeout)
	intField("EUROSTAT_MAX_RETRIES", &cfg.MaxRetries)
	boolField("EUROSTAT_USE_UNLOGGED_STAGING", &cfg.UseUnloggedStaging)
	strField("EUROSTAT_LOG_LEVEL", &cfg.LogLevel)
	strField("EUROSTAT_NATS_URL", &cfg.NatsURL)
	strField("EUROSTAT_METRICS_LISTEN", &cfg.MetricsListen)
}
