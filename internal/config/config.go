// Package config loads and validates an instance's configuration: a
// JSON document validated against an embedded schema, optionally
// overlaid with `.env`-style environment variables for
// deployment-time overrides (the HXHIM_ prefix).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"

	"github.com/hpc-hxhim/hxhim-go/internal/herr"
)

// PoolConfig sizes one fixed-buffer-pool region.
type PoolConfig struct {
	AllocSize int `json:"alloc_size" mapstructure:"alloc_size"`
	Regions   int `json:"regions" mapstructure:"regions"`
}

// Config is the decoded, validated configuration for one HXHIM
// instance.
type Config struct {
	ClientRatio int `json:"client_ratio" mapstructure:"client_ratio"`
	ServerRatio int `json:"server_ratio" mapstructure:"server_ratio"`

	DatastoresPerRangeServer int `json:"datastores_per_range_server" mapstructure:"datastores_per_range_server"`
	Datastore                string `json:"datastore" mapstructure:"datastore"`

	Hash     string `json:"hash" mapstructure:"hash"`
	HashExpr string `json:"hash_expr" mapstructure:"hash_expr"`

	Transport       string `json:"transport" mapstructure:"transport"`
	TransportModule string `json:"transport_module" mapstructure:"transport_module"`

	MaximumOpsPerSend int `json:"maximum_ops_per_send" mapstructure:"maximum_ops_per_send"`
	StartAsyncPutsAt  int `json:"start_async_puts_at" mapstructure:"start_async_puts_at"`

	HistogramFirstN           int    `json:"histogram_first_n" mapstructure:"histogram_first_n"`
	HistogramBucketGenMethod  string `json:"histogram_bucket_gen_method" mapstructure:"histogram_bucket_gen_method"`
	HistogramTrackPredicates  bool   `json:"histogram_track_predicates" mapstructure:"histogram_track_predicates"`

	DebugLevel string `json:"debug_level" mapstructure:"debug_level"`

	PersistPrefix  string `json:"persist_prefix" mapstructure:"persist_prefix"`
	PersistPostfix string `json:"persist_postfix" mapstructure:"persist_postfix"`

	Pools map[string]PoolConfig `json:"pools" mapstructure:"pools"`
}

// Default returns a Config with conservative defaults: single
// datastore, in-memory engine, async puts disabled.
func Default() Config {
	return Config{
		ClientRatio:              1,
		ServerRatio:              1,
		DatastoresPerRangeServer: 1,
		Datastore:                "in_memory",
		Hash:                     "SUM_MOD_DATASTORES",
		Transport:                "mpi",
		MaximumOpsPerSend:        1024,
		StartAsyncPutsAt:         0,
		HistogramFirstN:          10,
		HistogramBucketGenMethod: "SQUARE_ROOT_CHOICE",
		DebugLevel:               "info",
		PersistPrefix:            "hxhim",
		PersistPostfix:           "db",
	}
}

// Load reads path as JSON, validates it against the config schema,
// decodes it over Default(), and applies HXHIM_-prefixed environment
// variable overrides (also loaded from a .env file in the working
// directory, if present). Any failure here is a Config-kind error; Open fails
// fatally on a missing or unparsable option.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, herr.New(herr.Config, "config.Load", fmt.Errorf("read %s: %w", path, err))
	}
	if err := Validate(raw); err != nil {
		return cfg, herr.New(herr.Config, "config.Load", fmt.Errorf("validate %s: %w", path, err))
	}

	var overlay map[string]any
	if err := json.Unmarshal(raw, &overlay); err != nil {
		return cfg, herr.New(herr.Config, "config.Load", fmt.Errorf("decode %s: %w", path, err))
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cfg, herr.New(herr.Config, "config.Load", err)
	}
	if err := decoder.Decode(overlay); err != nil {
		return cfg, herr.New(herr.Config, "config.Load", fmt.Errorf("apply %s: %w", path, err))
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, herr.New(herr.Config, "config.Load", err)
	}

	return cfg, nil
}

// applyEnv overlays HXHIM_-prefixed environment variables (and any
// found in a ".env" file in the working directory) onto cfg.
func applyEnv(cfg *Config) error {
	_ = godotenv.Load() // optional; missing .env is not an error

	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], "HXHIM_") {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(parts[0], "HXHIM_"))
		if err := setField(cfg, key, parts[1]); err != nil {
			return fmt.Errorf("env %s: %w", parts[0], err)
		}
	}
	return nil
}

func setField(cfg *Config, key, value string) error {
	switch key {
	case "client_ratio":
		return setInt(&cfg.ClientRatio, value)
	case "server_ratio":
		return setInt(&cfg.ServerRatio, value)
	case "datastores_per_range_server":
		return setInt(&cfg.DatastoresPerRangeServer, value)
	case "datastore":
		cfg.Datastore = value
	case "hash":
		cfg.Hash = value
	case "hash_expr":
		cfg.HashExpr = value
	case "transport":
		cfg.Transport = value
	case "transport_module":
		cfg.TransportModule = value
	case "maximum_ops_per_send":
		return setInt(&cfg.MaximumOpsPerSend, value)
	case "start_async_puts_at":
		return setInt(&cfg.StartAsyncPutsAt, value)
	case "histogram_first_n":
		return setInt(&cfg.HistogramFirstN, value)
	case "histogram_bucket_gen_method":
		cfg.HistogramBucketGenMethod = value
	case "debug_level":
		cfg.DebugLevel = value
	case "persist_prefix":
		cfg.PersistPrefix = value
	case "persist_postfix":
		cfg.PersistPostfix = value
	}
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}
