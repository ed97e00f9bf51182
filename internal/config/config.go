// Package config loads derivr's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/derivr/internal/derivative"
	"github.com/koustreak/derivr/internal/errs"
	"github.com/koustreak/derivr/internal/filestore"
	"github.com/koustreak/derivr/internal/logger"
	"github.com/koustreak/derivr/internal/router"
	"github.com/koustreak/derivr/internal/server"
)

// Environment variables that override file values.
const (
	EnvStoreEndpoint  = "DERIVR_STORE_ENDPOINT"
	EnvStoreAccessKey = "DERIVR_STORE_ACCESS_KEY"
	EnvStoreSecretKey = "DERIVR_STORE_SECRET_KEY"
	EnvStoreRegion    = "DERIVR_STORE_REGION"
	EnvLogLevel       = "DERIVR_LOG_LEVEL"
	EnvListenAddr     = "DERIVR_LISTEN_ADDR"
)

// Config is the top-level configuration file.
type Config struct {
	Log      logger.Config    `yaml:"log"`
	Store    filestore.Config `yaml:"store"`
	Pipeline PipelineConfig   `yaml:"pipeline"`
	Events   EventsConfig     `yaml:"events"`
	Server   ServerConfig     `yaml:"server"`
	Listener ListenerConfig   `yaml:"listener"`
}

// PipelineConfig tunes derivative generation.
type PipelineConfig struct {
	Widths               []int `yaml:"widths"`
	JPEGQuality          int   `yaml:"jpeg_quality"`
	KeepStagingOnFailure bool  `yaml:"keep_staging_on_failure"`
}

// EventsConfig holds the event-kind prefixes used for routing.
type EventsConfig struct {
	CreationPrefix string `yaml:"creation_prefix"`
	RemovalPrefix  string `yaml:"removal_prefix"`
}

// ServerConfig configures the webhook receiver.
type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	WebhookPath string `yaml:"webhook_path"`
}

// ListenerConfig configures the MinIO bucket-notification listener.
type ListenerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: *logger.DefaultConfig(),
		Store: filestore.Config{
			Provider: filestore.ProviderMinIO,
			Endpoint: "localhost:9000",
		},
		Pipeline: PipelineConfig{
			Widths:      append([]int(nil), derivative.DefaultWidths...),
			JPEGQuality: 75,
		},
		Events: EventsConfig{
			CreationPrefix: router.DefaultCreationPrefix,
			RemovalPrefix:  router.DefaultRemovalPrefix,
		},
		Server: ServerConfig{
			ListenAddr:  ":8080",
			WebhookPath: server.DefaultWebhookPath,
		},
		Listener: ListenerConfig{
			Prefix: "assets/",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Fields absent from data keep their values.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "failed to parse config", err)
	}
	return nil
}

// ApplyEnv overrides secrets and endpoints from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	set(EnvStoreEndpoint, &c.Store.Endpoint)
	set(EnvStoreAccessKey, &c.Store.AccessKey)
	set(EnvStoreSecretKey, &c.Store.SecretKey)
	set(EnvStoreRegion, &c.Store.Region)
	set(EnvLogLevel, &c.Log.Level)
	set(EnvListenAddr, &c.Server.ListenAddr)
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, errs.Newf(errs.ErrKindInvalidInput, format, args...))
	}

	if !c.Store.Provider.Valid() {
		add("store.provider %q is not one of minio, s3, memory", c.Store.Provider)
	}

	if len(c.Pipeline.Widths) == 0 {
		add("pipeline.widths must not be empty")
	}
	for i, w := range c.Pipeline.Widths {
		if w <= 0 {
			add("pipeline.widths[%d] must be positive, got %d", i, w)
		}
		if i > 0 && w <= c.Pipeline.Widths[i-1] {
			add("pipeline.widths must be strictly ascending, %d follows %d", w, c.Pipeline.Widths[i-1])
		}
	}
	if q := c.Pipeline.JPEGQuality; q < 1 || q > 100 {
		add("pipeline.jpeg_quality must be within 1..100, got %d", q)
	}

	if strings.TrimSpace(c.Events.CreationPrefix) == "" {
		add("events.creation_prefix must not be empty")
	}
	if strings.TrimSpace(c.Events.RemovalPrefix) == "" {
		add("events.removal_prefix must not be empty")
	}

	if c.Listener.Enabled {
		if c.Listener.Bucket == "" {
			add("listener.bucket is required when the listener is enabled")
		}
		if c.Store.Provider != filestore.ProviderMinIO {
			add("listener requires the minio provider, got %q", c.Store.Provider)
		}
	}

	return errors.Join(problems...)
}

// Rules returns the routing rules.
func (c *Config) Rules() router.Rules {
	return router.Rules{
		CreationPrefix: c.Events.CreationPrefix,
		RemovalPrefix:  c.Events.RemovalPrefix,
	}
}

// GeneratorOptions returns the derivative generator options.
func (c *Config) GeneratorOptions() derivative.Options {
	return derivative.Options{
		Widths:               c.Pipeline.Widths,
		KeepStagingOnFailure: c.Pipeline.KeepStagingOnFailure,
	}
}
