package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ProcessConfig is the bootstrap configuration for cmd/integrationhub,
// following the teacher's core.Config layering: a hardcoded default,
// overridden by an optional bootstrap file, further overridden by
// environment variables, further overridden by functional options passed
// at construction.
type ProcessConfig struct {
	PostgresDSN     string        `yaml:"postgres_dsn"`
	RedisURL        string        `yaml:"redis_url"`
	HTTPPort        int           `yaml:"http_port"`
	WorkerCount     int           `yaml:"worker_count"`
	RetryScanEvery  time.Duration `yaml:"retry_scan_every"`
	OutboundTimeout time.Duration `yaml:"outbound_timeout"`
}

// Option customizes a ProcessConfig, mirroring WithName/WithPort in the
// teacher's core/config.go.
type Option func(*ProcessConfig)

func WithPostgresDSN(dsn string) Option { return func(c *ProcessConfig) { c.PostgresDSN = dsn } }
func WithRedisURL(url string) Option    { return func(c *ProcessConfig) { c.RedisURL = url } }
func WithHTTPPort(port int) Option      { return func(c *ProcessConfig) { c.HTTPPort = port } }
func WithWorkerCount(n int) Option      { return func(c *ProcessConfig) { c.WorkerCount = n } }

// New builds a ProcessConfig from defaults, then an optional bootstrap
// file named by INTEGRATIONHUB_CONFIG_FILE, then env:"..." overrides, then
// opts, in that order — later sources win. File settings override the
// defaults but are themselves overridden by environment variables and
// functional options.
func New(opts ...Option) *ProcessConfig {
	cfg := &ProcessConfig{
		PostgresDSN:     "postgres://localhost:5432/integrationhub?sslmode=disable",
		RedisURL:        "redis://localhost:6379/0",
		HTTPPort:        8080,
		WorkerCount:     4,
		RetryScanEvery:  5 * time.Second,
		OutboundTimeout: 30 * time.Second,
	}

	if path := os.Getenv("INTEGRATIONHUB_CONFIG_FILE"); path != "" {
		if err := loadBootstrapFile(cfg, path); err != nil {
			fmt.Fprintf(os.Stderr, "integrationhub: %v\n", err)
		}
	}

	if v := os.Getenv("INTEGRATIONHUB_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("INTEGRATIONHUB_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("INTEGRATIONHUB_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = port
		}
	}
	if v := os.Getenv("INTEGRATIONHUB_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerCount = n
		}
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// loadBootstrapFile reads a YAML bootstrap file and unmarshals it onto cfg.
// Grounded on the teacher's LoadFromFile (path cleaning, extension check)
// with the actual yaml.Unmarshal call the teacher uses in its workflow
// engine rather than the stdlib-only path LoadFromFile falls back to.
func loadBootstrapFile(cfg *ProcessConfig, path string) error {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported bootstrap config extension %s", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("reading bootstrap config %s: %w", cleanPath, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing bootstrap config %s: %w", cleanPath, err)
	}
	return nil
}
