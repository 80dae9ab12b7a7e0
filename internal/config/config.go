// Package config loads resolverd's settings from an optional YAML file,
// then applies command-line flag overrides on top, matching the
// layering the original dnsscience tooling used between its gRPC
// control-plane config file and its daemon's flag set.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML shape. Every field is optional; a zero
// value falls through to Config's built-in default.
type File struct {
	Listen             string  `yaml:"listen"`
	MetricsListen      string  `yaml:"metrics_listen"`
	MaxDelegationDepth int     `yaml:"max_delegation_depth"`
	QueryTimeout       string  `yaml:"query_timeout"`
	Workers            int     `yaml:"workers"`
	QueueSize          int     `yaml:"queue_size"`
	RateLimitQPS       float64 `yaml:"ratelimit_qps"`
	RateLimitBurst     int     `yaml:"ratelimit_burst"`
	DefaultAllow       *bool   `yaml:"acl_default_allow"`
	AllowNets          []string `yaml:"acl_allow"`
	DenyNets           []string `yaml:"acl_deny"`
	RRLEnabled         *bool   `yaml:"rrl_enabled"`
}

// LoadFile reads and parses a YAML config file.
func LoadFile(path string) (File, error) {
	var f File
	b, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return f, nil
}

// Config is the resolved, ready-to-use configuration, after a File has
// been merged with flag overrides and defaults.
type Config struct {
	Listen             string
	MetricsListen      string
	MaxDelegationDepth int
	QueryTimeout       time.Duration
	Workers            int
	QueueSize          int
	RateLimitQPS       float64
	RateLimitBurst     int
	ACLDefaultAllow    bool
	ACLAllow           []string
	ACLDeny            []string
	RRLEnabled         bool
}

// Default returns the built-in defaults, used when neither a config
// file nor a flag supplies a value.
func Default() Config {
	return Config{
		Listen:             "0.0.0.0:2053",
		MetricsListen:      ":9153",
		MaxDelegationDepth: 20,
		QueryTimeout:       5 * time.Second,
		Workers:            0, // 0 defers to worker.Config's runtime.NumCPU()*4 default
		QueueSize:          0,
		RateLimitQPS:       100,
		RateLimitBurst:     200,
		ACLDefaultAllow:    true,
		RRLEnabled:         true,
	}
}

// Merge overlays non-zero fields from f onto cfg.
func (cfg Config) Merge(f File) (Config, error) {
	if f.Listen != "" {
		cfg.Listen = f.Listen
	}
	if f.MetricsListen != "" {
		cfg.MetricsListen = f.MetricsListen
	}
	if f.MaxDelegationDepth != 0 {
		cfg.MaxDelegationDepth = f.MaxDelegationDepth
	}
	if f.QueryTimeout != "" {
		d, err := time.ParseDuration(f.QueryTimeout)
		if err != nil {
			return cfg, fmt.Errorf("config: query_timeout: %w", err)
		}
		cfg.QueryTimeout = d
	}
	if f.Workers != 0 {
		cfg.Workers = f.Workers
	}
	if f.QueueSize != 0 {
		cfg.QueueSize = f.QueueSize
	}
	if f.RateLimitQPS != 0 {
		cfg.RateLimitQPS = f.RateLimitQPS
	}
	if f.RateLimitBurst != 0 {
		cfg.RateLimitBurst = f.RateLimitBurst
	}
	if f.DefaultAllow != nil {
		cfg.ACLDefaultAllow = *f.DefaultAllow
	}
	if len(f.AllowNets) > 0 {
		cfg.ACLAllow = f.AllowNets
	}
	if len(f.DenyNets) > 0 {
		cfg.ACLDeny = f.DenyNets
	}
	if f.RRLEnabled != nil {
		cfg.RRLEnabled = *f.RRLEnabled
	}
	return cfg, nil
}

// Flags registers command-line overrides on fs and returns a closure
// that applies them to cfg after fs.Parse has run. Flags win over both
// the config file and the built-in defaults.
func Flags(fs *flag.FlagSet, cfg Config) (*Config, func()) {
	listen := fs.String("listen", cfg.Listen, "UDP listen address")
	metricsListen := fs.String("metrics-listen", cfg.MetricsListen, "Prometheus metrics listen address")
	maxDepth := fs.Int("max-delegation-depth", cfg.MaxDelegationDepth, "max referral chain depth")
	timeout := fs.Duration("query-timeout", cfg.QueryTimeout, "per-upstream-query timeout")
	workers := fs.Int("workers", cfg.Workers, "worker pool size (0 = runtime default)")

	result := cfg
	return &result, func() {
		result.Listen = *listen
		result.MetricsListen = *metricsListen
		result.MaxDelegationDepth = *maxDepth
		result.QueryTimeout = *timeout
		result.Workers = *workers
	}
}
