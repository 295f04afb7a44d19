// Package config provides centralized configuration management
// for the IP range aggregator. It supports loading from YAML files,
// environment variables, and AWS Secrets Manager (for Lambda).
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	HTTP      HTTPConfig      `yaml:"http"`
	Providers ProvidersConfig `yaml:"providers"`
	AWS       AWSConfig       `yaml:"aws"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds server-related settings
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RefreshConfig controls the refresh cycle
type RefreshConfig struct {
	Interval       time.Duration `yaml:"interval"`
	AdapterTimeout time.Duration `yaml:"adapter_timeout"`
	// SkipUnchanged keeps the published snapshot when the upstream payload
	// fingerprint has not changed.
	SkipUnchanged bool `yaml:"skip_unchanged"`
	// MaxConcurrency caps simultaneous adapter fetches; 0 is unbounded
	MaxConcurrency int `yaml:"max_concurrency"`
}

// HTTPConfig holds settings for the upstream HTTP client
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	RetryMax     int           `yaml:"retry_max"`
	RetryWaitMin time.Duration `yaml:"retry_wait_min"`
	RetryWaitMax time.Duration `yaml:"retry_wait_max"`
	UserAgent    string        `yaml:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// ProviderConfig enables a provider and optionally overrides its upstream
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	URL     string `yaml:"url" json:"url,omitempty"`
	// IPv6URL is only used by providers publishing one list per family
	IPv6URL string `yaml:"ipv6_url,omitempty" json:"ipv6_url,omitempty"`
}

// ProvidersConfig holds per-provider settings
type ProvidersConfig struct {
	AWS          ProviderConfig `yaml:"aws"`
	Azure        ProviderConfig `yaml:"azure"`
	Cloudflare   ProviderConfig `yaml:"cloudflare"`
	Fastly       ProviderConfig `yaml:"fastly"`
	GCP          ProviderConfig `yaml:"gcp"`
	Linode       ProviderConfig `yaml:"linode"`
	Oracle       ProviderConfig `yaml:"oracle"`
	DigitalOcean ProviderConfig `yaml:"digitalocean"`
}

// ByName returns a pointer to the named provider's settings, or nil
func (p *ProvidersConfig) ByName(name string) *ProviderConfig {
	switch strings.ToLower(name) {
	case "aws":
		return &p.AWS
	case "azure":
		return &p.Azure
	case "cloudflare":
		return &p.Cloudflare
	case "fastly":
		return &p.Fastly
	case "gcp":
		return &p.GCP
	case "linode":
		return &p.Linode
	case "oracle":
		return &p.Oracle
	case "digitalocean":
		return &p.DigitalOcean
	default:
		return nil
	}
}

// AWSConfig holds AWS SDK settings
type AWSConfig struct {
	Region      string            `yaml:"region"`
	SecretName  string            `yaml:"secret_name"`
	PrefixLists PrefixListsConfig `yaml:"prefix_lists"`
}

// PrefixListsConfig selects AWS-managed prefix lists resolved through EC2
type PrefixListsConfig struct {
	Enabled bool     `yaml:"enabled"`
	IDs     []string `yaml:"ids"`
	// NamePrefix restricts discovery to lists whose name starts with it
	NamePrefix string `yaml:"name_prefix"`
}

// RateLimitConfig holds per-client query rate limits
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// LoggingConfig holds logging-related settings
type LoggingConfig struct {
	Level      string            `yaml:"level"`
	Format     string            `yaml:"format"`
	File       string            `yaml:"file"`
	Subsystems map[string]string `yaml:"subsystems"`
}

// TelemetryConfig holds metrics and tracing settings
type TelemetryConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	ServiceName    string `yaml:"service_name"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Refresh: RefreshConfig{
			Interval:       300 * time.Second,
			AdapterTimeout: 60 * time.Second,
			SkipUnchanged:  true,
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			RetryMax:     2,
			RetryWaitMin: 500 * time.Millisecond,
			RetryWaitMax: 5 * time.Second,
			UserAgent:    "ipranges/1.0",
			MaxBodyBytes: 64 << 20,
		},
		Providers: ProvidersConfig{
			AWS:          ProviderConfig{Enabled: true, URL: "https://ip-ranges.amazonaws.com/ip-ranges.json"},
			Azure:        ProviderConfig{Enabled: true, URL: "https://www.microsoft.com/en-us/download/confirmation.aspx?id=56519"},
			Cloudflare:   ProviderConfig{Enabled: true, URL: "https://www.cloudflare.com/ips-v4/", IPv6URL: "https://www.cloudflare.com/ips-v6/"},
			Fastly:       ProviderConfig{Enabled: true, URL: "https://api.fastly.com/public-ip-list"},
			GCP:          ProviderConfig{Enabled: true, URL: "https://www.gstatic.com/ipranges/cloud.json"},
			Linode:       ProviderConfig{Enabled: true, URL: "https://geoip.linode.com/"},
			Oracle:       ProviderConfig{Enabled: true, URL: "https://docs.oracle.com/en-us/iaas/tools/public_ip_ranges.json"},
			DigitalOcean: ProviderConfig{Enabled: true, URL: "https://digitalocean.com/geo/google.csv"},
		},
		AWS: AWSConfig{
			Region:     "us-east-1",
			SecretName: "ipranges/overrides",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 600,
			Burst:             50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "color",
		},
		Telemetry: TelemetryConfig{
			MetricsEnabled: true,
			ServiceName:    "ipranges",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// the first config.yaml found next to the working directory or the
// executable when path is empty) and environment overrides. In Lambda,
// provider overrides are also read from AWS Secrets Manager.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadConfigFile(cfg, path); err != nil {
		return nil, err
	}
	loadEnvOverrides(cfg)
	if IsLambda() {
		cfg.Logging.File = ""
		cfg.Logging.Format = "json"
		loadOverridesFromSecretsManager(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be positive, got %s", c.Refresh.Interval)
	}
	if c.Refresh.AdapterTimeout <= 0 {
		return fmt.Errorf("refresh.adapter_timeout must be positive, got %s", c.Refresh.AdapterTimeout)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout)
	}
	if c.HTTP.RetryMax < 0 {
		return fmt.Errorf("http.retry_max must not be negative, got %d", c.HTTP.RetryMax)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive, got %d", c.RateLimit.RequestsPerMinute)
	}
	return nil
}

// loadConfigFile merges a YAML file into cfg
func loadConfigFile(cfg *Config, path string) error {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		return nil
	}

	// Try multiple paths for config file
	paths := []string{
		"config.yaml",
		"config.yml",
		filepath.Join(getExecutableDir(), "config.yaml"),
		filepath.Join(getExecutableDir(), "config.yml"),
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", p, err)
		}
		break
	}
	return nil
}

// loadEnvOverrides applies environment variable overrides
func loadEnvOverrides(cfg *Config) {
	if port := os.Getenv("IPRANGES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	// Refresh interval accepts a Go duration or a number of seconds
	if interval := os.Getenv("IPRANGES_REFRESH_INTERVAL"); interval != "" {
		if d, ok := parseSeconds(interval); ok {
			cfg.Refresh.Interval = d
		}
	}
	if timeout := os.Getenv("IPRANGES_ADAPTER_TIMEOUT"); timeout != "" {
		if d, ok := parseSeconds(timeout); ok {
			cfg.Refresh.AdapterTimeout = d
		}
	}

	if level := os.Getenv("IPRANGES_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("IPRANGES_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if endpoint := os.Getenv("IPRANGES_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Telemetry.OTLPEndpoint = endpoint
	}

	if disabled := os.Getenv("IPRANGES_DISABLED_PROVIDERS"); disabled != "" {
		for _, name := range strings.Split(disabled, ",") {
			if pc := cfg.Providers.ByName(strings.TrimSpace(name)); pc != nil {
				pc.Enabled = false
			}
		}
	}

	// AWS Region
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWS.Region = region
	} else if region := os.Getenv("AWS_DEFAULT_REGION"); region != "" {
		cfg.AWS.Region = region
	}

	if secret := os.Getenv("IPRANGES_SECRET_NAME"); secret != "" {
		cfg.AWS.SecretName = secret
	}
}

func parseSeconds(s string) (time.Duration, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, true
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}
	return 0, false
}

// SecretsManagerPayload represents the secret structure in AWS Secrets Manager
type SecretsManagerPayload struct {
	Providers map[string]ProviderOverride `json:"providers"`
}

// ProviderOverride is one provider's entry in the secret. A nil Enabled
// leaves the configured state alone.
type ProviderOverride struct {
	Enabled *bool  `json:"enabled,omitempty"`
	URL     string `json:"url,omitempty"`
	IPv6URL string `json:"ipv6_url,omitempty"`
}

// Apply merges the payload's provider overrides into cfg. Only URLs and
// explicitly set enabled flags are taken from the secret.
func (p SecretsManagerPayload) Apply(cfg *Config) {
	for name, override := range p.Providers {
		pc := cfg.Providers.ByName(name)
		if pc == nil {
			continue
		}
		if override.URL != "" {
			pc.URL = override.URL
		}
		if override.IPv6URL != "" {
			pc.IPv6URL = override.IPv6URL
		}
		if override.Enabled != nil {
			pc.Enabled = *override.Enabled
		}
	}
}

// loadOverridesFromSecretsManager loads provider overrides from AWS Secrets
// Manager. This is only called when running in Lambda.
func loadOverridesFromSecretsManager(cfg *Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Load AWS config (uses Lambda's IAM role automatically)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		// Silently fail - defaults stay in effect
		return
	}

	client := secretsmanager.NewFromConfig(awsCfg)
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &cfg.AWS.SecretName,
	})
	if err != nil || result.SecretString == nil {
		return
	}

	var payload SecretsManagerPayload
	if err := json.Unmarshal([]byte(*result.SecretString), &payload); err != nil {
		return
	}
	payload.Apply(cfg)
}

// getExecutableDir returns the directory containing the executable
func getExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// IsLambda returns true if running in AWS Lambda
func IsLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}
