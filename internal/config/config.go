package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Transport types
const (
	TransportSMTP   = "smtp"
	TransportSES    = "ses"
	TransportResend = "resend"
	TransportLog    = "log"
)

// Storage types
const (
	StorageBolt  = "bolt"
	StorageRedis = "redis"
)

// Config is the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Storage   StorageConfig   `yaml:"storage"`
	Transport TransportConfig `yaml:"transport"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig contains public-facing settings
type ServerConfig struct {
	BaseURL string `yaml:"base_url"` // public URL used in unsubscribe links
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`          // plain token (development)
	APIKeyHash     string        `yaml:"api_key_hash"`     // bcrypt hash, see `letterpress token hash`
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // default: 1MB
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // default: 30s
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // default: 60s
}

// AuthEnabled reports whether admin routes require a token
func (c *APIConfig) AuthEnabled() bool {
	return c.APIKey != "" || c.APIKeyHash != ""
}

// TrackingConfig contains open/click tracking settings
type TrackingConfig struct {
	BaseURL      string `yaml:"base_url"`      // default: server.base_url
	FallbackURL  string `yaml:"fallback_url"`  // click redirect target for missing or unsafe URLs
	RewriteLinks bool   `yaml:"rewrite_links"` // route newsletter links through the click endpoint
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Type  string      `yaml:"type"` // bolt, redis
	Path  string      `yaml:"path"` // bolt database file
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// TransportConfig selects and configures the mail provider
type TransportConfig struct {
	Type     string        `yaml:"type"` // smtp, ses, resend, log
	From     string        `yaml:"from"`
	FromName string        `yaml:"from_name"`
	ReplyTo  string        `yaml:"reply_to"`
	Timeout  time.Duration `yaml:"timeout"` // per-send timeout
	SMTP     SMTPConfig    `yaml:"smtp"`
	SES      SESConfig     `yaml:"ses"`
	Resend   ResendConfig  `yaml:"resend"`
	DKIM     DKIMConfig    `yaml:"dkim"`
}

// SMTPConfig contains SMTP relay settings
type SMTPConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	Security           string `yaml:"security"` // none, starttls, tls
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	HelloName          string `yaml:"hello_name"`
}

// SESConfig contains Amazon SES settings
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	ConfigurationSet string `yaml:"configuration_set"`
	Endpoint         string `yaml:"endpoint"` // optional endpoint override
}

// ResendConfig contains Resend API settings
type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

// DKIMConfig contains DKIM signing settings for the SMTP transport
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
	Domain   string `yaml:"domain"`
}

// DefaultBatchDelay is the pause between batches when batch_delay is unset
const DefaultBatchDelay = time.Second

// DispatchConfig contains batch dispatch settings
type DispatchConfig struct {
	BatchSize int `yaml:"batch_size"` // default: 50
	// BatchDelay is a pointer so that an explicit 0s disables the pause
	BatchDelay *time.Duration `yaml:"batch_delay"` // default: 1s
}

// Delay returns the configured pause between batches
func (d DispatchConfig) Delay() time.Duration {
	if d.BatchDelay == nil {
		return DefaultBatchDelay
	}
	return *d.BatchDelay
}

// SchedulerConfig contains scheduled-send settings
type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Spec    string `yaml:"spec"` // cron spec, default: @every 1m
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"` // default: :9090
	Path       string   `yaml:"path"`        // default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"` // IP addresses/CIDRs allowed to scrape
}

// Load loads configuration from a YAML file. ${VAR} references are
// expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses, defaults and validates configuration data
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:8080"
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Tracking.BaseURL == "" {
		c.Tracking.BaseURL = c.Server.BaseURL
	}
	if c.Tracking.FallbackURL == "" {
		c.Tracking.FallbackURL = "/"
	}

	if c.Storage.Type == "" {
		c.Storage.Type = StorageBolt
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/letterpress/letterpress.db"
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = "localhost:6379"
	}
	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = "letterpress:"
	}

	if c.Transport.Type == "" {
		c.Transport.Type = TransportLog
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 30 * time.Second
	}
	if c.Transport.SMTP.Port == 0 {
		c.Transport.SMTP.Port = 587
	}
	if c.Transport.SMTP.Security == "" {
		c.Transport.SMTP.Security = "starttls"
	}

	if c.Dispatch.BatchSize == 0 {
		c.Dispatch.BatchSize = 50
	}
	if c.Dispatch.BatchDelay == nil {
		delay := DefaultBatchDelay
		c.Dispatch.BatchDelay = &delay
	}

	if c.Scheduler.Spec == "" {
		c.Scheduler.Spec = "@every 1m"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validateBaseURL("server.base_url", c.Server.BaseURL); err != nil {
		return err
	}
	if err := validateBaseURL("tracking.base_url", c.Tracking.BaseURL); err != nil {
		return err
	}

	switch c.Storage.Type {
	case StorageBolt:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for bolt storage")
		}
	case StorageRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for redis storage")
		}
	default:
		return fmt.Errorf("invalid storage.type: %s (must be bolt or redis)", c.Storage.Type)
	}

	if err := c.validateTransport(); err != nil {
		return err
	}

	if c.Dispatch.BatchSize < 1 {
		return fmt.Errorf("dispatch.batch_size must be positive")
	}
	if c.Dispatch.Delay() < 0 {
		return fmt.Errorf("dispatch.batch_delay must not be negative")
	}

	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.Spec); err != nil {
			return fmt.Errorf("invalid scheduler.spec %q: %w", c.Scheduler.Spec, err)
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

func (c *Config) validateTransport() error {
	t := c.Transport
	if t.From == "" {
		return fmt.Errorf("transport.from is required")
	}

	switch t.Type {
	case TransportSMTP:
		if t.SMTP.Host == "" {
			return fmt.Errorf("transport.smtp.host is required for smtp transport")
		}
		validSecurity := map[string]bool{"none": true, "starttls": true, "tls": true}
		if !validSecurity[t.SMTP.Security] {
			return fmt.Errorf("invalid transport.smtp.security: %s (must be none, starttls or tls)", t.SMTP.Security)
		}
	case TransportSES:
		if t.SES.Region == "" {
			return fmt.Errorf("transport.ses.region is required for ses transport")
		}
	case TransportResend:
		if t.Resend.APIKey == "" {
			return fmt.Errorf("transport.resend.api_key is required for resend transport")
		}
	case TransportLog:
	default:
		return fmt.Errorf("invalid transport.type: %s (must be smtp, ses, resend or log)", t.Type)
	}

	if t.DKIM.Enabled {
		if t.DKIM.Selector == "" {
			return fmt.Errorf("transport.dkim.selector is required when DKIM is enabled")
		}
		if t.DKIM.KeyFile == "" {
			return fmt.Errorf("transport.dkim.key_file is required when DKIM is enabled")
		}
		if t.DKIM.Domain == "" {
			return fmt.Errorf("transport.dkim.domain is required when DKIM is enabled")
		}
	}

	return nil
}

func validateBaseURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", field, raw)
	}
	return nil
}
