package config

import (
	"errors"
	"time"
)

// DefaultPort is the client-to-server port used when none is configured.
const DefaultPort = 5222

// Config holds the chat client configuration. It is immutable for the
// lifetime of a session.
type Config struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// TLS switches the network transport to https/wss.
	TLS bool `mapstructure:"tls" yaml:"tls"`

	DataDir  string `mapstructure:"data_dir" yaml:"data_dir"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	ReconnectInterval time.Duration `mapstructure:"reconnect_interval" yaml:"reconnect_interval"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	// AuthFailureLimit is the number of consecutive rejected reconnects after
	// which the session reports stale credentials. Zero disables the report.
	AuthFailureLimit int `mapstructure:"auth_failure_limit" yaml:"auth_failure_limit"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Host:              "localhost",
		Port:              DefaultPort,
		DataDir:           "data",
		LogLevel:          "info",
		ReconnectInterval: 3 * time.Second,
		DialTimeout:       10 * time.Second,
		AuthFailureLimit:  5,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Host != "" {
		c.Host = other.Host
	}
	if other.Port != 0 {
		c.Port = other.Port
	}
	if other.TLS {
		c.TLS = true
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.ReconnectInterval != 0 {
		c.ReconnectInterval = other.ReconnectInterval
	}
	if other.DialTimeout != 0 {
		c.DialTimeout = other.DialTimeout
	}
	if other.AuthFailureLimit != 0 {
		c.AuthFailureLimit = other.AuthFailureLimit
	}
}

// Validate reports configuration that cannot produce a working session.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("config: host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("config: port out of range")
	}
	if c.ReconnectInterval <= 0 {
		return errors.New("config: reconnect_interval must be positive")
	}
	return nil
}

// RelayConfig holds the relay server configuration.
type RelayConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	// RateLimit caps requests per connection per minute. Zero disables it.
	RateLimit int `mapstructure:"rate_limit" yaml:"rate_limit"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	// Accounts seeds the relay with username/password pairs.
	Accounts map[string]string `mapstructure:"accounts" yaml:"accounts"`
}

// DefaultRelay returns relay configuration with reasonable starter defaults.
func DefaultRelay() RelayConfig {
	return RelayConfig{
		Addr:              ":5222",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		MaxMessageBytes:   1 << 20,
		RateLimit:         600,
		JWTSecret:         "change-me",
		JWTIssuer:         "wirechat",
		JWTAudience:       "wirechat-client",
		TokenTTL:          time.Hour,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *RelayConfig) UpdateFrom(other RelayConfig) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.RateLimit != 0 {
		c.RateLimit = other.RateLimit
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.TokenTTL != 0 {
		c.TokenTTL = other.TokenTTL
	}
	if len(other.Accounts) > 0 {
		if c.Accounts == nil {
			c.Accounts = make(map[string]string, len(other.Accounts))
		}
		for user, password := range other.Accounts {
			c.Accounts[user] = password
		}
	}
}
