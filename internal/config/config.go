// Package config defines the top-level configuration for the predictx backend
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PREDICTX_* environment variables.
type Config struct {
	Node       NodeConfig       `toml:"node"`
	Wallet     WalletConfig     `toml:"wallet"`
	Oracle     OracleConfig     `toml:"oracle"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Settlement SettlementConfig `toml:"settlement"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// NodeConfig holds the parameters of the persistent connection to the remote
// settlement node and of the application session opened on top of it.
type NodeConfig struct {
	// Endpoint is the WebSocket URL of the remote settlement node.
	Endpoint string `toml:"endpoint"`

	// Participant and Application identify this deployment to the node.
	// Together with the wallet address they key the application session.
	Participant string `toml:"participant"`
	Application string `toml:"application"`

	// Scope and ExpirySeconds are requested during auth.
	Scope         string `toml:"scope"`
	ExpirySeconds int64  `toml:"expiry_seconds"`

	// CallTimeout bounds every outbound call; ReconnectDelay is the base of
	// the reconnect backoff, capped at MaxReconnectDelay.
	CallTimeout       duration `toml:"call_timeout"`
	ReconnectDelay    duration `toml:"reconnect_delay"`
	MaxReconnectDelay duration `toml:"max_reconnect_delay"`
}

// WalletConfig holds the signing key used for the gateway handshake.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// OracleConfig holds the spot-price source parameters.
type OracleConfig struct {
	BaseURL  string   `toml:"base_url"`
	Timeout  duration `toml:"timeout"`
	CacheTTL duration `toml:"cache_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the settlement
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// SettlementConfig holds the scheduler parameters.
type SettlementConfig struct {
	// TickInterval is the cadence of the settlement loop.
	TickInterval duration `toml:"tick_interval"`

	// JobTimeout bounds each per-contract settlement job, including its
	// oracle lookup.
	JobTimeout duration `toml:"job_timeout"`

	// PriceTolerance is the relative band for price-target contracts
	// (0.02 = 2%).
	PriceTolerance float64 `toml:"price_tolerance"`

	// MaxConcurrentJobs caps how many contracts settle in parallel per tick.
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds operator alert channels. Senders with empty credentials
// are not registered.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Node: NodeConfig{
			Scope:             "app.predictx",
			ExpirySeconds:     3600,
			CallTimeout:       duration{30 * time.Second},
			ReconnectDelay:    duration{5 * time.Second},
			MaxReconnectDelay: duration{60 * time.Second},
		},
		Oracle: OracleConfig{
			Timeout:  duration{10 * time.Second},
			CacheTTL: duration{5 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "predictx",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "predictx-archive",
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Settlement: SettlementConfig{
			TickInterval:      duration{60 * time.Second},
			JobTimeout:        duration{15 * time.Second},
			PriceTolerance:    0.02,
			MaxConcurrentJobs: 8,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":  true,
	"settle": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found. The node section is checked
// strictly: the gateway refuses to initiate a handshake with incomplete
// identity configuration.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, settle, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Node — every identity field is required before the gateway may connect.
	if c.Node.Endpoint == "" {
		errs = append(errs, "node: endpoint must not be empty")
	} else if !strings.HasPrefix(c.Node.Endpoint, "ws://") && !strings.HasPrefix(c.Node.Endpoint, "wss://") {
		errs = append(errs, fmt.Sprintf("node: endpoint must be a ws:// or wss:// URL, got %q", c.Node.Endpoint))
	}
	if c.Node.Participant == "" {
		errs = append(errs, "node: participant must not be empty")
	}
	if c.Node.Application == "" {
		errs = append(errs, "node: application must not be empty")
	}
	if c.Node.ExpirySeconds <= 0 {
		errs = append(errs, "node: expiry_seconds must be positive")
	}
	if c.Node.CallTimeout.Duration <= 0 {
		errs = append(errs, "node: call_timeout must be positive")
	}
	if c.Node.ReconnectDelay.Duration <= 0 {
		errs = append(errs, "node: reconnect_delay must be positive")
	}
	if c.Node.MaxReconnectDelay.Duration < c.Node.ReconnectDelay.Duration {
		errs = append(errs, "node: max_reconnect_delay must be >= reconnect_delay")
	}

	// Wallet — one credential source must be configured.
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Oracle
	if c.Oracle.BaseURL == "" {
		errs = append(errs, "oracle: base_url must not be empty")
	}
	if c.Oracle.Timeout.Duration <= 0 {
		errs = append(errs, "oracle: timeout must be positive")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	// S3 — only checked when the archive is enabled.
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when the archive is enabled")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1")
		}
	}

	// Settlement
	if c.Settlement.TickInterval.Duration <= 0 {
		errs = append(errs, "settlement: tick_interval must be positive")
	}
	if c.Settlement.JobTimeout.Duration <= 0 {
		errs = append(errs, "settlement: job_timeout must be positive")
	}
	if c.Settlement.PriceTolerance <= 0 || c.Settlement.PriceTolerance >= 1 {
		errs = append(errs, fmt.Sprintf("settlement: price_tolerance must be in (0, 1), got %g", c.Settlement.PriceTolerance))
	}
	if c.Settlement.MaxConcurrentJobs < 1 {
		errs = append(errs, "settlement: max_concurrent_jobs must be >= 1")
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
