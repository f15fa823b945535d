package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDICTX_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDICTX_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Node ──
	setStr(&cfg.Node.Endpoint, "PREDICTX_NODE_ENDPOINT")
	setStr(&cfg.Node.Participant, "PREDICTX_NODE_PARTICIPANT")
	setStr(&cfg.Node.Application, "PREDICTX_NODE_APPLICATION")
	setStr(&cfg.Node.Scope, "PREDICTX_NODE_SCOPE")
	setInt64(&cfg.Node.ExpirySeconds, "PREDICTX_NODE_EXPIRY_SECONDS")
	setDuration(&cfg.Node.CallTimeout, "PREDICTX_NODE_CALL_TIMEOUT")
	setDuration(&cfg.Node.ReconnectDelay, "PREDICTX_NODE_RECONNECT_DELAY")
	setDuration(&cfg.Node.MaxReconnectDelay, "PREDICTX_NODE_MAX_RECONNECT_DELAY")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PREDICTX_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PREDICTX_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PREDICTX_WALLET_KEY_PASSWORD")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "PREDICTX_ORACLE_BASE_URL")
	setDuration(&cfg.Oracle.Timeout, "PREDICTX_ORACLE_TIMEOUT")
	setDuration(&cfg.Oracle.CacheTTL, "PREDICTX_ORACLE_CACHE_TTL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDICTX_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PREDICTX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDICTX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDICTX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDICTX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDICTX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDICTX_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDICTX_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDICTX_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDICTX_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDICTX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICTX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICTX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICTX_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PREDICTX_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PREDICTX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICTX_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICTX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDICTX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICTX_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "PREDICTX_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "PREDICTX_S3_RETENTION_DAYS")

	// ── Settlement ──
	setDuration(&cfg.Settlement.TickInterval, "PREDICTX_SETTLEMENT_TICK_INTERVAL")
	setDuration(&cfg.Settlement.JobTimeout, "PREDICTX_SETTLEMENT_JOB_TIMEOUT")
	setFloat64(&cfg.Settlement.PriceTolerance, "PREDICTX_SETTLEMENT_PRICE_TOLERANCE")
	setInt(&cfg.Settlement.MaxConcurrentJobs, "PREDICTX_SETTLEMENT_MAX_CONCURRENT_JOBS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PREDICTX_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PREDICTX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICTX_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PREDICTX_SERVER_API_KEY")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "PREDICTX_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDICTX_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDICTX_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDICTX_NOTIFY_EVENTS")

	// ── Top level ──
	setStr(&cfg.Mode, "PREDICTX_MODE")
	setStr(&cfg.LogLevel, "PREDICTX_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
