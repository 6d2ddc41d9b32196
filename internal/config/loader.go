package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file at path, merges it on top of the built-in
// defaults, applies FXBOT_* environment variable overrides, and returns the
// final Config. Files ending in .yaml or .yml are decoded as YAML, everything
// else as TOML. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: decoding %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FXBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setDuration(&cfg.Engine.Interval, "FXBOT_ENGINE_INTERVAL")
	setInt(&cfg.Engine.CandleCount, "FXBOT_ENGINE_CANDLE_COUNT")
	setBool(&cfg.Engine.TrailWhenClosed, "FXBOT_ENGINE_TRAIL_WHEN_CLOSED")
	setBool(&cfg.Engine.AutoStart, "FXBOT_ENGINE_AUTO_START")
	setStr(&cfg.Engine.Strategy, "FXBOT_ENGINE_STRATEGY")

	// ── Capacity ──
	setInt(&cfg.Capacity.BaseSlots, "FXBOT_CAPACITY_BASE_SLOTS")
	setInt(&cfg.Capacity.SniperSlots, "FXBOT_CAPACITY_SNIPER_SLOTS")

	// ── Risk ──
	setFloat64(&cfg.Risk.KillSwitchDrawdown, "FXBOT_RISK_KILL_SWITCH_DRAWDOWN")
	setFloat64(&cfg.Risk.MinFreeMarginRatio, "FXBOT_RISK_MIN_FREE_MARGIN_RATIO")

	// ── Execution ──
	setInt(&cfg.Execution.MaxAttempts, "FXBOT_EXECUTION_MAX_ATTEMPTS")
	setDuration(&cfg.Execution.RetryDelay, "FXBOT_EXECUTION_RETRY_DELAY")
	setInt64(&cfg.Execution.MaxConcurrent, "FXBOT_EXECUTION_MAX_CONCURRENT")

	// ── News ──
	setBool(&cfg.News.Enabled, "FXBOT_NEWS_ENABLED")
	setStr(&cfg.News.URL, "FXBOT_NEWS_URL")

	// ── Bridge ──
	setStr(&cfg.Bridge.BaseURL, "FXBOT_BRIDGE_BASE_URL")
	setStr(&cfg.Bridge.APIKey, "FXBOT_BRIDGE_API_KEY")
	setStr(&cfg.Bridge.APISecret, "FXBOT_BRIDGE_API_SECRET")
	setStr(&cfg.Bridge.EncryptedSecretPath, "FXBOT_BRIDGE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Bridge.SecretPassword, "FXBOT_BRIDGE_SECRET_PASSWORD")
	setStr(&cfg.Bridge.Timeframe, "FXBOT_BRIDGE_TIMEFRAME")

	// ── Paper ──
	setFloat64(&cfg.Paper.StartingBalance, "FXBOT_PAPER_STARTING_BALANCE")
	setBool(&cfg.Paper.BridgeData, "FXBOT_PAPER_BRIDGE_DATA")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "FXBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "FXBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "FXBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FXBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FXBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FXBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FXBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FXBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FXBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FXBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FXBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "FXBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "FXBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FXBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FXBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FXBOT_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "FXBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "FXBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "FXBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FXBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "FXBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FXBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FXBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "FXBOT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FXBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FXBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FXBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "FXBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FXBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FXBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setBool(&cfg.Notify.TelegramCommands, "FXBOT_NOTIFY_TELEGRAM_COMMANDS")
	setStr(&cfg.Notify.DiscordWebhookURL, "FXBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FXBOT_NOTIFY_EVENTS")

	// ── Log ──
	setStr(&cfg.Log.File, "FXBOT_LOG_FILE")

	// ── Top-level ──
	setStr(&cfg.Mode, "FXBOT_MODE")
	setStr(&cfg.LogLevel, "FXBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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
