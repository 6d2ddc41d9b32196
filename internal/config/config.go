// Package config defines the top-level configuration for the fxbot engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure. Fields are populated from a TOML
// (or YAML) file and then optionally overridden by FXBOT_* environment variables.
type Config struct {
	Mode         string             `toml:"mode" yaml:"mode"`
	LogLevel     string             `toml:"log_level" yaml:"log_level"`
	Log          LogConfig          `toml:"log" yaml:"log"`
	Engine       EngineConfig       `toml:"engine" yaml:"engine"`
	Capacity     CapacityConfig     `toml:"capacity" yaml:"capacity"`
	Risk         RiskConfig         `toml:"risk" yaml:"risk"`
	Thresholds   ThresholdConfig    `toml:"thresholds" yaml:"thresholds"`
	Execution    ExecutionConfig    `toml:"execution" yaml:"execution"`
	Invalidation InvalidationConfig `toml:"invalidation" yaml:"invalidation"`
	News         NewsConfig         `toml:"news" yaml:"news"`
	Bridge       BridgeConfig       `toml:"bridge" yaml:"bridge"`
	Paper        PaperConfig        `toml:"paper" yaml:"paper"`
	Postgres     PostgresConfig     `toml:"postgres" yaml:"postgres"`
	Redis        RedisConfig        `toml:"redis" yaml:"redis"`
	S3           S3Config           `toml:"s3" yaml:"s3"`
	Server       ServerConfig       `toml:"server" yaml:"server"`
	Notify       NotifyConfig       `toml:"notify" yaml:"notify"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" yaml:"compress"`
	RingSize   int    `toml:"ring_size" yaml:"ring_size"`
}

// SymbolConfig tags a monitored symbol with its asset class.
type SymbolConfig struct {
	Name   string `toml:"name" yaml:"name"`
	Symbol string `toml:"symbol" yaml:"symbol"`
	Class  string `toml:"class" yaml:"class"`
}

// EngineConfig holds cycle controller parameters.
type EngineConfig struct {
	Interval          duration          `toml:"interval" yaml:"interval"`
	CandleCount       int               `toml:"candle_count" yaml:"candle_count"`
	MinCandles        int               `toml:"min_candles" yaml:"min_candles"`
	TrailWhenClosed   bool              `toml:"trail_when_closed" yaml:"trail_when_closed"`
	HeartbeatInterval duration          `toml:"heartbeat_interval" yaml:"heartbeat_interval"`
	CycleLockTTL      duration          `toml:"cycle_lock_ttl" yaml:"cycle_lock_ttl"`
	TrailWorkers      int               `toml:"trail_workers" yaml:"trail_workers"`
	AutoStart         bool              `toml:"auto_start" yaml:"auto_start"`
	Strategy          string            `toml:"strategy" yaml:"strategy"`
	Symbols           []SymbolConfig    `toml:"symbols" yaml:"symbols"`
	TrendHints        map[string]string `toml:"trend_hints" yaml:"trend_hints"`
}

// CapacityConfig holds the slot model. A class cap of 0 disables the class cap.
type CapacityConfig struct {
	BaseSlots       int `toml:"base_slots" yaml:"base_slots"`
	SniperSlots     int `toml:"sniper_slots" yaml:"sniper_slots"`
	SymbolCapNormal int `toml:"symbol_cap_normal" yaml:"symbol_cap_normal"`
	SymbolCapSniper int `toml:"symbol_cap_sniper" yaml:"symbol_cap_sniper"`
	MetalCap        int `toml:"metal_cap" yaml:"metal_cap"`
	YenCrossCap     int `toml:"yen_cross_cap" yaml:"yen_cross_cap"`
	ForexCap        int `toml:"forex_cap" yaml:"forex_cap"`
}

// TierConfig is one trailing tier.
type TierConfig struct {
	Threshold float64 `toml:"threshold" yaml:"threshold"`
	Lock      float64 `toml:"lock" yaml:"lock"`
}

// ClassProfile holds the per-asset-class risk constants.
type ClassProfile struct {
	RiskFraction        float64      `toml:"risk_fraction" yaml:"risk_fraction"`
	StopDistance        float64      `toml:"stop_distance" yaml:"stop_distance"`
	TakeProfitDistance  float64      `toml:"take_profit_distance" yaml:"take_profit_distance"`
	ContractMultiplier  float64      `toml:"contract_multiplier" yaml:"contract_multiplier"`
	MinLot              float64      `toml:"min_lot" yaml:"min_lot"`
	SpreadCeilingPoints float64      `toml:"spread_ceiling_points" yaml:"spread_ceiling_points"`
	Tiers               []TierConfig `toml:"tiers" yaml:"tiers"`
}

// RiskConfig holds account-level limits and per-class profiles.
type RiskConfig struct {
	KillSwitchDrawdown float64      `toml:"kill_switch_drawdown" yaml:"kill_switch_drawdown"`
	MinFreeMarginRatio float64      `toml:"min_free_margin_ratio" yaml:"min_free_margin_ratio"`
	StopBufferPoints   float64      `toml:"stop_buffer_points" yaml:"stop_buffer_points"`
	LotPrecision       int32        `toml:"lot_precision" yaml:"lot_precision"`
	Metal              ClassProfile `toml:"metal" yaml:"metal"`
	YenCross           ClassProfile `toml:"yen_cross" yaml:"yen_cross"`
	Forex              ClassProfile `toml:"forex" yaml:"forex"`
}

// Profile returns the profile for an asset class.
func (r RiskConfig) Profile(c domain.AssetClass) ClassProfile {
	switch c {
	case domain.AssetMetal:
		return r.Metal
	case domain.AssetYenCross:
		return r.YenCross
	default:
		return r.Forex
	}
}

// ClassThresholds is one row of the confidence policy table.
type ClassThresholds struct {
	Metal    float64 `toml:"metal" yaml:"metal"`
	YenCross float64 `toml:"yen_cross" yaml:"yen_cross"`
	Forex    float64 `toml:"forex" yaml:"forex"`
}

// For returns the threshold for an asset class.
func (t ClassThresholds) For(c domain.AssetClass) float64 {
	switch c {
	case domain.AssetMetal:
		return t.Metal
	case domain.AssetYenCross:
		return t.YenCross
	default:
		return t.Forex
	}
}

// ThresholdConfig holds required confidence per mode and class.
type ThresholdConfig struct {
	Normal ClassThresholds `toml:"normal" yaml:"normal"`
	Sniper ClassThresholds `toml:"sniper" yaml:"sniper"`
}

// ExecutionConfig holds order submission parameters.
type ExecutionConfig struct {
	MaxAttempts   int      `toml:"max_attempts" yaml:"max_attempts"`
	RetryDelay    duration `toml:"retry_delay" yaml:"retry_delay"`
	MaxConcurrent int64    `toml:"max_concurrent" yaml:"max_concurrent"`
	Comment       string   `toml:"comment" yaml:"comment"`
	Snapshots     bool     `toml:"snapshots" yaml:"snapshots"`
}

// InvalidationConfig controls early exit on reversed signals.
type InvalidationConfig struct {
	Enabled       bool    `toml:"enabled" yaml:"enabled"`
	MinConfidence float64 `toml:"min_confidence" yaml:"min_confidence"`
}

// NewsConfig holds the economic calendar parameters.
type NewsConfig struct {
	Enabled         bool     `toml:"enabled" yaml:"enabled"`
	URL             string   `toml:"url" yaml:"url"`
	RefreshInterval duration `toml:"refresh_interval" yaml:"refresh_interval"`
	BlackoutWindow  duration `toml:"blackout_window" yaml:"blackout_window"`
	Timeout         duration `toml:"timeout" yaml:"timeout"`
	SourceTimezone  string   `toml:"source_timezone" yaml:"source_timezone"`
	Impacts         []string `toml:"impacts" yaml:"impacts"`
}

// BridgeConfig holds the MT5 bridge sidecar connection.
type BridgeConfig struct {
	BaseURL             string   `toml:"base_url" yaml:"base_url"`
	APIKey              string   `toml:"api_key" yaml:"api_key"`
	APISecret           string   `toml:"api_secret" yaml:"api_secret"`
	EncryptedSecretPath string   `toml:"encrypted_secret_path" yaml:"encrypted_secret_path"`
	SecretPassword      string   `toml:"secret_password" yaml:"secret_password"`
	Timeout             duration `toml:"timeout" yaml:"timeout"`
	Timeframe           string   `toml:"timeframe" yaml:"timeframe"`
	Magic               int64    `toml:"magic" yaml:"magic"`
}

// PaperConfig controls simulated execution.
type PaperConfig struct {
	StartingBalance float64 `toml:"starting_balance" yaml:"starting_balance"`
	BridgeData      bool    `toml:"bridge_data" yaml:"bridge_data"`
	Seed            int64   `toml:"seed" yaml:"seed"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled" yaml:"enabled"`
	DSN           string `toml:"dsn" yaml:"dsn"`
	Host          string `toml:"host" yaml:"host"`
	Port          int    `toml:"port" yaml:"port"`
	Database      string `toml:"database" yaml:"database"`
	User          string `toml:"user" yaml:"user"`
	Password      string `toml:"password" yaml:"password"`
	SSLMode       string `toml:"ssl_mode" yaml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns" yaml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns" yaml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations" yaml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled" yaml:"enabled"`
	Addr       string `toml:"addr" yaml:"addr"`
	Password   string `toml:"password" yaml:"password"`
	DB         int    `toml:"db" yaml:"db"`
	PoolSize   int    `toml:"pool_size" yaml:"pool_size"`
	MaxRetries int    `toml:"max_retries" yaml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled" yaml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	Endpoint       string `toml:"endpoint" yaml:"endpoint"`
	Region         string `toml:"region" yaml:"region"`
	Bucket         string `toml:"bucket" yaml:"bucket"`
	AccessKey      string `toml:"access_key" yaml:"access_key"`
	SecretKey      string `toml:"secret_key" yaml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style" yaml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML and YAML
// string decoding (e.g. "5m", "30s").
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

// UnmarshalYAML decodes a scalar duration string.
func (d *duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled           bool     `toml:"enabled" yaml:"enabled"`
	Port              int      `toml:"port" yaml:"port"`
	CORSOrigins       []string `toml:"cors_origins" yaml:"cors_origins"`
	APIKey            string   `toml:"api_key" yaml:"api_key"`
	ManualTradeLimit  int      `toml:"manual_trade_limit" yaml:"manual_trade_limit"`
	ManualTradeWindow duration `toml:"manual_trade_window" yaml:"manual_trade_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token" yaml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id" yaml:"telegram_chat_id"`
	TelegramCommands  bool     `toml:"telegram_commands" yaml:"telegram_commands"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" yaml:"discord_webhook_url"`
	Events            []string `toml:"events" yaml:"events"`
	QueueSize         int      `toml:"queue_size" yaml:"queue_size"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Mode:     "paper",
		LogLevel: "info",
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 10,
			MaxAgeDays: 30,
			Compress:   true,
			RingSize:   100,
		},
		Engine: EngineConfig{
			Interval:          duration{60 * time.Second},
			CandleCount:       100,
			MinCandles:        50,
			HeartbeatInterval: duration{30 * time.Minute},
			CycleLockTTL:      duration{55 * time.Second},
			TrailWorkers:      4,
			AutoStart:         true,
			Strategy:          "ichimoku",
			Symbols: []SymbolConfig{
				{Name: "EURUSD", Class: "forex"},
				{Name: "GBPUSD", Class: "forex"},
				{Name: "USDJPY", Class: "yen_cross"},
				{Name: "USDCAD", Class: "forex"},
				{Name: "USDCHF", Class: "forex"},
				{Name: "AUDUSD", Class: "forex"},
				{Name: "NZDUSD", Class: "forex"},
				{Name: "XAUUSD", Class: "metal"},
			},
			TrendHints: map[string]string{},
		},
		Capacity: CapacityConfig{
			BaseSlots:       7,
			SniperSlots:     5,
			SymbolCapNormal: 2,
			SymbolCapSniper: 3,
			MetalCap:        3,
		},
		Risk: RiskConfig{
			KillSwitchDrawdown: 0.04,
			MinFreeMarginRatio: 0.15,
			StopBufferPoints:   10,
			LotPrecision:       2,
			Metal: ClassProfile{
				RiskFraction:        0.01,
				StopDistance:        5.0,
				TakeProfitDistance:  10.0,
				ContractMultiplier:  100,
				MinLot:              0.20,
				SpreadCeilingPoints: 1000,
				Tiers:               []TierConfig{{Threshold: 5.0, Lock: 0.70}, {Threshold: 2.0, Lock: 0.50}},
			},
			YenCross: ClassProfile{
				RiskFraction:        0.02,
				StopDistance:        0.5,
				TakeProfitDistance:  1.0,
				ContractMultiplier:  1000,
				MinLot:              0.30,
				SpreadCeilingPoints: 60,
				Tiers:               []TierConfig{{Threshold: 0.40, Lock: 0.75}, {Threshold: 0.20, Lock: 0.50}},
			},
			Forex: ClassProfile{
				RiskFraction:        0.02,
				StopDistance:        0.0050,
				TakeProfitDistance:  0.0100,
				ContractMultiplier:  100000,
				MinLot:              0.30,
				SpreadCeilingPoints: 60,
				Tiers:               []TierConfig{{Threshold: 0.0040, Lock: 0.80}, {Threshold: 0.0020, Lock: 0.50}},
			},
		},
		Thresholds: ThresholdConfig{
			Normal: ClassThresholds{Metal: 0.87, YenCross: 0.85, Forex: 0.85},
			Sniper: ClassThresholds{Metal: 0.90, YenCross: 0.90, Forex: 0.90},
		},
		Execution: ExecutionConfig{
			MaxAttempts:   5,
			RetryDelay:    duration{2 * time.Second},
			MaxConcurrent: 4,
			Comment:       "fxbot",
			Snapshots:     true,
		},
		Invalidation: InvalidationConfig{
			Enabled:       true,
			MinConfidence: 0.80,
		},
		News: NewsConfig{
			Enabled:         true,
			URL:             "https://nfs.faireconomy.media/ff_calendar_thisweek.xml",
			RefreshInterval: duration{4 * time.Hour},
			BlackoutWindow:  duration{15 * time.Minute},
			Timeout:         duration{15 * time.Second},
			SourceTimezone:  "America/New_York",
			Impacts:         []string{"High"},
		},
		Bridge: BridgeConfig{
			BaseURL:   "http://127.0.0.1:8787",
			Timeout:   duration{15 * time.Second},
			Timeframe: "H1",
			Magic:     27000,
		},
		Paper: PaperConfig{
			StartingBalance: 10000,
			Seed:            1,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "fxbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "fxbot-snapshots",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:           true,
			Port:              8000,
			CORSOrigins:       []string{"http://localhost:3000", "http://localhost:5173"},
			ManualTradeLimit:  10,
			ManualTradeWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			TelegramCommands: true,
			Events:           []string{"trade_executed", "kill_switch", "margin_alert", "position_invalidated", "error"},
			QueueSize:        64,
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":    true,
	"paper":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Instruments converts the configured symbols into tagged instruments.
// Symbol defaults to Name when unset.
func (c *Config) Instruments() ([]domain.Instrument, error) {
	out := make([]domain.Instrument, 0, len(c.Engine.Symbols))
	for _, s := range c.Engine.Symbols {
		class, err := domain.ParseAssetClass(s.Class)
		if err != nil {
			return nil, fmt.Errorf("symbol %s: %w", s.Name, err)
		}
		sym := s.Symbol
		if sym == "" {
			sym = s.Name
		}
		out = append(out, domain.Instrument{
			Name:   strings.ToUpper(s.Name),
			Symbol: sym,
			Class:  class,
		})
	}
	return out, nil
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, paper, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.Interval.Duration <= 0 {
		errs = append(errs, "engine: interval must be > 0")
	}
	if c.Engine.MinCandles < 1 {
		errs = append(errs, "engine: min_candles must be >= 1")
	}
	if c.Engine.CandleCount < c.Engine.MinCandles {
		errs = append(errs, "engine: candle_count must be >= min_candles")
	}
	if c.Engine.Strategy == "" {
		errs = append(errs, "engine: strategy must be set")
	}
	if len(c.Engine.Symbols) == 0 {
		errs = append(errs, "engine: at least one symbol is required")
	}
	seen := make(map[string]bool, len(c.Engine.Symbols))
	for _, s := range c.Engine.Symbols {
		if s.Name == "" {
			errs = append(errs, "engine: symbol name must not be empty")
			continue
		}
		if seen[strings.ToUpper(s.Name)] {
			errs = append(errs, fmt.Sprintf("engine: duplicate symbol %s", s.Name))
		}
		seen[strings.ToUpper(s.Name)] = true
		if _, err := domain.ParseAssetClass(s.Class); err != nil {
			errs = append(errs, fmt.Sprintf("engine: symbol %s: %v", s.Name, err))
		}
	}
	for name, hint := range c.Engine.TrendHints {
		switch domain.Trend(strings.ToUpper(hint)) {
		case domain.TrendNeutral, domain.TrendBullish, domain.TrendBearish:
		default:
			errs = append(errs, fmt.Sprintf("engine: trend hint for %s must be NEUTRAL, BULLISH or BEARISH", name))
		}
	}

	// Capacity
	if c.Capacity.BaseSlots < 1 {
		errs = append(errs, "capacity: base_slots must be >= 1")
	}
	if c.Capacity.SniperSlots < 0 {
		errs = append(errs, "capacity: sniper_slots must be >= 0")
	}
	if c.Capacity.SymbolCapNormal < 1 || c.Capacity.SymbolCapSniper < c.Capacity.SymbolCapNormal {
		errs = append(errs, "capacity: symbol caps must satisfy 1 <= symbol_cap_normal <= symbol_cap_sniper")
	}

	// Risk
	if c.Risk.KillSwitchDrawdown <= 0 || c.Risk.KillSwitchDrawdown >= 1 {
		errs = append(errs, "risk: kill_switch_drawdown must be in (0, 1)")
	}
	if c.Risk.MinFreeMarginRatio < 0 || c.Risk.MinFreeMarginRatio >= 1 {
		errs = append(errs, "risk: min_free_margin_ratio must be in [0, 1)")
	}
	for _, class := range domain.AssetClasses {
		p := c.Risk.Profile(class)
		if p.RiskFraction <= 0 || p.StopDistance <= 0 || p.TakeProfitDistance <= 0 ||
			p.ContractMultiplier <= 0 || p.MinLot <= 0 {
			errs = append(errs, fmt.Sprintf("risk: %s profile needs positive risk_fraction, stop_distance, take_profit_distance, contract_multiplier and min_lot", class))
		}
		for i, t := range p.Tiers {
			if t.Threshold <= 0 || t.Lock <= 0 || t.Lock >= 1 {
				errs = append(errs, fmt.Sprintf("risk: %s tier %d needs threshold > 0 and lock in (0, 1)", class, i))
			}
		}
	}

	// Thresholds
	for _, class := range domain.AssetClasses {
		n, s := c.Thresholds.Normal.For(class), c.Thresholds.Sniper.For(class)
		if n <= 0 || n > 1 || s <= 0 || s > 1 {
			errs = append(errs, fmt.Sprintf("thresholds: %s thresholds must be in (0, 1]", class))
		}
		if s < n {
			errs = append(errs, fmt.Sprintf("thresholds: sniper threshold for %s (%.2f) must not be below normal (%.2f)", class, s, n))
		}
	}

	// Execution
	if c.Execution.MaxAttempts < 1 {
		errs = append(errs, "execution: max_attempts must be >= 1")
	}
	if c.Execution.MaxConcurrent < 1 {
		errs = append(errs, "execution: max_concurrent must be >= 1")
	}

	// Bridge
	if c.Mode == "live" || (c.Mode == "paper" && c.Paper.BridgeData) {
		if c.Bridge.BaseURL == "" {
			errs = append(errs, "bridge: base_url is required for mode "+c.Mode)
		}
	}
	if c.Bridge.EncryptedSecretPath != "" && c.Bridge.SecretPassword == "" {
		errs = append(errs, "bridge: secret_password is required when encrypted_secret_path is set")
	}
	if c.Mode == "paper" && c.Paper.StartingBalance <= 0 {
		errs = append(errs, "paper: starting_balance must be > 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// News
	if c.News.Enabled {
		if c.News.URL == "" {
			errs = append(errs, "news: url must not be empty when enabled")
		}
		if _, err := time.LoadLocation(c.News.SourceTimezone); err != nil {
			errs = append(errs, fmt.Sprintf("news: source_timezone: %v", err))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
