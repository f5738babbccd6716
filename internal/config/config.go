// Package config defines the process-wide configuration for the moodring
// trading core. Config is loaded from a YAML file (default: configs/config.yaml)
// with any field overridable via MOODRING_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Fees    FeesConfig    `mapstructure:"fees"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig describes the HTTP/WebSocket listener. cmd/engine and
// internal/api do not read these fields: the listen port comes from the PORT
// environment variable and CORS origins from ALLOWED_ORIGINS.
type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	ReadTimeoutSec  int      `mapstructure:"read_timeout_sec"`
	WriteTimeoutSec int      `mapstructure:"write_timeout_sec"`
}

// DBConfig is the pgxpool connection configuration.
type DBConfig struct {
	DSN            string `mapstructure:"dsn"`
	MaxConns       int32  `mapstructure:"max_conns"`
	LockTimeoutMs  int    `mapstructure:"lock_timeout_ms"`
	StatementCache bool   `mapstructure:"statement_cache"`
}

// FeesConfig holds the three fee rates, in parts-per-million of gross trade
// amount (see internal/fees).
type FeesConfig struct {
	ProtocolPPM int64 `mapstructure:"protocol_ppm"`
	CreatorPPM  int64 `mapstructure:"creator_ppm"`
	LPPPM       int64 `mapstructure:"lp_ppm"`
}

// RiskConfig tunes the advisory risk controller (internal/risk). Crossing
// these thresholds never blocks a trade; each hit only produces a
// SuspiciousTrade record.
type RiskConfig struct {
	SuspiciousNotionalUnits       int64 `mapstructure:"suspicious_notional_units"`
	CircuitBreakerThreshold       int64 `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerWindowSec       int   `mapstructure:"circuit_breaker_window_sec"`
	MaxMarketVolatilityThresholdBps int64 `mapstructure:"max_market_volatility_threshold_bps"`
	ShadowMode                    bool  `mapstructure:"shadow_mode"`
}

// LimitsConfig holds hard, enforced trade and market-creation limits. The
// per-trade ceiling/floor bound a single call; the per-user/per-option
// ceilings bound cumulative exposure, checked identically by Buy and Sell.
type LimitsConfig struct {
	MinLiquidityParameter int64 `mapstructure:"min_liquidity_parameter"`
	MaxLiquidityParameter int64 `mapstructure:"max_liquidity_parameter"`
	MinTradeNotionalUnits int64 `mapstructure:"min_trade_notional_units"`
	MaxTradeNotionalUnits int64 `mapstructure:"max_trade_notional_units"`
	MaxUserMarketNotionalUnits int64 `mapstructure:"max_user_market_notional_units"`
	MaxOptionNotionalUnits     int64 `mapstructure:"max_option_notional_units"`
	MaxOptionsPerMarket   int   `mapstructure:"max_options_per_market"`
	RateLimitPerMinute    int   `mapstructure:"rate_limit_per_minute"`
}

// AuthConfig holds a bearer-token secret that Validate requires to be set.
// internal/api's auth middleware does not read it; it takes its token from
// the API_AUTH_TOKEN environment variable.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with MOODRING_* env var overrides
// (e.g. db.dsn -> MOODRING_DB_DSN).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MOODRING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_sec", 15)
	v.SetDefault("server.write_timeout_sec", 15)
	v.SetDefault("db.max_conns", 20)
	v.SetDefault("db.lock_timeout_ms", 5000)
	v.SetDefault("fees.protocol_ppm", 20_000)
	v.SetDefault("fees.creator_ppm", 10_000)
	v.SetDefault("fees.lp_ppm", 5_000)
	v.SetDefault("risk.suspicious_notional_units", 50_000_000_000)
	v.SetDefault("risk.circuit_breaker_threshold", 500_000_000_000)
	v.SetDefault("risk.circuit_breaker_window_sec", 3600)
	v.SetDefault("risk.max_market_volatility_threshold_bps", 500)
	v.SetDefault("risk.shadow_mode", false)
	v.SetDefault("limits.min_liquidity_parameter", 1_000_000)
	v.SetDefault("limits.max_liquidity_parameter", 1_000_000_000_000)
	v.SetDefault("limits.min_trade_notional_units", 10_000)
	v.SetDefault("limits.max_trade_notional_units", 1_000_000_000)
	v.SetDefault("limits.max_user_market_notional_units", 10_000_000_000)
	v.SetDefault("limits.max_option_notional_units", 100_000_000_000)
	v.SetDefault("limits.max_options_per_market", 32)
	v.SetDefault("limits.rate_limit_per_minute", 120)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required (set MOODRING_DB_DSN)")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (set MOODRING_AUTH_JWT_SECRET)")
	}
	if c.Fees.ProtocolPPM < 0 || c.Fees.CreatorPPM < 0 || c.Fees.LPPPM < 0 {
		return fmt.Errorf("fees.*_ppm must be non-negative")
	}
	if c.Limits.MinLiquidityParameter <= 0 {
		return fmt.Errorf("limits.min_liquidity_parameter must be > 0")
	}
	if c.Limits.MaxLiquidityParameter < c.Limits.MinLiquidityParameter {
		return fmt.Errorf("limits.max_liquidity_parameter must be >= limits.min_liquidity_parameter")
	}
	if c.Limits.MaxTradeNotionalUnits <= 0 {
		return fmt.Errorf("limits.max_trade_notional_units must be > 0")
	}
	if c.Limits.MinTradeNotionalUnits < 0 || c.Limits.MinTradeNotionalUnits > c.Limits.MaxTradeNotionalUnits {
		return fmt.Errorf("limits.min_trade_notional_units must be between 0 and limits.max_trade_notional_units")
	}
	return nil
}
