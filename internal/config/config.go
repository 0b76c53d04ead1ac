package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Fund      FundDefaults    `mapstructure:"fund"`
	Rebalance RebalanceConfig `mapstructure:"rebalance"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	// ReadOnly 开启后只允许查询类请求 (维护模式)
	ReadOnly bool `mapstructure:"read_only"`
}

type AuthConfig struct {
	// RequireCallerID 为 false 时允许匿名调用走默认身份 (本地开发用)
	RequireCallerID bool   `mapstructure:"require_caller_id"`
	DefaultCallerID string `mapstructure:"default_caller_id"`
	AdminKey        string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// PriceTTLSeconds caps how long a cached oracle price survives.
	PriceTTLSeconds int `mapstructure:"price_ttl_seconds"`
}

type OracleConfig struct {
	FeedURL               string `mapstructure:"feed_url"` // websocket price feed; empty disables the stream
	MaxPriceAge           int64  `mapstructure:"max_price_age"`
	UpdateFrequency       int64  `mapstructure:"update_frequency"`
	DeviationThresholdBps uint32 `mapstructure:"deviation_threshold_bps"`
}

type FundDefaults struct {
	// Defaults applied when initialize omits optional fields; the
	// initialize request itself remains authoritative.
	SettlementAsset string `mapstructure:"settlement_asset"`
}

type RebalanceConfig struct {
	MinRebalanceAmount    string `mapstructure:"min_rebalance_amount"`
	MaxSlippageBps        uint32 `mapstructure:"max_slippage_bps"`
	FrequencySeconds      int64  `mapstructure:"frequency_seconds"`
	MaxTradesPerRebalance int    `mapstructure:"max_trades_per_rebalance"`
	// AutoSchedule is a cron expression driving automatic rebalance
	// checks; empty disables the scheduler.
	AutoSchedule string `mapstructure:"auto_schedule"`
	AutoProfile  string `mapstructure:"auto_profile"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type RateLimitConfig struct {
	QPS   float64 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

type AuditConfig struct {
	Dir string `mapstructure:"dir"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. FUNDGATE_DATABASE_DSN
	viper.SetEnvPrefix("fundgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.read_only", false)
	viper.SetDefault("auth.require_caller_id", false)
	viper.SetDefault("auth.default_caller_id", "local-dev")
	viper.SetDefault("auth.admin_key", "")
	viper.SetDefault("redis.price_ttl_seconds", 300)
	viper.SetDefault("oracle.max_price_age", 300)
	viper.SetDefault("oracle.update_frequency", 60)
	viper.SetDefault("oracle.deviation_threshold_bps", 1000)
	viper.SetDefault("fund.settlement_asset", "KALE")
	viper.SetDefault("rebalance.min_rebalance_amount", "1000000000")
	viper.SetDefault("rebalance.max_slippage_bps", 200)
	viper.SetDefault("rebalance.frequency_seconds", 3600)
	viper.SetDefault("rebalance.max_trades_per_rebalance", 10)
	viper.SetDefault("rebalance.auto_schedule", "")
	viper.SetDefault("rebalance.auto_profile", "moderate")
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("rate_limit.qps", 10)
	viper.SetDefault("rate_limit.burst", 20)
	viper.SetDefault("audit.dir", "./logs")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
