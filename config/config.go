package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, memory
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"` // apply embedded migrations on startup
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// MigrateURL returns the connection string in the form golang-migrate's pgx/v5 driver expects.
func (d DatabaseConfig) MigrateURL() string {
	return "pgx5" + strings.TrimPrefix(d.DSN(), "postgres")
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	// Counters degrade to unthrottled rather than block a request for long.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	OpTimeout   time.Duration `mapstructure:"op_timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// WalletConfig carries the coin economy knobs. Amounts are decimal strings.
type WalletConfig struct {
	InitialBalance      string        `mapstructure:"initial_balance"`
	DailyReward         string        `mapstructure:"daily_reward"`
	DailyRewardCooldown time.Duration `mapstructure:"daily_reward_cooldown"`
	PinMaxAttempts      int           `mapstructure:"pin_max_attempts"`
	PinLockoutWindow    time.Duration `mapstructure:"pin_lockout_window"`
	IdempotencyTTL      time.Duration `mapstructure:"idempotency_ttl"`
}

// InitialBalanceAmount parses InitialBalance.
func (w WalletConfig) InitialBalanceAmount() (decimal.Decimal, error) {
	return parseAmount("wallet.initial_balance", w.InitialBalance)
}

// DailyRewardAmount parses DailyReward.
func (w WalletConfig) DailyRewardAmount() (decimal.Decimal, error) {
	return parseAmount("wallet.daily_reward", w.DailyReward)
}

func parseAmount(key, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}

// NATSConfig configures ledger event publishing. An empty URL disables it.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type JobsConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	IdempotencyRetention time.Duration `mapstructure:"idempotency_retention"`
	PurgeSchedule        string        `mapstructure:"purge_schedule"`
	ReconcileSchedule    string        `mapstructure:"reconcile_schedule"`
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unsupported value %q", c.Database.Driver))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret: required"))
	}
	if _, err := c.Wallet.InitialBalanceAmount(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Wallet.DailyRewardAmount(); err != nil {
		errs = append(errs, err)
	}
	if c.Wallet.PinMaxAttempts < 1 {
		errs = append(errs, errors.New("wallet.pin_max_attempts: must be at least 1"))
	}
	return errors.Join(errs...)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: LMS_.
// Nested keys use underscore: LMS_DATABASE_HOST, LMS_WALLET_DAILY_REWARD, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "learncoins")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", "2s")
	v.SetDefault("redis.op_timeout", "500ms")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "learncoins")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("wallet.initial_balance", "500")
	v.SetDefault("wallet.daily_reward", "100")
	v.SetDefault("wallet.daily_reward_cooldown", "24h")
	v.SetDefault("wallet.pin_max_attempts", 5)
	v.SetDefault("wallet.pin_lockout_window", "15m")
	v.SetDefault("wallet.idempotency_ttl", "24h")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "ledger")
	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.idempotency_retention", "72h")
	v.SetDefault("jobs.purge_schedule", "@hourly")
	v.SetDefault("jobs.reconcile_schedule", "0 3 * * *")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: LMS_DATABASE_HOST -> database.host
	v.SetEnvPrefix("LMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
