package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`

	Transfer      TransferConfig      `mapstructure:"transfer"`
	Settlement    SettlementConfig    `mapstructure:"settlement"`
	Collaborators CollaboratorsConfig `mapstructure:"collaborators"`
	Alert         AlertConfig         `mapstructure:"alert"`
	Storage       StorageConfig       `mapstructure:"storage"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	// StatementTimeout bounds every statement, including lock waits on wallet rows.
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Timeout bounds dial, read and write. Idempotency lookups that exceed it
	// fall through to the ledger.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig verifies actor tokens issued by the marketplace auth service.
type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

type TransferConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`     // whole split transfer
	LegTimeout     time.Duration `mapstructure:"leg_timeout"` // one seller leg
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type SettlementConfig struct {
	AutoConfirmAfter time.Duration `mapstructure:"auto_confirm_after"`
	SweepSchedule    string        `mapstructure:"sweep_schedule"` // cron spec with seconds field
	BatchSize        int           `mapstructure:"batch_size"`
}

// CollaboratorsConfig holds base URLs of the services this one calls out to.
type CollaboratorsConfig struct {
	SellerDirectoryURL string        `mapstructure:"seller_directory_url"`
	OrderServiceURL    string        `mapstructure:"order_service_url"`
	InventoryURL       string        `mapstructure:"inventory_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// AlertConfig configures the operator webhook for manual-intervention events.
// An empty WebhookURL disables delivery; alerts are still logged.
type AlertConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Secret     string `mapstructure:"secret"`
	MaxRetries int    `mapstructure:"max_retries"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: MPW_ (Marketplace Wallet).
// Nested keys use underscore: MPW_DATABASE_HOST, MPW_TRANSFER_TIMEOUT, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "marketplace_wallet")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.statement_timeout", "5s")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.timeout", "500ms")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "marketplace-auth")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("transfer.timeout", "10s")
	v.SetDefault("transfer.leg_timeout", "3s")
	v.SetDefault("transfer.idempotency_ttl", "24h")
	v.SetDefault("settlement.auto_confirm_after", "72h")
	v.SetDefault("settlement.sweep_schedule", "0 */5 * * * *")
	v.SetDefault("settlement.batch_size", 100)
	v.SetDefault("collaborators.seller_directory_url", "http://localhost:8081")
	v.SetDefault("collaborators.order_service_url", "http://localhost:8082")
	v.SetDefault("collaborators.inventory_url", "http://localhost:8083")
	v.SetDefault("collaborators.timeout", "5s")
	v.SetDefault("alert.webhook_url", "")
	v.SetDefault("alert.secret", "")
	v.SetDefault("alert.max_retries", 3)
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("rate_limit.limit", 100)
	v.SetDefault("rate_limit.window", "1m")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: MPW_DATABASE_HOST -> database.host
	v.SetEnvPrefix("MPW")
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver must be postgres or memory, got %q", c.Storage.Driver)
	}
	if c.Transfer.Timeout <= 0 || c.Transfer.LegTimeout <= 0 {
		return fmt.Errorf("transfer timeouts must be positive")
	}
	if c.Transfer.LegTimeout > c.Transfer.Timeout {
		return fmt.Errorf("transfer.leg_timeout (%s) exceeds transfer.timeout (%s)", c.Transfer.LegTimeout, c.Transfer.Timeout)
	}
	if c.Settlement.BatchSize <= 0 {
		return fmt.Errorf("settlement.batch_size must be positive")
	}
	return nil
}
