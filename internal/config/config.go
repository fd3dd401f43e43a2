package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

const (
	DispatchModePool   = "pool"
	DispatchModeOutbox = "outbox"
)

// ---- Root ----

type Config struct {
	HTTP        HTTPConfig        `mapstructure:"http"`
	Log         LogConfig         `mapstructure:"log"`
	MySQL       DatabaseConfig    `mapstructure:"mysql"`
	ClickHouse  DatabaseConfig    `mapstructure:"clickhouse"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Dispatch    DispatchConfig    `mapstructure:"dispatch"`
	Mailer      MailerConfig      `mapstructure:"mailer"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	APIKeyCache APIKeyCacheConfig `mapstructure:"api_key_cache"`
	Pricing     PricingConfig     `mapstructure:"pricing"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
	MaxWaitMS      int      `mapstructure:"max_wait_ms"`
}

type DispatchConfig struct {
	Mode          string        `mapstructure:"mode"` // pool | outbox
	WorkerCount   int           `mapstructure:"worker_count"`
	QueueSize     int           `mapstructure:"queue_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	BatchWait     time.Duration `mapstructure:"batch_wait"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
	RelayInterval time.Duration `mapstructure:"relay_interval"`
}

type MailerConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	DefaultPort   int           `mapstructure:"default_port"`
	Timeout       time.Duration `mapstructure:"timeout"`
	FailThreshold int           `mapstructure:"fail_threshold"`
	OpenFor       time.Duration `mapstructure:"open_for"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

type APIKeyCacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type PricingConfig struct {
	Free      int64 `mapstructure:"free"`
	Developer int64 `mapstructure:"developer"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (MAILGW_*).
// A .env file in the working directory is loaded into the environment first.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("merge %s: %w", path, err)
		}
	}

	// env override (MAILGW_MYSQL_DSN, ...)
	v.SetEnvPrefix("MAILGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Dispatch.Mode != DispatchModePool && c.Dispatch.Mode != DispatchModeOutbox {
		errs = append(errs, fmt.Errorf("dispatch.mode must be %q or %q, got %q", DispatchModePool, DispatchModeOutbox, c.Dispatch.Mode))
	}
	if c.Dispatch.WorkerCount <= 0 {
		errs = append(errs, errors.New("dispatch.worker_count must be positive"))
	}
	if c.Dispatch.QueueSize <= 0 {
		errs = append(errs, errors.New("dispatch.queue_size must be positive"))
	}
	if c.Pricing.Free <= 0 || c.Pricing.Developer <= 0 {
		errs = append(errs, fmt.Errorf("invalid pricing: free=%d developer=%d", c.Pricing.Free, c.Pricing.Developer))
	}
	if c.Mailer.MaxAttempts <= 0 {
		errs = append(errs, errors.New("mailer.max_attempts must be positive"))
	}
	return errors.Join(errs...)
}
