package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fjod/go_cart/internal/database"
)

type Config struct {
	HTTPPort        string        `yaml:"http_port"`
	GRPCPort        string        `yaml:"grpc_port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	Currency        string        `yaml:"currency"`

	Database DatabaseConfig `yaml:"database"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Auth     AuthConfig     `yaml:"auth"`
	Payment  PaymentConfig  `yaml:"payment"`
	Checkout CheckoutConfig `yaml:"checkout"`
	Log      LogConfig      `yaml:"log"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SQLitePath string `yaml:"sqlite_path"`
}

// MongoConfig with an empty URI selects the in-memory cart repository.
type MongoConfig struct {
	URI    string `yaml:"uri"`
	DBName string `yaml:"db_name"`
}

// RedisConfig with an empty Addr disables the cart cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
}

// KafkaConfig with no brokers disables event publishing.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type PaymentConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	ApprovalPercent int           `yaml:"approval_percent"`
}

type CheckoutConfig struct {
	ReservationTimeout time.Duration `yaml:"reservation_timeout"`
	AuthorizationTTL   time.Duration `yaml:"authorization_ttl"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	OutboxInterval     time.Duration `yaml:"outbox_interval"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() *Config {
	return &Config{
		HTTPPort:        "8080",
		GRPCPort:        "50056",
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    1 << 20, // 1MB
		Currency:        "USD",
		Database: DatabaseConfig{
			Driver:     database.DriverSQLite,
			Host:       "localhost",
			Port:       5432,
			User:       "postgres",
			Password:   "postgres",
			Name:       "ecommerce",
			SQLitePath: "checkout.db",
		},
		Mongo: MongoConfig{DBName: "cartdb"},
		Kafka: KafkaConfig{Topic: "checkout-outbox"},
		Payment: PaymentConfig{
			Timeout:         5 * time.Second,
			RateLimit:       50,
			ApprovalPercent: 95,
		},
		Checkout: CheckoutConfig{
			ReservationTimeout: 15 * time.Minute,
			AuthorizationTTL:   24 * time.Hour,
			SweepInterval:      30 * time.Second,
			OutboxInterval:     time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the optional YAML file at path, then applies environment
// overrides on top of it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.GRPCPort = getEnv("GRPC_PORT", c.GRPCPort)
	c.Currency = getEnv("CURRENCY", c.Currency)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.SQLitePath = getEnv("SQLITE_PATH", c.Database.SQLitePath)

	c.Mongo.URI = getEnv("MONGO_URI", c.Mongo.URI)
	c.Mongo.DBName = getEnv("MONGO_DB_NAME", c.Mongo.DBName)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.WebhookSecret = getEnv("WEBHOOK_SECRET", c.Auth.WebhookSecret)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(envInt("DB_PORT", &c.Database.Port))
	collect(envInt("PAYMENT_APPROVAL_PERCENT", &c.Payment.ApprovalPercent))
	collect(envFloat("PAYMENT_RATE_LIMIT", &c.Payment.RateLimit))
	collect(envBool("LOG_DEVELOPMENT", &c.Log.Development))
	collect(envDuration("REQUEST_TIMEOUT", &c.RequestTimeout))
	collect(envDuration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout))
	collect(envDuration("PAYMENT_TIMEOUT", &c.Payment.Timeout))
	collect(envDuration("RESERVATION_TIMEOUT", &c.Checkout.ReservationTimeout))
	collect(envDuration("AUTHORIZATION_TTL", &c.Checkout.AuthorizationTTL))
	collect(envDuration("SWEEP_INTERVAL", &c.Checkout.SweepInterval))
	collect(envDuration("OUTBOX_INTERVAL", &c.Checkout.OutboxInterval))
	return errors.Join(errs...)
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case database.DriverPostgres, database.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver))
	}
	if c.Currency == "" {
		errs = append(errs, errors.New("CURRENCY is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	for name, d := range map[string]time.Duration{
		"REQUEST_TIMEOUT":     c.RequestTimeout,
		"SHUTDOWN_TIMEOUT":    c.ShutdownTimeout,
		"PAYMENT_TIMEOUT":     c.Payment.Timeout,
		"RESERVATION_TIMEOUT": c.Checkout.ReservationTimeout,
		"AUTHORIZATION_TTL":   c.Checkout.AuthorizationTTL,
		"SWEEP_INTERVAL":      c.Checkout.SweepInterval,
		"OUTBOX_INTERVAL":     c.Checkout.OutboxInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Payment.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("PAYMENT_RATE_LIMIT must be positive, got %v", c.Payment.RateLimit))
	}
	if c.Payment.ApprovalPercent < 0 || c.Payment.ApprovalPercent > 100 {
		errs = append(errs, fmt.Errorf("PAYMENT_APPROVAL_PERCENT must be within 0..100, got %d", c.Payment.ApprovalPercent))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) Credentials() *database.Credentials {
	return &database.Credentials{
		Driver:     c.Database.Driver,
		Host:       c.Database.Host,
		Port:       c.Database.Port,
		User:       c.Database.User,
		Password:   c.Database.Password,
		DBName:     c.Database.Name,
		SQLitePath: c.Database.SQLitePath,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
