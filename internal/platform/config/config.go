// Package config loads runtime configuration from CUSTODIAN_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration.
type Config struct {
	Server      Server        `envPrefix:"HTTP_"`
	Log         Log           `envPrefix:"LOG_"`
	Database    Database      `envPrefix:"DATABASE_"`
	Redis       RedisConfig   `envPrefix:"REDIS_"`
	Kafka       Kafka         `envPrefix:"KAFKA_"`
	S3          S3            `envPrefix:"S3_"`
	Forms       Forms         `envPrefix:"FORM_"`
	Outbox      Outbox        `envPrefix:"OUTBOX_"`
	Retry       Retry         `envPrefix:"RETRY_"`
	OTel        OTel          `envPrefix:"OTEL_"`
	LockTimeout time.Duration `env:"LOCK_TIMEOUT" envDefault:"5s"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Database is empty when running fully in memory.
type Database struct {
	URL          string        `env:"URL"`
	MaxOpenConns int           `env:"MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLife  time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig enables the distributed aggregate lock when URL is set.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
	LockLease    time.Duration `env:"LOCK_LEASE" envDefault:"10s"`
}

// Kafka enables the notification relay sink when Brokers is non-empty.
type Kafka struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"custodian.notifications"`
}

// S3 enables the S3 file store when Bucket is set.
type S3 struct {
	Bucket   string `env:"BUCKET"`
	Region   string `env:"REGION" envDefault:"us-east-1"`
	Endpoint string `env:"ENDPOINT"`
	Prefix   string `env:"PREFIX" envDefault:"custody-forms"`
}

// Forms holds chain-of-custody form defaults.
type Forms struct {
	BaseURL            string `env:"BASE_URL" envDefault:"http://localhost:8080/v1/custody/forms/open"`
	SigningKey         string `env:"SIGNING_KEY" envDefault:"dev-form-signing-key-change-me"`
	RequiredSignatures int    `env:"REQUIRED_SIGNATURES" envDefault:"2"`
	ExpirationDays     int    `env:"EXPIRATION_DAYS" envDefault:"7"`
}

type Outbox struct {
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"100"`
}

// Retry bounds the transport-level retry of version conflicts.
type Retry struct {
	MaxAttempts     int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	InitialInterval time.Duration `env:"INITIAL_INTERVAL" envDefault:"25ms"`
	MaxInterval     time.Duration `env:"MAX_INTERVAL" envDefault:"500ms"`
}

// OTel tracing is off unless Endpoint is set.
type OTel struct {
	Endpoint    string `env:"ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"custodian"`
}

// Load parses CUSTODIAN_* variables into a Config.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses from the given environment map, or the process environment
// when environ is nil.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Prefix: "CUSTODIAN_"}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Forms.RequiredSignatures < 1 {
		return fmt.Errorf("CUSTODIAN_FORM_REQUIRED_SIGNATURES must be at least 1")
	}
	if c.Forms.ExpirationDays < 1 {
		return fmt.Errorf("CUSTODIAN_FORM_EXPIRATION_DAYS must be at least 1")
	}
	if c.Forms.SigningKey == "" {
		return fmt.Errorf("CUSTODIAN_FORM_SIGNING_KEY is required")
	}
	return nil
}
