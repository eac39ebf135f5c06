// Package config centralizes how the service reads its settings. Values come
// from flags, then AFE_* environment variables, then an optional .env file,
// then defaults.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config represents runtime configuration for the API, the worker and the CLI.
type Config struct {
	Address     string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool
	RawBucket   string
	FinalBucket string

	MaxFileSize   int64
	JWTSecret     string
	SigningSecret []byte
	SignedURLTTL  time.Duration
	AppURL        string
	PublicURL     string
	Timezone      string

	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	MailFrom         string
	DistributionList []string

	LogLevel          string
	Environment       string
	WorkerConcurrency int
}

const (
	envPrefix = "AFE"

	defaultAddress     = ":8080"
	defaultMaxFileSize = 50 << 20 // 50 MiB
	defaultSignedTTL   = 7 * 24 * time.Hour
	defaultAppURL      = "http://localhost:3000"
	defaultPublicURL   = "http://localhost:8080"
	defaultMailFrom    = "noreply@example.com"
	defaultWorkerCount = 4
	devJWTSecret       = "dev-only-jwt-secret"
)

// Load reads configuration from args, the environment and .env. A missing
// .env file is not an error.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	flags := pflag.NewFlagSet("afesign", pflag.ContinueOnError)
	flags.String("address", defaultAddress, "HTTP listen address")
	flags.String("database-url", "", "Postgres DSN; empty runs on in-memory storage")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("environment", "development", "Runtime environment (development, production)")
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	for _, name := range []string{"address", "database-url", "log-level", "environment"} {
		_ = v.BindPFlag(strings.ReplaceAll(name, "-", "_"), flags.Lookup(name))
	}

	cfg := &Config{
		Address:           v.GetString("address"),
		DatabaseURL:       v.GetString("database_url"),
		RedisAddr:         v.GetString("redis_addr"),
		RedisPassword:     v.GetString("redis_password"),
		RedisDB:           v.GetInt("redis_db"),
		S3Endpoint:        v.GetString("s3_endpoint"),
		S3AccessKey:       v.GetString("s3_access_key"),
		S3SecretKey:       v.GetString("s3_secret_key"),
		S3Region:          v.GetString("s3_region"),
		S3UseSSL:          v.GetBool("s3_use_ssl"),
		RawBucket:         v.GetString("raw_bucket"),
		FinalBucket:       v.GetString("final_bucket"),
		MaxFileSize:       v.GetInt64("max_file_bytes"),
		JWTSecret:         v.GetString("jwt_secret"),
		SigningSecret:     parseSecret(v.GetString("signing_secret")),
		SignedURLTTL:      v.GetDuration("signed_url_ttl"),
		AppURL:            strings.TrimRight(v.GetString("app_url"), "/"),
		PublicURL:         strings.TrimRight(v.GetString("public_url"), "/"),
		Timezone:          v.GetString("timezone"),
		SMTPHost:          v.GetString("smtp_host"),
		SMTPPort:          v.GetInt("smtp_port"),
		SMTPUsername:      v.GetString("smtp_username"),
		SMTPPassword:      v.GetString("smtp_password"),
		MailFrom:          v.GetString("mail_from"),
		DistributionList:  parseList(v.GetString("distribution_list")),
		LogLevel:          v.GetString("log_level"),
		Environment:       v.GetString("environment"),
		WorkerConcurrency: v.GetInt("worker_concurrency"),
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.JWTSecret == "" && !cfg.Production() {
		cfg.JWTSecret = devJWTSecret
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("address", defaultAddress)
	v.SetDefault("redis_db", 0)
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("raw_bucket", "afe-originals")
	v.SetDefault("final_bucket", "afe-final")
	v.SetDefault("max_file_bytes", defaultMaxFileSize)
	v.SetDefault("signed_url_ttl", defaultSignedTTL)
	v.SetDefault("app_url", defaultAppURL)
	v.SetDefault("public_url", defaultPublicURL)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("mail_from", defaultMailFrom)
	v.SetDefault("log_level", "info")
	v.SetDefault("environment", "development")
	v.SetDefault("worker_concurrency", defaultWorkerCount)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.New("address is required")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.MaxFileSize)
	}
	if c.SignedURLTTL <= 0 {
		return fmt.Errorf("signed url ttl must be positive, got %s", c.SignedURLTTL)
	}
	if c.JWTSecret == "" {
		return errors.New("jwt secret is required in production")
	}
	if c.SMTPHost != "" && (c.SMTPPort <= 0 || c.SMTPPort > 65535) {
		return fmt.Errorf("invalid smtp port %d", c.SMTPPort)
	}
	if c.S3Endpoint != "" && (c.RawBucket == "" || c.FinalBucket == "") {
		return errors.New("raw and final buckets are required with s3")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("worker concurrency must be positive, got %d", c.WorkerConcurrency)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Production reports whether the service runs in production mode.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// Location returns the zone used to print signing dates.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// UsesDatabase reports whether Postgres backs persistence.
func (c *Config) UsesDatabase() bool { return c.DatabaseURL != "" }

// UsesQueue reports whether Redis-backed background tasks are available.
func (c *Config) UsesQueue() bool { return c.RedisAddr != "" }

// UsesS3 reports whether MinIO/S3 backs blob storage.
func (c *Config) UsesS3() bool { return c.S3Endpoint != "" }

// MailEnabled reports whether outbound SMTP is configured.
func (c *Config) MailEnabled() bool { return c.SMTPHost != "" }

func parseList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseSecret(v string) []byte {
	if v == "" {
		return nil
	}
	return []byte(v)
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(hex.EncodeToString([]byte("fallbacksecret")))
	}
	return buf
}
