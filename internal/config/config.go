package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	svix "github.com/svix/svix-webhooks/go"
)

type Config struct {
	DatabaseDSN   string
	MigrationsDir string
	MigrationsDSN string

	KafkaBrokers []string
	UpdatesTopic string

	JWTPublicKeyPath string
	JWTSecret        string
	WebhookSecret    string

	HealthAddress  string
	CORSOrigins    []string
	RequestTimeout time.Duration

	DefaultPageSize uint64
	MaxPageSize     uint64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("UPDATES_TOPIC", "chat-updates")
	v.SetDefault("HEALTH_ADDRESS", ":9090")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("REQUEST_TIMEOUT", 10*time.Second)
	v.SetDefault("DEFAULT_PAGE_SIZE", 10)
	v.SetDefault("MAX_PAGE_SIZE", 100)
}

// LoadDotEnv loads variables from files into the process environment.
// Missing files are fine, variables may come from the environment itself.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads the configuration from v, which should already be bound to
// the environment.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{
		DatabaseDSN:      v.GetString("DB_DSN"),
		MigrationsDir:    v.GetString("MIGRATIONS_DIR"),
		MigrationsDSN:    v.GetString("MIGRATIONS_DSN"),
		KafkaBrokers:     splitList(v.GetString("KAFKA_BROKERS")),
		UpdatesTopic:     v.GetString("UPDATES_TOPIC"),
		JWTPublicKeyPath: v.GetString("JWT_PUBLIC_KEY_PATH"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		WebhookSecret:    v.GetString("WEBHOOK_SECRET"),
		HealthAddress:    v.GetString("HEALTH_ADDRESS"),
		CORSOrigins:      splitList(v.GetString("CORS_ORIGINS")),
		RequestTimeout:   v.GetDuration("REQUEST_TIMEOUT"),
		DefaultPageSize:  v.GetUint64("DEFAULT_PAGE_SIZE"),
		MaxPageSize:      v.GetUint64("MAX_PAGE_SIZE"),
	}

	if cfg.DatabaseDSN == "" {
		return nil, errors.New("DB_DSN must be defined")
	}
	if cfg.JWTPublicKeyPath == "" && cfg.JWTSecret == "" {
		return nil, errors.New("either JWT_PUBLIC_KEY_PATH or JWT_SECRET must be defined")
	}
	if cfg.MigrationsDSN == "" {
		cfg.MigrationsDSN = cfg.DatabaseDSN
	}
	if cfg.RequestTimeout <= 0 {
		return nil, errors.New("REQUEST_TIMEOUT must be positive")
	}
	if cfg.MaxPageSize == 0 || cfg.DefaultPageSize == 0 || cfg.DefaultPageSize > cfg.MaxPageSize {
		return nil, errors.New("page sizes must satisfy 0 < DEFAULT_PAGE_SIZE <= MAX_PAGE_SIZE")
	}
	if cfg.WebhookSecret != "" {
		if _, err := svix.NewWebhook(cfg.WebhookSecret); err != nil {
			return nil, fmt.Errorf("WEBHOOK_SECRET is not a valid signing secret: %w", err)
		}
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
