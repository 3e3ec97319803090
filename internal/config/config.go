package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "SEALFLOW"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultLogLevel            = "info"
	defaultMigrationsURL       = "file://migrations"
	defaultS3Region            = "us-east-1"
	defaultReminderPoll        = time.Minute
	defaultSessionCookieName   = "sealflow_session"
	defaultTokenValidityDays   = 30
	defaultReminderSendTimeout = 10 * time.Second
)

// AppConfig captures runtime configuration for the signing API server.
type AppConfig struct {
	HTTPAddress   string
	DatabaseDSN   string
	MigrationsURL string
	LogLevel      string

	SessionSecret     string
	SessionCookieName string

	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3EncryptionKey string

	NATSURL string

	ReminderPollInterval time.Duration
	ReminderSendTimeout  time.Duration
	TokenValidityDays    int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("database.migrations_url", defaultMigrationsURL)
	configViper.SetDefault("session.cookie_name", defaultSessionCookieName)
	configViper.SetDefault("s3.region", defaultS3Region)
	configViper.SetDefault("reminder.poll_interval", defaultReminderPoll)
	configViper.SetDefault("reminder.send_timeout", defaultReminderSendTimeout)
	configViper.SetDefault("token.validity_days", defaultTokenValidityDays)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		DatabaseDSN:          configViper.GetString("database.dsn"),
		MigrationsURL:        configViper.GetString("database.migrations_url"),
		LogLevel:             configViper.GetString("log.level"),
		SessionSecret:        configViper.GetString("session.secret"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		S3Bucket:             configViper.GetString("s3.bucket"),
		S3Region:             configViper.GetString("s3.region"),
		S3Endpoint:           configViper.GetString("s3.endpoint"),
		S3EncryptionKey:      configViper.GetString("s3.encryption_key"),
		NATSURL:              configViper.GetString("nats.url"),
		ReminderPollInterval: configViper.GetDuration("reminder.poll_interval"),
		ReminderSendTimeout:  configViper.GetDuration("reminder.send_timeout"),
		TokenValidityDays:    configViper.GetInt("token.validity_days"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		return fmt.Errorf("session.secret is required")
	}
	if c.S3Bucket != "" && len(c.S3EncryptionKey) != 64 {
		return fmt.Errorf("s3.encryption_key must be 64 hex characters when s3.bucket is set")
	}
	if c.ReminderPollInterval <= 0 {
		return fmt.Errorf("reminder.poll_interval must be positive")
	}
	if c.TokenValidityDays <= 0 {
		return fmt.Errorf("token.validity_days must be positive")
	}
	return nil
}
