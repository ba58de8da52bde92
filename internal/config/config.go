// Package config loads configuration from environment variables with
// sensible defaults and validates it before the engine starts.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FILE: Optional log file path (default: stdout)
//
// Database Configuration:
//   - DATABASE_TYPE: "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./automation.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER,
//     POSTGRES_PASSWORD, POSTGRES_SSL_MODE: PostgreSQL connection details
//
// Security Configuration:
//   - JWT_SECRET: JWT signing secret (required, minimum 32 characters)
//
// Email (SMTP):
//   - SMTP_ENABLED, SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD,
//     SMTP_FROM, SMTP_FROM_NAME, SMTP_USE_TLS, SMTP_USE_SSL
//
// Twilio (SMS, WhatsApp, voice):
//   - TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_PHONE,
//     TWILIO_WHATSAPP_FROM, TWILIO_API_BASE_URL
//
// Engine Settings:
//   - CHANNEL_TIMEOUT: Per-attempt dispatch timeout (default: 15s)
//   - ESCALATION_SWEEP_INTERVAL: Escalation sweep cadence (default: 1m)
//   - DEFERRED_SWEEP_INTERVAL: Deferred firing sweep cadence (default: 1m)
//   - BIRTHDAY_SWEEP_CRON: Daily trigger sweep schedule (default: "0 8 * * *")
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"church-automation/internal/common/utils"
)

// Config holds all configuration values for the automation engine.
type Config struct {
	// Application settings
	Port     string
	LogLevel string
	LogFile  string

	// Database configuration
	DatabaseType     string
	DatabasePath     string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// JWT authentication
	JWTSecret string

	// SMTP configuration for the email channel
	SMTPEnabled  bool
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPUseTLS   bool
	SMTPUseSSL   bool

	// Twilio configuration for SMS, WhatsApp and voice channels
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFromPhone    string
	TwilioWhatsAppFrom string
	TwilioAPIBaseURL   string

	// Engine settings
	ChannelTimeout          time.Duration
	EscalationSweepInterval time.Duration
	DeferredSweepInterval   time.Duration
	BirthdaySweepCron       string

	// Default escalation delays per priority tier, used when a rule does
	// not set escalate_after_minutes. LOW priority never escalates.
	EscalationDelayUrgent time.Duration
	EscalationDelayHigh   time.Duration
	EscalationDelayNormal time.Duration
}

// Load creates a Config with values from the environment, falling back
// to defaults where a variable is unset.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./automation.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "church_automation"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		SMTPEnabled:  getBoolEnv("SMTP_ENABLED", false),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", ""),
		SMTPUseTLS:   getBoolEnv("SMTP_USE_TLS", true),
		SMTPUseSSL:   getBoolEnv("SMTP_USE_SSL", false),

		TwilioAccountSID:   getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromPhone:    getEnv("TWILIO_FROM_PHONE", ""),
		TwilioWhatsAppFrom: getEnv("TWILIO_WHATSAPP_FROM", ""),
		TwilioAPIBaseURL:   getEnv("TWILIO_API_BASE_URL", "https://api.twilio.com"),

		ChannelTimeout:          getDurationEnv("CHANNEL_TIMEOUT", 15*time.Second),
		EscalationSweepInterval: getDurationEnv("ESCALATION_SWEEP_INTERVAL", time.Minute),
		DeferredSweepInterval:   getDurationEnv("DEFERRED_SWEEP_INTERVAL", time.Minute),
		BirthdaySweepCron:       getEnv("BIRTHDAY_SWEEP_CRON", "0 8 * * *"),

		EscalationDelayUrgent: getDurationEnv("ESCALATION_DELAY_URGENT", 15*time.Minute),
		EscalationDelayHigh:   getDurationEnv("ESCALATION_DELAY_HIGH", 2*time.Hour),
		EscalationDelayNormal: getDurationEnv("ESCALATION_DELAY_NORMAL", 24*time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv accepts day and week suffixes ("3d", "1w") on top of
// the standard Go duration units.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := utils.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

// PostgresDSN assembles the connection string for the pgx driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresUser, c.PostgresPassword, c.PostgresSSLMode)
}

// Validate checks required fields and cross-field dependencies. The
// application should refuse to start on a validation error.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	switch c.DatabaseType {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}

	if c.DatabaseType == "postgres" || c.DatabaseType == "postgresql" {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	}

	if c.SMTPEnabled {
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when SMTP is enabled")
		}
		if c.SMTPFrom == "" {
			return fmt.Errorf("SMTP_FROM is required when SMTP is enabled")
		}
		if port, err := strconv.Atoi(c.SMTPPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("SMTP_PORT must be a valid port number")
		}
	}

	if c.TwilioAccountSID != "" && c.TwilioAuthToken == "" {
		return fmt.Errorf("TWILIO_AUTH_TOKEN is required when TWILIO_ACCOUNT_SID is set")
	}

	if c.ChannelTimeout <= 0 {
		return fmt.Errorf("CHANNEL_TIMEOUT must be a positive duration")
	}

	return nil
}
