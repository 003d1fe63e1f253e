// internal/config/config.go
// Centralized configuration management
// Loads from environment variables with sensible defaults

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultJWTSecret = "your-super-secret-key-change-this-in-production"

// Config holds all application configuration
type Config struct {
	// Server
	Port        string
	Environment string
	BaseURL     string

	// AllowedOrigins restricts CORS and websocket origins; empty allows any
	AllowedOrigins []string

	// Database
	DatabaseURL string
	RedisURL    string

	// Security
	JWTSecret string

	// Suggestion engine
	SuggestionDeadlineHours int
	UrgentDeadlineWindow    time.Duration
	NotifyTimeout           time.Duration
	NotifyDedupTTL          time.Duration

	// Email Configuration
	EmailProvider string // "smtp", "sendgrid", "ses" or "mock"
	EmailFrom     string
	EmailFromName string

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	// SendGrid
	SendGridAPIKey string

	// SES
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// SMS Configuration
	SMSProvider string // "twilio" or "mock"

	// Twilio
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// Push Configuration
	PushProvider            string // "fcm" or "mock"
	FirebaseCredentialsPath string
	FirebaseCredentialsJSON string

	// Notification switches
	EnableEmailNotifications bool
	EnableSMSNotifications   bool
	EnablePushNotifications  bool
	EnableInAppNotifications bool
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		BaseURL:     getEnv("BASE_URL", ""),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		// Security
		JWTSecret: getEnv("JWT_SECRET", defaultJWTSecret),

		// Suggestion engine
		SuggestionDeadlineHours: getEnvInt("SUGGESTION_DEADLINE_HOURS", 48),
		UrgentDeadlineWindow:    getEnvDuration("URGENT_DEADLINE_WINDOW", "72h"),
		NotifyTimeout:           getEnvDuration("NOTIFY_TIMEOUT", "10s"),
		NotifyDedupTTL:          getEnvDuration("NOTIFY_DEDUP_TTL", "24h"),

		// Email Configuration
		EmailProvider: getEnv("EMAIL_PROVIDER", "mock"),
		EmailFrom:     getEnv("EMAIL_FROM", "noreply@kiekky.com"),
		EmailFromName: getEnv("EMAIL_FROM_NAME", "Kiekky Matchmaking"),

		// SMTP
		SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		// SendGrid
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),

		// SES
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		// SMS Configuration
		SMSProvider: getEnv("SMS_PROVIDER", "mock"),

		// Twilio
		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),

		// Push Configuration
		PushProvider:            getEnv("PUSH_PROVIDER", "mock"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		FirebaseCredentialsJSON: getEnv("FIREBASE_CREDENTIALS_JSON", ""),

		// Notification switches
		EnableEmailNotifications: getEnvBool("ENABLE_EMAIL_NOTIFICATIONS", true),
		EnableSMSNotifications:   getEnvBool("ENABLE_SMS_NOTIFICATIONS", false),
		EnablePushNotifications:  getEnvBool("ENABLE_PUSH_NOTIFICATIONS", false),
		EnableInAppNotifications: getEnvBool("ENABLE_INAPP_NOTIFICATIONS", true),
	}

	// Set BaseURL if not provided
	if cfg.BaseURL == "" {
		if cfg.Environment == "production" {
			cfg.BaseURL = "https://api.kiekky.com"
		} else {
			cfg.BaseURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
		}
	}

	return cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Required fields
	if c.JWTSecret == defaultJWTSecret && c.IsProduction() {
		return fmt.Errorf("JWT secret must be changed for production")
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("database URL is required")
	}

	// Engine validation
	if c.SuggestionDeadlineHours < 1 || c.SuggestionDeadlineHours > 720 {
		return fmt.Errorf("suggestion deadline hours must be between 1 and 720")
	}

	if c.UrgentDeadlineWindow <= 0 || c.NotifyTimeout <= 0 {
		return fmt.Errorf("urgent window and notify timeout must be positive")
	}

	// Email validation
	switch c.EmailProvider {
	case "smtp":
		if c.SMTPHost == "" || c.SMTPUser == "" || c.SMTPPassword == "" {
			if c.IsProduction() && c.EnableEmailNotifications {
				return fmt.Errorf("SMTP configuration incomplete for production")
			}
		}
	case "sendgrid":
		if c.SendGridAPIKey == "" && c.EnableEmailNotifications {
			return fmt.Errorf("SendGrid API key is required when email notifications are enabled")
		}
	case "ses":
		if c.AWSRegion == "" {
			return fmt.Errorf("AWS region is required for SES")
		}
	case "mock":
		if c.IsProduction() && c.EnableEmailNotifications {
			return fmt.Errorf("mock email provider cannot be used in production")
		}
	default:
		return fmt.Errorf("invalid email provider: %s", c.EmailProvider)
	}

	// SMS validation
	switch c.SMSProvider {
	case "twilio":
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioFromNumber == "" {
			if c.EnableSMSNotifications {
				return fmt.Errorf("Twilio configuration incomplete but SMS notifications are enabled")
			}
		}
	case "mock":
		if c.IsProduction() && c.EnableSMSNotifications {
			return fmt.Errorf("mock SMS provider cannot be used in production with SMS notifications enabled")
		}
	default:
		return fmt.Errorf("invalid SMS provider: %s", c.SMSProvider)
	}

	// Push validation
	switch c.PushProvider {
	case "fcm":
		if c.FirebaseCredentialsPath == "" && c.FirebaseCredentialsJSON == "" && c.EnablePushNotifications {
			return fmt.Errorf("FIREBASE_CREDENTIALS_PATH or FIREBASE_CREDENTIALS_JSON must be set for FCM")
		}
	case "mock":
		if c.IsProduction() && c.EnablePushNotifications {
			return fmt.Errorf("mock push provider cannot be used in production with push notifications enabled")
		}
	default:
		return fmt.Errorf("invalid push provider: %s", c.PushProvider)
	}

	return nil
}

// SuggestionDeadline is the default response window as a duration
func (c *Config) SuggestionDeadline() time.Duration {
	return time.Duration(c.SuggestionDeadlineHours) * time.Hour
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Helper functions

// getEnv gets a string value from environment with a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment with a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration value from environment with a default
func getEnvDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		// If parsing fails, try to parse the default
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}

// getEnvBool gets a boolean value from environment with a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
