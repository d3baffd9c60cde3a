/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables (with an
 * optional .env file), providing a centralized and straightforward way to
 * manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the booking-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	BookingEventExchange string `mapstructure:"BOOKING_EVENT_EXCHANGE"`
	BookingEmailQueue    string `mapstructure:"BOOKING_EMAIL_QUEUE"`

	CashfreeBaseURL      string `mapstructure:"CASHFREE_BASE_URL"`
	CashfreeClientID     string `mapstructure:"CASHFREE_CLIENT_ID"`
	CashfreeClientSecret string `mapstructure:"CASHFREE_CLIENT_SECRET"`

	CalendarBaseURL     string `mapstructure:"CALENDAR_BASE_URL"`
	CalendarID          string `mapstructure:"CALENDAR_ID"`
	CalendarAccessToken string `mapstructure:"CALENDAR_ACCESS_TOKEN"`

	JWTSecret   string `mapstructure:"JWT_SECRET"`
	FrontendURL string `mapstructure:"FRONTEND_URL"`
	BackendURL  string `mapstructure:"BACKEND_URL"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     string `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPSender   string `mapstructure:"SMTP_SENDER"`
	PlatformName string `mapstructure:"PLATFORM_NAME"`

	// RequirePaymentForBooking gates attendance confirmation on a SUCCESS
	// ledger entry. Disabling it is an explicit operational decision, never
	// an implicit default.
	RequirePaymentForBooking bool `mapstructure:"REQUIRE_PAYMENT_FOR_BOOKING"`

	ReconcileIntervalSeconds   int `mapstructure:"RECONCILE_INTERVAL_SECONDS"`
	ReconcilePendingAgeSeconds int `mapstructure:"RECONCILE_PENDING_AGE_SECONDS"`
	ReconcileBatchLimit        int `mapstructure:"RECONCILE_BATCH_LIMIT"`

	EventCacheTTLSeconds int `mapstructure:"EVENT_CACHE_TTL_SECONDS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("BOOKING_EVENT_EXCHANGE", "soulsadhna.events")
	viper.SetDefault("BOOKING_EMAIL_QUEUE", "booking_service.email_notifications")
	viper.SetDefault("CASHFREE_BASE_URL", "https://sandbox.cashfree.com")
	viper.SetDefault("CALENDAR_BASE_URL", "https://www.googleapis.com/calendar/v3")
	viper.SetDefault("CALENDAR_ID", "primary")
	viper.SetDefault("PLATFORM_NAME", "Soulsadhna")
	viper.SetDefault("REQUIRE_PAYMENT_FOR_BOOKING", true)
	viper.SetDefault("RECONCILE_INTERVAL_SECONDS", 120)
	viper.SetDefault("RECONCILE_PENDING_AGE_SECONDS", 300)
	viper.SetDefault("RECONCILE_BATCH_LIMIT", 100)
	viper.SetDefault("EVENT_CACHE_TTL_SECONDS", 60)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("BOOKING_EVENT_EXCHANGE")
	_ = viper.BindEnv("BOOKING_EMAIL_QUEUE")
	_ = viper.BindEnv("CASHFREE_BASE_URL")
	_ = viper.BindEnv("CASHFREE_CLIENT_ID")
	_ = viper.BindEnv("CASHFREE_CLIENT_SECRET")
	_ = viper.BindEnv("CALENDAR_BASE_URL")
	_ = viper.BindEnv("CALENDAR_ID")
	_ = viper.BindEnv("CALENDAR_ACCESS_TOKEN")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("FRONTEND_URL")
	_ = viper.BindEnv("BACKEND_URL")
	_ = viper.BindEnv("SMTP_HOST")
	_ = viper.BindEnv("SMTP_PORT")
	_ = viper.BindEnv("SMTP_USERNAME")
	_ = viper.BindEnv("SMTP_PASSWORD")
	_ = viper.BindEnv("SMTP_SENDER")
	_ = viper.BindEnv("PLATFORM_NAME")
	_ = viper.BindEnv("REQUIRE_PAYMENT_FOR_BOOKING")
	_ = viper.BindEnv("RECONCILE_INTERVAL_SECONDS")
	_ = viper.BindEnv("RECONCILE_PENDING_AGE_SECONDS")
	_ = viper.BindEnv("RECONCILE_BATCH_LIMIT")
	_ = viper.BindEnv("EVENT_CACHE_TTL_SECONDS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	if config.ReconcileIntervalSeconds <= 0 {
		config.ReconcileIntervalSeconds = 120
	}
	if config.ReconcilePendingAgeSeconds <= 0 {
		config.ReconcilePendingAgeSeconds = 300
	}
	if config.ReconcileBatchLimit <= 0 {
		config.ReconcileBatchLimit = 100
	}
	if config.EventCacheTTLSeconds <= 0 {
		config.EventCacheTTLSeconds = 60
	}

	return
}
