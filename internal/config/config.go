/**
 * @description
 * Configuration management for the taxform-service. Settings are read from
 * environment variables (and an optional .env file) through Viper.
 */
package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the taxform-service.
type Config struct {
	AppEnv                    string  `mapstructure:"APP_ENV"`
	ServerPort                string  `mapstructure:"SERVER_PORT"`
	DatabaseURL               string  `mapstructure:"DATABASE_URL"`
	RabbitMQURL               string  `mapstructure:"RABBITMQ_URL"`
	NotificationExchange      string  `mapstructure:"NOTIFICATION_EXCHANGE"`
	RedisURL                  string  `mapstructure:"REDIS_URL"`
	RedisLockPrefix           string  `mapstructure:"REDIS_LOCK_PREFIX"`
	InternalAPIKey            string  `mapstructure:"INTERNAL_API_KEY"`
	HelloWorksBaseURL         string  `mapstructure:"HELLOWORKS_API_BASE_URL"`
	HelloWorksAPIKeyID        string  `mapstructure:"HELLOWORKS_API_KEY_ID"`
	HelloWorksAPIKeySecret    string  `mapstructure:"HELLOWORKS_API_KEY_SECRET"`
	HelloWorksWorkflowID      string  `mapstructure:"HELLOWORKS_WORKFLOW_ID"`
	HelloWorksParticipantID   string  `mapstructure:"HELLOWORKS_PARTICIPANT_ID"`
	HelloWorksCallbackURL     string  `mapstructure:"HELLOWORKS_CALLBACK_URL"`
	HelloWorksCallbackSecret  string  `mapstructure:"HELLOWORKS_CALLBACK_SECRET"`
	HelloWorksRateLimitPerSec float64 `mapstructure:"HELLOWORKS_RATE_LIMIT_PER_SECOND"`
	ThresholdCents            int64   `mapstructure:"TAX_FORM_THRESHOLD_CENTS"`
	RailThresholdCents        int64   `mapstructure:"TAX_FORM_RAIL_THRESHOLD_CENTS"`
	TaxFormJobSchedule        string  `mapstructure:"TAX_FORM_JOB_SCHEDULE"`
	NotRequestedRetryHours    int     `mapstructure:"TAX_FORM_NOT_REQUESTED_RETRY_HOURS"`
	InternalEmailDomains      string  `mapstructure:"INTERNAL_EMAIL_DOMAINS"`
}

// LoadConfig reads configuration from environment variables and an optional
// .env file in path.
func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("NOTIFICATION_EXCHANGE", "notifications")
	viper.SetDefault("REDIS_LOCK_PREFIX", "taxform:lock")
	viper.SetDefault("HELLOWORKS_API_BASE_URL", "https://api.helloworks.com")
	viper.SetDefault("HELLOWORKS_PARTICIPANT_ID", "participant_swVuvW")
	viper.SetDefault("HELLOWORKS_RATE_LIMIT_PER_SECOND", 5)
	viper.SetDefault("TAX_FORM_THRESHOLD_CENTS", 60000)
	viper.SetDefault("TAX_FORM_RAIL_THRESHOLD_CENTS", 50000)
	viper.SetDefault("TAX_FORM_JOB_SCHEDULE", "0 3 * * *") // At 03:00 every day.
	viper.SetDefault("TAX_FORM_NOT_REQUESTED_RETRY_HOURS", 24)
	viper.SetDefault("INTERNAL_EMAIL_DOMAINS", "opencollective.com")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("APP_ENV")
	_ = viper.BindEnv("SERVER_PORT", "SERVER_PORT", "PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("NOTIFICATION_EXCHANGE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_LOCK_PREFIX")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("HELLOWORKS_API_BASE_URL")
	_ = viper.BindEnv("HELLOWORKS_API_KEY_ID")
	_ = viper.BindEnv("HELLOWORKS_API_KEY_SECRET")
	_ = viper.BindEnv("HELLOWORKS_WORKFLOW_ID")
	_ = viper.BindEnv("HELLOWORKS_PARTICIPANT_ID")
	_ = viper.BindEnv("HELLOWORKS_CALLBACK_URL")
	_ = viper.BindEnv("HELLOWORKS_CALLBACK_SECRET")
	_ = viper.BindEnv("HELLOWORKS_RATE_LIMIT_PER_SECOND")
	_ = viper.BindEnv("TAX_FORM_THRESHOLD_CENTS")
	_ = viper.BindEnv("TAX_FORM_RAIL_THRESHOLD_CENTS")
	_ = viper.BindEnv("TAX_FORM_JOB_SCHEDULE")
	_ = viper.BindEnv("TAX_FORM_NOT_REQUESTED_RETRY_HOURS")
	_ = viper.BindEnv("INTERNAL_EMAIL_DOMAINS")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.AppEnv = strings.ToLower(strings.TrimSpace(config.AppEnv))
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.HelloWorksBaseURL = strings.TrimSuffix(strings.TrimSpace(config.HelloWorksBaseURL), "/")

	if config.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if config.RailThresholdCents <= 0 || config.ThresholdCents <= 0 {
		return nil, errors.New("TAX_FORM_THRESHOLD_CENTS and TAX_FORM_RAIL_THRESHOLD_CENTS must be positive")
	}
	if config.NotRequestedRetryHours < 0 {
		log.Printf("level=warn component=config msg=\"negative not-requested retry window; coercing to zero\" hours=%d", config.NotRequestedRetryHours)
		config.NotRequestedRetryHours = 0
	}
	if config.HelloWorksRateLimitPerSec <= 0 {
		config.HelloWorksRateLimitPerSec = 5
	}

	return &config, nil
}

// IsProduction reports whether the service runs against real recipients.
func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// NotRequestedRetryAfter is how long a NOT_REQUESTED document waits before it
// becomes eligible again.
func (c Config) NotRequestedRetryAfter() time.Duration {
	return time.Duration(c.NotRequestedRetryHours) * time.Hour
}

// AllowedRecipient returns the recipient policy for signature requests.
// Production allows every address; other environments only allow the
// configured internal domains so test runs never reach real users.
func (c Config) AllowedRecipient() func(email string) bool {
	if c.IsProduction() {
		return func(string) bool { return true }
	}

	domains := make([]string, 0)
	for _, d := range strings.Split(c.InternalEmailDomains, ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, "@"+strings.TrimPrefix(d, "@"))
		}
	}

	return func(email string) bool {
		email = strings.ToLower(strings.TrimSpace(email))
		for _, d := range domains {
			if strings.HasSuffix(email, d) {
				return true
			}
		}
		return false
	}
}
