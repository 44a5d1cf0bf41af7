package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	DatabaseURL         string
	RedisURL            string
	NATSURL             string
	EventChannelBase    string
	ReportCacheTTL      time.Duration
	MissedFallbackAfter time.Duration

	// RescheduleReasonMinLength is the minimum sanitized length accepted
	// for reschedule and cancellation reasons.
	RescheduleReasonMinLength int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PACE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "PACE API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("event.channel_base", "pace")
	v.SetDefault("report.cache_ttl", "5m")
	v.SetDefault("progress.missed_fallback", "0s")
	v.SetDefault("reschedule.reason_min_length", 10)

	ttl, err := time.ParseDuration(v.GetString("report.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid report cache ttl: %w", err)
	}

	fallback, err := time.ParseDuration(v.GetString("progress.missed_fallback"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid missed fallback window: %w", err)
	}
	if fallback < 0 {
		return Config{}, fmt.Errorf("missed fallback window must not be negative")
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		EventChannelBase:    v.GetString("event.channel_base"),
		ReportCacheTTL:      ttl,
		MissedFallbackAfter: fallback,

		RescheduleReasonMinLength: v.GetInt("reschedule.reason_min_length"),
	}

	return cfg, nil
}
