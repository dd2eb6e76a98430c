package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig mirrors Config for environment overrides. Pointer fields stay
// nil when the variable is unset, so only present variables override.
type envConfig struct {
	EndpointAddrGRPC             *string        `env:"GRPC_ADDR"`
	MetricsAddr                  *string        `env:"METRICS_ADDR"`
	DatabaseDSN                  *string        `env:"DATABASE_DSN"`
	AccessSecret                 *string        `env:"ACCESS_SECRET"`
	RefreshSecret                *string        `env:"REFRESH_SECRET"`
	AccessTokenValidityDuration  *time.Duration `env:"ACCESS_TOKEN_TTL"`
	RefreshTokenValidityDuration *time.Duration `env:"REFRESH_TOKEN_TTL"`
	OTPValidityDuration          *time.Duration `env:"OTP_TTL"`
	OTPLength                    *int           `env:"OTP_LENGTH"`
	OTPMaxAttempts               *int           `env:"OTP_MAX_ATTEMPTS"`
	ResetTokenValidityDuration   *time.Duration `env:"RESET_TOKEN_TTL"`
	OTPStore                     *string        `env:"OTP_STORE"`
	RedisAddr                    *string        `env:"REDIS_ADDR"`
	RedisPassword                *string        `env:"REDIS_PASSWORD"`
	RedisDB                      *int           `env:"REDIS_DB"`
	RateLimit                    *int           `env:"RATE_LIMIT"`
	RateLimitWindow              *time.Duration `env:"RATE_LIMIT_WINDOW"`
	SMTPHost                     *string        `env:"SMTP_HOST"`
	SMTPPort                     *int           `env:"SMTP_PORT"`
	SMTPUser                     *string        `env:"SMTP_USER"`
	SMTPPassword                 *string        `env:"SMTP_PASSWORD"`
	MailFrom                     *string        `env:"MAIL_FROM"`
	LogBackend                   *string        `env:"LOG_BACKEND"`
	LogFormat                    *string        `env:"LOG_FORMAT"`
	LogLevel                     *string        `env:"LOG_LEVEL"`
	LogFile                      *string        `env:"LOG_FILE"`
}

const envPrefix = "GOPHAUTH_"

// parseEnv overlays GOPHAUTH_* variables onto config.
func parseEnv(config *Config) error {
	var e envConfig
	if err := env.ParseWithOptions(&e, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	override(&config.EndpointAddrGRPC, e.EndpointAddrGRPC)
	override(&config.MetricsAddr, e.MetricsAddr)
	override(&config.DatabaseDSN, e.DatabaseDSN)
	override(&config.AccessSecret, e.AccessSecret)
	override(&config.RefreshSecret, e.RefreshSecret)
	override(&config.AccessTokenValidityDuration, e.AccessTokenValidityDuration)
	override(&config.RefreshTokenValidityDuration, e.RefreshTokenValidityDuration)
	override(&config.OTPValidityDuration, e.OTPValidityDuration)
	override(&config.OTPLength, e.OTPLength)
	override(&config.OTPMaxAttempts, e.OTPMaxAttempts)
	override(&config.ResetTokenValidityDuration, e.ResetTokenValidityDuration)
	override(&config.OTPStore, e.OTPStore)
	override(&config.RedisAddr, e.RedisAddr)
	override(&config.RedisPassword, e.RedisPassword)
	override(&config.RedisDB, e.RedisDB)
	override(&config.RateLimit, e.RateLimit)
	override(&config.RateLimitWindow, e.RateLimitWindow)
	override(&config.SMTPHost, e.SMTPHost)
	override(&config.SMTPPort, e.SMTPPort)
	override(&config.SMTPUser, e.SMTPUser)
	override(&config.SMTPPassword, e.SMTPPassword)
	override(&config.MailFrom, e.MailFrom)
	override(&config.LogBackend, e.LogBackend)
	override(&config.LogFormat, e.LogFormat)
	override(&config.LogLevel, e.LogLevel)
	override(&config.LogFile, e.LogFile)
	return nil
}

func override[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
