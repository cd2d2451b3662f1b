package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/careplus-reminders/internal/notify"
	"github.com/wolfman30/careplus-reminders/internal/observability/tracing"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	TwilioAccountSID       string
	TwilioAuthToken        string
	TwilioPhoneNumber      string
	TwilioWhatsAppNumber   string
	EmailProvider          string
	ResendAPIKey           string
	SendGridAPIKey         string
	EmailFrom              string
	EmailFromName          string
	ProviderTimeout        time.Duration
	AWSRegion              string
	AWSAccessKeyID         string
	AWSSecretAccessKey     string
	AWSEndpointOverride    string
	CORSAllowedOrigins     []string
	DashboardJWTSecret     string
	DispatchRateLimitRPS   float64
	DispatchRateLimitBurst int
	IdempotencyTTL         time.Duration
	OTelEnabled            bool
	OTelEndpoint           string
	OTelSampleRatio        float64
}

// Load reads configuration from the environment. A .env file in the working
// directory, when present, fills variables that are not already set.
func Load() *Config {
	loadDotEnv(".env")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		TwilioAccountSID:     getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:      getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber:    getEnv("TWILIO_PHONE_NUMBER", ""),
		TwilioWhatsAppNumber: getEnv("TWILIO_WHATSAPP_NUMBER", ""),
		EmailProvider:        strings.ToLower(getEnv("EMAIL_PROVIDER", notify.EmailProviderResend)),
		ResendAPIKey:         getEnv("RESEND_API_KEY", ""),
		SendGridAPIKey:       getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:            getEnv("EMAIL_FROM", ""),
		EmailFromName:        getEnv("EMAIL_FROM_NAME", ""),
		ProviderTimeout:      getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		CORSAllowedOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		DashboardJWTSecret:     getEnv("DASHBOARD_JWT_SECRET", ""),
		DispatchRateLimitRPS:   getEnvAsFloat("DISPATCH_RATE_LIMIT_RPS", 5),
		DispatchRateLimitBurst: getEnvAsInt("DISPATCH_RATE_LIMIT_BURST", 10),
		IdempotencyTTL:         getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		OTelEnabled:     getEnvAsBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvAsFloat("OTEL_SAMPLING_RATIO", 1),
	}
}

// NotifyOptions builds the sender credentials. The email API key follows EMAIL_PROVIDER.
func (c *Config) NotifyOptions() notify.Options {
	opts := notify.Options{
		SMSAccountID:       c.TwilioAccountSID,
		SMSAuthToken:       c.TwilioAuthToken,
		SMSFromNumber:      c.TwilioPhoneNumber,
		WhatsAppFromNumber: c.TwilioWhatsAppNumber,
		EmailProvider:      c.EmailProvider,
		EmailFrom:          c.EmailFrom,
		EmailFromName:      c.EmailFromName,
		Timeout:            c.ProviderTimeout,
	}
	switch c.EmailProvider {
	case notify.EmailProviderSendGrid:
		opts.EmailAPIKey = c.SendGridAPIKey
	case notify.EmailProviderSES:
	default:
		opts.EmailAPIKey = c.ResendAPIKey
	}
	return opts
}

// TracingConfig describes the OTLP exporter for serviceName.
func (c *Config) TracingConfig(serviceName string) tracing.Config {
	return tracing.Config{
		Enabled:      c.OTelEnabled,
		ServiceName:  serviceName,
		OTLPEndpoint: c.OTelEndpoint,
		SampleRatio:  c.OTelSampleRatio,
	}
}

// loadDotEnv never overrides variables that are already set.
func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "config: ignoring %s: %v\n", path, err)
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
