package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/careplus-reminders/internal/notify"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("EMAIL_PROVIDER", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("IDEMPOTENCY_TTL", "")
	t.Setenv("PROVIDER_TIMEOUT", "")
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, notify.EmailProviderResend, cfg.EmailProvider)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 10, cfg.DispatchRateLimitBurst)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_PHONE_NUMBER", "+15550000000")
	t.Setenv("TWILIO_WHATSAPP_NUMBER", "+14155238886")
	t.Setenv("EMAIL_PROVIDER", "SendGrid")
	t.Setenv("SENDGRID_API_KEY", "SG.key")
	t.Setenv("RESEND_API_KEY", "re_key")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("DISPATCH_RATE_LIMIT_RPS", "2.5")
	t.Setenv("IDEMPOTENCY_TTL", "90m")
	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "postgres://user@host/db", cfg.DatabaseURL)
	assert.True(t, cfg.RedisTLS)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 2.5, cfg.DispatchRateLimitRPS)
	assert.Equal(t, 90*time.Minute, cfg.IdempotencyTTL)

	opts := cfg.NotifyOptions()
	assert.Equal(t, "AC123", opts.SMSAccountID)
	assert.Equal(t, "token", opts.SMSAuthToken)
	assert.Equal(t, "+15550000000", opts.SMSFromNumber)
	assert.Equal(t, "+14155238886", opts.WhatsAppFromNumber)
	assert.Equal(t, "sendgrid", opts.EmailProvider)
	assert.Equal(t, "SG.key", opts.EmailAPIKey)
}

func TestNotifyOptionsEmailKeyFollowsProvider(t *testing.T) {
	cfg := &Config{EmailProvider: notify.EmailProviderResend, ResendAPIKey: "re", SendGridAPIKey: "sg"}
	assert.Equal(t, "re", cfg.NotifyOptions().EmailAPIKey)

	cfg.EmailProvider = notify.EmailProviderSES
	assert.Empty(t, cfg.NotifyOptions().EmailAPIKey)
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CAREPLUS_TEST_FROM_FILE=file\nCAREPLUS_TEST_SET=file\n"), 0o600))
	t.Setenv("CAREPLUS_TEST_SET", "env")
	t.Setenv("CAREPLUS_TEST_FROM_FILE", "")
	require.NoError(t, os.Unsetenv("CAREPLUS_TEST_FROM_FILE"))

	loadDotEnv(path)
	t.Cleanup(func() { _ = os.Unsetenv("CAREPLUS_TEST_FROM_FILE") })

	assert.Equal(t, "file", os.Getenv("CAREPLUS_TEST_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("CAREPLUS_TEST_SET"))

	loadDotEnv(filepath.Join(dir, "missing.env"))
}

func TestTracingConfig(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")

	tc := Load().TracingConfig("careplus-api")
	assert.True(t, tc.Enabled)
	assert.Equal(t, "careplus-api", tc.ServiceName)
	assert.Equal(t, "collector:4317", tc.OTLPEndpoint)
	assert.Equal(t, 0.5, tc.SampleRatio)
}
