package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	// Admin endpoints (guardrail reload/status, audit access).
	AdminAuthMode AuthMode
	AdminAPIKeys  map[string]struct{}

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Speech provider stream.
	ProviderURL            string
	ProviderModelID        string
	ProviderConnectTimeout time.Duration
	ProviderAuthToken      string

	// Inference parameters sent at session start.
	MaxTokens   int
	Temperature float64
	TopP        float64
	VoiceID     string

	// Audio formats.
	InputSampleRateHz  int
	OutputSampleRateHz int
	SampleSizeBits     int
	ChannelCount       int

	// Session ceilings.
	MaxConcurrentSessions int
	SessionIdleTimeout    time.Duration
	IdleSweepInterval     time.Duration

	// Guardrails.
	RulesPath      string
	RulesWatch     bool
	AuditDir       string
	AuditLocalDir  string
	DefaultLocale  string
	GuardrailsRole string

	// Warehouse (optional; empty DSN disables it).
	WarehouseDSN  string
	RunMigrations bool

	// Webhook emitter.
	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration

	// SSE
	SSEPingInterval time.Duration

	// Live client WebSocket (/ws/{id}).
	WSWriteTimeout  time.Duration
	WSPingInterval  time.Duration
	WSMaxFrameBytes int64

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                   envOr("SONIC_ADDR", ":8000"),
		AdminAuthMode:          AuthMode(envOr("SONIC_ADMIN_AUTH_MODE", string(AuthModeDisabled))),
		AdminAPIKeys:           make(map[string]struct{}),
		CORSAllowedOrigins:     make(map[string]struct{}),
		ProviderURL:            envOr("SONIC_PROVIDER_URL", ""),
		ProviderModelID:        envOr("SONIC_MODEL_ID", "amazon.nova-sonic-v1:0"),
		ProviderConnectTimeout: envDurationOr("SONIC_CONNECT_TIMEOUT", 10*time.Second),
		ProviderAuthToken:      envOr("SONIC_PROVIDER_AUTH_TOKEN", ""),
		MaxTokens:              envIntOr("SONIC_MAX_TOKENS", 1024),
		Temperature:            envFloat64Or("SONIC_TEMPERATURE", 0.7),
		TopP:                   envFloat64Or("SONIC_TOP_P", 0.9),
		VoiceID:                envOr("SONIC_VOICE_ID", "matthew"),
		InputSampleRateHz:      envIntOr("SONIC_INPUT_SAMPLE_RATE", 16000),
		OutputSampleRateHz:     envIntOr("SONIC_OUTPUT_SAMPLE_RATE", 24000),
		SampleSizeBits:         envIntOr("SONIC_SAMPLE_SIZE_BITS", 16),
		ChannelCount:           envIntOr("SONIC_CHANNEL_COUNT", 1),
		MaxConcurrentSessions:  envIntOr("SONIC_MAX_CONCURRENT_SESSIONS", 100),
		SessionIdleTimeout:     envDurationOr("SONIC_SESSION_TIMEOUT", 5*time.Minute),
		IdleSweepInterval:      envDurationOr("SONIC_IDLE_SWEEP_INTERVAL", time.Minute),
		RulesPath:              envOr("SONIC_GUARDRAILS_RULES_PATH", "guardrails_rules.xlsx"),
		RulesWatch:             envBoolOr("SONIC_GUARDRAILS_WATCH", true),
		AuditDir:               envOr("SONIC_AUDIT_DIR", "/var/log/guardrails"),
		AuditLocalDir:          envOr("SONIC_AUDIT_LOCAL_DIR", "logs"),
		DefaultLocale:          envOr("SONIC_DEFAULT_LOCALE", "en-US"),
		GuardrailsRole:         envOr("SONIC_GUARDRAILS_ROLE", "assistant"),
		WarehouseDSN:           envOr("SONIC_WAREHOUSE_DSN", ""),
		RunMigrations:          envBoolOr("SONIC_RUN_MIGRATIONS", false),
		WebhookURL:             envOr("SONIC_N8N_WEBHOOK_URL", ""),
		WebhookSecret:          envOr("SONIC_N8N_WEBHOOK_SECRET", ""),
		WebhookTimeout:         envDurationOr("SONIC_WEBHOOK_TIMEOUT", 10*time.Second),
		SSEPingInterval:        envDurationOr("SONIC_SSE_PING_INTERVAL", 15*time.Second),
		WSWriteTimeout:         envDurationOr("SONIC_WS_WRITE_TIMEOUT", 5*time.Second),
		WSPingInterval:         envDurationOr("SONIC_WS_PING_INTERVAL", 20*time.Second),
		WSMaxFrameBytes:        envInt64Or("SONIC_WS_MAX_FRAME_BYTES", 1<<20),
		ReadHeaderTimeout:      envDurationOr("SONIC_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:    envDurationOr("SONIC_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AdminAuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("SONIC_ADMIN_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("SONIC_ADMIN_API_KEYS")) {
		cfg.AdminAPIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("SONIC_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.ProviderConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("SONIC_CONNECT_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.ProviderModelID) == "" {
		return Config{}, fmt.Errorf("SONIC_MODEL_ID must not be empty")
	}
	if cfg.MaxTokens <= 0 {
		return Config{}, fmt.Errorf("SONIC_MAX_TOKENS must be > 0")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return Config{}, fmt.Errorf("SONIC_TEMPERATURE must be in [0, 2]")
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		return Config{}, fmt.Errorf("SONIC_TOP_P must be in (0, 1]")
	}
	if cfg.InputSampleRateHz <= 0 {
		return Config{}, fmt.Errorf("SONIC_INPUT_SAMPLE_RATE must be > 0")
	}
	if cfg.OutputSampleRateHz <= 0 {
		return Config{}, fmt.Errorf("SONIC_OUTPUT_SAMPLE_RATE must be > 0")
	}
	if cfg.SampleSizeBits != 8 && cfg.SampleSizeBits != 16 {
		return Config{}, fmt.Errorf("SONIC_SAMPLE_SIZE_BITS must be 8 or 16")
	}
	if cfg.ChannelCount <= 0 {
		return Config{}, fmt.Errorf("SONIC_CHANNEL_COUNT must be > 0")
	}
	if cfg.MaxConcurrentSessions <= 0 {
		return Config{}, fmt.Errorf("SONIC_MAX_CONCURRENT_SESSIONS must be > 0")
	}
	if cfg.SessionIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("SONIC_SESSION_TIMEOUT must be > 0")
	}
	if cfg.IdleSweepInterval <= 0 {
		return Config{}, fmt.Errorf("SONIC_IDLE_SWEEP_INTERVAL must be > 0")
	}
	if strings.TrimSpace(cfg.RulesPath) == "" {
		return Config{}, fmt.Errorf("SONIC_GUARDRAILS_RULES_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.AuditLocalDir) == "" {
		return Config{}, fmt.Errorf("SONIC_AUDIT_LOCAL_DIR must not be empty")
	}
	if cfg.WebhookTimeout <= 0 {
		return Config{}, fmt.Errorf("SONIC_WEBHOOK_TIMEOUT must be > 0")
	}
	if cfg.SSEPingInterval <= 0 {
		return Config{}, fmt.Errorf("SONIC_SSE_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("SONIC_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("SONIC_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSMaxFrameBytes <= 0 {
		return Config{}, fmt.Errorf("SONIC_WS_MAX_FRAME_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("SONIC_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("SONIC_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.RunMigrations && strings.TrimSpace(cfg.WarehouseDSN) == "" {
		return Config{}, fmt.Errorf("SONIC_WAREHOUSE_DSN must be set when SONIC_RUN_MIGRATIONS=true")
	}

	if cfg.AdminAuthMode == AuthModeRequired && len(cfg.AdminAPIKeys) == 0 {
		return Config{}, fmt.Errorf("SONIC_ADMIN_API_KEYS must be set when SONIC_ADMIN_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
