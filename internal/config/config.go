package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv          string
	HTTPAddr        string
	LogLevel        string
	ShutdownTimeout time.Duration
	StoreTimeout    time.Duration

	LoginRateLimitPerMinute int
	RequestTimeout          time.Duration

	// TrustForwardedHeaders takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustForwardedHeaders bool

	DatabaseDriver string
	DatabaseURL    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	JWTIssuer        string
	JWTAudience      string
	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTAccessTTL     time.Duration

	SessionTTL           time.Duration
	SessionMaxConcurrent int
	SessionSweepInterval time.Duration

	LockoutMaxFailures   int
	LockoutWindow        time.Duration
	PasswordMinLength    int
	PasswordHistoryDepth int
	BcryptCost           int

	AnomalyHighFrequencyThreshold   int
	AnomalyHighFrequencyWindow      time.Duration
	AnomalyPrivilegeChangeThreshold int
	AnomalyPrivilegeWindow          time.Duration
	AnomalyLoginHistoryWindow       time.Duration
	AnomalyPrivilegeFailClosed      bool

	BruteForceThreshold int
	BruteForceWindow    time.Duration
	IPBlockDuration     time.Duration

	NotifyMaxRetries   int
	NotifyRetryBase    time.Duration
	NotifyQueueSize    int
	NotifyRatePerSec   float64
	NotifyWebhookURL   string
	NotifyNATSURL      string
	NotifyNATSSubject  string
	NotifyKafkaBrokers []string
	NotifyKafkaTopic   string
	AdminRecipients    []string

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
}

// policyFile is the YAML schema of SECURITY_POLICY_FILE. Only non-zero values override.
type policyFile struct {
	Session struct {
		TTL           string `yaml:"ttl"`
		MaxConcurrent int    `yaml:"max_concurrent"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"session"`
	Lockout struct {
		MaxFailures int    `yaml:"max_failures"`
		Window      string `yaml:"window"`
	} `yaml:"lockout"`
	Password struct {
		MinLength    int `yaml:"min_length"`
		HistoryDepth int `yaml:"history_depth"`
	} `yaml:"password"`
	Anomaly struct {
		HighFrequencyThreshold   int    `yaml:"high_frequency_threshold"`
		HighFrequencyWindow      string `yaml:"high_frequency_window"`
		PrivilegeChangeThreshold int    `yaml:"privilege_change_threshold"`
		PrivilegeWindow          string `yaml:"privilege_window"`
		LoginHistoryWindow       string `yaml:"login_history_window"`
		PrivilegeFailClosed      *bool  `yaml:"privilege_fail_closed"`
	} `yaml:"anomaly"`
	Response struct {
		BruteForceThreshold int    `yaml:"brute_force_threshold"`
		BruteForceWindow    string `yaml:"brute_force_window"`
		IPBlockDuration     string `yaml:"ip_block_duration"`
	} `yaml:"response"`
	Notify struct {
		MaxRetries      int      `yaml:"max_retries"`
		RetryBase       string   `yaml:"retry_base"`
		AdminRecipients []string `yaml:"admin_recipients"`
	} `yaml:"notify"`
}

// Load resolves configuration in priority order: defaults, policy file, env.
func Load() (*Config, error) {
	cfg, err := load()
	profile := os.Getenv("APP_ENV")
	if cfg != nil {
		profile = cfg.AppEnv
	}
	source := "env"
	if strings.TrimSpace(os.Getenv("SECURITY_POLICY_FILE")) != "" {
		source = "file"
	}
	recordConfigLoad(context.Background(), profile, source, err)
	return cfg, err
}

func load() (*Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("SECURITY_POLICY_FILE")); path != "" {
		if err := applyPolicyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	p := &envParser{}

	cfg.AppEnv = envOrDefault("APP_ENV", cfg.AppEnv)
	cfg.HTTPAddr = envOrDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.ShutdownTimeout = p.durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.StoreTimeout = p.durationEnv("STORE_TIMEOUT", cfg.StoreTimeout)
	cfg.LoginRateLimitPerMinute = p.intEnv("LOGIN_RATE_LIMIT_PER_MINUTE", cfg.LoginRateLimitPerMinute)
	cfg.RequestTimeout = p.durationEnv("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.TrustForwardedHeaders = p.boolEnv("TRUST_FORWARDED_HEADERS", cfg.TrustForwardedHeaders)

	cfg.DatabaseDriver = strings.ToLower(envOrDefault("DATABASE_DRIVER", cfg.DatabaseDriver))
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)

	cfg.RedisAddr = envOrDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envOrDefault("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = p.intEnv("REDIS_DB", cfg.RedisDB)
	cfg.RedisPrefix = envOrDefault("REDIS_PREFIX", cfg.RedisPrefix)

	cfg.JWTIssuer = envOrDefault("JWT_ISSUER", cfg.JWTIssuer)
	cfg.JWTAudience = envOrDefault("JWT_AUDIENCE", cfg.JWTAudience)
	cfg.JWTAccessSecret = envOrDefault("JWT_ACCESS_SECRET", cfg.JWTAccessSecret)
	cfg.JWTRefreshSecret = envOrDefault("JWT_REFRESH_SECRET", cfg.JWTRefreshSecret)
	cfg.JWTAccessTTL = p.durationEnv("JWT_ACCESS_TTL", cfg.JWTAccessTTL)

	cfg.SessionTTL = p.durationEnv("SESSION_TTL", cfg.SessionTTL)
	cfg.SessionMaxConcurrent = p.intEnv("SESSION_MAX_CONCURRENT", cfg.SessionMaxConcurrent)
	cfg.SessionSweepInterval = p.durationEnv("SESSION_SWEEP_INTERVAL", cfg.SessionSweepInterval)

	cfg.LockoutMaxFailures = p.intEnv("LOCKOUT_MAX_FAILURES", cfg.LockoutMaxFailures)
	cfg.LockoutWindow = p.durationEnv("LOCKOUT_WINDOW", cfg.LockoutWindow)
	cfg.PasswordMinLength = p.intEnv("PASSWORD_MIN_LENGTH", cfg.PasswordMinLength)
	cfg.PasswordHistoryDepth = p.intEnv("PASSWORD_HISTORY_DEPTH", cfg.PasswordHistoryDepth)
	cfg.BcryptCost = p.intEnv("BCRYPT_COST", cfg.BcryptCost)

	cfg.AnomalyHighFrequencyThreshold = p.intEnv("ANOMALY_HIGH_FREQUENCY_THRESHOLD", cfg.AnomalyHighFrequencyThreshold)
	cfg.AnomalyHighFrequencyWindow = p.durationEnv("ANOMALY_HIGH_FREQUENCY_WINDOW", cfg.AnomalyHighFrequencyWindow)
	cfg.AnomalyPrivilegeChangeThreshold = p.intEnv("ANOMALY_PRIVILEGE_CHANGE_THRESHOLD", cfg.AnomalyPrivilegeChangeThreshold)
	cfg.AnomalyPrivilegeWindow = p.durationEnv("ANOMALY_PRIVILEGE_WINDOW", cfg.AnomalyPrivilegeWindow)
	cfg.AnomalyLoginHistoryWindow = p.durationEnv("ANOMALY_LOGIN_HISTORY_WINDOW", cfg.AnomalyLoginHistoryWindow)
	cfg.AnomalyPrivilegeFailClosed = p.boolEnv("ANOMALY_PRIVILEGE_FAIL_CLOSED", cfg.AnomalyPrivilegeFailClosed)

	cfg.BruteForceThreshold = p.intEnv("BRUTE_FORCE_THRESHOLD", cfg.BruteForceThreshold)
	cfg.BruteForceWindow = p.durationEnv("BRUTE_FORCE_WINDOW", cfg.BruteForceWindow)
	cfg.IPBlockDuration = p.durationEnv("IP_BLOCK_DURATION", cfg.IPBlockDuration)

	cfg.NotifyMaxRetries = p.intEnv("NOTIFY_MAX_RETRIES", cfg.NotifyMaxRetries)
	cfg.NotifyRetryBase = p.durationEnv("NOTIFY_RETRY_BASE", cfg.NotifyRetryBase)
	cfg.NotifyQueueSize = p.intEnv("NOTIFY_QUEUE_SIZE", cfg.NotifyQueueSize)
	cfg.NotifyRatePerSec = p.floatEnv("NOTIFY_RATE_PER_SEC", cfg.NotifyRatePerSec)
	cfg.NotifyWebhookURL = envOrDefault("NOTIFY_WEBHOOK_URL", cfg.NotifyWebhookURL)
	cfg.NotifyNATSURL = envOrDefault("NOTIFY_NATS_URL", cfg.NotifyNATSURL)
	cfg.NotifyNATSSubject = envOrDefault("NOTIFY_NATS_SUBJECT", cfg.NotifyNATSSubject)
	cfg.NotifyKafkaBrokers = envCSV("NOTIFY_KAFKA_BROKERS", cfg.NotifyKafkaBrokers)
	cfg.NotifyKafkaTopic = envOrDefault("NOTIFY_KAFKA_TOPIC", cfg.NotifyKafkaTopic)
	cfg.AdminRecipients = envCSV("ADMIN_RECIPIENTS", cfg.AdminRecipients)

	cfg.OTELServiceName = envOrDefault("OTEL_SERVICE_NAME", cfg.OTELServiceName)
	cfg.OTELEnvironment = envOrDefault("OTEL_ENVIRONMENT", cfg.AppEnv)
	cfg.OTELExporterOTLPEndpoint = envOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTELExporterOTLPEndpoint)
	cfg.OTELExporterOTLPInsecure = p.boolEnv("OTEL_EXPORTER_OTLP_INSECURE", cfg.OTELExporterOTLPInsecure)
	cfg.OTELMetricsEnabled = p.boolEnv("OTEL_METRICS_ENABLED", cfg.OTELMetricsEnabled)
	cfg.OTELTracingEnabled = p.boolEnv("OTEL_TRACING_ENABLED", cfg.OTELTracingEnabled)
	cfg.OTELLogsEnabled = p.boolEnv("OTEL_LOGS_ENABLED", cfg.OTELLogsEnabled)
	cfg.OTELMetricsExportInterval = p.durationEnv("OTEL_METRICS_EXPORT_INTERVAL", cfg.OTELMetricsExportInterval)
	cfg.OTELTraceSamplingRatio = p.floatEnv("OTEL_TRACE_SAMPLING_RATIO", cfg.OTELTraceSamplingRatio)

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the baseline configuration used before the policy file and env are applied.
func Defaults() *Config {
	return &Config{
		AppEnv:          "development",
		HTTPAddr:        ":8080",
		LogLevel:        "info",
		ShutdownTimeout: 15 * time.Second,
		StoreTimeout:    3 * time.Second,

		LoginRateLimitPerMinute: 20,
		RequestTimeout:          10 * time.Second,

		DatabaseDriver: "postgres",

		RedisPrefix: "secmon",

		JWTIssuer:    "security-monitoring-service",
		JWTAudience:  "security-monitoring-clients",
		JWTAccessTTL: 15 * time.Minute,

		SessionTTL:           7 * 24 * time.Hour,
		SessionMaxConcurrent: 5,
		SessionSweepInterval: time.Hour,

		LockoutMaxFailures:   5,
		LockoutWindow:        15 * time.Minute,
		PasswordMinLength:    8,
		PasswordHistoryDepth: 3,
		BcryptCost:           12,

		AnomalyHighFrequencyThreshold:   50,
		AnomalyHighFrequencyWindow:      time.Minute,
		AnomalyPrivilegeChangeThreshold: 5,
		AnomalyPrivilegeWindow:          time.Hour,
		AnomalyLoginHistoryWindow:       30 * 24 * time.Hour,

		BruteForceThreshold: 5,
		BruteForceWindow:    15 * time.Minute,
		IPBlockDuration:     time.Hour,

		NotifyMaxRetries:  3,
		NotifyRetryBase:   time.Second,
		NotifyQueueSize:   256,
		NotifyRatePerSec:  5,
		NotifyNATSSubject: "security.alerts",
		NotifyKafkaTopic:  "security-alerts",

		OTELServiceName:           "security-monitoring-service",
		OTELExporterOTLPEndpoint:  "localhost:4317",
		OTELExporterOTLPInsecure:  true,
		OTELMetricsExportInterval: 15 * time.Second,
		OTELTraceSamplingRatio:    1,
	}
}

func (c *Config) Validate() error {
	var problems []string
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if len(c.JWTAccessSecret) < 32 {
		problems = append(problems, "JWT_ACCESS_SECRET must be at least 32 bytes")
	}
	if len(c.JWTRefreshSecret) < 32 {
		problems = append(problems, "JWT_REFRESH_SECRET must be at least 32 bytes")
	}
	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		problems = append(problems, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	positiveInts := []struct {
		name  string
		value int
	}{
		{"SESSION_MAX_CONCURRENT", c.SessionMaxConcurrent},
		{"LOCKOUT_MAX_FAILURES", c.LockoutMaxFailures},
		{"PASSWORD_MIN_LENGTH", c.PasswordMinLength},
		{"PASSWORD_HISTORY_DEPTH", c.PasswordHistoryDepth},
		{"ANOMALY_HIGH_FREQUENCY_THRESHOLD", c.AnomalyHighFrequencyThreshold},
		{"ANOMALY_PRIVILEGE_CHANGE_THRESHOLD", c.AnomalyPrivilegeChangeThreshold},
		{"BRUTE_FORCE_THRESHOLD", c.BruteForceThreshold},
		{"NOTIFY_QUEUE_SIZE", c.NotifyQueueSize},
		{"LOGIN_RATE_LIMIT_PER_MINUTE", c.LoginRateLimitPerMinute},
	}
	for _, v := range positiveInts {
		if v.value <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be > 0", v.name))
		}
	}
	positiveDurations := []struct {
		name  string
		value time.Duration
	}{
		{"SESSION_TTL", c.SessionTTL},
		{"SESSION_SWEEP_INTERVAL", c.SessionSweepInterval},
		{"LOCKOUT_WINDOW", c.LockoutWindow},
		{"ANOMALY_HIGH_FREQUENCY_WINDOW", c.AnomalyHighFrequencyWindow},
		{"ANOMALY_PRIVILEGE_WINDOW", c.AnomalyPrivilegeWindow},
		{"ANOMALY_LOGIN_HISTORY_WINDOW", c.AnomalyLoginHistoryWindow},
		{"BRUTE_FORCE_WINDOW", c.BruteForceWindow},
		{"IP_BLOCK_DURATION", c.IPBlockDuration},
		{"STORE_TIMEOUT", c.StoreTimeout},
		{"REQUEST_TIMEOUT", c.RequestTimeout},
		{"JWT_ACCESS_TTL", c.JWTAccessTTL},
	}
	for _, v := range positiveDurations {
		if v.value <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be > 0", v.name))
		}
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		problems = append(problems, "BCRYPT_COST must be between 4 and 31")
	}
	if c.NotifyMaxRetries < 0 {
		problems = append(problems, "NOTIFY_MAX_RETRIES must be >= 0")
	}
	if c.NotifyRatePerSec <= 0 {
		problems = append(problems, "NOTIFY_RATE_PER_SEC must be > 0")
	}
	if len(c.NotifyKafkaBrokers) > 0 && strings.TrimSpace(c.NotifyKafkaTopic) == "" {
		problems = append(problems, "NOTIFY_KAFKA_TOPIC is required when NOTIFY_KAFKA_BROKERS is set")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		problems = append(problems, "OTEL_TRACE_SAMPLING_RATIO must be within [0,1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("validate config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func applyPolicyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read SECURITY_POLICY_FILE: %w", err)
	}
	var f policyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse SECURITY_POLICY_FILE: %w", err)
	}
	p := &envParser{}
	cfg.SessionTTL = p.durationValue("session.ttl", f.Session.TTL, cfg.SessionTTL)
	cfg.SessionSweepInterval = p.durationValue("session.sweep_interval", f.Session.SweepInterval, cfg.SessionSweepInterval)
	cfg.LockoutWindow = p.durationValue("lockout.window", f.Lockout.Window, cfg.LockoutWindow)
	cfg.AnomalyHighFrequencyWindow = p.durationValue("anomaly.high_frequency_window", f.Anomaly.HighFrequencyWindow, cfg.AnomalyHighFrequencyWindow)
	cfg.AnomalyPrivilegeWindow = p.durationValue("anomaly.privilege_window", f.Anomaly.PrivilegeWindow, cfg.AnomalyPrivilegeWindow)
	cfg.AnomalyLoginHistoryWindow = p.durationValue("anomaly.login_history_window", f.Anomaly.LoginHistoryWindow, cfg.AnomalyLoginHistoryWindow)
	cfg.BruteForceWindow = p.durationValue("response.brute_force_window", f.Response.BruteForceWindow, cfg.BruteForceWindow)
	cfg.IPBlockDuration = p.durationValue("response.ip_block_duration", f.Response.IPBlockDuration, cfg.IPBlockDuration)
	cfg.NotifyRetryBase = p.durationValue("notify.retry_base", f.Notify.RetryBase, cfg.NotifyRetryBase)
	if p.err != nil {
		return p.err
	}
	overrideInt(&cfg.SessionMaxConcurrent, f.Session.MaxConcurrent)
	overrideInt(&cfg.LockoutMaxFailures, f.Lockout.MaxFailures)
	overrideInt(&cfg.PasswordMinLength, f.Password.MinLength)
	overrideInt(&cfg.PasswordHistoryDepth, f.Password.HistoryDepth)
	overrideInt(&cfg.AnomalyHighFrequencyThreshold, f.Anomaly.HighFrequencyThreshold)
	overrideInt(&cfg.AnomalyPrivilegeChangeThreshold, f.Anomaly.PrivilegeChangeThreshold)
	overrideInt(&cfg.BruteForceThreshold, f.Response.BruteForceThreshold)
	overrideInt(&cfg.NotifyMaxRetries, f.Notify.MaxRetries)
	if f.Anomaly.PrivilegeFailClosed != nil {
		cfg.AnomalyPrivilegeFailClosed = *f.Anomaly.PrivilegeFailClosed
	}
	if len(f.Notify.AdminRecipients) > 0 {
		cfg.AdminRecipients = f.Notify.AdminRecipients
	}
	return nil
}

func overrideInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// envParser keeps the first parse failure so all keys can be read in one pass.
type envParser struct {
	err error
}

func (p *envParser) fail(name string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("parse %s: %w", name, err)
	}
}

func (p *envParser) intEnv(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(name, err)
		return fallback
	}
	return v
}

func (p *envParser) floatEnv(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(name, err)
		return fallback
	}
	return v
}

func (p *envParser) boolEnv(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(name, err)
		return fallback
	}
	return v
}

func (p *envParser) durationEnv(name string, fallback time.Duration) time.Duration {
	return p.durationValue(name, os.Getenv(name), fallback)
}

func (p *envParser) durationValue(name, raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := parseDuration(raw)
	if err != nil {
		p.fail(name, err)
		return fallback
	}
	return v
}

// parseDuration accepts time.ParseDuration syntax plus a whole-day suffix such as "7d".
func parseDuration(raw string) (time.Duration, error) {
	if strings.HasSuffix(raw, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(raw)
}

func envOrDefault(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
