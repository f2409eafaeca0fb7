package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bvanengelen78/guardrail/internal/security"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Security  security.Config
	Alerts    AlertsConfig
	Telemetry TelemetryConfig
}

type DatabaseConfig struct {
	Enabled           bool
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
	RequestsPerMin int // outer per-IP cap applied before any handler
}

type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
	CleanupInterval   time.Duration
	AdminEmail        string
	AdminPasswordHash string // bcrypt hash of the bootstrap credential
	ServiceToken      string // bearer credential for the /v1 RPC surface
	LoginWindow       time.Duration
	LoginMaxRequests  int
	TimingDelayBase   time.Duration // minimum duration of a failed login
	TimingDelayJitter time.Duration
}

type AlertsConfig struct {
	Enabled    bool
	Region     string
	FromEmail  string
	Recipients []string
	PerMinute  float64
	Burst      int
	QueueSize  int
}

type TelemetryConfig struct {
	Enabled         bool
	ServiceName     string
	ServiceVersion  string
	MetricsExporter string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			RequestsPerMin: getEnvAsInt("SERVER_REQUESTS_PER_MINUTE", 600),
		},
		Database: DatabaseConfig{
			Enabled:           getEnvAsBool("DATABASE_ENABLED", false),
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "guardrail"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			CleanupInterval:   getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Minute),
			AdminEmail:        getEnv("ADMIN_EMAIL", ""),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			ServiceToken:      getEnv("SERVICE_API_TOKEN", ""),
			LoginWindow:       getEnvAsDuration("LOGIN_RATE_WINDOW", 15*time.Minute),
			LoginMaxRequests:  getEnvAsInt("LOGIN_RATE_MAX_REQUESTS", 10),
			TimingDelayBase:   getEnvAsDuration("AUTH_TIMING_DELAY_BASE", 200*time.Millisecond),
			TimingDelayJitter: getEnvAsDuration("AUTH_TIMING_DELAY_JITTER", 100*time.Millisecond),
		},
		Security: loadSecurity(),
		Alerts: AlertsConfig{
			Enabled:    getEnvAsBool("ALERTS_ENABLED", false),
			Region:     getEnv("AWS_REGION", "us-east-1"),
			FromEmail:  getEnv("ALERTS_FROM_EMAIL", ""),
			Recipients: getEnvAsList("ALERTS_RECIPIENTS"),
			PerMinute:  getEnvAsFloat("ALERTS_PER_MINUTE", 6),
			Burst:      getEnvAsInt("ALERTS_BURST", 3),
			QueueSize:  getEnvAsInt("ALERTS_QUEUE_SIZE", 64),
		},
		Telemetry: TelemetryConfig{
			Enabled:         getEnvAsBool("TELEMETRY_ENABLED", false),
			ServiceName:     getEnv("OTEL_SERVICE_NAME", "guardrail"),
			ServiceVersion:  getEnv("SERVICE_VERSION", "dev"),
			MetricsExporter: getEnv("METRICS_EXPORTER", "prometheus"),
		},
	}

	if cfg.Auth.CleanupInterval <= 0 {
		return nil, fmt.Errorf("CLEANUP_INTERVAL must be positive (got %s)", cfg.Auth.CleanupInterval)
	}

	if t := cfg.Auth.ServiceToken; t != "" && len(t) < 32 {
		return nil, fmt.Errorf("SERVICE_API_TOKEN must be at least 32 characters (got %d)", len(t))
	}

	if cfg.Database.Enabled && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required when DATABASE_ENABLED is set")
	}

	if cfg.Alerts.Enabled && (cfg.Alerts.FromEmail == "" || len(cfg.Alerts.Recipients) == 0) {
		return nil, fmt.Errorf("ALERTS_FROM_EMAIL and ALERTS_RECIPIENTS are required when ALERTS_ENABLED is set")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Security.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadSecurity overlays environment overrides on the security defaults
func loadSecurity() security.Config {
	d := security.DefaultConfig()

	return security.Config{
		Shards: getEnvAsInt("SECURITY_SHARDS", d.Shards),
		Penalty: security.PenaltyConfig{
			BaseDelay:   getEnvAsDuration("PENALTY_BASE_DELAY", d.Penalty.BaseDelay),
			Multiplier:  getEnvAsFloat("PENALTY_MULTIPLIER", d.Penalty.Multiplier),
			MaxDelay:    getEnvAsDuration("PENALTY_MAX_DELAY", d.Penalty.MaxDelay),
			QuietPeriod: getEnvAsDuration("PENALTY_QUIET_PERIOD", d.Penalty.QuietPeriod),
		},
		Lockout: security.LockoutConfig{
			MaxFailedAttempts:  getEnvAsInt("LOCKOUT_MAX_FAILED_ATTEMPTS", d.Lockout.MaxFailedAttempts),
			LockoutDuration:    getEnvAsDuration("LOCKOUT_DURATION", d.Lockout.LockoutDuration),
			ProgressiveLockout: getEnvAsBool("LOCKOUT_PROGRESSIVE", d.Lockout.ProgressiveLockout),
			MaxLockoutDuration: getEnvAsDuration("LOCKOUT_MAX_DURATION", d.Lockout.MaxLockoutDuration),
			AttemptWindow:      getEnvAsDuration("LOCKOUT_ATTEMPT_WINDOW", d.Lockout.AttemptWindow),
			LockoutMemory:      getEnvAsDuration("LOCKOUT_MEMORY", d.Lockout.LockoutMemory),
		},
		Blacklist: security.BlacklistConfig{
			MaxEntries: getEnvAsInt("BLACKLIST_MAX_ENTRIES", d.Blacklist.MaxEntries),
		},
		Session: security.SessionConfig{
			ShortTTL:              getEnvAsDuration("SESSION_TTL", d.Session.ShortTTL),
			LongTTL:               getEnvAsDuration("SESSION_REMEMBER_ME_TTL", d.Session.LongTTL),
			IdleTimeout:           getEnvAsDuration("SESSION_IDLE_TIMEOUT", d.Session.IdleTimeout),
			RotationInterval:      getEnvAsDuration("SESSION_ROTATION_INTERVAL", d.Session.RotationInterval),
			MaxConcurrentSessions: getEnvAsInt("SESSION_MAX_CONCURRENT", d.Session.MaxConcurrentSessions),
			BindIP:                getEnvAsBool("SESSION_BIND_IP", d.Session.BindIP),
			BindUserAgent:         getEnvAsBool("SESSION_BIND_USER_AGENT", d.Session.BindUserAgent),
		},
		Detector: security.DetectorConfig{
			Window:                getEnvAsDuration("DETECTOR_WINDOW", d.Detector.Window),
			RapidRequestThreshold: getEnvAsInt("DETECTOR_RAPID_THRESHOLD", d.Detector.RapidRequestThreshold),
			DistributedThreshold:  getEnvAsInt("DETECTOR_DISTRIBUTED_THRESHOLD", d.Detector.DistributedThreshold),
			MaxSamplesPerEndpoint: getEnvAsInt("DETECTOR_MAX_SAMPLES", d.Detector.MaxSamplesPerEndpoint),
			EscalateToLockout:     getEnvAsBool("DETECTOR_ESCALATE_TO_LOCKOUT", d.Detector.EscalateToLockout),
		},
	}
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := getEnv(key, "")
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
