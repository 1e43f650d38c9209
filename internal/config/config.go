package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all process-wide configuration for the monitor. It is built
// once at startup and injected; nothing reads the environment after Load,
// so tests can construct deterministic configs directly.
type Config struct {
	// HTTP Server Configuration
	HTTPPort int

	// Database Configuration
	DatabaseURL string

	// Authentication Configuration
	AdminUsername  string
	AdminPassword  string
	JWTSecret      string
	JWTExpiryHours int

	// Inventory Configuration
	InventoryPath   string
	DiscoverDocker  bool
	DiscoverSystemd bool
	InventoryReload bool

	// Probing
	ProbeInterval time.Duration // fleet default between checks per service
	CheckTimeout  time.Duration // per-check timeout
	ProbeWorkers  int           // concurrent check limit per tick

	// Classification
	DownAfterFailures        int           // consecutive failures before Down
	RecoverAfterSuccesses    int           // consecutive successes for Down -> Operational
	DegradedLatencyThreshold time.Duration // successful checks slower than this are Degraded

	// Recovery
	BackoffStages      []time.Duration // waits before attempts 1..n
	MaxRestartsDefault int             // default per-incident attempt budget
	RecoveryCooldown   time.Duration   // stable-quiet period before the attempt counter resets
	CommandTimeout     time.Duration   // remediation command timeout

	// Rate governance
	RestartRateWindow time.Duration // rolling window for the restart cap
	RestartRateCap    int           // max attempts per service per window

	// Correlation
	CorrelationWindow time.Duration // dependent transitions within this of a root Down are attributed
	FlapWindow        time.Duration // transition history span for flap detection
	FlapThreshold     int           // transitions within FlapWindow beyond which alerts are suppressed

	// Shutdown
	DrainTimeout time.Duration

	// Notifications
	SlackWebhookURL string
	WebhookURL      string
}

// DefaultBackoffStages are the fixed waits before successive restart
// attempts. The documented fourth value (300s) is not a retry trigger; it is
// the RecoveryCooldown a recovered service must hold before its attempt
// counter resets.
var DefaultBackoffStages = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTPPort = getEnvAsIntOrDefault("SATO_HTTP_PORT", 3000)
	cfg.DatabaseURL = getEnvOrDefault("SATO_DATABASE_URL", "sato.db")

	cfg.AdminUsername = getEnvOrDefault("SATO_ADMIN_USERNAME", "admin")
	cfg.AdminPassword = os.Getenv("SATO_ADMIN_PASSWORD") // No default - must be set
	cfg.JWTSecret = os.Getenv("SATO_JWT_SECRET")
	cfg.JWTExpiryHours = getEnvAsIntOrDefault("SATO_JWT_EXPIRY_HOURS", 24)

	cfg.InventoryPath = getEnvOrDefault("SATO_INVENTORY", "services.yaml")
	cfg.DiscoverDocker = getEnvAsBoolOrDefault("SATO_DISCOVER_DOCKER", false)
	cfg.DiscoverSystemd = getEnvAsBoolOrDefault("SATO_DISCOVER_SYSTEMD", false)
	cfg.InventoryReload = getEnvAsBoolOrDefault("SATO_INVENTORY_RELOAD", true)

	cfg.ProbeInterval = getEnvAsDurationOrDefault("SATO_PROBE_INTERVAL", 10*time.Second)
	cfg.CheckTimeout = getEnvAsDurationOrDefault("SATO_CHECK_TIMEOUT", 5*time.Second)
	cfg.ProbeWorkers = getEnvAsIntOrDefault("SATO_PROBE_WORKERS", 8)

	cfg.DownAfterFailures = getEnvAsIntOrDefault("SATO_DOWN_AFTER_FAILURES", 2)
	cfg.RecoverAfterSuccesses = getEnvAsIntOrDefault("SATO_RECOVER_AFTER_SUCCESSES", 2)
	cfg.DegradedLatencyThreshold = getEnvAsDurationOrDefault("SATO_DEGRADED_LATENCY", 2*time.Second)

	cfg.BackoffStages = DefaultBackoffStages
	cfg.MaxRestartsDefault = getEnvAsIntOrDefault("SATO_MAX_RESTART_ATTEMPTS", 3)
	cfg.RecoveryCooldown = getEnvAsDurationOrDefault("SATO_RECOVERY_COOLDOWN", 300*time.Second)
	cfg.CommandTimeout = getEnvAsDurationOrDefault("SATO_COMMAND_TIMEOUT", 60*time.Second)

	cfg.RestartRateWindow = getEnvAsDurationOrDefault("SATO_RESTART_RATE_WINDOW", time.Hour)
	cfg.RestartRateCap = getEnvAsIntOrDefault("SATO_RESTART_RATE_CAP", 5)

	cfg.CorrelationWindow = getEnvAsDurationOrDefault("SATO_CORRELATION_WINDOW", 60*time.Second)
	cfg.FlapWindow = getEnvAsDurationOrDefault("SATO_FLAP_WINDOW", 5*time.Minute)
	cfg.FlapThreshold = getEnvAsIntOrDefault("SATO_FLAP_THRESHOLD", 4)

	cfg.DrainTimeout = getEnvAsDurationOrDefault("SATO_DRAIN_TIMEOUT", 10*time.Second)

	cfg.SlackWebhookURL = os.Getenv("SATO_SLACK_WEBHOOK_URL")
	cfg.WebhookURL = os.Getenv("SATO_WEBHOOK_URL")

	return cfg, nil
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault returns the value of an environment variable as an integer or a default value
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault returns the value of an environment variable as a bool or a default value
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault returns the value of an environment variable as a
// duration string ("30s", "5m") or a default value
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
