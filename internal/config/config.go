package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Meeting provisioning loop
	MeetingLeadMinutes          int
	MeetingTickIntervalMS       int
	MeetingDurationMinutes      int
	MeetingProvisionConcurrency int
	MeetingReuseOrphans         bool
	MeetingLockKey              string
	// MeetingLockTTL of zero means three tick intervals.
	MeetingLockTTL time.Duration

	// Zoom server-to-server OAuth app
	ZoomBaseURL           string
	ZoomTokenURL          string
	ZoomAccountID         string
	ZoomClientID          string
	ZoomClientSecret      string
	ZoomUserID            string
	ZoomTimeout           time.Duration
	ZoomRequestsPerSecond float64

	// Email transport: sendgrid, ses or stub
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string

	AWSRegion                  string
	AWSAccessKeyID             string
	AWSSecretAccessKey         string
	AWSEndpointOverride        string
	ProvisioningEventsQueueURL string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		MeetingLeadMinutes:          getEnvAsInt("MEETING_LEAD_MINUTES", 5),
		MeetingTickIntervalMS:       getEnvAsInt("MEETING_TICK_INTERVAL_MS", 30000),
		MeetingDurationMinutes:      getEnvAsInt("MEETING_DURATION_MINUTES", 30),
		MeetingProvisionConcurrency: getEnvAsInt("MEETING_PROVISION_CONCURRENCY", 4),
		MeetingReuseOrphans:         getEnvAsBool("MEETING_REUSE_ORPHANS", false),
		MeetingLockKey:              getEnv("MEETING_LOCK_KEY", "telehealth:provisioning:tick"),
		MeetingLockTTL:              getEnvAsDuration("MEETING_LOCK_TTL", 0),

		ZoomBaseURL:           getEnv("ZOOM_BASE_URL", "https://api.zoom.us/v2"),
		ZoomTokenURL:          getEnv("ZOOM_TOKEN_URL", "https://zoom.us/oauth/token"),
		ZoomAccountID:         getEnv("ZOOM_ACCOUNT_ID", ""),
		ZoomClientID:          getEnv("ZOOM_CLIENT_ID", ""),
		ZoomClientSecret:      getEnv("ZOOM_CLIENT_SECRET", ""),
		ZoomUserID:            getEnv("ZOOM_USER_ID", "me"),
		ZoomTimeout:           getEnvAsDuration("ZOOM_TIMEOUT", 10*time.Second),
		ZoomRequestsPerSecond: getEnvAsFloat("ZOOM_REQUESTS_PER_SECOND", 0),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Telehealth Visits"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "Telehealth Visits"),

		AWSRegion:                  getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:             getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:         getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:        getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ProvisioningEventsQueueURL: getEnv("PROVISIONING_EVENTS_QUEUE_URL", ""),
	}
}

// LeadTime is how far ahead of now an appointment counts as imminent.
func (c *Config) LeadTime() time.Duration {
	return time.Duration(c.MeetingLeadMinutes) * time.Minute
}

// TickInterval is the poll period of the provisioning loop.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.MeetingTickIntervalMS) * time.Millisecond
}

// MeetingDuration is the length requested for each video session.
func (c *Config) MeetingDuration() time.Duration {
	return time.Duration(c.MeetingDurationMinutes) * time.Minute
}

// ZoomConfigured reports whether all server-to-server credentials are present.
func (c *Config) ZoomConfigured() bool {
	return strings.TrimSpace(c.ZoomAccountID) != "" &&
		strings.TrimSpace(c.ZoomClientID) != "" &&
		strings.TrimSpace(c.ZoomClientSecret) != ""
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
