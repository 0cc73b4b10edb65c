package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Location is one bookable clinic location.
type Location struct {
	Key   string
	Label string
}

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string

	// Catalog / booking backend
	CatalogEndpoint   string
	CatalogAPIKey     string
	CatalogBusinessID string
	CatalogTimeout    time.Duration

	// Booking engine
	Locations              []Location
	DefaultLocation        string
	AvailabilityWindowDays int
	ResendCooldown         time.Duration
	MenuCacheTTL           time.Duration
	FlowTTL                time.Duration
	FlowIdleTimeout        time.Duration
	FlowTokenSecret        string
	VerifyRatePerMinute    int
	DirectoryFile          string

	// Storage
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DatabaseURL   string

	// Tracking
	TrackingQueueURL string
	TrackingBuffer   int

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),

		CatalogEndpoint:   getEnv("CATALOG_ENDPOINT", ""),
		CatalogAPIKey:     getEnv("CATALOG_API_KEY", ""),
		CatalogBusinessID: getEnv("CATALOG_BUSINESS_ID", ""),
		CatalogTimeout:    getEnvAsDuration("CATALOG_TIMEOUT", 20*time.Second),

		Locations:              ParseLocations(getEnv("BOOKING_LOCATIONS", "carmel:Carmel,westfield:Westfield")),
		DefaultLocation:        strings.TrimSpace(getEnv("BOOKING_DEFAULT_LOCATION", "")),
		AvailabilityWindowDays: getEnvAsInt("AVAILABILITY_WINDOW_DAYS", 60),
		ResendCooldown:         getEnvAsDuration("RESEND_COOLDOWN", 30*time.Second),
		MenuCacheTTL:           getEnvAsDuration("MENU_CACHE_TTL", 5*time.Minute),
		FlowTTL:                getEnvAsDuration("FLOW_TTL", 2*time.Hour),
		FlowIdleTimeout:        getEnvAsDuration("FLOW_IDLE_TIMEOUT", 30*time.Minute),
		FlowTokenSecret:        getEnv("FLOW_TOKEN_SECRET", ""),
		VerifyRatePerMinute:    getEnvAsInt("VERIFY_RATE_PER_MINUTE", 10),
		DirectoryFile:          strings.TrimSpace(getEnv("BOOKING_DIRECTORY_FILE", "")),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		TrackingQueueURL: getEnv("TRACKING_QUEUE_URL", ""),
		TrackingBuffer:   getEnvAsInt("TRACKING_BUFFER", 256),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// ParseLocations parses "key:Label,key2:Label 2". A bare key is its own label.
func ParseLocations(raw string) []Location {
	var out []Location
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, label, _ := strings.Cut(part, ":")
		key = strings.ToLower(strings.TrimSpace(key))
		label = strings.TrimSpace(label)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if label == "" {
			label = key
		}
		out = append(out, Location{Key: key, Label: label})
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
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
