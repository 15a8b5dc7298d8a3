// Package config centralises configuration parsing for the field presence binaries.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration values shared by the binaries.
type Config struct {
	CollectorBaseURL string
	CollectorTimeout time.Duration
	AuthToken        string
	AuthScheme       string
	AgentID          string

	SampleMinInterval       time.Duration
	SampleMinDistanceMeters float64
	SampleAccuracy          string
	UplinkMaxPerSecond      float64

	PollSingleInterval time.Duration
	PollAllInterval    time.Duration
	PresenceCacheSize  int
	// PresenceSource is "collector" (poll) or "kafka" (follow the presence topic).
	PresenceSource    string
	PresenceFeedGroup string

	AcquisitionDeadline  time.Duration
	GeofenceRadiusMeters float64
	GeofenceTargetsFile  string
	RouteFile            string

	StatusAddress      string
	KafkaBrokers       []string
	PresenceKafkaTopic string
	MQTTBroker         string
	PresenceMQTTTopic  string
	PostgresURL        string

	TracingEnabled     bool
	TracingServiceName string
}

// Load reads environment variables into Config, applying sensible defaults for local dev.
// Values from .env.local are used when the variable is not already set.
func Load() Config {
	_ = godotenv.Load(".env.local")

	cfg := Config{
		CollectorBaseURL: getEnv("COLLECTOR_BASE_URL", "http://localhost:8000/api"),
		CollectorTimeout: getDurationEnv("COLLECTOR_TIMEOUT", 15*time.Second),
		AuthToken:        getEnv("AUTH_TOKEN", ""),
		AuthScheme:       getEnv("AUTH_SCHEME", "Bearer"),
		AgentID:          getEnv("AGENT_ID", ""),

		SampleMinInterval:       getDurationEnv("SAMPLE_MIN_INTERVAL", time.Minute),
		SampleMinDistanceMeters: getFloatEnv("SAMPLE_MIN_DISTANCE_METERS", 50),
		SampleAccuracy:          getEnv("SAMPLE_ACCURACY", "high"),
		UplinkMaxPerSecond:      getFloatEnv("UPLINK_MAX_PER_SECOND", 0),

		PollSingleInterval: getDurationEnv("POLL_SINGLE_INTERVAL", 5*time.Second),
		PollAllInterval:    getDurationEnv("POLL_ALL_INTERVAL", time.Second),
		PresenceCacheSize:  getIntEnv("PRESENCE_CACHE_SIZE", 1000),
		PresenceSource:     getEnv("PRESENCE_SOURCE", "collector"),
		PresenceFeedGroup:  getEnv("PRESENCE_FEED_GROUP", "livemap"),

		AcquisitionDeadline:  getDurationEnv("ACQUISITION_DEADLINE", 5*time.Second),
		GeofenceRadiusMeters: getFloatEnv("GEOFENCE_RADIUS_METERS", 150),
		GeofenceTargetsFile:  getEnv("GEOFENCE_TARGETS_FILE", "config/stores.yaml"),
		RouteFile:            getEnv("ROUTE_FILE", "config/route.yaml"),

		StatusAddress:      getEnv("STATUS_ADDRESS", ":8090"),
		PresenceKafkaTopic: getEnv("PRESENCE_KAFKA_TOPIC", "field.agent-presence"),
		MQTTBroker:         getEnv("MQTT_BROKER", ""),
		PresenceMQTTTopic:  getEnv("PRESENCE_MQTT_TOPIC", "fieldpresence/agents"),
		PostgresURL:        getEnv("POSTGRES_URL", ""),

		TracingEnabled:     getBoolEnv("TRACING_ENABLED", false),
		TracingServiceName: getEnv("TRACING_SERVICE_NAME", "field-presence"),
	}

	cfg.KafkaBrokers = splitAndTrim(getEnv("KAFKA_BROKERS", ""))
	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
