package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service.
type Config struct {
	Port        string
	Environment string
	DebugRoutes bool

	StoreBackend  string
	MongoURI      string
	MongoDatabase string
	PresenceDSN   string
	RedisURL      string

	AMQPURL         string
	AMQPExchange    string
	AuditRoutingKey string
	OTLPEndpoint    string

	JWTSecret      string
	AllowedOrigins []string

	OfflineTTL         time.Duration
	CleanupInterval    time.Duration
	SessionIdleTimeout time.Duration
	TypingTTL          time.Duration
	ProbeBackoff       []time.Duration

	WSRateLimit float64
	WSRateBurst int
}

// Load reads .env when present and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}

	return Config{
		Port:        getEnv("PORT", "8083"),
		Environment: getEnv("ENV", "development"),
		DebugRoutes: getBool("DEBUG_ROUTES", false),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", "mongo")),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DB", "campus_marketplace"),
		PresenceDSN:   getEnv("PRESENCE_DB_DSN", ""),
		RedisURL:      getEnv("REDIS_URL", ""),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "marketplace.events"),
		AuditRoutingKey: getEnv("AUDIT_ROUTING_KEY", "audit.realtime"),
		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		AllowedOrigins: getCSV("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		OfflineTTL:         getDuration("OFFLINE_TTL", 30*24*time.Hour),
		CleanupInterval:    getDuration("CLEANUP_INTERVAL", time.Minute),
		SessionIdleTimeout: getDuration("SESSION_IDLE_TIMEOUT", 10*time.Minute),
		TypingTTL:          getDuration("TYPING_TTL", 10*time.Second),
		ProbeBackoff:       getDurations("PRESENCE_PROBE_BACKOFF", []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 900 * time.Millisecond}),

		WSRateLimit: getFloat("WS_RATE_LIMIT", 20),
		WSRateBurst: getInt("WS_RATE_BURST", 40),
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getDurations(key string, fallback []time.Duration) []time.Duration {
	parts := getCSV(key, nil)
	if len(parts) == 0 {
		return fallback
	}
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(p)
		if err != nil || d < 0 {
			log.Printf("config: ignoring %s, bad duration %q", key, p)
			return fallback
		}
		out = append(out, d)
	}
	return out
}

func getCSV(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
