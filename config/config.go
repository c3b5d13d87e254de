package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type Config struct {
	// Server configuration
	Port    string
	GinMode string

	// Database configuration
	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	// Redis (optional; enables the redis realtime transport and rate limiter)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Call lifecycle
	// SLAWindow is the canonical service window: a PENDING call older than
	// this is declared missed. Restaurants may override it per record.
	SLAWindow     time.Duration
	SweepInterval time.Duration
	ListLimit     int

	// Notification dispatch
	DispatchAttempts int
	DispatchBackoff  time.Duration
	VAPIDPublicKey   string
	VAPIDPrivateKey  string
	VAPIDSubscriber  string

	// Rate limiting for call creation (sliding window per client IP)
	CreateRateLimit  int
	CreateRateWindow time.Duration

	// Connection manager defaults
	ConnectTimeout       time.Duration
	HeartbeatInterval    time.Duration
	HealthThreshold      time.Duration
	ReconnectBase        time.Duration
	MaxReconnectAttempts int
	ProbeInterval        time.Duration
	PollInterval         time.Duration
	MaxHiddenDuration    time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		DBUser: getEnv("DB_USER", "root"),
		DBPass: getEnv("DB_PASS", ""),
		DBHost: getEnv("DB_HOST", "127.0.0.1"),
		DBPort: getEnv("DB_PORT", "3306"),
		DBName: getEnv("DB_NAME", "waitercall"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		SLAWindow:     getEnvAsDuration("CALL_SLA_WINDOW", "2m"),
		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", "30s"),
		ListLimit:     getEnvAsInt("CALL_LIST_LIMIT", 100),

		DispatchAttempts: getEnvAsInt("DISPATCH_ATTEMPTS", 3),
		DispatchBackoff:  getEnvAsDuration("DISPATCH_BACKOFF", "500ms"),
		VAPIDPublicKey:   getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey:  getEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubscriber:  getEnv("VAPID_SUBSCRIBER", "mailto:ops@example.com"),

		CreateRateLimit:  getEnvAsInt("CREATE_RATE_LIMIT", 10),
		CreateRateWindow: getEnvAsDuration("CREATE_RATE_WINDOW", "1m"),

		ConnectTimeout:       getEnvAsDuration("CONNECT_TIMEOUT", "10s"),
		HeartbeatInterval:    getEnvAsDuration("HEARTBEAT_INTERVAL", "15s"),
		HealthThreshold:      getEnvAsDuration("HEALTH_THRESHOLD", "45s"),
		ReconnectBase:        getEnvAsDuration("RECONNECT_BASE", "1s"),
		MaxReconnectAttempts: getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 5),
		ProbeInterval:        getEnvAsDuration("PROBE_INTERVAL", "30s"),
		PollInterval:         getEnvAsDuration("POLL_INTERVAL", "10s"),
		MaxHiddenDuration:    getEnvAsDuration("MAX_HIDDEN_DURATION", "5m"),
	}
}

// InitDB opens the MySQL connection used in production. Tests use sqlite
// in-memory directly.
func (c *Config) InitDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
	return gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
