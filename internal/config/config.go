package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	QR       QRConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN string
}

type RedisConfig struct {
	Addr     string
	Enabled  bool
	StatsTTL time.Duration
}

type KafkaConfig struct {
	Brokers        []string
	Enabled        bool
	ScanEventTopic string
}

type QRConfig struct {
	// SecretKey is the single active key used both to mint and to verify
	// QR signatures.
	SecretKey string
	// ExpiryHours is how long a ticket stays admissible after its first
	// successful scan.
	ExpiryHours int
}

type AuthConfig struct {
	// ScannerJWTSecret protects the verify endpoint. When empty the
	// endpoint is open (development and embedded deployments).
	ScannerJWTSecret string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN: getEnv("DATABASE_DSN", "file:tickets.db?cache=shared"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			StatsTTL: time.Duration(getEnvInt("STATS_CACHE_TTL_SECONDS", 30)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:        strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			Enabled:        getEnvBool("KAFKA_ENABLED", false),
			ScanEventTopic: getEnv("KAFKA_TOPIC_SCAN_EVENTS", "scan-events"),
		},
		QR: QRConfig{
			SecretKey:   getEnv("QR_SECRET_KEY", "aura_club_secret_2024"),
			ExpiryHours: getEnvInt("TICKET_EXPIRY_HOURS", 10),
		},
		Auth: AuthConfig{
			ScannerJWTSecret: getEnv("SCANNER_JWT_SECRET", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
