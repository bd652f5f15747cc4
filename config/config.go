package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultSTUN is the single public STUN resolver handed to peers
const DefaultSTUN = "stun:stun.l.google.com:19302"

type Config struct {
	Port           string
	Environment    string
	LogLevel       string
	AllowedOrigins []string
	SignalPath     string
	STUNServer     string
	JWTSecret      string
	AdminPassword  string
	Redis          RedisConfig
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Enabled reports whether the presence mirror should be used
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

func Load() *Config {
	// Parse allowed origins (comma-separated)
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	origins := splitList(originsStr)

	signalPath := getEnv("SIGNAL_PATH", "/ws/signal")
	if !strings.HasPrefix(signalPath, "/") {
		signalPath = "/" + signalPath
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: origins,
		SignalPath:     signalPath,
		STUNServer:     getEnv("STUN_SERVER", DefaultSTUN),
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
		Redis: RedisConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}
}

// ClientConfig configures a participant connecting to the relay
type ClientConfig struct {
	SignalingURL string
	STUNServer   string
	LogLevel     string
}

// ClientOptions carries CLI flag overrides
type ClientOptions struct {
	SignalingURL string
	STUNServer   string
	LogLevel     string
}

// LoadClient resolves client settings: flag > env > default
func LoadClient(opts ClientOptions) (*ClientConfig, error) {
	cfg := &ClientConfig{
		SignalingURL: firstNonEmpty(opts.SignalingURL, os.Getenv("SIGNALING_URL"), "ws://localhost:8080/ws/signal"),
		STUNServer:   firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		LogLevel:     firstNonEmpty(opts.LogLevel, os.Getenv("LOG_LEVEL"), "warn"),
	}

	if !strings.HasPrefix(cfg.SignalingURL, "ws://") && !strings.HasPrefix(cfg.SignalingURL, "wss://") {
		return nil, fmt.Errorf("signaling url must use ws:// or wss://, got %q", cfg.SignalingURL)
	}
	if !strings.HasPrefix(cfg.STUNServer, "stun:") && !strings.HasPrefix(cfg.STUNServer, "stuns:") {
		return nil, fmt.Errorf("stun server must use stun: or stuns:, got %q", cfg.STUNServer)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
