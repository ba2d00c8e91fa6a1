package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	DatabaseURL string
	ServiceName string

	JWTSecret      string
	TokenIssuer    string
	AccessTokenTTL time.Duration

	MaxLoginAttempts int
	LockoutDuration  time.Duration

	MinResponseTime          time.Duration
	EndpointMinResponseTimes map[string]time.Duration

	DefaultRole string

	TelemetryEndpoint string
	TelemetryInsecure bool

	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is applied first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:              getEnv("APP_ENV", "development"),
		HTTPPort:                 getEnv("HTTP_PORT", "8080"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		ServiceName:              getEnv("SERVICE_NAME", "gatelock-auth"),
		JWTSecret:                os.Getenv("JWT_SECRET"),
		TokenIssuer:              getEnv("TOKEN_ISSUER", "gatelock-auth"),
		AccessTokenTTL:           getDuration("ACCESS_TOKEN_TTL", time.Hour),
		MaxLoginAttempts:         getInt("MAX_LOGIN_ATTEMPTS", 5),
		LockoutDuration:          getDuration("LOCKOUT_DURATION", 15*time.Minute),
		MinResponseTime:          getDuration("MIN_RESPONSE_TIME", time.Second),
		EndpointMinResponseTimes: getDurationMap("MIN_RESPONSE_TIME_OVERRIDES"),
		DefaultRole:              getEnv("DEFAULT_ROLE", "user"),
		TelemetryEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:        getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:       getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:       getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:       getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials:     getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}

// getDurationMap parses "endpoint=duration" pairs, e.g.
// "login=1s,register=500ms".
func getDurationMap(key string) map[string]time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}

	out := make(map[string]time.Duration)
	for _, pair := range strings.Split(v, ",") {
		name, raw, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		if name = strings.TrimSpace(name); name != "" {
			out[name] = d
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
