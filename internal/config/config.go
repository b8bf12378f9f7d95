package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port          int
	Env           string
	JWTSecret     string
	DatabaseURL   string
	EncryptionKey string
	CORSOrigins   []string
	AdminEmail    string
	AdminPassword string
	RedisURL      string
	PayPal        PayPalConfig
	AI            AIConfig
}

// PayPalConfig holds payment vendor credentials. Values are validated lazily by the gateway.
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	Mode         string // "sandbox" or "live"
	APIBase      string // optional override
	PlanIDs      map[string]string
}

// AIConfig holds generative AI vendor settings.
type AIConfig struct {
	APIKey            string
	APIBase           string
	VideoPollInterval time.Duration
	VideoMaxPolls     int
	DailyQuota        int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	port, _ := strconv.Atoi(getEnv("PORT", "4001"))

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	encKey := getEnv("ENCRYPTION_KEY", "")
	if encKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required (must be exactly 32 bytes)")
	}
	if len(encKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(encKey))
	}

	mode := strings.ToLower(getEnv("PAYPAL_MODE", "sandbox"))
	if mode != "sandbox" && mode != "live" {
		return nil, fmt.Errorf("PAYPAL_MODE must be sandbox or live, got %q", mode)
	}

	origins := strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return &Config{
		Port:          port,
		Env:           getEnv("APP_ENV", "development"),
		JWTSecret:     jwtSecret,
		DatabaseURL:   dbURL,
		EncryptionKey: encKey,
		CORSOrigins:   origins,
		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@affiliatehub.io"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),
		RedisURL:      getEnv("REDIS_URL", ""),
		PayPal: PayPalConfig{
			ClientID:     getEnv("PAYPAL_CLIENT_ID", ""),
			ClientSecret: getEnv("PAYPAL_CLIENT_SECRET", ""),
			Mode:         mode,
			APIBase:      getEnv("PAYPAL_API_BASE", ""),
			PlanIDs: map[string]string{
				"starter":  getEnv("PAYPAL_PLAN_STARTER", ""),
				"pro":      getEnv("PAYPAL_PLAN_PRO", ""),
				"business": getEnv("PAYPAL_PLAN_BUSINESS", ""),
			},
		},
		AI: AIConfig{
			APIKey:            getEnv("GEMINI_API_KEY", ""),
			APIBase:           getEnv("GEMINI_API_BASE", "https://generativelanguage.googleapis.com"),
			VideoPollInterval: getEnvDuration("AI_VIDEO_POLL_INTERVAL", 5*time.Second),
			VideoMaxPolls:     getEnvInt("AI_VIDEO_MAX_POLLS", 60),
			DailyQuota:        getEnvInt("AI_DAILY_QUOTA", 20),
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
