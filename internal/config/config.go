package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config - настройки портала и dev-бэкенда.
type Config struct {
	Port       string
	BackendURL string
	// Таймаут изменяющих запросов к бэкенду (регистрация, создание, удаление)
	RequestTimeout time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	FirebaseAPIKey     string

	SessionKey   string
	CookieSecure bool
	LogMode      string

	// dev-бэкенд
	DevBackendPort string
	DatabaseURL    string
	SeedDemoData   bool
	UploadDir      string
}

// Load читает .env (если он есть) и переменные окружения.
// Возвращает также признак того, что .env не найден: логгер еще не создан.
func Load() (*Config, bool) {
	envMissing := godotenv.Load() != nil

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		BackendURL:     strings.TrimRight(getEnv("PORTAL_BACKEND_URL", "http://localhost:8081"), "/"),
		RequestTimeout: time.Duration(getEnvInt("PORTAL_REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/google/callback"),
		FirebaseAPIKey:     getEnv("FIREBASE_API_KEY", ""),

		SessionKey:   getEnv("SESSION_KEY", ""),
		CookieSecure: getEnvBool("COOKIE_SECURE", false),
		LogMode:      getEnv("LOG_MODE", "dev"),

		DevBackendPort: getEnv("DEVBACKEND_PORT", "8081"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		SeedDemoData:   getEnvBool("SEED_DEMO_DATA", true),
		UploadDir:      getEnv("DEVBACKEND_UPLOAD_DIR", "uploads"),
	}
	return cfg, envMissing
}

// GoogleEnabled - заданы ли ключи Google OAuth.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil || i <= 0 {
		return defaultValue
	}
	return i
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
