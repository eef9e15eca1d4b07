package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	CORSOrigins string
	TablePrefix string
	// Origin is the public base URL this server is reachable at. Links in
	// page content pointing at it resolve in-app instead of externally.
	Origin string
	// File storage
	UploadDir string
	// Logging
	LogDir      string
	LogToFile   bool
	MaxLogFiles int
	// Editor sessions
	SessionIdleTimeout time.Duration
	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	tablePrefix := getTablePrefix()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Environment:        env,
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		CORSOrigins:        getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:        tablePrefix,
		Origin:             getEnv("APP_ORIGIN", "http://localhost:8080"),
		UploadDir:          getEnv("UPLOAD_DIR", "./uploads"),
		LogDir:             getEnv("LOG_DIR", "./logs"),
		LogToFile:          getEnv("LOG_TO_FILE", "false") == "true",
		MaxLogFiles:        getEnvInt("MAX_LOG_FILES", 10),
		SessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true" // Enable DEBUG in dev/test by default
}

// getTablePrefix returns the table prefix. The bundled migrations create
// unprefixed tables; deployments that share a database across environments
// set TABLE_PREFIX and manage the schema out of band.
func getTablePrefix() string {
	return os.Getenv("TABLE_PREFIX")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
