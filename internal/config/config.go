package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	DBMaxOpenConns int
	MigrationsPath string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Pipeline
	PipelineAPIKey    string
	InstrumentCatalog string

	// Streaming
	WSAllowedOrigin string

	// Market simulation
	TickInterval     time.Duration
	DriftInterval    time.Duration
	SessionInterval  time.Duration
	QuoteInterval    time.Duration
	SchedulerJitter  time.Duration
	JobTimeout       time.Duration
	TickConcurrency  int
	MarketGrowthRate float64
	TopMoversLimit   int
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		// Server
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", ""),

		// Database
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "minibiz"),
		DBPassword:     getEnv("DB_PASSWORD", "minibiz"),
		DBName:         getEnv("DB_NAME", "minibiz"),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 50),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "file://migrations"),

		// JWT
		JWTSecret:        getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),
		JWTExpirationDur: getEnvDuration("JWT_EXPIRES_IN", 24*time.Hour),

		// Pipeline
		PipelineAPIKey:    getEnv("PIPELINE_API_KEY", ""),
		InstrumentCatalog: getEnv("INSTRUMENT_CATALOG", "configs/instruments.yaml"),

		// Streaming
		WSAllowedOrigin: getEnv("WS_ALLOWED_ORIGIN", ""),

		// Market simulation
		TickInterval:     getEnvDuration("TICK_INTERVAL", 5*time.Second),
		DriftInterval:    getEnvDuration("DRIFT_INTERVAL", time.Hour),
		SessionInterval:  getEnvDuration("SESSION_INTERVAL", 24*time.Hour),
		QuoteInterval:    getEnvDuration("QUOTE_INTERVAL", 3*time.Second),
		SchedulerJitter:  getEnvDuration("SCHEDULER_JITTER", 0),
		JobTimeout:       getEnvDuration("JOB_TIMEOUT", 4*time.Second),
		TickConcurrency:  getEnvInt("TICK_CONCURRENCY", 8),
		MarketGrowthRate: getEnvFloat("MARKET_GROWTH_RATE", 0.07),
		TopMoversLimit:   getEnvInt("TOP_MOVERS_LIMIT", 10),
	}

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// Set replaces the process-wide configuration. Tests use it to pin secrets.
func Set(cfg *Config) {
	appConfig = cfg
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %g\n", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return v
}
