package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig

	// Database Configuration (MySQL, delivery state)
	Database DatabaseConfig

	// Mongo Configuration (analytics samples)
	Mongo MongoConfig

	// Firebase Configuration (push gateway)
	Firebase FirebaseConfig

	// Webhook Configuration (high/critical secondary channel)
	Webhook WebhookConfig

	// Engine Configuration (retry and fan-out policy knobs)
	Engine EngineConfig
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  int    // seconds
	WriteTimeout int    // seconds
	Environment  string // development, staging, production
}

// DatabaseConfig contains MySQL connection configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	DatabaseName string
	MaxOpenConns int
	MaxIdleConns int
}

// MongoConfig contains the analytics store configuration
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Enabled    bool
}

// FirebaseConfig contains Firebase Cloud Messaging configuration
type FirebaseConfig struct {
	ProjectID           string
	CredentialsFilePath string
	Enabled             bool
}

// WebhookConfig contains the optional webhook channel configuration
type WebhookConfig struct {
	URL         string
	Secret      string // signs the bearer token on webhook POSTs
	TokenTTL    time.Duration
	SendTimeout time.Duration
}

// EngineConfig contains delivery engine policy knobs. Values here are
// configuration defaults, not behavioral guarantees.
type EngineConfig struct {
	TickInterval     time.Duration // retry queue scan period
	MaxRetryDelay    time.Duration // backoff ceiling
	ClaimBatchSize   int           // due attempts claimed per tick
	AnalyticsWorkers int
	AnalyticsBuffer  int
	RetentionAge     time.Duration // age-based purge of terminal attempts
}

// Load reads configuration from the environment, with .env support for
// local development, the way the rest of the app boots.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 15),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "3306"),
			Username:     getEnv("DB_USER", "patternpals"),
			Password:     getEnv("DB_PASSWORD", ""),
			DatabaseName: getEnv("DB_NAME", "patternpals"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		Mongo: MongoConfig{
			URI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:   getEnv("MONGO_DB", "patternpals"),
			Collection: getEnv("MONGO_ANALYTICS_COLLECTION", "delivery_samples"),
			Enabled:    getEnv("MONGO_ENABLED", "true") == "true",
		},
		Firebase: FirebaseConfig{
			ProjectID:           getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsFilePath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
			Enabled:             getEnv("FIREBASE_ENABLED", "false") == "true",
		},
		Webhook: WebhookConfig{
			URL:         getEnv("WEBHOOK_URL", ""),
			Secret:      getEnv("WEBHOOK_SECRET", ""),
			TokenTTL:    getEnvDuration("WEBHOOK_TOKEN_TTL", 2*time.Minute),
			SendTimeout: getEnvDuration("WEBHOOK_SEND_TIMEOUT", 10*time.Second),
		},
		Engine: EngineConfig{
			TickInterval:     getEnvDuration("ENGINE_TICK_INTERVAL", 30*time.Second),
			MaxRetryDelay:    getEnvDuration("ENGINE_MAX_RETRY_DELAY", 10*time.Minute),
			ClaimBatchSize:   getEnvInt("ENGINE_CLAIM_BATCH_SIZE", 100),
			AnalyticsWorkers: getEnvInt("ENGINE_ANALYTICS_WORKERS", 2),
			AnalyticsBuffer:  getEnvInt("ENGINE_ANALYTICS_BUFFER", 1000),
			RetentionAge:     getEnvDuration("ENGINE_RETENTION_AGE", 30*24*time.Hour),
		},
	}
}

// DSN builds the MySQL connection string from the database section.
func (cfg *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
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
		log.Printf("Invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return d
}
