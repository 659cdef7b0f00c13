package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends accepted by STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StoreDynamo   = "dynamodb"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	StoreBackend    string
	StoreTimeout    time.Duration
	DynamoDBTable   string
	DatabaseURL     string
	MongoURI        string
	MongoDatabase   string
	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool
	DirectoryTTL    time.Duration
	PrescriptionTTL time.Duration

	AuthJWTSecret      string
	AuthTokenTTL       time.Duration
	CORSAllowedOrigins []string
	AIRateLimitRPS     float64
	AIRateLimitBurst   int

	GeminiAPIKey   string
	GeminiModelID  string
	BedrockModelID string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	EventsQueueURL      string

	// Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string

	AuditEnabled bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreBackend:    strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", StoreMemory))),
		StoreTimeout:    getEnvAsDuration("STORE_TIMEOUT", 5*time.Second),
		DynamoDBTable:   getEnv("DYNAMODB_TABLE", "rams_documents"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		MongoURI:        getEnv("MONGODB_URI", ""),
		MongoDatabase:   getEnv("MONGODB_DATABASE", "rams"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),
		DirectoryTTL:    getEnvAsDuration("DIRECTORY_CACHE_TTL", time.Minute),
		PrescriptionTTL: getEnvAsDuration("PRESCRIPTION_LOCK_TTL", 10*time.Second),

		AuthJWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		AuthTokenTTL:       getEnvAsDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		AIRateLimitRPS:     getEnvAsFloat("AI_RATE_LIMIT_RPS", 1),
		AIRateLimitBurst:   getEnvAsInt("AI_RATE_LIMIT_BURST", 5),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		EventsQueueURL:      getEnv("EVENTS_QUEUE_URL", ""),

		// Email Configuration
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "RAMS Care"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),

		AuditEnabled: getEnvAsBool("AUDIT_ENABLED", false),
	}
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
