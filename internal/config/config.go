package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	PublicBaseURL      string
	LogLevel           string
	CORSAllowedOrigins []string
	RateLimitPerMinute int

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Record store (DynamoDB tables)
	UseMemoryStore     bool
	InvoicesTable      string
	PatientsTable      string
	ConsultationsTable string
	UserProfilesTable  string
	CountersTable      string

	// Invoices
	PaymentTermDays int
	CacheTTL        time.Duration
	PracticeName    string
	PracticeAddress string
	PracticeSIRET   string

	// Blob store
	DocumentsBucket string
	PresignTTL      time.Duration

	// PDF generation
	GotenbergURL    string
	PDFQueueURL     string
	PDFPollInterval time.Duration

	// Sweep
	SweepConcurrency int
	SweepTimeout     time.Duration
	SweepCron        string

	// Deposits
	DepositConcurrency int
	PatientNameTTL     time.Duration

	// Postgres (audit trail, sweep history)
	DatabaseURL string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Email
	EmailProvider     string
	EmailFromAddress  string
	EmailFromName     string
	SendGridAPIKey    string
	WelcomeEmailLogin string

	// Cognito
	CognitoRegion     string
	CognitoUserPoolID string
	CognitoClientID   string
	AuthDisabled      bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 300),

		AWSRegion:           getEnv("AWS_REGION", "eu-west-3"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		UseMemoryStore:     getEnvAsBool("USE_MEMORY_STORE", false),
		InvoicesTable:      getEnv("INVOICES_TABLE", "invoices"),
		PatientsTable:      getEnv("PATIENTS_TABLE", "patients"),
		ConsultationsTable: getEnv("CONSULTATIONS_TABLE", "consultations"),
		UserProfilesTable:  getEnv("USER_PROFILES_TABLE", "user_profiles"),
		CountersTable:      getEnv("COUNTERS_TABLE", "counters"),

		PaymentTermDays: getEnvAsInt("PAYMENT_TERM_DAYS", 30),
		CacheTTL:        getEnvAsDuration("ENTITY_CACHE_TTL", 5*time.Minute),
		PracticeName:    getEnv("PRACTICE_NAME", "Cabinet d'ostéopathie"),
		PracticeAddress: getEnv("PRACTICE_ADDRESS", ""),
		PracticeSIRET:   getEnv("PRACTICE_SIRET", ""),

		DocumentsBucket: getEnv("DOCUMENTS_BUCKET", ""),
		PresignTTL:      getEnvAsDuration("PRESIGN_TTL", 15*time.Minute),

		GotenbergURL:    getEnv("GOTENBERG_URL", ""),
		PDFQueueURL:     getEnv("PDF_QUEUE_URL", ""),
		PDFPollInterval: getEnvAsDuration("PDF_POLL_INTERVAL", 5*time.Second),

		SweepConcurrency: getEnvAsInt("SWEEP_CONCURRENCY", 8),
		SweepTimeout:     getEnvAsDuration("SWEEP_TIMEOUT", 5*time.Minute),
		SweepCron:        getEnv("SWEEP_CRON", "0 3 * * *"),

		DepositConcurrency: getEnvAsInt("DEPOSIT_CONCURRENCY", 8),
		PatientNameTTL:     getEnvAsDuration("PATIENT_NAME_TTL", 10*time.Minute),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		EmailFromAddress:  getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:     getEnv("EMAIL_FROM_NAME", "Cabinet d'ostéopathie"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		WelcomeEmailLogin: getEnv("WELCOME_EMAIL_LOGIN_URL", ""),

		CognitoRegion:     getEnv("COGNITO_REGION", getEnv("AWS_REGION", "eu-west-3")),
		CognitoUserPoolID: getEnv("COGNITO_USER_POOL_ID", ""),
		CognitoClientID:   getEnv("COGNITO_CLIENT_ID", ""),
		AuthDisabled:      getEnvAsBool("AUTH_DISABLED", false),
	}
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

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
