package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"fixitnow/chatdesk/internal/models"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string

	// Server
	ApiPort           string
	ServiceApiPort    string
	CorsAllowedOrigin string

	// Chat
	ChatAllowFileUploads   bool
	ChatMaxFileSize        int64
	ChatAutoCloseAfterDays int
	ChatListLimit          int

	// Disputes
	DisputeDeadline        time.Duration
	DisputeEscalationAfter time.Duration
	StatsCacheTTL          time.Duration
	DisputeDeskEmail       string

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string
	MockServices    bool   // capture outgoing mail in Redis instead of SMTP
	EmailLogFile    string // optional, appends every outgoing message

	// AWS S3
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	AwsS3Endpoint      string // optional, for S3-compatible stores
	ImageBaseS3URL     string
	ImageMaxDimension  int // largest source side a thumbnail is rendered from
	ThumbnailDimension int
	UploadURLTTL       time.Duration

	// App Defaults
	AppName string

	// Rate Limiting Defaults
	RateLimitBucketSize int
	RateLimitRefillRate int // tokens per second
}

// ChatDefaults returns the settings new conversations start with.
func (c *Config) ChatDefaults() models.ChatDefaults {
	return models.ChatDefaults{
		AllowFileUploads:   c.ChatAllowFileUploads,
		MaxFileSize:        c.ChatMaxFileSize,
		AutoCloseAfterDays: c.ChatAutoCloseAfterDays,
	}
}

// DisputeTimings returns the response windows applied to new disputes.
func (c *Config) DisputeTimings() models.DisputeTimings {
	return models.DisputeTimings{Deadline: c.DisputeDeadline, EscalationAfter: c.DisputeEscalationAfter}
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getInt := func(key, defaultValue string) (int, error) {
		v, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return v, nil
	}

	getDuration := func(key, defaultValue string, unit time.Duration) (time.Duration, error) {
		v, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return time.Duration(v) * unit, nil
	}

	// Load basic string values
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "fixitnow")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.CorsAllowedOrigin = getEnv("CORS_ALLOWED_ORIGIN", "*")
	cfg.DisputeDeskEmail = getEnv("DISPUTE_DESK_EMAIL", "")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@fixitnow.example.com")
	cfg.EmailLogFile = getEnv("LOG_EMAILS", "")
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.AwsS3Endpoint = getEnv("AWS_S3_ENDPOINT", "")
	cfg.ImageBaseS3URL = getEnv("IMAGE_BASE_S3_URL", "")
	cfg.AppName = getEnv("APP_NAME", "FixItNow")

	cfg.ChatAllowFileUploads, err = strconv.ParseBool(getEnv("CHAT_ALLOW_FILE_UPLOADS", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHAT_ALLOW_FILE_UPLOADS: %w", err)
	}
	cfg.MockServices, err = strconv.ParseBool(getEnv("MOCK_SERVICES", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid MOCK_SERVICES: %w", err)
	}
	cfg.ChatMaxFileSize, err = strconv.ParseInt(getEnv("CHAT_MAX_FILE_SIZE", "5242880"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CHAT_MAX_FILE_SIZE: %w", err)
	}

	// Load numeric and time duration values with defaults and parsing
	if cfg.RedisDB, err = getInt("REDIS_DB", "0"); err != nil {
		return nil, err
	}
	if cfg.SmtpPort, err = getInt("SMTP_PORT", "587"); err != nil {
		return nil, err
	}
	if cfg.ChatAutoCloseAfterDays, err = getInt("CHAT_AUTO_CLOSE_AFTER_DAYS", "30"); err != nil {
		return nil, err
	}
	if cfg.ChatListLimit, err = getInt("CHAT_LIST_LIMIT", "20"); err != nil {
		return nil, err
	}
	if cfg.ImageMaxDimension, err = getInt("IMAGE_MAX_DIMENSION", "8192"); err != nil {
		return nil, err
	}
	if cfg.ThumbnailDimension, err = getInt("THUMBNAIL_DIMENSION", "320"); err != nil {
		return nil, err
	}
	if cfg.DisputeDeadline, err = getDuration("DISPUTE_DEADLINE_HOURS", "168", time.Hour); err != nil {
		return nil, err
	}
	if cfg.DisputeEscalationAfter, err = getDuration("DISPUTE_ESCALATION_HOURS", "72", time.Hour); err != nil {
		return nil, err
	}
	if cfg.StatsCacheTTL, err = getDuration("STATS_CACHE_TTL_SECONDS", "60", time.Second); err != nil {
		return nil, err
	}
	if cfg.UploadURLTTL, err = getDuration("UPLOAD_URL_TTL_SECONDS", "900", time.Second); err != nil {
		return nil, err
	}

	// Rate Limiting
	if cfg.RateLimitBucketSize, err = getInt("RATE_LIMIT_BUCKET_SIZE", "20"); err != nil {
		return nil, err
	}
	if cfg.RateLimitRefillRate, err = getInt("RATE_LIMIT_REFILL_RATE", "5"); err != nil {
		return nil, err
	}

	if cfg.ChatMaxFileSize <= 0 {
		return nil, fmt.Errorf("invalid CHAT_MAX_FILE_SIZE: must be positive")
	}

	return cfg, nil
}
