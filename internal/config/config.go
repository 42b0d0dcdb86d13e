package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting the API and the CLI read from the environment.
type Config struct {
	AppEnv  string
	AppName string
	Port    string
	BaseURL string

	DB DBConfig

	RedisURL string

	JWTSecret string
	JWTExpire time.Duration

	CORSAllowedOrigins []string

	Mail MailConfig

	// StrictDelivery surfaces OTP delivery failures to the caller instead of
	// swallowing them.
	StrictDelivery bool

	RateLimit RateLimitConfig

	JanitorInterval time.Duration

	Storage StorageConfig

	// Missing lists required keys that were not set. Callers decide whether
	// that is fatal.
	Missing []string
}

type DBConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	SSLMode  string
}

// DSN renders the postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode,
	)
}

type MailConfig struct {
	Provider     string // smtp, resend or log
	From         string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	ResendAPIKey string
}

type RateLimitConfig struct {
	Enabled       bool
	ResetRequests int
	Window        time.Duration
}

type StorageConfig struct {
	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string
	S3Bucket     string
	UploadDir    string
}

// UseS3 reports whether enough AWS settings are present to talk to S3.
func (s StorageConfig) UseS3() bool {
	return s.AWSRegion != "" && s.AWSAccessKey != "" && s.AWSSecretKey != "" && s.S3Bucket != ""
}

// IsDevelopment reports whether APP_ENV is development.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// Load reads the configuration from the process environment. It never fails;
// required-but-absent keys are recorded in Missing.
func Load() *Config {
	cfg := &Config{}
	required := func(key string) string {
		v := GetEnv(key)
		if v == "" {
			cfg.Missing = append(cfg.Missing, key)
		}
		return v
	}

	cfg.AppEnv = GetEnvAsStr("APP_ENV", "production")
	cfg.AppName = GetEnvAsStr("APP_NAME", "YangPentingMakan")
	cfg.Port = GetEnvAsStr("PORT", "8080")
	cfg.BaseURL = GetEnvAsStr("BASE_URL", "http://localhost:"+cfg.Port)

	cfg.DB = DBConfig{
		Host:     GetEnvAsStr("DB_HOST", "localhost"),
		User:     GetEnvAsStr("DB_USER", "postgres"),
		Password: GetEnv("DB_PASSWORD"),
		Name:     GetEnvAsStr("DB_NAME", "lkmo"),
		Port:     GetEnvAsStr("DB_PORT", "5432"),
		SSLMode:  GetEnvAsStr("DB_SSLMODE", "disable"),
	}

	cfg.RedisURL = GetEnvAsStr("REDIS_URL", "redis://localhost:6379")

	cfg.JWTSecret = required("JWT_SECRET")
	cfg.JWTExpire = GetEnvAsDuration("JWT_EXPIRE", 7*24*time.Hour)

	cfg.CORSAllowedOrigins = splitList(GetEnv("CORS_ALLOWED_ORIGINS"))

	cfg.Mail = MailConfig{
		Provider:     strings.ToLower(GetEnvAsStr("MAIL_PROVIDER", "smtp")),
		From:         GetEnvAsStr("EMAIL_FROM", "noreply@lkmo.com"),
		SMTPHost:     GetEnv("SMTP_HOST"),
		SMTPPort:     GetEnvAsInt("SMTP_PORT", 587, true),
		SMTPUser:     GetEnv("SMTP_USER"),
		SMTPPassword: GetEnv("SMTP_PASS"),
		ResendAPIKey: GetEnv("RESEND_API_KEY"),
	}

	cfg.StrictDelivery = GetEnvAsBool("RESET_STRICT_DELIVERY", !cfg.IsDevelopment())

	cfg.RateLimit = RateLimitConfig{
		Enabled:       GetEnvAsBool("RATE_LIMIT_ENABLED", true),
		ResetRequests: GetEnvAsInt("RATE_LIMIT_RESET_REQUESTS", 10, true),
		Window:        GetEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
	}

	cfg.JanitorInterval = GetEnvAsDuration("JANITOR_INTERVAL", 30*time.Minute)

	cfg.Storage = StorageConfig{
		AWSRegion:    GetEnv("AWS_REGION"),
		AWSAccessKey: GetEnv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey: GetEnv("AWS_SECRET_ACCESS_KEY"),
		S3Bucket:     GetEnv("AWS_S3_BUCKET"),
		UploadDir:    GetEnvAsStr("UPLOAD_DIR", "./uploads"),
	}

	return cfg
}

// GetEnv fetches a key or returns an empty string.
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetEnvAsStr fetches a key or returns a fallback value.
func GetEnvAsStr(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

// GetEnvAsInt fetches a key as integer, or returns fallback when it is unset,
// malformed, or not positive while ensurePositive is set.
func GetEnvAsInt(key string, fallback int, ensurePositive bool) int {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	if ensurePositive && value <= 0 {
		return fallback
	}
	return value
}

func GetEnvAsBool(key string, fallback bool) bool {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	return value
}

// GetEnvAsDuration accepts Go duration strings ("15m", "168h").
func GetEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimRight(strings.TrimSpace(part), "/")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
