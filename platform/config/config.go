// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides Redis/asynq settings for background tasks.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// IngestionConfig provides settings for lead normalization and deduplication.
type IngestionConfig interface {
	GetDedupWindow() time.Duration
	GetPhoneRegion() string
	GetReportLocation() *time.Location
}

// WebhookListenerConfig provides settings for the mapping inference listener.
type WebhookListenerConfig interface {
	GetWebhookListenInterval() time.Duration
	GetWebhookListenTimeout() time.Duration
}

// AreaCodeCacheConfig provides settings for the Redis area-code cache.
type AreaCodeCacheConfig interface {
	GetRedisURL() string
	GetAreaCodeCacheTTL() time.Duration
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketWebhookPayloads() string
	IsMinIOEnabled() bool
}

// EmailConfig provides settings for new-lead notification emails.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetLeadNotifyAddress() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                       string
	HTTPAddr                  string
	DatabaseURL               string
	MigrationsEnabled         bool
	CORSAllowAll              bool
	CORSOrigins               []string
	CORSAllowCreds            bool
	RedisURL                  string
	RedisTLSInsecure          bool
	AsynqQueueName            string
	AsynqConcurrency          int
	DedupWindow               time.Duration
	PhoneRegion               string
	ReportTimezone            string
	WebhookListenInterval     time.Duration
	WebhookListenTimeout      time.Duration
	AreaCodeCacheTTL          time.Duration
	MinIOEndpoint             string
	MinIOAccessKey            string
	MinIOSecretKey            string
	MinIOUseSSL               bool
	MinIOMaxFileSize          int64
	MinioBucketWebhookPayload string
	EmailEnabled              bool
	SMTPHost                  string
	SMTPPort                  int
	SMTPUsername              string
	SMTPPassword              string
	EmailFromName             string
	EmailFromAddress          string
	LeadNotifyAddress         string

	reportLocation *time.Location
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// IngestionConfig implementation
func (c *Config) GetDedupWindow() time.Duration { return c.DedupWindow }
func (c *Config) GetPhoneRegion() string        { return c.PhoneRegion }
func (c *Config) GetReportLocation() *time.Location {
	if c.reportLocation != nil {
		return c.reportLocation
	}
	return time.UTC
}

// WebhookListenerConfig implementation
func (c *Config) GetWebhookListenInterval() time.Duration { return c.WebhookListenInterval }
func (c *Config) GetWebhookListenTimeout() time.Duration  { return c.WebhookListenTimeout }

// AreaCodeCacheConfig implementation
func (c *Config) GetAreaCodeCacheTTL() time.Duration { return c.AreaCodeCacheTTL }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string              { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string             { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string             { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool                  { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64            { return c.MinIOMaxFileSize }
func (c *Config) GetMinioBucketWebhookPayloads() string { return c.MinioBucketWebhookPayload }
func (c *Config) IsMinIOEnabled() bool                  { return c.MinIOEndpoint != "" }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool        { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string          { return c.SMTPHost }
func (c *Config) GetSMTPPort() int             { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string      { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string      { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string     { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string  { return c.EmailFromAddress }
func (c *Config) GetLeadNotifyAddress() string { return c.LeadNotifyAddress }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                       getEnv("APP_ENV", "development"),
		HTTPAddr:                  getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:               getEnv("DATABASE_URL", ""),
		MigrationsEnabled:         strings.EqualFold(getEnv("DB_MIGRATIONS_ENABLED", "true"), "true"),
		CORSAllowAll:              corsAllowAll,
		CORSOrigins:               corsOrigins,
		CORSAllowCreds:            strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:                  getEnv("REDIS_URL", ""),
		RedisTLSInsecure:          strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:            getEnv("ASYNQ_QUEUE", "leads"),
		AsynqConcurrency:          mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		DedupWindow:               mustDuration(getEnv("LEAD_DEDUP_WINDOW", "30s")),
		PhoneRegion:               strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "BR")),
		ReportTimezone:            getEnv("REPORT_TIMEZONE", "America/Sao_Paulo"),
		WebhookListenInterval:     mustDuration(getEnv("WEBHOOK_LISTEN_INTERVAL", "5s")),
		WebhookListenTimeout:      mustDuration(getEnv("WEBHOOK_LISTEN_TIMEOUT", "3m")),
		AreaCodeCacheTTL:          mustDuration(getEnv("AREA_CODE_CACHE_TTL", "24h")),
		MinIOEndpoint:             getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:            getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:            getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:               strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOMaxFileSize:          mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "1048576")),
		MinioBucketWebhookPayload: getEnv("MINIO_BUCKET_WEBHOOK_PAYLOADS", "webhook-payloads"),
		EmailEnabled:              emailEnabled && smtpHost != "",
		SMTPHost:                  smtpHost,
		SMTPPort:                  mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:              getEnv("SMTP_USERNAME", ""),
		SMTPPassword:              getEnv("SMTP_PASSWORD", ""),
		EmailFromName:             getEnv("EMAIL_FROM_NAME", "Leads"),
		EmailFromAddress:          getEnv("EMAIL_FROM_ADDRESS", ""),
		LeadNotifyAddress:         getEnv("LEAD_NOTIFY_ADDRESS", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.DedupWindow <= 0 {
		return nil, fmt.Errorf("LEAD_DEDUP_WINDOW must be a positive duration")
	}
	if cfg.WebhookListenInterval <= 0 || cfg.WebhookListenTimeout <= 0 {
		return nil, fmt.Errorf("WEBHOOK_LISTEN_INTERVAL and WEBHOOK_LISTEN_TIMEOUT must be positive durations")
	}
	if cfg.EmailEnabled && (cfg.EmailFromAddress == "" || cfg.LeadNotifyAddress == "") {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS and LEAD_NOTIFY_ADDRESS are required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	loc, err := time.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", cfg.ReportTimezone, err)
	}
	cfg.reportLocation = loc

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
