package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Scheduler struct {
	Spec           string
	CatchUpWindow  time.Duration
	Concurrency    int
	StatusPolicy   string // mark_done, retry
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	LeaseTTL       time.Duration
}

type Twitter struct {
	UploadURL       string
	ChunkSize       int
	PollInterval    time.Duration
	MaxPollAttempts int
	MaxMediaBytes   int64
	FetchTimeout    time.Duration
}

type Webhook struct {
	Timeout    time.Duration
	RatePerSec int
}

type Slack struct {
	Token   string
	Channel string
}

type Config struct {
	Port                string
	PostgresURI         string
	RedisURI            string
	SecretKey           string
	CookieName          string
	SessionTTL          time.Duration
	PlatformConcurrency int
	R2                  R2
	Scheduler           Scheduler
	Twitter             Twitter
	Webhook             Webhook
	Slack               Slack
}

func LoadConfig() *Config {
	return &Config{
		Port:                getEnv("PORT", "3000"),
		PostgresURI:         getEnv("POSTGRES_URI", ""),
		RedisURI:            getEnv("REDIS_URI", "localhost:6379"),
		SecretKey:           getEnv("SECRET_KEY", ""),
		CookieName:          getEnv("COOKIE_NAME", "session"),
		SessionTTL:          getEnvDuration("SESSION_TTL", 24*time.Hour),
		PlatformConcurrency: getEnvInt("PLATFORM_CONCURRENCY", 4),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		Scheduler: Scheduler{
			Spec:           getEnv("SCHEDULER_SPEC", "0 0 * * * *"),
			CatchUpWindow:  getEnvDuration("SCHEDULER_CATCHUP_WINDOW", 24*time.Hour),
			Concurrency:    getEnvInt("SCHEDULER_CONCURRENCY", 5),
			StatusPolicy:   getEnv("SCHEDULER_STATUS_POLICY", "mark_done"),
			MaxAttempts:    getEnvInt("SCHEDULER_MAX_ATTEMPTS", 3),
			RetryBaseDelay: getEnvDuration("SCHEDULER_RETRY_BASE_DELAY", time.Hour),
			RetryMaxDelay:  getEnvDuration("SCHEDULER_RETRY_MAX_DELAY", 12*time.Hour),
			LeaseTTL:       getEnvDuration("SCHEDULER_LEASE_TTL", 30*time.Minute),
		},
		Twitter: Twitter{
			UploadURL:       getEnv("TWITTER_UPLOAD_URL", "https://upload.twitter.com/1.1/media/upload.json"),
			ChunkSize:       getEnvInt("TWITTER_CHUNK_SIZE", 5*1024*1024),
			PollInterval:    getEnvDuration("TWITTER_POLL_INTERVAL", 5*time.Second),
			MaxPollAttempts: getEnvInt("TWITTER_MAX_POLL_ATTEMPTS", 60),
			MaxMediaBytes:   int64(getEnvInt("TWITTER_MAX_MEDIA_BYTES", 50*1024*1024)),
			FetchTimeout:    getEnvDuration("MEDIA_FETCH_TIMEOUT", 60*time.Second),
		},
		Webhook: Webhook{
			Timeout:    getEnvDuration("WEBHOOK_TIMEOUT", 30*time.Second),
			RatePerSec: getEnvInt("WEBHOOK_RATE_PER_SEC", 10),
		},
		Slack: Slack{
			Token:   getEnv("SLACK_BOT_TOKEN", ""),
			Channel: getEnv("SLACK_CHANNEL", ""),
		},
	}
}

func (c *Config) Validate() error {
	if c.PostgresURI == "" {
		return errors.New("POSTGRES_URI is required")
	}
	if c.SecretKey == "" {
		return errors.New("SECRET_KEY is required")
	}
	switch len(c.SecretKey) {
	case 16, 24, 32:
	default:
		return errors.New("SECRET_KEY must be 16, 24 or 32 bytes")
	}
	if c.Scheduler.StatusPolicy != "mark_done" && c.Scheduler.StatusPolicy != "retry" {
		return errors.New("SCHEDULER_STATUS_POLICY must be mark_done or retry")
	}
	if c.Twitter.ChunkSize <= 0 {
		return errors.New("TWITTER_CHUNK_SIZE must be positive")
	}
	return nil
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
