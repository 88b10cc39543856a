package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type NSQ struct {
	NsqdTCPAddr    string // e.g. nsqd:4150
	NsqdHTTPAddr   string // e.g. nsqd:4151, stats polling
	LookupHTTPAddr string // e.g. http://nsqlookupd:4161
	EmailsQueue    string // queue for notification tasks
	WorkerChannel  string // channel name shared by worker instances
	DLQSuffix      string // appended to a queue name for its dead-letter queue
}

type Worker struct {
	Concurrency  int           // worker execution contexts per queue
	BaseDelay    time.Duration // retry base delay
	MaxRetries   int           // default attempt budget per task
	DelayCeiling time.Duration // backoff cap
	ExecTimeout  time.Duration // per-attempt handler deadline
	GracePeriod  time.Duration // shutdown drain deadline
	HTTPPort     string        // worker metrics/health port
}

type SMTP struct {
	Host string
	Port string
	User string
	Pass string
	From string
}

type Gateway struct {
	BaseURL       string // payment provider API base
	SecretKey     string // bearer token for API calls
	WebhookSecret string // HMAC key for inbound webhook signatures
	CallbackURL   string // webhook URL handed to the provider at checkout
	Timeout       time.Duration
}

type Redis struct {
	Addr     string
	Enabled  bool          // envelope-id dedup on/off
	DedupTTL time.Duration // how long a seen envelope id is remembered
}

type Config struct {
	AppName  string
	HTTPPort string // reconciler HTTP port
	DB       DB
	NSQ      NSQ
	Worker   Worker
	SMTP     SMTP
	Gateway  Gateway
	Redis    Redis
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func FromEnv() Config {
	return Config{
		AppName:  getenv("APP_NAME", "traveltasks"),
		HTTPPort: ":" + getenv("HTTP_PORT", "8080"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "traveltasks"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			NsqdHTTPAddr:   getenv("NSQD_HTTP_ADDR", "nsqd:4151"),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			EmailsQueue:    getenv("NSQ_EMAILS_QUEUE", "emails"),
			WorkerChannel:  getenv("NSQ_WORKER_CHANNEL", "workers"),
			DLQSuffix:      getenv("NSQ_DLQ_SUFFIX", "_dlq"),
		},
		Worker: Worker{
			Concurrency:  getenvInt("WORKER_CONCURRENCY", 4),
			BaseDelay:    getenvDuration("RETRY_BASE_DELAY", time.Minute),
			MaxRetries:   getenvInt("RETRY_MAX_RETRIES", 3),
			DelayCeiling: getenvDuration("RETRY_DELAY_CEILING", 10*time.Minute),
			ExecTimeout:  getenvDuration("WORKER_EXEC_TIMEOUT", 60*time.Second),
			GracePeriod:  getenvDuration("WORKER_GRACE_PERIOD", 30*time.Second),
			HTTPPort:     ":" + getenv("WORKER_HTTP_PORT", "8082"),
		},
		SMTP: SMTP{
			Host: getenv("SMTP_HOST", "localhost"),
			Port: getenv("SMTP_PORT", "1025"),
			User: getenv("SMTP_USER", ""),
			Pass: getenv("SMTP_PASS", ""),
			From: getenv("SMTP_FROM", "noreply@alxtravel.example"),
		},
		Gateway: Gateway{
			BaseURL:       getenv("GATEWAY_BASE_URL", "https://api.chapa.co/v1"),
			SecretKey:     getenv("GATEWAY_SECRET_KEY", ""),
			WebhookSecret: getenv("GATEWAY_WEBHOOK_SECRET", ""),
			CallbackURL:   getenv("GATEWAY_CALLBACK_URL", ""),
			Timeout:       getenvDuration("GATEWAY_TIMEOUT", 30*time.Second),
		},
		Redis: Redis{
			Addr:     getenv("REDIS_ADDR", "redis:6379"),
			Enabled:  getenvBool("DEDUP_ENABLED", false),
			DedupTTL: getenvDuration("DEDUP_TTL", 24*time.Hour),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
