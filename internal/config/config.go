package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr          string
	PostgresDSN       string
	RedisAddr         string
	KafkaBrokers      []string
	AuditTopic        string
	JWTSecret         string
	WebhookSecret     string
	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayBaseURL   string
	ClipDropAPIKey    string
	ClipDropBaseURL   string
	Currency          string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:          os.Getenv("HTTP_ADDR"),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		KafkaBrokers:      []string{os.Getenv("KAFKA_BROKER")},
		AuditTopic:        os.Getenv("KAFKA_AUDIT_TOPIC"),
		JWTSecret:         os.Getenv("CLERK_JWT_SECRET"),
		WebhookSecret:     os.Getenv("CLERK_WEBHOOK_SECRET"),
		RazorpayKeyID:     os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayBaseURL:   os.Getenv("RAZORPAY_BASE_URL"),
		ClipDropAPIKey:    os.Getenv("CLIPDROP_API_KEY"),
		ClipDropBaseURL:   os.Getenv("CLIPDROP_BASE_URL"),
		Currency:          os.Getenv("CURRENCY"),
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "host=localhost user=postgres password=postgres dbname=bgremoval sslmode=disable"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if len(cfg.KafkaBrokers) == 1 && cfg.KafkaBrokers[0] == "" {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.AuditTopic == "" {
		cfg.AuditTopic = "ledger-audit"
	}
	if cfg.RazorpayBaseURL == "" {
		cfg.RazorpayBaseURL = "https://api.razorpay.com/v1"
	}
	if cfg.ClipDropBaseURL == "" {
		cfg.ClipDropBaseURL = "https://clipdrop-api.co"
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"audit_topic", cfg.AuditTopic,
		"currency", cfg.Currency)
	return cfg
}
