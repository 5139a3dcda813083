package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BotToken     string
	PaymentToken string

	FreeChannel  string
	VIPChannelID string

	SubscriptionPrice int // major currency units (USD)
	SubscriptionDays  int
	ReconcileInterval time.Duration

	MongoURI   string
	RedisURL   string
	ServerPort string
	AdminToken string

	SMTPHost   string
	SMTPPort   string
	SMTPUser   string
	SMTPPass   string
	AlertEmail string
}

// LoadConfig reads the environment (optionally seeded from .env). The two
// credentials are hard requirements: without them the process must not start.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		BotToken:          os.Getenv("BOT_TOKEN"),
		PaymentToken:      os.Getenv("PAYMENT_TOKEN"),
		FreeChannel:       getEnv("FREE_CHANNEL", "@yallabets"),
		VIPChannelID:      getEnv("VIP_CHANNEL_ID", "-1003495823265"),
		SubscriptionPrice: getEnvInt("SUBSCRIPTION_PRICE", 20),
		SubscriptionDays:  getEnvInt("SUBSCRIPTION_DAYS", 30),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", time.Hour),
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		RedisURL:          os.Getenv("REDIS_URL"),
		ServerPort:        getEnv("SERVER_PORT", ":8080"),
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPPort:          getEnv("SMTP_PORT", "587"),
		SMTPUser:          os.Getenv("SMTP_USER"),
		SMTPPass:          os.Getenv("SMTP_PASS"),
		AlertEmail:        os.Getenv("ALERT_EMAIL"),
	}

	if cfg.BotToken == "" {
		return nil, errors.New("BOT_TOKEN is not set")
	}
	if cfg.PaymentToken == "" {
		return nil, errors.New("PAYMENT_TOKEN is not set")
	}
	return cfg, nil
}

// AlertsEnabled reports whether operator email alerts are fully configured.
func (c *Config) AlertsEnabled() bool {
	return c.SMTPHost != "" && c.SMTPUser != "" && c.AlertEmail != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
