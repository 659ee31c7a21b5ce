package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	ServiceName string
	HTTPPort    int
	LogLevel    string

	DatabaseURL string

	CatalogBaseURL string
	CatalogTimeout time.Duration

	RabbitMQ RabbitMQConfig

	PublishTimeout        time.Duration
	ConsumerRetryInterval time.Duration
	NotificationQueue     string
	DeadLetterExchange    string

	RedisURL    string
	DedupeTTL   time.Duration
	CORSOrigins []string
}

type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
	Exchange string
}

// URL builds the amqp:// connection string.
func (r RabbitMQConfig) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(r.User, r.Password),
		Host:   fmt.Sprintf("%s:%d", r.Host, r.Port),
		Path:   "/" + r.VHost,
	}
	if r.VHost == "/" {
		u.Path = "/"
	}
	return u.String()
}

// Load reads the process environment (and .env, via godotenv autoload).
func Load(serviceName string) (Config, error) {
	l := loader{}
	cfg := Config{
		ServiceName: env("SERVICE_NAME", serviceName),
		HTTPPort:    l.int("HTTP_PORT", 8080),
		LogLevel:    env("LOG_LEVEL", "info"),

		DatabaseURL: databaseURL(),

		CatalogBaseURL: strings.TrimRight(env("CATALOG_BASE_URL", "http://localhost:5035"), "/"),
		CatalogTimeout: l.duration("CATALOG_TIMEOUT", 3*time.Second),

		RabbitMQ: RabbitMQConfig{
			Host:     env("RABBITMQ_HOST", "localhost"),
			Port:     l.int("RABBITMQ_PORT", 5672),
			User:     env("RABBITMQ_USER", "guest"),
			Password: env("RABBITMQ_PASSWORD", "guest"),
			VHost:    env("RABBITMQ_VHOST", "/"),
			Exchange: env("RABBITMQ_EXCHANGE", "order.exchange"),
		},

		PublishTimeout:        l.duration("PUBLISH_TIMEOUT", 5*time.Second),
		ConsumerRetryInterval: l.duration("CONSUMER_RETRY_INTERVAL", 5*time.Second),
		NotificationQueue:     env("NOTIFICATION_QUEUE", "notification.order.created.queue"),
		DeadLetterExchange:    env("DEAD_LETTER_EXCHANGE", ""),

		RedisURL:    env("REDIS_URL", ""),
		DedupeTTL:   l.duration("DEDUPE_TTL", 72*time.Hour),
		CORSOrigins: parseCSV(env("CORS_ALLOWED_ORIGINS", "*")),
	}
	if l.err != nil {
		return Config{}, l.err
	}
	return cfg, nil
}

// databaseURL prefers DATABASE_URL and falls back to the BLUEPRINT_DB_* parts.
func databaseURL() string {
	if v := env("DATABASE_URL", ""); v != "" {
		return v
	}
	if os.Getenv("BLUEPRINT_DB_HOST") == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		url.QueryEscape(os.Getenv("BLUEPRINT_DB_USERNAME")),
		url.QueryEscape(os.Getenv("BLUEPRINT_DB_PASSWORD")),
		os.Getenv("BLUEPRINT_DB_HOST"),
		env("BLUEPRINT_DB_PORT", "5432"),
		os.Getenv("BLUEPRINT_DB_DATABASE"),
		env("BLUEPRINT_DB_SCHEMA", "public"),
	)
}

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func parseCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loader keeps the first parse error so Load can report it once.
type loader struct {
	err error
}

func (l *loader) int(key string, def int) int {
	v := env(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("config: %s: %w", key, err)
	}
	return n
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	v := env(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err == nil && d <= 0 {
		err = fmt.Errorf("must be positive, got %s", v)
	}
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("config: %s: %w", key, err)
	}
	return d
}
