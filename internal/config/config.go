package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const minSecretLength = 32

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	RedisURL    string
	Port        string
	DevMode     bool
	LogLevel    string

	JWTAccessSecret  string
	JWTRefreshSecret string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration

	GoogleClientID   string
	DefaultAvatarURL string

	NotifyTransport   string
	KafkaBrokers      []string
	KafkaMailTopic    string
	NotifyQueueSize   int
	NotifyWorkers     int
	NotifySendTimeout time.Duration

	RateLimitPerMinute int
	// TrustProxyHeaders keys rate limits on X-Forwarded-For / X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var p envParser
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		DevMode:            p.getBool("DEV_MODE", false),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		AccessTokenTTL:     p.getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    p.getDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		DefaultAvatarURL:   getEnv("DEFAULT_AVATAR_URL", "/static/img/default-avatar.jpg"),
		NotifyTransport:    strings.ToLower(getEnv("NOTIFY_TRANSPORT", "log")),
		KafkaBrokers:       getList("KAFKA_BROKERS"),
		KafkaMailTopic:     getEnv("KAFKA_MAIL_TOPIC", "mail.outbound"),
		NotifyQueueSize:    p.getInt("NOTIFY_QUEUE_SIZE", 256),
		NotifyWorkers:      p.getInt("NOTIFY_WORKERS", 2),
		NotifySendTimeout:  p.getDuration("NOTIFY_SEND_TIMEOUT", 10*time.Second),
		RateLimitPerMinute: p.getInt("RATE_LIMIT_PER_MINUTE", 5),
		TrustProxyHeaders:  p.getBool("TRUST_PROXY_HEADERS", false),
	}
	if p.err != nil {
		return nil, p.err
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL environment variable is required")
	}

	cfg.JWTAccessSecret = os.Getenv("JWT_ACCESS_SECRET")
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET environment variable is required")
	}
	cfg.JWTRefreshSecret = os.Getenv("JWT_REFRESH_SECRET")
	if cfg.JWTRefreshSecret == "" {
		return nil, fmt.Errorf("JWT_REFRESH_SECRET environment variable is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.JWTAccessSecret) < minSecretLength {
		return fmt.Errorf("JWT_ACCESS_SECRET must be at least %d bytes", minSecretLength)
	}
	if len(c.JWTRefreshSecret) < minSecretLength {
		return fmt.Errorf("JWT_REFRESH_SECRET must be at least %d bytes", minSecretLength)
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be shorter than REFRESH_TOKEN_TTL")
	}
	switch c.NotifyTransport {
	case "log":
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS environment variable is required when NOTIFY_TRANSPORT=kafka")
		}
	default:
		return fmt.Errorf("unsupported NOTIFY_TRANSPORT %q", c.NotifyTransport)
	}
	if c.NotifyQueueSize <= 0 || c.NotifyWorkers <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE and NOTIFY_WORKERS must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}

// DatabaseTarget describes the configured database without credentials, for startup logs.
func (c *Config) DatabaseTarget() string {
	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return "(invalid DATABASE_URL)"
	}
	if u.Scheme == "sqlite" || u.Scheme == "file" {
		return u.Scheme + ":" + u.Opaque + u.Path
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	user := u.User.Username()
	if user == "" {
		user = "(none)"
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, strings.TrimPrefix(u.Path, "/"), user)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// envParser reads typed variables and keeps the first parse error.
type envParser struct {
	err error
}

func (p *envParser) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != "" && p.err == nil
}

func (p *envParser) fail(key, v string, err error) {
	p.err = fmt.Errorf("invalid %s %q: %w", key, v, err)
}

func (p *envParser) getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return d
}

func (p *envParser) getInt(key string, fallback int) int {
	v, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *envParser) getBool(key string, fallback bool) bool {
	v, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return b
}

func getList(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
