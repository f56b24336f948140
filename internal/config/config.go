package config

import (
	"fmt"
	"net"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the AutoML Pro server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Realtime  RealtimeConfig
	Email     EmailConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL            string
	ResultCacheTTL time.Duration
}

// RealtimeConfig selects where job change events come from.
type RealtimeConfig struct {
	Source        string
	Channel       string
	RetryInterval time.Duration
	BufferSize    int
}

type EmailConfig struct {
	APIKey        string
	APIURL        string
	SenderEmail   string
	SenderName    string
	AdminEmail    string
	SiteURL       string
	Timeout       time.Duration
	MaxRetries    int
	BaseDelay     time.Duration
	BetweenEmails time.Duration
}

type AuthConfig struct {
	TokenTTL time.Duration
}

type RateLimitConfig struct {
	RequestsPerMinute int
	PublicPerMinute   int
	// TrustedProxies are the only peers whose X-Forwarded-For is believed.
	TrustedProxies []*net.IPNet
}

// TelemetryConfig controls trace export. Tracing is off when OTLPEndpoint is empty.
type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
}

const (
	RealtimeSourcePostgres = "postgres"
	RealtimeSourceRedis    = "redis"
)

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("AUTOML_PORT", 8080),
			Env:  envString("AUTOML_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:            os.Getenv("REDIS_URL"),
			ResultCacheTTL: envDuration("RESULT_CACHE_TTL", time.Hour),
		},
		Realtime: RealtimeConfig{
			Source:        envString("REALTIME_SOURCE", RealtimeSourcePostgres),
			Channel:       envString("REALTIME_CHANNEL", "job_changes"),
			RetryInterval: envDuration("REALTIME_RETRY_INTERVAL", 5*time.Second),
			BufferSize:    envInt("REALTIME_BUFFER_SIZE", 64),
		},
		Email: EmailConfig{
			APIKey:        os.Getenv("BREVO_API_KEY"),
			APIURL:        envString("BREVO_API_URL", "https://api.brevo.com/v3/smtp/email"),
			SenderEmail:   envString("BREVO_SENDER_EMAIL", "noreply@automlgpt.com"),
			SenderName:    envString("BREVO_SENDER_NAME", "Auto-ML GPT"),
			AdminEmail:    os.Getenv("ADMIN_EMAIL"),
			SiteURL:       strings.TrimRight(envString("SITE_URL", "https://automlgpt.netlify.app"), "/"),
			Timeout:       envDuration("BREVO_TIMEOUT", 30*time.Second),
			MaxRetries:    envInt("BREVO_MAX_RETRIES", 3),
			BaseDelay:     envDuration("BREVO_RETRY_BASE_DELAY", 2*time.Second),
			BetweenEmails: envDuration("EMAIL_BETWEEN_DELAY", 2*time.Second),
		},
		Auth: AuthConfig{
			TokenTTL: envDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 100),
			PublicPerMinute:   envInt("RATE_LIMIT_PUBLIC_PER_MINUTE", 10),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  envString("OTEL_SERVICE_NAME", "automlpro-api"),
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
	}

	proxies, err := parseCIDRs(os.Getenv("RATE_LIMIT_TRUSTED_PROXIES"))
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_TRUSTED_PROXIES: %w", err)
	}
	cfg.RateLimit.TrustedProxies = proxies

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	switch c.Realtime.Source {
	case RealtimeSourcePostgres, RealtimeSourceRedis:
	default:
		return fmt.Errorf("REALTIME_SOURCE must be one of postgres, redis; got %q", c.Realtime.Source)
	}
	if c.Realtime.Channel == "" {
		return fmt.Errorf("REALTIME_CHANNEL must not be empty")
	}
	if c.Realtime.BufferSize <= 0 {
		return fmt.Errorf("REALTIME_BUFFER_SIZE must be positive, got %d", c.Realtime.BufferSize)
	}

	if c.Email.APIKey == "" {
		return fmt.Errorf("BREVO_API_KEY is required")
	}
	if !strings.HasPrefix(c.Email.APIURL, "http://") && !strings.HasPrefix(c.Email.APIURL, "https://") {
		return fmt.Errorf("BREVO_API_URL must start with http:// or https://, got %q", c.Email.APIURL)
	}
	if _, err := mail.ParseAddress(c.Email.SenderEmail); err != nil {
		return fmt.Errorf("BREVO_SENDER_EMAIL is not a valid address: %q", c.Email.SenderEmail)
	}
	if c.Email.AdminEmail != "" {
		if _, err := mail.ParseAddress(c.Email.AdminEmail); err != nil {
			return fmt.Errorf("ADMIN_EMAIL is not a valid address: %q", c.Email.AdminEmail)
		}
	}
	if c.Email.MaxRetries < 0 {
		return fmt.Errorf("BREVO_MAX_RETRIES must not be negative, got %d", c.Email.MaxRetries)
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive")
	}

	return nil
}

// parseCIDRs reads a comma-separated list of CIDR blocks. A bare address is
// taken as a single-host block.
func parseCIDRs(raw string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			ip := net.ParseIP(part)
			if ip == nil {
				return nil, fmt.Errorf("invalid address %q", part)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(part)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q", part)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
