package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full runtime configuration, loaded once at startup.
type Config struct {
	Environment string

	Server   ServerConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	OTP      OTPConfig
	Channels ChannelsConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	AutoCertDir  string
	Domain       string
	Email        string
	CertFile     string
	KeyFile      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// OTPConfig is the lifecycle policy for issued codes.
type OTPConfig struct {
	Digits      int
	CodeTTL     time.Duration
	MaxAttempts int
	RateLimit   int
	RateWindow  time.Duration
}

// ChannelsConfig selects the active delivery provider per modality and
// carries the vendor credentials. A provider with empty credentials is
// not registered at startup.
type ChannelsConfig struct {
	ActiveSMS   string
	ActiveEmail string

	Hubtel  HubtelConfig
	Mnotify MnotifyConfig
	Arkesel ArkeselConfig
	Twilio  TwilioConfig
	SMTP    SMTPConfig
}

type HubtelConfig struct {
	ClientID     string
	ClientSecret string
	Sender       string
}

type MnotifyConfig struct {
	APIKey string
	Sender string
}

type ArkeselConfig struct {
	APIKey string
	Sender string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type LoggingConfig struct {
	Level  string
	Format string
}

var (
	globalConfig *Config
	once         sync.Once
)

// LoadConfig reads configuration from the environment (and an optional
// .env file outside production) exactly once.
func LoadConfig() *Config {
	once.Do(func() {
		env := getEnv("APP_ENV", "development")
		if env != "production" {
			// Missing .env is fine; env vars may be set directly.
			_ = godotenv.Load()
			env = getEnv("APP_ENV", env)
		}

		globalConfig = &Config{
			Environment: env,
			Server: ServerConfig{
				Host:         getEnv("SERVER_HOST", "0.0.0.0"),
				Port:         getEnvInt("SERVER_PORT", 8080),
				TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
				AutoCertDir:  getEnv("SERVER_AUTO_CERT_DIR", "/var/lib/otp-gateway/certs"),
				Domain:       getEnv("SERVER_DOMAIN", "localhost"),
				Email:        getEnv("SERVER_ACME_EMAIL", ""),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			},
			Kafka: KafkaConfig{
				Enabled: getEnvBool("KAFKA_ENABLED", false),
				Brokers: getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
				Topic:   getEnv("KAFKA_OTP_TOPIC", "otp-events"),
			},
			OTP: OTPConfig{
				Digits:      getEnvInt("OTP_DIGITS", 6),
				CodeTTL:     getEnvDuration("OTP_CODE_TTL", 10*time.Minute),
				MaxAttempts: getEnvInt("OTP_MAX_ATTEMPTS", 3),
				RateLimit:   getEnvInt("OTP_RATE_LIMIT", 3),
				RateWindow:  getEnvDuration("OTP_RATE_WINDOW", time.Hour),
			},
			Channels: ChannelsConfig{
				ActiveSMS:   getEnv("CHANNEL_SMS_PROVIDER", "log-sms"),
				ActiveEmail: getEnv("CHANNEL_EMAIL_PROVIDER", "log-email"),
				Hubtel: HubtelConfig{
					ClientID:     getEnv("HUBTEL_CLIENT_ID", ""),
					ClientSecret: getEnv("HUBTEL_CLIENT_SECRET", ""),
					Sender:       getEnv("HUBTEL_SENDER", ""),
				},
				Mnotify: MnotifyConfig{
					APIKey: getEnv("MNOTIFY_API_KEY", ""),
					Sender: getEnv("MNOTIFY_SENDER", ""),
				},
				Arkesel: ArkeselConfig{
					APIKey: getEnv("ARKESEL_API_KEY", ""),
					Sender: getEnv("ARKESEL_SENDER", ""),
				},
				Twilio: TwilioConfig{
					AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
					AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
					From:       getEnv("TWILIO_FROM", ""),
				},
				SMTP: SMTPConfig{
					Host:     getEnv("SMTP_HOST", ""),
					Port:     getEnvInt("SMTP_PORT", 587),
					Username: getEnv("SMTP_USERNAME", ""),
					Password: getEnv("SMTP_PASSWORD", ""),
					From:     getEnv("SMTP_FROM", ""),
				},
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		}
	})

	return globalConfig
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	if globalConfig == nil {
		return LoadConfig()
	}
	return globalConfig
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
