// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport modes.
const (
	TransportTwilio = "twilio"
	TransportLog    = "log"
)

// Config holds all application configuration.
type Config struct {
	Port      string
	DBPath    string
	LogLevel  slog.Level
	LogSource bool

	AgentIdentity      string
	SupervisorIdentity string

	Transport TransportConfig
	Catalog   CatalogConfig
	Retention RetentionConfig
	RateLimit RateLimitConfig
	MQTT      MQTTConfig

	CORSAllowedOrigins []string
	OperatorToken      string // empty disables supervisor injection over HTTP
	GRPCHealthAddr     string // empty disables the gRPC health server
	DispatchTimeout    time.Duration
}

// TransportConfig selects and configures the outbound channel.
type TransportConfig struct {
	Mode       string
	AccountSID string
	AuthToken  string
	From       string
	APIBase    string
}

// CatalogConfig holds the product catalog and order pricing settings.
type CatalogConfig struct {
	Path           string // empty uses the built-in catalog
	DeliveryCharge int
	PaymentDetails string
}

// RetentionConfig bounds stored orders and conversation history.
type RetentionConfig struct {
	OrderRetention int
	HistoryLimit   int
	HistoryTTL     time.Duration
	Interval       time.Duration
}

// RateLimitConfig throttles inbound webhook messages per sender.
type RateLimitConfig struct {
	RequestsPerWindow int // 0 disables limiting
	WindowDuration    time.Duration
}

// MQTTConfig enables order events over MQTT when Broker is set.
type MQTTConfig struct {
	Broker      string
	TopicPrefix string
	Username    string
	Password    string
	ClientID    string
}

// Enabled reports whether an MQTT broker is configured.
func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		Port:               getEnv("PORT", "5000"),
		DBPath:             getEnv("DB_PATH", "./data/handoff.db"),
		LogLevel:           level,
		LogSource:          getEnvBool("LOG_SOURCE", false),
		AgentIdentity:      getEnvFallback("AGENT_IDENTITY", "SELLER_NUMBER", ""),
		SupervisorIdentity: getEnvFallback("SUPERVISOR_IDENTITY", "SUPERVISOR_NUMBER", ""),
		Transport: TransportConfig{
			Mode:       strings.ToLower(getEnv("TRANSPORT_MODE", TransportTwilio)),
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			From:       getEnvFallback("TWILIO_FROM", "TWILIO_WHATSAPP_NUMBER", ""),
			APIBase:    getEnv("TWILIO_API_BASE", ""),
		},
		Catalog: CatalogConfig{
			Path:           getEnv("CATALOG_PATH", ""),
			DeliveryCharge: getEnvInt("DELIVERY_CHARGE", 200),
			PaymentDetails: getEnvFallback("PAYMENT_DETAILS", "POCHI_DETAILS", ""),
		},
		Retention: RetentionConfig{
			OrderRetention: getEnvInt("ORDER_RETENTION", 100),
			HistoryLimit:   getEnvInt("HISTORY_LIMIT", 50),
			HistoryTTL:     getEnvDuration("HISTORY_TTL", 720*time.Hour),
			Interval:       getEnvDuration("RETENTION_INTERVAL", time.Hour),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("SENDER_RATE_LIMIT", 0),
			WindowDuration:    getEnvDuration("SENDER_RATE_WINDOW", time.Minute),
		},
		MQTT: MQTTConfig{
			Broker:      getEnv("MQTT_BROKER", ""),
			TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "handoff"),
			Username:    getEnv("MQTT_USERNAME", ""),
			Password:    getEnv("MQTT_PASSWORD", ""),
			ClientID:    getEnv("MQTT_CLIENT_ID", "handoff-router"),
		},
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),
		OperatorToken:      getEnv("OPERATOR_TOKEN", ""),
		GRPCHealthAddr:     getEnv("GRPC_HEALTH_ADDR", ""),
		DispatchTimeout:    getEnvDuration("DISPATCH_TIMEOUT", 15*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.AgentIdentity == "" {
		return fmt.Errorf("AGENT_IDENTITY (or SELLER_NUMBER) is required")
	}
	if c.SupervisorIdentity != "" && c.SupervisorIdentity == c.AgentIdentity {
		return fmt.Errorf("SUPERVISOR_IDENTITY must differ from AGENT_IDENTITY")
	}

	switch c.Transport.Mode {
	case TransportTwilio:
		if c.Transport.AccountSID == "" || c.Transport.AuthToken == "" || c.Transport.From == "" {
			return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM are required when TRANSPORT_MODE=twilio")
		}
	case TransportLog:
	default:
		return fmt.Errorf("TRANSPORT_MODE must be %q or %q, got %q", TransportTwilio, TransportLog, c.Transport.Mode)
	}

	if c.Catalog.DeliveryCharge < 0 {
		return fmt.Errorf("DELIVERY_CHARGE must be >= 0")
	}
	if c.Retention.OrderRetention <= 0 {
		return fmt.Errorf("ORDER_RETENTION must be > 0")
	}
	if c.Retention.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be > 0")
	}
	if c.Retention.Interval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be > 0")
	}
	if c.RateLimit.RequestsPerWindow < 0 {
		return fmt.Errorf("SENDER_RATE_LIMIT must be >= 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("SENDER_RATE_WINDOW must be > 0")
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("DISPATCH_TIMEOUT must be > 0")
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvFallback reads key, then the legacy name, then fallback.
func getEnvFallback(key, legacy, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return getEnv(legacy, fallback)
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
