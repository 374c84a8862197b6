package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for both services.
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Approval     ApprovalConfig
	SMTP         SMTPConfig
	Fleet        FleetConfig
	Outbox       OutboxConfig
	Kafka        KafkaConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	FleetlinkPort         string
	Version               string
	BaseURL               string
	RequestTimeoutSeconds int
}

// DatabaseConfig holds DB connection values.
type DatabaseConfig struct {
	DSN                   string
	Server                string
	Port                  string
	Database              string
	Username              string
	Password              string
	SSLMode               string
	MaxConns              int32
	MinConns              int32
	RunMigrations         bool
	ConnMaxIdleSec        int32
	ConnMaxLifeSec        int32
	ConnectTimeoutSeconds int
	QueryTimeoutSeconds   int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines staff authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// ApprovalConfig configures signed email links.
type ApprovalConfig struct {
	HMACSecret  string
	MaxAgeHours int
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	TimeoutSeconds int
}

// FleetConfig configures the vehicle trip workflow.
type FleetConfig struct {
	ManagerEmail         string
	SweepIntervalMinutes int
	UnaccountedHours     int
	FormSecret           string
}

// OutboxConfig configures the outbox relay.
type OutboxConfig struct {
	PollIntervalSeconds int
	BatchSize           int
	MaxAttempts         int
}

// KafkaConfig enables publishing lifecycle events to a topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NotificationConfig holds notification recipients.
type NotificationConfig struct {
	AdminEmail string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	managerEmail := os.Getenv("FLEET_MANAGER_EMAIL")

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "opsdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			FleetlinkPort:         getEnv("FLEETLINK_PORT", "8081"),
			Version:               getEnv("APP_VERSION", "dev"),
			BaseURL:               strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8081"), "/"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Database: DatabaseConfig{
			DSN:                   os.Getenv("DATABASE_DSN"),
			Server:                os.Getenv("DB_SERVER"),
			Port:                  getEnv("DB_PORT", "5432"),
			Database:              os.Getenv("DB_DATABASE"),
			Username:              os.Getenv("DB_USERNAME"),
			Password:              os.Getenv("DB_PASSWORD"),
			SSLMode:               getEnv("DB_SSLMODE", "require"),
			MaxConns:              int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:              int32(getEnvAsInt("DB_MIN_CONNS", 1)),
			RunMigrations:         getEnvAsBool("DB_RUN_MIGRATIONS", false),
			ConnMaxIdleSec:        int32(getEnvAsInt("DB_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec:        int32(getEnvAsInt("DB_CONN_MAX_LIFE_SECONDS", 300)),
			ConnectTimeoutSeconds: getEnvAsInt("DB_CONNECT_TIMEOUT_SECONDS", 30),
			QueryTimeoutSeconds:   getEnvAsInt("DB_QUERY_TIMEOUT_SECONDS", 60),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Approval: ApprovalConfig{
			HMACSecret:  os.Getenv("HMAC_SECRET"),
			MaxAgeHours: getEnvAsInt("APPROVAL_LINK_MAX_AGE_HOURS", 7*24),
		},
		SMTP: SMTPConfig{
			Host:           os.Getenv("SMTP_HOST"),
			Port:           smtpPort,
			Username:       os.Getenv("SMTP_USER"),
			Password:       os.Getenv("SMTP_PASS"),
			From:           getEnv("SMTP_FROM", getEnv("SMTP_USER", "noreply@example.com")),
			TimeoutSeconds: getEnvAsInt("SMTP_TIMEOUT_SECONDS", 30),
		},
		Fleet: FleetConfig{
			ManagerEmail:         managerEmail,
			SweepIntervalMinutes: getEnvAsInt("FLEET_SWEEP_INTERVAL_MINUTES", 10),
			UnaccountedHours:     getEnvAsInt("FLEET_UNACCOUNTED_HOURS", 4),
			FormSecret:           os.Getenv("FLASK_SECRET"),
		},
		Outbox: OutboxConfig{
			PollIntervalSeconds: getEnvAsInt("OUTBOX_POLL_INTERVAL_SECONDS", 5),
			BatchSize:           getEnvAsInt("OUTBOX_BATCH_SIZE", 20),
			MaxAttempts:         getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 5),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", "opsdesk.lifecycle"),
		},
		Notification: NotificationConfig{
			AdminEmail: getEnv("ADMIN_EMAIL", managerEmail),
		},
	}

	if strings.TrimSpace(cfg.Approval.HMACSecret) == "" && cfg.App.Env == "production" {
		return nil, fmt.Errorf("HMAC_SECRET is required in production")
	}

	return cfg, nil
}

// Addr returns the admin API bind address.
func (a AppConfig) Addr() string {
	return net.JoinHostPort(a.Host, a.Port)
}

// FleetlinkAddr returns the email-link service bind address.
func (a AppConfig) FleetlinkAddr() string {
	return net.JoinHostPort(a.Host, a.FleetlinkPort)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ConnString returns DATABASE_DSN when set, otherwise a URL assembled from
// the DB_* parts. The username is used exactly as given.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Server == "" || d.Database == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Server, d.Port),
		Path:   "/" + d.Database,
	}
	if d.Username != "" {
		u.User = url.UserPassword(d.Username, d.Password)
	}
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	if d.ConnectTimeoutSeconds > 0 {
		q.Set("connect_timeout", strconv.Itoa(d.ConnectTimeoutSeconds))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// QueryTimeout bounds a single statement.
func (d DatabaseConfig) QueryTimeout() time.Duration {
	if d.QueryTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(d.QueryTimeoutSeconds) * time.Second
}

// MaxAge returns how long an approval link stays valid.
func (a ApprovalConfig) MaxAge() time.Duration {
	return time.Duration(a.MaxAgeHours) * time.Hour
}

// SweepInterval returns the unaccounted-trip sweep period.
func (f FleetConfig) SweepInterval() time.Duration {
	return time.Duration(f.SweepIntervalMinutes) * time.Minute
}

// UnaccountedAfter returns the dwell time after departure before a trip is flagged.
func (f FleetConfig) UnaccountedAfter() time.Duration {
	return time.Duration(f.UnaccountedHours) * time.Hour
}

// PollInterval returns the outbox relay period.
func (o OutboxConfig) PollInterval() time.Duration {
	return time.Duration(o.PollIntervalSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(val string) []string {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
