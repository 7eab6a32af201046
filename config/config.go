package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinSecretLength is the shortest accepted HS256 signing secret in bytes.
const MinSecretLength = 32

var (
	// ErrMissingSecret is returned when no token signing secret is configured.
	ErrMissingSecret = errors.New("ROOMIFY_JWT_SECRET is required")
	// ErrWeakSecret is returned for a signing secret under 256 bits.
	ErrWeakSecret = fmt.Errorf("ROOMIFY_JWT_SECRET must be at least %d bytes", MinSecretLength)
)

type Config struct {
	ServerPort  int
	MetricsPort int
	Log         LogConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	Audit       AuditConfig
	RabbitMQ    RabbitMQConfig
	PubSub      PubSubConfig
	Storage     StorageConfig
	Minio       MinioConfig
	GCS         GCSConfig
}

type LogConfig struct {
	Level  slog.Level
	Format string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

// AuthConfig holds the process-wide token and lockout settings.
type AuthConfig struct {
	JWTSecret        string
	TokenTTL         time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration

	// EnforceActive rejects tokens of deactivated accounts on every request
	// and on refresh. Off by default: tokens stay valid until they expire.
	EnforceActive  bool
	ActiveCacheTTL time.Duration

	LoginRateLimit float64
	LoginBurst     int
}

// AuditConfig selects where audit entries go. Backend is one of
// "db", "rabbitmq" or "pubsub".
type AuditConfig struct {
	Backend string
	Channel string
	Timeout time.Duration
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

// StorageConfig selects the audit archive backend: "minio" or "gcs".
type StorageConfig struct {
	Backend string
	Prefix  string
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

// LoadOption relaxes LoadConfig for commands that do not serve traffic.
type LoadOption func(*loadOptions)

type loadOptions struct {
	requireSecret bool
}

// WithoutSecret skips the signing secret check. Only commands that never
// issue or verify tokens (migrations, seeding, audit tooling) may use it.
func WithoutSecret() LoadOption {
	return func(o *loadOptions) {
		o.requireSecret = false
	}
}

// LoadConfig reads the configuration from the environment. A missing signing
// secret or a malformed value is an error; callers must not serve traffic.
func LoadConfig(opts ...LoadOption) (Config, error) {
	options := loadOptions{requireSecret: true}
	for _, opt := range opts {
		opt(&options)
	}

	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var errs []error
	p := parser{errs: &errs}

	cfg := Config{
		ServerPort:  p.asInt("SERVER_PORT", 8080),
		MetricsPort: p.asInt("METRICS_PORT", 9090),
		Log: LogConfig{
			Level:  p.asLevel("LOG_LEVEL", slog.LevelInfo),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     p.asInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "roomify"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "roomify_db"),
			UseSSL:   p.asBool("DB_USE_SSL", false),
		},
		Auth: AuthConfig{
			JWTSecret:        strings.TrimSpace(os.Getenv("ROOMIFY_JWT_SECRET")),
			TokenTTL:         p.asDuration("ROOMIFY_JWT_TTL", 24*time.Hour),
			LockoutThreshold: p.asInt("AUTH_LOCKOUT_THRESHOLD", 5),
			LockoutDuration:  p.asDuration("AUTH_LOCKOUT_DURATION", 30*time.Minute),
			EnforceActive:    p.asBool("AUTH_ENFORCE_ACTIVE", false),
			ActiveCacheTTL:   p.asDuration("AUTH_ACTIVE_CACHE_TTL", 30*time.Second),
			LoginRateLimit:   p.asFloat("AUTH_LOGIN_RATE", 5),
			LoginBurst:       p.asInt("AUTH_LOGIN_BURST", 10),
		},
		Audit: AuditConfig{
			Backend: strings.ToLower(getEnv("AUDIT_BACKEND", "db")),
			Channel: getEnv("AUDIT_CHANNEL", "roomify.audit"),
			Timeout: p.asDuration("AUDIT_TIMEOUT", 3*time.Second),
		},
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    p.asBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: p.asBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   p.asInt("RABBITMQ_PREFETCH", 16),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(getEnv("STORAGE_BACKEND", "minio")),
			Prefix:  getEnv("STORAGE_AUDIT_PREFIX", "audit"),
		},
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "roomify-audit"),
			UseSSL:    p.asBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	if options.requireSecret {
		switch {
		case cfg.Auth.JWTSecret == "":
			errs = append(errs, ErrMissingSecret)
		case len(cfg.Auth.JWTSecret) < MinSecretLength:
			errs = append(errs, ErrWeakSecret)
		}
	}
	if cfg.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("ROOMIFY_JWT_TTL must be positive"))
	}
	if cfg.Auth.LockoutThreshold < 1 {
		errs = append(errs, errors.New("AUTH_LOCKOUT_THRESHOLD must be at least 1"))
	}
	if cfg.Auth.LockoutDuration <= 0 {
		errs = append(errs, errors.New("AUTH_LOCKOUT_DURATION must be positive"))
	}
	switch cfg.Audit.Backend {
	case "db", "rabbitmq", "pubsub":
	default:
		errs = append(errs, fmt.Errorf("AUDIT_BACKEND: unsupported backend %q", cfg.Audit.Backend))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetupLogger installs the process-wide slog logger.
func SetupLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Log.Level}

	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// parser collects conversion errors so every bad variable is reported at once.
type parser struct {
	errs *[]error
}

func (p parser) lookup(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	value = strings.TrimSpace(value)
	return value, exists && value != ""
}

func (p parser) fail(key string, err error) {
	*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
}

func (p parser) asInt(key string, defaultValue int) int {
	raw, ok := p.lookup(key)
	if !ok {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, err)
		return defaultValue
	}
	return value
}

func (p parser) asFloat(key string, defaultValue float64) float64 {
	raw, ok := p.lookup(key)
	if !ok {
		return defaultValue
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, err)
		return defaultValue
	}
	return value
}

func (p parser) asBool(key string, defaultValue bool) bool {
	raw, ok := p.lookup(key)
	if !ok {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, err)
		return defaultValue
	}
	return value
}

func (p parser) asDuration(key string, defaultValue time.Duration) time.Duration {
	raw, ok := p.lookup(key)
	if !ok {
		return defaultValue
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, err)
		return defaultValue
	}
	return value
}

func (p parser) asLevel(key string, defaultValue slog.Level) slog.Level {
	raw, ok := p.lookup(key)
	if !ok {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		p.fail(key, err)
		return defaultValue
	}
	return level
}
