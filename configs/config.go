package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverDynamoDB = "dynamodb"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server      ServerConfig
	Log         LogConfig
	JWT         JWTConfig
	Identity    IdentityConfig
	Password    PasswordConfig
	Store       StoreConfig
	Email       EmailConfig
	RateLimit   RateLimitConfig
	Maintenance MaintenanceConfig
}

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TLSCertFile    string
	TLSKeyFile     string
	AllowedOrigins []string
	Environment    string
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

type JWTConfig struct {
	Secret          string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// IdentityConfig holds the behavioural switches of the auth flows.
type IdentityConfig struct {
	SendWelcomeEmail         bool
	RequireEmailConfirmation bool
	EphemeralTokenTTL        time.Duration
}

type PasswordConfig struct {
	MinLength        int
	MaxLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSpecial   bool
	Iterations       int
}

type StoreConfig struct {
	Driver   string
	Tables   TablesConfig
	AWS      AWSConfig
	Redis    RedisConfig
	Database DatabaseConfig
}

type TablesConfig struct {
	Users           string
	RefreshTokens   string
	EphemeralTokens string
	UserRoles       string
}

type AWSConfig struct {
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint overrides the service URL, e.g. for DynamoDB Local.
	Endpoint     string
	UseLocal     bool
	CreateTables bool
}

type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	DB        int
	KeyPrefix string
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	DSN      string
	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type EmailConfig struct {
	// SendGridAPIKey empty disables delivery; notifications are then logged only.
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	CompanyName    string
	BaseURL        string
}

type RateLimitConfig struct {
	Enabled                  bool
	Backend                  string // redis or local
	DefaultRequestsPerMinute int
	BurstMultiplier          float64
	Window                   time.Duration
	KeyPrefix                string
}

type MaintenanceConfig struct {
	Enabled         bool
	CleanupSchedule string // cron spec with seconds field
	CleanupTimeout  time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			TLSCertFile:    getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:     getEnv("TLS_KEY_FILE", ""),
			AllowedOrigins: getListEnv("ALLOWED_ORIGINS", []string{"*"}),
			Environment:    getEnv("ENVIRONMENT", "development"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", ""),
			Issuer:          getEnv("JWT_ISSUER", "identity-kv"),
			Audience:        getEnv("JWT_AUDIENCE", "identity-kv"),
			AccessTokenTTL:  getDurationEnv("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenTTL: getDurationEnv("JWT_REFRESH_TTL", 30*24*time.Hour),
		},
		Identity: IdentityConfig{
			SendWelcomeEmail:         getBoolEnv("IDENTITY_SEND_WELCOME_EMAIL", true),
			RequireEmailConfirmation: getBoolEnv("IDENTITY_REQUIRE_EMAIL_CONFIRMATION", true),
			EphemeralTokenTTL:        getDurationEnv("IDENTITY_EPHEMERAL_TOKEN_TTL", time.Hour),
		},
		Password: PasswordConfig{
			MinLength:        getIntEnv("PASSWORD_MIN_LENGTH", 8),
			MaxLength:        getIntEnv("PASSWORD_MAX_LENGTH", 100),
			RequireUppercase: getBoolEnv("PASSWORD_REQUIRE_UPPERCASE", true),
			RequireLowercase: getBoolEnv("PASSWORD_REQUIRE_LOWERCASE", true),
			RequireDigit:     getBoolEnv("PASSWORD_REQUIRE_DIGIT", true),
			RequireSpecial:   getBoolEnv("PASSWORD_REQUIRE_SPECIAL", true),
			Iterations:       getIntEnv("PASSWORD_ITERATIONS", 100000),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", DriverDynamoDB)),
			Tables: TablesConfig{
				Users:           getEnv("TABLE_USERS", "Users"),
				RefreshTokens:   getEnv("TABLE_REFRESH_TOKENS", "RefreshTokens"),
				EphemeralTokens: getEnv("TABLE_EPHEMERAL_TOKENS", "TemporaryTokens"),
				UserRoles:       getEnv("TABLE_USER_ROLES", "UserRoles"),
			},
			AWS: AWSConfig{
				Region:       getEnv("AWS_REGION", "us-east-1"),
				AccessKey:    getEnv("AWS_ACCESS_KEY_ID", ""),
				SecretKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
				Endpoint:     getEnv("DYNAMODB_ENDPOINT", ""),
				UseLocal:     getBoolEnv("DYNAMODB_USE_LOCAL", false),
				CreateTables: getBoolEnv("DYNAMODB_CREATE_TABLES", false),
			},
			Redis: RedisConfig{
				Host:         getEnv("REDIS_HOST", "localhost"),
				Port:         getEnv("REDIS_PORT", "6379"),
				Password:     getEnv("REDIS_PASSWORD", ""),
				DB:           getIntEnv("REDIS_DB", 0),
				KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "identity"),
				PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
				MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
				DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
				ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
				WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
				PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
				IdleTimeout:  getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
			},
			Database: DatabaseConfig{
				Host:            getEnv("DB_HOST", "localhost"),
				Port:            getEnv("DB_PORT", "5432"),
				User:            getEnv("DB_USER", "postgres"),
				Password:        getEnv("DB_PASSWORD", "postgres"),
				DBName:          getEnv("DB_NAME", "identity"),
				SSLMode:         getEnv("DB_SSL_MODE", "disable"),
				MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
				MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
				ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
				ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			},
		},
		Email: EmailConfig{
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			FromEmail:      getEnv("FROM_EMAIL", "noreply@example.com"),
			FromName:       getEnv("FROM_NAME", "Identity"),
			CompanyName:    getEnv("COMPANY_NAME", "Identity"),
			BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		},
		RateLimit: RateLimitConfig{
			Enabled:                  getBoolEnv("RATE_LIMIT_ENABLED", true),
			Backend:                  strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "local")),
			DefaultRequestsPerMinute: getIntEnv("RATE_LIMIT_RPM", 60),
			BurstMultiplier:          getFloatEnv("RATE_LIMIT_BURST", 2.0),
			Window:                   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
			KeyPrefix:                getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit:client"),
		},
		Maintenance: MaintenanceConfig{
			Enabled:         getBoolEnv("MAINTENANCE_ENABLED", true),
			CleanupSchedule: getEnv("MAINTENANCE_CLEANUP_SCHEDULE", "0 0 */6 * * *"),
			CleanupTimeout:  getDurationEnv("MAINTENANCE_CLEANUP_TIMEOUT", 5*time.Minute),
		},
	}

	// Build database DSN
	cfg.Store.Database.DSN = fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Store.Database.Host,
		cfg.Store.Database.Port,
		cfg.Store.Database.User,
		cfg.Store.Database.Password,
		cfg.Store.Database.DBName,
		cfg.Store.Database.SSLMode,
	)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
