package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Settings is built once at process start by Load and handed to whoever needs it.
// Nothing in this package reads it implicitly.
type Settings struct {
	Environment string
	Port        string
	LogLevel    string
	PhoneRegion string `validate:"len=2"`

	Database  DatabaseSettings
	Redis     RedisSettings
	Storage   StorageSettings
	Identity  IdentitySettings
	JWT       JWTSettings
	CORS      CORSSettings
	RateLimit RateLimitSettings
}

type DatabaseSettings struct {
	User     string `validate:"required"`
	Password string
	Host     string `validate:"required"`
	Port     string
	Name     string `validate:"required"`

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// ConnectAttempts bounds ConnectDatabaseWithRetry; 0 retries forever.
	ConnectAttempts int
	AutoMigrate     bool
}

type RedisSettings struct {
	Address string
}

type StorageSettings struct {
	Bucket           string `validate:"required"`
	CredentialsJSON  string
	AccessBaseURL    string
	SignerEmail      string
	SignerPrivateKey string
	DownloadURLTTL   time.Duration
	MaxUploadBytes   int64 `validate:"gt=0"`
}

type IdentitySettings struct {
	TokenURL     string `validate:"required,url"`
	UserInfoURL  string `validate:"required,url"`
	ClientID     string `validate:"required"`
	ClientSecret string
	Scopes       []string
}

type JWTSettings struct {
	Secret   string        `validate:"required"`
	Lifetime time.Duration `validate:"gt=0"`
}

type CORSSettings struct {
	AllowedOrigins []string
}

type RateLimitSettings struct {
	Enabled     bool
	Window      time.Duration
	MaxRequests int64
}

// Load reads .env (if present) and the process environment.
func Load() (*Settings, error) {
	// .env is optional; real deployments inject env directly.
	_ = godotenv.Load()

	s := &Settings{
		Environment: stringFromEnv("GO_ENV", "local"),
		Port:        firstNonEmpty(os.Getenv("API_PORT"), os.Getenv("PORT"), "8080"),
		LogLevel:    stringFromEnv("LOG_LEVEL", "info"),
		PhoneRegion: strings.ToUpper(stringFromEnv("PHONE_REGION", "BO")),
		Database: DatabaseSettings{
			User:            os.Getenv("DB_USER"),
			Password:        os.Getenv("DB_PASSWORD"),
			Host:            os.Getenv("DB_HOST"),
			Port:            stringFromEnv("DB_PORT", "3306"),
			Name:            os.Getenv("DB_NAME"),
			MaxOpenConns:    intFromEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    intFromEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
			ConnMaxIdleTime: time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second,
			ConnectAttempts: intFromEnv("DB_CONNECT_ATTEMPTS", 0),
			AutoMigrate:     boolFromEnv("AUTO_MIGRATE"),
		},
		Redis: RedisSettings{
			Address: strings.TrimSpace(os.Getenv("REDIS_ADDRESS")),
		},
		Storage: StorageSettings{
			Bucket:           strings.TrimSpace(os.Getenv("GCS_BUCKET")),
			CredentialsJSON:  strings.TrimSpace(os.Getenv("GCS_CREDENTIALS_JSON")),
			AccessBaseURL:    strings.TrimSpace(os.Getenv("STORAGE_ACCESS_BASE_URL")),
			SignerEmail:      strings.TrimSpace(os.Getenv("GCS_SIGNER_EMAIL")),
			SignerPrivateKey: strings.TrimSpace(os.Getenv("GCS_SIGNER_PRIVATE_KEY")),
			DownloadURLTTL:   time.Duration(intFromEnv("DOWNLOAD_URL_TTL_SECONDS", 3600)) * time.Second,
			MaxUploadBytes:   int64(intFromEnv("MAX_UPLOAD_BYTES", 10*1024*1024)),
		},
		Identity: IdentitySettings{
			TokenURL:     strings.TrimSpace(os.Getenv("IDP_TOKEN_URL")),
			UserInfoURL:  strings.TrimSpace(os.Getenv("IDP_USERINFO_URL")),
			ClientID:     strings.TrimSpace(os.Getenv("IDP_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(os.Getenv("IDP_CLIENT_SECRET")),
			Scopes:       splitAndTrim(stringFromEnv("IDP_SCOPES", "openid,email,profile")),
		},
		JWT: JWTSettings{
			Secret:   os.Getenv("API_SECRET"),
			Lifetime: time.Duration(intFromEnv("TOKEN_MINUTE_LIFESPAN", 30)) * time.Minute,
		},
		CORS: CORSSettings{
			AllowedOrigins: splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS")),
		},
		RateLimit: RateLimitSettings{
			Enabled:     boolFromEnv("RATE_LIMIT_ENABLED"),
			Window:      time.Duration(intFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
			MaxRequests: int64(intFromEnv("RATE_LIMIT_MAX_REQUESTS", 600)),
		},
	}
	return s, nil
}

// IsProduction reports whether GO_ENV is production.
func (s *Settings) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

// Validate checks everything the HTTP server needs.
func (s *Settings) Validate() error {
	return formatValidationError(validator.New().Struct(s))
}

// Validate checks only what a database-only tool (the migration CLI) needs.
func (d DatabaseSettings) Validate() error {
	return formatValidationError(validator.New().Struct(d))
}

// DSN builds the MySQL DSN. DB_HOST=/cloudsql/<CONNECTION_NAME> selects a unix socket.
func (d DatabaseSettings) DSN() string {
	network := "tcp"
	address := fmt.Sprintf("%s:%s", d.Host, d.Port)
	if strings.HasPrefix(d.Host, "/cloudsql/") {
		network = "unix"
		address = d.Host
	}
	return fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4&loc=UTC",
		d.User,
		d.Password,
		network,
		address,
		d.Name,
	)
}

func formatValidationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
}

func stringFromEnv(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
