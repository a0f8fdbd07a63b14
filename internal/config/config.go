package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rohits-web03/vaultbox/internal/encryption"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// ErrConfiguration is returned when required settings are missing or malformed.
var ErrConfiguration = errors.New("configuration error")

type StorageConfig struct {
	Root                string
	MaxUploadMB         int64
	StreamThresholdMB   int64
	MaxConcurrentCrypto int64
}

// TempDir holds plaintext uploads until they are encrypted.
func (s StorageConfig) TempDir() string {
	return filepath.Join(s.Root, "tmp")
}

// AvatarDir holds profile pictures, which are served as-is.
func (s StorageConfig) AvatarDir() string {
	return filepath.Join(s.Root, "profile-pictures")
}

func (s StorageConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB << 20
}

func (s StorageConfig) StreamThresholdBytes() int64 {
	return s.StreamThresholdMB << 20
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
}

// Enabled reports whether enough credentials are present to mirror blobs.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.SecretAccessKey != "" && r.BucketName != ""
}

type Config struct {
	Port          string
	Environment   string
	DBDriver      string
	DB_URL        string
	JWTSecret     string
	TokenTTL      time.Duration
	EncryptionKey encryption.Key
	LogLevel      string
	FrontendURL   string
	Storage       StorageConfig
	Google        GoogleConfig
	R2            R2Config
	CorsConfig    cors.Options
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads the optional env file and the process environment. Unlike a
// random fallback key, a missing ENCRYPTION_KEY is fatal: blobs written
// under an ephemeral key cannot be read after a restart.
func Load() (Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil {
		logrus.WithField("file", envFile).Debug("No env file found, using process environment")
	}

	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		DBDriver:    getEnv("DB_DRIVER", "postgres"),
		DB_URL:      getEnv("DB_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		Storage: StorageConfig{
			Root: getEnv("STORAGE_ROOT", "uploads"),
		},
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/v1/auth/google/callback"),
		},
		R2: R2Config{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			BucketName:      getEnv("R2_BUCKET_NAME", ""),
			Region:          getEnv("R2_REGION", "auto"),
		},
	}
	cfg.CorsConfig = CorsConfig(cfg.FrontendURL)

	var err error
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.Storage.MaxUploadMB, err = getPositiveInt("MAX_UPLOAD_MB", 50); err != nil {
		return Config{}, err
	}
	if cfg.Storage.StreamThresholdMB, err = getPositiveInt("STREAM_THRESHOLD_MB", 5); err != nil {
		return Config{}, err
	}
	if cfg.Storage.MaxConcurrentCrypto, err = getPositiveInt("MAX_CONCURRENT_CRYPTO", 8); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("%w: JWT_SECRET is not set", ErrConfiguration)
	}

	keyHex, ok := os.LookupEnv("ENCRYPTION_KEY")
	if !ok || strings.TrimSpace(keyHex) == "" {
		return Config{}, fmt.Errorf("%w: ENCRYPTION_KEY is not set", ErrConfiguration)
	}
	if cfg.EncryptionKey, err = encryption.ParseKey(keyHex); err != nil {
		return Config{}, fmt.Errorf("%w: ENCRYPTION_KEY: %v", ErrConfiguration, err)
	}

	switch cfg.DBDriver {
	case "postgres":
		if cfg.DB_URL == "" {
			return Config{}, fmt.Errorf("%w: DB_URL is required for postgres", ErrConfiguration)
		}
	case "sqlite":
		if cfg.DB_URL == "" {
			cfg.DB_URL = "vaultbox.db"
		}
	default:
		return Config{}, fmt.Errorf("%w: unknown DB_DRIVER %q", ErrConfiguration, cfg.DBDriver)
	}

	return cfg, nil
}

// Gets the env by key or fallbacks
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getPositiveInt(key string, fallback int64) (int64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrConfiguration, key, raw)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive duration, got %q", ErrConfiguration, key, raw)
	}
	return d, nil
}

func CorsConfig(frontendURL string) cors.Options {
	return cors.Options{
		AllowedOrigins:   []string{frontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
	}
}
