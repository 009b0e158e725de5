/**
 * @description
 * Configuration loader for VitalChain Backend.
 * Responsible for reading environment variables, setting defaults, and performing strict validation.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 * - standard "os": For reading env vars
 *
 * @notes
 * - Fails fast if critical secrets (database, AI key, session secret, OKX credentials) are missing.
 * - GO_ENV=test skips secret validation so packages can be exercised in isolation.
 */

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	AI      AIConfig
	OKX     OKXConfig
	Uploads UploadConfig
	Tasks   TaskConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           string
	Env            string // "development", "staging", "production" or "test"
	CORSOrigins    string
	MaxRequestSize int // bytes
}

// DBConfig holds PostgreSQL settings
type DBConfig struct {
	URL string
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL string
}

// AuthConfig holds wallet login and session settings
type AuthConfig struct {
	JWTSecret   string
	SessionTTL  time.Duration
	LoginWindow time.Duration // max clock distance between the signed timestamp and now
}

// AIConfig holds the chat-completion provider settings
type AIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
	Timeout     time.Duration
}

// OKXConfig holds the custodial wallet provider credentials
type OKXConfig struct {
	BaseURL    string
	VerifyPath string
	APIKey     string
	SecretKey  string
	Passphrase string
	ProjectID  string
	Timeout    time.Duration
}

// UploadConfig holds temp staging settings for multipart uploads
type UploadConfig struct {
	Dir     string
	MaxSize int64 // bytes
}

// TaskConfig holds async task maintenance settings
type TaskConfig struct {
	StaleAfter time.Duration
}

// Load reads .env file and populates the Config struct
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (containers may inject env vars directly)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            getEnv("GO_ENV", "development"),
			CORSOrigins:    getEnv("CORS_ORIGINS", "*"),
			MaxRequestSize: getEnvAsInt("MAX_REQUEST_SIZE_MB", 10) << 20,
		},
		DB: DBConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Auth: AuthConfig{
			JWTSecret:   sanitizeCredential(getEnv("JWT_SECRET", "")),
			SessionTTL:  time.Duration(getEnvAsInt("SESSION_TTL_HOURS", 30*24)) * time.Hour,
			LoginWindow: time.Duration(getEnvAsInt("LOGIN_WINDOW_SECONDS", 300)) * time.Second,
		},
		AI: AIConfig{
			APIKey:      sanitizeCredential(getEnv("AI_API_KEY", "")),
			BaseURL:     getEnv("AI_BASE_URL", "https://api.deepseek.com/v1/chat/completions"),
			Model:       getEnv("AI_MODEL", "deepseek-chat"),
			VisionModel: getEnv("AI_VISION_MODEL", ""),
			Timeout:     time.Duration(getEnvAsInt("AI_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		OKX: OKXConfig{
			BaseURL:    getEnv("OKX_BASE_URL", "https://www.okx.com"),
			VerifyPath: getEnv("OKX_VERIFY_PATH", "/api/v5/waas/wallet/utxo/verify-message"),
			APIKey:     sanitizeCredential(getEnv("OKX_API_KEY", "")),
			SecretKey:  sanitizeCredential(getEnv("OKX_SECRET_KEY", "")),
			Passphrase: sanitizeCredential(getEnv("OKX_PASSPHRASE", "")),
			ProjectID:  sanitizeCredential(getEnv("OKX_PROJECT_ID", "")),
			Timeout:    time.Duration(getEnvAsInt("OKX_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Uploads: UploadConfig{
			Dir:     getEnv("UPLOAD_DIR", filepath.Join(os.TempDir(), "vitalchain-uploads")),
			MaxSize: int64(getEnvAsInt("UPLOAD_MAX_SIZE_MB", 5)) << 20,
		},
		Tasks: TaskConfig{
			StaleAfter: time.Duration(getEnvAsInt("TASK_STALE_AFTER_HOURS", 24)) * time.Hour,
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks for required variables
func validate(cfg *Config) error {
	if cfg.Server.Env == "test" {
		return nil
	}

	required := []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", cfg.DB.URL},
		{"JWT_SECRET", cfg.Auth.JWTSecret},
		{"AI_API_KEY", cfg.AI.APIKey},
		{"OKX_API_KEY", cfg.OKX.APIKey},
		{"OKX_SECRET_KEY", cfg.OKX.SecretKey},
		{"OKX_PASSPHRASE", cfg.OKX.Passphrase},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if cfg.Uploads.MaxSize <= 0 {
		return fmt.Errorf("UPLOAD_MAX_SIZE_MB must be positive")
	}
	if int64(cfg.Server.MaxRequestSize) < cfg.Uploads.MaxSize {
		return fmt.Errorf("MAX_REQUEST_SIZE_MB must be at least UPLOAD_MAX_SIZE_MB")
	}
	return nil
}

// Helper to get env var with default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func sanitizeCredential(value string) string {
	trimmed := strings.TrimSpace(value)
	return strings.Trim(trimmed, "\"")
}

// Helper to get env var as int
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
