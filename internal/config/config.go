package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int
	// PublicBaseURL prefixes hosted image URLs; empty means site-relative.
	PublicBaseURL string

	DBDriver    string // "sqlite" or "postgres"
	SQLitePath  string
	DatabaseURL string
	RedisURL    string

	JWTSecret          string
	AccessTokenMinutes int
	BcryptCost         int
	EncryptKey         string

	UploadDir    string
	MaxBodyBytes int64
	CORSOrigins  []string

	WSReplacePolicy string
	WSSendBuffer    int

	LogLevel string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:       getEnv("APP_NAME", "chatup"),
		Env:           getEnv("APP_ENV", "development"),
		Host:          getEnv("HTTP_HOST", "0.0.0.0"),
		Port:          getEnvAsInt("HTTP_PORT", 5000),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		SQLitePath:  getEnv("SQLITE_PATH", "data/chatup.db"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		JWTSecret:          os.Getenv("JWT_SECRET"),
		AccessTokenMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24*7),
		BcryptCost:         getEnvAsInt("BCRYPT_COST", 10),
		EncryptKey:         os.Getenv("ENCRYPTION_KEY"),

		UploadDir:    getEnv("UPLOAD_DIR", "uploads"),
		MaxBodyBytes: int64(getEnvAsInt("MAX_BODY_BYTES", 4<<20)),

		WSReplacePolicy: getEnv("WS_REPLACE_POLICY", "overwrite"),
		WSSendBuffer:    getEnvAsInt("WS_SEND_BUFFER", 32),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if cfg.DBDriver == "postgres" && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = postgresURLFromParts()
	}

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.EncryptKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.WSReplacePolicy {
	case "overwrite", "close-old", "reject":
	default:
		return fmt.Errorf("unsupported WS_REPLACE_POLICY %q", c.WSReplacePolicy)
	}
	if c.WSSendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func postgresURLFromParts() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "postgres"), getEnv("POSTGRES_PASSWORD", "postgres")),
		Host:     fmt.Sprintf("%s:%s", getEnv("POSTGRES_HOST", "localhost"), getEnv("POSTGRES_PORT", "5432")),
		Path:     getEnv("POSTGRES_DB", "chatup"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
