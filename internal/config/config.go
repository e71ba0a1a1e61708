package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port       string
	DBAdapter  string
	SQLiteFile string
	LogLevel   string
	// Token signing
	JwtSecret        string
	AccessTokenMins  int
	RefreshTokenDays int
	// Seed super admin
	SuperAdminEmail    string
	SuperAdminPassword string
	// Rate limiting
	RateLimitPerMinute int
	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}

	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)

	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}

	return dsn, nil
}

func New() (*Config, error) {
	c := &Config{
		Port:               getenv("PORT", "8080"),
		DBAdapter:          getenv("DB_ADAPTER", "postgres"),
		SQLiteFile:         getenv("SQLITE_FILE", "./data/tenantauth.db"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		JwtSecret:          getenv("JWT_SECRET", "change-me"),
		AccessTokenMins:    getenvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30),
		RefreshTokenDays:   getenvInt("REFRESH_TOKEN_EXPIRE_DAYS", 7),
		SuperAdminEmail:    getenv("SUPER_ADMIN_EMAIL", ""),
		SuperAdminPassword: getenv("SUPER_ADMIN_PASSWORD", ""),
		RateLimitPerMinute: getenvInt("RATE_LIMIT_PER_MINUTE", 120),
		PostgresDSN:        getenv("POSTGRES_DSN", ""),
		PostgresHost:       getenv("POSTGRES_HOST", getenv("DB_HOST", "localhost")),
		PostgresPort:       getenv("POSTGRES_PORT", getenv("DB_PORT", "5432")),
		PostgresUser:       getenv("POSTGRES_USER", getenv("DB_USER", "tenantauth")),
		PostgresPassword:   getenv("POSTGRES_PASSWORD", getenv("DB_PASSWORD", "tenantauth")),
		PostgresDB:         getenv("POSTGRES_DB", getenv("DB_NAME", "tenantauth")),
		PostgresSSLMode:    getenv("POSTGRES_SSLMODE", getenv("DB_SSLMODE", "disable")),
	}

	if c.DBAdapter == "postgres" {
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	}

	if c.DBAdapter == "sqlite" && c.SQLiteFile == "" {
		return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
	}

	env := strings.ToLower(getenv("ENVIRONMENT", getenv("ENV", "")))
	if env == "production" || env == "prod" {
		if c.JwtSecret == "" || c.JwtSecret == "change-me" {
			return nil, errors.New("JWT_SECRET must be set in production")
		}
	}

	c.LogLevel = strings.ToLower(c.LogLevel)
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid LOG_LEVEL: %s (supported: debug, info, warn, error)", c.LogLevel)
	}

	if c.AccessTokenMins <= 0 || c.RefreshTokenDays <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}
