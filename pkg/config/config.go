package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Database struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	Path       string
	MaxRetries int
}

// DSN returns the postgres connection string.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port)
}

type Lending struct {
	LoanLimit             int
	PreventDuplicateLoans bool
	MaxRenewals           int
}

type Sweeper struct {
	Interval           time.Duration
	MaxAttempts        int
	BreakerMaxFailures int
	BreakerTimeout     time.Duration
}

type Config struct {
	Port           string
	Database       Database
	Lending        Lending
	Sweeper        Sweeper
	SessionTTL     time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	SeedData       bool
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8060"),
		Database: Database{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("DB_HOST", "postgres"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "program"),
			Password:   getEnv("DB_PASSWORD", "test"),
			Name:       getEnv("DB_NAME", "library"),
			Path:       getEnv("DB_PATH", "library.db"),
			MaxRetries: getEnvInt("DB_MAX_RETRIES", 10),
		},
		Lending: Lending{
			LoanLimit:             getEnvInt("LOAN_LIMIT", 5),
			PreventDuplicateLoans: getEnvBool("PREVENT_DUPLICATE_LOANS", true),
			MaxRenewals:           getEnvInt("MAX_RENEWALS", 2),
		},
		Sweeper: Sweeper{
			Interval:           getEnvDuration("SWEEP_INTERVAL", time.Hour),
			MaxAttempts:        getEnvInt("SWEEP_MAX_ATTEMPTS", 3),
			BreakerMaxFailures: getEnvInt("BREAKER_MAX_FAILURES", 3),
			BreakerTimeout:     getEnvDuration("BREAKER_TIMEOUT", 5*time.Minute),
		},
		SessionTTL:     getEnvDuration("SESSION_TTL", 24*time.Hour),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),
		SeedData:       getEnvBool("SEED_DATA", false),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
