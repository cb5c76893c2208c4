package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DRIVER", "LOAN_LIMIT", "PREVENT_DUPLICATE_LOANS", "MAX_RENEWALS", "SWEEP_INTERVAL", "SESSION_TTL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8060", cfg.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Lending.LoanLimit)
	assert.True(t, cfg.Lending.PreventDuplicateLoans)
	assert.Equal(t, 2, cfg.Lending.MaxRenewals)
	assert.Equal(t, time.Hour, cfg.Sweeper.Interval)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOAN_LIMIT", "3")
	t.Setenv("PREVENT_DUPLICATE_LOANS", "false")
	t.Setenv("SWEEP_INTERVAL", "15m")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", "/tmp/library.db")

	cfg := Load()

	assert.Equal(t, 3, cfg.Lending.LoanLimit)
	assert.False(t, cfg.Lending.PreventDuplicateLoans)
	assert.Equal(t, 15*time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/library.db", cfg.Database.Path)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("LOAN_LIMIT", "five")
	t.Setenv("SESSION_TTL", "a day")

	cfg := Load()

	assert.Equal(t, 5, cfg.Lending.LoanLimit)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
}

func TestDSN(t *testing.T) {
	db := Database{Host: "db", Port: "5433", User: "u", Password: "p", Name: "lib"}

	assert.Equal(t, "host=db user=u password=p dbname=lib port=5433 sslmode=disable TimeZone=UTC", db.DSN())
}
