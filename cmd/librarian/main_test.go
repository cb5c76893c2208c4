package main

import (
	"bytes"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library_backend/pkg/lending"
)

func run(t *testing.T, dbPath string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db-driver", "sqlite", "--db-path", dbPath}, args...))
	require.NoError(t, cmd.Execute(), out.String())
	return out.String()
}

func TestSeedThenStats(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")

	assert.Contains(t, run(t, dbPath, "migrate"), "up to date")
	assert.Contains(t, run(t, dbPath, "seed"), "demo data loaded")

	var stats lending.LoanStats
	require.NoError(t, jsoniter.UnmarshalFromString(run(t, dbPath, "stats"), &stats))
	assert.Equal(t, lending.LoanStats{}, stats)
}

func TestSweepPrintsResult(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")

	var result lending.SweepResult
	require.NoError(t, jsoniter.UnmarshalFromString(run(t, dbPath, "sweep"), &result))
	assert.Equal(t, int64(0), result.Matched)
}

func TestCreateAdmin(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")

	out := run(t, dbPath, "create-admin", "--email", "root@library.local", "--password", "Secret123")
	assert.Contains(t, out, "admin root@library.local created")

	var failure bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&failure)
	cmd.SetErr(&failure)
	cmd.SetArgs([]string{"--db-driver", "sqlite", "--db-path", dbPath,
		"create-admin", "--email", "root@library.local", "--password", "Secret123"})
	assert.Error(t, cmd.Execute())
}

func TestPurgeSessions(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")

	assert.Contains(t, run(t, dbPath, "purge-sessions"), "0 expired sessions removed")
}
