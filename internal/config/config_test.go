package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", c.DB.Driver)
	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.Equal(t, "@every 2m", c.Poll.Schedule)
	assert.Equal(t, 1000, c.Poll.BatchSize)
	assert.Equal(t, "log", c.Notify.Transport)
}

func TestLoadEnvFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("NUDGER_DB_DRIVER=postgres\nNUDGER_BATCH_SIZE=250\nNUDGER_OPERATORS=ops,admin\n"), 0o644))
	t.Setenv("NUDGER_BATCH_SIZE", "10")
	t.Setenv("NUDGER_NOTIFY_TRANSPORT", "nats")
	t.Cleanup(func() {
		os.Unsetenv("NUDGER_DB_DRIVER")
		os.Unsetenv("NUDGER_OPERATORS")
	})

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", c.DB.Driver)
	assert.Equal(t, 10, c.Poll.BatchSize)
	assert.Equal(t, "nats", c.Notify.Transport)
	assert.Equal(t, []string{"ops", "admin"}, c.HTTP.Operators)
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("NUDGER_WORKERS", "many")
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}
