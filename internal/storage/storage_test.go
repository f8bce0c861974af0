package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	pg := &DB{Dialect: Postgres}
	assert.Equal(t, "SELECT * FROM t WHERE a=$1 AND b=$2", pg.Rebind("SELECT * FROM t WHERE a=? AND b=?"))

	lite := &DB{Dialect: SQLite}
	assert.Equal(t, "SELECT ?", lite.Rebind("SELECT ?"))
}

func TestOpenSQLiteMemory(t *testing.T) {
	db, err := Open(context.Background(), Config{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, SQLite, db.Dialect)
	require.NoError(t, db.ExecAll(context.Background(), []string{
		`CREATE TABLE kv (k TEXT PRIMARY KEY, v BIGINT)`,
		`INSERT INTO kv (k, v) VALUES ('a', 1)`,
	}))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo", DSN: "x"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: "sqlite"})
	assert.Error(t, err)
}

func TestMillisRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	assert.True(t, ts.Equal(FromMillis(Millis(ts))))
}
