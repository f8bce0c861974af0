package queue

import (
	"context"

	"nudger/internal/storage"
)

// Timestamps are unix milliseconds so due-time comparisons sort the same way
// on every driver.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  owner TEXT NOT NULL,
  kind TEXT NOT NULL CHECK(kind IN ('one_time','planned','recurring')),
  status TEXT NOT NULL CHECK(status IN ('scheduled','complete','error')) DEFAULT 'scheduled',
  perform_at BIGINT NOT NULL,
  payload TEXT NOT NULL,
  current_index INTEGER NOT NULL DEFAULT 0,
  extra TEXT,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(status, perform_at)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner)`,
	`CREATE TABLE IF NOT EXISTS task_errors (
  task_id TEXT NOT NULL REFERENCES tasks(id),
  seq BIGINT NOT NULL,
  message TEXT NOT NULL,
  at BIGINT NOT NULL,
  PRIMARY KEY (task_id, seq)
)`,
}

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(ctx context.Context, db *storage.DB) error {
	return db.ExecAll(ctx, schema)
}
