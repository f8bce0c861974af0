// Package feed reads group activity and user profiles. The scheduler only
// reads; the write helpers exist for the producer API and tests.
package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nudger/internal/domain"
	"nudger/internal/storage"
)

var ErrUserNotFound = errors.New("user not found")

type Feed interface {
	// RecentActions returns up to limit actions of a group created after
	// since, newest first.
	RecentActions(ctx context.Context, groupID string, since time.Time, limit int) ([]domain.GroupAction, error)
}

type Directory interface {
	User(ctx context.Context, uid string) (domain.User, error)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS group_actions (
  id TEXT PRIMARY KEY,
  group_id TEXT NOT NULL,
  type TEXT NOT NULL,
  creator TEXT NOT NULL,
  viewer_ids TEXT NOT NULL DEFAULT '[]',
  created BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_group_actions_group ON group_actions(group_id, created)`,
	`CREATE TABLE IF NOT EXISTS users (
  uid TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  language TEXT NOT NULL DEFAULT ''
)`,
}

func EnsureSchema(ctx context.Context, db *storage.DB) error {
	return db.ExecAll(ctx, schema)
}

// SQLFeed serves both Feed and Directory from the shared database.
type SQLFeed struct {
	db *storage.DB
}

func NewSQLFeed(db *storage.DB) *SQLFeed { return &SQLFeed{db: db} }

func (f *SQLFeed) RecentActions(ctx context.Context, groupID string, since time.Time, limit int) ([]domain.GroupAction, error) {
	rows, err := f.db.QueryContext(ctx, f.db.Rebind(`
SELECT id, group_id, type, creator, viewer_ids, created
FROM group_actions
WHERE group_id=? AND created > ?
ORDER BY created DESC
LIMIT ?`), groupID, storage.Millis(since), limit)
	if err != nil {
		return nil, fmt.Errorf("query group actions: %w", err)
	}
	defer rows.Close()

	var out []domain.GroupAction
	for rows.Next() {
		var (
			a       domain.GroupAction
			viewers string
			created int64
		)
		if err := rows.Scan(&a.ID, &a.GroupID, &a.Type, &a.Creator, &viewers, &created); err != nil {
			return nil, err
		}
		if viewers != "" {
			if err := json.Unmarshal([]byte(viewers), &a.ViewerIDs); err != nil {
				return nil, fmt.Errorf("decode viewers of %s: %w", a.ID, err)
			}
		}
		a.Created = storage.FromMillis(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (f *SQLFeed) User(ctx context.Context, uid string) (domain.User, error) {
	u := domain.User{UID: uid}
	err := f.db.QueryRowContext(ctx, f.db.Rebind(`SELECT name, language FROM users WHERE uid=?`), uid).
		Scan(&u.Name, &u.Language)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// PutUser inserts or replaces a profile.
func (f *SQLFeed) PutUser(ctx context.Context, u domain.User) error {
	_, err := f.db.ExecContext(ctx, f.db.Rebind(`
INSERT INTO users (uid, name, language) VALUES (?,?,?)
ON CONFLICT(uid) DO UPDATE SET name=excluded.name, language=excluded.language`),
		u.UID, u.Name, u.Language)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// AddAction records a group action. Missing id and created are filled in.
func (f *SQLFeed) AddAction(ctx context.Context, a domain.GroupAction) (string, error) {
	if a.ID == "" {
		a.ID = "act_" + uuid.NewString()
	}
	if a.Created.IsZero() {
		a.Created = time.Now()
	}
	viewers := a.ViewerIDs
	if viewers == nil {
		viewers = []string{}
	}
	b, err := json.Marshal(viewers)
	if err != nil {
		return "", err
	}
	_, err = f.db.ExecContext(ctx, f.db.Rebind(`
INSERT INTO group_actions (id, group_id, type, creator, viewer_ids, created)
VALUES (?,?,?,?,?,?)`),
		a.ID, a.GroupID, a.Type, a.Creator, string(b), storage.Millis(a.Created))
	if err != nil {
		return "", fmt.Errorf("add group action: %w", err)
	}
	return a.ID, nil
}
