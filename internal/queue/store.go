package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nudger/internal/domain"
	"nudger/internal/storage"
)

var (
	ErrNotFound     = errors.New("task not found")
	ErrNotScheduled = errors.New("task is not scheduled")
)

// DefaultBatchSize caps how many due tasks one poll cycle selects.
const DefaultBatchSize = 1000

type Store interface {
	Insert(ctx context.Context, t domain.Task) (string, error)
	Due(ctx context.Context, now time.Time, limit int) ([]domain.Task, error)
	Apply(ctx context.Context, id string, m domain.Mutation) error
	Get(ctx context.Context, id string) (domain.Task, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Task, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
	Cancel(ctx context.Context, id, reason string) error
}

type sqlRepo struct {
	db  *storage.DB
	now func() time.Time
}

func NewRepo(db *storage.DB) Store { return &sqlRepo{db: db, now: time.Now} }

const taskColumns = `id,owner,kind,status,perform_at,payload,current_index,extra,created_at,updated_at`

func (r *sqlRepo) Insert(ctx context.Context, t domain.Task) (string, error) {
	id := t.ID
	if id == "" {
		id = "tsk_" + uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.StatusScheduled
	}
	extra, err := encodeExtra(t.Extra)
	if err != nil {
		return "", err
	}
	now := storage.Millis(r.now())

	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
INSERT INTO tasks (`+taskColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?)`),
		id, t.Owner, string(t.Kind), string(t.Status), storage.Millis(t.PerformAt),
		string(t.Payload), t.CurrentIndex, extra, now, now)
	if err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

// Due selects scheduled tasks whose perform_at is not after now. It does not
// claim them: two overlapping calls can return the same rows.
// ErrorMessages is not loaded; handlers only ever append.
func (r *sqlRepo) Due(ctx context.Context, now time.Time, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
SELECT `+taskColumns+`
FROM tasks
WHERE status='scheduled' AND perform_at <= ?
ORDER BY perform_at
LIMIT ?`), storage.Millis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("query due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *sqlRepo) Apply(ctx context.Context, id string, m domain.Mutation) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := storage.Millis(r.now())
	sets := []string{"updated_at=?"}
	args := []any{now}
	if m.Status != nil {
		sets = append(sets, "status=?")
		args = append(args, string(*m.Status))
	}
	if m.PerformAt != nil {
		sets = append(sets, "perform_at=?")
		args = append(args, storage.Millis(*m.PerformAt))
	}
	if m.CurrentIndex != nil {
		sets = append(sets, "current_index=?")
		args = append(args, *m.CurrentIndex)
	}
	args = append(args, id)

	res, err := tx.ExecContext(ctx, r.db.Rebind(`UPDATE tasks SET `+strings.Join(sets, ",")+` WHERE id=?`), args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err = appendErrors(ctx, tx, r.db, id, m.Errors, now); err != nil {
		return err
	}
	return tx.Commit()
}

func appendErrors(ctx context.Context, tx *sql.Tx, db *storage.DB, id string, msgs []string, at int64) error {
	if len(msgs) == 0 {
		return nil
	}
	var seq int64
	if err := tx.QueryRowContext(ctx, db.Rebind(`SELECT COALESCE(MAX(seq),0) FROM task_errors WHERE task_id=?`), id).Scan(&seq); err != nil {
		return fmt.Errorf("read error seq: %w", err)
	}
	for _, msg := range msgs {
		seq++
		if _, err := tx.ExecContext(ctx, db.Rebind(`INSERT INTO task_errors (task_id,seq,message,at) VALUES (?,?,?,?)`), id, seq, msg, at); err != nil {
			return fmt.Errorf("append task error: %w", err)
		}
	}
	return nil
}

func (r *sqlRepo) Get(ctx context.Context, id string) (domain.Task, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE id=?`), id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`SELECT message FROM task_errors WHERE task_id=? ORDER BY seq`), id)
	if err != nil {
		return domain.Task{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return domain.Task{}, err
		}
		t.ErrorMessages = append(t.ErrorMessages, msg)
	}
	return t, rows.Err()
}

func (r *sqlRepo) ListRecent(ctx context.Context, limit int) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
SELECT `+taskColumns+`
FROM tasks ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *sqlRepo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[domain.Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[domain.Status(status)] = n
	}
	return out, rows.Err()
}

// Cancel flips a scheduled task to error out of band. Handlers never call it.
func (r *sqlRepo) Cancel(ctx context.Context, id, reason string) error {
	t, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != domain.StatusScheduled {
		return ErrNotScheduled
	}
	if reason == "" {
		reason = "canceled"
	}
	status := domain.StatusError
	return r.Apply(ctx, id, domain.Mutation{Status: &status, Errors: []string{reason}})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (domain.Task, error) {
	var (
		t                           domain.Task
		kind, status, payload       string
		extra                       sql.NullString
		performAt, created, updated int64
	)
	if err := s.Scan(&t.ID, &t.Owner, &kind, &status, &performAt, &payload, &t.CurrentIndex, &extra, &created, &updated); err != nil {
		return domain.Task{}, err
	}
	t.Kind = domain.Kind(kind)
	t.Status = domain.Status(status)
	t.PerformAt = storage.FromMillis(performAt)
	t.Payload = json.RawMessage(payload)
	t.CreatedAt = storage.FromMillis(created)
	t.UpdatedAt = storage.FromMillis(updated)
	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &t.Extra); err != nil {
			return domain.Task{}, fmt.Errorf("decode extra of %s: %w", t.ID, err)
		}
	}
	return t, nil
}

func encodeExtra(extra map[string]string) (any, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("encode extra: %w", err)
	}
	return string(b), nil
}
