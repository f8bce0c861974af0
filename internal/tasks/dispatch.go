// Package tasks holds the task factory and the per-kind handlers that run a
// due task and decide its next state.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"nudger/internal/domain"
	"nudger/internal/feed"
	"nudger/internal/notify"
	"nudger/internal/queue"
)

var ErrUnknownKind = errors.New("unknown task kind")

// Handler runs the side effect of one due task and returns the write to
// apply to it. A nil mutation leaves the record untouched.
type Handler func(ctx context.Context, t domain.Task) *domain.Mutation

type Runner struct {
	store    queue.Store
	notifier notify.Notifier
	feed     feed.Feed
	dir      feed.Directory
	now      func() time.Time
}

func NewRunner(store queue.Store, n notify.Notifier, f feed.Feed, dir feed.Directory) *Runner {
	return &Runner{store: store, notifier: n, feed: f, dir: dir, now: time.Now}
}

// Dispatch resolves the handler for a kind.
func (r *Runner) Dispatch(kind domain.Kind) (Handler, error) {
	switch kind {
	case domain.KindOneTime:
		return r.oneTime, nil
	case domain.KindPlanned:
		return r.planned, nil
	case domain.KindRecurring:
		return r.recurring, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
}

// Run executes one due task and persists its next state. Handler failures
// become state writes; only a failed store write is returned.
func (r *Runner) Run(ctx context.Context, t domain.Task) error {
	if t.Status.Terminal() {
		return nil
	}
	h, err := r.Dispatch(t.Kind)
	var m *domain.Mutation
	if err != nil {
		m = failed(err)
	} else {
		m = h(ctx, t)
	}
	if m == nil {
		return nil
	}
	if err := r.store.Apply(ctx, t.ID, *m); err != nil {
		log.Error().Err(err).Str("task_id", t.ID).Str("kind", string(t.Kind)).Msg("failed to write task state")
		return err
	}
	return nil
}

func (r *Runner) send(ctx context.Context, t domain.Task, title domain.Text, body *domain.Text, event string) error {
	data := make(map[string]string, len(t.Extra)+1)
	for k, v := range t.Extra {
		data[k] = v
	}
	data["event"] = event
	return r.notifier.Send(ctx, t.Owner, notify.Message{Title: title, Body: body}, data)
}

func failed(err error) *domain.Mutation {
	s := domain.StatusError
	return &domain.Mutation{Status: &s, Errors: []string{err.Error()}}
}

func completed() *domain.Mutation {
	s := domain.StatusComplete
	return &domain.Mutation{Status: &s}
}
