package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"nudger/internal/domain"
	"nudger/internal/queue"
)

var (
	ErrNoSteps     = errors.New("planned task needs at least one step")
	ErrUnknownPace = errors.New("unknown pace")
	ErrBadInterval = errors.New("interval must be at least 1")
)

// Factory is the only way producers enqueue work. Every constructor treats
// an empty owner as a no-op and returns ("", nil).
type Factory struct {
	store queue.Store
}

func NewFactory(store queue.Store) *Factory { return &Factory{store: store} }

func (f *Factory) CreateOneTime(ctx context.Context, owner string, performAt time.Time, p domain.OneTimePayload, extra map[string]string) (string, error) {
	if owner == "" {
		return "", nil
	}
	return f.insert(ctx, owner, domain.KindOneTime, performAt, p, extra)
}

// CreatePlanned anchors the step sequence at startDate; the first fire is
// startDate plus the first step's offset.
func (f *Factory) CreatePlanned(ctx context.Context, owner string, startDate time.Time, steps []domain.Step, extra map[string]string) (string, error) {
	if owner == "" {
		return "", nil
	}
	if len(steps) == 0 {
		return "", ErrNoSteps
	}
	p := domain.PlannedPayload{StartDate: startDate, Steps: steps}
	return f.insert(ctx, owner, domain.KindPlanned, addDays(startDate, steps[0].DayOffset), p, extra)
}

func (f *Factory) CreateRecurring(ctx context.Context, owner string, firstPerformAt time.Time, p domain.RecurringPayload, extra map[string]string) (string, error) {
	if owner == "" {
		return "", nil
	}
	if err := validateRecurring(p); err != nil {
		return "", err
	}
	return f.insert(ctx, owner, domain.KindRecurring, firstPerformAt, p, extra)
}

func validateRecurring(p domain.RecurringPayload) error {
	if _, err := p.Pace.Days(); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownPace, string(p.Pace))
	}
	if p.Interval < 1 {
		return ErrBadInterval
	}
	return nil
}

func (f *Factory) insert(ctx context.Context, owner string, kind domain.Kind, performAt time.Time, payload any, extra map[string]string) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", kind, err)
	}
	id, err := f.store.Insert(ctx, domain.Task{
		Owner:     owner,
		Kind:      kind,
		Status:    domain.StatusScheduled,
		PerformAt: performAt,
		Payload:   b,
		Extra:     extra,
	})
	if err != nil {
		return "", err
	}
	log.Info().
		Str("task_id", id).
		Str("kind", string(kind)).
		Str("owner", owner).
		Time("perform_at", performAt).
		Msg("task scheduled")
	return id, nil
}

func addDays(t time.Time, days int) time.Time { return t.AddDate(0, 0, days) }
