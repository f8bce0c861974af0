package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"nudger/internal/domain"
)

// recurring never reaches a terminal state on its own. The next fire is
// measured from the previous PerformAt so the cadence does not drift. A
// failed send writes nothing, leaving the task due again on the next poll.
func (r *Runner) recurring(ctx context.Context, t domain.Task) *domain.Mutation {
	var p domain.RecurringPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return failed(fmt.Errorf("decode payload: %w", err))
	}
	if err := validateRecurring(p); err != nil {
		return failed(err)
	}
	days, _ := p.Pace.Days()

	if err := r.send(ctx, t, p.Title, p.Body, p.Event); err != nil {
		log.Error().Err(err).Str("task_id", t.ID).Str("owner", t.Owner).Msg("recurring task failed")
		return nil
	}
	next := addDays(t.PerformAt, p.Interval*days)
	return &domain.Mutation{PerformAt: &next}
}
