package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"nudger/internal/domain"
)

// planned sends the current step and advances whether or not the send
// succeeded. Only a failure on the last step leaves the task in error.
func (r *Runner) planned(ctx context.Context, t domain.Task) *domain.Mutation {
	var p domain.PlannedPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return failed(fmt.Errorf("decode payload: %w", err))
	}
	if len(p.Steps) == 0 {
		return failed(ErrNoSteps)
	}
	last := len(p.Steps) - 1
	if t.CurrentIndex > last {
		return completed()
	}

	step := p.Steps[t.CurrentIndex]
	sendErr := r.send(ctx, t, step.Title, step.Body, step.Event)

	next := t.CurrentIndex + 1
	idx := min(last, next)
	m := &domain.Mutation{CurrentIndex: &idx}
	status := domain.StatusScheduled
	if next <= last {
		at := addDays(p.StartDate, p.Steps[next].DayOffset)
		m.PerformAt = &at
	} else {
		status = domain.StatusComplete
	}
	if sendErr != nil {
		log.Warn().Err(sendErr).Str("task_id", t.ID).Int("step", t.CurrentIndex).Msg("planned step failed")
		m.Errors = []string{sendErr.Error()}
		if next > last {
			status = domain.StatusError
		}
	}
	m.Status = &status
	return m
}
