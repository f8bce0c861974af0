package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"nudger/internal/domain"
)

// oneTime fires once and always ends terminal.
func (r *Runner) oneTime(ctx context.Context, t domain.Task) *domain.Mutation {
	var p domain.OneTimePayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return failed(fmt.Errorf("decode payload: %w", err))
	}

	var err error
	if p.Event == domain.EventGroupActionCreated {
		err = r.notifyUnseen(ctx, t, p)
	} else {
		err = r.send(ctx, t, p.Title, p.Body, p.Event)
	}
	if err != nil {
		log.Warn().Err(err).Str("task_id", t.ID).Str("owner", t.Owner).Msg("one-time task failed")
		return failed(err)
	}
	return completed()
}
