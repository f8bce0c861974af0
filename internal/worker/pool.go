package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"nudger/internal/domain"
	"nudger/internal/queue"
)

// Runner executes one due task and writes its next state.
type Runner interface {
	Run(ctx context.Context, t domain.Task) error
}

// Poller runs one poll cycle at a time: select the due batch, fan out to the
// runner, wait for every task to settle. It never claims rows, so two
// overlapping cycles may both run the same task.
type Poller struct {
	repo  queue.Store
	run   Runner
	batch int
	sem   chan struct{}
	now   func() time.Time
}

// NewPoller builds a Poller. workers <= 0 runs the whole batch at once.
func NewPoller(repo queue.Store, run Runner, batch, workers int) *Poller {
	if batch <= 0 {
		batch = queue.DefaultBatchSize
	}
	if workers <= 0 || workers > batch {
		workers = batch
	}
	return &Poller{repo: repo, run: run, batch: batch, sem: make(chan struct{}, workers), now: time.Now}
}

// RunOnce performs a single poll cycle and returns how many tasks it
// dispatched. Task failures are recorded by the runner, not returned.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	now := p.now()
	due, err := p.repo.Due(ctx, now, p.batch)
	if err != nil {
		log.Error().Err(err).Msg("failed to select due tasks")
		return 0, err
	}

	var wg sync.WaitGroup
	for _, t := range due {
		p.sem <- struct{}{}
		wg.Add(1)
		go func(tk domain.Task) {
			defer func() { <-p.sem; wg.Done() }()
			if err := p.run.Run(ctx, tk); err != nil {
				log.Error().Err(err).Str("task_id", tk.ID).Str("kind", string(tk.Kind)).Msg("task run failed")
			}
		}(t)
	}
	wg.Wait()

	log.Info().Int("batch", len(due)).Time("now", now).Msg("poll cycle finished")
	return len(due), nil
}
