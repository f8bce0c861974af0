package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const DefaultSchedule = "@every 2m"

// Cycle is one poll of the task store.
type Cycle interface {
	RunOnce(ctx context.Context) (int, error)
}

// Service fires poll cycles on a cron schedule. Cycles are not serialized:
// if one runs longer than the interval the next starts anyway.
type Service struct {
	cycle Cycle
	cron  *cron.Cron
	sched string
}

func NewService(cycle Cycle, schedule string) (*Service, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}
	return &Service{cycle: cycle, cron: cron.New(), sched: schedule}, nil
}

// Start registers the poll job and blocks until ctx is done. In-flight
// cycles are waited for before returning.
func (s *Service) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.sched, func() {
		if _, err := s.cycle.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("poll cycle failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Info().Str("schedule", s.sched).Msg("poll scheduler started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	log.Info().Msg("poll scheduler stopped")
	return nil
}

// ValidateSchedule accepts standard five-field cron expressions and
// descriptors such as "@every 2m".
func ValidateSchedule(schedule string) error {
	_, err := cron.ParseStandard(schedule)
	return err
}

// NextRun returns when schedule fires next after from.
func NextRun(schedule string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
