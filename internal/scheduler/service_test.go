package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCycle struct{ n int32 }

func (c *countingCycle) RunOnce(context.Context) (int, error) {
	atomic.AddInt32(&c.n, 1)
	return 0, nil
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule(DefaultSchedule))
	assert.NoError(t, ValidateSchedule("*/2 * * * *"))
	assert.Error(t, ValidateSchedule("every two minutes"))

	_, err := NewService(&countingCycle{}, "nope")
	assert.Error(t, err)
}

func TestNextRun(t *testing.T) {
	from := time.Date(2025, 1, 1, 10, 1, 30, 0, time.UTC)
	next, err := NextRun("*/2 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 2, 0, 0, time.UTC), next)
}

func TestServiceRunsCyclesUntilCanceled(t *testing.T) {
	c := &countingCycle{}
	s, err := NewService(c, "@every 1s")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&c.n) >= 1 }, 5*time.Second, 50*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
