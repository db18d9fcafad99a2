package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) Sweep(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestSchedulerRunsSweep(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewScheduler(sweeper, "@every 1s", zerolog.Nop())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&countingSweeper{}, "every now and then", zerolog.Nop())
	assert.Error(t, s.Start())
}

func TestSchedulerWithoutSweeper(t *testing.T) {
	s := NewScheduler(nil, "", zerolog.Nop())
	require.NoError(t, s.Start())
	<-s.Stop().Done()
}

func TestRunSweepSwallowsErrors(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("store unavailable")}
	s := NewScheduler(sweeper, "", zerolog.Nop())

	s.RunSweep()
	assert.EqualValues(t, 1, sweeper.calls.Load())
}
