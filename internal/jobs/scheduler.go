package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSweepSchedule runs the counter sweep once a minute.
const DefaultSweepSchedule = "@every 1m"

// Sweeper drops expired rate limit windows.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

type Scheduler struct {
	cron     *cron.Cron
	sweeper  Sweeper
	schedule string
	timeout  time.Duration
	log      zerolog.Logger
}

func NewScheduler(sweeper Sweeper, schedule string, log zerolog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Scheduler{
		cron:     cron.New(),
		sweeper:  sweeper,
		schedule: schedule,
		timeout:  10 * time.Second,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if s.sweeper == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.RunSweep); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("rate limit sweep scheduled")
	return nil
}

// Stop returns a context that is done once any running sweep has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) RunSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.sweeper.Sweep(ctx); err != nil {
		s.log.Error().Err(err).Msg("rate limit sweep failed")
	}
}
