package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper runs a background job on a fixed cron cadence.
type Sweeper struct {
	cron   *cron.Cron
	every  time.Duration
	logger zerolog.Logger
}

// NewSweeper registers job to run every interval. A run still in progress
// when the next one is due is skipped.
func NewSweeper(every time.Duration, job func(), logger zerolog.Logger) (*Sweeper, error) {
	if every <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive")
	}
	logger = logger.With().Str("component", "sweeper").Logger()
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", every), job); err != nil {
		return nil, fmt.Errorf("register sweep job: %w", err)
	}
	return &Sweeper{cron: c, every: every, logger: logger}, nil
}

// Run starts the cron loop and blocks until ctx is done, then waits for a
// running job to finish.
func (s *Sweeper) Run(ctx context.Context) {
	s.cron.Start()
	s.logger.Info().Dur("every", s.every).Msg("sweeper started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("sweeper stopped")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
