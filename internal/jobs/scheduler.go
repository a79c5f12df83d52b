// Package jobs runs periodic maintenance by enqueueing tasks onto the audit
// stream for the worker to execute.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/lucasfragadev/gym-dev/internal/events"
)

type Scheduler struct {
	cron      *cron.Cron
	publisher events.Publisher
	schedule  string
	log       zerolog.Logger
	now       func() time.Time
}

// NewScheduler takes a six-field (seconds first) cron expression for the
// audit prune task.
func NewScheduler(publisher events.Publisher, schedule string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		publisher: publisher,
		schedule:  schedule,
		log:       log,
		now:       time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.publisher == nil || s.schedule == "" {
		s.log.Info().Msg("scheduler disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.enqueuePrune); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("scheduler started")
	return nil
}

// Stop waits up to five seconds for a running job to finish.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueuePrune() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.publisher.Publish(ctx, events.Event{
		Type:       events.TaskAuditPrune,
		OccurredAt: s.now(),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("enqueue audit prune failed")
		return
	}
	s.log.Debug().Msg("audit prune enqueued")
}
