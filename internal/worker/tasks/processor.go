// Package tasks turns audit stream messages into audit rows and runs the
// maintenance tasks the scheduler enqueues.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lucasfragadev/gym-dev/internal/events"
	"github.com/lucasfragadev/gym-dev/internal/models"
	"github.com/lucasfragadev/gym-dev/internal/repository"
)

// AuditSink is the slice of the audit repository the worker writes through.
type AuditSink interface {
	Insert(ctx context.Context, entry models.AuditEntry) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var _ AuditSink = (*repository.AuditRepository)(nil)

type Processor struct {
	sink      AuditSink
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewProcessor(sink AuditSink, retention time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		sink:      sink,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle returns an error only when the message should stay pending and be
// retried. Messages that can never be decoded are logged and dropped.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	event, err := events.Decode(msg)
	if err != nil {
		p.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("dropping undecodable message")
		return nil
	}

	switch event.Type {
	case events.TaskAuditPrune:
		return p.prune(ctx)
	default:
		return p.record(ctx, event)
	}
}

func (p *Processor) record(ctx context.Context, event events.Event) error {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = p.now()
	}
	entry := models.AuditEntry{
		ID:         event.ID,
		GymID:      event.GymID,
		UserID:     event.UserID,
		Event:      models.AuditEvent(event.Type),
		OccurredAt: occurred,
		Metadata:   event.Meta,
	}
	if err := p.sink.Insert(ctx, entry); err != nil {
		return fmt.Errorf("insert audit %s: %w", event.ID, err)
	}
	p.logger.Debug().
		Str("event", event.Type).
		Str("gym_id", event.GymID).
		Str("user_id", event.UserID).
		Msg("audit recorded")
	return nil
}

func (p *Processor) prune(ctx context.Context) error {
	if p.retention <= 0 {
		p.logger.Info().Msg("audit retention disabled, skipping prune")
		return nil
	}
	cutoff := p.now().Add(-p.retention)
	removed, err := p.sink.PruneBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune audit: %w", err)
	}
	p.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("audit pruned")
	return nil
}
