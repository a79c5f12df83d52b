// Package events moves auth audit events and maintenance tasks through a
// Redis stream. The API publishes; cmd/worker consumes.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TaskAuditPrune asks the worker to drop audit rows past retention.
const TaskAuditPrune = "audit.prune"

type Event struct {
	ID         string
	Type       string
	GymID      string
	UserID     string
	OccurredAt time.Time
	Meta       map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *StreamPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.client == nil {
		return nil
	}
	values, err := encode(event)
	if err != nil {
		return err
	}
	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

func encode(event Event) (map[string]any, error) {
	if event.Type == "" {
		return nil, errors.New("event type required")
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	meta := event.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}
	return map[string]any{
		"type":       event.Type,
		"gymId":      event.GymID,
		"userId":     event.UserID,
		"occurredAt": occurred.UTC().Format(time.RFC3339Nano),
		"meta":       string(rawMeta),
	}, nil
}

// Decode rebuilds an event from a stream message.
func Decode(msg redis.XMessage) (Event, error) {
	str := func(key string) string {
		v, _ := msg.Values[key].(string)
		return v
	}

	event := Event{
		ID:     msg.ID,
		Type:   str("type"),
		GymID:  str("gymId"),
		UserID: str("userId"),
	}
	if event.Type == "" {
		return Event{}, errors.New("decode event: missing type")
	}

	if raw := str("occurredAt"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Event{}, fmt.Errorf("decode event: occurredAt: %w", err)
		}
		event.OccurredAt = t
	}
	if raw := str("meta"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &event.Meta); err != nil {
			return Event{}, fmt.Errorf("decode event: meta: %w", err)
		}
	}
	return event, nil
}
