// Package queue reads the audit stream through a consumer group and hands
// each message to a MessageHandler, acking only what was handled.
package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DeadLetterSuffix names the stream that receives messages which kept failing.
const DeadLetterSuffix = ":dead"

// DefaultMaxDeliveries is how often a message is handed out before it is
// dead-lettered.
const DefaultMaxDeliveries = 5

type MessageHandler interface {
	Handle(ctx context.Context, msg redis.XMessage) error
}

type Consumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	claimInterval time.Duration
	block         time.Duration
	batch         int64
	maxDeliveries int64
	logger        zerolog.Logger
	handler       MessageHandler
}

func NewConsumer(client *redis.Client, stream, group, consumer string, claimInterval time.Duration, logger zerolog.Logger, handler MessageHandler) *Consumer {
	if claimInterval <= 0 {
		claimInterval = 30 * time.Second
	}
	return &Consumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		claimInterval: claimInterval,
		block:         5 * time.Second,
		batch:         10,
		maxDeliveries: DefaultMaxDeliveries,
		logger:        logger.With().Str("stream", stream).Str("group", group).Logger(),
		handler:       handler,
	}
}

// EnsureGroup creates the stream and group if needed. The group starts at
// the beginning of the stream so events published before the first worker
// boot are not lost.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Start blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(c.claimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.read(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error().Err(err).Msg("stream read error")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.claimStalled(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error().Err(err).Msg("claim stalled failed")
			}
		default:
		}
	}
}

func (c *Consumer) read(ctx context.Context) error {
	result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batch,
		Block:    c.block,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	for _, stream := range result {
		for _, msg := range stream.Messages {
			c.process(ctx, msg)
		}
	}
	return nil
}

// claimStalled takes over messages another consumer read but never acked.
// It pages through the whole pending list; messages delivered maxDeliveries
// times are moved to the dead-letter stream instead of being retried.
func (c *Consumer) claimStalled(ctx context.Context) error {
	start := "-"
	for {
		pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: c.stream,
			Group:  c.group,
			Start:  start,
			End:    "+",
			Count:  c.batch,
		}).Result()
		if err != nil {
			return err
		}

		advanced := false
		for _, entry := range pending {
			// Start is inclusive, so the previous page's last entry can repeat.
			if start != "-" && entry.ID == start {
				continue
			}
			advanced = true
			start = entry.ID

			if entry.Idle < c.claimInterval {
				continue
			}
			c.claim(ctx, entry)
		}

		if !advanced || int64(len(pending)) < c.batch {
			return nil
		}
	}
}

func (c *Consumer) claim(ctx context.Context, entry redis.XPendingExt) {
	msgs, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  c.claimInterval,
		Messages: []string{entry.ID},
	}).Result()
	if err != nil {
		c.logger.Error().Err(err).Str("message_id", entry.ID).Msg("claim failed")
		return
	}
	for _, msg := range msgs {
		if entry.RetryCount >= c.maxDeliveries {
			c.deadLetter(ctx, msg, entry.RetryCount)
			continue
		}
		c.process(ctx, msg)
	}
}

// deadLetter copies msg to the dead-letter stream and acks the original.
func (c *Consumer) deadLetter(ctx context.Context, msg redis.XMessage, deliveries int64) {
	values := make(map[string]interface{}, len(msg.Values)+2)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["originalId"] = msg.ID
	values["deliveries"] = deliveries

	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: c.deadStream(), Values: values}).Err(); err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("dead-letter failed")
		return
	}
	if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("ack dead-lettered failed")
		return
	}
	c.logger.Warn().Str("message_id", msg.ID).Int64("deliveries", deliveries).Msg("message dead-lettered")
}

func (c *Consumer) deadStream() string { return c.stream + DeadLetterSuffix }

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	if err := c.handler.Handle(ctx, msg); err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("handle message failed")
		return
	}
	if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("ack failed")
	}
}
