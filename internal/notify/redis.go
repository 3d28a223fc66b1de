package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "lockedin:events"

// RedisSink publishes events on a pub/sub channel so every API instance can
// forward them to its own websocket connections.
type RedisSink struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisSink(rdb *redis.Client, channel string, logger *zap.Logger) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSink{rdb: rdb, channel: channel, logger: logger}
}

func (s *RedisSink) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.rdb.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Subscribe confirms the subscription, then forwards decoded events to handle
// from a background goroutine until ctx is done.
func (s *RedisSink) Subscribe(ctx context.Context, handle func(Event)) error {
	sub := s.rdb.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.logger.Info("subscribed to event channel", zap.String("channel", s.channel))

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.logger.Warn("drop malformed event", zap.Error(err))
					continue
				}
				handle(ev)
			}
		}
	}()
	return nil
}
