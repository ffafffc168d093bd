package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// historyMaxLen is the approximate length kept in the event history stream.
const historyMaxLen int64 = 1000

// subscriberBuffer is the channel capacity handed to subscribers.
const subscriberBuffer = 64

// EventBus implements domain.EventBus with Redis Pub/Sub for live
// subscribers and a capped stream per channel as history.
type EventBus struct {
	rdb *redis.Client
}

var (
	_ domain.EventBus        = (*EventBus)(nil)
	_ domain.EventSubscriber = (*EventBus)(nil)
)

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

func historyKey(channel string) string {
	return keyPrefix + "events:" + channel
}

// Publish sends payload to channel subscribers and appends it to the
// channel's history stream in one round trip.
func (eb *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	pipe := eb.rdb.Pipeline()
	pipe.Publish(ctx, channel, payload)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: historyKey(channel),
		MaxLen: historyMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// History returns up to count of the most recent payloads of channel,
// newest first.
func (eb *EventBus) History(ctx context.Context, channel string, count int64) ([][]byte, error) {
	msgs, err := eb.rdb.XRevRangeN(ctx, historyKey(channel), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: history %s: %w", channel, err)
	}

	out := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		switch v := m.Values["payload"].(type) {
		case string:
			out = append(out, []byte(v))
		case []byte:
			out = append(out, v)
		}
	}
	return out, nil
}

// Subscribe returns a channel receiving every payload published on channel
// until ctx is cancelled. The subscription is confirmed before returning.
func (eb *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := eb.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(m.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
