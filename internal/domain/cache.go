package domain

import (
	"context"
	"time"
)

// ReportCache keeps the latest report per experiment and input fingerprint.
type ReportCache interface {
	Set(ctx context.Context, report Report, fingerprint string) error
	Get(ctx context.Context, experiment, fingerprint string) (Report, error)
	Latest(ctx context.Context, experiment string) (Report, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// EventBus publishes analysis lifecycle events.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// EventSubscriber streams payloads published on a channel until ctx ends.
type EventSubscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter admits at most limit requests per key within window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
