package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// ReportCache implements domain.ReportCache with JSON strings.
//
// Key schema:
//
//	hrcsafety:report:{experiment}:{fingerprint} - report for one input fingerprint
//	hrcsafety:report:{experiment}:latest        - most recently stored report
type ReportCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.ReportCache = (*ReportCache)(nil)

// NewReportCache creates a ReportCache whose entries expire after ttl. A
// non-positive ttl keeps entries until evicted.
func NewReportCache(c *Client, ttl time.Duration) *ReportCache {
	return &ReportCache{rdb: c.Underlying(), ttl: max(ttl, 0)}
}

func reportKey(experiment, fingerprint string) string {
	return keyPrefix + "report:" + experiment + ":" + fingerprint
}

func latestKey(experiment string) string {
	return keyPrefix + "report:" + experiment + ":latest"
}

// Set stores report under its fingerprint and as the experiment's latest.
func (rc *ReportCache) Set(ctx context.Context, report domain.Report, fingerprint string) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("redis: marshal report %s: %w", report.ID, err)
	}

	pipe := rc.rdb.TxPipeline()
	pipe.Set(ctx, reportKey(report.Experiment, fingerprint), data, rc.ttl)
	pipe.Set(ctx, latestKey(report.Experiment), data, rc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set report %s: %w", report.ID, err)
	}
	return nil
}

// Get returns the report computed for experiment with fingerprint.
func (rc *ReportCache) Get(ctx context.Context, experiment, fingerprint string) (domain.Report, error) {
	return rc.load(ctx, reportKey(experiment, fingerprint))
}

// Latest returns the most recently stored report of experiment.
func (rc *ReportCache) Latest(ctx context.Context, experiment string) (domain.Report, error) {
	return rc.load(ctx, latestKey(experiment))
}

func (rc *ReportCache) load(ctx context.Context, key string) (domain.Report, error) {
	data, err := rc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Report{}, fmt.Errorf("redis: %s: %w", key, domain.ErrNotFound)
		}
		return domain.Report{}, fmt.Errorf("redis: get %s: %w", key, err)
	}

	var r domain.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.Report{}, fmt.Errorf("redis: unmarshal %s: %w", key, err)
	}
	return r, nil
}
