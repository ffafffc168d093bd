package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestReportCache(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	cache := NewReportCache(c, time.Hour)

	_, err := cache.Latest(ctx, "safety_areas")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	r1 := domain.Report{ID: "r1", Experiment: "safety_areas", Strategies: []string{"BASIC_SOLVER"}}
	r2 := domain.Report{ID: "r2", Experiment: "safety_areas"}
	require.NoError(t, cache.Set(ctx, r1, "fp1"))
	require.NoError(t, cache.Set(ctx, r2, "fp2"))

	got, err := cache.Get(ctx, "safety_areas", "fp1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
	assert.Equal(t, []string{"BASIC_SOLVER"}, got.Strategies)

	got, err = cache.Latest(ctx, "safety_areas")
	require.NoError(t, err)
	assert.Equal(t, "r2", got.ID)

	_, err = cache.Get(ctx, "safety_areas", "other")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	mr.FastForward(2 * time.Hour)
	_, err = cache.Get(ctx, "safety_areas", "fp1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLockManager(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "analysis:safety_areas", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "analysis:safety_areas", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	other, err := lm.Acquire(ctx, "analysis:velocity_scaling", time.Minute)
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	assert.False(t, mr.Exists(lockKey("analysis:safety_areas")))

	again, err := lm.Acquire(ctx, "analysis:safety_areas", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLockManager_StaleUnlockKeepsNewHolder(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	stale, err := lm.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := lm.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists(lockKey("k")))
	fresh()
	assert.False(t, mr.Exists(lockKey("k")))
}

func TestEventBus(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	bus := NewEventBus(c)

	sub := c.Underlying().Subscribe(ctx, "analysis:completed")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]string{"experiment": "safety_areas"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "analysis:completed", payload))
	require.NoError(t, bus.Publish(ctx, "analysis:completed", []byte(`{"n":2}`)))

	select {
	case msg := <-sub.Channel():
		assert.JSONEq(t, string(payload), msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	hist, err := bus.History(ctx, "analysis:completed", 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, `{"n":2}`, string(hist[0]))
}

func TestRateLimiter(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)

	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "api:127.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
		now = now.Add(time.Second)
	}

	ok, err := rl.Allow(ctx, "api:127.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "api:10.0.0.2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = rl.Allow(ctx, "api:127.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEventBus_Subscribe(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewEventBus(c)

	ch, err := bus.Subscribe(ctx, "analysis:failed")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), "analysis:failed", []byte(`{"experiment":"x"}`)))

	select {
	case got := <-ch:
		assert.JSONEq(t, `{"experiment":"x"}`, string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}
}
