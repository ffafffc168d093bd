package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSubscriber struct {
	mu    sync.Mutex
	chans map[string]chan []byte
}

func (s *chanSubscriber) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := make(chan []byte, 4)
	out := make(chan []byte)
	s.chans[channel] = in
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case b := <-in:
				out <- b
			}
		}
	}()
	return out, nil
}

func (s *chanSubscriber) publish(channel, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chans[channel] <- []byte(payload)
}

func TestHub_RelaysEvents(t *testing.T) {
	sub := &chanSubscriber{chans: make(map[string]chan []byte)}
	hub := NewHub(sub, []string{"analysis:completed", "analysis:failed"}, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return len(sub.chans) == 2
	}, 2*time.Second, 10*time.Millisecond)

	sub.publish("analysis:completed", `{"report_id":"r1"}`)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "analysis:completed", env.Channel)
	assert.JSONEq(t, `{"report_id":"r1"}`, string(env.Payload))

	// Narrow to failures only; completed events are no longer delivered.
	require.NoError(t, conn.WriteJSON(subscribeMsg{Channels: []string{"analysis:failed"}}))
	require.Eventually(t, func() bool {
		for c := range snapshot(hub) {
			if !c.wants("analysis:completed") {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	sub.publish("analysis:completed", `{"report_id":"r2"}`)
	sub.publish("analysis:failed", `{"experiment":"x"}`)
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "analysis:failed", env.Channel)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
}

// failingSubscriber accepts the first channel and rejects the rest. released
// is closed once the accepted subscription has been torn down.
type failingSubscriber struct {
	accepted int
	released chan struct{}
}

func (s *failingSubscriber) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if s.accepted > 0 {
		return nil, errors.New("redis: connection refused")
	}
	s.accepted++
	out := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(s.released)
		close(out)
	}()
	return out, nil
}

func TestHub_SubscribeFailureStopsRelays(t *testing.T) {
	sub := &failingSubscriber{released: make(chan struct{})}
	hub := NewHub(sub, []string{"analysis:completed", "analysis:failed"}, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan error, 1)
	go func() { done <- hub.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ws: subscribe analysis:failed")
	case <-time.After(2 * time.Second):
		t.Fatal("hub kept running after a failed subscription")
	}

	select {
	case <-sub.released:
	default:
		t.Fatal("first subscription still active after Run returned")
	}
}

func snapshot(h *Hub) map[*client]struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[*client]struct{}, len(h.clients))
	for c := range h.clients {
		out[c] = struct{}{}
	}
	return out
}
