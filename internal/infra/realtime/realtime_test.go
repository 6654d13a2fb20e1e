package realtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnvelopeCodec(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 30, 0, 0, time.UTC)
	in := Envelope{
		Channel:      ChannelOrders,
		Action:       ActionUpdate,
		RestaurantID: "r1",
		Record:       jx.Raw(`{"id":"o1","status":"in_progress"}`),
		At:           at,
	}

	out, err := DecodeEnvelope(in.Encode())
	require.NoError(t, err)
	assert.Equal(t, in.Channel, out.Channel)
	assert.Equal(t, in.Action, out.Action)
	assert.Equal(t, "r1", out.RestaurantID)
	assert.True(t, at.Equal(out.At))
	assert.JSONEq(t, `{"id":"o1","status":"in_progress"}`, string(out.Record))
}

func TestDecodeEnvelopeRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `nope`},
		{name: "unknown action", data: `{"channel":"orders","action":"upsert","record":{}}`},
		{name: "record not object", data: `{"channel":"orders","action":"insert","record":[1]}`},
		{name: "missing record", data: `{"channel":"orders","action":"insert"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestDecodeEnvelopeSkipsUnknownFields(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"extra":[1,2],"channel":"waiter_calls","action":"insert","record":{"id":"c1"}}`))
	require.NoError(t, err)
	assert.Equal(t, ChannelWaiterCalls, env.Channel)
}

type recordingHandler struct {
	mu        sync.Mutex
	envelopes []Envelope
	states    []ConnState
	envCh     chan Envelope
	stateCh   chan ConnState
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{envCh: make(chan Envelope, 16), stateCh: make(chan ConnState, 16)}
}

func (r *recordingHandler) HandleEnvelope(env Envelope) {
	r.mu.Lock()
	r.envelopes = append(r.envelopes, env)
	r.mu.Unlock()
	r.envCh <- env
}

func (r *recordingHandler) HandleConnState(s ConnState) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
	r.stateCh <- s
}

func waitState(t *testing.T, h *recordingHandler, want ConnState) {
	t.Helper()
	select {
	case got := <-h.stateCh:
		require.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

func waitSubscribers(t *testing.T, hub *Hub, rid string, ch Channel, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Subscribers(rid, ch) == n }, 5*time.Second, 10*time.Millisecond)
}

func TestHubToClient(t *testing.T) {
	hub := NewHub(discardLogger())

	var mu sync.Mutex
	var authHeaders []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		mu.Unlock()
		hub.ServeWS(w, r, "r1", ChannelOrders)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client := NewClient(url, func(context.Context) (string, error) { return "tok", nil }, 20*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newRecordingHandler()
	done := make(chan struct{})
	go func() {
		_ = client.Run(ctx, h)
		close(done)
	}()

	waitState(t, h, StateConnected)
	waitSubscribers(t, hub, "r1", ChannelOrders, 1)

	require.NoError(t, hub.Publish("r2", ChannelOrders, ActionInsert, map[string]string{"id": "other"}))
	require.NoError(t, hub.Publish("r1", ChannelWaiterCalls, ActionInsert, map[string]string{"id": "call"}))
	require.NoError(t, hub.Publish("r1", ChannelOrders, ActionInsert, map[string]string{"id": "o1"}))

	select {
	case env := <-h.envCh:
		assert.Equal(t, ActionInsert, env.Action)
		assert.JSONEq(t, `{"id":"o1"}`, string(env.Record))
	case <-time.After(5 * time.Second):
		t.Fatal("no envelope delivered")
	}

	mu.Lock()
	assert.Equal(t, "Bearer tok", authHeaders[0])
	mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop")
	}
	waitSubscribers(t, hub, "r1", ChannelOrders, 0)
}

func TestClientReconnects(t *testing.T) {
	hub := NewHub(discardLogger())

	var mu sync.Mutex
	dials := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()
		if n == 2 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		hub.ServeWS(w, r, "r1", ChannelOrders)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client := NewClient(url, func(context.Context) (string, error) { return "tok", nil }, 20*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newRecordingHandler()
	go func() { _ = client.Run(ctx, h) }()

	waitState(t, h, StateConnected)
	waitSubscribers(t, hub, "r1", ChannelOrders, 1)

	// Dropping the subscriber closes its connection from the server side.
	hub.mu.Lock()
	for tp, subs := range hub.topics {
		for sub := range subs {
			hub.removeLocked(tp, sub)
		}
	}
	hub.mu.Unlock()

	waitState(t, h, StateDisconnected)
	waitState(t, h, StateConnected)

	mu.Lock()
	assert.GreaterOrEqual(t, dials, 3)
	mu.Unlock()
}
