package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"loyalty-engine/pkg/config"
	"loyalty-engine/pkg/eventbus"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type received struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func newDispatcher(t *testing.T, hooks config.Webhooks) *Dispatcher {
	t.Helper()
	cfg := &config.Config{}
	cfg.Loyalty.Webhooks = hooks
	return NewDispatcher(Params{Config: cfg, Logger: zap.NewNop()})
}

func TestDispatcherPostsSystemEvents(t *testing.T) {
	var mu sync.Mutex
	var got []received
	var header string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload received
		require.NoError(t, json.Unmarshal(body, &payload))

		mu.Lock()
		got = append(got, payload)
		header = r.Header.Get("X-Loyalty-Token")
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := newDispatcher(t, config.Webhooks{
		Enabled:     true,
		URI:         srv.URL,
		HeaderName:  "X-Loyalty-Token",
		HeaderValue: "secret",
	})
	events := eventbus.New(eventbus.Params{Logger: zap.NewNop()})
	d.Subscribe(events)

	events.Publish(context.Background(), eventbus.SystemEvent{
		Name:    "customer.registered",
		Payload: map[string]any{"customerId": "abc"},
	})
	d.Flush()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	require.Equal(t, "customer.registered", got[0].Type)
	require.Equal(t, "abc", got[0].Data["customerId"])
	require.Equal(t, "secret", header)
}

func TestDispatcherDisabledDoesNotSubscribe(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newDispatcher(t, config.Webhooks{Enabled: false, URI: srv.URL})
	events := eventbus.New(eventbus.Params{Logger: zap.NewNop()})
	d.Subscribe(events)

	events.Publish(context.Background(), eventbus.SystemEvent{Name: "customer.registered"})
	d.Flush()
	require.Zero(t, calls)
}

func TestDispatcherSurvivesEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newDispatcher(t, config.Webhooks{Enabled: true, URI: srv.URL})
	events := eventbus.New(eventbus.Params{Logger: zap.NewNop()})
	d.Subscribe(events)

	// Neither a 5xx nor a dead endpoint must disturb the publisher.
	events.Publish(context.Background(), eventbus.SystemEvent{Name: "account.created"})
	d.Flush()

	srv.Close()
	events.Publish(context.Background(), eventbus.SystemEvent{Name: "account.created"})

	done := make(chan struct{})
	go func() {
		d.Flush()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not drain in time")
	}
}
