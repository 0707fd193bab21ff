package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"loyalty-engine/pkg/config"
	"loyalty-engine/pkg/eventbus"
)

const requestTimeout = 700 * time.Millisecond

// Dispatcher forwards every system event to the configured webhook endpoint.
// Delivery is best effort: requests run off the publisher's goroutine, use a
// short timeout and failures are only logged. Consumers that need guarantees
// should read the event store instead.
type Dispatcher struct {
	client *resty.Client
	cfg    config.Webhooks
	logger *zap.Logger
	wg     sync.WaitGroup
}

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{
		client: resty.New().SetTimeout(requestTimeout),
		cfg:    p.Config.Loyalty.Webhooks,
		logger: p.Logger,
	}
}

func (d *Dispatcher) Subscribe(events *eventbus.Bus) {
	if !d.cfg.Enabled || d.cfg.URI == "" {
		d.logger.Info("webhooks disabled")
		return
	}
	events.SubscribeAll(d.onEvent)
}

func (d *Dispatcher) onEvent(_ context.Context, ev eventbus.SystemEvent) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.send(ev)
	}()
}

func (d *Dispatcher) send(ev eventbus.SystemEvent) {
	req := d.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(ev)
	if d.cfg.HeaderName != "" {
		req.SetHeader(d.cfg.HeaderName, d.cfg.HeaderValue)
	}

	resp, err := req.Post(d.cfg.URI)
	if err != nil {
		d.logger.Warn("webhook request failed",
			zap.String("event", ev.Name),
			zap.String("uri", d.cfg.URI),
			zap.Error(err),
		)
		return
	}
	if resp.IsError() {
		d.logger.Warn("webhook endpoint returned an error",
			zap.String("event", ev.Name),
			zap.Int("status", resp.StatusCode()),
		)
	}
}

// Flush blocks until every in-flight delivery has finished.
func (d *Dispatcher) Flush() {
	d.wg.Wait()
}
