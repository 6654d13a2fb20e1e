package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"dinedesk/internal/infra/realtime"
	"dinedesk/internal/stories/waitercalls"
)

// CallSource fetches the open waiter calls.
type CallSource interface {
	ListWaiterCalls(ctx context.Context) ([]*waitercalls.Call, error)
}

// CallObserver is told when a guest calls for a waiter.
type CallObserver interface {
	OnWaiterCall(call *waitercalls.Call)
}

// Calls tracks open waiter calls. It has its own feed and lifecycle, separate
// from the order board.
type Calls struct {
	restaurantID string
	source       CallSource
	observer     CallObserver
	logger       *slog.Logger

	mu    sync.RWMutex
	calls map[string]*waitercalls.Call
	ready bool

	envelopes chan realtime.Envelope
	resync    chan struct{}
	done      chan struct{}
}

func NewCalls(restaurantID string, source CallSource, observer CallObserver, logger *slog.Logger) *Calls {
	return &Calls{
		restaurantID: restaurantID,
		source:       source,
		observer:     observer,
		logger:       logger,
		calls:        make(map[string]*waitercalls.Call),
		envelopes:    make(chan realtime.Envelope, 64),
		resync:       make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

func (c *Calls) Run(ctx context.Context) error {
	defer close(c.done)

	c.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-c.envelopes:
			c.apply(env)
		case <-c.resync:
			c.refresh(ctx)
		}
	}
}

func (c *Calls) HandleEnvelope(env realtime.Envelope) {
	if env.Channel != realtime.ChannelWaiterCalls {
		return
	}
	select {
	case c.envelopes <- env:
	case <-c.done:
	}
}

// HandleConnState refetches on every (re)connect.
func (c *Calls) HandleConnState(state realtime.ConnState) {
	if state != realtime.StateConnected {
		return
	}
	select {
	case c.resync <- struct{}{}:
	default:
	}
}

// Open returns the calls that still need attention, oldest first.
func (c *Calls) Open() []*waitercalls.Call {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*waitercalls.Call, 0, len(c.calls))
	for _, call := range c.calls {
		cp := *call
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Calls) refresh(ctx context.Context) {
	list, err := c.source.ListWaiterCalls(ctx)
	if err != nil {
		c.logger.Warn("Failed to refresh waiter calls", "error", err)
		return
	}

	c.mu.Lock()
	fresh := make(map[string]*waitercalls.Call, len(list))
	var arrived []*waitercalls.Call
	for _, call := range list {
		if call.Status == waitercalls.StatusCompleted {
			continue
		}
		if _, known := c.calls[call.ID]; !known && c.ready && call.Status == waitercalls.StatusOpen {
			arrived = append(arrived, call)
		}
		fresh[call.ID] = call
	}
	c.calls = fresh
	c.ready = true
	c.mu.Unlock()

	for _, call := range arrived {
		c.observer.OnWaiterCall(call)
	}
}

func (c *Calls) apply(env realtime.Envelope) {
	if env.RestaurantID != c.restaurantID {
		return
	}
	var call waitercalls.Call
	if err := json.Unmarshal(env.Record, &call); err != nil || call.ID == "" {
		c.logger.Warn("Skipping undecodable waiter call delta", "error", err)
		return
	}

	c.mu.Lock()
	_, known := c.calls[call.ID]
	if env.Action == realtime.ActionDelete || call.Status == waitercalls.StatusCompleted {
		delete(c.calls, call.ID)
	} else {
		c.calls[call.ID] = &call
	}
	c.mu.Unlock()

	if env.Action == realtime.ActionInsert && !known && call.Status == waitercalls.StatusOpen {
		c.observer.OnWaiterCall(&call)
	}
}
