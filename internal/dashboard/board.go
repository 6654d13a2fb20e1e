package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"dinedesk/internal/infra/realtime"
	"dinedesk/internal/metrics"
	"dinedesk/internal/stories/orders"
)

var ErrOrderNotFound = errors.New("order is not on the board")

type LoadState string

const (
	StateLoading LoadState = "loading"
	StateReady   LoadState = "ready"
	// StateFailed is terminal until Retry is called.
	StateFailed LoadState = "failed"
)

// OrderSource performs the authoritative full fetch.
type OrderSource interface {
	ListOrders(ctx context.Context) ([]*orders.Order, error)
}

// Observer is told about every change the board reconciles from the server.
// Local optimistic patches are not reported. Callbacks run on the board
// goroutine and must not block.
type Observer interface {
	OnInsert(order *orders.Order)
	OnUpdate(next, prev *orders.Order)
	OnDelete(order *orders.Order)
}

type Snapshot struct {
	State     LoadState       `json:"state"`
	Error     string          `json:"error,omitempty"`
	Connected bool            `json:"connected"`
	Unseen    int             `json:"unseen"`
	LastSync  *time.Time      `json:"last_sync,omitempty"`
	Orders    []*orders.Order `json:"orders"`
}

// entry keeps what the server last confirmed apart from what staff see,
// so optimistic patches never hide a server change from the observer.
type entry struct {
	confirmed *orders.Order
	view      *orders.Order
}

// Board holds the restaurant's live order list. Feed deltas, fallback polls,
// reconnect resyncs and manual retries are all applied by Run, one at a time.
type Board struct {
	restaurantID string
	source       OrderSource
	observer     Observer
	pollInterval time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu        sync.RWMutex
	entries   map[string]*entry
	seen      map[string]struct{}
	unseen    int
	state     LoadState
	loadErr   error
	connected bool
	lastSync  time.Time

	// last known updated_at of orders removed by a delete delta
	tombstones map[string]time.Time

	envelopes chan realtime.Envelope
	conn      chan realtime.ConnState
	retry     chan struct{}
	done      chan struct{}
}

func NewBoard(restaurantID string, source OrderSource, observer Observer, pollInterval time.Duration, logger *slog.Logger) *Board {
	return &Board{
		restaurantID: restaurantID,
		source:       source,
		observer:     observer,
		pollInterval: pollInterval,
		logger:       logger,
		now:          time.Now,
		entries:      make(map[string]*entry),
		seen:         make(map[string]struct{}),
		tombstones:   make(map[string]time.Time),
		state:        StateLoading,
		envelopes:    make(chan realtime.Envelope, 256),
		conn:         make(chan realtime.ConnState, 8),
		retry:        make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Run does the initial fetch and then reconciles until ctx is done.
func (b *Board) Run(ctx context.Context) error {
	defer close(b.done)

	b.resync(ctx, "initial")

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-b.envelopes:
			b.apply(env)
		case state := <-b.conn:
			b.onConnState(ctx, state)
		case <-ticker.C:
			// Polling is the backstop for a dead feed only
			if !b.isConnected() && b.State() == StateReady {
				b.resync(ctx, "poll")
			}
		case <-b.retry:
			b.resync(ctx, "retry")
		}
	}
}

// HandleEnvelope queues an order change from the feed.
func (b *Board) HandleEnvelope(env realtime.Envelope) {
	if env.Channel != realtime.ChannelOrders {
		return
	}
	select {
	case b.envelopes <- env:
	case <-b.done:
	}
}

// HandleConnState queues a feed connection change.
func (b *Board) HandleConnState(state realtime.ConnState) {
	select {
	case b.conn <- state:
	case <-b.done:
	}
}

// Retry requests a new full fetch after the initial one failed.
func (b *Board) Retry() {
	select {
	case b.retry <- struct{}{}:
	default:
	}
}

// Ack resets the unseen-new-orders counter.
func (b *Board) Ack() {
	b.mu.Lock()
	b.unseen = 0
	b.mu.Unlock()
}

func (b *Board) State() LoadState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Board) Unseen() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.unseen
}

func (b *Board) isConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// Snapshot returns copies of the orders as staff see them, newest first.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := Snapshot{
		State:     b.state,
		Connected: b.connected,
		Unseen:    b.unseen,
		Orders:    make([]*orders.Order, 0, len(b.entries)),
	}
	if b.loadErr != nil {
		snap.Error = b.loadErr.Error()
	}
	if !b.lastSync.IsZero() {
		snap.LastSync = lo.ToPtr(b.lastSync)
	}
	for _, e := range b.entries {
		snap.Orders = append(snap.Orders, e.view.Clone())
	}
	sortNewestFirst(snap.Orders)
	return snap
}

// Get returns a copy of one order as staff see it.
func (b *Board) Get(id string) (*orders.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[id]
	if !ok {
		return nil, false
	}
	return e.view.Clone(), true
}

// ApplyLocal patches the displayed order and returns the prior values of the
// patched fields, which undo the patch.
func (b *Board) ApplyLocal(id string, patch orders.Patch) (orders.Patch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	if !ok {
		return orders.Patch{}, errors.Wrapf(ErrOrderNotFound, "order %s", id)
	}
	return patch.Apply(e.view), nil
}

// RevertLocal undoes ApplyLocal. Fields the server has changed since are left alone.
func (b *Board) RevertLocal(id string, applied, prior orders.Patch) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	if !ok || !holds(e.view, applied) {
		return false
	}
	prior.Apply(e.view)
	return true
}

// holds reports whether every field set in p still has p's value on o.
func holds(o *orders.Order, p orders.Patch) bool {
	if p.Status != nil && o.Status != *p.Status {
		return false
	}
	if p.PaymentStatus != nil && o.PaymentStatus != *p.PaymentStatus {
		return false
	}
	if p.PaymentMethod != nil && o.PaymentMethod != *p.PaymentMethod {
		return false
	}
	if p.UpdatedAt != nil && !o.UpdatedAt.Equal(*p.UpdatedAt) {
		return false
	}
	return true
}

type change struct {
	action realtime.Action
	next   *orders.Order
	prev   *orders.Order
}

func (b *Board) onConnState(ctx context.Context, state realtime.ConnState) {
	b.mu.Lock()
	b.connected = state == realtime.StateConnected
	b.mu.Unlock()

	if state != realtime.StateConnected {
		b.logger.Warn("Order feed lost, falling back to polling", "interval", b.pollInterval)
		return
	}

	// Deltas queued before the reconnect are superseded by the full fetch
	dropped := 0
	for drained := false; !drained; {
		select {
		case <-b.envelopes:
			dropped++
		default:
			drained = true
		}
	}
	if dropped > 0 {
		b.logger.Debug("Dropped buffered order deltas before resync", "count", dropped)
	}

	if b.State() == StateReady {
		b.resync(ctx, "reconnect")
	}
}

// resync replaces the board with a full fetch. The first successful fetch is
// the baseline and reports nothing; later ones report their differences.
func (b *Board) resync(ctx context.Context, trigger string) {
	list, err := b.source.ListOrders(ctx)
	if err != nil {
		metrics.BoardResyncs.WithLabelValues(trigger, "error").Inc()

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.state != StateReady {
			b.state = StateFailed
			b.loadErr = err
			b.logger.Error("Failed to load orders", "trigger", trigger, "error", err)
			return
		}
		b.logger.Warn("Background order refresh failed, keeping current board", "trigger", trigger, "error", err)
		return
	}
	metrics.BoardResyncs.WithLabelValues(trigger, "ok").Inc()

	b.mu.Lock()
	baseline := b.state != StateReady
	fresh := make(map[string]*orders.Order, len(list))
	for _, o := range list {
		if o == nil || o.RestaurantID != "" && o.RestaurantID != b.restaurantID {
			continue
		}
		fresh[o.ID] = o
	}

	var changes []change
	for id, o := range fresh {
		e, ok := b.entries[id]
		switch {
		case !ok:
			b.entries[id] = newEntry(o)
			if baseline {
				b.seen[id] = struct{}{}
				continue
			}
			b.markSeenLocked(id)
			changes = append(changes, change{action: realtime.ActionInsert, next: o.Clone()})
		case !sameOrder(e.confirmed, o):
			prev := e.confirmed
			b.entries[id] = newEntry(o)
			if !baseline {
				changes = append(changes, change{action: realtime.ActionUpdate, next: o.Clone(), prev: prev})
			}
		default:
			// Unchanged on the server: drop any optimistic leftovers
			e.view = o.Clone()
		}
	}
	for id, e := range b.entries {
		if _, ok := fresh[id]; ok {
			continue
		}
		delete(b.entries, id)
		if !baseline {
			changes = append(changes, change{action: realtime.ActionDelete, prev: e.confirmed})
		}
	}

	b.tombstones = make(map[string]time.Time)
	b.state = StateReady
	b.loadErr = nil
	b.lastSync = b.now()
	size := len(b.entries)
	b.mu.Unlock()

	metrics.BoardOrders.Set(float64(size))
	b.logger.Debug("Board resynced", "trigger", trigger, "orders", size, "changes", len(changes))
	b.notify(changes)
}

// apply reconciles one feed delta. Every id appears on the board at most once.
func (b *Board) apply(env realtime.Envelope) {
	if env.RestaurantID != b.restaurantID {
		return
	}

	var o orders.Order
	if err := json.Unmarshal(env.Record, &o); err != nil || o.ID == "" {
		b.logger.Warn("Skipping undecodable order delta", "action", env.Action, "error", err)
		return
	}

	b.mu.Lock()
	if b.state != StateReady {
		b.mu.Unlock()
		return
	}

	var changes []change
	e, exists := b.entries[o.ID]
	switch {
	case env.Action == realtime.ActionDelete:
		deletedAt := o.UpdatedAt
		if exists {
			if e.confirmed.UpdatedAt.After(deletedAt) {
				deletedAt = e.confirmed.UpdatedAt
			}
			delete(b.entries, o.ID)
			changes = append(changes, change{action: realtime.ActionDelete, prev: e.confirmed})
		}
		if tomb, ok := b.tombstones[o.ID]; !ok || deletedAt.After(tomb) {
			b.tombstones[o.ID] = deletedAt
		}
	case !exists && b.buriedLocked(&o):
		b.logger.Debug("Skipping delta for deleted order", "order_id", o.ID)
	case !exists:
		// An update for an order we never saw counts as its arrival
		b.entries[o.ID] = newEntry(&o)
		b.markSeenLocked(o.ID)
		changes = append(changes, change{action: realtime.ActionInsert, next: o.Clone()})
	case o.UpdatedAt.Before(e.confirmed.UpdatedAt):
		b.logger.Debug("Skipping stale order delta", "order_id", o.ID)
	case !sameOrder(e.confirmed, &o):
		prev := e.confirmed
		b.entries[o.ID] = newEntry(&o)
		changes = append(changes, change{action: realtime.ActionUpdate, next: o.Clone(), prev: prev})
	default:
		e.view = o.Clone()
	}
	size := len(b.entries)
	b.mu.Unlock()

	metrics.BoardOrders.Set(float64(size))
	b.notify(changes)
}

// buriedLocked reports whether o was deleted at or after its updated_at.
// A newer write brings the order back.
func (b *Board) buriedLocked(o *orders.Order) bool {
	tomb, ok := b.tombstones[o.ID]
	if !ok {
		return false
	}
	if o.UpdatedAt.After(tomb) {
		delete(b.tombstones, o.ID)
		return false
	}
	return true
}

// markSeenLocked counts an order id as new the first time the board sees it.
func (b *Board) markSeenLocked(id string) {
	if _, ok := b.seen[id]; ok {
		return
	}
	b.seen[id] = struct{}{}
	b.unseen++
}

func (b *Board) notify(changes []change) {
	if b.observer == nil {
		return
	}
	for _, c := range changes {
		switch c.action {
		case realtime.ActionInsert:
			b.observer.OnInsert(c.next)
		case realtime.ActionUpdate:
			b.observer.OnUpdate(c.next, c.prev)
		case realtime.ActionDelete:
			b.observer.OnDelete(c.prev)
		}
	}
}

func newEntry(o *orders.Order) *entry {
	return &entry{confirmed: o.Clone(), view: o.Clone()}
}

func sameOrder(a, b *orders.Order) bool {
	return reflect.DeepEqual(normalized(a), normalized(b))
}

// normalized strips what does not affect equality: the replay flag and time zone.
func normalized(o *orders.Order) orders.Order {
	c := *o.Clone()
	c.Replayed = false
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c
}

func sortNewestFirst(list []*orders.Order) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
