package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinedesk/internal/infra/realtime"
	"dinedesk/internal/stories/orders"
)

var t0 = time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func order(id string, minute int, status orders.Status, pay orders.PaymentStatus) *orders.Order {
	at := t0.Add(time.Duration(minute) * time.Minute)
	return &orders.Order{
		ID:            id,
		RestaurantID:  "r1",
		UniqueOrderID: "C" + id,
		Status:        status,
		PaymentStatus: pay,
		PaymentMethod: orders.PaymentMethodOnline,
		Items:         []orders.Item{{DishID: "d1", Name: "Dal", UnitPrice: 100, Quantity: 1, LineTotal: 100}},
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

type fakeSource struct {
	mu    sync.Mutex
	list  []*orders.Order
	err   error
	calls atomic.Int32
}

func (f *fakeSource) set(list []*orders.Order, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.list, f.err = list, err
}

func (f *fakeSource) ListOrders(context.Context) ([]*orders.Order, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*orders.Order, 0, len(f.list))
	for _, o := range f.list {
		out = append(out, o.Clone())
	}
	return out, nil
}

type recObserver struct {
	mu     sync.Mutex
	events []string
	prev   []*orders.Order
}

func (r *recObserver) OnInsert(o *orders.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "insert "+o.ID)
}

func (r *recObserver) OnUpdate(next, prev *orders.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("update %s %s->%s", next.ID, prev.Status, next.Status))
	r.prev = append(r.prev, prev)
}

func (r *recObserver) OnDelete(o *orders.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "delete "+o.ID)
}

func (r *recObserver) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func envelope(action realtime.Action, o *orders.Order) realtime.Envelope {
	data, _ := json.Marshal(o)
	return realtime.Envelope{
		Channel:      realtime.ChannelOrders,
		Action:       action,
		RestaurantID: o.RestaurantID,
		Record:       data,
		At:           o.UpdatedAt,
	}
}

func newTestBoard(src *fakeSource, obs *recObserver) *Board {
	return NewBoard("r1", src, obs, time.Hour, discard())
}

func ids(list []*orders.Order) []string {
	return lo.Map(list, func(o *orders.Order, _ int) string { return o.ID })
}

func TestBoardInitialFetchIsBaseline(t *testing.T) {
	src := &fakeSource{}
	src.set([]*orders.Order{
		order("o1", 0, orders.StatusPending, orders.PaymentCompleted),
		order("o3", 10, orders.StatusPending, orders.PaymentPending),
		order("o2", 5, orders.StatusInProgress, orders.PaymentCompleted),
	}, nil)
	obs := &recObserver{}
	b := newTestBoard(src, obs)

	b.resync(context.Background(), "initial")

	snap := b.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, []string{"o3", "o2", "o1"}, ids(snap.Orders))
	assert.Zero(t, snap.Unseen)
	assert.Empty(t, obs.got())
	require.NotNil(t, snap.LastSync)
}

func TestBoardInitialFailureIsTerminal(t *testing.T) {
	src := &fakeSource{}
	src.set(nil, errors.New("connection refused"))
	obs := &recObserver{}
	b := newTestBoard(src, obs)

	b.resync(context.Background(), "initial")

	snap := b.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Contains(t, snap.Error, "connection refused")

	// Deltas are not applied without a baseline
	b.apply(envelope(realtime.ActionInsert, order("o9", 0, orders.StatusPending, orders.PaymentCompleted)))
	assert.Empty(t, b.Snapshot().Orders)

	// A reconnect does not retry on its own
	b.onConnState(context.Background(), realtime.StateConnected)
	assert.Equal(t, int32(1), src.calls.Load())

	src.set([]*orders.Order{order("o1", 0, orders.StatusPending, orders.PaymentCompleted)}, nil)
	b.resync(context.Background(), "retry")

	snap = b.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Empty(t, snap.Error)
	assert.Equal(t, []string{"o1"}, ids(snap.Orders))
	assert.Zero(t, snap.Unseen)
	assert.Empty(t, obs.got())
}

func TestBoardInsertCountsEachOrderOnce(t *testing.T) {
	src := &fakeSource{}
	src.set([]*orders.Order{order("o1", 0, orders.StatusPending, orders.PaymentCompleted)}, nil)
	obs := &recObserver{}
	b := newTestBoard(src, obs)
	b.resync(context.Background(), "initial")

	o2 := order("o2", 5, orders.StatusPending, orders.PaymentCompleted)
	b.apply(envelope(realtime.ActionInsert, o2))
	b.apply(envelope(realtime.ActionInsert, o2))

	snap := b.Snapshot()
	assert.Equal(t, []string{"o2", "o1"}, ids(snap.Orders))
	assert.Equal(t, 1, snap.Unseen)
	assert.Equal(t, []string{"insert o2"}, obs.got())

	b.Ack()
	assert.Zero(t, b.Unseen())

	// Seeing o2 again after it was acknowledged does not count it twice
	b.apply(envelope(realtime.ActionDelete, o2))
	back := o2.Clone()
	back.UpdatedAt = o2.UpdatedAt.Add(time.Minute)
	b.apply(envelope(realtime.ActionInsert, back))
	assert.Zero(t, b.Unseen())

	b.apply(envelope(realtime.ActionInsert, order("o3", 6, orders.StatusPending, orders.PaymentPending)))
	assert.Equal(t, 1, b.Unseen())
}

func TestBoardUpdateReportsPrevious(t *testing.T) {
	src := &fakeSource{}
	o1 := order("o1", 0, orders.StatusPending, orders.PaymentCompleted)
	src.set([]*orders.Order{o1}, nil)
	obs := &recObserver{}
	b := newTestBoard(src, obs)
	b.resync(context.Background(), "initial")

	next := o1.Clone()
	next.Status = orders.StatusInProgress
	next.UpdatedAt = o1.UpdatedAt.Add(time.Minute)
	b.apply(envelope(realtime.ActionUpdate, next))

	assert.Equal(t, []string{"update o1 pending->in_progress"}, obs.got())
	got, ok := b.Get("o1")
	require.True(t, ok)
	assert.Equal(t, orders.StatusInProgress, got.Status)
	assert.Len(t, b.Snapshot().Orders, 1)

	// Older delivery of the same record is ignored
	stale := o1.Clone()
	stale.PaymentStatus = orders.PaymentVerifying
	b.apply(envelope(realtime.ActionUpdate, stale))
	got, _ = b.Get("o1")
	assert.Equal(t, orders.StatusInProgress, got.Status)
	assert.Equal(t, orders.PaymentCompleted, got.PaymentStatus)
	assert.Len(t, obs.got(), 1)
}

func TestBoardDeleteAndTenantFilter(t *testing.T) {
	src := &fakeSource{}
	o1 := order("o1", 0, orders.StatusPending, orders.PaymentCompleted)
	src.set([]*orders.Order{o1, order("o2", 1, orders.StatusPending, orders.PaymentCompleted)}, nil)
	obs := &recObserver{}
	b := newTestBoard(src, obs)
	b.resync(context.Background(), "initial")

	foreign := order("x1", 2, orders.StatusPending, orders.PaymentCompleted)
	foreign.RestaurantID = "r2"
	b.apply(envelope(realtime.ActionInsert, foreign))

	b.apply(envelope(realtime.ActionDelete, o1))
	b.apply(envelope(realtime.ActionDelete, o1))

	assert.Equal(t, []string{"o2"}, ids(b.Snapshot().Orders))
	assert.Equal(t, []string{"delete o1"}, obs.got())
}

func TestBoardLateUpdateAfterDelete(t *testing.T) {
	src := &fakeSource{}
	o1 := order("o1", 0, orders.StatusPending, orders.PaymentCompleted)
	src.set([]*orders.Order{o1}, nil)
	obs := &recObserver{}
	b := newTestBoard(src, obs)
	b.resync(context.Background(), "initial")

	b.apply(envelope(realtime.ActionDelete, o1))

	late := o1.Clone()
	late.Status = orders.StatusInProgress
	b.apply(envelope(realtime.ActionUpdate, late))
	older := o1.Clone()
	older.UpdatedAt = o1.UpdatedAt.Add(-time.Minute)
	b.apply(envelope(realtime.ActionInsert, older))

	assert.Empty(t, b.Snapshot().Orders)
	assert.Equal(t, []string{"delete o1"}, obs.got())
	assert.Zero(t, b.Unseen())

	newer := o1.Clone()
	newer.UpdatedAt = o1.UpdatedAt.Add(time.Minute)
	b.apply(envelope(realtime.ActionUpdate, newer))

	assert.Equal(t, []string{"o1"}, ids(b.Snapshot().Orders))
	assert.Equal(t, []string{"delete o1", "insert o1"}, obs.got())
}

func TestBoardResyncClearsTombstones(t *testing.T) {
	src := &fakeSource{}
	o1 := order("o1", 0, orders.StatusPending, orders.PaymentCompleted)
	src.set([]*orders.Order{o1}, nil)
	b := newTestBoard(src, &recObserver{})
	b.resync(context.Background(), "initial")

	b.apply(envelope(realtime.ActionDelete, o1))
	b.apply(envelope(realtime.ActionUpdate, o1))
	require.Empty(t, b.Snapshot().Orders)

	src.set(nil, nil)
	b.resync(context.Background(), "reconnect")

	// After a full fetch the board trusts deltas again
	b.apply(envelope(realtime.ActionUpdate, o1))
	assert.Equal(t, []string{"o1"}, ids(b.Snapshot().Orders))
}

func TestBoardResyncReportsDifferences(t *testing.T) {
	src := &fakeSource{}
	o1 := order("o1", 0, orders.StatusPending, orders.PaymentPending)
	o2 := order("o2", 1, orders.StatusPending, orders.PaymentCompleted)
	src.set([]*orders.Order{o1, o2}, nil)
	obs := &recObserver{}
	b := newTestBoard(src, obs)
	b.resync(context.Background(), "initial")

	paid := o1.Clone()
	paid.PaymentStatus = orders.PaymentCompleted
	paid.UpdatedAt = o1.UpdatedAt.Add(time.Minute)
	src.set([]*orders.Order{paid, order("o4", 9, orders.StatusPending, orders.PaymentCompleted)}, nil)

	b.resync(context.Background(), "reconnect")

	assert.ElementsMatch(t, []string{"update o1 pending->pending", "delete o2", "insert o4"}, obs.got())
	snap := b.Snapshot()
	assert.Equal(t, []string{"o4", "o1"}, ids(snap.Orders))
	assert.Equal(t, 1, snap.Unseen)
	require.Len(t, obs.prev, 1)
	assert.Equal(t, orders.PaymentPending, obs.prev[0].PaymentStatus)

	// Resyncing the same data is quiet
	b.resync(context.Background(), "reconnect")
	assert.Len(t, obs.got(), 3)
	assert.Equal(t, 1, b.Unseen())
}

func TestBoardBackgroundRefreshFailureKeepsBoard(t *testing.T) {
	src := &fakeSource{}
	src.set([]*orders.Order{order("o1", 0, orders.StatusPending, orders.PaymentCompleted)}, nil)
	b := newTestBoard(src, &recObserver{})
	b.resync(context.Background(), "initial")

	src.set(nil, errors.New("timeout"))
	b.resync(context.Background(), "poll")

	snap := b.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Empty(t, snap.Error)
	assert.Equal(t, []string{"o1"}, ids(snap.Orders))
}

func TestBoardApplyLocalAndRevert(t *testing.T) {
	src := &fakeSource{}
	o1 := order("o1", 0, orders.StatusPending, orders.PaymentCompleted)
	src.set([]*orders.Order{o1}, nil)
	obs := &recObserver{}
	b := newTestBoard(src, obs)
	b.resync(context.Background(), "initial")

	patch := orders.Patch{Status: lo.ToPtr(orders.StatusInProgress)}
	prior, err := b.ApplyLocal("o1", patch)
	require.NoError(t, err)
	require.NotNil(t, prior.Status)
	assert.Equal(t, orders.StatusPending, *prior.Status)

	got, _ := b.Get("o1")
	assert.Equal(t, orders.StatusInProgress, got.Status)
	assert.Empty(t, obs.got(), "local patches are not reported")

	assert.True(t, b.RevertLocal("o1", patch, prior))
	got, _ = b.Get("o1")
	assert.Equal(t, orders.StatusPending, got.Status)

	_, err = b.ApplyLocal("missing", patch)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestBoardRevertKeepsServerChange(t *testing.T) {
	src := &fakeSource{}
	o1 := order("o1", 0, orders.StatusPending, orders.PaymentCompleted)
	src.set([]*orders.Order{o1}, nil)
	b := newTestBoard(src, &recObserver{})
	b.resync(context.Background(), "initial")

	patch := orders.Patch{Status: lo.ToPtr(orders.StatusInProgress)}
	prior, err := b.ApplyLocal("o1", patch)
	require.NoError(t, err)

	cancelled := o1.Clone()
	cancelled.Status = orders.StatusCancelled
	cancelled.UpdatedAt = o1.UpdatedAt.Add(time.Minute)
	b.apply(envelope(realtime.ActionUpdate, cancelled))

	assert.False(t, b.RevertLocal("o1", patch, prior))
	got, _ := b.Get("o1")
	assert.Equal(t, orders.StatusCancelled, got.Status)
}

func TestBoardRunPollsOnlyWhileDisconnected(t *testing.T) {
	src := &fakeSource{}
	src.set([]*orders.Order{order("o1", 0, orders.StatusPending, orders.PaymentCompleted)}, nil)
	obs := &recObserver{}
	b := NewBoard("r1", src, obs, 10*time.Millisecond, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(runDone)
	}()

	require.Eventually(t, func() bool { return b.State() == StateReady }, time.Second, time.Millisecond)

	b.HandleConnState(realtime.StateDisconnected)
	require.Eventually(t, func() bool { return src.calls.Load() >= 4 }, time.Second, time.Millisecond)

	src.set([]*orders.Order{
		order("o1", 0, orders.StatusPending, orders.PaymentCompleted),
		order("o2", 1, orders.StatusPending, orders.PaymentCompleted),
	}, nil)
	b.HandleConnState(realtime.StateConnected)
	require.Eventually(t, func() bool { return len(obs.got()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"insert o2"}, obs.got())

	// Connected: the ticker no longer fetches
	time.Sleep(20 * time.Millisecond)
	calls := src.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, src.calls.Load())

	b.HandleEnvelope(envelope(realtime.ActionInsert, order("o3", 2, orders.StatusPending, orders.PaymentCompleted)))
	require.Eventually(t, func() bool { return b.Unseen() == 2 }, time.Second, time.Millisecond)

	cancel()
	<-runDone
	// Handlers must not block once Run has returned
	b.HandleConnState(realtime.StateDisconnected)
	b.HandleEnvelope(envelope(realtime.ActionInsert, order("o4", 3, orders.StatusPending, orders.PaymentCompleted)))
}

func TestBoardRetry(t *testing.T) {
	src := &fakeSource{}
	src.set(nil, errors.New("boom"))
	b := NewBoard("r1", src, &recObserver{}, time.Hour, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.Run(ctx) }()

	require.Eventually(t, func() bool { return b.State() == StateFailed }, time.Second, time.Millisecond)

	src.set([]*orders.Order{order("o1", 0, orders.StatusPending, orders.PaymentCompleted)}, nil)
	b.Retry()
	require.Eventually(t, func() bool { return b.State() == StateReady }, time.Second, time.Millisecond)
	assert.Len(t, b.Snapshot().Orders, 1)
}
