package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinedesk/internal/stories/orders"
)

type fakeWriter struct {
	release chan error
	entered chan string
	calls   int
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{release: make(chan error, 1), entered: make(chan string, 1)}
}

func (w *fakeWriter) wait(id string, o *orders.Order) (*orders.Order, error) {
	w.calls++
	w.entered <- id
	if err := <-w.release; err != nil {
		return nil, err
	}
	return o, nil
}

func (w *fakeWriter) AdvanceStatus(_ context.Context, id string, to orders.Status) (*orders.Order, error) {
	return w.wait(id, &orders.Order{ID: id, Status: to})
}

func (w *fakeWriter) ConfirmCashPayment(_ context.Context, id string) (*orders.Order, error) {
	return w.wait(id, &orders.Order{ID: id, PaymentStatus: orders.PaymentCompleted, PaymentMethod: orders.PaymentMethodCash})
}

func boardWith(t *testing.T, list ...*orders.Order) *Board {
	t.Helper()
	src := &fakeSource{}
	src.set(list, nil)
	b := newTestBoard(src, &recObserver{})
	b.resync(context.Background(), "initial")
	require.Equal(t, StateReady, b.State())
	return b
}

func TestActionsOptimisticSuccess(t *testing.T) {
	b := boardWith(t, order("o1", 0, orders.StatusPending, orders.PaymentCompleted))
	w := newFakeWriter()
	a := NewActions(b, w, discard())

	done := make(chan error, 1)
	go func() {
		_, err := a.Advance(context.Background(), "o1")
		done <- err
	}()

	<-w.entered
	got, _ := b.Get("o1")
	assert.Equal(t, orders.StatusInProgress, got.Status, "board shows the change before the server answers")
	assert.True(t, a.InFlight("o1"))

	w.release <- nil
	require.NoError(t, <-done)
	got, _ = b.Get("o1")
	assert.Equal(t, orders.StatusInProgress, got.Status)
	assert.False(t, a.InFlight("o1"))
}

func TestActionsRevertOnFailure(t *testing.T) {
	b := boardWith(t, order("o1", 0, orders.StatusInProgress, orders.PaymentCompleted))
	w := newFakeWriter()
	w.release <- errors.New("503 service unavailable")
	a := NewActions(b, w, discard())

	_, err := a.SetStatus(context.Background(), "o1", orders.StatusCompleted)
	require.Error(t, err)
	<-w.entered

	got, _ := b.Get("o1")
	assert.Equal(t, orders.StatusInProgress, got.Status)
	assert.Len(t, b.Snapshot().Orders, 1)
}

func TestActionsRejectConcurrentWrite(t *testing.T) {
	b := boardWith(t, order("o1", 0, orders.StatusPending, orders.PaymentCompleted))
	w := newFakeWriter()
	a := NewActions(b, w, discard())

	done := make(chan error, 1)
	go func() {
		_, err := a.Advance(context.Background(), "o1")
		done <- err
	}()
	<-w.entered

	_, err := a.SetStatus(context.Background(), "o1", orders.StatusCancelled)
	assert.ErrorIs(t, err, ErrUpdateInFlight)

	w.release <- nil
	require.NoError(t, <-done)
	assert.Equal(t, 1, w.calls)
}

func TestActionsGating(t *testing.T) {
	b := boardWith(t,
		order("unpaid", 0, orders.StatusPending, orders.PaymentPending),
		order("served", 1, orders.StatusServed, orders.PaymentCompleted),
	)
	w := newFakeWriter()
	a := NewActions(b, w, discard())

	_, ok := a.Available("unpaid")
	assert.False(t, ok)

	_, err := a.Advance(context.Background(), "unpaid")
	assert.ErrorIs(t, err, orders.ErrPaymentNotCompleted)

	_, err = a.SetStatus(context.Background(), "unpaid", orders.StatusInProgress)
	assert.ErrorIs(t, err, orders.ErrPaymentNotCompleted)

	_, err = a.Advance(context.Background(), "served")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	_, err = a.Advance(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	assert.Zero(t, w.calls)
	got, _ := b.Get("unpaid")
	assert.Equal(t, orders.StatusPending, got.Status)
}

func TestActionsConfirmCashReverts(t *testing.T) {
	o := order("o1", 0, orders.StatusPending, orders.PaymentPending)
	b := boardWith(t, o)
	w := newFakeWriter()
	w.release <- errors.New("conflict")
	a := NewActions(b, w, discard())

	_, err := a.ConfirmCash(context.Background(), "o1")
	require.Error(t, err)
	<-w.entered

	got, _ := b.Get("o1")
	assert.Equal(t, orders.PaymentPending, got.PaymentStatus)
	assert.Equal(t, orders.PaymentMethodOnline, got.PaymentMethod)
}

func TestActionsConfirmCashThenAdvance(t *testing.T) {
	b := boardWith(t, order("o1", 0, orders.StatusPending, orders.PaymentFailed))
	w := newFakeWriter()
	a := NewActions(b, w, discard())

	w.release <- nil
	_, err := a.ConfirmCash(context.Background(), "o1")
	require.NoError(t, err)
	<-w.entered

	next, ok := a.Available("o1")
	require.True(t, ok)
	assert.Equal(t, "Start Preparing", next.Label)

	select {
	case <-time.After(time.Second):
		t.Fatal("writer not released")
	case w.release <- nil:
	}
	_, err = a.Advance(context.Background(), "o1")
	require.NoError(t, err)
}

func TestActionsConfirmCashOnPaidOnlineOrder(t *testing.T) {
	b := boardWith(t, order("o1", 0, orders.StatusPending, orders.PaymentCompleted))
	w := newFakeWriter()
	a := NewActions(b, w, discard())

	_, err := a.ConfirmCash(context.Background(), "o1")
	assert.ErrorIs(t, err, orders.ErrInvalidPaymentChange)
	assert.Zero(t, w.calls)

	got, _ := b.Get("o1")
	assert.Equal(t, orders.PaymentCompleted, got.PaymentStatus)
	assert.Equal(t, orders.PaymentMethodOnline, got.PaymentMethod)
	assert.False(t, a.InFlight("o1"))
}
