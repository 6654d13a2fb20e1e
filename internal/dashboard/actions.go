package dashboard

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"dinedesk/internal/stories/orders"
)

var ErrUpdateInFlight = errors.New("an update for this order is already in flight")

// OrderWriter sends staff changes to the server.
type OrderWriter interface {
	AdvanceStatus(ctx context.Context, orderID string, to orders.Status) (*orders.Order, error)
	ConfirmCashPayment(ctx context.Context, orderID string) (*orders.Order, error)
}

// Actions drives staff status changes: the board is patched first, the server
// write follows, and a failed write restores the previous field values.
type Actions struct {
	board    *Board
	writer   OrderWriter
	logger   *slog.Logger
	inFlight sync.Map
}

func NewActions(board *Board, writer OrderWriter, logger *slog.Logger) *Actions {
	return &Actions{board: board, writer: writer, logger: logger}
}

// Available returns the forward step staff may take on the order, if any.
func (a *Actions) Available(orderID string) (orders.Action, bool) {
	o, ok := a.board.Get(orderID)
	if !ok {
		return orders.Action{}, false
	}
	return orders.NextAction(o)
}

// Advance moves the order one step forward.
func (a *Actions) Advance(ctx context.Context, orderID string) (*orders.Order, error) {
	o, ok := a.board.Get(orderID)
	if !ok {
		return nil, errors.Wrapf(ErrOrderNotFound, "order %s", orderID)
	}
	next, ok := orders.NextAction(o)
	if !ok {
		if o.Status == orders.StatusPending {
			return nil, errors.Wrapf(orders.ErrPaymentNotCompleted, "payment status is %s", o.PaymentStatus)
		}
		return nil, errors.Wrapf(orders.ErrInvalidTransition, "%s has no next status", o.Status)
	}
	return a.SetStatus(ctx, orderID, next.To)
}

// SetStatus writes a status change optimistically.
func (a *Actions) SetStatus(ctx context.Context, orderID string, to orders.Status) (*orders.Order, error) {
	return a.optimistic(ctx, orderID,
		func(o *orders.Order) error { return orders.CanTransition(o, to) },
		orders.Patch{Status: lo.ToPtr(to)},
		func(ctx context.Context) (*orders.Order, error) { return a.writer.AdvanceStatus(ctx, orderID, to) },
	)
}

// ConfirmCash records that staff collected cash for the order.
func (a *Actions) ConfirmCash(ctx context.Context, orderID string) (*orders.Order, error) {
	return a.optimistic(ctx, orderID,
		func(o *orders.Order) error {
			return orders.CanSettle(o, orders.PaymentCompleted, lo.ToPtr(orders.PaymentMethodCash))
		},
		orders.Patch{
			PaymentStatus: lo.ToPtr(orders.PaymentCompleted),
			PaymentMethod: lo.ToPtr(orders.PaymentMethodCash),
		},
		func(ctx context.Context) (*orders.Order, error) { return a.writer.ConfirmCashPayment(ctx, orderID) },
	)
}

func (a *Actions) optimistic(
	ctx context.Context,
	orderID string,
	check func(o *orders.Order) error,
	patch orders.Patch,
	write func(ctx context.Context) (*orders.Order, error),
) (*orders.Order, error) {
	// One write per order at a time; a second click is rejected, not queued
	if _, busy := a.inFlight.LoadOrStore(orderID, struct{}{}); busy {
		return nil, errors.Wrapf(ErrUpdateInFlight, "order %s", orderID)
	}
	defer a.inFlight.Delete(orderID)

	current, ok := a.board.Get(orderID)
	if !ok {
		return nil, errors.Wrapf(ErrOrderNotFound, "order %s", orderID)
	}
	if err := check(current); err != nil {
		return nil, err
	}

	prior, err := a.board.ApplyLocal(orderID, patch)
	if err != nil {
		return nil, err
	}

	updated, err := write(ctx)
	if err != nil {
		reverted := a.board.RevertLocal(orderID, patch, prior)
		a.logger.Warn("Order update failed, local change reverted",
			"order_id", orderID,
			"reverted", reverted,
			"error", err)
		return nil, errors.Wrap(err, "write order")
	}
	return updated, nil
}

// InFlight reports whether a write for the order is pending.
func (a *Actions) InFlight(orderID string) bool {
	_, busy := a.inFlight.Load(orderID)
	return busy
}
