package orders

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound             = errors.New("order not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrPaymentNotCompleted  = errors.New("payment is not completed")
	ErrInvalidPaymentChange = errors.New("invalid payment status change")
	ErrConflict             = errors.New("order was changed concurrently")
	ErrInvalidOrder         = errors.New("invalid order")

	ErrDuplicateCode           = errors.New("duplicate unique order id")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// Action is a staff-facing step of the order lifecycle.
type Action struct {
	From  Status
	To    Status
	Label string
}

var forward = map[Status]Status{
	StatusPending:    StatusInProgress,
	StatusInProgress: StatusCompleted,
	StatusCompleted:  StatusServed,
}

// IsTerminal reports whether no further status transition exists.
func (s Status) IsTerminal() bool {
	return s == StatusServed || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusServed, StatusCancelled:
		return true
	}
	return false
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentVerifying, PaymentCompleted, PaymentFailed, PaymentNotConfigured:
		return true
	}
	return false
}

// CanTransition checks a status change against the lifecycle. Staying at the
// current status is allowed so that repeated writes are idempotent.
func CanTransition(o *Order, to Status) error {
	from := o.Status
	if from == to {
		return nil
	}

	if to == StatusCancelled {
		if from != StatusPending {
			return errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
		}
		return nil
	}

	next, ok := forward[from]
	if !ok || next != to {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
	}

	if from == StatusPending && o.PaymentStatus != PaymentCompleted {
		return errors.Wrapf(ErrPaymentNotCompleted, "payment status is %s", o.PaymentStatus)
	}

	return nil
}

// NextAction returns the forward step offered to staff for the order, if any.
// Pending orders are only offered a step once their payment is completed.
func NextAction(o *Order) (Action, bool) {
	to, ok := forward[o.Status]
	if !ok {
		return Action{}, false
	}
	if o.Status == StatusPending && o.PaymentStatus != PaymentCompleted {
		return Action{}, false
	}
	return Action{From: o.Status, To: to, Label: actionLabel(o, to)}, true
}

func actionLabel(o *Order, to Status) string {
	switch to {
	case StatusInProgress:
		return "Start Preparing"
	case StatusCompleted:
		return "Mark Ready"
	case StatusServed:
		if o.IsOnline() {
			return "Mark Delivered"
		}
		return "Mark Served"
	}
	return string(to)
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:       {PaymentVerifying, PaymentCompleted, PaymentFailed},
	PaymentVerifying:     {PaymentCompleted, PaymentFailed},
	PaymentFailed:        {PaymentCompleted},
	PaymentNotConfigured: {PaymentCompleted},
}

// CanChangePayment checks a payment status change. Completed is final.
func CanChangePayment(from, to PaymentStatus) error {
	if from == to {
		return nil
	}
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidPaymentChange, from, to)
}

// CanSettle checks a payment change together with the method. A completed
// payment keeps the method it was settled with.
func CanSettle(o *Order, to PaymentStatus, method *PaymentMethod) error {
	if o.PaymentStatus == PaymentCompleted && method != nil && *method != o.PaymentMethod {
		return fmt.Errorf("%w: paid %s, cannot switch to %s", ErrInvalidPaymentChange, o.PaymentMethod, *method)
	}
	return CanChangePayment(o.PaymentStatus, to)
}
