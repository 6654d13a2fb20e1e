package waitercalls

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrNotFound          = errors.New("waiter call not found")
	ErrInvalidTransition = errors.New("invalid waiter call transition")
	ErrInvalidCall       = errors.New("invalid waiter call")
)

const maxMessageLength = 280

type Service struct {
	storage   Storage
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(storage Storage, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		storage:   storage,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreateCall(ctx context.Context, req CreateRequest) (*Call, error) {
	table := strings.TrimSpace(req.TableNumber)
	if table == "" {
		return nil, errors.Wrap(ErrInvalidCall, "table number is required")
	}
	message := strings.TrimSpace(req.Message)
	if len(message) > maxMessageLength {
		message = message[:maxMessageLength]
	}

	now := s.now()
	call, err := s.storage.CreateWaiterCall(ctx, Call{
		ID:           uuid.NewString(),
		RestaurantID: req.RestaurantID,
		CustomerName: strings.TrimSpace(req.CustomerName),
		TableNumber:  table,
		Message:      message,
		Status:       StatusOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create waiter call")
	}

	s.logger.Info("Waiter called", "call_id", call.ID, "restaurant_id", call.RestaurantID, "table", call.TableNumber)
	s.publisher.PublishWaiterCall(ctx, "insert", call)
	return call, nil
}

// ListActive returns calls that are not completed yet.
func (s *Service) ListActive(ctx context.Context, restaurantID string) ([]*Call, error) {
	calls, err := s.storage.ListWaiterCalls(ctx, ListCriteria{
		RestaurantID: &restaurantID,
		Statuses:     []Status{StatusOpen, StatusAcknowledged},
	})
	if err != nil {
		return nil, errors.Wrap(err, "list waiter calls")
	}
	return calls, nil
}

func (s *Service) Acknowledge(ctx context.Context, restaurantID, id string) (*Call, error) {
	return s.move(ctx, restaurantID, id, StatusAcknowledged)
}

func (s *Service) Complete(ctx context.Context, restaurantID, id string) (*Call, error) {
	return s.move(ctx, restaurantID, id, StatusCompleted)
}

func (s *Service) move(ctx context.Context, restaurantID, id string, to Status) (*Call, error) {
	criteria := GetCriteria{RestaurantID: restaurantID, ID: id}
	call, err := s.storage.GetWaiterCall(ctx, criteria)
	if err != nil {
		return nil, errors.Wrap(err, "get waiter call")
	}
	if call == nil {
		return nil, ErrNotFound
	}
	if call.Status == to {
		return call, nil
	}
	if !canMove(call.Status, to) {
		return nil, errors.Wrapf(ErrInvalidTransition, "%s -> %s", call.Status, to)
	}

	updated, err := s.storage.UpdateWaiterCallStatus(ctx, criteria, call.Status, to)
	if err != nil {
		return nil, errors.Wrap(err, "update waiter call")
	}

	s.logger.Info("Waiter call status changed", "call_id", id, "from", call.Status, "to", to)
	s.publisher.PublishWaiterCall(ctx, "update", updated)
	return updated, nil
}

// ExpireStale completes calls that stayed unattended for longer than ttl.
func (s *Service) ExpireStale(ctx context.Context, ttl time.Duration) (int, error) {
	before := s.now().Add(-ttl)
	calls, err := s.storage.ListWaiterCalls(ctx, ListCriteria{
		Statuses:      []Status{StatusOpen, StatusAcknowledged},
		CreatedBefore: &before,
	})
	if err != nil {
		return 0, errors.Wrap(err, "list stale waiter calls")
	}

	expired := 0
	for _, call := range calls {
		if _, err := s.Complete(ctx, call.RestaurantID, call.ID); err != nil {
			s.logger.Error("Failed to expire waiter call", "call_id", call.ID, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}

func canMove(from, to Status) bool {
	switch from {
	case StatusOpen:
		return to == StatusAcknowledged || to == StatusCompleted
	case StatusAcknowledged:
		return to == StatusCompleted
	}
	return false
}
