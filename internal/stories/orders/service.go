package orders

import (
	"context"
	"crypto/rand"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dinedesk/internal/metrics"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxCodeTries = 5
)

// Service provides business logic for the order lifecycle
type Service struct {
	storage   Storage
	menu      MenuStorage
	publisher Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewService(storage Storage, menu MenuStorage, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		storage:   storage,
		menu:      menu,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("dinedesk/orders"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder prices the request against the menu and stores a new order.
// A repeated idempotency key returns the order created by the first request.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder",
		trace.WithAttributes(attribute.String("restaurant_id", req.RestaurantID)))
	defer span.End()

	if req.IdempotencyKey != nil {
		existing, err := s.storage.GetOrder(ctx, GetCriteria{RestaurantID: req.RestaurantID, IdempotencyKey: req.IdempotencyKey})
		if err != nil {
			return nil, errors.Wrap(err, "lookup idempotency key")
		}
		if existing != nil {
			return s.replayed(existing), nil
		}
	}

	order, err := s.buildOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	var created *Order
	for attempt := 0; attempt < maxCodeTries; attempt++ {
		order.ID = uuid.NewString()
		order.UniqueOrderID = newOrderCode()

		created, err = s.storage.CreateOrder(ctx, *order, req.IdempotencyKey)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			existing, getErr := s.storage.GetOrder(ctx, GetCriteria{RestaurantID: req.RestaurantID, IdempotencyKey: req.IdempotencyKey})
			if getErr != nil {
				return nil, errors.Wrap(getErr, "lookup idempotency key")
			}
			if existing == nil {
				return nil, errors.Wrap(err, "idempotent order vanished")
			}
			return s.replayed(existing), nil
		}
		if !errors.Is(err, ErrDuplicateCode) {
			s.logger.Error("Failed to create order", "error", err, "restaurant_id", req.RestaurantID)
			return nil, errors.Wrap(err, "create order")
		}
		s.logger.Warn("Order code collision, retrying", "restaurant_id", req.RestaurantID, "attempt", attempt+1)
	}
	if err != nil {
		return nil, errors.Wrap(err, "allocate order code")
	}

	metrics.OrdersCreated.WithLabelValues(string(created.PaymentMethod), "false").Inc()
	s.logger.Info("Order created",
		"order_id", created.ID,
		"unique_order_id", created.UniqueOrderID,
		"restaurant_id", created.RestaurantID,
		"payment_method", created.PaymentMethod,
		"total", created.TotalAmount,
	)

	s.publisher.PublishOrder(ctx, ChangeInsert, created)
	return created, nil
}

func (s *Service) replayed(o *Order) *Order {
	metrics.OrdersCreated.WithLabelValues(string(o.PaymentMethod), "true").Inc()
	s.logger.Info("Idempotency key replayed", "order_id", o.ID, "restaurant_id", o.RestaurantID)
	o.Replayed = true
	return o
}

func (s *Service) buildOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, errors.Wrap(ErrInvalidOrder, "order has no items")
	}
	if req.PaymentMethod != PaymentMethodCash && req.PaymentMethod != PaymentMethodOnline {
		return nil, errors.Wrapf(ErrInvalidOrder, "unknown payment method %q", req.PaymentMethod)
	}

	orderType := req.OrderType.Normalize()
	switch orderType {
	case TypeDineIn:
		if req.TableNumber == nil || strings.TrimSpace(*req.TableNumber) == "" {
			return nil, errors.Wrap(ErrInvalidOrder, "dine-in order needs a table number")
		}
	case TypeOnline:
		if req.CustomerAddress == nil || strings.TrimSpace(*req.CustomerAddress) == "" {
			return nil, errors.Wrap(ErrInvalidOrder, "online order needs a customer address")
		}
	default:
		return nil, errors.Wrapf(ErrInvalidOrder, "unknown order type %q", req.OrderType)
	}

	restaurant, err := s.menu.GetRestaurantSummary(ctx, req.RestaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "get restaurant")
	}
	if restaurant == nil || !restaurant.IsActive {
		return nil, errors.Wrap(ErrNotFound, "restaurant not found")
	}

	dishIDs := lo.Uniq(lo.Map(req.Items, func(it ItemRequest, _ int) string { return it.DishID }))
	dishes, err := s.menu.ListDishesByIDs(ctx, req.RestaurantID, dishIDs)
	if err != nil {
		return nil, errors.Wrap(err, "list dishes")
	}
	byID := lo.KeyBy(dishes, func(d *Dish) string { return d.ID })

	items := make([]Item, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, errors.Wrapf(ErrInvalidOrder, "quantity for dish %s must be positive", it.DishID)
		}
		dish, ok := byID[it.DishID]
		if !ok || !dish.IsAvailable {
			return nil, errors.Wrapf(ErrInvalidOrder, "dish %s is not available", it.DishID)
		}
		items = append(items, Item{
			DishID:    dish.ID,
			Name:      dish.Name,
			UnitPrice: dish.Price,
			Quantity:  it.Quantity,
			LineTotal: LineTotal(dish.Price, it.Quantity),
		})
	}

	quote := Price(items, req.PaymentMethod)

	paymentStatus := PaymentPending
	switch {
	case req.PaymentMethod == PaymentMethodCash:
		paymentStatus = PaymentCompleted
	case !restaurant.GatewayEnabled:
		paymentStatus = PaymentNotConfigured
	}

	now := s.now()
	return &Order{
		RestaurantID:    req.RestaurantID,
		Status:          StatusPending,
		PaymentStatus:   paymentStatus,
		PaymentMethod:   req.PaymentMethod,
		OrderType:       orderType,
		Items:           items,
		Subtotal:        quote.Subtotal,
		GatewayCharge:   quote.GatewayCharge,
		TotalAmount:     quote.Total,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		TableNumber:     req.TableNumber,
		CustomerAddress: req.CustomerAddress,
		CustomerNote:    req.CustomerNote,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *Service) GetOrder(ctx context.Context, restaurantID, orderID string) (*Order, error) {
	order, err := s.storage.GetOrder(ctx, GetCriteria{RestaurantID: restaurantID, ID: &orderID})
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if order == nil {
		return nil, ErrNotFound
	}
	return order, nil
}

func (s *Service) GetOrderByCode(ctx context.Context, restaurantID, code string) (*Order, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	order, err := s.storage.GetOrder(ctx, GetCriteria{RestaurantID: restaurantID, UniqueOrderID: &code})
	if err != nil {
		return nil, errors.Wrap(err, "get order by code")
	}
	if order == nil {
		return nil, ErrNotFound
	}
	return order, nil
}

// ListOrders returns every order of the restaurant, newest first.
func (s *Service) ListOrders(ctx context.Context, restaurantID string) ([]*Order, error) {
	list, err := s.storage.ListOrders(ctx, ListCriteria{RestaurantID: restaurantID})
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return list, nil
}

// AdvanceStatus moves the order to the given status if the lifecycle allows it.
func (s *Service) AdvanceStatus(ctx context.Context, restaurantID, orderID string, to Status) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.AdvanceStatus",
		trace.WithAttributes(attribute.String("order_id", orderID), attribute.String("to", string(to))))
	defer span.End()

	if !to.Valid() {
		return nil, errors.Wrapf(ErrInvalidTransition, "unknown status %q", to)
	}

	order, err := s.GetOrder(ctx, restaurantID, orderID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(order, to); err != nil {
		return nil, err
	}
	if order.Status == to {
		return order, nil
	}

	from := order.Status
	updated, err := s.storage.UpdateOrder(ctx,
		GetCriteria{RestaurantID: restaurantID, ID: &orderID},
		UpdateParams{ExpectStatus: &from, Status: &to},
	)
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	if updated == nil {
		return nil, ErrNotFound
	}
	if updated.Status != to {
		return nil, errors.Wrapf(ErrConflict, "order is now %s", updated.Status)
	}

	metrics.StatusTransitions.WithLabelValues(string(from), string(to)).Inc()
	s.logger.Info("Order status changed", "order_id", orderID, "from", from, "to", to)

	s.publisher.PublishOrder(ctx, ChangeUpdate, updated)
	return updated, nil
}

// CancelOrder cancels a pending order.
func (s *Service) CancelOrder(ctx context.Context, restaurantID, orderID string) (*Order, error) {
	return s.AdvanceStatus(ctx, restaurantID, orderID, StatusCancelled)
}

// SetPaymentStatus records a payment status change coming from the gateway or staff.
func (s *Service) SetPaymentStatus(ctx context.Context, restaurantID, orderID string, to PaymentStatus, method *PaymentMethod, source string) (*Order, error) {
	if !to.Valid() {
		return nil, errors.Wrapf(ErrInvalidPaymentChange, "unknown payment status %q", to)
	}

	order, err := s.GetOrder(ctx, restaurantID, orderID)
	if err != nil {
		return nil, err
	}
	if err := CanSettle(order, to, method); err != nil {
		return nil, err
	}
	methodChanged := method != nil && *method != order.PaymentMethod
	if order.PaymentStatus == to && !methodChanged {
		return order, nil
	}

	params := UpdateParams{PaymentStatus: &to}
	if methodChanged {
		// The gateway charge follows the method.
		quote := Price(order.Items, *method)
		params.PaymentMethod = method
		params.Pricing = &quote
	}

	updated, err := s.storage.UpdateOrder(ctx,
		GetCriteria{RestaurantID: restaurantID, ID: &orderID},
		params,
	)
	if err != nil {
		return nil, errors.Wrap(err, "update payment status")
	}
	if updated == nil {
		return nil, ErrNotFound
	}

	metrics.PaymentStatusChanges.WithLabelValues(string(to), source).Inc()
	s.logger.Info("Order payment status changed",
		"order_id", orderID,
		"from", order.PaymentStatus,
		"to", to,
		"source", source,
	)

	s.publisher.PublishOrder(ctx, ChangeUpdate, updated)
	return updated, nil
}

// ConfirmCashPayment marks the order paid in cash by staff.
func (s *Service) ConfirmCashPayment(ctx context.Context, restaurantID, orderID string) (*Order, error) {
	return s.SetPaymentStatus(ctx, restaurantID, orderID, PaymentCompleted, lo.ToPtr(PaymentMethodCash), "staff")
}

func (s *Service) DeleteOrder(ctx context.Context, restaurantID, orderID string) error {
	order, err := s.GetOrder(ctx, restaurantID, orderID)
	if err != nil {
		return err
	}

	if err := s.storage.DeleteOrder(ctx, GetCriteria{RestaurantID: restaurantID, ID: &orderID}); err != nil {
		return errors.Wrap(err, "delete order")
	}

	s.logger.Info("Order deleted", "order_id", orderID, "restaurant_id", restaurantID)
	s.publisher.PublishOrder(ctx, ChangeDelete, order)
	return nil
}

func newOrderCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:codeLength])
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(buf)
}
