package api

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"dinedesk/internal/invoice"
	"dinedesk/internal/stories/orders"
	"dinedesk/internal/stories/payment"
)

const idempotencyKeyHeader = "Idempotency-Key"

type createOrderRequest struct {
	OrderType       orders.Type          `json:"order_type"`
	PaymentMethod   orders.PaymentMethod `json:"payment_method"`
	Items           []orders.ItemRequest `json:"items"`
	CustomerName    string               `json:"customer_name"`
	CustomerPhone   string               `json:"customer_phone"`
	TableNumber     *string              `json:"table_number"`
	CustomerAddress *string              `json:"customer_address"`
	CustomerNote    *string              `json:"customer_note"`
}

type orderResponse struct {
	Order    *orders.Order     `json:"order"`
	Checkout *payment.Checkout `json:"checkout,omitempty"`
}

type statusRequest struct {
	Status orders.Status `json:"status"`
}

func (h *Handler) createPublicOrder(w http.ResponseWriter, r *http.Request) {
	h.createOrder(w, r)
}

func (h *Handler) createStaffOrder(w http.ResponseWriter, r *http.Request) {
	h.createOrder(w, r)
}

// createOrder stores the order and, for online payment, opens a gateway checkout.
// A replayed Idempotency-Key answers 200 with the original order.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var body createOrderRequest
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	req := orders.CreateOrderRequest{
		RestaurantID:    chi.URLParam(r, "rid"),
		OrderType:       body.OrderType,
		PaymentMethod:   body.PaymentMethod,
		Items:           body.Items,
		CustomerName:    body.CustomerName,
		CustomerPhone:   body.CustomerPhone,
		TableNumber:     body.TableNumber,
		CustomerAddress: body.CustomerAddress,
		CustomerNote:    body.CustomerNote,
	}
	if key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)); key != "" {
		req.IdempotencyKey = &key
	}

	order, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := orderResponse{Order: order}
	if order.PaymentMethod == orders.PaymentMethodOnline && order.PaymentStatus == orders.PaymentPending {
		checkout, err := h.payments.StartCheckout(r.Context(), order)
		if err != nil {
			// The order stays unpaid; the guest can retry with the same key.
			h.logger.Error("Failed to start checkout",
				"order_id", order.ID,
				slog.Any("error", err),
			)
		} else {
			resp.Checkout = checkout
			if checkout.Status == payment.StatusCompleted {
				if fresh, err := h.orders.GetOrder(r.Context(), order.RestaurantID, order.ID); err == nil {
					resp.Order = fresh
				}
			}
		}
	}

	status := http.StatusCreated
	if order.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *Handler) orderByCode(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrderByCode(r.Context(), chi.URLParam(r, "rid"), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListOrders(r.Context(), chi.URLParam(r, "rid"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "rid"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) advanceStatus(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := h.orders.AdvanceStatus(r.Context(), chi.URLParam(r, "rid"), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.CancelOrder(r.Context(), chi.URLParam(r, "rid"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) confirmCash(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.ConfirmCashPayment(r.Context(), chi.URLParam(r, "rid"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) orderInvoice(w http.ResponseWriter, r *http.Request) {
	rid := chi.URLParam(r, "rid")
	order, err := h.orders.GetOrder(r.Context(), rid, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	restaurant, err := h.restaurants.GetRestaurant(r.Context(), rid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	html, err := invoice.Render(invoice.Input{
		Order: order,
		Restaurant: invoice.Restaurant{
			Name:           restaurant.Name,
			Address:        restaurant.Address,
			Phone:          restaurant.Phone,
			CurrencySymbol: restaurant.CurrencySymbol,
		},
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.DeleteOrder(r.Context(), chi.URLParam(r, "rid"), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// yookassaWebhook only extracts the gateway payment id; the status is re-read from the gateway.
func (h *Handler) yookassaWebhook(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "read body")
		return
	}

	paymentID, err := notificationPaymentID(data)
	if err != nil || paymentID == "" {
		writeMessage(w, http.StatusBadRequest, "invalid notification")
		return
	}

	if _, err := h.payments.HandleNotification(r.Context(), paymentID); err != nil {
		h.logger.Error("Failed to handle payment notification",
			"yookassa_id", paymentID,
			slog.Any("error", err),
		)
		writeMessage(w, http.StatusInternalServerError, "notification not processed")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// notificationPaymentID reads object.id from a gateway notification body.
func notificationPaymentID(data []byte) (string, error) {
	var id string
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "object" {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "id" {
				return d.Skip()
			}
			v, err := d.Str()
			if err != nil {
				return err
			}
			id = v
			return nil
		})
	})
	return id, err
}
