package deskapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dinedesk/internal/backend"
	"dinedesk/internal/dashboard"
	"dinedesk/internal/stories/orders"
)

type actionView struct {
	To    orders.Status `json:"to"`
	Label string        `json:"label"`
}

type boardOrder struct {
	*orders.Order
	NextAction *actionView `json:"next_action,omitempty"`
	Updating   bool        `json:"updating"`
}

type boardResponse struct {
	State     dashboard.LoadState `json:"state"`
	Error     string              `json:"error,omitempty"`
	Connected bool                `json:"connected"`
	Unseen    int                 `json:"unseen"`
	DineIn    []boardOrder        `json:"dine_in"`
	Online    []boardOrder        `json:"online"`
}

func (h *Handler) getBoard(w http.ResponseWriter, _ *http.Request) {
	snap := h.board.Snapshot()
	resp := boardResponse{
		State:     snap.State,
		Error:     snap.Error,
		Connected: snap.Connected,
		Unseen:    snap.Unseen,
		DineIn:    []boardOrder{},
		Online:    []boardOrder{},
	}
	for _, o := range snap.Orders {
		item := boardOrder{Order: o, Updating: h.actions.InFlight(o.ID)}
		if next, ok := h.actions.Available(o.ID); ok {
			item.NextAction = &actionView{To: next.To, Label: next.Label}
		}
		if o.IsOnline() {
			resp.Online = append(resp.Online, item)
		} else {
			resp.DineIn = append(resp.DineIn, item)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ackBoard(w http.ResponseWriter, _ *http.Request) {
	h.board.Ack()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) retryBoard(w http.ResponseWriter, _ *http.Request) {
	h.board.Retry()
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) getActivity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.activity.Recent())
}

type createOrderResponse struct {
	*backend.CreateOrderResult
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req backend.CreateOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	// The key is echoed back so a failed submit can be resent without a duplicate.
	res, key, err := h.manual.Create(r.Context(), req, r.Header.Get("Idempotency-Key"))
	w.Header().Set("Idempotency-Key", key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createOrderResponse{CreateOrderResult: res, IdempotencyKey: key})
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request) {
	o, err := h.actions.Advance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) confirmCash(w http.ResponseWriter, r *http.Request) {
	o, err := h.actions.ConfirmCash(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) invoice(w http.ResponseWriter, r *http.Request) {
	doc, err := h.backend.Invoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

func (h *Handler) getWatch(w http.ResponseWriter, r *http.Request) {
	watch, ok := h.manual.Watch(chi.URLParam(r, "id"))
	if !ok {
		writeMessage(w, http.StatusNotFound, "no payment watch for this order")
		return
	}
	writeJSON(w, http.StatusOK, watch)
}

// cancelWatch is called when the checkout window is closed.
func (h *Handler) cancelWatch(w http.ResponseWriter, r *http.Request) {
	if !h.manual.Cancel(chi.URLParam(r, "id")) {
		writeMessage(w, http.StatusNotFound, "no running payment watch for this order")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listCalls(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.calls.Open())
}

func (h *Handler) ackCall(w http.ResponseWriter, r *http.Request) {
	call, err := h.backend.AcknowledgeWaiterCall(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handler) completeCall(w http.ResponseWriter, r *http.Request) {
	call, err := h.backend.CompleteWaiterCall(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}
