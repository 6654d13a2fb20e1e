package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dinedesk/internal/infra/realtime"
	"dinedesk/internal/stories/restaurants"
	"dinedesk/internal/stories/waitercalls"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token        string `json:"token"`
	RestaurantID string `json:"restaurant_id"`
}

type waiterCallRequest struct {
	CustomerName string `json:"customer_name"`
	TableNumber  string `json:"table_number"`
	Message      string `json:"message"`
}

type menuResponse struct {
	Restaurant *restaurants.Restaurant `json:"restaurant"`
	Dishes     []*restaurants.Dish     `json:"dishes"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	token, rid, err := h.restaurants.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, RestaurantID: rid})
}

func (h *Handler) menu(w http.ResponseWriter, r *http.Request) {
	restaurant, dishes, err := h.restaurants.Menu(r.Context(), chi.URLParam(r, "rid"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if dishes == nil {
		dishes = []*restaurants.Dish{}
	}
	writeJSON(w, http.StatusOK, menuResponse{Restaurant: restaurant, Dishes: dishes})
}

func (h *Handler) createWaiterCall(w http.ResponseWriter, r *http.Request) {
	var body waiterCallRequest
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	call, err := h.calls.CreateCall(r.Context(), waitercalls.CreateRequest{
		RestaurantID: chi.URLParam(r, "rid"),
		CustomerName: body.CustomerName,
		TableNumber:  body.TableNumber,
		Message:      body.Message,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

func (h *Handler) listWaiterCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := h.calls.ListActive(r.Context(), chi.URLParam(r, "rid"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if calls == nil {
		calls = []*waitercalls.Call{}
	}
	writeJSON(w, http.StatusOK, calls)
}

func (h *Handler) acknowledgeWaiterCall(w http.ResponseWriter, r *http.Request) {
	call, err := h.calls.Acknowledge(r.Context(), chi.URLParam(r, "rid"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handler) completeWaiterCall(w http.ResponseWriter, r *http.Request) {
	call, err := h.calls.Complete(r.Context(), chi.URLParam(r, "rid"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handler) feedHandler(channel realtime.Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.feed.ServeWS(w, r, chi.URLParam(r, "rid"), channel)
	}
}
