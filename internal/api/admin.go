package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"dinedesk/internal/stories/restaurants"
)

type webhookResponse struct {
	Restaurant *restaurants.Restaurant    `json:"restaurant"`
	Webhook    *restaurants.WebhookConfig `json:"webhook"`
}

func (h *Handler) listRestaurants(w http.ResponseWriter, r *http.Request) {
	criteria := restaurants.ListCriteria{}
	q := r.URL.Query()
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "active must be a boolean")
			return
		}
		criteria.IsActive = lo.ToPtr(active)
	}
	criteria.Limit, _ = strconv.Atoi(q.Get("limit"))
	criteria.Offset, _ = strconv.Atoi(q.Get("offset"))

	list, err := h.restaurants.ListRestaurants(r.Context(), criteria)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*restaurants.Restaurant{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) createRestaurant(w http.ResponseWriter, r *http.Request) {
	var body restaurants.CreateRequest
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	restaurant, err := h.restaurants.CreateRestaurant(r.Context(), body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, restaurant)
}

func (h *Handler) getRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurant, err := h.restaurants.GetRestaurant(r.Context(), chi.URLParam(r, "rid"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, restaurant)
}

func (h *Handler) updateRestaurant(w http.ResponseWriter, r *http.Request) {
	var body restaurants.UpdateParams
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	restaurant, err := h.restaurants.UpdateRestaurant(r.Context(), chi.URLParam(r, "rid"), body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, restaurant)
}

func (h *Handler) deleteRestaurant(w http.ResponseWriter, r *http.Request) {
	if err := h.restaurants.DeleteRestaurant(r.Context(), chi.URLParam(r, "rid")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// configureWebhook returns the secret in clear once; an empty url disables forwarding.
func (h *Handler) configureWebhook(w http.ResponseWriter, r *http.Request) {
	var body restaurants.WebhookConfig
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	restaurant, cfg, err := h.restaurants.ConfigureWebhook(r.Context(), chi.URLParam(r, "rid"), body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{Restaurant: restaurant, Webhook: cfg})
}

func (h *Handler) adminMenu(w http.ResponseWriter, r *http.Request) {
	h.menu(w, r)
}

func (h *Handler) upsertDish(w http.ResponseWriter, r *http.Request) {
	var body restaurants.DishRequest
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	dish, err := h.restaurants.UpsertDish(r.Context(), chi.URLParam(r, "rid"), body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dish)
}

func (h *Handler) issueCredential(w http.ResponseWriter, r *http.Request) {
	cred, err := h.restaurants.IssueCredential(r.Context(), chi.URLParam(r, "rid"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cred)
}
