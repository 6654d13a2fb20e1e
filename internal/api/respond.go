package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/pkg/errors"

	"dinedesk/internal/stories/orders"
	"dinedesk/internal/stories/restaurants"
	"dinedesk/internal/stories/waitercalls"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, waitercalls.ErrNotFound),
		errors.Is(err, restaurants.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidOrder),
		errors.Is(err, waitercalls.ErrInvalidCall),
		errors.Is(err, restaurants.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrPaymentNotCompleted),
		errors.Is(err, orders.ErrInvalidPaymentChange),
		errors.Is(err, waitercalls.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, orders.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, restaurants.ErrInvalidCredentials):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			slog.Any("error", err),
		)
		writeMessage(w, status, http.StatusText(status))
		return
	}
	writeMessage(w, status, err.Error())
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}
