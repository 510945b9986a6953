// Package handlers exposes the marketplace over HTTP and the STOMP broker
// over WebSocket.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"vesta/internal/auth"
	"vesta/internal/broker"
	"vesta/internal/config"
	"vesta/internal/store"
)

// errMalformedBody is returned when a request body is not valid JSON
var errMalformedBody = errors.New("malformed JSON body")

// maxJSONBody limits JSON request bodies
const maxJSONBody = 1 << 20

// API serves the REST endpoints and the /ws endpoint
type API struct {
	cfg    *config.Config
	store  *store.Store
	hub    *broker.Hub
	tokens *auth.TokenIssuer
	logger *slog.Logger
}

// New creates the API
func New(cfg *config.Config, st *store.Store, hub *broker.Hub, tokens *auth.TokenIssuer, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		cfg:    cfg,
		store:  st,
		hub:    hub,
		tokens: tokens,
		logger: logger,
	}
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// CountResponse carries a single counter
type CountResponse struct {
	Count int `json:"count"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Status: status})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errMalformedBody):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Internal errors are logged and
// hidden from the client.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return errMalformedBody
	}
	return nil
}

// principal returns the caller set by requireAuth
func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

// publishJSON pushes v to a broker destination. Failures are logged; the
// REST result never depends on realtime delivery.
func (a *API) publishJSON(destination string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		a.logger.Error("marshal event", "destination", destination, "error", err)
		return
	}
	if err := a.hub.Publish(destination, body); err != nil {
		a.logger.Warn("publish event", "destination", destination, "error", err)
	}
}
