package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kiwari-pos/ordering/internal/middleware"
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/kiwari-pos/ordering/internal/service"
	"github.com/rs/zerolog/log"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// writeOrderError maps lifecycle errors onto HTTP statuses.
func writeOrderError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		ve *order.ValidationError
		te *order.IllegalTransitionError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error(), "field": ve.Field})
	case errors.As(err, &te):
		writeJSON(w, http.StatusConflict, map[string]string{"error": te.Error()})
	case errors.Is(err, order.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, order.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied for this order"})
	case errors.Is(err, order.ErrStoreUnavailable):
		log.Warn().Err(err).Str("op", op).Str("path", r.URL.Path).Msg("store unavailable")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "service temporarily unavailable, please retry"})
	default:
		log.Error().Err(err).Str("op", op).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// GuestTokenHeader carries the access token returned by guest checkout.
const GuestTokenHeader = "X-Guest-Token"

// actorFromRequest turns the verified claims and any guest token into a
// service actor. Anonymous requests yield the zero Actor.
func actorFromRequest(r *http.Request) service.Actor {
	actor := service.Actor{GuestToken: r.Header.Get(GuestTokenHeader)}
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		actor.UserID = claims.UserID
		actor.Role = claims.Role
	}
	return actor
}

// requireCaller rejects requests that carry neither verified claims nor a
// guest token. Runs after OptionalAuthenticate.
func requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if middleware.ClaimsFromContext(r.Context()) == nil && r.Header.Get(GuestTokenHeader) == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing authorization"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
