package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DoyleJ11/starrail-draft-backend/pkg/engine"
	"github.com/DoyleJ11/starrail-draft-backend/internal/hub"
	"github.com/DoyleJ11/starrail-draft-backend/internal/lobby"
	"github.com/DoyleJ11/starrail-draft-backend/pkg/types"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrBannedSelection):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, lobby.ErrStaleAction):
		return http.StatusGone
	case errors.Is(err, lobby.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, lobby.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, lobby.ErrPersist), errors.Is(err, hub.ErrHubClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: lobby.Code(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
