package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/DoyleJ11/starrail-draft-backend/internal/auth"
	"github.com/DoyleJ11/starrail-draft-backend/pkg/engine"
	"github.com/DoyleJ11/starrail-draft-backend/internal/hub"
	"github.com/DoyleJ11/starrail-draft-backend/internal/lobby"
	"github.com/DoyleJ11/starrail-draft-backend/internal/store"
	"github.com/DoyleJ11/starrail-draft-backend/pkg/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	maxBody        = 64 << 10
	createAttempts = 5
)

type API struct {
	hub *hub.Hub
	log *zap.Logger
	now func() time.Time
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func (a *API) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req types.CreateSessionRequest
	if !decode(w, r, &req) {
		return
	}
	cfg := req.Settings()

	for range createAttempts {
		code, err := GenerateCode()
		if err != nil {
			writeError(w, err)
			return
		}
		now := a.now()
		s, err := engine.NewSession(code, cfg, now)
		if err == nil {
			s, err = engine.Restore(s, req.Picks, now)
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: err.Error(), Code: types.CodeBadRequest})
			return
		}
		creds, toks, err := auth.Issue(code)
		if err != nil {
			writeError(w, err)
			return
		}

		lb, err := a.hub.Create(r.Context(), store.Record{Session: s, Credentials: creds})
		if errors.Is(err, hub.ErrExists) {
			a.log.Debug("collision on code, regenerating", zap.String("session", code))
			continue
		}
		if err != nil {
			writeError(w, err)
			return
		}
		view, err := lb.View(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		a.log.Info("session created", zap.String("session", code), zap.String("mode", string(s.Mode)))
		writeJSON(w, http.StatusCreated, types.CreateSessionResponse{
			Key:        code,
			OwnerToken: toks.Owner,
			BlueToken:  toks.Blue,
			RedToken:   toks.Red,
			Snapshot:   view.Snapshot,
		})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, types.ErrorResponse{Error: "could not allocate a session key", Code: types.CodeInternal})
}

func (a *API) Join(w http.ResponseWriter, r *http.Request) {
	var req types.JoinRequest
	if !decode(w, r, &req) {
		return
	}
	key, err := auth.KeyOf(req.Token)
	if err != nil {
		writeError(w, lobby.ErrUnauthorized)
		return
	}
	lb, ok := a.lobby(r.Context(), w, key)
	if !ok {
		return
	}
	role, err := lb.Authenticate(r.Context(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.JoinResponse{Key: key, Role: role})
}

// GetSession is the fallback read; the derived timer is projected to now.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	lb, ok := a.lobby(r.Context(), w, chi.URLParam(r, "key"))
	if !ok {
		return
	}
	view, err := lb.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Snapshot)
}

func (a *API) SubmitAction(w http.ResponseWriter, r *http.Request) {
	token, ok := bearer(w, r)
	if !ok {
		return
	}
	var cmd engine.Command
	if !decode(w, r, &cmd) {
		return
	}
	lb, ok := a.lobby(r.Context(), w, chi.URLParam(r, "key"))
	if !ok {
		return
	}
	res, err := lb.Submit(r.Context(), token, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Snapshot)
}

func (a *API) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	token, ok := bearer(w, r)
	if !ok {
		return
	}
	var cfg engine.Settings
	if !decode(w, r, &cfg) {
		return
	}
	lb, ok := a.lobby(r.Context(), w, chi.URLParam(r, "key"))
	if !ok {
		return
	}
	res, err := lb.UpdateSettings(r.Context(), token, cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Snapshot)
}

func (a *API) RotateToken(w http.ResponseWriter, r *http.Request) {
	token, ok := bearer(w, r)
	if !ok {
		return
	}
	side := engine.Side(chi.URLParam(r, "side"))
	if !side.Valid() {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: "unknown side", Code: types.CodeBadRequest})
		return
	}
	lb, ok := a.lobby(r.Context(), w, chi.URLParam(r, "key"))
	if !ok {
		return
	}
	fresh, err := lb.RotateToken(r.Context(), token, side)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.TokenResponse{Side: side, Token: fresh})
}

func (a *API) DeleteSession(w http.ResponseWriter, r *http.Request) {
	token, ok := bearer(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	lb, ok := a.lobby(r.Context(), w, key)
	if !ok {
		return
	}
	role, err := lb.Authenticate(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	if role != engine.RoleOwner {
		writeError(w, lobby.ErrForbidden)
		return
	}
	if err := a.hub.Remove(r.Context(), key); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) lobby(ctx context.Context, w http.ResponseWriter, key string) (*lobby.Lobby, bool) {
	lb, err := a.hub.Get(ctx, key)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return lb, true
}

func bearer(w http.ResponseWriter, r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		writeError(w, lobby.ErrUnauthorized)
		return "", false
	}
	return strings.TrimSpace(token), true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: "invalid request body", Code: types.CodeBadRequest})
		return false
	}
	return true
}
