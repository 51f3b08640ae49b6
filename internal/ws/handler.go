package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/starrail-draft-backend/pkg/engine"
	"github.com/DoyleJ11/starrail-draft-backend/internal/hub"
	"github.com/DoyleJ11/starrail-draft-backend/internal/lobby"
	"github.com/DoyleJ11/starrail-draft-backend/pkg/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeTimeout  = 3 * time.Second
	pingInterval  = 30 * time.Second
	submitTimeout = 5 * time.Second
)

type Options struct {
	Logger         *zap.Logger
	Buffer         int
	ActionRate     float64
	ActionBurst    int
	OriginPatterns []string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Buffer < 1 {
		o.Buffer = 16
	}
	if o.ActionRate <= 0 {
		o.ActionRate = 10
	}
	if o.ActionBurst < 1 {
		o.ActionBurst = 20
	}
	return o
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	opts = opts.withDefaults()

	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		token := r.URL.Query().Get("token")
		if key == "" {
			http.Error(w, "missing key", http.StatusBadRequest)
			return
		}

		lb, err := h.Get(r.Context(), key)
		if err != nil {
			if errors.Is(err, hub.ErrSessionNotFound) {
				http.Error(w, "session not found", http.StatusGone)
				return
			}
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		role, err := lb.Authenticate(r.Context(), token)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, lobby.ErrStaleAction) {
				status = http.StatusGone
			}
			http.Error(w, err.Error(), status)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := randID()
		log := opts.Logger.With(zap.String("session", key), zap.String("client", clientID), zap.String("role", string(role)))

		out := make(chan types.Snapshot, opts.Buffer)
		if err := lb.Join(r.Context(), clientID, out); err != nil {
			conn.Close(websocket.StatusGoingAway, "session closed")
			return
		}
		defer lb.Leave(clientID)
		log.Debug("subscriber joined")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine: snapshots in lobby order, first one is the join snapshot.
		go func() {
			defer cancel()
			ping := time.NewTicker(pingInterval)
			defer ping.Stop()

			kind := types.MsgSnapshot
			for {
				select {
				case snap, ok := <-out:
					if !ok {
						// Dropped as slow, or the session went away.
						conn.Close(websocket.StatusGoingAway, "stream closed")
						return
					}
					if err := write(ctx, conn, types.SnapshotMessage(kind, snap)); err != nil {
						return
					}
					kind = types.MsgUpdate
				case <-ping.C:
					pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
					err := conn.Ping(pctx)
					pcancel()
					if err != nil {
						return
					}
				case <-lb.Done():
					conn.Close(websocket.StatusGoingAway, "session closed")
					return
				case <-ctx.Done():
					return
				}
			}
		}()

		limiter := rate.NewLimiter(rate.Limit(opts.ActionRate), opts.ActionBurst)

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if ctx.Err() == nil {
						log.Debug("read failed", zap.Error(err))
					}
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = write(ctx, conn, errorMessage("", types.CodeBadRequest, "bad json"))
				continue
			}
			if !limiter.Allow() {
				_ = write(ctx, conn, errorMessage(cm.Ref, types.CodeRateLimited, "slow down"))
				continue
			}

			cmd, ok := toEngineCommand(cm)
			if !ok {
				_ = write(ctx, conn, errorMessage(cm.Ref, types.CodeBadRequest, "unknown message type"))
				continue
			}

			sctx, scancel := context.WithTimeout(ctx, submitTimeout)
			res, err := lb.Submit(sctx, token, cmd)
			scancel()
			if err != nil {
				log.Debug("action rejected", zap.String("op", string(cmd.Type)), zap.Error(err))
				_ = write(ctx, conn, errorMessage(cm.Ref, lobby.Code(err), err.Error()))
				continue
			}
			_ = write(ctx, conn, types.ServerMessage{Type: types.MsgAck, Ref: cm.Ref, Version: res.Snapshot.Version})
		}
	}
}

func toEngineCommand(m types.ClientMessage) (engine.Command, bool) {
	switch m.Type {
	case types.MsgSync:
		return engine.Command{Type: engine.CmdSync}, true
	case types.MsgAction:
		if m.Action == nil || m.Action.Type == "" {
			return engine.Command{}, false
		}
		cmd := *m.Action
		cmd.Actor = "" // resolved from the connection's token
		return cmd, true
	default:
		return engine.Command{}, false
	}
}

func errorMessage(ref, code, msg string) types.ServerMessage {
	return types.ServerMessage{Type: types.MsgError, Ref: ref, Code: code, Error: msg}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func randID() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
