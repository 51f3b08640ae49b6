package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/starrail-draft-backend/internal/lobby"
	"github.com/DoyleJ11/starrail-draft-backend/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrSessionNotFound = fmt.Errorf("%w: session not found", lobby.ErrStaleAction)
	ErrExists          = store.ErrExists
	ErrHubClosed       = errors.New("hub closed")
)

type HubMsg interface{ isHubMsg() }

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type EnsureLobby struct {
	Record store.Record // only used if creation happens
	Reply  chan *lobby.Lobby
}

type RemoveLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type ShutdownHub struct {
	Done chan struct{}
}

func (GetLobby) isHubMsg()    {}
func (EnsureLobby) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// Hub owns the key → lobby registry. Lobbies are started lazily from the
// store the first time a key is asked for.
type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	cfg     lobby.Config
	store   store.Store
	log     *zap.Logger
	loads   singleflight.Group
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, cfg lobby.Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		cfg:     cfg,
		store:   cfg.Store,
		log:     cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetLobby:
				msg.Reply <- h.live(msg.Code) // May be nil

			case EnsureLobby:
				if lb := h.live(msg.Record.Key()); lb != nil {
					msg.Reply <- lb
					break
				}
				lb := lobby.NewLobby(h.ctx, msg.Record, h.cfg)
				h.lobbies[msg.Record.Key()] = lb
				h.log.Debug("lobby started", zap.String("session", msg.Record.Key()))
				msg.Reply <- lb

			case RemoveLobby:
				lb := h.lobbies[msg.Code]
				delete(h.lobbies, msg.Code)
				if lb != nil {
					lb.Close()
				}
				msg.Reply <- lb

			case ShutdownHub:
				h.closeAll()
				h.cancel()
				close(msg.Done)
				return
			}
		}
	}
}

// live drops registry entries whose lobby has already stopped.
func (h *Hub) live(code string) *lobby.Lobby {
	lb := h.lobbies[code]
	if lb == nil {
		return nil
	}
	select {
	case <-lb.Done():
		delete(h.lobbies, code)
		return nil
	default:
		return lb
	}
}

func (h *Hub) closeAll() {
	for code, lb := range h.lobbies {
		lb.Close()
		delete(h.lobbies, code)
	}
}

// Create persists a brand new session and starts its lobby.
func (h *Hub) Create(ctx context.Context, rec store.Record) (*lobby.Lobby, error) {
	if err := h.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return h.ensure(ctx, rec)
}

// Get returns the running lobby for key, loading it from the store on a miss.
func (h *Hub) Get(ctx context.Context, key string) (*lobby.Lobby, error) {
	lb, err := ask(ctx, h, func(reply chan *lobby.Lobby) HubMsg { return GetLobby{Code: key, Reply: reply} })
	if err != nil || lb != nil {
		return lb, err
	}

	v, err, _ := h.loads.Do(key, func() (any, error) {
		rec, err := h.store.Get(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		if err != nil {
			return nil, err
		}
		return h.ensure(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return v.(*lobby.Lobby), nil
}

// Remove deletes the session. Subscribers are closed and its tokens go stale.
func (h *Hub) Remove(ctx context.Context, key string) error {
	err := h.store.Delete(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		err = ErrSessionNotFound
	}
	if _, askErr := ask(ctx, h, func(reply chan *lobby.Lobby) HubMsg { return RemoveLobby{Code: key, Reply: reply} }); askErr != nil {
		return askErr
	}
	if err == nil {
		h.log.Info("session removed", zap.String("session", key))
	}
	return err
}

// Shutdown stops every lobby and the hub loop.
func (h *Hub) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case h.inbox <- ShutdownHub{Done: done}:
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) ensure(ctx context.Context, rec store.Record) (*lobby.Lobby, error) {
	return ask(ctx, h, func(reply chan *lobby.Lobby) HubMsg { return EnsureLobby{Record: rec, Reply: reply} })
}

func ask(ctx context.Context, h *Hub, build func(chan *lobby.Lobby) HubMsg) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	select {
	case h.inbox <- build(reply):
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case lb := <-reply:
		return lb, nil
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
