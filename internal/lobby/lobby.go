package lobby

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/starrail-draft-backend/internal/auth"
	"github.com/DoyleJ11/starrail-draft-backend/pkg/engine"
	"github.com/DoyleJ11/starrail-draft-backend/internal/store"
	"github.com/DoyleJ11/starrail-draft-backend/pkg/types"
	"go.uber.org/zap"
)

type Msg interface{ isLobbyMsg() }

// FromClient is a draft command. Token is resolved to the acting role here,
// so a rotated token stops working immediately.
type FromClient struct {
	Cmd   engine.Command
	Token string
	Reply chan Result
}

func (FromClient) isLobbyMsg() {}

type UpdateSettings struct {
	Settings engine.Settings
	Token    string
	Reply    chan Result
}

func (UpdateSettings) isLobbyMsg() {}

type Authenticate struct {
	Token string
	Reply chan AuthResult
}

func (Authenticate) isLobbyMsg() {}

type RotateToken struct {
	Side  engine.Side
	Token string
	Reply chan TokenResult
}

func (RotateToken) isLobbyMsg() {}

type Join struct {
	ClientID string
	Outbox   chan types.Snapshot // where this client wants to receive snapshots
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Result struct {
	Snapshot types.Snapshot
	Events   []engine.Event
	Err      error
}

type AuthResult struct {
	Role engine.Role
	Err  error
}

type TokenResult struct {
	Token string
	Err   error
}

type View struct {
	Snapshot   types.Snapshot
	NumClients int
}

type Config struct {
	Store          store.Store
	Rules          func(profile string) engine.CostRules
	Logger         *zap.Logger
	Now            func() time.Time
	PersistTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Store == nil {
		c.Store = store.NewMemory()
	}
	if c.Rules == nil {
		c.Rules = func(string) engine.CostRules { return engine.CostRules{} }
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 3 * time.Second
	}
	return c
}

type Lobby struct {
	cfg     Config
	log     *zap.Logger
	inbox   chan Msg
	rec     store.Record
	clients map[string]chan types.Snapshot
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewLobby starts the actor for an already persisted record.
func NewLobby(parent context.Context, rec store.Record, cfg Config) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	cfg = cfg.withDefaults()

	l := &Lobby{
		cfg:     cfg,
		log:     cfg.Logger.With(zap.String("session", rec.Key())),
		inbox:   make(chan Msg, 64),
		rec:     rec,
		clients: make(map[string]chan types.Snapshot),
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.clients[msg.ClientID] = msg.Outbox
				l.send(msg.ClientID, msg.Outbox, l.snapshot())

			case Leave:
				delete(l.clients, msg.ClientID)

			case FromClient:
				reply(msg.Reply, l.handleCommand(msg))

			case UpdateSettings:
				reply(msg.Reply, l.handleSettings(msg))

			case Authenticate:
				role, err := l.resolve(msg.Token)
				reply(msg.Reply, AuthResult{Role: role, Err: err})

			case RotateToken:
				reply(msg.Reply, l.handleRotate(msg))

			case GetState:
				reply(msg.Reply, View{Snapshot: l.snapshot(), NumClients: len(l.clients)})

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

// reply tolerates fire-and-forget senders that pass no channel.
func reply[T any](ch chan T, v T) {
	if ch != nil {
		ch <- v
	}
}

func (l *Lobby) handleCommand(msg FromClient) Result {
	role, err := l.resolve(msg.Token)
	if err != nil {
		return Result{Err: err}
	}
	cmd := msg.Cmd
	cmd.Actor = role

	events, next, err := engine.Apply(l.rec.Session, cmd, l.cfg.Now())
	if err != nil {
		if cmd.Type == engine.CmdSync && errors.Is(err, engine.ErrTimerIdle) {
			return Result{Snapshot: l.snapshot()}
		}
		l.log.Debug("command rejected",
			zap.String("op", string(cmd.Type)),
			zap.String("role", string(role)),
			zap.Error(err))
		return Result{Err: err}
	}

	snap, err := l.commit(next, l.rec.Credentials)
	if err != nil {
		return Result{Err: err}
	}
	l.log.Debug("command applied",
		zap.String("op", string(cmd.Type)),
		zap.String("role", string(role)),
		zap.Int("version", snap.Version))
	return Result{Snapshot: snap, Events: events}
}

func (l *Lobby) handleSettings(msg UpdateSettings) Result {
	role, err := l.resolve(msg.Token)
	if err != nil {
		return Result{Err: err}
	}
	if role != engine.RoleOwner {
		return Result{Err: ErrForbidden}
	}
	events, next, err := engine.ApplySettings(l.rec.Session, msg.Settings, l.cfg.Now())
	if err != nil {
		return Result{Err: err}
	}
	snap, err := l.commit(next, l.rec.Credentials)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Snapshot: snap, Events: events}
}

func (l *Lobby) handleRotate(msg RotateToken) TokenResult {
	role, err := l.resolve(msg.Token)
	if err != nil {
		return TokenResult{Err: err}
	}
	if role != engine.RoleOwner {
		return TokenResult{Err: ErrForbidden}
	}
	if !msg.Side.Valid() {
		return TokenResult{Err: fmt.Errorf("%w: unknown side %q", engine.ErrInvalidTransition, msg.Side)}
	}
	creds, tok, err := l.rec.Credentials.Rotate(l.rec.Key(), msg.Side)
	if err != nil {
		return TokenResult{Err: err}
	}
	if err := l.persist(store.Record{Session: l.rec.Session, Credentials: creds, Version: l.rec.Version}); err != nil {
		return TokenResult{Err: err}
	}
	l.log.Info("token rotated", zap.String("side", string(msg.Side)))
	return TokenResult{Token: tok}
}

// resolve maps a token to a role. No token means a spectator.
func (l *Lobby) resolve(token string) (engine.Role, error) {
	if token == "" {
		return engine.RoleSpectator, nil
	}
	if key, err := auth.KeyOf(token); err != nil || key != l.rec.Key() {
		return "", ErrUnauthorized
	}
	if role, ok := l.rec.Credentials.Resolve(token); ok {
		return role, nil
	}
	if l.rec.Credentials.IsRevoked(token) {
		return "", ErrTokenRevoked
	}
	return "", ErrUnauthorized
}

// commit persists next and only then makes it the live state.
func (l *Lobby) commit(next engine.Session, creds auth.Credentials) (types.Snapshot, error) {
	rec := store.Record{Session: next, Credentials: creds, Version: l.rec.Version + 1}
	if err := l.persist(rec); err != nil {
		return types.Snapshot{}, err
	}
	snap := l.snapshot()
	l.broadcast(snap)
	return snap, nil
}

func (l *Lobby) persist(rec store.Record) error {
	ctx, cancel := context.WithTimeout(l.ctx, l.cfg.PersistTimeout)
	defer cancel()
	if err := l.cfg.Store.Save(ctx, rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrClosed
		}
		l.log.Error("persist failed", zap.Int("version", rec.Version), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	l.rec = rec
	return nil
}

func (l *Lobby) snapshot() types.Snapshot {
	now := l.cfg.Now()
	s := l.rec.Session
	return types.Snapshot{
		Version:    l.rec.Version,
		State:      s.Clone(),
		Derived:    engine.Derive(s, l.cfg.Rules(s.CostProfile), now),
		ServerTime: now,
	}
}

func (l *Lobby) shutdown() {
	for id, ch := range l.clients {
		close(ch) // Tell client no more snapshots
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(snap types.Snapshot) {
	for id, ch := range l.clients {
		l.send(id, ch, snap)
	}
}

func (l *Lobby) send(id string, ch chan types.Snapshot, snap types.Snapshot) {
	select {
	case ch <- snap:
	default:
		// Client is slow/full - drop them.
		l.log.Warn("dropping slow subscriber", zap.String("client", id))
		close(ch)
		delete(l.clients, id)
	}
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) Key() string { return l.rec.Key() }

// Done is closed once the lobby stops accepting messages.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

func (l *Lobby) Submit(ctx context.Context, token string, cmd engine.Command) (Result, error) {
	res, err := call(ctx, l, func(reply chan Result) Msg {
		return FromClient{Cmd: cmd, Token: token, Reply: reply}
	})
	if err != nil {
		return Result{}, err
	}
	return res, res.Err
}

func (l *Lobby) UpdateSettings(ctx context.Context, token string, cfg engine.Settings) (Result, error) {
	res, err := call(ctx, l, func(reply chan Result) Msg {
		return UpdateSettings{Settings: cfg, Token: token, Reply: reply}
	})
	if err != nil {
		return Result{}, err
	}
	return res, res.Err
}

func (l *Lobby) Authenticate(ctx context.Context, token string) (engine.Role, error) {
	res, err := call(ctx, l, func(reply chan AuthResult) Msg {
		return Authenticate{Token: token, Reply: reply}
	})
	if err != nil {
		return "", err
	}
	return res.Role, res.Err
}

func (l *Lobby) RotateToken(ctx context.Context, token string, side engine.Side) (string, error) {
	res, err := call(ctx, l, func(reply chan TokenResult) Msg {
		return RotateToken{Side: side, Token: token, Reply: reply}
	})
	if err != nil {
		return "", err
	}
	return res.Token, res.Err
}

func (l *Lobby) View(ctx context.Context) (View, error) {
	return call(ctx, l, func(reply chan View) Msg { return GetState{Reply: reply} })
}

func (l *Lobby) Join(ctx context.Context, clientID string, outbox chan types.Snapshot) error {
	return l.post(ctx, Join{ClientID: clientID, Outbox: outbox})
}

func (l *Lobby) Leave(clientID string) {
	_ = l.post(context.Background(), Leave{ClientID: clientID})
}

func (l *Lobby) Close() {
	_ = l.post(context.Background(), Shutdown{})
}

func (l *Lobby) post(ctx context.Context, msg Msg) error {
	select {
	case l.inbox <- msg:
		return nil
	case <-l.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call sends a request built around a fresh reply channel and waits for the
// answer, giving up if the lobby stops first.
func call[T any](ctx context.Context, l *Lobby, build func(chan T) Msg) (T, error) {
	var zero T
	reply := make(chan T, 1)
	if err := l.post(ctx, build(reply)); err != nil {
		return zero, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.ctx.Done():
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
