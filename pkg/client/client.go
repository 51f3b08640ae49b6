// Package client talks to a draft server for one session and keeps a
// reconciled view of it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/starrail-draft-backend/pkg/engine"
	"github.com/DoyleJ11/starrail-draft-backend/pkg/reconcile"
	"github.com/DoyleJ11/starrail-draft-backend/pkg/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDebounce   = 400 * time.Millisecond
	defaultCheckEvery = 250 * time.Millisecond
	flushTimeout      = 5 * time.Second
	maxMessage        = 1 << 20
	redialDelay       = 100 * time.Millisecond
)

// ErrStaleAction means the session or token no longer exists; drop local state.
var ErrStaleAction = errors.New("stale action")

var errGoingAway = errors.New("draft client: push channel going away")

// APIError is a rejection reported by the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("draft api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Is lets callers match server rejections against the engine sentinels.
func (e *APIError) Is(target error) bool {
	switch e.Code {
	case types.CodeInvalidTransition:
		return target == engine.ErrInvalidTransition
	case types.CodeBannedSelection:
		return target == engine.ErrBannedSelection
	case types.CodeStaleAction:
		return target == ErrStaleAction
	}
	return false
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithLogger(log *zap.Logger) Option { return func(c *Client) { c.log = log } }

func WithDebounce(d time.Duration) Option { return func(c *Client) { c.debounce = d } }

func WithReconciler(r *reconcile.Reconciler) Option { return func(c *Client) { c.rec = r } }

type Client struct {
	base       string
	key        string
	token      string
	http       *http.Client
	log        *zap.Logger
	rec        *reconcile.Reconciler
	debounce   time.Duration
	checkEvery time.Duration

	mu       sync.Mutex
	settings *engine.Settings
	flush    *time.Timer
}

func New(baseURL, key, token string, role engine.Role, opts ...Option) *Client {
	c := &Client{
		base:       strings.TrimRight(baseURL, "/"),
		key:        key,
		token:      token,
		http:       http.DefaultClient,
		log:        zap.NewNop(),
		debounce:   defaultDebounce,
		checkEvery: defaultCheckEvery,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rec == nil {
		c.rec = reconcile.New(role)
	}
	return c
}

func (c *Client) Reconciler() *reconcile.Reconciler { return c.rec }

// Fetch is the fallback read.
func (c *Client) Fetch(ctx context.Context) (types.Snapshot, error) {
	var snap types.Snapshot
	err := c.do(ctx, http.MethodGet, c.sessionPath(""), nil, &snap)
	return snap, err
}

// Submit applies cmd optimistically and sends it. A server rejection rolls
// the view back; a transport failure leaves the expectation pending so the
// next push or fallback read settles it.
func (c *Client) Submit(ctx context.Context, cmd engine.Command) (types.Snapshot, error) {
	cmd, err := c.rec.Begin(cmd)
	if err != nil {
		return types.Snapshot{}, err
	}
	var snap types.Snapshot
	err = c.do(ctx, http.MethodPost, c.sessionPath("/actions"), cmd, &snap)
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		c.rec.Fail()
		return types.Snapshot{}, err
	case err != nil:
		return types.Snapshot{}, err
	}
	c.rec.Receive(snap)
	return snap, nil
}

// UpdateSettings queues an owner settings change; bursts collapse into one PUT.
func (c *Client) UpdateSettings(cfg engine.Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = &cfg
	if c.flush != nil {
		c.flush.Stop()
	}
	c.flush = time.AfterFunc(c.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := c.Flush(ctx); err != nil {
			c.log.Warn("settings update failed", zap.String("session", c.key), zap.Error(err))
		}
	})
}

// Flush sends any queued settings now.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	cfg := c.settings
	c.settings = nil
	if c.flush != nil {
		c.flush.Stop()
		c.flush = nil
	}
	c.mu.Unlock()

	if cfg == nil {
		return nil
	}
	var snap types.Snapshot
	if err := c.do(ctx, http.MethodPut, c.sessionPath(""), cfg, &snap); err != nil {
		return err
	}
	c.rec.Receive(snap)
	return nil
}

// Watch races the push subscription against a fallback read, then keeps the
// reconciler fed until ctx ends or the stream fails. onChange sees every
// view update.
func (c *Client) Watch(ctx context.Context, onChange func(types.Snapshot)) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		snap, err := c.Fetch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Debug("initial fetch failed", zap.Error(err))
			}
			return nil
		}
		c.rec.Resync(snap)
		c.notify(onChange)
		return nil
	})

	g.Go(func() error { return c.stream(ctx, onChange) })

	g.Go(func() error {
		ticker := time.NewTicker(c.checkEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if !errors.Is(c.rec.Check(), reconcile.ErrSyncTimeout) {
					continue
				}
				snap, err := c.Fetch(ctx)
				if err != nil {
					c.log.Debug("resync fetch failed", zap.Error(err))
					continue
				}
				c.rec.Resync(snap)
				c.notify(onChange)
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// stream keeps a push subscription open. A GoingAway close means the
// session is gone or this subscriber was dropped as slow; the fallback read
// tells which, and a live session is resynced and redialed.
func (c *Client) stream(ctx context.Context, onChange func(types.Snapshot)) error {
	for {
		err := c.subscribe(ctx, onChange)
		if !errors.Is(err, errGoingAway) {
			return err
		}
		snap, ferr := c.Fetch(ctx)
		switch {
		case errors.Is(ferr, ErrStaleAction):
			return ErrStaleAction
		case ferr != nil:
			return fmt.Errorf("draft client: refetch: %w", ferr)
		}
		c.rec.Resync(snap)
		c.notify(onChange)

		c.log.Debug("push channel closed, redialing", zap.String("session", c.key))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(redialDelay):
		}
	}
}

func (c *Client) subscribe(ctx context.Context, onChange func(types.Snapshot)) error {
	conn, _, err := websocket.Dial(ctx, c.wsURL(), nil)
	if err != nil {
		return fmt.Errorf("draft client: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(maxMessage)

	for {
		var msg types.ServerMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return errGoingAway
			}
			return fmt.Errorf("draft client: read: %w", err)
		}
		switch msg.Type {
		case types.MsgSnapshot, types.MsgUpdate:
			snap, ok := msg.Snapshot()
			if !ok {
				continue
			}
			c.rec.Receive(snap)
			c.notify(onChange)
		case types.MsgError:
			c.log.Debug("server error", zap.String("code", msg.Code), zap.String("error", msg.Error))
		}
	}
}

func (c *Client) notify(onChange func(types.Snapshot)) {
	if onChange == nil {
		return
	}
	if view, ok := c.rec.View(); ok {
		onChange(view)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var er types.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&er)
		return &APIError{Status: resp.StatusCode, Code: er.Code, Message: er.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) sessionPath(suffix string) string {
	return "/sessions/" + url.PathEscape(c.key) + suffix
}

func (c *Client) wsURL() string {
	u := c.base
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	q := url.Values{"key": {c.key}}
	if c.token != "" {
		q.Set("token", c.token)
	}
	return u + "/ws?" + q.Encode()
}
