// Package reconcile keeps a client's view of a draft session consistent with
// the server while letting local actions show up immediately.
package reconcile

import (
	"errors"
	"sync"
	"time"

	"github.com/DoyleJ11/starrail-draft-backend/pkg/engine"
	"github.com/DoyleJ11/starrail-draft-backend/pkg/types"
)

const DefaultWindow = 3 * time.Second

var (
	ErrSyncTimeout = errors.New("sync timeout: expected state never arrived")
	ErrBusy        = errors.New("an action is already awaiting confirmation")
	ErrNoState     = errors.New("no authoritative state yet")
)

type Cmp int

const (
	AtLeast Cmp = iota
	AtMost
	Equal
)

// Expectation describes the server state that confirms an optimistic action.
type Expectation struct {
	Turn     int
	Cmp      Cmp
	Deadline time.Time
}

func (e Expectation) Satisfied(turn int) bool {
	switch e.Cmp {
	case AtLeast:
		return turn >= e.Turn
	case AtMost:
		return turn <= e.Turn
	default:
		return turn == e.Turn
	}
}

// ExpectationFor derives what confirms cmd when issued at turn.
func ExpectationFor(cmd engine.Command, turn int, deadline time.Time) Expectation {
	switch cmd.Type {
	case engine.CmdPick, engine.CmdBan:
		return Expectation{Turn: turn + 1, Cmp: AtLeast, Deadline: deadline}
	case engine.CmdUndoLast:
		return Expectation{Turn: turn - 1, Cmp: AtMost, Deadline: deadline}
	default:
		return Expectation{Turn: turn, Cmp: Equal, Deadline: deadline}
	}
}

type Option func(*Reconciler)

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func WithWindow(d time.Duration) Option {
	return func(r *Reconciler) { r.window = d }
}

// Reconciler is safe for concurrent use.
type Reconciler struct {
	mu     sync.Mutex
	role   engine.Role
	now    func() time.Time
	window time.Duration

	trusted types.Snapshot // last snapshot adopted from the server
	view    types.Snapshot // what the user sees
	have    bool
	pending *Expectation
	skew    time.Duration
}

func New(role engine.Role, opts ...Option) *Reconciler {
	r := &Reconciler{role: role, now: time.Now, window: DefaultWindow}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Begin applies cmd locally and returns the command to submit. Rejections
// from the local engine are returned without touching the view.
func (r *Reconciler) Begin(cmd engine.Command) (engine.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.have {
		return cmd, ErrNoState
	}
	if r.pending != nil {
		return cmd, ErrBusy
	}
	cmd.Actor = r.role
	if r.role == engine.RoleOwner && cmd.Side == "" {
		cmd.Side = ownerSide(r.view.State, cmd)
	}

	now := r.now()
	_, next, err := engine.Apply(r.view.State, cmd, now.Add(r.skew))
	if err != nil {
		return cmd, err
	}
	exp := ExpectationFor(cmd, r.view.State.CurrentTurn, now.Add(r.window))
	r.pending = &exp
	r.view.State = next
	r.view.Derived.Phase = engine.DerivePhase(next)
	return cmd, nil
}

// Receive feeds a pushed snapshot and reports whether it was adopted
// wholesale.
func (r *Reconciler) Receive(snap types.Snapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.have && snap.Version <= r.trusted.Version {
		return false
	}
	r.trackSkew(snap)
	if r.pending != nil && r.now().Before(r.pending.Deadline) && !r.pending.Satisfied(snap.State.CurrentTurn) {
		// Not the state we are waiting for; only the clock moves.
		r.trusted = snap
		r.view.State.Timer = snap.State.Timer
		r.view.Derived.Timer = snap.Derived.Timer
		r.view.Version = snap.Version
		return false
	}
	r.adopt(snap)
	return true
}

// Check reports ErrSyncTimeout once the pending expectation has expired. The
// optimistic view is rolled back to the last trusted snapshot; callers should
// refetch and Resync.
func (r *Reconciler) Check() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil || r.now().Before(r.pending.Deadline) {
		return nil
	}
	r.pending = nil
	r.view = r.trusted
	return ErrSyncTimeout
}

// Resync adopts a fallback read unless pushes have already moved past it.
func (r *Reconciler) Resync(snap types.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = nil
	if r.have && snap.Version < r.trusted.Version {
		r.view = r.trusted
		return
	}
	r.trackSkew(snap)
	r.adopt(snap)
}

// Fail drops the optimistic edit after the server rejected the action.
func (r *Reconciler) Fail() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = nil
	r.view = r.trusted
}

func (r *Reconciler) View() (types.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view, r.have
}

func (r *Reconciler) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending != nil
}

func (r *Reconciler) Pending() (Expectation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return Expectation{}, false
	}
	return *r.pending, true
}

// Timer extrapolates the displayed clock to the local now, corrected for the
// server clock offset seen in the last snapshot.
func (r *Reconciler) Timer() engine.TimerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return engine.ProjectTimer(r.view.State, r.now().Add(r.skew))
}

// ownerSide is the side an owner command acts for when none is named: the
// slot it touches. Locks and pauses must name their side.
func ownerSide(s engine.Session, cmd engine.Command) engine.Side {
	switch cmd.Type {
	case engine.CmdPick, engine.CmdBan:
		if slot, ok := s.ActiveSlot(); ok {
			return slot.Side
		}
	case engine.CmdUndoLast:
		if last := s.CurrentTurn - 1; last >= 0 && last < len(s.Sequence) {
			return s.Sequence[last].Side
		}
	case engine.CmdSetEidolon, engine.CmdSetLightcone, engine.CmdSetSuperimpose:
		if cmd.Index >= 0 && cmd.Index < len(s.Sequence) {
			return s.Sequence[cmd.Index].Side
		}
	}
	return ""
}

func (r *Reconciler) adopt(snap types.Snapshot) {
	r.pending = nil
	r.trusted = snap
	r.view = snap
	r.have = true
}

func (r *Reconciler) trackSkew(snap types.Snapshot) {
	if !snap.ServerTime.IsZero() {
		r.skew = snap.ServerTime.Sub(r.now())
	}
}
