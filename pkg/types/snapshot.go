package types

import (
	"time"

	"github.com/DoyleJ11/starrail-draft-backend/pkg/engine"
)

// Snapshot:
//   version: number        bumps once per accepted mutation
//   state: session         picks, turn, locks, scores, timer bookkeeping
//   derived: projection    phase, costs, totals, effective bans, timer at serverTime
//   serverTime: timestamp  lets clients correct for clock skew

// Snapshot is the canonical broadcast unit.
type Snapshot struct {
	Version    int            `json:"version"`
	State      engine.Session `json:"state"`
	Derived    engine.Derived `json:"derived"`
	ServerTime time.Time      `json:"serverTime"`
}

func SnapshotMessage(kind string, snap Snapshot) ServerMessage {
	return ServerMessage{
		Type:       kind,
		Version:    snap.Version,
		State:      &snap.State,
		Derived:    &snap.Derived,
		ServerTime: &snap.ServerTime,
	}
}

// Snapshot reassembles a snapshot or update message.
func (m ServerMessage) Snapshot() (Snapshot, bool) {
	if m.State == nil || (m.Type != MsgSnapshot && m.Type != MsgUpdate) {
		return Snapshot{}, false
	}
	snap := Snapshot{Version: m.Version, State: *m.State}
	if m.Derived != nil {
		snap.Derived = *m.Derived
	}
	if m.ServerTime != nil {
		snap.ServerTime = *m.ServerTime
	}
	return snap, true
}
