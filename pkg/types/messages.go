package types

import (
	"time"

	"github.com/DoyleJ11/starrail-draft-backend/pkg/engine"
)

// Client -> Server (websocket, JSON text frames)
// action:
//   ref: string           echoed in the reply
//   action: { op, side, index, character, lightcone, value, locked, paused, mode }
//
// sync:
//   ref: string
//   asks the server to bring the timer up to date; replied with ack
//
// Server -> Client
// snapshot:               first message after connecting
//   version, state, derived, serverTime
//
// update:                 every accepted mutation, in order
//   version, state, derived, serverTime
//
// ack:
//   ref, version
//
// error:
//   ref, code, error      code is one of the Code* constants

// Server → client message types.
const (
	MsgSnapshot = "snapshot"
	MsgUpdate   = "update"
	MsgAck      = "ack"
	MsgError    = "error"
)

// Client → server message types.
const (
	MsgAction = "action"
	MsgSync   = "sync"
)

type ClientMessage struct {
	Type   string          `json:"type"`
	Ref    string          `json:"ref,omitempty"`
	Action *engine.Command `json:"action,omitempty"`
}

type ServerMessage struct {
	Type       string          `json:"type"`
	Ref        string          `json:"ref,omitempty"`
	Version    int             `json:"version,omitempty"`
	State      *engine.Session `json:"state,omitempty"`
	Derived    *engine.Derived `json:"derived,omitempty"`
	ServerTime *time.Time      `json:"serverTime,omitempty"`
	Error      string          `json:"error,omitempty"`
	Code       string          `json:"code,omitempty"`
}
