package types

import "github.com/DoyleJ11/starrail-draft-backend/pkg/engine"

// Error codes carried by error replies, both HTTP and websocket.
const (
	CodeInvalidTransition = "invalid_transition"
	CodeBannedSelection   = "banned_selection"
	CodeStaleAction       = "stale_action"
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodePersist           = "persist_failed"
	CodeRateLimited       = "rate_limited"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal"
)

type CreateSessionRequest struct {
	Names           engine.PerSide[string]    `json:"names"`
	Mode            engine.Mode               `json:"mode"`
	Featured        []engine.FeaturedOverride `json:"featured"`
	CostProfile     string                    `json:"costProfile"`
	CycleBreakpoint int                       `json:"cycleBreakpoint"`
	PlayerCount     int                       `json:"playerCount"`
	Timer           *engine.TimerSettings     `json:"timer,omitempty"`
	// Picks seeds an imported draft; entries fill slots from the start.
	Picks []*engine.Pick `json:"picks,omitempty"`
}

// Settings fills unset request fields from the defaults.
func (r CreateSessionRequest) Settings() engine.Settings {
	cfg := engine.DefaultSettings()
	cfg.Names = r.Names
	if r.Mode != "" {
		cfg.Mode = r.Mode
	}
	cfg.Featured = r.Featured
	if r.CostProfile != "" {
		cfg.CostProfile = r.CostProfile
	}
	if r.CycleBreakpoint != 0 {
		cfg.CycleBreakpoint = r.CycleBreakpoint
	}
	if r.PlayerCount != 0 {
		cfg.PlayerCount = r.PlayerCount
	}
	if r.Timer != nil {
		cfg.Timer = *r.Timer
	}
	return cfg
}

type CreateSessionResponse struct {
	Key        string   `json:"key"`
	OwnerToken string   `json:"ownerToken"`
	BlueToken  string   `json:"blueToken"`
	RedToken   string   `json:"redToken"`
	Snapshot   Snapshot `json:"snapshot"`
}

type JoinRequest struct {
	Token string `json:"token"`
}

type JoinResponse struct {
	Key  string      `json:"key"`
	Role engine.Role `json:"role"`
}

type TokenResponse struct {
	Side  engine.Side `json:"side"`
	Token string      `json:"token"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
