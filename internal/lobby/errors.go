package lobby

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/starrail-draft-backend/pkg/engine"
	"github.com/DoyleJ11/starrail-draft-backend/pkg/types"
)

var (
	ErrStaleAction  = errors.New("stale action")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrPersist      = errors.New("persist failed")

	ErrClosed       = fmt.Errorf("%w: session closed", ErrStaleAction)
	ErrTokenRevoked = fmt.Errorf("%w: token was rotated", ErrStaleAction)
)

// Code maps an error to the wire code clients switch on.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, engine.ErrBannedSelection):
		return types.CodeBannedSelection
	case errors.Is(err, engine.ErrInvalidTransition):
		return types.CodeInvalidTransition
	case errors.Is(err, ErrStaleAction):
		return types.CodeStaleAction
	case errors.Is(err, ErrUnauthorized):
		return types.CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return types.CodeForbidden
	case errors.Is(err, ErrPersist):
		return types.CodePersist
	default:
		return types.CodeInternal
	}
}
