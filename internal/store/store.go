package store

import (
	"context"
	"errors"

	"github.com/DoyleJ11/starrail-draft-backend/internal/auth"
	"github.com/DoyleJ11/starrail-draft-backend/pkg/engine"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExists   = errors.New("session already exists")
)

// Record is everything persisted per session. Credentials never leave the
// server; Session is what gets broadcast.
type Record struct {
	Session     engine.Session
	Credentials auth.Credentials
	Version     int
}

func (r Record) Key() string { return r.Session.Key }

type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, key string) (Record, error)
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context, key string) error
	Close() error
}
