package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/starrail-draft-backend/internal/auth"
	"github.com/DoyleJ11/starrail-draft-backend/pkg/engine"
	"github.com/DoyleJ11/starrail-draft-backend/internal/lobby"
	"github.com/DoyleJ11/starrail-draft-backend/internal/store"
	"github.com/DoyleJ11/starrail-draft-backend/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(t *testing.T, key string) store.Record {
	t.Helper()
	s, err := engine.NewSession(key, engine.DefaultSettings(), time.Now())
	require.NoError(t, err)
	creds, _, err := auth.Issue(key)
	require.NoError(t, err)
	return store.Record{Session: s, Credentials: creds}
}

func newHub(t *testing.T) (*Hub, store.Store) {
	t.Helper()
	st := store.NewMemory()
	h := NewHub(context.Background(), lobby.Config{Store: st})
	t.Cleanup(func() { _ = h.Shutdown(context.Background()) })
	return h, st
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h, _ := newHub(t)
	ctx := context.Background()

	lb1, err := h.Create(ctx, newRecord(t, "ZED123"))
	require.NoError(t, err)
	lb2, err := h.Get(ctx, "ZED123")
	require.NoError(t, err)

	if lb1 == nil || lb2 == nil || lb1 != lb2 {
		t.Fatalf("expected same lobby pointer")
	}

	_, err = h.Create(ctx, newRecord(t, "ZED123"))
	assert.ErrorIs(t, err, ErrExists)
}

func TestHub_GetUnknown(t *testing.T) {
	h, _ := newHub(t)
	_, err := h.Get(context.Background(), "NOPE00")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, err, lobby.ErrStaleAction)
}

func TestHub_LoadsFromStoreOnce(t *testing.T) {
	h, st := newHub(t)
	ctx := context.Background()
	require.NoError(t, st.Create(ctx, newRecord(t, "LOAD01")))

	const n = 8
	got := make([]*lobby.Lobby, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lb, err := h.Get(ctx, "LOAD01")
			assert.NoError(t, err)
			got[i] = lb
		}()
	}
	wg.Wait()

	for _, lb := range got {
		require.NotNil(t, lb)
		assert.Same(t, got[0], lb)
	}
}

func TestHub_Remove(t *testing.T) {
	h, st := newHub(t)
	ctx := context.Background()

	lb, err := h.Create(ctx, newRecord(t, "DEL001"))
	require.NoError(t, err)
	out := make(chan types.Snapshot, 2)
	require.NoError(t, lb.Join(ctx, "c1", out))
	<-out

	require.NoError(t, h.Remove(ctx, "DEL001"))

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("subscriber was not closed")
	}

	_, err = st.Get(ctx, "DEL001")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = h.Get(ctx, "DEL001")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, h.Remove(ctx, "DEL001"), ErrSessionNotFound)
}

func TestHub_ShutdownStopsLobbies(t *testing.T) {
	st := store.NewMemory()
	h := NewHub(context.Background(), lobby.Config{Store: st})
	ctx := context.Background()

	lb, err := h.Create(ctx, newRecord(t, "SHUT01"))
	require.NoError(t, err)
	require.NoError(t, h.Shutdown(ctx))

	select {
	case <-lb.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("lobby still running after hub shutdown")
	}
	_, err = h.Get(ctx, "SHUT01")
	assert.ErrorIs(t, err, ErrHubClosed)
}
