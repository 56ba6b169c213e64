package clinic

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client)
}

func TestStoreGetReturnsDefaultWhenMissing(t *testing.T) {
	store := newTestStore(t)

	cfg, err := store.Get(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", cfg.OrgID)
	assert.True(t, cfg.HasResource("loc-A"))
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg := DefaultConfig("org-2")
	cfg.Name = "Side Street Clinic"
	cfg.ClosedWeekday = "Monday"
	cfg.Resources = []Resource{{ID: "chair-1", Name: "Chair 1"}}

	require.NoError(t, store.Set(ctx, cfg))

	got, err := store.Get(ctx, "org-2")
	require.NoError(t, err)
	assert.Equal(t, "Side Street Clinic", got.Name)
	assert.Equal(t, "Monday", got.ClosedWeekday)
	assert.True(t, got.HasResource("chair-1"))
	assert.False(t, got.HasResource("loc-A"))
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(nil)
	cfg, err := src.Get(context.Background(), "whatever")
	require.NoError(t, err)
	assert.Equal(t, "whatever", cfg.OrgID)

	fixed := DefaultConfig("fixed")
	src = NewStaticSource(fixed)
	cfg, err = src.Get(context.Background(), "ignored")
	require.NoError(t, err)
	assert.Same(t, fixed, cfg)
}
