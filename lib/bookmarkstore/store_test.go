package bookmarkstore

import (
	"context"
	"testing"

	"tap-bigmarker/lib/singer"

	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	state, err := store.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, state.Bookmarks)

	state.Set("conferences", "last_date", int64(1714566600))
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	last, ok := loaded.GetInt64("conferences", "last_date")
	require.True(t, ok)
	require.Equal(t, int64(1714566600), last)
}

func TestSaveOverwritesBookmark(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	state := singer.NewState()
	state.Set("conferences", "last_date", int64(100))
	require.NoError(t, store.Save(ctx, state))

	state.Set("conferences", "last_date", int64(200))
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	last, ok := loaded.GetInt64("conferences", "last_date")
	require.True(t, ok)
	require.Equal(t, int64(200), last)
}
