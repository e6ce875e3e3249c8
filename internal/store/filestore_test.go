package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"actionsync/internal/action"
	"actionsync/internal/store"
)

func TestFileStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs, err := store.NewFileStore(dir)
	require.NoError(t, err)

	id := action.Id{Time: 1, NodeID: "a", Sequence: 0}
	_, _, err = fs.Add(ctx, action.Action{"type": "A"}, action.Meta{ID: id, Time: 1, Reasons: []string{"r"}})
	require.NoError(t, err)
	require.NoError(t, fs.Close())

	reopened, err := store.NewFileStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	_, meta, ok, err := reopened.ByID(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"r"}, meta.Reasons)
}

func TestFileStoreSnapshotTruncatesWAL(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs, err := store.NewFileStore(dir)
	require.NoError(t, err)

	for i := int64(1); i <= 5; i++ {
		id := action.Id{Time: i, NodeID: "a"}
		_, _, err := fs.Add(ctx, action.Action{"type": "A"}, action.Meta{ID: id, Time: i, Reasons: []string{"r"}})
		require.NoError(t, err)
	}
	require.NoError(t, fs.Snapshot(ctx))
	require.NoError(t, fs.Close())

	reopened, err := store.NewFileStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	page, err := reopened.Get(ctx, store.OrderAdded)
	require.NoError(t, err)
	require.Len(t, page.Entries, 5)
}
