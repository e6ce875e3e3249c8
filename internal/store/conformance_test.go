package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"actionsync/internal/action"
	"actionsync/internal/store"
)

// runConformance exercises every Store implementation against the same
// suite spec.md section 6 requires: reject duplicate ids, ByID returns
// the stored tuple, Get in both orderings returns everything, ChangeMeta
// on an unknown id returns false, ChangeMeta replacing an entry's reasons,
// and SetLastSynced/LastSynced round-tripping.
func runConformance(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("rejects duplicate ids", func(t *testing.T) {
		s := newStore(t)
		id := action.Id{Time: 1, NodeID: "a", Sequence: 1}
		meta := action.Meta{ID: id, Time: 1, Reasons: []string{"test"}}
		act := action.Action{"type": "A"}

		stored, ok, err := s.Add(ctx, act, meta)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 1, stored.Added)

		_, ok, err = s.Add(ctx, act, meta)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("ByID returns the stored tuple", func(t *testing.T) {
		s := newStore(t)
		id := action.Id{Time: 2, NodeID: "a", Sequence: 1}
		act := action.Action{"type": "A", "x": 1.0}
		meta := action.Meta{ID: id, Time: 2, Reasons: []string{"test"}}

		_, _, err := s.Add(ctx, act, meta)
		require.NoError(t, err)

		gotAct, gotMeta, ok, err := s.ByID(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "A", gotAct.Type())
		require.Equal(t, id, gotMeta.ID)
	})

	t.Run("Get returns everything in both orders", func(t *testing.T) {
		s := newStore(t)
		for i := int64(1); i <= 3; i++ {
			id := action.Id{Time: i, NodeID: "a", Sequence: 0}
			_, _, err := s.Add(ctx, action.Action{"type": "A"}, action.Meta{ID: id, Time: i, Reasons: []string{"r"}})
			require.NoError(t, err)
		}

		added, err := s.Get(ctx, store.OrderAdded)
		require.NoError(t, err)
		require.Len(t, added.Entries, 3)
		require.True(t, added.Entries[0].Meta.Added > added.Entries[1].Meta.Added)

		created, err := s.Get(ctx, store.OrderCreated)
		require.NoError(t, err)
		require.Len(t, created.Entries, 3)
		require.EqualValues(t, 3, created.Entries[0].Meta.ID.Time)
		require.EqualValues(t, 1, created.Entries[2].Meta.ID.Time)
	})

	t.Run("ChangeMeta on unknown id returns false", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.ChangeMeta(ctx, action.Id{Time: 99, NodeID: "a"}, map[string]any{"reasons": []string{}})
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("SetLastSynced merges with LastSynced", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SetLastSynced(ctx, "peer1", store.SyncCursor{Sent: 5}))
		require.NoError(t, s.SetLastSynced(ctx, "peer1", store.SyncCursor{Received: 7}))

		cur, err := s.LastSynced(ctx, "peer1")
		require.NoError(t, err)
		require.EqualValues(t, 5, cur.Sent)
		require.EqualValues(t, 7, cur.Received)
	})

	t.Run("ChangeMeta replaces reasons", func(t *testing.T) {
		s := newStore(t)
		id := action.Id{Time: 10, NodeID: "a"}
		_, _, err := s.Add(ctx, action.Action{"type": "A"}, action.Meta{ID: id, Time: 10, Reasons: []string{"r1", "r2"}})
		require.NoError(t, err)

		_, _, err = s.ChangeMeta(ctx, id, map[string]any{"reasons": []string{"r2"}})
		require.NoError(t, err)

		_, meta, ok, err := s.ByID(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []string{"r2"}, meta.Reasons)
	})
}

func TestMemoryConformance(t *testing.T) {
	runConformance(t, func(t *testing.T) store.Store {
		return store.NewMemory()
	})
}

func TestFileStoreConformance(t *testing.T) {
	runConformance(t, func(t *testing.T) store.Store {
		fs, err := store.NewFileStore(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { _ = fs.Close() })
		return fs
	})
}
