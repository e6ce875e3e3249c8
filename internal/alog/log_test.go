package alog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"actionsync/internal/action"
	"actionsync/internal/alog"
	"actionsync/internal/store"
)

func newLog(t *testing.T, nodeID string, now func() int64) *alog.Log {
	t.Helper()
	l, err := alog.New(nodeID, store.NewMemory(), alog.Options{Now: now})
	require.NoError(t, err)
	return l
}

func TestGenerateIDIsMonotone(t *testing.T) {
	clock := int64(100)
	l := newLog(t, "node1", func() int64 { return clock })

	a := l.GenerateID()
	b := l.GenerateID()
	require.Equal(t, 1, action.Compare(b, a))

	clock = 50 // clock moved backward
	c := l.GenerateID()
	require.Equal(t, 1, action.Compare(c, b))
}

func TestAddRejectsMissingType(t *testing.T) {
	l := newLog(t, "node1", func() int64 { return 1 })
	_, _, err := l.Add(context.Background(), action.Action{}, nil)
	require.Error(t, err)
}

func TestReasonlessActionIsBroadcastNotStored(t *testing.T) {
	l := newLog(t, "node1", func() int64 { return 1 })
	var added []action.Action
	l.OnAdd(func(act action.Action, meta *action.Meta) { added = append(added, act) })

	meta, ok, err := l.Add(context.Background(), action.Action{"type": "A"}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, meta.Added)
	require.Len(t, added, 1)

	var seen int
	require.NoError(t, l.Each(context.Background(), alog.EachOptions{}, func(action.Action, *action.Meta) (bool, error) {
		seen++
		return true, nil
	}))
	require.Zero(t, seen)
}

func TestDuplicateIDReturnsFalse(t *testing.T) {
	l := newLog(t, "node1", func() int64 { return 1 })
	id := action.Id{Time: 1, NodeID: "node1", Sequence: 0}

	_, ok, err := l.Add(context.Background(), action.Action{"type": "A"}, &action.Meta{ID: id, Reasons: []string{"t"}})
	require.NoError(t, err)
	require.True(t, ok)

	var addCount int
	l.OnAdd(func(action.Action, *action.Meta) { addCount++ })

	_, ok, err = l.Add(context.Background(), action.Action{"type": "A"}, &action.Meta{ID: id, Reasons: []string{"t"}})
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, addCount)
}

func TestBeforeCanAddReasons(t *testing.T) {
	l := newLog(t, "node1", func() int64 { return 1 })
	l.OnBefore(func(act action.Action, meta *action.Meta) {
		meta.Reasons = append(meta.Reasons, "keep")
	})

	meta, ok, err := l.Add(context.Background(), action.Action{"type": "A"}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, meta.Added)
}

func TestChangeMetaRejectsIDAndAdded(t *testing.T) {
	l := newLog(t, "node1", func() int64 { return 1 })
	id := action.Id{Time: 1, NodeID: "node1"}

	_, err := l.ChangeMeta(context.Background(), id, map[string]any{"id": action.Id{}})
	require.Error(t, err)

	_, err = l.ChangeMeta(context.Background(), id, map[string]any{"added": int64(5)})
	require.Error(t, err)
}

func TestRemoveReasonDeletesSoleReasonAndStripsOthers(t *testing.T) {
	l := newLog(t, "node1", func() int64 { return 1 })
	ctx := context.Background()

	idA := action.Id{Time: 1, NodeID: "node1"}
	idB := action.Id{Time: 2, NodeID: "node1"}
	_, _, err := l.Add(ctx, action.Action{"type": "A"}, &action.Meta{ID: idA, Reasons: []string{"only"}})
	require.NoError(t, err)
	_, _, err = l.Add(ctx, action.Action{"type": "A"}, &action.Meta{ID: idB, Reasons: []string{"only", "also"}})
	require.NoError(t, err)

	var cleaned []action.Id
	l.OnClean(func(act action.Action, meta *action.Meta) { cleaned = append(cleaned, meta.ID) })

	require.NoError(t, l.RemoveReason(ctx, "only", store.Criteria{}))

	require.Equal(t, []action.Id{idA}, cleaned)

	_, meta, ok, err := l.Store().ByID(ctx, idB)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"also"}, meta.Reasons)
}

func TestOnceListenerFiresOnlyOnce(t *testing.T) {
	l := newLog(t, "node1", func() int64 { return 1 })
	var calls int
	l.OnceAdd(func(action.Action, *action.Meta) { calls++ })

	_, _, err := l.Add(context.Background(), action.Action{"type": "A"}, nil)
	require.NoError(t, err)
	_, _, err = l.Add(context.Background(), action.Action{"type": "A"}, nil)
	require.NoError(t, err)

	require.Equal(t, 1, calls)
}
