// Package store defines the Store contract consumed by Log (spec section
// 4.2) and ships two implementations: Memory, the in-memory reference
// store, and FileStore, a WAL-backed durable store adapted from the
// teacher's write-ahead log and snapshot machinery. Both satisfy the same
// conformance suite in conformance_test.go.
package store

import (
	"context"
	"errors"

	"actionsync/internal/action"
)

// Order selects the iteration order returned by Get.
type Order string

const (
	// OrderAdded iterates by descending Store-assigned "added" sequence —
	// the default order, and the one sync streaming uses.
	OrderAdded Order = "added"
	// OrderCreated iterates by descending action Id (creation order).
	OrderCreated Order = "created"
)

// Entry is one (action, meta) pair as returned by Get/ByID.
type Entry struct {
	Action action.Action
	Meta   action.Meta
}

// Page is a lazy slice of a Store's contents. Next is nil once exhausted.
type Page struct {
	Entries []Entry
	Next    func(ctx context.Context) (Page, error)
}

// Criteria filters RemoveReason to a subset of matching entries by
// Store-added sequence or by action time, per spec section 4.1.
type Criteria struct {
	MinAdded    *int64
	MaxAdded    *int64
	OlderThan   *int64
	YoungerThan *int64
}

// Match reports whether meta satisfies every bound set on c.
func (c Criteria) Match(meta action.Meta) bool {
	if c.MinAdded != nil && meta.Added < *c.MinAdded {
		return false
	}
	if c.MaxAdded != nil && meta.Added > *c.MaxAdded {
		return false
	}
	if c.OlderThan != nil && meta.Time >= *c.OlderThan {
		return false
	}
	if c.YoungerThan != nil && meta.Time <= *c.YoungerThan {
		return false
	}
	return true
}

// SyncCursor is a per-peer watermark pair in "added" space, used to
// resume streaming after a reconnect (spec section 3, "Sync cursor").
type SyncCursor struct {
	Sent     int64
	Received int64
}

// ErrAlreadyExists is a sentinel some implementations may use internally;
// Store methods instead report duplicates via a plain boolean, matching
// spec section 4.2 ("add rejects duplicates by id").
var ErrAlreadyExists = errors.New("store: id already exists")

// Store is the logical id -> (action, meta) mapping spec section 4.2
// specifies. Implementations must be safe for concurrent use; the
// reference Memory store serializes every call with a mutex, matching
// the teacher's own "reference implementation serializes them in call
// order" note.
type Store interface {
	// Add persists action/meta and returns the stored meta (carrying
	// Added). The second result is false, with a zero Meta, if meta.ID
	// already exists.
	Add(ctx context.Context, act action.Action, meta action.Meta) (action.Meta, bool, error)

	// ByID returns the stored pair for id, if any.
	ByID(ctx context.Context, id action.Id) (action.Action, action.Meta, bool, error)

	// Has reports whether id is present.
	Has(ctx context.Context, id action.Id) (bool, error)

	// Remove deletes id outright (used when its last reason is dropped).
	Remove(ctx context.Context, id action.Id) error

	// ChangeMeta merges diff into the stored meta for id. Returns false,
	// with a zero Meta, if id is not present. diff must not attempt to
	// change "id" or "added" — callers (Log) are responsible for
	// rejecting that before calling ChangeMeta.
	ChangeMeta(ctx context.Context, id action.Id, diff map[string]any) (action.Meta, bool, error)

	// Get returns the first page of entries in the given order.
	Get(ctx context.Context, order Order) (Page, error)

	// LastAdded returns the highest "added" sequence number assigned so
	// far, or 0 if the store is empty.
	LastAdded(ctx context.Context) (int64, error)

	// LastSynced returns the sync cursor recorded for peer.
	LastSynced(ctx context.Context, peer string) (SyncCursor, error)

	// SetLastSynced merges (non-zero fields win) the sync cursor for peer.
	SetLastSynced(ctx context.Context, peer string, cursor SyncCursor) error
}
