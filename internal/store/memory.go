package store

import (
	"context"
	"sort"
	"sync"

	"actionsync/internal/action"
)

// Memory is the in-memory reference Store, adapted from the teacher's
// Store type (internal/store/store.go in the teacher repo): an entry map
// plus an insertion-order slice and an "added" counter, guarded by one
// mutex, keyed here by action.Id instead of a string KV key.
type Memory struct {
	mu      sync.Mutex
	added   int64
	entries map[action.Id]Entry
	order   []action.Id // insertion order == ascending "added"
	synced  map[string]SyncCursor
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[action.Id]Entry),
		synced:  make(map[string]SyncCursor),
	}
}

func (s *Memory) Add(_ context.Context, act action.Action, meta action.Meta) (action.Meta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[meta.ID]; exists {
		return action.Meta{}, false, nil
	}

	s.added++
	meta.Added = s.added
	s.entries[meta.ID] = Entry{Action: act.Clone(), Meta: *meta.Clone()}
	s.order = append(s.order, meta.ID)
	return *meta.Clone(), true, nil
}

func (s *Memory) ByID(_ context.Context, id action.Id) (action.Action, action.Meta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, action.Meta{}, false, nil
	}
	return e.Action.Clone(), *e.Meta.Clone(), true, nil
}

func (s *Memory) Has(_ context.Context, id action.Id) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok, nil
}

func (s *Memory) Remove(_ context.Context, id action.Id) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return nil
	}
	delete(s.entries, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Memory) ChangeMeta(_ context.Context, id action.Id, diff map[string]any) (action.Meta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return action.Meta{}, false, nil
	}

	meta := *e.Meta.Clone()
	if reasons, ok := diff["reasons"]; ok {
		if rs, ok := reasons.([]string); ok {
			meta.Reasons = rs
		}
	}
	if extra, ok := diff["extra"]; ok {
		if ex, ok := extra.(map[string]any); ok {
			if meta.Extra == nil {
				meta.Extra = make(map[string]any, len(ex))
			}
			for k, v := range ex {
				meta.Extra[k] = v
			}
		}
	}
	for k, v := range diff {
		switch k {
		case "reasons", "extra", "id", "added":
			continue
		case "time":
			if t, ok := v.(int64); ok {
				meta.Time = t
			}
		default:
			if meta.Extra == nil {
				meta.Extra = make(map[string]any)
			}
			meta.Extra[k] = v
		}
	}

	e.Meta = meta
	s.entries[id] = e
	return *meta.Clone(), true, nil
}

func (s *Memory) Get(_ context.Context, order Order) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]action.Id, len(s.order))
	copy(ids, s.order)

	switch order {
	case OrderCreated:
		sort.Slice(ids, func(i, j int) bool { return action.Compare(ids[i], ids[j]) > 0 })
	default:
		// OrderAdded: s.order is already ascending-added (insertion order);
		// the contract wants descending.
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		e := s.entries[id]
		entries = append(entries, Entry{Action: e.Action.Clone(), Meta: *e.Meta.Clone()})
	}

	// The in-memory store is small enough to return as a single page.
	return Page{Entries: entries, Next: nil}, nil
}

// restore force-sets an entry without the duplicate check Add applies,
// for use by FileStore when replaying its WAL/snapshot on startup.
func (s *Memory) restore(act action.Action, meta action.Meta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[meta.ID]; !exists {
		s.order = append(s.order, meta.ID)
	}
	if meta.Added > s.added {
		s.added = meta.Added
	}
	s.entries[meta.ID] = Entry{Action: act.Clone(), Meta: *meta.Clone()}
}

// forget force-removes an entry during WAL/snapshot replay.
func (s *Memory) forget(id action.Id) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return
	}
	delete(s.entries, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Memory) LastAdded(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.added, nil
}

func (s *Memory) LastSynced(_ context.Context, peer string) (SyncCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced[peer], nil
}

func (s *Memory) SetLastSynced(_ context.Context, peer string, cursor SyncCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.synced[peer]
	if cursor.Sent > 0 {
		cur.Sent = cursor.Sent
	}
	if cursor.Received > 0 {
		cur.Received = cursor.Received
	}
	s.synced[peer] = cur
	return nil
}
