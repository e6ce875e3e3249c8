// Package alog implements the append-only action Log described in spec
// section 4.1: id assignment, reason-based lifecycle, and the
// before/add/clean/changeMeta event stream nodes and application code
// observe.
package alog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"actionsync/internal/action"
	"actionsync/internal/events"
	"actionsync/internal/store"
)

// Listener receives an (action, meta) pair fired by before/add/clean.
type Listener func(act action.Action, meta *action.Meta)

// ChangeMetaListener receives the id and diff of a successful changeMeta.
type ChangeMetaListener func(id action.Id, diff map[string]any)

// Log binds a nodeId and id-generation clock to one Store.
type Log struct {
	nodeID string
	store  store.Store
	now    func() int64

	idMu     idState
	before   events.List[Listener]
	add      events.List[Listener]
	clean    events.List[Listener]
	changeMe events.List[ChangeMetaListener]
}

type idState struct {
	mu       sync.Mutex
	lastTime int64
	sequence int64
}

// Options configures a Log.
type Options struct {
	// Now returns the current time in integer milliseconds since epoch.
	// Defaults to a wall-clock source; tests inject a virtual clock here.
	Now func() int64
}

// New creates a Log for nodeID backed by st. It panics-free validates its
// required arguments by returning an error, per spec section 4.1
// ("constructor throws on missing nodeId or non-object store").
func New(nodeID string, st store.Store, opts Options) (*Log, error) {
	if nodeID == "" {
		return nil, errors.New("alog: nodeID is required")
	}
	if st == nil {
		return nil, errors.New("alog: store is required")
	}
	now := opts.Now
	if now == nil {
		now = wallClockMillis
	}
	l := &Log{nodeID: nodeID, store: st, now: now}
	return l, nil
}

// NodeID returns the Log's node id.
func (l *Log) NodeID() string { return l.nodeID }

// Store returns the Log's backing Store.
func (l *Log) Store() store.Store { return l.store }

// GenerateID returns a strictly increasing Id on every call, per spec
// section 4.1: reuse lastTime and bump sequence when the clock hasn't
// advanced, otherwise adopt the new time and reset sequence to 0.
func (l *Log) GenerateID() action.Id {
	l.idMu.mu.Lock()
	defer l.idMu.mu.Unlock()

	now := l.now()
	if now <= l.idMu.lastTime {
		l.idMu.sequence++
	} else {
		l.idMu.lastTime = now
		l.idMu.sequence = 0
	}
	return action.Id{Time: l.idMu.lastTime, NodeID: l.nodeID, Sequence: l.idMu.sequence}
}

// Add assigns ids/defaults, runs "before" listeners synchronously, then
// either persists (if reasoned) or merely broadcasts (if reasonless) the
// action, per spec section 4.1.
func (l *Log) Add(ctx context.Context, act action.Action, meta *action.Meta) (*action.Meta, bool, error) {
	if act.Type() == "" {
		return nil, false, errors.New("alog: action.type is required")
	}
	if meta == nil {
		meta = &action.Meta{}
	} else {
		meta = meta.Clone()
	}

	idGenerated := meta.ID.IsZero()
	if idGenerated {
		meta.ID = l.GenerateID()
	}
	if meta.Time == 0 {
		meta.Time = meta.ID.Time
	}
	if meta.Reasons == nil {
		meta.Reasons = []string{}
	}

	l.fire(&l.before, act, meta)

	if len(meta.Reasons) == 0 {
		if idGenerated {
			l.fire(&l.add, act, meta)
			return meta, true, nil
		}
		has, err := l.store.Has(ctx, meta.ID)
		if err != nil {
			return nil, false, fmt.Errorf("alog: has: %w", err)
		}
		if has {
			return nil, false, nil
		}
		l.fire(&l.add, act, meta)
		return meta, true, nil
	}

	stored, ok, err := l.store.Add(ctx, act, *meta)
	if err != nil {
		return nil, false, fmt.Errorf("alog: store add: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	stored.Origin = meta.Origin
	l.fire(&l.add, act, &stored)
	return &stored, true, nil
}

// ChangeMeta merges diff into the stored meta for id. It rejects attempts
// to change "id" or "added" immediately, matching spec section 4.1's
// "rejects (synchronous throw)".
func (l *Log) ChangeMeta(ctx context.Context, id action.Id, diff map[string]any) (bool, error) {
	if _, ok := diff["id"]; ok {
		return false, errors.New("alog: changeMeta must not change id")
	}
	if _, ok := diff["added"]; ok {
		return false, errors.New("alog: changeMeta must not change added")
	}

	_, ok, err := l.store.ChangeMeta(ctx, id, diff)
	if err != nil {
		return false, fmt.Errorf("alog: store changeMeta: %w", err)
	}
	if ok {
		for _, fn := range l.changeMe.Snapshot() {
			fn(id, diff)
		}
	}
	return ok, nil
}

func (l *Log) fire(list *events.List[Listener], act action.Action, meta *action.Meta) {
	for _, fn := range list.Snapshot() {
		fn(act, meta)
	}
}

// OnBefore registers a listener fired synchronously before an action is
// stored/broadcast; it may mutate meta.Reasons.
func (l *Log) OnBefore(fn Listener) func()            { return l.before.On(fn) }
func (l *Log) OnceBefore(fn Listener) func()          { return l.before.Once(fn) }
func (l *Log) OnAdd(fn Listener) func()               { return l.add.On(fn) }
func (l *Log) OnceAdd(fn Listener) func()             { return l.add.Once(fn) }
func (l *Log) OnClean(fn Listener) func()             { return l.clean.On(fn) }
func (l *Log) OnceClean(fn Listener) func()           { return l.clean.Once(fn) }
func (l *Log) OnChangeMeta(fn ChangeMetaListener) func()   { return l.changeMe.On(fn) }
func (l *Log) OnceChangeMeta(fn ChangeMetaListener) func() { return l.changeMe.Once(fn) }
