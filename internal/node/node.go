// Package node implements the sync state machine from spec section 4.4:
// handshake, time-offset estimation, incremental sync streaming,
// heartbeat, and error propagation, layered over one Log and one
// transport.Connection. BaseNode carries the shared logic; ClientNode and
// ServerNode (section 4.5) only differ in who speaks first.
package node

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"actionsync/internal/action"
	"actionsync/internal/alog"
	"actionsync/internal/events"
	"actionsync/internal/store"
	"actionsync/internal/transport"
	"actionsync/internal/wire"
)

// Role distinguishes the handshake initiator from the responder.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// State is BaseNode's position in the state diagram of spec section 4.4.
type State int

const (
	StateNew State = iota
	StateConnecting
	StateSentConnect
	StateAuthenticated
	StateDisconnected
	StateDestroyed
)

// ErrorListener receives the error, a wire error kind (empty for locally
// detected errors that have none), and the raw offending message (empty
// when not applicable), matching spec section 6's "error(err, type,
// received?)".
type ErrorListener func(err error, kind string, received string)

// BaseNode is the sync state machine. Construct a ClientNode or
// ServerNode rather than this type directly.
type BaseNode struct {
	role Role
	log  *alog.Log
	conn transport.Connection
	opts Options

	localProtocol wire.Protocol
	timerFn       func() int64

	mu                sync.Mutex
	state             State
	authenticated     bool
	remoteNodeID      string
	remoteProtocol    wire.Protocol
	remoteSubprotocol string
	timeFix           int64
	syncing           int
	localSendTime     int64

	pingTimer    *time.Timer
	pongDeadline *time.Timer

	unsub []func()

	onConnect     events.List[func()]
	onConnecting  events.List[func()]
	onDisconnect  events.List[func(transport.Reason)]
	onState       events.List[func()]
	onError       events.List[func(error, string, string)]
	onClientError events.List[func(error)]
	onDebug       events.List[func(string, json.RawMessage)]
	onSynced      events.List[func()]
}

func newBase(role Role, log *alog.Log, conn transport.Connection, opts Options) (*BaseNode, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	n := &BaseNode{
		role:          role,
		log:           log,
		conn:          conn,
		opts:          opts,
		localProtocol: opts.protocol(),
		timerFn:       opts.timer(),
		state:         StateNew,
	}
	n.unsub = append(n.unsub,
		conn.OnConnecting(n.handleConnConnecting),
		conn.OnConnect(n.handleConnConnect),
		conn.OnMessage(n.handleMessage),
		conn.OnDisconnect(n.handleConnDisconnect),
		conn.OnError(n.handleConnError),
		log.OnAdd(n.handleLogAdd),
	)
	return n, nil
}

// Role reports whether this node is the handshake initiator or responder.
func (n *BaseNode) Role() Role { return n.role }

// State returns the current position in the handshake/sync state
// machine.
func (n *BaseNode) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Connected reports whether the underlying transport is connected.
func (n *BaseNode) Connected() bool { return n.conn.Connected() }

// Authenticated reports whether the handshake has completed.
func (n *BaseNode) Authenticated() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.authenticated
}

// RemoteNodeID returns the peer's node id, learned during handshake; it
// is empty until then.
func (n *BaseNode) RemoteNodeID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.remoteNodeID
}

// TimeFix returns the clock offset estimated during handshake (zero
// before handshake completes, or always zero with FixTime disabled).
func (n *BaseNode) TimeFix() int64 {
	return n.timeFixSnapshot()
}

// Syncing reports the number of outgoing "sync" messages awaiting a
// "synced" acknowledgment.
func (n *BaseNode) Syncing() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.syncing
}

// Connect starts (or retries) the underlying transport connection.
func (n *BaseNode) Connect(ctx context.Context) error {
	n.mu.Lock()
	if n.state == StateDestroyed {
		n.mu.Unlock()
		return nil
	}
	n.state = StateConnecting
	n.mu.Unlock()
	n.fireState()
	return n.conn.Connect(ctx)
}

// Disconnect tears down the current session but leaves the Node
// resumable, unless reason permanently disables reconnection (the caller
// of Reconnect observes that via reason).
func (n *BaseNode) Disconnect(reason transport.Reason) {
	n.conn.Disconnect(reason)
}

// Destroy unbinds every Log/Connection listener this Node holds, per
// spec section 5 ("destroy() on a Node unbinds all Log and Connection
// listeners"), and transitions to the terminal state.
func (n *BaseNode) Destroy() {
	n.mu.Lock()
	if n.state == StateDestroyed {
		n.mu.Unlock()
		return
	}
	n.state = StateDestroyed
	n.stopTimersLocked()
	unsub := n.unsub
	n.unsub = nil
	n.mu.Unlock()

	for _, fn := range unsub {
		fn()
	}
	n.conn.Destroy()
	n.fireState()
}

func (n *BaseNode) stopTimersLocked() {
	if n.pingTimer != nil {
		n.pingTimer.Stop()
		n.pingTimer = nil
	}
	if n.pongDeadline != nil {
		n.pongDeadline.Stop()
		n.pongDeadline = nil
	}
}

// Debug sends a "debug" message to the peer, the thin outbound half of
// the debug channel spec section 4.4 names but leaves unspecified.
func (n *BaseNode) Debug(kind string, data any) error {
	msg, err := wire.NewDebug(kind, data)
	if err != nil {
		return err
	}
	return n.send(msg)
}

// send transmits msg and, unless it is itself a heartbeat ping, resets
// the ping schedule — pings are scheduled relative to the last outbound
// activity "not arrival" (spec section 4.4), and a ping's own
// transmission does not count as the activity that postpones the next
// one; only a reply or other traffic does.
func (n *BaseNode) send(msg wire.Message) error {
	if err := n.conn.Send(msg); err != nil {
		return err
	}
	if msg.Tag != wire.TagPing {
		n.scheduleAfterActivity()
	}
	return nil
}

func (n *BaseNode) peerKey() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.remoteNodeID
}

func (n *BaseNode) timeFixSnapshot() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.timeFix
}

// ── event registration ───────────────────────────────────────────────────

func (n *BaseNode) OnConnect(fn func()) func()                       { return n.onConnect.On(fn) }
func (n *BaseNode) OnConnecting(fn func()) func()                     { return n.onConnecting.On(fn) }
func (n *BaseNode) OnDisconnect(fn func(transport.Reason)) func()     { return n.onDisconnect.On(fn) }
func (n *BaseNode) OnState(fn func()) func()                          { return n.onState.On(fn) }
func (n *BaseNode) OnError(fn ErrorListener) func() {
	return n.onError.On(func(err error, kind, received string) { fn(err, kind, received) })
}
func (n *BaseNode) OnClientError(fn func(error)) func()               { return n.onClientError.On(fn) }
func (n *BaseNode) OnDebug(fn func(kind string, data json.RawMessage)) func() {
	return n.onDebug.On(fn)
}
func (n *BaseNode) OnSynced(fn func()) func() { return n.onSynced.On(fn) }

func (n *BaseNode) fireState() {
	for _, fn := range n.onState.Snapshot() {
		fn()
	}
}
func (n *BaseNode) fireConnect() {
	for _, fn := range n.onConnect.Snapshot() {
		fn()
	}
}
func (n *BaseNode) fireConnecting() {
	for _, fn := range n.onConnecting.Snapshot() {
		fn()
	}
}
func (n *BaseNode) fireDisconnect(reason transport.Reason) {
	for _, fn := range n.onDisconnect.Snapshot() {
		fn(reason)
	}
}
func (n *BaseNode) emitError(err error, kind, received string) {
	for _, fn := range n.onError.Snapshot() {
		fn(err, kind, received)
	}
	n.fireState()
}
func (n *BaseNode) emitClientError(err error) {
	for _, fn := range n.onClientError.Snapshot() {
		fn(err)
	}
	n.fireState()
}
func (n *BaseNode) fireSynced() {
	for _, fn := range n.onSynced.Snapshot() {
		fn()
	}
}
func (n *BaseNode) fireDebug(kind string, data json.RawMessage) {
	for _, fn := range n.onDebug.Snapshot() {
		fn(kind, data)
	}
}

// ── connection lifecycle ─────────────────────────────────────────────────

func (n *BaseNode) handleConnConnecting() {
	n.mu.Lock()
	n.state = StateConnecting
	n.mu.Unlock()
	n.fireConnecting()
	n.fireState()
}

func (n *BaseNode) handleConnDisconnect(reason transport.Reason) {
	n.mu.Lock()
	n.authenticated = false
	n.syncing = 0
	n.stopTimersLocked()
	if n.state != StateDestroyed {
		n.state = StateDisconnected
	}
	n.mu.Unlock()
	n.fireDisconnect(reason)
	n.fireState()
}

func (n *BaseNode) handleConnError(err error) {
	n.emitError(err, "", "")
}

func (n *BaseNode) handleLogAdd(act action.Action, meta *action.Meta) {
	n.mu.Lock()
	authed := n.authenticated
	n.mu.Unlock()
	if !authed {
		return
	}
	if meta.Origin != nil && meta.Origin == n.conn {
		return
	}
	if n.opts.OutFilter != nil && !n.opts.OutFilter(act, meta) {
		return
	}
	outAct, outMeta := act, meta.Clone()
	if n.opts.OutMap != nil {
		var mapped *action.Meta
		outAct, mapped = n.opts.OutMap(outAct, outMeta)
		outMeta = mapped
	}
	outMeta.Time -= n.timeFixSnapshot()

	msg, err := wire.NewSync(outMeta.Added, []wire.SyncEntry{{Action: outAct, Meta: *outMeta}})
	if err != nil {
		n.emitError(err, "", "")
		return
	}
	n.mu.Lock()
	n.syncing++
	n.mu.Unlock()
	if err := n.send(msg); err != nil {
		n.emitError(err, "", "")
	}
}

// syncSince streams every locally stored entry with meta.Added > since in
// one "sync" message, per spec section 4.4.
func (n *BaseNode) syncSince(ctx context.Context, since int64) error {
	page, err := n.log.Store().Get(ctx, store.OrderAdded)
	if err != nil {
		return err
	}
	var entries []wire.SyncEntry
	var highest int64
	for {
		for _, e := range page.Entries {
			if e.Meta.Added <= since {
				continue
			}
			act, meta := e.Action, e.Meta
			if n.opts.OutFilter != nil && !n.opts.OutFilter(act, &meta) {
				continue
			}
			if n.opts.OutMap != nil {
				var mapped *action.Meta
				act, mapped = n.opts.OutMap(act, &meta)
				meta = *mapped
			}
			meta.Time -= n.timeFixSnapshot()
			entries = append(entries, wire.SyncEntry{Action: act, Meta: meta})
			if meta.Added > highest {
				highest = meta.Added
			}
		}
		if page.Next == nil {
			break
		}
		page, err = page.Next(ctx)
		if err != nil {
			return err
		}
	}
	if len(entries) == 0 {
		return nil
	}
	reverseSyncEntries(entries)

	msg, err := wire.NewSync(highest, entries)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.syncing++
	n.mu.Unlock()
	return n.send(msg)
}

func reverseSyncEntries(entries []wire.SyncEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
