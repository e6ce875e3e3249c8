package node

import (
	"context"
	"encoding/json"

	"actionsync/internal/store"
	"actionsync/internal/syncerr"
	"actionsync/internal/transport"
	"actionsync/internal/wire"
)

// handleConnConnect fires when the transport reaches its "connect"
// event. Only the handshake initiator speaks first (spec section 4.5).
func (n *BaseNode) handleConnConnect() {
	n.fireConnect()
	n.fireState()
	if n.role == RoleClient {
		if err := n.sendConnect(context.Background()); err != nil {
			n.emitError(err, "", "")
		}
	}
}

// sendConnect emits the handshake-initiating "connect" message.
func (n *BaseNode) sendConnect(ctx context.Context) error {
	synced, err := n.log.Store().LastAdded(ctx)
	if err != nil {
		return err
	}

	var opts *wire.Opts
	creds := n.opts.credentials()
	if creds != nil || n.opts.LocalSubprotocol != "" {
		opts = &wire.Opts{Credentials: creds, Subprotocol: n.opts.LocalSubprotocol}
	}

	n.mu.Lock()
	n.localSendTime = n.timerFn()
	n.state = StateSentConnect
	n.mu.Unlock()
	n.fireState()

	msg, err := wire.NewConnect(n.localProtocol, n.log.NodeID(), synced, opts)
	if err != nil {
		return err
	}
	return n.send(msg)
}

// handleConnect is the responder's side of the handshake (spec section
// 4.4, "The server: ..."). It is only ever reached on a ServerNode; a
// ClientNode receiving "connect" is a protocol violation handled by the
// dispatch table.
func (n *BaseNode) handleConnect(ctx context.Context, m wire.Message) {
	t0 := n.timerFn()

	protocol, nodeID, synced, opts, err := wire.ParseConnect(m)
	if err != nil {
		n.sendWrongFormat(m)
		return
	}
	if protocol.Major != n.localProtocol.Major {
		n.sendTerminalError(syncerr.WrongProtocol, "")
		return
	}

	var creds []byte
	subprotocol := ""
	if opts != nil {
		creds = opts.Credentials
		subprotocol = opts.Subprotocol
	}
	if n.opts.Auth != nil {
		ok, authErr := n.opts.Auth(ctx, nodeID, creds)
		if authErr != nil || !ok {
			n.sendTerminalError(syncerr.WrongCredentials, "")
			return
		}
	}
	if n.opts.Subprotocol != nil && !n.opts.Subprotocol(subprotocol) {
		n.sendTerminalError(syncerr.WrongSubprotocol, "")
		return
	}

	n.mu.Lock()
	n.remoteNodeID = nodeID
	n.remoteProtocol = protocol
	n.remoteSubprotocol = subprotocol
	n.mu.Unlock()

	if err := n.log.Store().SetLastSynced(ctx, nodeID, store.SyncCursor{Received: synced}); err != nil {
		n.emitError(err, "", "")
		return
	}

	t1 := n.timerFn()
	_, err = n.log.Store().LastAdded(ctx)
	if err != nil {
		n.emitError(err, "", "")
		return
	}

	var outOpts *wire.Opts
	if n.opts.LocalSubprotocol != "" {
		outOpts = &wire.Opts{Subprotocol: n.opts.LocalSubprotocol}
	}
	msg, err := wire.NewConnected(n.localProtocol, n.log.NodeID(), t0, t1, outOpts)
	if err != nil {
		n.emitError(err, "", "")
		return
	}
	if err := n.send(msg); err != nil {
		n.emitError(err, "", "")
		return
	}

	n.becomeAuthenticated(ctx, nodeID)
}

// handleConnected is the initiator's side: it computes timeFix and
// becomes authenticated. Only ever reached on a ClientNode.
func (n *BaseNode) handleConnected(ctx context.Context, m wire.Message) {
	localReceive := n.timerFn()

	protocol, nodeID, t0, t1, opts, err := wire.ParseConnected(m)
	if err != nil {
		n.sendWrongFormat(m)
		return
	}
	if protocol.Major != n.localProtocol.Major {
		n.sendTerminalError(syncerr.WrongProtocol, "")
		return
	}

	n.mu.Lock()
	localSend := n.localSendTime
	n.remoteNodeID = nodeID
	n.remoteProtocol = protocol
	if opts != nil {
		n.remoteSubprotocol = opts.Subprotocol
	}
	if n.opts.FixTime {
		n.timeFix = ((localSend + localReceive) - (t0 + t1)) / 2
	} else {
		n.timeFix = 0
	}
	n.mu.Unlock()

	n.becomeAuthenticated(ctx, nodeID)
}

// becomeAuthenticated marks the handshake complete and, per spec section
// 4.4 ("On successful handshake ... both sides call syncSince(lastSynced)
// to stream backlog"), kicks off backlog streaming and heartbeating.
func (n *BaseNode) becomeAuthenticated(ctx context.Context, peer string) {
	n.mu.Lock()
	n.authenticated = true
	n.state = StateAuthenticated
	n.mu.Unlock()
	n.fireState()

	n.scheduleAfterActivity()

	cursor, err := n.log.Store().LastSynced(ctx, peer)
	if err != nil {
		n.emitError(err, "", "")
		return
	}
	if err := n.syncSince(ctx, cursor.Sent); err != nil {
		n.emitError(err, "", "")
	}
}

func (n *BaseNode) sendWrongFormat(m wire.Message) {
	n.replyError(syncerr.WrongFormat, wireMessageJSON(m), false)
}

func (n *BaseNode) sendUnknownMessage(m wire.Message) {
	n.replyError(syncerr.UnknownMessage, wireMessageJSON(m), false)
}

func (n *BaseNode) sendTerminalError(kind syncerr.Kind, detail string) {
	n.replyError(kind, detail, true)
}

// replyError is used for violations *we* detect in what the peer sent:
// we notify them with a wire "error", raise clientError locally (we are
// reporting a fault in the remote client), and disconnect — terminally
// (reason "protocol", disabling reconnection) or not, per spec section 7.
func (n *BaseNode) replyError(kind syncerr.Kind, detail string, terminal bool) {
	msg, err := wire.NewError(string(kind), detail)
	if err == nil {
		_ = n.send(msg)
	}
	serr := syncerr.New(kind, detail)
	if kind == syncerr.WrongFormat || kind == syncerr.UnknownMessage {
		serr.Received = detail
	}
	n.emitClientError(serr)
	if terminal {
		n.Disconnect(transport.ReasonProtocol)
	} else {
		n.Disconnect(transport.ReasonError)
	}
}

func wireMessageJSON(m wire.Message) string {
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(data)
}
