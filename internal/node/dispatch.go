package node

import (
	"context"

	"actionsync/internal/syncerr"
	"actionsync/internal/transport"
	"actionsync/internal/wire"
)

// handleMessage routes one inbound wire message to its handler per the
// grammar table in spec section 4.4, gating roles (a ClientNode never
// accepts "connect", a ServerNode never accepts "connected") and
// authentication (anything but connect/connected/error before the
// handshake completes is a missed-auth failure).
func (n *BaseNode) handleMessage(m wire.Message) {
	ctx := context.Background()

	switch m.Tag {
	case wire.TagConnect:
		if n.role != RoleServer {
			n.sendUnknownMessage(m)
			return
		}
		n.handleConnect(ctx, m)
		return
	case wire.TagConnected:
		if n.role != RoleClient {
			n.sendUnknownMessage(m)
			return
		}
		n.handleConnected(ctx, m)
		return
	case wire.TagError:
		n.handleError(m)
		return
	}

	if !n.Authenticated() {
		n.replyError(syncerr.MissedAuth, "", false)
		return
	}

	switch m.Tag {
	case wire.TagPing:
		n.handlePing(m)
	case wire.TagPong:
		n.handlePong(m)
	case wire.TagSync:
		n.handleSync(ctx, m)
	case wire.TagSynced:
		n.handleSynced(m)
	case wire.TagDebug:
		n.handleDebug(m)
	default:
		n.sendUnknownMessage(m)
	}
}

// handleError processes an "error" message *received from* the peer: the
// peer is reporting a fault of ours (or a fault it hit locally), so we
// raise it as Node `error` (not clientError — that's for faults we
// detect in what the peer sent us) and disconnect, per spec section 7.
func (n *BaseNode) handleError(m wire.Message) {
	kind, detail, err := wire.ParseError(m)
	if err != nil {
		n.sendWrongFormat(m)
		return
	}
	k := syncerr.Kind(kind)
	n.emitError(syncerr.New(k, detail), kind, "")
	if k.Terminal() {
		n.Disconnect(transport.ReasonProtocol)
	} else {
		n.Disconnect(transport.ReasonError)
	}
}

func (n *BaseNode) handleDebug(m wire.Message) {
	kind, data, err := wire.ParseDebug(m)
	if err != nil {
		n.sendWrongFormat(m)
		return
	}
	n.fireDebug(kind, data)
}
