package node

import (
	"actionsync/internal/alog"
	"actionsync/internal/transport"
)

// ServerNode is the handshake responder: it waits for "connect" and
// replies with "connected" (spec section 4.5).
type ServerNode struct {
	*BaseNode
}

// NewServer builds a ServerNode bound to log and conn.
func NewServer(log *alog.Log, conn transport.Connection, opts Options) (*ServerNode, error) {
	base, err := newBase(RoleServer, log, conn, opts)
	if err != nil {
		return nil, err
	}
	return &ServerNode{BaseNode: base}, nil
}
