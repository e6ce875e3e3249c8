package node

import (
	"actionsync/internal/alog"
	"actionsync/internal/transport"
)

// ClientNode is the handshake initiator: it sends "connect" as soon as
// the transport reaches its "connect" event (spec section 4.5).
type ClientNode struct {
	*BaseNode
}

// NewClient builds a ClientNode bound to log and conn.
func NewClient(log *alog.Log, conn transport.Connection, opts Options) (*ClientNode, error) {
	base, err := newBase(RoleClient, log, conn, opts)
	if err != nil {
		return nil, err
	}
	return &ClientNode{BaseNode: base}, nil
}
