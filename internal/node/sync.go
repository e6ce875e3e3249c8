package node

import (
	"context"

	"actionsync/internal/action"
	"actionsync/internal/store"
	"actionsync/internal/wire"
)

// handleSync applies an incoming "sync" message's entries to the local
// log and acknowledges with "synced n", per spec section 4.4.
func (n *BaseNode) handleSync(ctx context.Context, m wire.Message) {
	synced, entries, err := wire.ParseSync(m)
	if err != nil {
		n.sendWrongFormat(m)
		return
	}

	fix := n.timeFixSnapshot()
	for _, e := range entries {
		act, meta := e.Action, e.Meta
		meta.Time += fix

		if n.opts.InFilter != nil && !n.opts.InFilter(act, &meta) {
			continue
		}
		if n.opts.InMap != nil {
			var mapped *action.Meta
			act, mapped = n.opts.InMap(act, &meta)
			meta = *mapped
		}
		// Tag the origin so our own log.OnAdd listener (handleLogAdd)
		// recognizes this entry came from this connection and skips
		// rebroadcasting it back down the wire it just arrived on.
		meta.Origin = n.conn

		if _, _, err := n.log.Add(ctx, act, &meta); err != nil {
			n.emitError(err, "", "")
		}
	}

	msg, err := wire.NewSynced(synced)
	if err != nil {
		n.emitError(err, "", "")
		return
	}
	if err := n.send(msg); err != nil {
		n.emitError(err, "", "")
	}
}

// handleSynced processes an ack for a batch we sent: when the in-flight
// count returns to zero, the backlog is fully acknowledged, so the Node
// persists the watermark and fires its local "synced" event.
func (n *BaseNode) handleSynced(m wire.Message) {
	watermark, err := wire.ParseSynced(m)
	if err != nil {
		n.sendWrongFormat(m)
		return
	}

	n.mu.Lock()
	if n.syncing > 0 {
		n.syncing--
	}
	drained := n.syncing == 0
	n.mu.Unlock()

	if !drained {
		return
	}
	peer := n.peerKey()
	if peer == "" {
		return
	}
	if err := n.log.Store().SetLastSynced(context.Background(), peer, store.SyncCursor{Sent: watermark}); err != nil {
		n.emitError(err, "", "")
		return
	}
	n.fireSynced()
}
