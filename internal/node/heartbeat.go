package node

import (
	"context"
	"time"

	"actionsync/internal/syncerr"
	"actionsync/internal/transport"
	"actionsync/internal/wire"
)

// scheduleAfterActivity (re)arms the ping timer for Ping ms out, per spec
// section 4.4 ("schedules a ping ping ms after the last outbound
// activity"). It is a no-op before authentication (S3: "no ping before
// auth") and when heartbeating is disabled.
func (n *BaseNode) scheduleAfterActivity() {
	if n.opts.Ping <= 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.authenticated {
		return
	}
	if n.pingTimer != nil {
		n.pingTimer.Stop()
	}
	n.pingTimer = time.AfterFunc(n.opts.Ping, n.sendPing)
}

// sendPing fires once the ping timer elapses. It does not reschedule
// itself (S4: "exactly one ping has been sent, not two") — only a pong
// reply or other outbound traffic reschedules the next one.
func (n *BaseNode) sendPing() {
	n.mu.Lock()
	authed := n.authenticated
	n.mu.Unlock()
	if !authed {
		return
	}

	synced, err := n.log.Store().LastAdded(context.Background())
	if err != nil {
		n.emitError(err, "", "")
		return
	}
	msg, err := wire.NewPing(synced)
	if err != nil {
		n.emitError(err, "", "")
		return
	}
	if err := n.conn.Send(msg); err != nil {
		n.emitError(err, "", "")
		return
	}

	n.mu.Lock()
	if n.pongDeadline != nil {
		n.pongDeadline.Stop()
	}
	n.pongDeadline = time.AfterFunc(n.opts.Timeout, n.onPongTimeout)
	n.mu.Unlock()
}

func (n *BaseNode) onPongTimeout() {
	msg, err := wire.NewError(string(syncerr.Timeout), "")
	if err == nil {
		_ = n.conn.Send(msg)
	}
	n.emitError(syncerr.New(syncerr.Timeout, ""), string(syncerr.Timeout), "")
	n.Disconnect(transport.ReasonTimeout)
}

func (n *BaseNode) handlePing(m wire.Message) {
	if _, err := wire.ParsePing(m); err != nil {
		n.sendWrongFormat(m)
		return
	}
	synced, err := n.log.Store().LastAdded(context.Background())
	if err != nil {
		n.emitError(err, "", "")
		return
	}
	msg, err := wire.NewPong(synced)
	if err != nil {
		n.emitError(err, "", "")
		return
	}
	if err := n.send(msg); err != nil {
		n.emitError(err, "", "")
	}
}

func (n *BaseNode) handlePong(m wire.Message) {
	if _, err := wire.ParsePong(m); err != nil {
		n.sendWrongFormat(m)
		return
	}
	n.mu.Lock()
	if n.pongDeadline != nil {
		n.pongDeadline.Stop()
		n.pongDeadline = nil
	}
	n.mu.Unlock()
	// "On reply the timer resets" — rearm the next ping cycle.
	n.scheduleAfterActivity()
}
