// Package synctest provides the test-only collaborators spec section 1
// explicitly leaves external to the core: an in-process loopback
// Connection pair and an injectable virtual clock, used by
// internal/node's and internal/reconnect's test suites.
package synctest

import (
	"context"
	"errors"
	"sync"

	"actionsync/internal/transport"
	"actionsync/internal/wire"
)

// Loopback is a transport.Connection backed by an in-memory channel to
// its peer, giving tests a reliable, in-order, non-duplicating transport
// without a real socket.
type Loopback struct {
	transport.Emitter

	mu        sync.Mutex
	connected bool
	destroyed bool
	peer      *Loopback

	queue chan wire.Message
	done  chan struct{}
}

// NewPair returns two Loopback connections wired to each other. Call
// Connect on exactly one side to simulate a successful dial; both sides
// observe "connecting"/"connect".
func NewPair() (a, b *Loopback) {
	a = &Loopback{queue: make(chan wire.Message, 256), done: make(chan struct{})}
	b = &Loopback{queue: make(chan wire.Message, 256), done: make(chan struct{})}
	a.peer, b.peer = b, a
	go a.deliverLoop()
	go b.deliverLoop()
	return a, b
}

func (l *Loopback) deliverLoop() {
	for {
		select {
		case msg := <-l.queue:
			l.Emitter.FireMessage(msg)
		case <-l.done:
			return
		}
	}
}

// Connected reports whether this side currently considers itself
// connected.
func (l *Loopback) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Connect marks both this connection and its peer connected and fires
// "connecting" then "connect" on both sides, mimicking a completed dial.
func (l *Loopback) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return errors.New("synctest: connection destroyed")
	}
	l.connected = true
	peer := l.peer
	l.mu.Unlock()

	peer.mu.Lock()
	peer.connected = true
	peer.mu.Unlock()

	l.Emitter.FireConnecting()
	peer.Emitter.FireConnecting()
	l.Emitter.FireConnect()
	peer.Emitter.FireConnect()
	return nil
}

// Disconnect severs this side only, firing "disconnect" locally — a real
// severed socket is observed by the peer independently, via its next
// failed Send.
func (l *Loopback) Disconnect(reason transport.Reason) {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return
	}
	l.connected = false
	l.mu.Unlock()
	l.Emitter.FireDisconnect(reason)
}

// Send delivers msg to the peer's inbound queue, preserving send order.
func (l *Loopback) Send(msg wire.Message) error {
	l.mu.Lock()
	connected := l.connected
	peer := l.peer
	l.mu.Unlock()
	if !connected {
		return errors.New("synctest: send on disconnected connection")
	}
	if !peer.Connected() {
		return errors.New("synctest: peer disconnected")
	}
	select {
	case peer.queue <- msg:
		return nil
	case <-peer.done:
		return errors.New("synctest: peer destroyed")
	}
}

// Destroy permanently tears down this side: no further delivery, all
// listeners released.
func (l *Loopback) Destroy() {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return
	}
	l.destroyed = true
	l.connected = false
	l.mu.Unlock()
	close(l.done)
	l.Emitter.Clear()
}
