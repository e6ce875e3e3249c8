// Package transport defines the connection-agnostic contract BaseNode
// consumes (spec section 4.3): a minimal duplex message transport with
// lifecycle events. Concrete adapters (internal/wsconn, or a test
// loopback) implement this interface; internal/node never imports them
// directly.
package transport

import (
	"context"

	"actionsync/internal/events"
	"actionsync/internal/wire"
)

// Reason identifies why a connection disconnected.
type Reason string

const (
	ReasonDestroy  Reason = "destroy"
	ReasonError    Reason = "error"
	ReasonTimeout  Reason = "timeout"
	ReasonFreeze   Reason = "freeze"
	ReasonProtocol Reason = "protocol"
	ReasonNone     Reason = ""
)

// Connection is the minimal duplex transport spec section 4.3 requires:
// in-order, non-duplicating delivery of successfully-sent messages for
// the lifetime of one Connected() interval. Implementations may drop
// buffered messages on Disconnect.
type Connection interface {
	Connected() bool
	Connect(ctx context.Context) error
	Disconnect(reason Reason)
	Send(msg wire.Message) error
	Destroy()

	OnConnecting(fn func()) func()
	OnConnect(fn func()) func()
	OnMessage(fn func(wire.Message)) func()
	OnDisconnect(fn func(Reason)) func()
	OnError(fn func(error)) func()
}

// Emitter is a small helper embeddable by Connection implementations so
// they don't each reimplement listener bookkeeping; it is not itself
// part of the Connection interface.
type Emitter struct {
	Connecting events.List[func()]
	Connect    events.List[func()]
	Message    events.List[func(wire.Message)]
	Disconnect events.List[func(Reason)]
	Error      events.List[func(error)]
}

func (e *Emitter) OnConnecting(fn func()) func()            { return e.Connecting.On(fn) }
func (e *Emitter) OnConnect(fn func()) func()                { return e.Connect.On(fn) }
func (e *Emitter) OnMessage(fn func(wire.Message)) func()    { return e.Message.On(fn) }
func (e *Emitter) OnDisconnect(fn func(Reason)) func()       { return e.Disconnect.On(fn) }
func (e *Emitter) OnError(fn func(error)) func()             { return e.Error.On(fn) }

func (e *Emitter) FireConnecting() {
	for _, fn := range e.Connecting.Snapshot() {
		fn()
	}
}
func (e *Emitter) FireConnect() {
	for _, fn := range e.Connect.Snapshot() {
		fn()
	}
}
func (e *Emitter) FireMessage(msg wire.Message) {
	for _, fn := range e.Message.Snapshot() {
		fn(msg)
	}
}
func (e *Emitter) FireDisconnect(reason Reason) {
	for _, fn := range e.Disconnect.Snapshot() {
		fn(reason)
	}
}
func (e *Emitter) FireError(err error) {
	for _, fn := range e.Error.Snapshot() {
		fn(err)
	}
}

// Clear releases every registered listener, used by Destroy so a torn
// down connection doesn't keep the other side (a Node) reachable.
func (e *Emitter) Clear() {
	e.Connecting.Clear()
	e.Connect.Clear()
	e.Message.Clear()
	e.Disconnect.Clear()
	e.Error.Clear()
}
