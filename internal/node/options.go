package node

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"actionsync/internal/action"
	"actionsync/internal/wire"
)

// Auth is the host-supplied credential check run during handshake (spec
// section 4.4, handshake step 2). A false/error result is a terminal
// wrong-credentials failure.
type Auth func(ctx context.Context, nodeID string, credentials json.RawMessage) (bool, error)

// SubprotocolMatcher is the host-supplied subprotocol compatibility check
// (spec section 4.4, handshake step 3).
type SubprotocolMatcher func(remote string) bool

// InFilter decides whether an incoming (action, meta) pair is accepted
// before it reaches log.Add.
type InFilter func(act action.Action, meta *action.Meta) bool

// InMap rewrites an incoming (action, meta) pair before it reaches
// log.Add.
type InMap func(act action.Action, meta *action.Meta) (action.Action, *action.Meta)

// OutFilter decides whether a local (action, meta) pair is eligible to be
// streamed to the peer.
type OutFilter func(act action.Action, meta *action.Meta) bool

// OutMap rewrites a local (action, meta) pair before it is streamed to
// the peer.
type OutMap func(act action.Action, meta *action.Meta) (action.Action, *action.Meta)

// Options configures a BaseNode per spec section 6 ("Node options").
type Options struct {
	// Ping is the idle delay, after the last outbound activity, before a
	// heartbeat ping is sent. Zero disables heartbeating.
	Ping time.Duration
	// Timeout is how long the Node waits for a pong before disconnecting
	// with reason "timeout". Required (> 0) whenever Ping > 0.
	Timeout time.Duration
	// FixTime disables time-offset correction of remote meta.time values
	// when false; timeFix is then always 0.
	FixTime bool

	InFilter  InFilter
	InMap     InMap
	OutFilter OutFilter
	OutMap    OutMap

	// Auth and Subprotocol are consulted only by a node acting as the
	// handshake responder (ServerNode).
	Auth        Auth
	Subprotocol SubprotocolMatcher

	// Credentials and LocalSubprotocol are sent by the handshake
	// initiator (ClientNode) in its "connect" opts.
	Credentials      json.RawMessage
	LocalSubprotocol string

	// Protocol is the local protocol version; defaults to {0, 2}.
	Protocol wire.Protocol

	// Timer returns the current time in integer milliseconds since
	// epoch; defaults to a wall-clock source. It supplies the handshake
	// timestamps used for timeFix, so tests inject a virtual clock here
	// to make that computation deterministic. Heartbeat ping/pong timers
	// do not read it; they always run on wall-clock time.
	Timer func() int64

	// Token, when set and Credentials is nil, is attached as
	// opts.credentials on outgoing "connect" messages. An explicit
	// Credentials value takes precedence over Token.
	Token string
}

func (o Options) validate() error {
	if o.Ping > 0 && o.Timeout <= 0 {
		return errors.New("node: ping > 0 requires timeout > 0")
	}
	return nil
}

func (o Options) protocol() wire.Protocol {
	if o.Protocol == (wire.Protocol{}) {
		return wire.Protocol{Major: 0, Minor: 2}
	}
	return o.Protocol
}

func (o Options) timer() func() int64 {
	if o.Timer != nil {
		return o.Timer
	}
	return defaultTimer
}

func defaultTimer() int64 {
	return time.Now().UnixMilli()
}

func (o Options) credentials() json.RawMessage {
	if o.Credentials != nil {
		return o.Credentials
	}
	if o.Token != "" {
		data, _ := json.Marshal(o.Token)
		return data
	}
	return nil
}
