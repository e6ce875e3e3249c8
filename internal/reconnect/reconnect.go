// Package reconnect implements the supervisor from spec section 4.6: it
// wraps a transport.Connection and re-exposes the same contract, adding
// exponential backoff with jitter, an attempt cap, permanent disabling on
// protocol-terminal errors, and host-environment visibility/online
// signals.
package reconnect

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"actionsync/internal/transport"
	"actionsync/internal/wire"
)

// Options configures a Reconnect supervisor per spec section 6
// ("Reconnect options").
type Options struct {
	// Attempts caps the number of connection attempts made while
	// reconnecting; 0 means unlimited.
	Attempts int
	// MinDelay and MaxDelay are the backoff bounds in milliseconds.
	// Defaults: 1000 and 5000.
	MinDelay int64
	MaxDelay int64
	// Rand seeds the jitter source; nil uses a time-seeded default. Tests
	// pass a fixed-seed *rand.Rand for deterministic scenarios (spec
	// section 9: "the randomized jitter must be seedable").
	Rand *rand.Rand
}

// DefaultOptions returns the spec section 4.6 defaults (minDelay=1000,
// maxDelay=5000, unlimited attempts). Callers who want S5-style explicit
// zero delays construct Options directly instead — a zero MinDelay/
// MaxDelay here is a real configuration, not "unset", so New never
// silently substitutes defaults.
func DefaultOptions() Options {
	return Options{MinDelay: 1000, MaxDelay: 5000}
}

// Reconnect wraps conn and implements transport.Connection itself, so
// callers (a Node) use it exactly like a raw connection.
type Reconnect struct {
	transport.Emitter

	conn host
	opts Options
	rng  *rand.Rand
	hostEvents HostEvents

	mu           sync.Mutex
	reconnecting bool
	connecting   bool
	connected    bool
	attempts     int
	destroyed    bool
	timer        *time.Timer

	unsub     []func()
	hostUnsub []func()
}

type host = transport.Connection

// New builds a Reconnect wrapping conn. hostEvents may be nil when no
// host-environment signals are available (the common case for a server
// process).
func New(conn transport.Connection, opts Options, hostEvents HostEvents) *Reconnect {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	r := &Reconnect{conn: conn, opts: opts, rng: rng, hostEvents: hostEvents}

	r.unsub = append(r.unsub,
		conn.OnConnecting(r.Emitter.FireConnecting),
		conn.OnConnect(r.handleConnect),
		conn.OnMessage(r.Emitter.FireMessage),
		conn.OnDisconnect(r.handleDisconnect),
		conn.OnError(r.Emitter.FireError),
	)
	if hostEvents != nil {
		r.hostUnsub = append(r.hostUnsub,
			hostEvents.OnVisibilityChange(r.handleVisibility),
			hostEvents.OnOnline(r.handleOnlineOrResume),
			hostEvents.OnResume(r.handleOnlineOrResume),
			hostEvents.OnFreeze(r.handleFreeze),
		)
	}
	return r
}

// Connected, Connect, Disconnect, Send, and Destroy implement
// transport.Connection.

func (r *Reconnect) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *Reconnect) Connect(ctx context.Context) error {
	r.mu.Lock()
	r.reconnecting = true
	r.mu.Unlock()
	return r.dial(ctx)
}

func (r *Reconnect) Disconnect(reason transport.Reason) {
	r.conn.Disconnect(reason)
}

func (r *Reconnect) Send(msg wire.Message) error {
	return r.conn.Send(msg)
}

func (r *Reconnect) Destroy() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	r.reconnecting = false
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	unsub := append(append([]func(){}, r.unsub...), r.hostUnsub...)
	r.unsub, r.hostUnsub = nil, nil
	r.mu.Unlock()

	for _, fn := range unsub {
		fn()
	}
	r.conn.Destroy()
	r.Emitter.Clear()
}

// Reconnecting, Connecting, and Attempts expose the supervisor's state
// for diagnostics (spec section 4.6: "Holds reconnecting, connecting,
// connected, attempts").
func (r *Reconnect) Reconnecting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconnecting
}

func (r *Reconnect) Connecting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connecting
}

func (r *Reconnect) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// dial is the single path by which the wrapped connection is actually
// dialed, whether from an explicit Connect or an automatic retry, so the
// attempt cap is enforced uniformly.
func (r *Reconnect) dial(ctx context.Context) error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return nil
	}
	if r.opts.Attempts > 0 && r.attempts >= r.opts.Attempts {
		r.reconnecting = false
		r.mu.Unlock()
		return nil
	}
	r.attempts++
	r.connecting = true
	r.mu.Unlock()

	err := r.conn.Connect(ctx)
	if err != nil {
		r.mu.Lock()
		r.connecting = false
		r.mu.Unlock()
		r.Emitter.FireError(err)
		r.scheduleReconnect()
	}
	return err
}

// connectSettleDelay is how long a connection must stay up before a
// reconnect attempt counts as a real success and resets the backoff
// counter — otherwise a transport that connects and immediately drops
// (flapping, or a handshake-rejecting peer) would reset attempts on
// every cycle and never trip the attempt cap.
const connectSettleDelay = 200 * time.Millisecond

func (r *Reconnect) handleConnect() {
	r.mu.Lock()
	r.connected = true
	r.connecting = false
	r.mu.Unlock()
	r.Emitter.FireConnect()

	time.AfterFunc(connectSettleDelay, func() {
		r.mu.Lock()
		if r.connected {
			r.attempts = 0
		}
		r.mu.Unlock()
	})
}

func (r *Reconnect) handleDisconnect(reason transport.Reason) {
	r.mu.Lock()
	r.connected = false
	r.connecting = false
	if reason == transport.ReasonDestroy || reason == transport.ReasonProtocol {
		r.reconnecting = false
	}
	shouldRetry := r.reconnecting && !r.destroyed
	r.mu.Unlock()

	r.Emitter.FireDisconnect(reason)
	if shouldRetry {
		r.scheduleReconnect()
	}
}

// scheduleReconnect arms a timer for nextDelay(attempts) ms, per spec
// section 4.6's backoff policy.
func (r *Reconnect) scheduleReconnect() {
	r.mu.Lock()
	if r.destroyed || !r.reconnecting {
		r.mu.Unlock()
		return
	}
	k := r.attempts
	minDelay, maxDelay := r.opts.MinDelay, r.opts.MaxDelay
	r.mu.Unlock()

	delay := nextDelay(k, minDelay, maxDelay, r.rng)

	r.mu.Lock()
	if r.destroyed || !r.reconnecting {
		r.mu.Unlock()
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		_ = r.dial(context.Background())
	})
	r.mu.Unlock()
}

func (r *Reconnect) handleVisibility(hidden bool) {
	if hidden {
		r.mu.Lock()
		r.reconnecting = false
		if r.timer != nil {
			r.timer.Stop()
		}
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	shouldResume := !r.connected && !r.connecting && !r.destroyed
	r.reconnecting = true
	r.mu.Unlock()
	if shouldResume {
		go func() { _ = r.dial(context.Background()) }()
	}
}

func (r *Reconnect) handleOnlineOrResume() {
	r.mu.Lock()
	if r.connected || r.destroyed {
		r.mu.Unlock()
		return
	}
	shouldResume := !r.connecting
	r.reconnecting = true
	r.mu.Unlock()
	if shouldResume {
		go func() { _ = r.dial(context.Background()) }()
	}
}

func (r *Reconnect) handleFreeze() {
	r.mu.Lock()
	r.reconnecting = false
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()
	r.conn.Disconnect(transport.ReasonFreeze)
}
