package reconnect_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"actionsync/internal/reconnect"
	"actionsync/internal/transport"
	"actionsync/internal/wire"
)

// flakyConn fires "connect" then immediately "disconnect(error)" on every
// Connect call, for the attempt-cap scenario (S5).
type flakyConn struct {
	transport.Emitter
	mu    sync.Mutex
	dials int
}

func (c *flakyConn) Connected() bool { return false }
func (c *flakyConn) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.dials++
	c.mu.Unlock()
	c.Emitter.FireConnect()
	c.Emitter.FireDisconnect(transport.ReasonError)
	return nil
}
func (c *flakyConn) Disconnect(reason transport.Reason) {}
func (c *flakyConn) Send(msg wire.Message) error         { return nil }
func (c *flakyConn) Destroy()                            {}
func (c *flakyConn) Dials() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// TestAttemptCap is scenario S5: attempts=3, minDelay=0, maxDelay=0, a
// connection that disconnects immediately on every connect is dialed
// exactly 3 times, then Reconnecting() becomes false.
func TestAttemptCap(t *testing.T) {
	conn := &flakyConn{}
	r := reconnect.New(conn, reconnect.Options{Attempts: 3, MinDelay: 0, MaxDelay: 0, Rand: rand.New(rand.NewSource(1))}, nil)
	defer r.Destroy()

	require.NoError(t, r.Connect(context.Background()))

	waitUntil(t, time.Second, func() bool { return !r.Reconnecting() })
	require.Equal(t, 3, conn.Dials())
}

// TestHostVisibilityPausesAndResumes is scenario S6: while reconnecting,
// a "hidden" visibilitychange halts retries; "visible" resumes within a
// tick.
func TestHostVisibilityPausesAndResumes(t *testing.T) {
	conn := &flakyConn{}
	host := reconnect.NewHost()
	r := reconnect.New(conn, reconnect.Options{MinDelay: 1000, MaxDelay: 5000, Rand: rand.New(rand.NewSource(1))}, host)
	defer r.Destroy()

	require.NoError(t, r.Connect(context.Background()))
	waitUntil(t, time.Second, func() bool { return conn.Dials() >= 1 })

	host.FireVisibilityChange(true)
	require.False(t, r.Reconnecting())
	dialsAtHidden := conn.Dials()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, dialsAtHidden, conn.Dials())

	host.FireVisibilityChange(false)
	waitUntil(t, time.Second, func() bool { return conn.Dials() > dialsAtHidden })
}

// TestDestroyDisablesReconnection covers invariant 8.7: destroy leaves no
// further connect attempts.
func TestDestroyDisablesReconnection(t *testing.T) {
	conn := &flakyConn{}
	r := reconnect.New(conn, reconnect.Options{MinDelay: 0, MaxDelay: 0}, nil)

	require.NoError(t, r.Connect(context.Background()))
	waitUntil(t, time.Second, func() bool { return conn.Dials() >= 1 })
	r.Destroy()

	dialsAtDestroy := conn.Dials()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, dialsAtDestroy, conn.Dials())
}
