package node_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"actionsync/internal/action"
	"actionsync/internal/alog"
	"actionsync/internal/node"
	"actionsync/internal/store"
	"actionsync/internal/synctest"
	"actionsync/internal/wire"
)

type fixedClock int64

func (c fixedClock) Now() int64 { return int64(c) }

func newPair(t *testing.T, clientOpts, serverOpts node.Options) (*node.ClientNode, *node.ServerNode, *alog.Log, *alog.Log) {
	t.Helper()
	clientConn, serverConn := synctest.NewPair()

	clientLog, err := alog.New("client", store.NewMemory(), alog.Options{Now: synctest.NewClock(1).Now})
	require.NoError(t, err)
	serverLog, err := alog.New("server", store.NewMemory(), alog.Options{Now: synctest.NewClock(1).Now})
	require.NoError(t, err)

	client, err := node.NewClient(clientLog, clientConn, clientOpts)
	require.NoError(t, err)
	server, err := node.NewServer(serverLog, serverConn, serverOpts)
	require.NoError(t, err)

	return client, server, clientLog, serverLog
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

func TestHandshakeRoundTripSync(t *testing.T) {
	client, server, clientLog, serverLog := newPair(t, node.Options{}, node.Options{})
	defer client.Destroy()
	defer server.Destroy()

	_, _, err := clientLog.Add(context.Background(), action.Action{"type": "ADD", "text": "hi"}, &action.Meta{Reasons: []string{"test"}})
	require.NoError(t, err)

	require.NoError(t, client.Connect(context.Background()))

	waitUntil(t, time.Second, func() bool {
		page, err := serverLog.Store().Get(context.Background(), store.OrderAdded)
		require.NoError(t, err)
		return len(page.Entries) == 1
	})

	waitUntil(t, time.Second, func() bool {
		return client.Authenticated() && server.Authenticated()
	})
	require.Equal(t, "client", server.RemoteNodeID())
	require.Equal(t, "server", client.RemoteNodeID())

	page, err := serverLog.Store().Get(context.Background(), store.OrderAdded)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	require.Equal(t, "hi", page.Entries[0].Action["text"])
}

func TestTimeFixComputation(t *testing.T) {
	client, server, _, _ := newPair(t, node.Options{FixTime: true, Timer: fixedClock(100).Now}, node.Options{Timer: fixedClock(700).Now})
	defer client.Destroy()
	defer server.Destroy()

	require.NoError(t, client.Connect(context.Background()))
	waitUntil(t, time.Second, func() bool { return client.Authenticated() })

	// localSend=100, localReceive=100, T0=700, T1=700:
	// timeFix = ((100+100) - (700+700)) / 2 = -600
	require.EqualValues(t, -600, client.TimeFix())
}

func TestWrongFormatDisconnectsSender(t *testing.T) {
	clientConn, serverConn := synctest.NewPair()
	serverLog, err := alog.New("server", store.NewMemory(), alog.Options{})
	require.NoError(t, err)
	server, err := node.NewServer(serverLog, serverConn, node.Options{})
	require.NoError(t, err)
	defer server.Destroy()

	require.NoError(t, clientConn.Connect(context.Background()))
	waitUntil(t, time.Second, func() bool { return clientConn.Connected() })

	// Complete the handshake first, so the malformed ping is judged by the
	// ping grammar rather than rejected as missed-auth.
	connect, err := wire.NewConnect(wire.Protocol{Major: 0, Minor: 2}, "client", 0, nil)
	require.NoError(t, err)
	require.NoError(t, clientConn.Send(connect))
	waitUntil(t, time.Second, func() bool { return server.Authenticated() })

	msg, err := wire.NewPing(0)
	require.NoError(t, err)
	msg.Args = msg.Args[:0] // malformed: missing the synced payload
	require.NoError(t, clientConn.Send(msg))

	waitUntil(t, time.Second, func() bool { return !server.Connected() })
}

func TestNoPingBeforeAuth(t *testing.T) {
	clientConn, serverConn := synctest.NewPair()
	serverLog, err := alog.New("server", store.NewMemory(), alog.Options{})
	require.NoError(t, err)
	// A server with no peer ever completing the handshake: the transport
	// connects, but "connect" never arrives, so authenticated never
	// becomes true.
	server, err := node.NewServer(serverLog, serverConn, node.Options{Ping: 20 * time.Millisecond, Timeout: 100 * time.Millisecond})
	require.NoError(t, err)
	defer server.Destroy()

	var pinged bool
	clientConn.OnMessage(func(m wire.Message) {
		if m.Tag == wire.TagPing {
			pinged = true
		}
	})

	require.NoError(t, clientConn.Connect(context.Background()))
	time.Sleep(80 * time.Millisecond)
	require.False(t, pinged)
}

func TestSinglePingWhenTimeoutGreaterThanPing(t *testing.T) {
	clientConn, serverConn := synctest.NewPair()
	clientLog, err := alog.New("client", store.NewMemory(), alog.Options{})
	require.NoError(t, err)

	client, err := node.NewClient(clientLog, clientConn, node.Options{Ping: 30 * time.Millisecond, Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	defer client.Destroy()

	// The peer answers the handshake but never replies to pings: a pong
	// would restart the client's ping timer and legitimately cause a
	// second ping, so only a silent peer isolates the client's own ping
	// schedule.
	connected, err := wire.NewConnected(wire.Protocol{Major: 0, Minor: 2}, "server", 0, 0, nil)
	require.NoError(t, err)

	var pings int
	serverConn.OnMessage(func(m wire.Message) {
		switch m.Tag {
		case wire.TagConnect:
			_ = serverConn.Send(connected)
		case wire.TagPing:
			pings++
		}
	})

	require.NoError(t, client.Connect(context.Background()))
	waitUntil(t, time.Second, func() bool { return client.Authenticated() })
	time.Sleep(75 * time.Millisecond)
	require.LessOrEqual(t, pings, 1)
}
