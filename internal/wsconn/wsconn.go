// Package wsconn is the concrete transport.Connection spec section 4.3
// leaves to a host adapter: one wire.Message per WebSocket text frame,
// using gorilla/websocket. Grounded on the teacher pack's client/server
// dial-and-pump structure, reshaped around transport.Emitter instead of
// the teacher's direct callback fields.
package wsconn

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"actionsync/internal/transport"
	"actionsync/internal/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn adapts a single *websocket.Conn, either dialed as a client or
// accepted as a server, to transport.Connection.
type Conn struct {
	transport.Emitter

	mu        sync.Mutex
	ws        *websocket.Conn
	connected bool
	destroyed bool
	writeMu   sync.Mutex

	url     string
	dialer  *websocket.Dialer
	header  http.Header
}

// Dial returns a client-side Conn that connects to url on Connect().
func Dial(url string) *Conn {
	return &Conn{url: url, dialer: websocket.DefaultDialer}
}

// Accept wraps an already-upgraded server-side *websocket.Conn (see
// Upgrade) as a transport.Connection. It is already Connected().
func Accept(ws *websocket.Conn) *Conn {
	c := &Conn{ws: ws, connected: true}
	go c.readLoop()
	return c
}

// Upgrade performs the HTTP→WebSocket upgrade and returns an accepted
// Conn, for use inside an http.Handler.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: upgrade: %w", err)
	}
	return Accept(ws), nil
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return fmt.Errorf("wsconn: connection destroyed")
	}
	if c.ws != nil {
		c.mu.Unlock()
		return fmt.Errorf("wsconn: already dialed")
	}
	c.mu.Unlock()

	c.FireConnecting()

	dialer := c.dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("wsconn: dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		ws.Close()
		return fmt.Errorf("wsconn: connection destroyed")
	}
	c.ws = ws
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()
	c.FireConnect()
	return nil
}

func (c *Conn) Disconnect(reason transport.Reason) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(reason)),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		ws.Close()
	}
	c.FireDisconnect(reason)
}

func (c *Conn) Send(msg wire.Message) error {
	c.mu.Lock()
	ws := c.ws
	connected := c.connected
	c.mu.Unlock()
	if !connected || ws == nil {
		return fmt.Errorf("wsconn: not connected")
	}

	data, err := msg.MarshalJSON()
	if err != nil {
		return fmt.Errorf("wsconn: encode message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("wsconn: write: %w", err)
	}
	return nil
}

func (c *Conn) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.connected = false
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
	c.Emitter.Clear()
}

// readLoop pumps inbound frames until the socket closes, firing Message
// for each well-formed frame and Disconnect when the loop ends.
func (c *Conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasConnected := c.connected
			c.connected = false
			destroyed := c.destroyed
			c.mu.Unlock()
			if wasConnected && !destroyed {
				c.FireDisconnect(transport.ReasonError)
			}
			return
		}

		var msg wire.Message
		if err := msg.UnmarshalJSON(data); err != nil {
			c.FireError(fmt.Errorf("wsconn: %w", err))
			continue
		}
		c.FireMessage(msg)
	}
}
