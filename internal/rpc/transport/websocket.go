package transport

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket defaults.
const (
	DefaultWriteTimeout   = 15 * time.Second
	DefaultPongTimeout    = 60 * time.Second
	DefaultPingInterval   = 30 * time.Second
	DefaultMaxMessageSize = 1024 * 1024
)

// WebSocketTransport carries one JSON-RPC message per text frame.
type WebSocketTransport struct {
	id   string
	conn *websocket.Conn

	writeTimeout time.Duration

	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// WebSocketOption configures a WebSocketTransport.
type WebSocketOption func(*WebSocketTransport)

// WithWriteTimeout sets the write timeout.
func WithWriteTimeout(d time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.writeTimeout = d
	}
}

// WithTransportID sets a custom ID for the transport.
func WithTransportID(id string) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.id = id
	}
}

// NewWebSocketTransport wraps conn and starts its keepalive pings.
func NewWebSocketTransport(conn *websocket.Conn, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		id:           GenerateID(),
		conn:         conn,
		writeTimeout: DefaultWriteTimeout,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	conn.SetReadLimit(DefaultMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(DefaultPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(DefaultPongTimeout))
	})

	go t.pingLoop()
	return t
}

func (t *WebSocketTransport) pingLoop() {
	ticker := time.NewTicker(DefaultPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				return
			}
			_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// ID returns the unique identifier for this transport.
func (t *WebSocketTransport) ID() string {
	return t.id
}

// Read returns the next text message. Binary frames are skipped.
func (t *WebSocketTransport) Read(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-t.done:
			return nil, ErrTransportClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		// Any frame proves the peer is alive.
		_ = t.conn.SetReadDeadline(time.Now().Add(DefaultPongTimeout))

		if messageType == websocket.TextMessage {
			return data, nil
		}
	}
}

// Write sends data as a text frame.
func (t *WebSocketTransport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}

	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)

	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the connection.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)

	_ = t.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	return t.conn.Close()
}

// Done returns a channel that's closed when the transport is closed.
func (t *WebSocketTransport) Done() <-chan struct{} {
	return t.done
}

// Info returns metadata about the connection.
func (t *WebSocketTransport) Info() Info {
	return Info{
		Type:       "websocket",
		RemoteAddr: t.conn.RemoteAddr().String(),
	}
}
