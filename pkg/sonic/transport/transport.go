// Package transport abstracts the bidirectional stream to the speech
// provider. Sessions speak to a Conn; the concrete implementation here
// rides a WebSocket.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one bidirectional provider stream. Send may be called from
// multiple goroutines; Receive has a single reader.
type Conn interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens provider streams.
type Dialer interface {
	Dial(ctx context.Context, modelID string) (Conn, error)
}

// WSDialer dials the provider's WebSocket endpoint.
type WSDialer struct {
	URL          string
	AuthToken    string
	WriteTimeout time.Duration
}

func (d *WSDialer) Dial(ctx context.Context, modelID string) (Conn, error) {
	if d.URL == "" {
		return nil, fmt.Errorf("provider url not configured")
	}
	header := http.Header{}
	if d.AuthToken != "" {
		header.Set("Authorization", "Bearer "+d.AuthToken)
	}
	if modelID != "" {
		header.Set("X-Model-Id", modelID)
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial provider: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial provider: %w", err)
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &wsConn{ws: ws, writeTimeout: writeTimeout}, nil
}

type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex // serializes writes
	closed bool
}

func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("send on closed provider stream")
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write provider frame: %w", err)
	}
	return nil
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	if d, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(d)
	} else {
		_ = c.ws.SetReadDeadline(time.Time{})
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read provider frame: %w", err)
	}
	return data, nil
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	deadline := time.Now().Add(c.writeTimeout)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}
