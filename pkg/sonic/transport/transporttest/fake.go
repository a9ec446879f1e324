// Package transporttest provides in-memory provider stream fakes for
// tests.
package transporttest

import (
	"context"
	"errors"
	"sync"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/transport"
)

// ErrClosed is returned by Receive after the fake stream is closed.
var ErrClosed = errors.New("transporttest: stream closed")

// Conn is an in-memory provider stream. Frames sent by the session are
// recorded; frames queued with Deliver are handed to Receive in order.
type Conn struct {
	mu       sync.Mutex
	sent     [][]byte
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once

	// SendErr, when set, fails every Send.
	SendErr error
}

func NewConn() *Conn {
	return &Conn{
		incoming: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (c *Conn) Send(ctx context.Context, frame []byte) error {
	if c.SendErr != nil {
		return c.SendErr
	}
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	c.mu.Lock()
	c.sent = append(c.sent, cp)
	c.mu.Unlock()
	return nil
}

func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrClosed
	case frame := <-c.incoming:
		return frame, nil
	}
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Deliver queues a provider frame for Receive.
func (c *Conn) Deliver(frame []byte) {
	select {
	case c.incoming <- frame:
	case <-c.closed:
	}
}

// Sent returns a copy of every frame the session has sent.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Dialer hands out fake conns. When DialErr is set every dial fails.
type Dialer struct {
	mu      sync.Mutex
	conns   []*Conn
	DialErr error
}

func (d *Dialer) Dial(ctx context.Context, modelID string) (transport.Conn, error) {
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	c := NewConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

// Conns returns every conn handed out so far.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Conn, len(d.conns))
	copy(out, d.conns)
	return out
}

// LastConn returns the most recently dialed conn, or nil.
func (d *Dialer) LastConn() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
