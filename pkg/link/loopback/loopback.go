// Package loopback provides an in-memory link for tests and for running
// the device simulator and the immobilizer in one process.
package loopback

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/robotalks/alcolock/pkg/link"
)

// Conn is one end of an in-memory link. Writes are delivered
// synchronously to the peer's subscribers, so per-channel order is the
// order of Write calls.
type Conn struct {
	peer *Conn
	mux  link.Mux

	lock     sync.Mutex
	closed   bool
	writeErr error
	muted    map[link.ChannelID]bool
}

// Pipe creates two connected ends.
func Pipe() (*Conn, *Conn) {
	a, b := &Conn{}, &Conn{}
	a.peer, b.peer = b, a
	return a, b
}

// FailWrites makes subsequent writes from this end fail with err until
// called again with nil.
func (c *Conn) FailWrites(err error) {
	c.lock.Lock()
	c.writeErr = err
	c.lock.Unlock()
}

// Mute silently drops writes on ch from this end, simulating a silent
// radio without reporting errors.
func (c *Conn) Mute(ch link.ChannelID, mute bool) {
	c.lock.Lock()
	if c.muted == nil {
		c.muted = make(map[link.ChannelID]bool)
	}
	c.muted[ch] = mute
	c.lock.Unlock()
}

// Write implements link.Conn.
func (c *Conn) Write(ctx context.Context, ch link.ChannelID, payload []byte) error {
	if !ch.Valid() {
		return link.ErrInvalidChannel
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.lock.Lock()
	closed, err, muted := c.closed, c.writeErr, c.muted[ch]
	c.lock.Unlock()
	if closed {
		return link.ErrClosed
	}
	if err != nil {
		return err
	}
	if muted {
		return nil
	}
	peer := c.peer
	peer.lock.Lock()
	peerClosed := peer.closed
	peer.lock.Unlock()
	if peerClosed {
		return link.ErrClosed
	}
	peer.mux.Dispatch(ch, append([]byte(nil), payload...))
	return nil
}

// Subscribe implements link.Conn.
func (c *Conn) Subscribe(ch link.ChannelID, h link.Handler) (link.Subscription, error) {
	return c.mux.Subscribe(ch, h)
}

// Close implements link.Conn.
func (c *Conn) Close() error {
	c.lock.Lock()
	c.closed = true
	c.lock.Unlock()
	return nil
}

// Closed reports whether Close was called on this end.
func (c *Conn) Closed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.closed
}

// Hub pairs named listeners with dialers: loopback://NAME.
type Hub struct {
	lock      sync.Mutex
	listeners map[string]*Listener
}

// DefaultHub backs the registered "loopback" transport.
var DefaultHub = &Hub{}

func init() {
	link.Register(DefaultHub, "loopback")
}

func endpointName(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("loopback address requires a name: %q", address)
	}
	return u.Host, nil
}

// Listen implements link.Transport.
func (h *Hub) Listen(ctx context.Context, address string) (link.Listener, error) {
	name, err := endpointName(address)
	if err != nil {
		return nil, err
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.listeners == nil {
		h.listeners = make(map[string]*Listener)
	}
	if _, exists := h.listeners[name]; exists {
		return nil, fmt.Errorf("loopback %q already listening", name)
	}
	l := &Listener{hub: h, name: name, acceptCh: make(chan *Conn)}
	h.listeners[name] = l
	return l, nil
}

// Connect implements link.Dialer.
func (h *Hub) Connect(ctx context.Context, address string) (link.Conn, error) {
	name, err := endpointName(address)
	if err != nil {
		return nil, err
	}
	h.lock.Lock()
	l := h.listeners[name]
	h.lock.Unlock()
	if l == nil {
		return nil, fmt.Errorf("loopback %q not listening", name)
	}
	local, remote := Pipe()
	select {
	case l.acceptCh <- remote:
		return local, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Listener accepts loopback connections.
type Listener struct {
	hub      *Hub
	name     string
	acceptCh chan *Conn
}

// Accept implements link.Listener.
func (l *Listener) Accept(ctx context.Context) (link.Conn, error) {
	select {
	case conn := <-l.acceptCh:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements link.Listener.
func (l *Listener) Close() error {
	l.hub.lock.Lock()
	if l.hub.listeners[l.name] == l {
		delete(l.hub.listeners, l.name)
	}
	l.hub.lock.Unlock()
	return nil
}
