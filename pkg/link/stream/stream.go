// Package stream carries all link channels over one byte stream, such as
// a serial port bridged to the radio module or a TCP socket.
//
// Each frame is prefixed by a 4-byte little-endian length, followed by
// the channel ID and the packet.
package stream

import (
	"context"
	"io"
	"net"
	"net/url"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/alcolock/pkg/link"
)

// Conn implements link.Conn over an io.ReadWriteCloser.
type Conn struct {
	rwc io.ReadWriteCloser
	mux link.Mux

	writeLock sync.Mutex
	closeOnce sync.Once
	doneCh    chan struct{}
	err       error
}

// New wraps rwc and starts receiving frames.
func New(rwc io.ReadWriteCloser) *Conn {
	c := &Conn{rwc: rwc, doneCh: make(chan struct{})}
	go c.readLoop()
	return c
}

// Write implements link.Conn. The write itself is bounded by the
// underlying stream; ctx is only checked before writing.
func (c *Conn) Write(ctx context.Context, ch link.ChannelID, payload []byte) error {
	if !ch.Valid() {
		return link.ErrInvalidChannel
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.doneCh:
		return link.ErrClosed
	default:
	}
	if conn, ok := c.rwc.(net.Conn); ok {
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetWriteDeadline(deadline)
		}
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	return link.WriteFrame(c.rwc, ch, payload)
}

// Subscribe implements link.Conn.
func (c *Conn) Subscribe(ch link.ChannelID, h link.Handler) (link.Subscription, error) {
	return c.mux.Subscribe(ch, h)
}

// Close implements link.Conn.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.rwc.Close()
	})
	return err
}

// Done is closed when the stream stops.
func (c *Conn) Done() <-chan struct{} {
	return c.doneCh
}

// Err returns the error which stopped the stream.
func (c *Conn) Err() error {
	<-c.doneCh
	return c.err
}

func (c *Conn) readLoop() {
	defer close(c.doneCh)
	for {
		frame, err := link.ReadFrame(c.rwc)
		if err != nil {
			if err != io.EOF {
				glog.Warningf("stream read error: %v", err)
			}
			c.err = err
			c.Close()
			return
		}
		ch, payload, err := link.DecodeFrame(frame)
		if err != nil {
			glog.Warningf("stream: drop frame: %v", err)
			continue
		}
		c.mux.Dispatch(ch, payload)
	}
}

// Transport implements link.Transport for tcp://host:port.
type Transport struct{}

func init() {
	link.Register(Transport{}, "tcp")
}

// Connect implements link.Dialer.
func (Transport) Connect(ctx context.Context, address string) (link.Conn, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// Listen implements link.Transport.
func (Transport) Listen(ctx context.Context, address string) (link.Listener, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", u.Host)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

// Listener accepts stream connections.
type Listener struct {
	ln net.Listener
}

// Addr returns the listening address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept implements link.Listener.
func (l *Listener) Accept(ctx context.Context) (link.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		resCh <- result{conn, err}
	}()
	select {
	case res := <-resCh:
		if res.err != nil {
			return nil, res.err
		}
		return New(res.conn), nil
	case <-ctx.Done():
		l.ln.Close()
		return nil, ctx.Err()
	}
}

// Close implements link.Listener.
func (l *Listener) Close() error {
	return l.ln.Close()
}
