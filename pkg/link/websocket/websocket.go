// Package websocket carries link channels as binary websocket messages,
// one channel-tagged frame per message.
package websocket

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/alcolock/pkg/link"
)

// Conn implements link.Conn over websocket.Conn.
type Conn struct {
	ws  *websocket.Conn
	mux link.Mux

	writeLock sync.Mutex
	closeOnce sync.Once
	doneCh    chan struct{}
}

// New wraps ws and starts receiving messages.
func New(ws *websocket.Conn) *Conn {
	c := &Conn{ws: ws, doneCh: make(chan struct{})}
	ws.PayloadType = websocket.BinaryFrame
	go c.readLoop()
	return c
}

// Write implements link.Conn.
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
	if deadline, ok := ctx.Deadline(); ok {
		c.ws.SetWriteDeadline(deadline)
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	return websocket.Message.Send(c.ws, link.EncodeFrame(ch, payload))
}

// Subscribe implements link.Conn.
func (c *Conn) Subscribe(ch link.ChannelID, h link.Handler) (link.Subscription, error) {
	return c.mux.Subscribe(ch, h)
}

// Close implements link.Conn.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
	})
	return err
}

// Done is closed when the socket stops receiving.
func (c *Conn) Done() <-chan struct{} {
	return c.doneCh
}

func (c *Conn) readLoop() {
	defer close(c.doneCh)
	for {
		var frame []byte
		if err := websocket.Message.Receive(c.ws, &frame); err != nil {
			glog.V(1).Infof("websocket receive stopped: %v", err)
			c.Close()
			return
		}
		ch, payload, err := link.DecodeFrame(frame)
		if err != nil {
			glog.Warningf("websocket: drop frame: %v", err)
			continue
		}
		c.mux.Dispatch(ch, payload)
	}
}

// Transport implements link.Transport for ws:// and wss:// URLs.
type Transport struct{}

func init() {
	link.Register(Transport{}, "ws", "wss")
}

// Connect implements link.Dialer.
func (Transport) Connect(ctx context.Context, address string) (link.Conn, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	origin := "http://" + u.Host + "/"
	if u.Scheme == "wss" {
		origin = "https://" + u.Host + "/"
	}
	config, err := websocket.NewConfig(address, origin)
	if err != nil {
		return nil, err
	}
	ws, err := config.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	return New(ws), nil
}

// Listen implements link.Transport. Only the host and path of address
// are used; TLS termination is left to a front proxy.
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
	l := NewListener()
	path := u.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(path, l)
	l.server = &http.Server{Handler: mux}
	l.netLn = ln
	go func() {
		if err := l.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			glog.Errorf("websocket server: %v", err)
		}
	}()
	return l, nil
}

// Listener is an http.Handler upgrading requests to link connections.
// It can be mounted on an existing server.
type Listener struct {
	server *http.Server
	netLn  net.Listener

	handler  websocket.Handler
	acceptCh chan *Conn
	doneCh   chan struct{}
	once     sync.Once
}

// NewListener creates a Listener for mounting on an HTTP server.
func NewListener() *Listener {
	l := &Listener{
		acceptCh: make(chan *Conn),
		doneCh:   make(chan struct{}),
	}
	l.handler = websocket.Handler(l.serve)
	return l
}

// Addr returns the listening address when created by Listen.
func (l *Listener) Addr() net.Addr {
	if l.netLn == nil {
		return nil
	}
	return l.netLn.Addr()
}

// ServeHTTP implements http.Handler.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.handler.ServeHTTP(w, r)
}

// serve hands the connection to Accept and holds the handler until the
// connection ends, since returning closes the socket.
func (l *Listener) serve(ws *websocket.Conn) {
	conn := New(ws)
	select {
	case l.acceptCh <- conn:
		<-conn.Done()
	case <-l.doneCh:
		conn.Close()
	}
}

// Accept implements link.Listener.
func (l *Listener) Accept(ctx context.Context) (link.Conn, error) {
	select {
	case conn := <-l.acceptCh:
		return conn, nil
	case <-l.doneCh:
		return nil, link.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements link.Listener.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.doneCh)
		if l.server != nil {
			err = l.server.Close()
		}
	})
	return err
}
