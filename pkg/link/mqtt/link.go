package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/alcolock/pkg/link"
)

// Presence payloads, retained on <vehicle>/presence. The device sets a
// will so the broker clears presence when the device drops off.
var (
	PresenceOnline  = []byte("online")
	PresenceOffline = []byte{}
)

// DefaultConnectTimeout bounds the broker handshake.
const DefaultConnectTimeout = 10 * time.Second

// ChannelTopic returns the topic (without prefix) of ch for vehicle.
func ChannelTopic(vehicle string, ch link.ChannelID) string {
	return vehicle + "/" + ch.String()
}

// PresenceTopic returns the presence topic (without prefix) of vehicle.
func PresenceTopic(vehicle string) string {
	return vehicle + "/presence"
}

// Conn implements link.Conn on one vehicle's channel topics.
type Conn struct {
	Queue   *Queue
	Vehicle string

	ownQueue bool
	lock     sync.Mutex
	subs     []*Subscription
	closed   bool
	doneCh   chan struct{}
	dropOnce sync.Once
}

// NewConn creates a Conn on an existing queue. The queue is not closed
// when the Conn closes.
func NewConn(q *Queue, vehicle string) *Conn {
	return &Conn{Queue: q, Vehicle: vehicle, doneCh: make(chan struct{})}
}

// Done is closed when the Conn is closed or, on the vehicle side, when
// the device's presence goes offline.
func (c *Conn) Done() <-chan struct{} {
	return c.doneCh
}

func (c *Conn) drop() {
	c.dropOnce.Do(func() { close(c.doneCh) })
}

// Write implements link.Conn. It waits for the broker to acknowledge.
func (c *Conn) Write(ctx context.Context, ch link.ChannelID, payload []byte) error {
	if !ch.Valid() {
		return link.ErrInvalidChannel
	}
	if c.isClosed() {
		return link.ErrClosed
	}
	token := c.Queue.Pub(ChannelTopic(c.Vehicle, ch), payload)
	return waitToken(ctx, token)
}

// Subscribe implements link.Conn.
func (c *Conn) Subscribe(ch link.ChannelID, h link.Handler) (link.Subscription, error) {
	if !ch.Valid() {
		return nil, link.ErrInvalidChannel
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return nil, link.ErrClosed
	}
	sub := c.Queue.Sub(ChannelTopic(c.Vehicle, ch), func(_ string, payload []byte) {
		h(ch, payload)
	})
	c.subs = append(c.subs, sub)
	return sub, nil
}

// Close implements link.Conn.
func (c *Conn) Close() error {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.lock.Unlock()
	c.drop()
	for _, sub := range subs {
		sub.Close()
	}
	if c.ownQueue {
		c.Queue.PubWith(PresenceTopic(c.Vehicle), PresenceOffline, 1, true).WaitTimeout(time.Second)
		c.Queue.Close()
	}
	return nil
}

func (c *Conn) isClosed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.closed
}

func waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transport implements link.Transport over a broker.
type Transport struct{}

func init() {
	link.Register(Transport{}, "mqtt", "mqtts")
}

func parseVehicleURL(address string) (*paho.ClientOptions, URLOptions, error) {
	opts, uo, err := ClientOptionsFromURL(address)
	if err != nil {
		return nil, uo, err
	}
	if uo.Vehicle == "" {
		return nil, uo, fmt.Errorf("link URL requires vehicle: %q", address)
	}
	if strings.ContainsAny(uo.Vehicle, "/+#") {
		return nil, uo, fmt.Errorf("invalid vehicle ID: %q", uo.Vehicle)
	}
	return opts, uo, nil
}

func connectQueue(ctx context.Context, q *Queue) error {
	token := q.Connect()
	ctx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()
	return waitToken(ctx, token)
}

// Connect implements link.Dialer for the device side. It announces
// presence so a listening vehicle accepts the link.
func (Transport) Connect(ctx context.Context, address string) (link.Conn, error) {
	opts, uo, err := parseVehicleURL(address)
	if err != nil {
		return nil, err
	}
	presence := uo.TopicPrefix + PresenceTopic(uo.Vehicle)
	opts.SetBinaryWill(presence, PresenceOffline, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("alcolock:wrist:" + uo.Vehicle)
	}
	q := NewQueue(opts, uo.TopicPrefix)
	q.OnConnect = func(q *Queue) {
		q.PubWith(PresenceTopic(uo.Vehicle), PresenceOnline, 1, true)
	}
	if err := connectQueue(ctx, q); err != nil {
		return nil, err
	}
	conn := NewConn(q, uo.Vehicle)
	conn.ownQueue = true
	return conn, nil
}

// Listen implements link.Transport for the vehicle side.
func (Transport) Listen(ctx context.Context, address string) (link.Listener, error) {
	opts, uo, err := parseVehicleURL(address)
	if err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		opts.SetClientID("alcolock:vehicle:" + uo.Vehicle)
	}
	l := &Listener{
		Queue:    NewQueue(opts, uo.TopicPrefix),
		Vehicle:  uo.Vehicle,
		onlineCh: make(chan struct{}, 1),
	}
	l.presenceSub = l.Queue.Sub(PresenceTopic(uo.Vehicle), l.handlePresence)
	if err := connectQueue(ctx, l.Queue); err != nil {
		return nil, err
	}
	return l, nil
}

// Listener waits for the device of one vehicle to announce presence.
type Listener struct {
	Queue   *Queue
	Vehicle string

	presenceSub *Subscription
	onlineCh    chan struct{}

	lock    sync.Mutex
	current *Conn
}

func (l *Listener) handlePresence(_ string, payload []byte) {
	if len(payload) == 0 {
		glog.Infof("device of %s offline", l.Vehicle)
		l.lock.Lock()
		conn := l.current
		l.current = nil
		l.lock.Unlock()
		if conn != nil {
			conn.drop()
		}
		return
	}
	glog.Infof("device of %s online", l.Vehicle)
	select {
	case l.onlineCh <- struct{}{}:
	default:
	}
}

// Accept implements link.Listener. The returned Conn shares the
// listener's broker session.
func (l *Listener) Accept(ctx context.Context) (link.Conn, error) {
	select {
	case <-l.onlineCh:
		conn := NewConn(l.Queue, l.Vehicle)
		l.lock.Lock()
		l.current = conn
		l.lock.Unlock()
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements link.Listener.
func (l *Listener) Close() error {
	l.presenceSub.Close()
	return l.Queue.Close()
}

// Discover lists vehicles whose device currently announces presence on
// the broker at brokerURL.
func Discover(ctx context.Context, brokerURL string, wait time.Duration) ([]string, error) {
	q, err := NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if err := connectQueue(ctx, q); err != nil {
		return nil, err
	}
	defer q.Close()

	var lock sync.Mutex
	online := make(map[string]bool)
	sub := q.Sub("+/presence", func(topic string, payload []byte) {
		vehicle := strings.TrimSuffix(topic, "/presence")
		lock.Lock()
		online[vehicle] = len(payload) > 0
		lock.Unlock()
	})
	defer sub.Close()

	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	lock.Lock()
	defer lock.Unlock()
	var vehicles []string
	for vehicle, on := range online {
		if on {
			vehicles = append(vehicles, vehicle)
		}
	}
	return vehicles, nil
}
