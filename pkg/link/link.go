// Package link abstracts the short-range channel between the wrist
// device and the vehicle.
package link

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
)

// ChannelID identifies one of the three logical channels. Each channel
// carries exactly one packet type.
type ChannelID uint8

// Channels.
const (
	ChannelBACStatus      ChannelID = 1
	ChannelVehicleCommand ChannelID = 2
	ChannelSystemStatus   ChannelID = 3
)

// Channels lists all channels.
var Channels = []ChannelID{ChannelBACStatus, ChannelVehicleCommand, ChannelSystemStatus}

// ServiceUUID is the GATT service exposing the three channels.
const ServiceUUID = "12345678-1234-5678-1234-56789abcdef0"

var channelInfo = map[ChannelID]struct {
	name string
	uuid string
}{
	ChannelBACStatus:      {"bac", "12345678-1234-5678-1234-56789abcdef1"},
	ChannelVehicleCommand: {"cmd", "12345678-1234-5678-1234-56789abcdef2"},
	ChannelSystemStatus:   {"sys", "12345678-1234-5678-1234-56789abcdef3"},
}

// Valid checks if the channel is defined.
func (c ChannelID) Valid() bool {
	_, ok := channelInfo[c]
	return ok
}

// String implements fmt.Stringer.
func (c ChannelID) String() string {
	if info, ok := channelInfo[c]; ok {
		return info.name
	}
	return fmt.Sprintf("channel(%d)", uint8(c))
}

// UUID is the GATT characteristic UUID of the channel.
func (c ChannelID) UUID() string {
	return channelInfo[c].uuid
}

// ParseChannel converts a channel name back to its ID.
func ParseChannel(name string) (ChannelID, bool) {
	for id, info := range channelInfo {
		if info.name == name {
			return id, true
		}
	}
	return 0, false
}

// Handler receives one inbound notification. It is called at most once
// per notification and in arrival order for a given channel. Handlers
// must not block; they run on the transport's receive path.
type Handler func(ch ChannelID, payload []byte)

// Subscription is an active Subscribe registration.
type Subscription interface {
	// Close stops delivery to the handler.
	Close() error
}

// Conn is a connected link handle.
type Conn interface {
	// Write sends payload on a channel.
	Write(ctx context.Context, ch ChannelID, payload []byte) error
	// Subscribe registers a handler for inbound notifications.
	Subscribe(ch ChannelID, h Handler) (Subscription, error)
	// Close disconnects.
	Close() error
}

// Dialer connects to the peer identified by address.
type Dialer interface {
	Connect(ctx context.Context, address string) (Conn, error)
}

// Listener accepts connections from peers.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
}

var (
	// ErrClosed indicates the connection is closed.
	ErrClosed = errors.New("link closed")
	// ErrInvalidChannel indicates an unknown channel ID.
	ErrInvalidChannel = errors.New("invalid channel")
)

// WriteError wraps an outbound write failure.
type WriteError struct {
	Channel ChannelID
	Err     error
}

// Error implements error.
func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Channel, e.Err)
}

// Unwrap returns the transport error.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// Transport creates dialers and listeners for a URL scheme.
type Transport interface {
	Dialer
	Listen(ctx context.Context, address string) (Listener, error)
}

var (
	transports     = make(map[string]Transport)
	transportsLock sync.RWMutex
)

// Register makes a transport available for its URL schemes.
// Adapters call it from init.
func Register(t Transport, schemes ...string) {
	transportsLock.Lock()
	defer transportsLock.Unlock()
	for _, scheme := range schemes {
		transports[scheme] = t
	}
}

func lookup(address string) (Transport, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid link URL: %v", err)
	}
	transportsLock.RLock()
	t := transports[u.Scheme]
	transportsLock.RUnlock()
	if t == nil {
		return nil, fmt.Errorf("unknown link URL scheme: %q", u.Scheme)
	}
	return t, nil
}

// Connect dials address using the transport registered for its scheme.
func Connect(ctx context.Context, address string) (Conn, error) {
	t, err := lookup(address)
	if err != nil {
		return nil, err
	}
	return t.Connect(ctx, address)
}

// Listen listens on address using the transport registered for its scheme.
func Listen(ctx context.Context, address string) (Listener, error) {
	t, err := lookup(address)
	if err != nil {
		return nil, err
	}
	return t.Listen(ctx, address)
}
