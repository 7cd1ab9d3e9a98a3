package link

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// Outbox defaults.
const (
	DefaultRetryInterval = time.Second
	DefaultWriteTimeout  = 2 * time.Second
)

// Outbox writes to one channel without blocking the caller. It holds at
// most one pending payload: a newer Send replaces an unsent or failed
// one, since only the latest command reflects the current decision.
// A failed write is logged and retried every RetryInterval.
type Outbox struct {
	Conn          Conn
	Channel       ChannelID
	RetryInterval time.Duration
	WriteTimeout  time.Duration

	lock    sync.Mutex
	pending []byte
	wakeCh  chan struct{}

	sent   uint64
	failed uint64
}

// NewOutbox creates an Outbox writing to ch on conn.
func NewOutbox(conn Conn, ch ChannelID) *Outbox {
	return &Outbox{
		Conn:          conn,
		Channel:       ch,
		RetryInterval: DefaultRetryInterval,
		WriteTimeout:  DefaultWriteTimeout,
		wakeCh:        make(chan struct{}, 1),
	}
}

// Send queues payload, replacing any pending payload.
func (o *Outbox) Send(payload []byte) {
	o.lock.Lock()
	if o.pending != nil {
		glog.V(2).Infof("outbox %s: superseding pending payload", o.Channel)
	}
	o.pending = payload
	o.lock.Unlock()
	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
}

// Pending reports whether a payload waits to be written.
func (o *Outbox) Pending() bool {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.pending != nil
}

// Stats returns the number of successful and failed writes.
func (o *Outbox) Stats() (sent, failed uint64) {
	return atomic.LoadUint64(&o.sent), atomic.LoadUint64(&o.failed)
}

// Run implements Runnable.
func (o *Outbox) Run(ctx context.Context) error {
	interval := o.RetryInterval
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.wakeCh:
			o.Flush(ctx)
		case <-ticker.C:
			o.Flush(ctx)
		}
	}
}

// Flush writes the pending payload, if any.
func (o *Outbox) Flush(ctx context.Context) {
	o.lock.Lock()
	payload := o.pending
	o.pending = nil
	o.lock.Unlock()
	if payload == nil {
		return
	}

	timeout := o.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	err := o.Conn.Write(writeCtx, o.Channel, payload)
	cancel()
	if err == nil {
		atomic.AddUint64(&o.sent, 1)
		return
	}

	atomic.AddUint64(&o.failed, 1)
	glog.Warningf("%v, will retry", &WriteError{Channel: o.Channel, Err: err})
	o.lock.Lock()
	if o.pending == nil {
		o.pending = payload
	}
	o.lock.Unlock()
}
