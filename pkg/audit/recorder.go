package audit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/alcolock/pkg/framework"
	"github.com/robotalks/alcolock/pkg/ignition"
	"github.com/robotalks/alcolock/pkg/protocol"
)

// Sink stores events.
type Sink interface {
	Record(ctx context.Context, ev *Event) error
	Close() error
}

// Multi fans out to all sinks and aggregates their errors.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, ev *Event) error {
	var errs fx.AggregatedError
	for _, sink := range m {
		errs.Add(sink.Record(ctx, ev))
	}
	return errs.Aggregate()
}

// Close implements Sink.
func (m Multi) Close() error {
	var errs fx.AggregatedError
	for _, sink := range m {
		errs.Add(sink.Close())
	}
	return errs.Aggregate()
}

// Recorder defaults.
const (
	DefaultBufferSize    = 64
	DefaultRecordTimeout = 5 * time.Second
)

// Recorder queues events and writes them to Sink in the background,
// so a slow store never stalls the controller. Events are dropped with
// a warning when the queue is full.
type Recorder struct {
	Sink          Sink
	Vehicle       string
	RecordTimeout time.Duration
	Clock         fx.Clock

	queue   chan *Event
	dropped uint64
}

// NewRecorder creates a Recorder.
func NewRecorder(sink Sink, vehicle string) *Recorder {
	return &Recorder{
		Sink:          sink,
		Vehicle:       vehicle,
		RecordTimeout: DefaultRecordTimeout,
		Clock:         fx.SystemClock,
		queue:         make(chan *Event, DefaultBufferSize),
	}
}

// Post queues an event without blocking.
func (r *Recorder) Post(ev *Event) {
	select {
	case r.queue <- ev:
	default:
		atomic.AddUint64(&r.dropped, 1)
		glog.Warningf("audit queue full, drop %s event %s", ev.Kind, ev.ID)
	}
}

// Dropped is the number of events dropped because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return atomic.LoadUint64(&r.dropped)
}

// OnDecision can be set as ignition.Controller.OnDecision.
func (r *Recorder) OnDecision(d ignition.Decision) {
	r.Post(NewDecisionEvent(r.Vehicle, d, r.Clock.Now()))
}

// OnSystemStatus can be set as ignition.Controller.OnSystemStatus.
func (r *Recorder) OnSystemStatus(s protocol.SystemStatus) {
	r.Post(NewTelemetryEvent(r.Vehicle, s, r.Clock.Now()))
}

// Observe hooks the recorder into a controller.
func (r *Recorder) Observe(ctl *ignition.Controller) {
	ctl.OnDecision = r.OnDecision
	ctl.OnSystemStatus = r.OnSystemStatus
}

// Run implements Runnable. Queued events are flushed before returning
// and the sink is closed.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.Sink.Close()
	for {
		select {
		case ev := <-r.queue:
			r.write(context.Background(), ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-r.queue:
					r.write(context.Background(), ev)
				default:
					return ctx.Err()
				}
			}
		}
	}
}

func (r *Recorder) write(ctx context.Context, ev *Event) {
	timeout := r.RecordTimeout
	if timeout <= 0 {
		timeout = DefaultRecordTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := r.Sink.Record(ctx, ev); err != nil {
		glog.Warningf("audit record %s: %v", ev.ID, err)
		return
	}
	glog.V(3).Infof("audit recorded %s %s", ev.Kind, ev.ID)
}
