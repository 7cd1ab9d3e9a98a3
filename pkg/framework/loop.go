package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the tick period when Loop.Interval is not set.
const DefaultInterval = time.Second

// Loop is a single-consumer event loop. Controllers run one at a time,
// stage by stage, either when Interval elapses or when TriggerNext is
// called, so controller state never needs locking.
type Loop struct {
	Interval time.Duration
	Clock    Clock

	controllers [stageCount][]Controller
	runners     []Runnable

	events eventList
	lock   sync.Mutex

	wakeUpCh chan struct{}
}

type eventList struct {
	items []Event
}

func (l *eventList) take() []Event {
	items := l.items
	l.items = nil
	return items
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval, Clock: SystemClock}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at a stage.
func (l *Loop) AddController(stage Stage, ctls ...Controller) *Loop {
	l.controllers[stage] = append(l.controllers[stage], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementations started with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// PostEvent implements LoopControl.
func (l *Loop) PostEvent(ev Event) {
	l.lock.Lock()
	l.events.items = append(l.events.items, ev)
	l.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	l.ensureWakeUp()
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

func (l *Loop) ensureWakeUp() {
	l.lock.Lock()
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	l.lock.Unlock()
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	l.ensureWakeUp()

	runner := NewRunnerWith(ctx)
	runner.Go(l.runners...)
	defer runner.Wait()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.RunIteration(ctx)
		case <-l.wakeUpCh:
			l.RunIteration(ctx)
		}
	}
}

// RunIteration runs every controller once over the pending events.
// Run calls it on each tick; tests may call it directly.
func (l *Loop) RunIteration(ctx context.Context) {
	clock := l.Clock
	if clock == nil {
		clock = SystemClock
	}
	iter := &iteration{loop: l, ctx: ctx, time: clock.Now()}
	l.lock.Lock()
	iter.events = l.events.take()
	l.lock.Unlock()
	for stage := Stage(0); stage < stageCount; stage++ {
		iter.stage = stage
		for _, ctl := range l.controllers[stage] {
			if err := ctl.Control(iter); err != nil {
				glog.Errorf("controller error: %v", err)
			}
		}
	}
	if len(iter.events) > 0 {
		glog.V(3).Infof("%d events not taken by any controller", len(iter.events))
	}
}

type iteration struct {
	loop   *Loop
	ctx    context.Context
	time   time.Time
	stage  Stage
	events []Event
}

func (t *iteration) Context() context.Context { return t.ctx }
func (t *iteration) Time() time.Time          { return t.time }
func (t *iteration) Stage() Stage             { return t.stage }
func (t *iteration) Events() EventQueue       { return t }
func (t *iteration) PostEvent(ev Event)       { t.loop.PostEvent(ev) }
func (t *iteration) TriggerNext()             { t.loop.TriggerNext() }
func (t *iteration) Len() int                 { return len(t.events) }

func (t *iteration) Process(fn func(Event) bool) {
	remains := t.events[:0]
	for _, ev := range t.events {
		if !fn(ev) {
			remains = append(remains, ev)
		}
	}
	for i := len(remains); i < len(t.events); i++ {
		t.events[i] = nil
	}
	t.events = remains
}
