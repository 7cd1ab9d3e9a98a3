package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopStagesAndEvents(t *testing.T) {
	loop := NewLoop()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	loop.Clock = ClockFunc(func() time.Time { return now })

	var trace []string
	loop.AddController(StageActuate, ControlFunc(func(cc ControlContext) error {
		trace = append(trace, "actuate")
		require.Equal(t, 1, cc.Events().Len())
		return nil
	}))
	loop.AddController(StageSense, ControlFunc(func(cc ControlContext) error {
		trace = append(trace, "sense")
		require.Equal(t, now, cc.Time())
		require.Equal(t, StageSense, cc.Stage())
		cc.Events().Process(func(ev Event) bool {
			return ev == "a"
		})
		return nil
	}))
	loop.AddController(StageDecide, ControlFunc(func(cc ControlContext) error {
		trace = append(trace, "decide")
		var seen []Event
		cc.Events().Process(func(ev Event) bool {
			seen = append(seen, ev)
			return false
		})
		require.Equal(t, []Event{"b"}, seen)
		return errors.New("logged only")
	}))

	loop.PostEvent("a")
	loop.PostEvent("b")
	loop.RunIteration(context.Background())
	require.Equal(t, []string{"sense", "decide", "actuate"}, trace)
}

func TestLoopRun(t *testing.T) {
	loop := NewLoop()
	loop.Interval = time.Hour
	got := make(chan Event, 1)
	loop.AddController(StageDecide, ControlFunc(func(cc ControlContext) error {
		cc.Events().Process(func(ev Event) bool {
			got <- ev
			return true
		})
		return nil
	}))
	started := make(chan LoopControl, 1)
	loop.AddRunnable(RunFunc(func(ctx context.Context) error {
		started <- loop
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	lc := <-started
	lc.PostEvent("ping")
	lc.TriggerNext()
	select {
	case ev := <-got:
		require.Equal(t, "ping", ev)
	case <-time.After(time.Second):
		t.Fatal("iteration not triggered")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRunner(t *testing.T) {
	boom := errors.New("boom")
	r := NewRunner().Go(
		NamedRun("ok", RunFunc(func(context.Context) error { return nil })),
		RunFunc(func(context.Context) error { return boom }),
		RunFunc(func(context.Context) error { return context.Canceled }),
	)
	err := r.Wait()
	require.ErrorIs(t, err, boom)
	require.Equal(t, "boom", err.Error())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Aggregate())
	errs.Add(nil, errors.New("a"), errors.New("b"))
	require.Equal(t, "multiple errors:\na\nb", errs.Aggregate().Error())
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestRunWithContextCloser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan struct{})
	closed := 0
	closer := closerFunc(func() error {
		closed++
		close(stop)
		return nil
	})
	cancel()
	err := RunWithContextCloser(ctx, closer, func() error {
		<-stop
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, closed)
}
