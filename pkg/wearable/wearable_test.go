package wearable

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/alcolock/pkg/framework"
	"github.com/robotalks/alcolock/pkg/link"
	"github.com/robotalks/alcolock/pkg/link/loopback"
	"github.com/robotalks/alcolock/pkg/protocol"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestClassifyAlert(t *testing.T) {
	cases := []struct {
		bac   float32
		level protocol.AlertLevel
	}{
		{0, protocol.AlertSafe},
		{0.049, protocol.AlertSafe},
		{0.05, protocol.AlertWarning},
		{0.079, protocol.AlertWarning},
		{0.08, protocol.AlertDanger},
		{0.149, protocol.AlertDanger},
		{0.15, protocol.AlertCritical},
		{0.4, protocol.AlertCritical},
	}
	for _, c := range cases {
		require.Equal(t, c.level, ClassifyAlert(c.bac), "bac %v", c.bac)
	}
	require.Equal(t, uint8(95), ConfidenceFor(0.01))
	require.Equal(t, uint8(90), ConfidenceFor(0.08))
	require.Equal(t, uint8(85), ConfidenceFor(0.15))
	require.Equal(t, uint8(75), ConfidenceFor(0.3))
}

func TestBuildFlags(t *testing.T) {
	f := BuildFlags(true, 80)
	require.True(t, f.WatchWorn())
	require.True(t, f.SensorQualityOK())
	require.False(t, f.BatteryLow())

	f = BuildFlags(false, 10)
	require.False(t, f.WatchWorn())
	require.False(t, f.SensorQualityOK())
	require.True(t, f.BatteryLow())

	f = BuildFlags(true, 20)
	require.False(t, f.SensorQualityOK())
	require.False(t, f.BatteryLow())
}

func TestScenarios(t *testing.T) {
	require.Equal(t, []string{"drinking", "edge", "intoxicated", "sober", "tamper"}, ScenarioNames())
	tamper := Scenarios["tamper"]
	require.Equal(t, 70*time.Second, tamper.Duration())

	n, step := tamper.StepAt(0)
	require.Equal(t, 0, n)
	require.True(t, step.Worn)
	n, step = tamper.StepAt(25 * time.Second)
	require.Equal(t, 1, n)
	require.False(t, step.Worn)
	n, _ = tamper.StepAt(time.Hour)
	require.Equal(t, 2, n)

	s := &Scripted{Scenario: Scenarios["intoxicated"], Start: t0}
	r := s.Estimate(t0.Add(75 * time.Second))
	require.Equal(t, float32(0.12), r.BAC)
	require.True(t, r.Worn)
	require.False(t, s.Done(t0.Add(89*time.Second)))
	require.True(t, s.Done(t0.Add(90*time.Second)))
}

type fakeClock struct {
	lock sync.Mutex
	now  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.lock.Lock()
	c.now = c.now.Add(d)
	c.lock.Unlock()
}

func TestDeviceSend(t *testing.T) {
	ctx := context.Background()
	dev, veh := loopback.Pipe()
	est := NewManual(0.065)
	d := NewDevice(dev, est)
	clock := &fakeClock{now: t0}
	d.Clock = clock

	var bac []protocol.BACStatus
	var sys []protocol.SystemStatus
	_, err := veh.Subscribe(link.ChannelBACStatus, func(_ link.ChannelID, p []byte) {
		s, err := protocol.DecodeBACStatus(p)
		require.NoError(t, err)
		bac = append(bac, s)
	})
	require.NoError(t, err)
	_, err = veh.Subscribe(link.ChannelSystemStatus, func(_ link.ChannelID, p []byte) {
		s, err := protocol.DecodeSystemStatus(p)
		require.NoError(t, err)
		sys = append(sys, s)
	})
	require.NoError(t, err)

	require.NoError(t, d.SendBAC(ctx))
	require.Len(t, bac, 1)
	require.Equal(t, protocol.Millis(t0), bac[0].Timestamp)
	require.Equal(t, float32(0.065), bac[0].BAC)
	require.Equal(t, protocol.AlertWarning, bac[0].AlertLevel)
	require.Equal(t, uint8(90), bac[0].Confidence)
	require.True(t, bac[0].Flags.WatchWorn())

	clock.Advance(1500 * time.Millisecond)
	est.SetWorn(false)
	d.SetBattery(15)
	require.NoError(t, d.SendStatus(ctx))
	require.Len(t, sys, 1)
	require.True(t, sys[0].Tamper)
	require.Equal(t, float32(15), sys[0].BatteryLevel)
	require.Equal(t, uint32(1500), sys[0].LastBACUpdateMs)

	require.NoError(t, d.SendBAC(ctx))
	require.False(t, bac[1].Flags.WatchWorn())
	require.True(t, bac[1].Flags.BatteryLow())

	dev.FailWrites(errors.New("out of range"))
	err = d.SendBAC(ctx)
	var werr *link.WriteError
	require.ErrorAs(t, err, &werr)
	require.Equal(t, link.ChannelBACStatus, werr.Channel)
}

func TestDeviceCommands(t *testing.T) {
	d := NewDevice(nil, NewManual(0))
	var cmds []protocol.VehicleCommand
	var errs []error
	d.OnCommand = func(c protocol.VehicleCommand) { cmds = append(cmds, c) }
	d.OnCommandError = func(err error) { errs = append(errs, err) }

	d.HandleCommand([]byte{byte(protocol.CommandBlockIgnition)})
	d.HandleCommand([]byte{0x42, 1, 2})
	d.HandleCommand(nil)

	require.Len(t, cmds, 2)
	require.Equal(t, protocol.CommandBlockIgnition, cmds[0].Type)
	require.Equal(t, protocol.CommandType(0x42), cmds[1].Type)
	require.Equal(t, []byte{1, 2}, cmds[1].Payload)

	require.Len(t, errs, 2)
	var unknown *protocol.UnknownCommandError
	require.ErrorAs(t, errs[0], &unknown)
	require.Equal(t, uint8(0x42), unknown.Code)
	require.ErrorIs(t, errs[1], protocol.ErrEmpty)

	last, n, ok := d.LastCommand()
	require.True(t, ok)
	require.Equal(t, 2, n)
	require.Equal(t, protocol.CommandType(0x42), last.Type)
}

func TestDeviceRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dev, veh := loopback.Pipe()
	d := NewDevice(dev, NewManual(0.01))
	d.BACInterval = 10 * time.Millisecond
	d.StatusInterval = time.Hour

	got := make(chan struct{}, 16)
	_, err := veh.Subscribe(link.ChannelBACStatus, func(link.ChannelID, []byte) {
		select {
		case got <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	for i := 0; i < 3; i++ {
		select {
		case <-got:
		case <-time.After(time.Second):
			t.Fatal("BAC status not sent periodically")
		}
	}

	require.Eventually(t, func() bool {
		veh.Write(ctx, link.ChannelVehicleCommand, protocol.EncodeVehicleCommand(protocol.Command(protocol.CommandAllowIgnition)))
		_, n, _ := d.LastCommand()
		return n > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

var _ fx.Runnable = (*Device)(nil)
