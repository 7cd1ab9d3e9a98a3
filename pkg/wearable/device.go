package wearable

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/alcolock/pkg/framework"
	"github.com/robotalks/alcolock/pkg/link"
	"github.com/robotalks/alcolock/pkg/protocol"
)

// Device defaults.
const (
	DefaultBACInterval    = 10 * time.Second
	DefaultStatusInterval = 30 * time.Second
	// LowBattery is the battery percentage below which the battery low
	// flag is set. Above it the sensors are considered reliable.
	LowBattery float32 = 20
)

// BuildFlags derives the BAC status flags from the device state.
func BuildFlags(worn bool, battery float32) protocol.Flags {
	return protocol.Flags(0).
		With(protocol.FlagWatchWorn, worn).
		With(protocol.FlagSensorQualityOK, battery > LowBattery).
		With(protocol.FlagBatteryLow, battery < LowBattery)
}

// Device is the wrist device side of a link.
type Device struct {
	Conn           link.Conn
	Clock          fx.Clock
	BACInterval    time.Duration
	StatusInterval time.Duration

	// OnCommand receives every decoded vehicle command, known or not.
	OnCommand func(protocol.VehicleCommand)
	// OnCommandError receives decode failures and
	// *protocol.UnknownCommandError for unknown command types.
	OnCommandError func(error)

	lock        sync.Mutex
	estimator   Estimator
	battery     float32
	quality     uint8
	lastBACSent time.Time
	lastCommand *protocol.VehicleCommand
	commands    int
}

// NewDevice creates a Device with a full battery.
func NewDevice(conn link.Conn, est Estimator) *Device {
	return &Device{
		Conn:           conn,
		estimator:      est,
		Clock:          fx.SystemClock,
		BACInterval:    DefaultBACInterval,
		StatusInterval: DefaultStatusInterval,
		battery:        100,
		quality:        100,
	}
}

func (d *Device) now() time.Time {
	if d.Clock == nil {
		return time.Now()
	}
	return d.Clock.Now()
}

// SetEstimator replaces the source of readings.
func (d *Device) SetEstimator(est Estimator) {
	d.lock.Lock()
	d.estimator = est
	d.lock.Unlock()
}

func (d *Device) estimate(now time.Time) Reading {
	d.lock.Lock()
	est := d.estimator
	d.lock.Unlock()
	return est.Estimate(now)
}

// SetBattery sets the battery level in percent.
func (d *Device) SetBattery(level float32) {
	d.lock.Lock()
	d.battery = level
	d.lock.Unlock()
}

// Battery returns the battery level in percent.
func (d *Device) Battery() float32 {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.battery
}

// SetConnectionQuality sets the reported link quality in percent.
func (d *Device) SetConnectionQuality(q uint8) {
	d.lock.Lock()
	d.quality = q
	d.lock.Unlock()
}

// LastCommand returns the last vehicle command received.
func (d *Device) LastCommand() (protocol.VehicleCommand, int, bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.lastCommand == nil {
		return protocol.VehicleCommand{}, d.commands, false
	}
	return *d.lastCommand, d.commands, true
}

// BACStatus samples the estimator into a packet.
func (d *Device) BACStatus() protocol.BACStatus {
	now := d.now()
	r := d.estimate(now)
	d.lock.Lock()
	battery := d.battery
	d.lock.Unlock()
	return protocol.BACStatus{
		Timestamp:  protocol.Millis(now),
		BAC:        r.BAC,
		AlertLevel: ClassifyAlert(r.BAC),
		Confidence: r.Confidence,
		Flags:      BuildFlags(r.Worn, battery),
	}
}

// SystemStatus builds the current system status packet.
func (d *Device) SystemStatus() protocol.SystemStatus {
	now := d.now()
	r := d.estimate(now)
	d.lock.Lock()
	defer d.lock.Unlock()
	var sinceBAC uint32
	if !d.lastBACSent.IsZero() {
		switch ms := now.Sub(d.lastBACSent).Milliseconds(); {
		case ms > math.MaxUint32:
			sinceBAC = math.MaxUint32
		case ms > 0:
			sinceBAC = uint32(ms)
		}
	}
	return protocol.SystemStatus{
		DeviceStatus:      protocol.DeviceOperational,
		BatteryLevel:      d.battery,
		LastBACUpdateMs:   sinceBAC,
		ConnectionQuality: d.quality,
		Tamper:            !r.Worn,
	}
}

// SendBAC sends one BAC status packet.
func (d *Device) SendBAC(ctx context.Context) error {
	status := d.BACStatus()
	if err := d.Conn.Write(ctx, link.ChannelBACStatus, protocol.EncodeBACStatus(status)); err != nil {
		return &link.WriteError{Channel: link.ChannelBACStatus, Err: err}
	}
	d.lock.Lock()
	d.lastBACSent = d.now()
	d.lock.Unlock()
	glog.V(1).Infof("sent BAC %.3f (%s) worn=%v", status.BAC, status.AlertLevel, status.Flags.WatchWorn())
	return nil
}

// SendStatus sends one system status packet.
func (d *Device) SendStatus(ctx context.Context) error {
	status := d.SystemStatus()
	if err := d.Conn.Write(ctx, link.ChannelSystemStatus, protocol.EncodeSystemStatus(status)); err != nil {
		return &link.WriteError{Channel: link.ChannelSystemStatus, Err: err}
	}
	glog.V(1).Infof("sent system status battery=%.0f%%", status.BatteryLevel)
	return nil
}

// HandleCommand processes an inbound vehicle command packet.
func (d *Device) HandleCommand(payload []byte) {
	cmd, err := protocol.DecodeVehicleCommand(payload)
	if err != nil {
		glog.Warningf("drop vehicle command: %v", err)
		d.commandError(err)
		return
	}
	d.lock.Lock()
	d.lastCommand = &cmd
	d.commands++
	d.lock.Unlock()
	if !cmd.Type.Known() {
		glog.Warningf("unknown vehicle command %s", cmd.Type)
		d.commandError(&protocol.UnknownCommandError{Code: uint8(cmd.Type)})
	} else {
		glog.Infof("vehicle command %s", cmd.Type)
	}
	if h := d.OnCommand; h != nil {
		h(cmd)
	}
}

func (d *Device) commandError(err error) {
	if h := d.OnCommandError; h != nil {
		h(err)
	}
}

// Run implements Runnable. It sends BAC status every BACInterval and
// system status every StatusInterval, both immediately at start.
// Write failures are logged and the next period retries.
func (d *Device) Run(ctx context.Context) error {
	sub, err := d.Conn.Subscribe(link.ChannelVehicleCommand, func(_ link.ChannelID, payload []byte) {
		d.HandleCommand(payload)
	})
	if err != nil {
		return err
	}
	defer sub.Close()

	bacInterval, statusInterval := d.BACInterval, d.StatusInterval
	if bacInterval <= 0 {
		bacInterval = DefaultBACInterval
	}
	if statusInterval <= 0 {
		statusInterval = DefaultStatusInterval
	}
	bacTicker := time.NewTicker(bacInterval)
	defer bacTicker.Stop()
	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()

	d.sendBAC(ctx)
	d.sendStatus(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-bacTicker.C:
			d.sendBAC(ctx)
		case <-statusTicker.C:
			d.sendStatus(ctx)
		}
	}
}

func (d *Device) sendBAC(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, link.DefaultWriteTimeout)
	defer cancel()
	if err := d.SendBAC(ctx); err != nil {
		glog.Warningf("%v, will retry", err)
	}
}

func (d *Device) sendStatus(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, link.DefaultWriteTimeout)
	defer cancel()
	if err := d.SendStatus(ctx); err != nil {
		glog.Warningf("%v, will retry", err)
	}
}
