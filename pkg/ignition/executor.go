package ignition

import (
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/alcolock/pkg/protocol"
)

// Executor applies effects. Execute must not block on I/O.
type Executor interface {
	Execute(Effect)
}

// ExecutorFunc is the func form of Executor.
type ExecutorFunc func(Effect)

// Execute implements Executor.
func (f ExecutorFunc) Execute(e Effect) {
	f(e)
}

// CommandSender queues an encoded vehicle command for writing.
// link.Outbox implements it.
type CommandSender interface {
	Send(payload []byte)
}

// Panel drives the cabin indicators.
type Panel interface {
	SetLED(Color)
	SoundAlarm()
	SetWarning(on bool)
}

// Actuator is the Executor of a vehicle: commands go to the link and
// indicators to the panel. Either may be nil.
type Actuator struct {
	Commands CommandSender
	Panel    Panel
}

// Execute implements Executor.
func (a *Actuator) Execute(e Effect) {
	switch e := e.(type) {
	case EmitCommand:
		if a.Commands != nil {
			a.Commands.Send(protocol.EncodeVehicleCommand(protocol.Command(e.Command)))
		}
	case SetIndicator:
		if a.Panel != nil {
			a.Panel.SetLED(e.Color)
		}
	case SoundAlarm:
		if a.Panel != nil {
			a.Panel.SoundAlarm()
		}
	case SetWarning:
		if a.Panel != nil {
			a.Panel.SetWarning(e.On)
		}
	default:
		glog.Warningf("unsupported effect %v", e)
	}
}

// LogPanel is a Panel which only logs. It remembers the last settings
// so a shell can show them.
type LogPanel struct {
	lock    sync.Mutex
	led     Color
	warning bool
	alarms  int
}

// SetLED implements Panel.
func (p *LogPanel) SetLED(c Color) {
	p.lock.Lock()
	changed := p.led != c
	p.led = c
	p.lock.Unlock()
	if changed {
		glog.Infof("LED %s", c)
	}
}

// SoundAlarm implements Panel.
func (p *LogPanel) SoundAlarm() {
	p.lock.Lock()
	p.alarms++
	p.lock.Unlock()
	glog.Warning("BUZZER alarm sounding")
}

// SetWarning implements Panel.
func (p *LogPanel) SetWarning(on bool) {
	p.lock.Lock()
	changed := p.warning != on
	p.warning = on
	p.lock.Unlock()
	if changed && on {
		glog.Warning("WARNING BAC approaching limit")
	}
}

// State returns the current LED color, warning indicator and number of
// alarms sounded.
func (p *LogPanel) State() (Color, bool, int) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.led, p.warning, p.alarms
}
