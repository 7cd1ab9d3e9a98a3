package ignition

import (
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/alcolock/pkg/framework"
	"github.com/robotalks/alcolock/pkg/link"
	"github.com/robotalks/alcolock/pkg/protocol"
)

// Decision is reported after every state transition.
type Decision struct {
	Event   Event
	State   State
	Effects []Effect
}

// Controller owns the ignition State of one link. Its On* methods must
// be called from one goroutine, normally the framework.Loop it is added
// to; Snapshot may be called from anywhere.
type Controller struct {
	Policy   Policy
	Executor Executor
	Clock    fx.Clock

	// OnDecision, when set, observes every transition.
	OnDecision func(Decision)
	// OnSystemStatus, when set, receives decoded system status packets.
	OnSystemStatus func(protocol.SystemStatus)

	lock         sync.RWMutex
	state        State
	watchdog     Watchdog
	decodeErrors uint64
	device       *protocol.SystemStatus
}

// NewController creates a Controller in the startup state.
func NewController(policy Policy, exec Executor) *Controller {
	return &Controller{
		Policy:   policy,
		Executor: exec,
		Clock:    fx.SystemClock,
	}
}

func (c *Controller) now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock.Now()
}

// OnBACStatus decodes and applies a BAC status packet received now.
// A decode failure is returned and counted; it leaves the state and the
// watchdog untouched.
func (c *Controller) OnBACStatus(payload []byte) error {
	return c.handleBACStatus(payload, c.now())
}

func (c *Controller) handleBACStatus(payload []byte, at time.Time) error {
	status, err := protocol.DecodeBACStatus(payload)
	if err != nil {
		c.lock.Lock()
		c.decodeErrors++
		c.lock.Unlock()
		glog.Warningf("drop BAC status: %v", err)
		return err
	}
	glog.V(2).Infof("BAC %.3f alert=%s conf=%d flags=%08b", status.BAC, status.AlertLevel, status.Confidence, status.Flags)
	c.apply(BACReceived{Status: status, At: at}, func(w *Watchdog) {
		w.Timeout = c.Policy.LinkTimeout
		w.Arm(at)
	})
	return nil
}

// OnTimeoutTick polls the watchdog. When it has expired the controller
// blocks ignition and disarms the watchdog until the next accepted BAC
// packet.
func (c *Controller) OnTimeoutTick(now time.Time) {
	c.lock.RLock()
	expired := c.watchdog.Expired(now)
	c.lock.RUnlock()
	if !expired {
		return
	}
	glog.Warningf("no BAC status for more than %v", c.Policy.LinkTimeout)
	c.apply(LinkTimeout{At: now}, func(w *Watchdog) { w.Disarm() })
}

// OnLinkUp signals a device connected.
func (c *Controller) OnLinkUp() {
	c.apply(LinkUp{}, nil)
}

// OnSystemStatusPacket decodes a system status packet. It never changes
// the ignition decision.
func (c *Controller) OnSystemStatusPacket(payload []byte) error {
	status, err := protocol.DecodeSystemStatus(payload)
	if err != nil {
		glog.Warningf("drop system status: %v", err)
		return err
	}
	glog.V(2).Infof("SYS status=%d battery=%.0f%% quality=%d tamper=%v",
		status.DeviceStatus, status.BatteryLevel, status.ConnectionQuality, status.Tamper)
	c.lock.Lock()
	c.device = &status
	c.lock.Unlock()
	if h := c.OnSystemStatus; h != nil {
		h(status)
	}
	return nil
}

func (c *Controller) apply(ev Event, watchdog func(*Watchdog)) {
	c.lock.Lock()
	prev := c.state
	next, effects := Transition(prev, ev, c.Policy)
	c.state = next
	if watchdog != nil {
		watchdog(&c.watchdog)
	}
	c.lock.Unlock()

	if prev.Permission != next.Permission || prev.Cause != next.Cause {
		glog.Infof("ignition %s -> %s", prev.Permission, next)
	}
	if c.Executor != nil {
		for _, e := range effects {
			c.Executor.Execute(e)
		}
	}
	if h := c.OnDecision; h != nil && len(effects) > 0 {
		h(Decision{Event: ev, State: next, Effects: effects})
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return Snapshot{
		State:         c.state,
		DecodeErrors:  c.decodeErrors,
		WatchdogArmed: c.watchdog.Armed(),
	}
}

// Device returns the last system status received, if any.
func (c *Controller) Device() (protocol.SystemStatus, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if c.device == nil {
		return protocol.SystemStatus{}, false
	}
	return *c.device, true
}

// Loop events carrying inbound packets with their receive time.
type (
	bacPacketEvent struct {
		payload []byte
		at      time.Time
	}
	sysPacketEvent struct {
		payload []byte
	}
	linkUpEvent struct{}
)

// Control implements framework.Controller. It applies the packets
// posted since the last iteration in arrival order, then polls the
// watchdog.
func (c *Controller) Control(cc fx.ControlContext) error {
	cc.Events().Process(func(ev fx.Event) bool {
		switch ev := ev.(type) {
		case bacPacketEvent:
			c.handleBACStatus(ev.payload, ev.at)
		case sysPacketEvent:
			c.OnSystemStatusPacket(ev.payload)
		case linkUpEvent:
			c.OnLinkUp()
		default:
			return false
		}
		return true
	})
	c.OnTimeoutTick(cc.Time())
	return nil
}

// AddToLoop implements framework.LoopAdder.
func (c *Controller) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.StageDecide, c)
}

// Attach subscribes to the inbound channels of conn and forwards
// packets to the loop, which runs Control promptly.
func (c *Controller) Attach(conn link.Conn, loop fx.LoopControl) ([]link.Subscription, error) {
	post := func(ev fx.Event) {
		loop.PostEvent(ev)
		loop.TriggerNext()
	}
	var subs []link.Subscription
	sub, err := conn.Subscribe(link.ChannelBACStatus, func(_ link.ChannelID, payload []byte) {
		post(bacPacketEvent{payload: payload, at: c.now()})
	})
	if err != nil {
		return nil, err
	}
	subs = append(subs, sub)
	sub, err = conn.Subscribe(link.ChannelSystemStatus, func(_ link.ChannelID, payload []byte) {
		post(sysPacketEvent{payload: payload})
	})
	if err != nil {
		subs[0].Close()
		return nil, err
	}
	subs = append(subs, sub)
	post(linkUpEvent{})
	return subs, nil
}
