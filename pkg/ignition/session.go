package ignition

import (
	"context"

	"github.com/golang/glog"

	fx "github.com/robotalks/alcolock/pkg/framework"
	"github.com/robotalks/alcolock/pkg/link"
)

// Session runs the controller of one connected device: inbound packets
// and watchdog ticks go through Loop, commands go out through Outbox.
type Session struct {
	Conn       link.Conn
	Controller *Controller
	Outbox     *link.Outbox
	Loop       *fx.Loop
}

// NewSession wires a controller to conn. The controller starts Blocked.
func NewSession(conn link.Conn, policy Policy, panel Panel) *Session {
	outbox := link.NewOutbox(conn, link.ChannelVehicleCommand)
	ctl := NewController(policy, &Actuator{Commands: outbox, Panel: panel})
	loop := fx.NewLoop()
	loop.Add(ctl)
	loop.AddRunnable(outbox)
	return &Session{Conn: conn, Controller: ctl, Outbox: outbox, Loop: loop}
}

// Run runs the session until ctx is cancelled or the connection drops.
// The connection is closed on return.
func (s *Session) Run(ctx context.Context) error {
	defer s.Conn.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	subs, err := s.Controller.Attach(s.Conn, s.Loop)
	if err != nil {
		return err
	}
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
	}()

	if d, ok := s.Conn.(interface{ Done() <-chan struct{} }); ok {
		go func() {
			select {
			case <-d.Done():
				glog.Info("link dropped")
				cancel()
			case <-ctx.Done():
			}
		}()
	}
	return s.Loop.Run(ctx)
}
