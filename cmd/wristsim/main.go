package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/alcolock/pkg/cli/sh"
	"github.com/robotalks/alcolock/pkg/config"
	"github.com/robotalks/alcolock/pkg/ignition"
	"github.com/robotalks/alcolock/pkg/link"

	_ "github.com/robotalks/alcolock/pkg/link/all"
)

const loopbackAddress = "loopback://demo"

var loopbackDemo bool

func init() {
	config.SetupFlags()
	flag.BoolVar(&loopbackDemo, "loopback", loopbackDemo, "Run an in-process immobilizer on "+loopbackAddress+".")
}

// startVehicle runs an immobilizer accepting loopback links and returns
// a func reporting the state of the current session.
func startVehicle(policy ignition.Policy) func() ignition.Snapshot {
	l, err := link.Listen(context.Background(), loopbackAddress)
	if err != nil {
		glog.Exitln(err)
	}
	var current atomic.Pointer[ignition.Controller]
	panel := &ignition.LogPanel{}
	go func() {
		stop := func() {}
		for {
			conn, err := l.Accept(context.Background())
			if err != nil {
				glog.Errorf("loopback accept: %v", err)
				stop()
				return
			}
			// loopback ends don't notice the peer closing, replace
			// the previous session instead.
			stop()
			var ctx context.Context
			ctx, stop = context.WithCancel(context.Background())
			sess := ignition.NewSession(conn, policy, panel)
			current.Store(sess.Controller)
			go sess.Run(ctx)
		}
	}()
	return func() ignition.Snapshot {
		if ctl := current.Load(); ctl != nil {
			return ctl.Snapshot()
		}
		return ignition.Snapshot{}
	}
}

func main() {
	sh.Main(func(s *sh.Shell) {
		if !loopbackDemo {
			return
		}
		s.Config.Link = loopbackAddress
		s.Vehicle = startVehicle(s.Config.Policy)
	})
}
