package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"net/url"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/alcolock/pkg/audit"
	"github.com/robotalks/alcolock/pkg/config"
	fx "github.com/robotalks/alcolock/pkg/framework"
	"github.com/robotalks/alcolock/pkg/ignition"
	"github.com/robotalks/alcolock/pkg/link"

	_ "github.com/robotalks/alcolock/pkg/link/all"
)

// redialInterval is the pause before reconnecting a dropped link.
const redialInterval = 2 * time.Second

func init() {
	config.SetupFlags()
}

// vehicle serves one device link at a time. Every link gets a fresh
// controller, so ignition starts blocked after a reconnect.
type vehicle struct {
	conf     *config.Config
	panel    *ignition.LogPanel
	recorder *audit.Recorder
}

// Name implements framework.Named.
func (v *vehicle) Name() string {
	return "vehicle"
}

// Run implements framework.Runnable.
func (v *vehicle) Run(ctx context.Context) error {
	address := linkAddress(v.conf)
	if v.conf.Listen || isMQTT(address) {
		return v.accept(ctx, address)
	}
	return v.dial(ctx, address)
}

func (v *vehicle) accept(ctx context.Context, address string) error {
	l, err := link.Listen(ctx, address)
	if err != nil {
		return err
	}
	defer l.Close()
	glog.Infof("waiting for device on %s", address)
	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			return err
		}
		v.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (v *vehicle) dial(ctx context.Context, address string) error {
	for {
		conn, err := link.Connect(ctx, address)
		if err == nil {
			v.serve(ctx, conn)
		} else if ctx.Err() == nil {
			glog.Warningf("connect %s: %v", address, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(redialInterval):
		}
	}
}

func (v *vehicle) serve(ctx context.Context, conn link.Conn) {
	glog.Infof("device linked, policy %.3f/%.3f g/dL, link timeout %v",
		v.conf.Policy.DangerThreshold, v.conf.Policy.WarningThreshold, v.conf.Policy.LinkTimeout)
	sess := ignition.NewSession(conn, v.conf.Policy, v.panel)
	sess.Loop.Interval = v.conf.TickInterval
	sess.Outbox.RetryInterval = v.conf.RetryInterval
	v.recorder.Observe(sess.Controller)
	err := sess.Run(ctx)
	snap := sess.Controller.Snapshot()
	sent, failed := sess.Outbox.Stats()
	glog.Infof("device unlinked (%v): %s, %d decode errors, %d commands sent, %d writes failed",
		err, snap.State, snap.DecodeErrors, sent, failed)
	v.panel.SetLED(ignition.ColorRed)
}

// linkAddress fills in the vehicle of MQTT links from the config.
func linkAddress(conf *config.Config) string {
	if !isMQTT(conf.Link) {
		return conf.Link
	}
	u, err := url.Parse(conf.Link)
	if err != nil {
		return conf.Link
	}
	q := u.Query()
	if q.Get("vehicle") == "" {
		q.Set("vehicle", conf.Vehicle)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func isMQTT(address string) bool {
	return strings.HasPrefix(address, "mqtt://") || strings.HasPrefix(address, "mqtts://")
}

func openSink(opts audit.Options) audit.Sink {
	if !opts.Enabled() {
		return audit.LogSink{}
	}
	sinks, err := audit.Open(opts)
	if err != nil {
		glog.Exitf("audit: %v", err)
	}
	return sinks
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := config.MustNewConfig()
	glog.Infof("vehicle %s, jurisdiction %s", conf.Vehicle, conf.Jurisdiction)

	recorder := audit.NewRecorder(openSink(conf.Audit), conf.Vehicle)
	panel := &ignition.LogPanel{}
	panel.SetLED(ignition.ColorRed)

	err := fx.NewRunner().HandleSignals().Go(
		fx.NamedRun("audit", recorder),
		&vehicle{conf: conf, panel: panel, recorder: recorder},
	).Wait()
	if err != nil {
		glog.Exitln(err)
	}
}
