// Package sh is the interactive shell of the wrist device simulator.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/alcolock/pkg/config"
	"github.com/robotalks/alcolock/pkg/ignition"
	"github.com/robotalks/alcolock/pkg/link"
	"github.com/robotalks/alcolock/pkg/link/mqtt"
	"github.com/robotalks/alcolock/pkg/protocol"
	"github.com/robotalks/alcolock/pkg/wearable"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *config.Config
	Device *DeviceSession

	// Vehicle, when set, reports the state of an in-process
	// immobilizer.
	Vehicle func() ignition.Snapshot
}

// DeviceSession is a simulated device running on a connected link.
type DeviceSession struct {
	Ctx     context.Context
	Cancel  func()
	Address string
	Conn    link.Conn
	Device  *wearable.Device
	Manual  *wearable.Manual
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	initialBAC = 0.0

	// commands
	commands = []*ishell.Cmd{
		&DiscoverCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&BACCmd,
		&WornCmd,
		&BatteryCmd,
		&SendCmd,
		&StatusCmd,
		&ScenarioCmd,
		&VehicleCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.Float64Var(&initialBAC, "bac", initialBAC, "Initial BAC in g/dL.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *config.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Device == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Print prints v as JSON or with fmt.
func (s *Shell) Print(c *ishell.Context, v interface{}) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Printf("%+v\n", v)
}

// Connect connects the device to address and starts reporting.
func (s *Shell) Connect(address string) error {
	sess := &DeviceSession{Address: address}
	sess.Ctx, sess.Cancel = context.WithCancel(context.Background())
	ctx, cancel := context.WithTimeout(sess.Ctx, 10*time.Second)
	defer cancel()
	conn, err := link.Connect(ctx, address)
	if err != nil {
		sess.Cancel()
		return err
	}
	sess.Conn = conn
	sess.Manual = wearable.NewManual(float32(initialBAC))
	sess.Device = wearable.NewDevice(conn, sess.Manual)
	sess.Device.OnCommand = func(cmd protocol.VehicleCommand) {
		s.Shell.Printf("<< %s\n", cmd.Type)
	}
	s.Disconnect()
	s.Device = sess
	go func() {
		sess.Device.Run(sess.Ctx)
		conn.Close()
	}()
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", promptName(address)))
	return nil
}

func promptName(address string) string {
	u, err := url.Parse(address)
	if err != nil {
		return address
	}
	if vehicle := u.Query().Get("vehicle"); vehicle != "" {
		return vehicle
	}
	return u.Host
}

// Disconnect disconnects the device.
func (s *Shell) Disconnect() {
	if s.Device != nil {
		s.Device.Cancel()
		s.Device = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && s.Config.Link != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Link)
		}
		if err := s.Connect(s.Config.Link); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Link, err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// DeviceStatus is what the status command shows.
type DeviceStatus struct {
	Link        string  `json:"link"`
	BAC         float32 `json:"bac"`
	AlertLevel  string  `json:"alert_level"`
	Worn        bool    `json:"worn"`
	Battery     float32 `json:"battery"`
	LastCommand string  `json:"last_command,omitempty"`
	Commands    int     `json:"commands"`
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes", "worn":
		return true, nil
	case "off", "no", "removed":
		return false, nil
	}
	return strconv.ParseBool(s)
}

var (
	// DiscoverCmd lists vehicles with a device online on an MQTT broker.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "[BROKER_URL]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			brokerURL := s.Config.Link
			if len(c.Args) > 0 {
				brokerURL = c.Args[0]
			}
			if !strings.HasPrefix(brokerURL, "mqtt") {
				c.Err(fmt.Errorf("discover requires an MQTT broker URL"))
				return
			}
			vehicles, err := mqtt.Discover(context.Background(), brokerURL, 500*time.Millisecond)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if vehicles == nil {
					vehicles = []string{}
				}
				s.Print(c, vehicles)
				return
			}
			if len(vehicles) == 0 {
				c.Println("No devices online")
				return
			}
			for _, v := range vehicles {
				c.Println(v)
			}
		},
	}

	// ConnectCmd connects to a vehicle.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[LINK_URL]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			address := s.Config.Link
			if len(c.Args) > 0 {
				address = c.Args[0]
			}
			if err := s.Connect(address); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects from the vehicle.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// BACCmd sets the estimated BAC.
	BACCmd = ishell.Cmd{
		Name: "bac",
		Help: "VALUE, BAC in g/dL, sent at the next report",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("BAC value expected"))
				return
			}
			v, err := strconv.ParseFloat(c.Args[0], 32)
			if err != nil {
				c.Err(err)
				return
			}
			sess := ShellFrom(c).Device
			sess.Device.SetEstimator(sess.Manual)
			sess.Manual.SetBAC(float32(v))
		}),
	}

	// WornCmd sets whether the watch is worn.
	WornCmd = ishell.Cmd{
		Name: "worn",
		Help: "on|off",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("on or off expected"))
				return
			}
			worn, err := parseBool(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			ShellFrom(c).Device.Manual.SetWorn(worn)
		}),
	}

	// BatteryCmd sets the battery level.
	BatteryCmd = ishell.Cmd{
		Name: "battery",
		Help: "PERCENT",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("battery level expected"))
				return
			}
			v, err := strconv.ParseFloat(c.Args[0], 32)
			if err != nil {
				c.Err(err)
				return
			}
			ShellFrom(c).Device.Device.SetBattery(float32(v))
		}),
	}

	// SendCmd sends BAC and system status immediately.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			dev := ShellFrom(c).Device.Device
			ctx, cancel := context.WithTimeout(context.Background(), link.DefaultWriteTimeout)
			defer cancel()
			if err := dev.SendBAC(ctx); err != nil {
				c.Err(err)
				return
			}
			if err := dev.SendStatus(ctx); err != nil {
				c.Err(err)
			}
		}),
	}

	// StatusCmd shows the device state.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			dev := s.Device.Device
			pkt := dev.BACStatus()
			st := DeviceStatus{
				Link:       s.Device.Address,
				BAC:        pkt.BAC,
				AlertLevel: pkt.AlertLevel.String(),
				Worn:       pkt.Flags.WatchWorn(),
				Battery:    dev.Battery(),
			}
			if cmd, n, ok := dev.LastCommand(); ok {
				st.LastCommand, st.Commands = cmd.Type.String(), n
			}
			s.Print(c, st)
		}),
	}

	// ScenarioCmd plays a scripted scenario.
	ScenarioCmd = ishell.Cmd{
		Name:    "scenario",
		Aliases: []string{"sc"},
		Help:    "[NAME], without NAME lists scenarios",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				for _, name := range wearable.ScenarioNames() {
					sc := wearable.Scenarios[name]
					c.Printf("%-12s %s (%v)\n", name, sc.Title, sc.Duration())
				}
				return
			}
			MustBeConnected(func(c *ishell.Context) {
				sc := wearable.Scenarios[c.Args[0]]
				if sc == nil {
					c.Err(fmt.Errorf("unknown scenario %q", c.Args[0]))
					return
				}
				sess := ShellFrom(c).Device
				sess.Device.SetEstimator(&wearable.Scripted{Scenario: sc, Start: time.Now()})
				c.Printf("Playing %s, %v; use bac to take over\n", sc.Title, sc.Duration())
			})(c)
		},
	}

	// VehicleCmd shows the in-process immobilizer state.
	VehicleCmd = ishell.Cmd{
		Name:    "vehicle",
		Aliases: []string{"v"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if s.Vehicle == nil {
				c.Err(fmt.Errorf("no in-process vehicle, start with -loopback"))
				return
			}
			snap := s.Vehicle()
			if s.OutputJSON {
				s.Print(c, snap)
				return
			}
			c.Printf("%s decode_errors=%d watchdog=%v\n", snap.State, snap.DecodeErrors, snap.WatchdogArmed)
		},
	}
)

// Main is a helper to provide a single call in main. setups run on
// the shell before auto connecting.
func Main(setups ...func(*Shell)) {
	flag.Parse()
	s := New(config.MustNewConfig()).WithAutoConnect(true)
	for _, setup := range setups {
		setup(s)
	}
	s.Run(flag.Args()...)
}
