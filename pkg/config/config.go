// Package config collects the settings shared by the binaries from,
// in increasing priority, built-in defaults, ALCOLOCK_* environment
// variables, an optional YAML file and command line flags.
package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"gopkg.in/yaml.v3"

	"github.com/robotalks/alcolock/pkg/audit"
	"github.com/robotalks/alcolock/pkg/framework"
	"github.com/robotalks/alcolock/pkg/ignition"
)

// AppID salts the machine ID used as default vehicle ID.
const AppID = "alcolock"

// Config is the runtime configuration.
type Config struct {
	// Link is the link URL, e.g. mqtt://host:1883/alcolock/?vehicle=VIN,
	// tcp://host:7000, ws://host:8080/link or loopback://name.
	Link string `yaml:"link"`
	// Listen makes the vehicle accept device connections instead of
	// dialing the device.
	Listen bool `yaml:"listen"`
	// Vehicle identifies the vehicle. Defaults to a machine derived ID.
	Vehicle string `yaml:"vehicle"`

	// Jurisdiction selects the policy preset: us, eu or zero.
	Jurisdiction string `yaml:"jurisdiction"`
	// Policy overrides fields of the preset when non-zero.
	Policy ignition.Policy `yaml:"policy"`

	TickInterval  time.Duration `yaml:"tick_interval"`
	RetryInterval time.Duration `yaml:"retry_interval"`

	Audit audit.Options `yaml:"audit"`
}

var defaultConfig = Config{
	Link:          "tcp://localhost:7000",
	Jurisdiction:  "us",
	TickInterval:  framework.DefaultInterval,
	RetryInterval: time.Second,
}

var (
	configFile string
	envConfig  Config
	envErr     error
)

func init() {
	if val := os.Getenv("ALCOLOCK_CONFIG"); val != "" {
		configFile = val
	}
	envErr = applyEnv(&defaultConfig, os.Getenv)
}

// applyEnv overlays ALCOLOCK_* variables onto c. Malformed values are
// reported instead of being read as zero, which would silently select
// the jurisdiction preset.
func applyEnv(c *Config, getenv func(string) string) error {
	var errs framework.AggregatedError
	if val := getenv("ALCOLOCK_LINK"); val != "" {
		c.Link = val
	}
	if val := getenv("ALCOLOCK_LISTEN"); val != "" {
		v, err := strconv.ParseBool(val)
		errs.Add(envError("ALCOLOCK_LISTEN", err))
		c.Listen = v
	}
	if val := getenv("ALCOLOCK_VEHICLE"); val != "" {
		c.Vehicle = val
	}
	if val := getenv("ALCOLOCK_JURISDICTION"); val != "" {
		c.Jurisdiction = val
	}
	if val := getenv("ALCOLOCK_LEGAL_BAC_LIMIT"); val != "" {
		errs.Add(envError("ALCOLOCK_LEGAL_BAC_LIMIT", float32Value{&c.Policy.DangerThreshold}.Set(val)))
	}
	if val := getenv("ALCOLOCK_WARNING_BAC"); val != "" {
		errs.Add(envError("ALCOLOCK_WARNING_BAC", float32Value{&c.Policy.WarningThreshold}.Set(val)))
	}
	if val := getenv("ALCOLOCK_LINK_TIMEOUT"); val != "" {
		v, err := time.ParseDuration(val)
		errs.Add(envError("ALCOLOCK_LINK_TIMEOUT", err))
		c.Policy.LinkTimeout = v
	}
	if val := getenv("ALCOLOCK_AUDIT_MQTT"); val != "" {
		c.Audit.MQTT = val
	}
	if val := getenv("ALCOLOCK_AUDIT_REDIS"); val != "" {
		c.Audit.Redis.URL = val
	}
	if val := getenv("ALCOLOCK_AUDIT_KAFKA"); val != "" {
		c.Audit.Kafka.Brokers = splitList(val)
	}
	if val := getenv("ALCOLOCK_AUDIT_KAFKA_TOPIC"); val != "" {
		c.Audit.Kafka.Topic = val
	}
	if val := getenv("ALCOLOCK_INFLUX_URL"); val != "" {
		c.Audit.Influx.URL = val
	}
	if val := getenv("ALCOLOCK_INFLUX_TOKEN"); val != "" {
		c.Audit.Influx.Token = val
	}
	if val := getenv("ALCOLOCK_INFLUX_ORG"); val != "" {
		c.Audit.Influx.Org = val
	}
	if val := getenv("ALCOLOCK_INFLUX_BUCKET"); val != "" {
		c.Audit.Influx.Bucket = val
	}
	return errs.Aggregate()
}

func envError(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

type float32Value struct{ p *float32 }

func (v float32Value) String() string {
	if v.p == nil {
		return "0"
	}
	return strconv.FormatFloat(float64(*v.p), 'g', -1, 32)
}

func (v float32Value) Set(s string) error {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return err
	}
	*v.p = float32(f)
	return nil
}

type listValue struct{ p *[]string }

func (v listValue) String() string {
	if v.p == nil {
		return ""
	}
	return strings.Join(*v.p, ",")
}

func (v listValue) Set(s string) error {
	*v.p = splitList(s)
	return nil
}

func bindFlags(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.Link, "link", c.Link, "Link URL.")
	fs.BoolVar(&c.Listen, "listen", c.Listen, "Accept device connections on the link URL.")
	fs.StringVar(&c.Vehicle, "vehicle", c.Vehicle, "Vehicle ID, defaults to machine ID.")
	fs.StringVar(&c.Jurisdiction, "jurisdiction", c.Jurisdiction, "Policy preset: "+strings.Join(ignition.Jurisdictions(), ", ")+".")
	fs.Var(float32Value{&c.Policy.DangerThreshold}, "legal-bac-limit", "BAC above which ignition is blocked, overrides jurisdiction.")
	fs.Var(float32Value{&c.Policy.WarningThreshold}, "warning-bac", "BAC above which a warning is shown.")
	fs.DurationVar(&c.Policy.LinkTimeout, "link-timeout", c.Policy.LinkTimeout, "Block ignition after this long without BAC status.")
	fs.DurationVar(&c.TickInterval, "tick", c.TickInterval, "Watchdog poll interval.")
	fs.DurationVar(&c.RetryInterval, "retry", c.RetryInterval, "Command write retry interval.")
	fs.StringVar(&c.Audit.MQTT, "audit-mqtt", c.Audit.MQTT, "MQTT broker URL for audit events.")
	fs.StringVar(&c.Audit.Redis.URL, "audit-redis", c.Audit.Redis.URL, "Redis URL for vehicle status.")
	fs.Var(listValue{&c.Audit.Kafka.Brokers}, "audit-kafka", "Comma separated Kafka brokers for audit events.")
	fs.StringVar(&c.Audit.Kafka.Topic, "audit-kafka-topic", c.Audit.Kafka.Topic, "Kafka topic for audit events.")
	fs.StringVar(&c.Audit.Influx.URL, "influx-url", c.Audit.Influx.URL, "InfluxDB URL for telemetry.")
	fs.StringVar(&c.Audit.Influx.Org, "influx-org", c.Audit.Influx.Org, "InfluxDB organization.")
	fs.StringVar(&c.Audit.Influx.Bucket, "influx-bucket", c.Audit.Influx.Bucket, "InfluxDB bucket.")
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	envConfig = defaultConfig
	flag.StringVar(&configFile, "config", configFile, "YAML config file.")
	bindFlags(flag.CommandLine, &defaultConfig)
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config from defaults, environment, the config
// file and flags, and resolves derived values.
func NewConfig() (*Config, error) {
	if envErr != nil {
		return nil, envErr
	}
	conf := defaultConfig
	if configFile != "" {
		conf = envConfig
		if err := LoadFile(configFile, &conf); err != nil {
			return nil, err
		}
		fs := flagSetFor(&conf)
		var err error
		flag.Visit(func(f *flag.Flag) {
			if err == nil && fs.Lookup(f.Name) != nil {
				err = fs.Set(f.Name, f.Value.String())
			}
		})
		if err != nil {
			return nil, err
		}
	}
	if err := conf.Resolve(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// MustNewConfig creates a Config and fails on error.
func MustNewConfig() *Config {
	conf, err := NewConfig()
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

// LoadFile overlays the YAML file at path onto conf.
func LoadFile(path string, conf *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(conf); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// Resolve fills the vehicle ID and the policy from the jurisdiction
// preset, then validates the policy.
func (c *Config) Resolve() error {
	if c.Vehicle == "" {
		id, err := machineid.ProtectedID(AppID)
		if err != nil {
			return fmt.Errorf("vehicle ID not set and machine ID unavailable: %w", err)
		}
		c.Vehicle = id
	}
	preset, err := ignition.PolicyFor(c.Jurisdiction)
	if err != nil {
		return err
	}
	if c.Policy.DangerThreshold == 0 {
		c.Policy.DangerThreshold = preset.DangerThreshold
		if c.Policy.WarningThreshold == 0 {
			c.Policy.WarningThreshold = preset.WarningThreshold
		}
	} else if c.Policy.WarningThreshold == 0 {
		c.Policy.WarningThreshold = c.Policy.DangerThreshold * ignition.WarningRatio
	}
	if c.Policy.LinkTimeout == 0 {
		c.Policy.LinkTimeout = preset.LinkTimeout
	}
	if c.TickInterval <= 0 {
		c.TickInterval = framework.DefaultInterval
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
	return c.Policy.Validate()
}

func flagSetFor(c *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	bindFlags(fs, c)
	return fs
}
