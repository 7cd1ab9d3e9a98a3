package protocol

import (
	"fmt"
	"time"
)

// AlertLevel is the device-side classification of a BAC estimate.
type AlertLevel uint8

// Alert levels. Values above AlertCritical are preserved as unknown.
const (
	AlertSafe AlertLevel = iota
	AlertWarning
	AlertDanger
	AlertCritical
)

var alertLevelNames = [...]string{"SAFE", "WARNING", "DANGER", "CRITICAL"}

// Known reports whether the level is one of the defined values.
func (a AlertLevel) Known() bool {
	return a <= AlertCritical
}

// String implements fmt.Stringer.
func (a AlertLevel) String() string {
	if a.Known() {
		return alertLevelNames[a]
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(a))
}

// Flags is the BAC status flags byte.
type Flags uint8

// Flag bits. Bit 1 is reserved for a future authentication marker and
// bits 4-7 are unassigned; both are carried but never interpreted.
const (
	FlagWatchWorn       Flags = 1 << 0
	FlagAuthReserved    Flags = 1 << 1
	FlagSensorQualityOK Flags = 1 << 2
	FlagBatteryLow      Flags = 1 << 3
)

// Has checks if all bits in mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// With returns f with mask set or cleared.
func (f Flags) With(mask Flags, on bool) Flags {
	if on {
		return f | mask
	}
	return f &^ mask
}

// WatchWorn reports bit 0.
func (f Flags) WatchWorn() bool { return f.Has(FlagWatchWorn) }

// SensorQualityOK reports bit 2.
func (f Flags) SensorQualityOK() bool { return f.Has(FlagSensorQualityOK) }

// BatteryLow reports bit 3.
func (f Flags) BatteryLow() bool { return f.Has(FlagBatteryLow) }

// CommandType is the first byte of a vehicle command.
type CommandType uint8

// Command types. Any other value decodes as an unknown command.
const (
	CommandAllowIgnition CommandType = iota
	CommandBlockIgnition
	CommandRequestVerification
	CommandOverrideRequest
	CommandEmergencyOverride
)

var commandNames = [...]string{
	"ALLOW_IGNITION",
	"BLOCK_IGNITION",
	"REQUEST_VERIFICATION",
	"OVERRIDE_REQUEST",
	"EMERGENCY_OVERRIDE",
}

// Known reports whether this decoder understands the command.
func (c CommandType) Known() bool {
	return c <= CommandEmergencyOverride
}

// String implements fmt.Stringer.
func (c CommandType) String() string {
	if c.Known() {
		return commandNames[c]
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(c))
}

// ParseCommandType converts a command name back to its type.
func ParseCommandType(name string) (CommandType, bool) {
	for n, s := range commandNames {
		if s == name {
			return CommandType(n), true
		}
	}
	return 0, false
}

// DeviceStatus is the device fault code. Zero means operational.
type DeviceStatus int8

// DeviceOperational is the only non-fault status.
const DeviceOperational DeviceStatus = 0

// Operational reports whether the device has no fault.
func (s DeviceStatus) Operational() bool {
	return s == DeviceOperational
}

// Millis converts a time to the wire timestamp.
func Millis(t time.Time) uint64 {
	return uint64(t.UnixMilli())
}

// TimeFromMillis converts a wire timestamp to time.
func TimeFromMillis(ms uint64) time.Time {
	return time.UnixMilli(int64(ms))
}
