package protocol

import (
	"encoding/binary"
	"math"
	"time"
)

// Packet sizes.
const (
	BACStatusSize    = 20
	SystemStatusSize = 16
	ReservedSize     = 5
)

// MaxBAC is the largest encodable BAC value, just below 1.0 g/dL.
var MaxBAC = math.Nextafter32(1, 0)

// BACStatus is the periodic BAC estimate sent by the wrist device.
//
// Layout:
//	0-7   timestamp, ms since Unix epoch
//	8-11  bac_value, float32 g/dL
//	12    alert_level
//	13    confidence, percent
//	14    flags
//	15-19 reserved (device identifier)
type BACStatus struct {
	Timestamp  uint64
	BAC        float32
	AlertLevel AlertLevel
	Confidence uint8
	Flags      Flags
	Reserved   [ReservedSize]byte
}

// Time returns Timestamp as time.Time.
func (s *BACStatus) Time() time.Time {
	return TimeFromMillis(s.Timestamp)
}

// Bytes encodes the packet.
func (s *BACStatus) Bytes() []byte {
	return EncodeBACStatus(*s)
}

// EncodeBACStatus encodes a BAC status packet, clamping out-of-range
// values: BAC to [0, MaxBAC] with NaN treated as MaxBAC, confidence to
// 100 and alert level to AlertCritical.
func EncodeBACStatus(s BACStatus) []byte {
	b := make([]byte, BACStatusSize)
	binary.LittleEndian.PutUint64(b[0:8], s.Timestamp)
	binary.LittleEndian.PutUint32(b[8:12], math.Float32bits(ClampBAC(s.BAC)))
	b[12] = byte(s.AlertLevel)
	if s.AlertLevel > AlertCritical {
		b[12] = byte(AlertCritical)
	}
	b[13] = clampPercent(s.Confidence)
	b[14] = byte(s.Flags)
	copy(b[15:], s.Reserved[:])
	return b
}

// DecodeBACStatus decodes a BAC status packet. Bytes beyond
// BACStatusSize are ignored.
func DecodeBACStatus(b []byte) (s BACStatus, err error) {
	if len(b) < BACStatusSize {
		return s, &DecodeError{Packet: "bac status", Len: len(b), Want: BACStatusSize, Err: ErrTooShort}
	}
	s.Timestamp = binary.LittleEndian.Uint64(b[0:8])
	s.BAC = math.Float32frombits(binary.LittleEndian.Uint32(b[8:12]))
	s.AlertLevel = AlertLevel(b[12])
	s.Confidence = b[13]
	s.Flags = Flags(b[14])
	copy(s.Reserved[:], b[15:BACStatusSize])
	return s, nil
}

// ClampBAC limits a BAC value to the encodable range.
func ClampBAC(v float32) float32 {
	switch {
	case math.IsNaN(float64(v)):
		return MaxBAC
	case v < 0:
		return 0
	case v > MaxBAC:
		return MaxBAC
	}
	return v
}

func clampPercent(v uint8) uint8 {
	if v > 100 {
		return 100
	}
	return v
}

// SystemStatus is the device health packet.
//
// Layout:
//	0     device_status, int8 fault code
//	1-4   battery_level, float32 percent
//	5-8   last_bac_update_ms, age of last BAC update
//	9     connection_quality, percent
//	10    tamper_status
//	11-15 reserved
type SystemStatus struct {
	DeviceStatus      DeviceStatus
	BatteryLevel      float32
	LastBACUpdateMs   uint32
	ConnectionQuality uint8
	Tamper            bool
	Reserved          [ReservedSize]byte
}

// Bytes encodes the packet.
func (s *SystemStatus) Bytes() []byte {
	return EncodeSystemStatus(*s)
}

// EncodeSystemStatus encodes a system status packet. Battery level is
// clamped to [0, 100] (NaN as 0) and connection quality to 100.
func EncodeSystemStatus(s SystemStatus) []byte {
	b := make([]byte, SystemStatusSize)
	b[0] = byte(s.DeviceStatus)
	battery := s.BatteryLevel
	switch {
	case math.IsNaN(float64(battery)) || battery < 0:
		battery = 0
	case battery > 100:
		battery = 100
	}
	binary.LittleEndian.PutUint32(b[1:5], math.Float32bits(battery))
	binary.LittleEndian.PutUint32(b[5:9], s.LastBACUpdateMs)
	b[9] = clampPercent(s.ConnectionQuality)
	if s.Tamper {
		b[10] = 1
	}
	copy(b[11:], s.Reserved[:])
	return b
}

// DecodeSystemStatus decodes a system status packet. Any nonzero tamper
// byte reads as tamper.
func DecodeSystemStatus(b []byte) (s SystemStatus, err error) {
	if len(b) < SystemStatusSize {
		return s, &DecodeError{Packet: "system status", Len: len(b), Want: SystemStatusSize, Err: ErrTooShort}
	}
	s.DeviceStatus = DeviceStatus(int8(b[0]))
	s.BatteryLevel = math.Float32frombits(binary.LittleEndian.Uint32(b[1:5]))
	s.LastBACUpdateMs = binary.LittleEndian.Uint32(b[5:9])
	s.ConnectionQuality = b[9]
	s.Tamper = b[10] != 0
	copy(s.Reserved[:], b[11:SystemStatusSize])
	return s, nil
}

// VehicleCommand is sent by the immobilizer to the device. Bytes after
// the command type are kept as an opaque payload.
type VehicleCommand struct {
	Type    CommandType
	Payload []byte
}

// Command creates a VehicleCommand without payload.
func Command(t CommandType) VehicleCommand {
	return VehicleCommand{Type: t}
}

// Bytes encodes the command.
func (c *VehicleCommand) Bytes() []byte {
	return EncodeVehicleCommand(*c)
}

// EncodeVehicleCommand encodes a command.
func EncodeVehicleCommand(c VehicleCommand) []byte {
	b := make([]byte, 1+len(c.Payload))
	b[0] = byte(c.Type)
	copy(b[1:], c.Payload)
	return b
}

// DecodeVehicleCommand decodes a command. Unknown command types are
// returned as-is; only an empty buffer fails.
func DecodeVehicleCommand(b []byte) (c VehicleCommand, err error) {
	if len(b) == 0 {
		return c, &DecodeError{Packet: "vehicle command", Want: 1, Err: ErrEmpty}
	}
	c.Type = CommandType(b[0])
	if len(b) > 1 {
		c.Payload = append([]byte(nil), b[1:]...)
	}
	return c, nil
}
