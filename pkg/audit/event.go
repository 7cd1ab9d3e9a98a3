// Package audit records ignition decisions and device telemetry to
// external stores.
package audit

import (
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/google/uuid"

	"github.com/robotalks/alcolock/pkg/ignition"
	"github.com/robotalks/alcolock/pkg/protocol"
)

// Kind tells which payload an Event carries.
type Kind int32

// Kinds.
const (
	KindUnknown Kind = iota
	KindDecision
	KindTelemetry
)

var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindDecision:  "decision",
	KindTelemetry: "telemetry",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Event is one audit record. It is serialized with protobuf when sent
// to a broker.
type Event struct {
	ID        string     `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Vehicle   string     `protobuf:"bytes,2,opt,name=vehicle,proto3" json:"vehicle,omitempty"`
	TimeMs    int64      `protobuf:"varint,3,opt,name=time_ms,proto3" json:"time_ms,omitempty"`
	Kind      Kind       `protobuf:"varint,4,opt,name=kind,proto3" json:"kind,omitempty"`
	Decision  *Decision  `protobuf:"bytes,5,opt,name=decision,proto3" json:"decision,omitempty"`
	Telemetry *Telemetry `protobuf:"bytes,6,opt,name=telemetry,proto3" json:"telemetry,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Event) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Event) Reset() { *m = Event{} }

// String implements proto.Message.
func (m *Event) String() string { return proto.CompactTextString(m) }

// Time converts TimeMs.
func (m *Event) Time() time.Time {
	return time.UnixMilli(m.TimeMs)
}

// Decision is an ignition state transition.
type Decision struct {
	Permission string   `protobuf:"bytes,1,opt,name=permission,proto3" json:"permission,omitempty"`
	Cause      string   `protobuf:"bytes,2,opt,name=cause,proto3" json:"cause,omitempty"`
	Commands   []string `protobuf:"bytes,3,rep,name=commands,proto3" json:"commands,omitempty"`
	HasBac     bool     `protobuf:"varint,4,opt,name=has_bac,proto3" json:"has_bac,omitempty"`
	Bac        float32  `protobuf:"fixed32,5,opt,name=bac,proto3" json:"bac,omitempty"`
	AlertLevel string   `protobuf:"bytes,6,opt,name=alert_level,proto3" json:"alert_level,omitempty"`
	Confidence uint32   `protobuf:"varint,7,opt,name=confidence,proto3" json:"confidence,omitempty"`
	Tamper     bool     `protobuf:"varint,8,opt,name=tamper,proto3" json:"tamper,omitempty"`
	Warning    bool     `protobuf:"varint,9,opt,name=warning,proto3" json:"warning,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Decision) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Decision) Reset() { *m = Decision{} }

// String implements proto.Message.
func (m *Decision) String() string { return proto.CompactTextString(m) }

// Telemetry is a device system status report.
type Telemetry struct {
	DeviceStatus      int32   `protobuf:"varint,1,opt,name=device_status,proto3" json:"device_status,omitempty"`
	BatteryLevel      float32 `protobuf:"fixed32,2,opt,name=battery_level,proto3" json:"battery_level,omitempty"`
	LastBacUpdateMs   uint32  `protobuf:"varint,3,opt,name=last_bac_update_ms,proto3" json:"last_bac_update_ms,omitempty"`
	ConnectionQuality uint32  `protobuf:"varint,4,opt,name=connection_quality,proto3" json:"connection_quality,omitempty"`
	Tamper            bool    `protobuf:"varint,5,opt,name=tamper,proto3" json:"tamper,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Telemetry) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Telemetry) Reset() { *m = Telemetry{} }

// String implements proto.Message.
func (m *Telemetry) String() string { return proto.CompactTextString(m) }

func newEvent(vehicle string, kind Kind, at time.Time) *Event {
	return &Event{
		ID:      uuid.NewString(),
		Vehicle: vehicle,
		TimeMs:  at.UnixMilli(),
		Kind:    kind,
	}
}

// NewDecisionEvent creates an Event from a controller decision.
func NewDecisionEvent(vehicle string, d ignition.Decision, at time.Time) *Event {
	ev := newEvent(vehicle, KindDecision, at)
	s := d.State
	dec := &Decision{
		Permission: s.Permission.String(),
		Cause:      s.Cause.String(),
		HasBac:     s.HasBAC,
		Bac:        s.LastBAC,
		Tamper:     s.Tamper,
		Warning:    s.Warning,
	}
	for _, cmd := range ignition.Commands(d.Effects) {
		dec.Commands = append(dec.Commands, cmd.String())
	}
	if rcv, ok := d.Event.(ignition.BACReceived); ok {
		dec.AlertLevel = rcv.Status.AlertLevel.String()
		dec.Confidence = uint32(rcv.Status.Confidence)
	}
	ev.Decision = dec
	return ev
}

// NewTelemetryEvent creates an Event from a system status packet.
func NewTelemetryEvent(vehicle string, s protocol.SystemStatus, at time.Time) *Event {
	ev := newEvent(vehicle, KindTelemetry, at)
	ev.Telemetry = &Telemetry{
		DeviceStatus:      int32(s.DeviceStatus),
		BatteryLevel:      s.BatteryLevel,
		LastBacUpdateMs:   s.LastBACUpdateMs,
		ConnectionQuality: uint32(s.ConnectionQuality),
		Tamper:            s.Tamper,
	}
	return ev
}

// Encode serializes the event.
func (m *Event) Encode() ([]byte, error) {
	return proto.Marshal(m)
}

// DecodeEvent parses a serialized event.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := proto.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
