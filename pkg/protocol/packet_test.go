package protocol

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBACStatusLayout(t *testing.T) {
	s := BACStatus{
		Timestamp:  0x0102030405060708,
		BAC:        0.08,
		AlertLevel: AlertDanger,
		Confidence: 92,
		Flags:      FlagWatchWorn | FlagSensorQualityOK,
	}
	b := EncodeBACStatus(s)
	require.Len(t, b, BACStatusSize)
	require.Equal(t, []byte{8, 7, 6, 5, 4, 3, 2, 1}, b[0:8])
	require.Equal(t, math.Float32bits(0.08), uint32(b[8])|uint32(b[9])<<8|uint32(b[10])<<16|uint32(b[11])<<24)
	require.Equal(t, []byte{2, 92, 0x05, 0, 0, 0, 0, 0}, b[12:])
}

func TestBACStatusRoundTrip(t *testing.T) {
	testCases := []struct {
		name   string
		status BACStatus
	}{
		{"sober", BACStatus{Timestamp: 1700000000000, BAC: 0.02, AlertLevel: AlertSafe, Confidence: 95, Flags: FlagWatchWorn | FlagSensorQualityOK}},
		{"warning", BACStatus{Timestamp: 1700000010000, BAC: 0.065, AlertLevel: AlertWarning, Confidence: 90, Flags: FlagWatchWorn}},
		{"critical", BACStatus{Timestamp: 1, BAC: 0.2, AlertLevel: AlertCritical, Confidence: 100, Flags: FlagWatchWorn | FlagBatteryLow}},
		{"not worn", BACStatus{Timestamp: 42, BAC: 0.03, AlertLevel: AlertSafe, Confidence: 50}},
		{"reserved bits", BACStatus{BAC: 0, Flags: 0xf2}},
		{"zero", BACStatus{}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := DecodeBACStatus(EncodeBACStatus(tc.status))
			require.NoError(t, err)
			require.Equal(t, tc.status, decoded)
		})
	}
}

func TestBACStatusClamp(t *testing.T) {
	testCases := []struct {
		name   string
		in     BACStatus
		expect BACStatus
	}{
		{"confidence", BACStatus{Confidence: 150}, BACStatus{Confidence: 100}},
		{"negative bac", BACStatus{BAC: -0.1}, BACStatus{BAC: 0}},
		{"bac above range", BACStatus{BAC: 1.5}, BACStatus{BAC: MaxBAC}},
		{"nan bac", BACStatus{BAC: float32(math.NaN())}, BACStatus{BAC: MaxBAC}},
		{"alert level", BACStatus{AlertLevel: 9}, BACStatus{AlertLevel: AlertCritical}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := DecodeBACStatus(EncodeBACStatus(tc.in))
			require.NoError(t, err)
			require.Equal(t, tc.expect, decoded)
		})
	}
	require.True(t, MaxBAC < 1)
}

func TestBACStatusDecode(t *testing.T) {
	_, err := DecodeBACStatus(make([]byte, 19))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTooShort))
	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	require.Equal(t, 19, decErr.Len)
	require.Equal(t, BACStatusSize, decErr.Want)

	_, err = DecodeBACStatus(nil)
	require.True(t, errors.Is(err, ErrTooShort))

	long := append(EncodeBACStatus(BACStatus{BAC: 0.04, Flags: FlagWatchWorn}), 0xde, 0xad)
	s, err := DecodeBACStatus(long)
	require.NoError(t, err)
	require.Equal(t, float32(0.04), s.BAC)
	require.True(t, s.Flags.WatchWorn())
}

func TestBACStatusReservedIgnored(t *testing.T) {
	b := EncodeBACStatus(BACStatus{BAC: 0.01, Confidence: 80, Flags: FlagWatchWorn})
	for i := 15; i < BACStatusSize; i++ {
		b[i] = 0xff
	}
	s, err := DecodeBACStatus(b)
	require.NoError(t, err)
	require.Equal(t, float32(0.01), s.BAC)
	require.Equal(t, uint8(80), s.Confidence)
	require.Equal(t, [ReservedSize]byte{0xff, 0xff, 0xff, 0xff, 0xff}, s.Reserved)
}

func TestSystemStatus(t *testing.T) {
	testCases := []struct {
		name   string
		status SystemStatus
	}{
		{"operational", SystemStatus{BatteryLevel: 87.5, LastBACUpdateMs: 10000, ConnectionQuality: 95}},
		{"tamper", SystemStatus{BatteryLevel: 15, LastBACUpdateMs: 0xffffffff, ConnectionQuality: 40, Tamper: true}},
		{"fault", SystemStatus{DeviceStatus: -3, BatteryLevel: 100}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := EncodeSystemStatus(tc.status)
			require.Len(t, b, SystemStatusSize)
			decoded, err := DecodeSystemStatus(b)
			require.NoError(t, err)
			require.Equal(t, tc.status, decoded)
		})
	}

	decoded, err := DecodeSystemStatus(EncodeSystemStatus(SystemStatus{BatteryLevel: 140, ConnectionQuality: 200}))
	require.NoError(t, err)
	require.Equal(t, float32(100), decoded.BatteryLevel)
	require.Equal(t, uint8(100), decoded.ConnectionQuality)

	_, err = DecodeSystemStatus(make([]byte, 15))
	require.True(t, errors.Is(err, ErrTooShort))

	b := EncodeSystemStatus(SystemStatus{})
	b[10] = 7
	decoded, err = DecodeSystemStatus(b)
	require.NoError(t, err)
	require.True(t, decoded.Tamper)
}

func TestVehicleCommand(t *testing.T) {
	for c := CommandAllowIgnition; c <= CommandEmergencyOverride; c++ {
		t.Run(c.String(), func(t *testing.T) {
			b := EncodeVehicleCommand(Command(c))
			require.Equal(t, []byte{byte(c)}, b)
			decoded, err := DecodeVehicleCommand(b)
			require.NoError(t, err)
			require.Equal(t, Command(c), decoded)
			require.True(t, decoded.Type.Known())
		})
	}

	decoded, err := DecodeVehicleCommand([]byte{0x42, 1, 2})
	require.NoError(t, err)
	require.False(t, decoded.Type.Known())
	require.Equal(t, "UNKNOWN(66)", decoded.Type.String())
	require.Equal(t, []byte{1, 2}, decoded.Payload)
	require.Equal(t, []byte{0x42, 1, 2}, decoded.Bytes())

	_, err = DecodeVehicleCommand([]byte{})
	require.True(t, errors.Is(err, ErrEmpty))
	_, err = DecodeVehicleCommand(nil)
	require.True(t, errors.Is(err, ErrEmpty))
}

func TestEnumNames(t *testing.T) {
	require.Equal(t, "BLOCK_IGNITION", CommandBlockIgnition.String())
	require.Equal(t, "CRITICAL", AlertCritical.String())
	require.Equal(t, "UNKNOWN(4)", AlertLevel(4).String())
	c, ok := ParseCommandType("EMERGENCY_OVERRIDE")
	require.True(t, ok)
	require.Equal(t, CommandEmergencyOverride, c)
	_, ok = ParseCommandType("LAUNCH")
	require.False(t, ok)

	f := Flags(0).With(FlagWatchWorn, true).With(FlagBatteryLow, true)
	require.True(t, f.WatchWorn())
	require.True(t, f.BatteryLow())
	require.False(t, f.SensorQualityOK())
	require.False(t, f.With(FlagWatchWorn, false).WatchWorn())
}
