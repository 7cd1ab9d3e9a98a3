// Package protocol provides the wire format between the wrist device
// and the vehicle immobilizer.
package protocol

// Three fixed-layout, little-endian packets travel over the link, one
// packet type per channel:
//
//   BAC status     device -> vehicle  20 bytes
//   System status  device -> vehicle  16 bytes
//   Vehicle command vehicle -> device  1+ bytes
//
// Encoders clamp out-of-range values instead of failing so telemetry is
// always sendable. Decoders only fail on short input; trailing bytes and
// reserved fields are ignored so newer producers can extend packets.
//
// Producer: wrist device (telemetry), immobilizer (commands)
// Consumer: immobilizer (telemetry), wrist device (commands)
