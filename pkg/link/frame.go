package link

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a channel-tagged frame read from a stream.
const MaxFrameSize = 4096

// EncodeFrame tags payload with its channel for transports that carry
// all channels over one stream or socket.
func EncodeFrame(ch ChannelID, payload []byte) []byte {
	b := make([]byte, 1+len(payload))
	b[0] = byte(ch)
	copy(b[1:], payload)
	return b
}

// DecodeFrame splits a tagged frame.
func DecodeFrame(frame []byte) (ChannelID, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, fmt.Errorf("empty frame")
	}
	ch := ChannelID(frame[0])
	if !ch.Valid() {
		return ch, nil, ErrInvalidChannel
	}
	return ch, frame[1:], nil
}

// WriteFrame writes a frame prefixed by its 4-byte little-endian length.
func WriteFrame(w io.Writer, ch ChannelID, payload []byte) error {
	frame := EncodeFrame(ch, payload)
	buf := make([]byte, 4+len(frame))
	binary.LittleEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[4:], frame)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame. The returned error is
// non-nil only when the stream itself failed; a malformed frame with a
// valid length is returned as raw bytes to be rejected by DecodeFrame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("frame too large: %d", size)
	}
	frame := make([]byte, size)
	_, err := io.ReadFull(r, frame)
	return frame, err
}
