package wire

import (
	"encoding/binary"
	"errors"
)

// ErrMalformed reports a frame that could not be decoded. The reader drops
// it and resynchronises by waiting for more bytes; there is no framing
// escape sequence, so a truly desynchronised stream needs an adapter reset.
var ErrMalformed = errors.New("wire: malformed frame")

// Codec turns frames into bytes and back.
//
// Decode consumes at most one frame from the head of buf. n is the number
// of bytes consumed: n == 0 means more bytes are needed. A non-nil error
// with n > 0 reports a malformed frame whose bytes were skipped.
type Codec interface {
	Encode(f Frame) []byte
	Decode(buf []byte) (f Frame, n int, err error)
	// FrameSize is the worst-case encoded size of one frame, used to size
	// the reader's buffer.
	FrameSize() int
}

// BlockCodec frames messages in fixed BlockSize blocks, padded with zeros.
// In-block layout: length(u16 LE) = payload length + 2, id(u8), type(u8),
// payload, then padding the decoder ignores. The fixed read target suits
// the adapter's 8 KiB DMA pages and avoids per-frame handshaking.
type BlockCodec struct{}

func (BlockCodec) Encode(f Frame) []byte {
	out := make([]byte, BlockSize)
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(f.Payload))+2)
	out[2] = f.ID
	out[3] = uint8(f.Type)
	copy(out[4:], f.Payload)
	return out
}

func (BlockCodec) Decode(buf []byte) (Frame, int, error) {
	if len(buf) < BlockSize {
		return Frame{}, 0, nil
	}
	length := int(binary.LittleEndian.Uint16(buf[0:2]))
	if length < 2 || length-2 > MaxPayload {
		return Frame{}, BlockSize, ErrMalformed
	}
	payload := make([]byte, length-2)
	copy(payload, buf[4:4+length-2])
	return Frame{ID: buf[2], Type: MsgType(buf[3]), Payload: payload}, BlockSize, nil
}

func (BlockCodec) FrameSize() int { return BlockSize }

// PrefixCodec frames messages with a u16 LE length prefix covering the id,
// type and payload bytes. No padding; suits adapters on true serial links
// without hardware flow control where bandwidth matters.
type PrefixCodec struct{}

func (PrefixCodec) Encode(f Frame) []byte {
	out := make([]byte, 2+2+len(f.Payload))
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(f.Payload))+2)
	out[2] = f.ID
	out[3] = uint8(f.Type)
	copy(out[4:], f.Payload)
	return out
}

func (PrefixCodec) Decode(buf []byte) (Frame, int, error) {
	if len(buf) < 2 {
		return Frame{}, 0, nil
	}
	length := int(binary.LittleEndian.Uint16(buf[0:2]))
	if length < 2 || length-2 > MaxPayload {
		// Skip the bogus prefix and let the reader hunt for the next frame.
		return Frame{}, 2, ErrMalformed
	}
	if len(buf) < 2+length {
		return Frame{}, 0, nil
	}
	payload := make([]byte, length-2)
	copy(payload, buf[4:2+length])
	return Frame{ID: buf[2], Type: MsgType(buf[3]), Payload: payload}, 2 + length, nil
}

func (PrefixCodec) FrameSize() int { return 2 + 2 + MaxPayload }
