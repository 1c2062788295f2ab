// Package wire encodes and decodes the serial frames exchanged with the
// adapter. Integers are little-endian throughout; the framing variant is a
// build-time choice (see codec_block.go / codec_prefix.go).
package wire

import "fmt"

// MsgType identifiers match the adapter firmware's command table.
type MsgType uint8

const (
	TypeUnknown             MsgType = 0x00
	TypeLog                 MsgType = 0x01
	TypeOpenChannel         MsgType = 0x02
	TypeCloseChannel        MsgType = 0x03
	TypeSetChannelFilter    MsgType = 0x04
	TypeRemoveChannelFilter MsgType = 0x05
	TypeTransmitChannelData MsgType = 0x06
	TypeReceiveChannelData  MsgType = 0x07
	TypeReadBatt            MsgType = 0x08
	TypeIoctlSet            MsgType = 0x09
	TypeInitLinChannel      MsgType = 0x0A
	TypeIoctlGet            MsgType = 0x10
	TypeStatusMsg           MsgType = 0xAA
	TypeGetFwVersion        MsgType = 0xAB
)

var typeNames = map[MsgType]string{
	TypeLog:                 "Log",
	TypeOpenChannel:         "OpenChannel",
	TypeCloseChannel:        "CloseChannel",
	TypeSetChannelFilter:    "SetChannelFilter",
	TypeRemoveChannelFilter: "RemoveChannelFilter",
	TypeTransmitChannelData: "TransmitChannelData",
	TypeReceiveChannelData:  "ReceiveChannelData",
	TypeReadBatt:            "ReadBatt",
	TypeIoctlSet:            "IoctlSet",
	TypeInitLinChannel:      "InitLinChannel",
	TypeIoctlGet:            "IoctlGet",
	TypeStatusMsg:           "StatusMsg",
	TypeGetFwVersion:        "GetFwVersion",
}

func (t MsgType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("MsgType(0x%02X)", uint8(t))
}

const (
	// BlockSize is the fixed block the adapter's DMA works in.
	BlockSize = 8192
	// MaxPayload is BlockSize minus the 4-byte frame header.
	MaxPayload = BlockSize - 4
)

// Frame is the in-memory form of one serial frame.
// ID 0 is fire-and-forget; 1..=99 correlates a host request with the
// adapter's response; other values are adapter-originated or invalid.
type Frame struct {
	ID      uint8
	Type    MsgType
	Payload []byte
}

// New builds a host-originated frame. Oversized payloads are truncated to
// MaxPayload; callers stay within the PASSTHRU_MSG limit in practice.
func New(t MsgType, payload []byte) Frame {
	if len(payload) > MaxPayload {
		payload = payload[:MaxPayload]
	}
	return Frame{Type: t, Payload: payload}
}

func (f Frame) String() string {
	return fmt.Sprintf("FRAME: ID: %02X Type: %s, Payload=%02X", f.ID, f.Type, f.Payload)
}
