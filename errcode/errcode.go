package errcode

import "strconv"

// Code is a stable, ABI-facing status identifier.
// It is a uint32 newtype carrying the exact J2534 04.04 numeric value,
// comparable, allocation-free, and implements error.
type Code uint32

// Canonical J2534 status values.
const (
	NoError             Code = 0x00
	NotSupported        Code = 0x01
	InvalidChannelID    Code = 0x02
	InvalidProtocolID   Code = 0x03
	NullParameter       Code = 0x04
	InvalidIoctlValue   Code = 0x05
	InvalidFlags        Code = 0x06
	Failed              Code = 0x07
	DeviceNotConnected  Code = 0x08
	Timeout             Code = 0x09
	InvalidMsg          Code = 0x0A
	InvalidTimeInterval Code = 0x0B
	ExceededLimit       Code = 0x0C
	InvalidMsgID        Code = 0x0D
	DeviceInUse         Code = 0x0E
	InvalidIoctlID      Code = 0x0F
	BufferEmpty         Code = 0x10
	BufferFull          Code = 0x11
	BufferOverflow      Code = 0x12
	PinInvalid          Code = 0x13
	ChannelInUse        Code = 0x14
	MsgProtocolID       Code = 0x15
	InvalidFilterID     Code = 0x16
	NoFlowControl       Code = 0x17
	NotUnique           Code = 0x18
	InvalidBaudrate     Code = 0x19
	InvalidDeviceID     Code = 0x1A
)

var names = map[Code]string{
	NoError:             "STATUS_NOERROR",
	NotSupported:        "ERR_NOT_SUPPORTED",
	InvalidChannelID:    "ERR_INVALID_CHANNEL_ID",
	InvalidProtocolID:   "ERR_INVALID_PROTOCOL_ID",
	NullParameter:       "ERR_NULL_PARAMETER",
	InvalidIoctlValue:   "ERR_INVALID_IOCTL_VALUE",
	InvalidFlags:        "ERR_INVALID_FLAGS",
	Failed:              "ERR_FAILED",
	DeviceNotConnected:  "ERR_DEVICE_NOT_CONNECTED",
	Timeout:             "ERR_TIMEOUT",
	InvalidMsg:          "ERR_INVALID_MSG",
	InvalidTimeInterval: "ERR_INVALID_TIME_INTERVAL",
	ExceededLimit:       "ERR_EXCEEDED_LIMIT",
	InvalidMsgID:        "ERR_INVALID_MSG_ID",
	DeviceInUse:         "ERR_DEVICE_IN_USE",
	InvalidIoctlID:      "ERR_INVALID_IOCTL_ID",
	BufferEmpty:         "ERR_BUFFER_EMPTY",
	BufferFull:          "ERR_BUFFER_FULL",
	BufferOverflow:      "ERR_BUFFER_OVERFLOW",
	PinInvalid:          "ERR_PIN_INVALID",
	ChannelInUse:        "ERR_CHANNEL_IN_USE",
	MsgProtocolID:       "ERR_MSG_PROTOCOL_ID",
	InvalidFilterID:     "ERR_INVALID_FILTER_ID",
	NoFlowControl:       "ERR_NO_FLOW_CONTROL",
	NotUnique:           "ERR_NOT_UNIQUE",
	InvalidBaudrate:     "ERR_INVALID_BAUDRATE",
	InvalidDeviceID:     "ERR_INVALID_DEVICE_ID",
}

func (c Code) Error() string { return c.String() }

func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return "status 0x" + strconv.FormatUint(uint64(c), 16)
}

// FromRaw maps a raw status value (e.g. the leading byte of an adapter
// response) back to a Code. ok is false for values outside the enum.
func FromRaw(v uint32) (Code, bool) {
	c := Code(v)
	_, ok := names[c]
	return c, ok
}

// E keeps context and a cause alongside a Code. The adapter's own error
// text, when present, travels in Msg.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := e.C.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New wraps a Code with op context and a message.
func New(c Code, op, msg string) *E { return &E{C: c, Op: op, Msg: msg} }

// Of extracts a Code from an error, defaulting to Failed.
func Of(err error) Code {
	if err == nil {
		return NoError
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Failed
}

// Text returns the human-readable detail attached to err, if any.
func Text(err error) string {
	if e, ok := err.(*E); ok {
		return e.Msg
	}
	return ""
}
