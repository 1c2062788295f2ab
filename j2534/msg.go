package j2534

import "fmt"

// MaxDataSize is the inline data capacity of a PASSTHRU_MSG. The record
// shape is fixed by the J2534 header and may not change.
const MaxDataSize = 4128

// Msg mirrors PASSTHRU_MSG: field order and the inline data buffer match
// the C layout byte for byte.
type Msg struct {
	ProtocolID    uint32
	RxStatus      uint32
	TxFlags       uint32
	Timestamp     uint32 // microseconds since epoch, lower 32 bits
	DataSize      uint32
	ExtraDataSize uint32
	Data          [MaxDataSize]byte
}

// Bytes returns the populated portion of the inline buffer.
func (m *Msg) Bytes() []byte {
	n := m.DataSize
	if n > MaxDataSize {
		n = MaxDataSize
	}
	return m.Data[:n]
}

// SetBytes copies p into the inline buffer and updates DataSize.
func (m *Msg) SetBytes(p []byte) {
	n := copy(m.Data[:], p)
	m.DataSize = uint32(n)
}

func (m *Msg) String() string {
	return fmt.Sprintf("MSG: Protocol: %s, RxStatus: %08X, TxFlags: %08X, Data: %02X",
		Protocol(m.ProtocolID), m.RxStatus, m.TxFlags, m.Bytes())
}

// SConfig is one SET_CONFIG / GET_CONFIG parameter-value pair.
type SConfig struct {
	Parameter uint32
	Value     uint32
}

// SConfigList is the checked rendition of SCONFIG_LIST: the element count
// travels in the slice header instead of a separate NumOfParams field.
type SConfigList struct {
	Params []SConfig
}

// SByteArray is the checked rendition of SBYTE_ARRAY.
type SByteArray struct {
	Bytes []byte
}
