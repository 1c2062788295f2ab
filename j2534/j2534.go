// Package j2534 holds the records and identifier spaces fixed by the
// SAE J2534 (04.04) API: protocols, filter kinds, ioctl ids, configuration
// parameters, and the message record exchanged with the application.
package j2534

import "passthru-go/errcode"

// DeviceID is the constant device handle returned to the application.
const DeviceID uint32 = 0x1234

// Protocol is a J2534 protocol identifier.
type Protocol uint32

const (
	J1850VPW   Protocol = 0x01
	J1850PWM   Protocol = 0x02
	ISO9141    Protocol = 0x03
	ISO14230   Protocol = 0x04
	CAN        Protocol = 0x05
	ISO15765   Protocol = 0x06
	SCIAEngine Protocol = 0x07
	SCIATrans  Protocol = 0x08
	SCIBEngine Protocol = 0x09
	SCIBTrans  Protocol = 0x0A
)

var protocolNames = map[Protocol]string{
	J1850VPW:   "J1850VPW",
	J1850PWM:   "J1850PWM",
	ISO9141:    "ISO9141",
	ISO14230:   "ISO14230",
	CAN:        "CAN",
	ISO15765:   "ISO15765",
	SCIAEngine: "SCI_A_ENGINE",
	SCIATrans:  "SCI_A_TRANS",
	SCIBEngine: "SCI_B_ENGINE",
	SCIBTrans:  "SCI_B_TRANS",
}

func (p Protocol) String() string {
	if s, ok := protocolNames[p]; ok {
		return s
	}
	return "protocol?"
}

// ProtocolFromRaw validates a raw protocol id from the application.
func ProtocolFromRaw(v uint32) (Protocol, bool) {
	p := Protocol(v)
	_, ok := protocolNames[p]
	return p, ok
}

// Family is a logical bus slot index. A channel's id is its family.
type Family uint32

const (
	FamilyCAN   Family = 0
	FamilyKLine Family = 1
	FamilyJ1850 Family = 2
	FamilySCI   Family = 3

	NumFamilies = 4
)

func (f Family) String() string {
	switch f {
	case FamilyCAN:
		return "CAN"
	case FamilyKLine:
		return "K-line"
	case FamilyJ1850:
		return "J1850"
	case FamilySCI:
		return "SCI"
	}
	return "family?"
}

// Family maps a protocol to its channel slot. The mapping is total: every
// protocol in the enum lands in exactly one family.
func (p Protocol) Family() Family {
	switch p {
	case CAN, ISO15765:
		return FamilyCAN
	case ISO9141, ISO14230:
		return FamilyKLine
	case J1850PWM, J1850VPW:
		return FamilyJ1850
	default:
		return FamilySCI
	}
}

// FamilyFromID validates a channel id presented by the application.
func FamilyFromID(id uint32) (Family, error) {
	if id >= NumFamilies {
		return 0, errcode.InvalidChannelID
	}
	return Family(id), nil
}

// FilterKind is a J2534 filter type.
type FilterKind uint32

const (
	PassFilter        FilterKind = 0x01
	BlockFilter       FilterKind = 0x02
	FlowControlFilter FilterKind = 0x03
)

func (k FilterKind) String() string {
	switch k {
	case PassFilter:
		return "PASS_FILTER"
	case BlockFilter:
		return "BLOCK_FILTER"
	case FlowControlFilter:
		return "FLOW_CONTROL_FILTER"
	}
	return "filter?"
}

func FilterKindFromRaw(v uint32) (FilterKind, bool) {
	k := FilterKind(v)
	return k, k >= PassFilter && k <= FlowControlFilter
}

// IoctlID selects a PassThruIoctl operation.
type IoctlID uint32

const (
	GetConfig                     IoctlID = 0x01
	SetConfig                     IoctlID = 0x02
	ReadVBatt                     IoctlID = 0x03
	FiveBaudInit                  IoctlID = 0x04
	FastInit                      IoctlID = 0x05
	ClearTxBuffer                 IoctlID = 0x07
	ClearRxBuffer                 IoctlID = 0x08
	ClearPeriodicMsgs             IoctlID = 0x09
	ClearMsgFilters               IoctlID = 0x0A
	ClearFunctMsgLookupTable      IoctlID = 0x0B
	AddToFunctMsgLookupTable      IoctlID = 0x0C
	DeleteFromFunctMsgLookupTable IoctlID = 0x0D
	ReadProgVoltage               IoctlID = 0x0E
)

var ioctlNames = map[IoctlID]string{
	GetConfig:                     "GET_CONFIG",
	SetConfig:                     "SET_CONFIG",
	ReadVBatt:                     "READ_VBATT",
	FiveBaudInit:                  "FIVE_BAUD_INIT",
	FastInit:                      "FAST_INIT",
	ClearTxBuffer:                 "CLEAR_TX_BUFFER",
	ClearRxBuffer:                 "CLEAR_RX_BUFFER",
	ClearPeriodicMsgs:             "CLEAR_PERIODIC_MSGS",
	ClearMsgFilters:               "CLEAR_MSG_FILTERS",
	ClearFunctMsgLookupTable:      "CLEAR_FUNCT_MSG_LOOKUP_TABLE",
	AddToFunctMsgLookupTable:      "ADD_TO_FUNCT_MSG_LOOKUP_TABLE",
	DeleteFromFunctMsgLookupTable: "DELETE_FROM_FUNCT_MSG_LOOKUP_TABLE",
	ReadProgVoltage:               "READ_PROG_VOLTAGE",
}

func (i IoctlID) String() string {
	if s, ok := ioctlNames[i]; ok {
		return s
	}
	return "ioctl?"
}

func IoctlIDFromRaw(v uint32) (IoctlID, bool) {
	i := IoctlID(v)
	_, ok := ioctlNames[i]
	return i, ok
}

// ConfigParam is a SET_CONFIG / GET_CONFIG parameter name. Values at or
// above ReservedBase are reserved or tool specific.
type ConfigParam uint32

const (
	DataRate       ConfigParam = 0x01
	Loopback       ConfigParam = 0x03
	NodeAddress    ConfigParam = 0x04
	NetworkLine    ConfigParam = 0x05
	P1Min          ConfigParam = 0x06
	P1Max          ConfigParam = 0x07
	P2Min          ConfigParam = 0x08
	P2Max          ConfigParam = 0x09
	P3Min          ConfigParam = 0x0A
	P3Max          ConfigParam = 0x0B
	P4Min          ConfigParam = 0x0C
	P4Max          ConfigParam = 0x0D
	W1             ConfigParam = 0x0E
	W2             ConfigParam = 0x0F
	W3             ConfigParam = 0x10
	W4             ConfigParam = 0x11
	W5             ConfigParam = 0x12
	TIdle          ConfigParam = 0x13
	TIniL          ConfigParam = 0x14
	TWUp           ConfigParam = 0x15
	Parity         ConfigParam = 0x16
	BitSamplePoint ConfigParam = 0x17
	SyncJumpWidth  ConfigParam = 0x18
	W0             ConfigParam = 0x19
	T1Max          ConfigParam = 0x1A
	T2Max          ConfigParam = 0x1B
	T4Max          ConfigParam = 0x1C
	T5Max          ConfigParam = 0x1D
	ISO15765BS     ConfigParam = 0x1E
	ISO15765STMin  ConfigParam = 0x1F

	ReservedBase ConfigParam = 0x20
)

func ConfigParamFromRaw(v uint32) (ConfigParam, bool) {
	p := ConfigParam(v)
	return p, p >= DataRate && p < ReservedBase && p != 0x02
}
