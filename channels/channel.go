// Package channels multiplexes the single adapter link into up to four
// logical bus channels, one per protocol family, each with its own filter
// table and bounded receive queue.
package channels

import (
	"encoding/binary"
	"fmt"
	"time"

	"passthru-go/errcode"
	"passthru-go/j2534"
	"passthru-go/logger"
	"passthru-go/transport"
	"passthru-go/wire"
)

const (
	// maxFiltersPerChannel is fixed by the J2534 spec.
	maxFiltersPerChannel = 10
	// maxQueuedMsgs bounds the receive queue; beyond it, incoming frames
	// are dropped (newest first to go).
	maxQueuedMsgs = 500

	openTimeout         = 100 * time.Millisecond
	closeTimeout        = 250 * time.Millisecond
	filterSetTimeout    = 250 * time.Millisecond
	filterRemoveTimeout = 100 * time.Millisecond
	transmitTimeout     = 100 * time.Millisecond
	ioctlTimeout        = 100 * time.Millisecond
)

// Channel is one logical bus session. Methods are not self-synchronised;
// the Manager's per-slot lock covers them.
type Channel struct {
	tr       *transport.Transport
	id       uint32 // family index, also the wire channel id
	protocol j2534.Protocol
	baudRate uint32
	flags    uint32
	filters  [maxFiltersPerChannel]bool
	rx       rxQueue
}

// open asks the adapter to bring the bus up and returns the channel on
// success.
func open(tr *transport.Transport, id uint32, protocol j2534.Protocol, baudRate, flags uint32) (*Channel, error) {
	payload := make([]byte, 0, 16)
	for _, arg := range [...]uint32{id, uint32(protocol), baudRate, flags} {
		payload = binary.LittleEndian.AppendUint32(payload, arg)
	}
	logger.Debug(fmt.Sprintf("requesting channel open. ID: %d, protocol: %s, baud: %d, flags: 0x%04X",
		id, protocol, baudRate, flags))
	if _, err := tr.Call(wire.New(wire.TypeOpenChannel, payload), openTimeout); err != nil {
		logger.Error(fmt.Sprintf("adapter failed to open channel %d: %v", id, err))
		return nil, err
	}
	logger.Debug("adapter opened channel")
	return &Channel{tr: tr, id: id, protocol: protocol, baudRate: baudRate, flags: flags}, nil
}

// Protocol returns the exact protocol chosen at creation.
func (c *Channel) Protocol() j2534.Protocol { return c.protocol }

// destroy asks the adapter to close the bus. A timeout or adapter error
// is logged and treated as success so a wedged adapter cannot leak the
// slot.
func (c *Channel) destroy() {
	logger.Debug(fmt.Sprintf("requesting channel destroy. ID: %d", c.id))
	payload := binary.LittleEndian.AppendUint32(nil, c.id)
	if _, err := c.tr.Call(wire.New(wire.TypeCloseChannel, payload), closeTimeout); err != nil {
		logger.Error(fmt.Sprintf("adapter failed to close channel %d: %v, assuming close was OK", c.id, err))
	}
}

// addFilter claims the lowest free slot and installs the filter on the
// adapter. The slot index is the caller-visible filter id.
func (c *Channel) addFilter(kind j2534.FilterKind, mask, pattern, flowControl []byte) (uint32, error) {
	slot := -1
	for i, used := range c.filters {
		if !used {
			slot = i
			break
		}
	}
	if slot < 0 {
		return 0, errcode.ExceededLimit
	}

	payload := make([]byte, 0, 24+len(mask)+len(pattern)+len(flowControl))
	for _, arg := range [...]uint32{c.id, uint32(slot), uint32(kind),
		uint32(len(mask)), uint32(len(pattern)), uint32(len(flowControl))} {
		payload = binary.LittleEndian.AppendUint32(payload, arg)
	}
	payload = append(payload, mask...)
	payload = append(payload, pattern...)
	payload = append(payload, flowControl...)

	logger.Debug(fmt.Sprintf("setting %s (ID: %d) on channel %d. Mask: %02X, Pattern: %02X, FlowControl: %02X",
		kind, slot, c.id, mask, pattern, flowControl))
	if _, err := c.tr.Call(wire.New(wire.TypeSetChannelFilter, payload), filterSetTimeout); err != nil {
		logger.Error(fmt.Sprintf("adapter failed to set filter %d on channel %d: %v", slot, c.id, err))
		return 0, err
	}
	c.filters[slot] = true
	return uint32(slot), nil
}

func (c *Channel) removeFilter(slot uint32) error {
	if slot >= maxFiltersPerChannel || !c.filters[slot] {
		return errcode.InvalidMsgID
	}
	payload := make([]byte, 0, 8)
	payload = binary.LittleEndian.AppendUint32(payload, c.id)
	payload = binary.LittleEndian.AppendUint32(payload, slot)
	logger.Debug(fmt.Sprintf("removing channel %d filter %d", c.id, slot))
	if _, err := c.tr.Call(wire.New(wire.TypeRemoveChannelFilter, payload), filterRemoveTimeout); err != nil {
		logger.Error(fmt.Sprintf("adapter failed to remove filter %d on channel %d: %v", slot, c.id, err))
		return err
	}
	c.filters[slot] = false
	return nil
}

// transmit sends one message. With requireResponse the adapter's status
// is awaited and propagated; otherwise the frame is fire-and-forget.
func (c *Channel) transmit(msg *j2534.Msg, requireResponse bool) error {
	if msg.ProtocolID != uint32(c.protocol) {
		return errcode.MsgProtocolID
	}
	payload := make([]byte, 0, 8+msg.DataSize)
	payload = binary.LittleEndian.AppendUint32(payload, c.id)
	payload = binary.LittleEndian.AppendUint32(payload, msg.TxFlags)
	payload = append(payload, msg.Bytes()...)

	logger.Debug(fmt.Sprintf("channel %d writing message: %s. Response required?: %v", c.id, msg, requireResponse))
	f := wire.New(wire.TypeTransmitChannelData, payload)
	if !requireResponse {
		return c.tr.Post(f)
	}
	if _, err := c.tr.Call(f, transmitTimeout); err != nil {
		logger.Error(fmt.Sprintf("adapter failed to write data to channel %d: %v", c.id, err))
		return err
	}
	return nil
}

// onReceive is called from the transport dispatcher with the payload tail
// of one ReceiveChannelData frame.
func (c *Channel) onReceive(rxStatus uint32, data []byte) {
	if c.rx.len() >= maxQueuedMsgs {
		logger.Warn(fmt.Sprintf("rx queue in channel %d is full. Data has been lost!", c.id))
		return
	}
	msg := j2534.Msg{
		ProtocolID: uint32(c.protocol),
		RxStatus:   rxStatus,
		Timestamp:  uint32(time.Now().UnixMicro()),
	}
	msg.SetBytes(data)
	c.rx.push(msg)
}

func (c *Channel) popRx() (j2534.Msg, bool) { return c.rx.pop() }
func (c *Channel) rxAvailable() int         { return c.rx.len() }
func (c *Channel) clearRx()                 { c.rx.clear() }

// clearTx is a no-op: transmission is synchronous against the transport,
// so there is nothing buffered to clear.
func (c *Channel) clearTx() {}

// ioctlSet writes one configuration parameter. The channel id travels as
// a single byte here; the adapter's ioctl parser predates the 32-bit ids
// used elsewhere.
func (c *Channel) ioctlSet(param j2534.ConfigParam, value uint32) error {
	payload := make([]byte, 0, 9)
	payload = append(payload, byte(c.id))
	payload = binary.LittleEndian.AppendUint32(payload, uint32(param))
	payload = binary.LittleEndian.AppendUint32(payload, value)
	logger.Debug(fmt.Sprintf("channel %d writing IOCTL param: %d, value: %d", c.id, param, value))
	if _, err := c.tr.Call(wire.New(wire.TypeIoctlSet, payload), ioctlTimeout); err != nil {
		logger.Error(fmt.Sprintf("adapter failed to set IOCTL on channel %d: %v", c.id, err))
		return err
	}
	return nil
}

func (c *Channel) ioctlGet(param j2534.ConfigParam) (uint32, error) {
	payload := make([]byte, 0, 5)
	payload = append(payload, byte(c.id))
	payload = binary.LittleEndian.AppendUint32(payload, uint32(param))
	logger.Debug(fmt.Sprintf("channel %d requesting IOCTL param: %d", c.id, param))
	tail, err := c.tr.Call(wire.New(wire.TypeIoctlGet, payload), ioctlTimeout)
	if err != nil {
		logger.Error(fmt.Sprintf("adapter failed to get IOCTL on channel %d: %v", c.id, err))
		return 0, err
	}
	if len(tail) != 4 {
		logger.Error("IOCTL get response was an invalid length")
		return 0, errcode.New(errcode.Failed, "ioctl", "IOCTL get response was an invalid length")
	}
	return binary.LittleEndian.Uint32(tail), nil
}

// rxQueue is a FIFO ring over j2534.Msg values. Messages are large, so
// the ring reuses its backing array instead of reslicing.
type rxQueue struct {
	buf   []j2534.Msg
	head  int
	count int
}

func (q *rxQueue) len() int { return q.count }

func (q *rxQueue) push(m j2534.Msg) {
	if q.count == len(q.buf) {
		grown := make([]j2534.Msg, max(16, 2*len(q.buf)))
		for i := 0; i < q.count; i++ {
			grown[i] = q.buf[(q.head+i)%len(q.buf)]
		}
		q.buf = grown
		q.head = 0
	}
	q.buf[(q.head+q.count)%len(q.buf)] = m
	q.count++
}

func (q *rxQueue) pop() (j2534.Msg, bool) {
	if q.count == 0 {
		return j2534.Msg{}, false
	}
	m := q.buf[q.head]
	q.buf[q.head] = j2534.Msg{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return m, true
}

func (q *rxQueue) clear() {
	q.buf, q.head, q.count = nil, 0, 0
}
