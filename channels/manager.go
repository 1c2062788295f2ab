package channels

import (
	"fmt"
	"sync"

	"passthru-go/errcode"
	"passthru-go/j2534"
	"passthru-go/logger"
	"passthru-go/transport"
)

// Manager holds the four exclusive channel slots, keyed by protocol
// family. Each slot carries its own readers-writer lock: mutating calls
// take the writer, pure inspection takes the reader.
type Manager struct {
	tr    *transport.Transport
	slots [j2534.NumFamilies]slot
}

type slot struct {
	mu sync.RWMutex
	ch *Channel
}

func NewManager(tr *transport.Transport) *Manager {
	return &Manager{tr: tr}
}

// Create opens a channel for the protocol's family. The family slot is
// exclusive: a second create while it is occupied fails.
func (m *Manager) Create(protocol j2534.Protocol, baudRate, flags uint32) (uint32, error) {
	fam := protocol.Family()
	s := &m.slots[fam]
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		return 0, errcode.ChannelInUse
	}
	ch, err := open(m.tr, uint32(fam), protocol, baudRate, flags)
	if err != nil {
		return 0, err
	}
	s.ch = ch
	return uint32(fam), nil
}

// Destroy closes a channel and frees its slot. Adapter-side failures are
// absorbed inside destroy; the slot always empties.
func (m *Manager) Destroy(channelID uint32) error {
	s, err := m.slot(channelID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return errcode.InvalidChannelID
	}
	s.ch.destroy()
	s.ch = nil
	return nil
}

// ForceDestroyAll empties every slot without any device round-trip. Used
// on host-side close, when the transport is about to be torn down.
func (m *Manager) ForceDestroyAll() {
	for i := range m.slots {
		s := &m.slots[i]
		s.mu.Lock()
		s.ch = nil
		s.mu.Unlock()
	}
}

func (m *Manager) AddFilter(channelID uint32, kind j2534.FilterKind, mask, pattern, flowControl []byte) (uint32, error) {
	s, err := m.slot(channelID)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return 0, errcode.InvalidChannelID
	}
	return s.ch.addFilter(kind, mask, pattern, flowControl)
}

func (m *Manager) RemoveFilter(channelID, filterID uint32) error {
	s, err := m.slot(channelID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return errcode.InvalidChannelID
	}
	return s.ch.removeFilter(filterID)
}

func (m *Manager) Transmit(channelID uint32, msg *j2534.Msg, requireResponse bool) error {
	s, err := m.slot(channelID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return errcode.InvalidChannelID
	}
	return s.ch.transmit(msg, requireResponse)
}

// ReadOne dequeues the oldest received message. (nil, nil) means the
// queue is empty.
func (m *Manager) ReadOne(channelID uint32) (*j2534.Msg, error) {
	s, err := m.slot(channelID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return nil, errcode.InvalidChannelID
	}
	msg, ok := s.ch.popRx()
	if !ok {
		return nil, nil
	}
	return &msg, nil
}

// RxAvailable reports the receive-queue depth without mutating it.
func (m *Manager) RxAvailable(channelID uint32) (int, error) {
	s, err := m.slot(channelID)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ch == nil {
		return 0, errcode.InvalidChannelID
	}
	return s.ch.rxAvailable(), nil
}

// Protocol returns the protocol the channel was created with.
func (m *Manager) Protocol(channelID uint32) (j2534.Protocol, error) {
	s, err := m.slot(channelID)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ch == nil {
		return 0, errcode.InvalidChannelID
	}
	return s.ch.protocol, nil
}

func (m *Manager) IoctlSet(channelID uint32, param j2534.ConfigParam, value uint32) error {
	s, err := m.slot(channelID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return errcode.InvalidChannelID
	}
	return s.ch.ioctlSet(param, value)
}

func (m *Manager) IoctlGet(channelID uint32, param j2534.ConfigParam) (uint32, error) {
	s, err := m.slot(channelID)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return 0, errcode.InvalidChannelID
	}
	return s.ch.ioctlGet(param)
}

func (m *Manager) ClearRx(channelID uint32) error {
	s, err := m.slot(channelID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return errcode.InvalidChannelID
	}
	s.ch.clearRx()
	return nil
}

func (m *Manager) ClearTx(channelID uint32) error {
	s, err := m.slot(channelID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return errcode.InvalidChannelID
	}
	s.ch.clearTx()
	return nil
}

// ReceiveChannelData implements transport.RxSink: the dispatcher hands
// over each unsolicited frame already split into id, flags and data.
func (m *Manager) ReceiveChannelData(channelID, rxFlags uint32, data []byte) {
	s, err := m.slot(channelID)
	if err != nil {
		logger.Warn(fmt.Sprintf("received data for invalid channel %d, dropping", channelID))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return
	}
	s.ch.onReceive(rxFlags, data)
}

func (m *Manager) slot(channelID uint32) (*slot, error) {
	fam, err := j2534.FamilyFromID(channelID)
	if err != nil {
		return nil, err
	}
	return &m.slots[fam], nil
}
