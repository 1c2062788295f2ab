// Package transport owns the serial link to the adapter. Three
// goroutines service the port: a writer draining the outgoing queue, a
// reader decoding and classifying inbound frames, and a dispatcher moving
// unsolicited channel data off the reader's back so lock contention on a
// channel can never stall serial reads.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"passthru-go/errcode"
	"passthru-go/logger"
	"passthru-go/router"
	"passthru-go/wire"
)

const (
	// readBacklog sizes the reader buffer in frames.
	readBacklog = 16
	// dispatchIdle is the dispatcher's poll backoff; rx delivery is
	// jitter-sensitive, so it stays in the microseconds.
	dispatchIdle = 10 * time.Microsecond
	readRetry    = 10 * time.Millisecond
	settleDelay  = 50 * time.Millisecond
)

// commandTimeout is the floor every request waits for its response.
var commandTimeout = 2 * time.Second

const (
	topicResp = "resp"
	topicTap  = "frame"
)

// RxSink consumes unsolicited channel data decoded by the dispatcher.
type RxSink interface {
	ReceiveChannelData(channelID, rxFlags uint32, data []byte)
}

// Transport is the single process-wide link to the adapter. Its lifecycle
// is bracketed by the host's open and close calls.
type Transport struct {
	port  io.ReadWriteCloser
	codec wire.Codec

	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup

	wmu      sync.Mutex // serialises raw port writes
	outgoing *frameQueue
	dispatch *frameQueue
	rt       *router.Router

	idMu   sync.Mutex
	lastID uint8

	sink atomic.Value // RxSink
}

// Connect resolves the configured serial device and brings the link up.
func Connect() (*Transport, error) {
	port, codec, err := PortOpener()
	if err != nil {
		return nil, err
	}
	return New(port, codec)
}

// New brings the link up over an already-open port. The reset/hello
// handshake is written synchronously; a failure there reports the port
// dead before any goroutine starts.
func New(port io.ReadWriteCloser, codec wire.Codec) (*Transport, error) {
	t := &Transport{
		port:     port,
		codec:    codec,
		stop:     make(chan struct{}),
		outgoing: newFrameQueue(),
		dispatch: newFrameQueue(),
		rt:       router.New(),
		lastID:   1,
	}
	t.running.Store(true)

	hello := wire.New(wire.TypeStatusMsg, []byte{0x01})
	if err := t.writeFrame(hello); err != nil {
		logger.Error("could not write init frame: " + err.Error())
		t.running.Store(false)
		port.Close()
		return nil, fmt.Errorf("transport: init write: %w", err)
	}

	t.wg.Add(3)
	go t.writeLoop()
	go t.readLoop()
	go t.dispatchLoop()

	time.Sleep(settleDelay)
	if !t.running.Load() {
		return nil, fmt.Errorf("transport: adapter did not come up")
	}
	return t, nil
}

// SetSink attaches the consumer for unsolicited channel data. Frames
// arriving before a sink is attached are dropped with a warning.
func (t *Transport) SetSink(s RxSink) { t.sink.Store(s) }

// Running reports whether the link is up.
func (t *Transport) Running() bool { return t.running.Load() }

// Tap subscribes to every inbound frame the reader classifies.
// Diagnostics only; the queue drops oldest under load.
func (t *Transport) Tap(queueLen int) *router.Sub {
	return t.rt.Subscribe(router.T(topicTap, router.MultiWild), queueLen)
}

func (t *Transport) nextID() uint8 {
	t.idMu.Lock()
	defer t.idMu.Unlock()
	t.lastID++
	if t.lastID >= 100 {
		t.lastID = 1
	}
	return t.lastID
}

// Post sends a fire-and-forget frame. The id is forced to 0 so the
// adapter knows not to reply.
func (t *Transport) Post(f wire.Frame) error {
	if !t.running.Load() {
		return errcode.New(errcode.Failed, "post", "transport is not running")
	}
	f.ID = 0
	t.outgoing.Push(f)
	return nil
}

// Call sends a frame and waits for the response carrying the same id.
// The wait is the larger of timeout and the 2 s command floor. On
// timeout the mailbox is vacated; a late reply is logged and dropped by
// the reader.
func (t *Transport) Call(f wire.Frame, timeout time.Duration) ([]byte, error) {
	if !t.running.Load() {
		return nil, errcode.New(errcode.DeviceNotConnected, "call", "transport is not running")
	}
	id := t.nextID()
	f.ID = id
	sub := t.rt.Subscribe(router.T(topicResp, int(id)), 1)
	defer sub.Cancel()

	logger.Debug("write data: " + f.String())
	t.outgoing.Push(f)

	wait := timeout
	if wait < commandTimeout {
		wait = commandTimeout
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	start := time.Now()

	select {
	case v := <-sub.Channel():
		resp, ok := v.(wire.Frame)
		if !ok {
			return nil, errcode.New(errcode.Failed, "call", "mailbox closed")
		}
		logger.Debug(fmt.Sprintf("command took %dus to execute", time.Since(start).Microseconds()))
		return parseResponse(resp)
	case <-timer.C:
		return nil, errcode.Timeout
	}
}

// parseResponse applies the response convention: leading status byte,
// operation-specific tail.
func parseResponse(f wire.Frame) ([]byte, error) {
	if len(f.Payload) == 0 {
		return nil, errcode.New(errcode.Failed, "call", "response carried no status byte")
	}
	code, ok := errcode.FromRaw(uint32(f.Payload[0]))
	if !ok {
		return nil, errcode.New(errcode.Failed, "call",
			fmt.Sprintf("unrecognised status %d", f.Payload[0]))
	}
	if code != errcode.NoError {
		return nil, &errcode.E{C: code, Msg: string(f.Payload[1:])}
	}
	return f.Payload[1:], nil
}

// Stop tears the link down: best-effort exit frame, then the goroutines
// are released. Safe to call more than once.
func (t *Transport) Stop() {
	if !t.running.CompareAndSwap(true, false) {
		return
	}
	exit := wire.New(wire.TypeStatusMsg, []byte{0x00})
	if err := t.writeFrame(exit); err != nil {
		logger.Warn("could not write exit frame: " + err.Error())
	}
	close(t.stop)
	t.port.Close()
	t.wg.Wait()
}

func (t *Transport) writeFrame(f wire.Frame) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	_, err := t.port.Write(t.codec.Encode(f))
	return err
}

func (t *Transport) writeLoop() {
	defer t.wg.Done()
	logger.Debug("serial writer starting")
	for t.running.Load() {
		f, ok := t.outgoing.Pop(t.stop)
		if !ok {
			break
		}
		if err := t.writeFrame(f); err != nil {
			logger.Warn("could not write frame to adapter: " + err.Error())
		}
	}
	logger.Debug("serial writer exiting")
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	logger.Debug("serial reader starting")
	buf := make([]byte, t.codec.FrameSize()*readBacklog)
	fill := 0
	for t.running.Load() {
		n, err := t.port.Read(buf[fill:])
		if err != nil {
			if t.running.Load() {
				time.Sleep(readRetry)
			}
			continue
		}
		if n == 0 {
			continue // port read timeout tick
		}
		fill += n
		for {
			f, used, derr := t.codec.Decode(buf[:fill])
			if used == 0 {
				break
			}
			copy(buf, buf[used:fill])
			fill -= used
			if derr != nil {
				logger.Warn("dropping malformed frame: " + derr.Error())
				continue
			}
			t.route(f)
		}
	}
	logger.Debug("serial reader exiting")
}

func (t *Transport) route(f wire.Frame) {
	t.rt.Publish(router.T(topicTap, int(f.Type)), f)
	switch f.Type {
	case wire.TypeLog:
		logger.Adapter(string(f.Payload))
	case wire.TypeReceiveChannelData:
		t.dispatch.Push(f)
	default:
		if f.ID >= 1 && f.ID <= 99 {
			if t.rt.Publish(router.T(topicResp, int(f.ID)), f) == 0 {
				logger.Warn(fmt.Sprintf("response %02X (%s) has no waiter, dropping", f.ID, f.Type))
			}
		} else {
			logger.Error(fmt.Sprintf("invalid message ID %d - type: %s", f.ID, f.Type))
		}
	}
}

// dispatchLoop feeds unsolicited channel data to the sink. Payload
// layout: channel id (u32 LE), rx flags (u32 LE), data.
func (t *Transport) dispatchLoop() {
	defer t.wg.Done()
	logger.Debug("rx dispatcher starting")
	for t.running.Load() {
		f, ok := t.dispatch.TryPop()
		if !ok {
			time.Sleep(dispatchIdle)
			continue
		}
		p := f.Payload
		if len(p) < 8 {
			logger.Warn("short channel data frame, dropping")
			continue
		}
		sink, _ := t.sink.Load().(RxSink)
		if sink == nil {
			logger.Warn("channel data arrived with no sink attached, dropping")
			continue
		}
		sink.ReceiveChannelData(
			binary.LittleEndian.Uint32(p[0:4]),
			binary.LittleEndian.Uint32(p[4:8]),
			p[8:])
	}
	logger.Debug("rx dispatcher exiting")
}
