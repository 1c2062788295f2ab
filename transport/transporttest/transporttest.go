// Package transporttest provides an in-memory adapter peer so the
// transport and everything above it can be driven without hardware. The
// fake honours the wire protocol: it answers correlated requests with a
// status byte plus an operation-specific tail, stays quiet for
// fire-and-forget frames, and can originate unsolicited channel data and
// log lines.
package transporttest

import (
	"encoding/binary"
	"io"
	"sync"

	"passthru-go/errcode"
	"passthru-go/wire"
)

// Options tunes the fake adapter's behaviour.
type Options struct {
	Codec     wire.Codec // defaults to wire.PrefixCodec{}
	FwVersion string     // default "0.0.1"
	VBattMV   uint32     // default 12000
	IoctlVal  uint32     // value returned by IoctlGet

	// Fail forces an error status (with FailText as the tail) for the
	// given request types.
	Fail     map[wire.MsgType]errcode.Code
	FailText string

	// Mute suppresses the automatic response for the given request
	// types; the frames appear on Requests instead, for the test to
	// answer via Inject in whatever order it wants.
	Mute map[wire.MsgType]bool
}

// Adapter is the device end of the link.
type Adapter struct {
	opts  Options
	codec wire.Codec

	hostR *io.PipeReader // host reads what the device writes
	devW  *io.PipeWriter
	devR  *io.PipeReader // device reads what the host writes
	hostW *io.PipeWriter

	wmu sync.Mutex

	mu   sync.Mutex
	seen []wire.Frame

	// Requests receives every muted frame.
	Requests chan wire.Frame

	done chan struct{}
}

// New starts the fake adapter and returns it.
func New(opts Options) *Adapter {
	if opts.Codec == nil {
		opts.Codec = wire.PrefixCodec{}
	}
	if opts.FwVersion == "" {
		opts.FwVersion = "0.0.1"
	}
	if opts.VBattMV == 0 {
		opts.VBattMV = 12000
	}
	hostR, devW := io.Pipe()
	devR, hostW := io.Pipe()
	a := &Adapter{
		opts:     opts,
		codec:    opts.Codec,
		hostR:    hostR,
		devW:     devW,
		devR:     devR,
		hostW:    hostW,
		Requests: make(chan wire.Frame, 64),
		done:     make(chan struct{}),
	}
	go a.serve()
	return a
}

// HostPort returns the end of the link to hand to transport.New.
func (a *Adapter) HostPort() io.ReadWriteCloser {
	return &hostPort{r: a.hostR, w: a.hostW}
}

// Codec returns the codec the fake speaks.
func (a *Adapter) Codec() wire.Codec { return a.codec }

type hostPort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *hostPort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *hostPort) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *hostPort) Close() error {
	p.r.Close()
	return p.w.Close()
}

// Inject writes a device-originated frame to the host.
func (a *Adapter) Inject(f wire.Frame) {
	a.wmu.Lock()
	defer a.wmu.Unlock()
	_, _ = a.devW.Write(a.codec.Encode(f))
}

// InjectChannelData originates one unsolicited channel-data frame.
func (a *Adapter) InjectChannelData(channelID, rxFlags uint32, data []byte) {
	payload := make([]byte, 0, 8+len(data))
	payload = binary.LittleEndian.AppendUint32(payload, channelID)
	payload = binary.LittleEndian.AppendUint32(payload, rxFlags)
	payload = append(payload, data...)
	a.Inject(wire.New(wire.TypeReceiveChannelData, payload))
}

// InjectLog originates one adapter log line.
func (a *Adapter) InjectLog(text string) {
	a.Inject(wire.New(wire.TypeLog, []byte(text)))
}

// Reply answers a muted request with NOERROR and the given tail.
func (a *Adapter) Reply(req wire.Frame, tail []byte) {
	f := wire.New(req.Type, append([]byte{byte(errcode.NoError)}, tail...))
	f.ID = req.ID
	a.Inject(f)
}

// Seen returns the frames received so far, oldest first.
func (a *Adapter) Seen() []wire.Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]wire.Frame, len(a.seen))
	copy(out, a.seen)
	return out
}

// LastPayload returns the payload of the most recent frame of type t.
func (a *Adapter) LastPayload(t wire.MsgType) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.seen) - 1; i >= 0; i-- {
		if a.seen[i].Type == t {
			return a.seen[i].Payload
		}
	}
	return nil
}

// Close tears both pipe directions down.
func (a *Adapter) Close() {
	a.devR.Close()
	a.devW.Close()
	<-a.done
}

func (a *Adapter) serve() {
	defer close(a.done)
	buf := make([]byte, a.codec.FrameSize()*4)
	fill := 0
	for {
		n, err := a.devR.Read(buf[fill:])
		if err != nil {
			return
		}
		fill += n
		for {
			f, used, derr := a.codec.Decode(buf[:fill])
			if used == 0 {
				break
			}
			copy(buf, buf[used:fill])
			fill -= used
			if derr != nil {
				continue
			}
			a.handle(f)
		}
	}
}

func (a *Adapter) handle(f wire.Frame) {
	a.mu.Lock()
	a.seen = append(a.seen, f)
	a.mu.Unlock()

	if f.ID == 0 || f.Type == wire.TypeStatusMsg {
		return // fire-and-forget; the adapter must not reply
	}
	if a.opts.Mute[f.Type] {
		a.Requests <- f
		return
	}

	if code, bad := a.opts.Fail[f.Type]; bad {
		resp := wire.New(f.Type, append([]byte{byte(code)}, []byte(a.opts.FailText)...))
		resp.ID = f.ID
		a.Inject(resp)
		return
	}

	var tail []byte
	switch f.Type {
	case wire.TypeGetFwVersion:
		tail = []byte(a.opts.FwVersion)
	case wire.TypeReadBatt:
		tail = binary.LittleEndian.AppendUint32(nil, a.opts.VBattMV)
	case wire.TypeIoctlGet:
		tail = binary.LittleEndian.AppendUint32(nil, a.opts.IoctlVal)
	}
	resp := wire.New(f.Type, append([]byte{byte(errcode.NoError)}, tail...))
	resp.ID = f.ID
	a.Inject(resp)
}
