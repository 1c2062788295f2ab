// driver/driver_test.go
package driver

import (
	"io"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"passthru-go/errcode"
	"passthru-go/j2534"
	"passthru-go/logger"
	"passthru-go/transport"
	"passthru-go/transport/transporttest"
	"passthru-go/wire"
)

// The tests run against an in-memory adapter: PortOpener is rewired to
// hand the transport one end of a duplex pipe.
var currentAdapter *transporttest.Adapter

func TestMain(m *testing.M) {
	logger.Swap(zap.NewNop())
	transport.PortOpener = func() (io.ReadWriteCloser, wire.Codec, error) {
		return currentAdapter.HostPort(), currentAdapter.Codec(), nil
	}
	os.Exit(m.Run())
}

// openDevice boots a fresh fake adapter and opens the driver against it.
func openDevice(t *testing.T, opts transporttest.Options) (*transporttest.Adapter, uint32) {
	t.Helper()
	currentAdapter = transporttest.New(opts)
	ad := currentAdapter
	var id uint32
	if code := PassThruOpen("", &id); code != errcode.NoError {
		t.Fatalf("open: %s", code)
	}
	t.Cleanup(func() {
		PassThruClose(j2534.DeviceID)
		ad.Close()
	})
	return ad, id
}

func TestOpenCloseIdempotence(t *testing.T) {
	_, id := openDevice(t, transporttest.Options{})
	if id != 0x1234 {
		t.Fatalf("device id = 0x%04X, want 0x1234", id)
	}

	var second uint32
	if code := PassThruOpen("", &second); code != errcode.DeviceInUse {
		t.Fatalf("second open = %s, want ERR_DEVICE_IN_USE", code)
	}

	if code := PassThruClose(0x1234); code != errcode.NoError {
		t.Fatalf("close = %s", code)
	}
	if code := PassThruClose(0x1234); code != errcode.NoError {
		t.Fatalf("close of closed device = %s, want STATUS_NOERROR", code)
	}
}

func TestOpenNullPointer(t *testing.T) {
	if code := PassThruOpen("", nil); code != errcode.NullParameter {
		t.Fatalf("code = %s, want ERR_NULL_PARAMETER", code)
	}
}

func TestCloseWrongDeviceID(t *testing.T) {
	openDevice(t, transporttest.Options{})
	if code := PassThruClose(0x9999); code != errcode.InvalidDeviceID {
		t.Fatalf("code = %s, want ERR_INVALID_DEVICE_ID", code)
	}
}

func TestConnectReturnsFamilyIndex(t *testing.T) {
	_, devID := openDevice(t, transporttest.Options{})

	var ch uint32 = 0xFFFF
	if code := PassThruConnect(devID, uint32(j2534.ISO15765), 0, 500000, &ch); code != errcode.NoError {
		t.Fatalf("connect = %s", code)
	}
	if ch != uint32(j2534.FamilyCAN) {
		t.Fatalf("channel id = %d, want family index %d", ch, j2534.FamilyCAN)
	}
	if code := PassThruDisconnect(ch); code != errcode.NoError {
		t.Fatalf("disconnect = %s", code)
	}
}

func TestConnectGuards(t *testing.T) {
	_, devID := openDevice(t, transporttest.Options{})

	var ch uint32
	if code := PassThruConnect(0xBEEF, uint32(j2534.CAN), 0, 500000, &ch); code != errcode.InvalidDeviceID {
		t.Fatalf("wrong device id = %s, want ERR_INVALID_DEVICE_ID", code)
	}
	if code := PassThruConnect(devID, uint32(j2534.CAN), 0, 500000, nil); code != errcode.NullParameter {
		t.Fatalf("nil channel ptr = %s, want ERR_NULL_PARAMETER", code)
	}
	if code := PassThruConnect(devID, 0x99, 0, 500000, &ch); code != errcode.InvalidProtocolID {
		t.Fatalf("bad protocol = %s, want ERR_INVALID_PROTOCOL_ID", code)
	}
}

func TestWriteMsgsProtocolMismatch(t *testing.T) {
	_, devID := openDevice(t, transporttest.Options{})

	var ch uint32
	if code := PassThruConnect(devID, uint32(j2534.CAN), 0, 500000, &ch); code != errcode.NoError {
		t.Fatalf("connect = %s", code)
	}

	msgs := make([]j2534.Msg, 1)
	msgs[0].ProtocolID = uint32(j2534.ISO15765)
	msgs[0].SetBytes([]byte{0, 0, 7, 0xDF})
	count := uint32(1)
	if code := PassThruWriteMsgs(ch, msgs, &count, 100); code != errcode.MsgProtocolID {
		t.Fatalf("code = %s, want ERR_MSG_PROTOCOL_ID", code)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}

func TestFilterSlotExhaustionThroughABI(t *testing.T) {
	_, devID := openDevice(t, transporttest.Options{})

	var ch uint32
	if code := PassThruConnect(devID, uint32(j2534.CAN), 0, 500000, &ch); code != errcode.NoError {
		t.Fatalf("connect = %s", code)
	}

	var mask, pattern j2534.Msg
	mask.ProtocolID = uint32(j2534.CAN)
	mask.SetBytes([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	pattern.ProtocolID = uint32(j2534.CAN)
	pattern.SetBytes([]byte{0x00, 0x00, 0x03, 0x08})

	for i := 0; i < 10; i++ {
		var filterID uint32
		code := PassThruStartMsgFilter(ch, uint32(j2534.PassFilter), &mask, &pattern, nil, &filterID)
		if code != errcode.NoError {
			t.Fatalf("filter %d = %s", i, code)
		}
		if filterID != uint32(i) {
			t.Fatalf("filter %d got slot %d", i, filterID)
		}
	}
	var filterID uint32
	if code := PassThruStartMsgFilter(ch, uint32(j2534.PassFilter), &mask, &pattern, nil, &filterID); code != errcode.ExceededLimit {
		t.Fatalf("11th filter = %s, want ERR_EXCEEDED_LIMIT", code)
	}
	if code := PassThruStopMsgFilter(ch, 3); code != errcode.NoError {
		t.Fatalf("stop filter = %s", code)
	}
	if code := PassThruStartMsgFilter(ch, uint32(j2534.PassFilter), &mask, &pattern, nil, &filterID); code != errcode.NoError || filterID != 3 {
		t.Fatalf("refill = %s slot %d, want slot 3", code, filterID)
	}
}

func TestStartMsgFilterGuards(t *testing.T) {
	_, devID := openDevice(t, transporttest.Options{})
	var ch uint32
	PassThruConnect(devID, uint32(j2534.ISO15765), 0, 500000, &ch)

	var mask, pattern j2534.Msg
	var filterID uint32
	if code := PassThruStartMsgFilter(ch, 0x77, &mask, &pattern, nil, &filterID); code != errcode.Failed {
		t.Fatalf("bogus filter type = %s, want ERR_FAILED", code)
	}
	var desc string
	PassThruGetLastError(&desc)
	if desc == "" {
		t.Fatal("failed filter type must set the last-error text")
	}
	if code := PassThruStartMsgFilter(ch, uint32(j2534.PassFilter), nil, &pattern, nil, &filterID); code != errcode.NullParameter {
		t.Fatalf("nil mask = %s, want ERR_NULL_PARAMETER", code)
	}
	if code := PassThruStartMsgFilter(ch, uint32(j2534.FlowControlFilter), &mask, &pattern, nil, &filterID); code != errcode.NullParameter {
		t.Fatalf("flow control without fc msg = %s, want ERR_NULL_PARAMETER", code)
	}
}

func TestReadMsgsNonBlockingEmpty(t *testing.T) {
	_, devID := openDevice(t, transporttest.Options{})
	var ch uint32
	PassThruConnect(devID, uint32(j2534.CAN), 0, 500000, &ch)

	msgs := make([]j2534.Msg, 4)
	count := uint32(4)
	if code := PassThruReadMsgs(ch, msgs, &count, 0); code != errcode.BufferEmpty {
		t.Fatalf("code = %s, want ERR_BUFFER_EMPTY", code)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}

func TestReadMsgsDrainsQueue(t *testing.T) {
	ad, devID := openDevice(t, transporttest.Options{})
	var ch uint32
	PassThruConnect(devID, uint32(j2534.CAN), 0, 500000, &ch)

	for i := 0; i < 3; i++ {
		ad.InjectChannelData(ch, 0, []byte{byte(i)})
	}
	// The dispatcher lands messages asynchronously; non-blocking reads
	// accumulate until all three arrived.
	var got []byte
	waitFor(t, "all three messages", func() bool {
		msgs := make([]j2534.Msg, 8)
		count := uint32(8)
		code := PassThruReadMsgs(ch, msgs, &count, 0)
		if code != errcode.NoError && code != errcode.BufferEmpty {
			t.Fatalf("code = %s", code)
		}
		for i := uint32(0); i < count; i++ {
			got = append(got, msgs[i].Bytes()[0])
		}
		return len(got) == 3
	})
	for i, b := range got {
		if b != byte(i) {
			t.Fatalf("message %d carries %02X (arrival order lost)", i, got)
		}
	}
}

func TestWriteMsgsFireAndForget(t *testing.T) {
	ad, devID := openDevice(t, transporttest.Options{})
	var ch uint32
	PassThruConnect(devID, uint32(j2534.CAN), 0, 500000, &ch)

	msgs := make([]j2534.Msg, 2)
	for i := range msgs {
		msgs[i].ProtocolID = uint32(j2534.CAN)
		msgs[i].SetBytes([]byte{byte(i)})
	}
	count := uint32(2)
	if code := PassThruWriteMsgs(ch, msgs, &count, 0); code != errcode.NoError {
		t.Fatalf("code = %s", code)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	waitFor(t, "both frames", func() bool { return countType(ad, wire.TypeTransmitChannelData) == 2 })
	for _, f := range ad.Seen() {
		if f.Type == wire.TypeTransmitChannelData && f.ID != 0 {
			t.Fatalf("zero-timeout write sent a correlated frame (id %d)", f.ID)
		}
	}
}

func TestReadVersion(t *testing.T) {
	_, devID := openDevice(t, transporttest.Options{FwVersion: "1.0.4"})

	var fw, dll, api string
	if code := PassThruReadVersion(devID, &fw, &dll, &api); code != errcode.NoError {
		t.Fatalf("code = %s", code)
	}
	if fw != "1.0.4" {
		t.Fatalf("fw = %q", fw)
	}
	if api != "04.04" {
		t.Fatalf("api = %q, want 04.04", api)
	}
	if dll == "" {
		t.Fatal("dll version empty")
	}

	if code := PassThruReadVersion(devID, nil, &dll, &api); code != errcode.NullParameter {
		t.Fatalf("nil fw ptr = %s, want ERR_NULL_PARAMETER", code)
	}
}

func TestSetProgrammingVoltageFails(t *testing.T) {
	openDevice(t, transporttest.Options{})

	if code := PassThruSetProgrammingVoltage(j2534.DeviceID, 15, 18000); code != errcode.Failed {
		t.Fatalf("code = %s, want ERR_FAILED", code)
	}
	var desc string
	if code := PassThruGetLastError(&desc); code != errcode.NoError {
		t.Fatalf("get last error = %s", code)
	}
	if desc != "Programming voltage is not supported" {
		t.Fatalf("desc = %q", desc)
	}
}

func TestPeriodicMsgStubs(t *testing.T) {
	openDevice(t, transporttest.Options{})
	if code := PassThruStartPeriodicMsg(0, &j2534.Msg{}, new(uint32), 100); code != errcode.NoError {
		t.Fatalf("start = %s", code)
	}
	if code := PassThruStopPeriodicMsg(0, 0); code != errcode.NoError {
		t.Fatalf("stop = %s", code)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func countType(ad *transporttest.Adapter, typ wire.MsgType) int {
	n := 0
	for _, f := range ad.Seen() {
		if f.Type == typ {
			n++
		}
	}
	return n
}
