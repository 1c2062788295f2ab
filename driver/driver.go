// Package driver is the host-facing surface of the PassThru driver: the
// entry points a diagnostics application loads, expressed with checked
// Go parameters in place of raw C pointers. Every entry point validates
// its pointers, converts to internal records, delegates, and maps the
// result back to a J2534 status code.
package driver

import (
	"fmt"
	"sync"
	"time"

	"passthru-go/channels"
	"passthru-go/errcode"
	"passthru-go/j2534"
	"passthru-go/logger"
	"passthru-go/transport"
	"passthru-go/wire"
	"passthru-go/x/mathx"
)

const (
	// apiVersion is the J2534 revision this driver implements.
	apiVersion = "04.04"
	// dllVersion is this driver's own version.
	dllVersion = "1.2.0"

	fwVersionTimeout = 250 * time.Millisecond
)

// dev is the process-wide device state. The ABI is stateless at the call
// boundary, so the transport and channel manager live here behind a
// read/write lock; open and close take the writer.
var dev struct {
	mu  sync.RWMutex
	tr  *transport.Transport
	mgr *channels.Manager
}

// PassThruOpen establishes the transport. The name argument is unused by
// this adapter. On success the constant device id 0x1234 is written.
func PassThruOpen(_ string, deviceID *uint32) errcode.Code {
	logger.InitFile()
	logger.Info("PassThruOpen called")
	if deviceID == nil {
		return errcode.NullParameter
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.tr != nil {
		return errcode.DeviceInUse
	}
	tr, err := transport.Connect()
	if err != nil {
		logger.Error("cannot open com port. Error: " + err.Error())
		setLastError("serial port open failed with error " + err.Error())
		return errcode.DeviceNotConnected
	}
	mgr := channels.NewManager(tr)
	tr.SetSink(mgr)
	dev.tr, dev.mgr = tr, mgr
	*deviceID = j2534.DeviceID
	return errcode.NoError
}

// PassThruClose tears down the transport and every channel. Closing an
// already-closed device reports success.
func PassThruClose(deviceID uint32) errcode.Code {
	logger.Info(fmt.Sprintf("PassThruClose called. Device ID: %d", deviceID))
	if deviceID != j2534.DeviceID {
		return errcode.InvalidDeviceID
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.tr == nil {
		return errcode.NoError
	}
	dev.tr.Stop()
	dev.mgr.ForceDestroyAll()
	dev.tr, dev.mgr = nil, nil
	return errcode.NoError
}

// PassThruConnect opens a logical channel; the returned channel id is
// the protocol's family index.
func PassThruConnect(deviceID, protocolID, flags, baudRate uint32, channelID *uint32) errcode.Code {
	if deviceID != j2534.DeviceID {
		setLastError(fmt.Sprintf("not this driver's device ID. Expected %d, got %d", j2534.DeviceID, deviceID))
		return errcode.InvalidDeviceID
	}
	if channelID == nil {
		logger.Error("channel destination pointer is nil!?")
		return errcode.NullParameter
	}
	protocol, ok := j2534.ProtocolFromRaw(protocolID)
	if !ok {
		logger.Error(fmt.Sprintf("%d is not recognised as a valid protocol ID!", protocolID))
		return errcode.InvalidProtocolID
	}
	mgr, code := manager()
	if code != errcode.NoError {
		return code
	}
	id, err := mgr.Create(protocol, baudRate, flags)
	if err != nil {
		return status(err)
	}
	*channelID = id
	return errcode.NoError
}

// PassThruDisconnect destroys a logical channel.
func PassThruDisconnect(channelID uint32) errcode.Code {
	mgr, code := manager()
	if code != errcode.NoError {
		return code
	}
	return status(mgr.Destroy(channelID))
}

// PassThruReadMsgs drains up to *numMsgs received messages into msgs and
// overwrites *numMsgs with the count delivered. A zero timeout is
// non-blocking: the call reports BUFFER_EMPTY once the queue runs dry.
func PassThruReadMsgs(channelID uint32, msgs []j2534.Msg, numMsgs *uint32, timeoutMS uint32) errcode.Code {
	if msgs == nil || numMsgs == nil {
		return errcode.NullParameter
	}
	mgr, code := manager()
	if code != errcode.NoError {
		return code
	}
	requested := mathx.Min(int(*numMsgs), len(msgs))
	*numMsgs = 0
	deadline := time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	for i := 0; i < requested; i++ {
		if timeoutMS != 0 && time.Now().After(deadline) {
			return errcode.Timeout
		}
		msg, err := mgr.ReadOne(channelID)
		if err != nil {
			return status(err)
		}
		if msg == nil {
			if timeoutMS == 0 {
				return errcode.BufferEmpty
			}
			continue
		}
		msgs[*numMsgs] = *msg
		*numMsgs++
	}
	return errcode.NoError
}

// PassThruWriteMsgs transmits up to *numMsgs messages and overwrites
// *numMsgs with the count completed. A zero timeout switches to
// fire-and-forget transmission with no response wait.
func PassThruWriteMsgs(channelID uint32, msgs []j2534.Msg, numMsgs *uint32, timeoutMS uint32) errcode.Code {
	if msgs == nil || numMsgs == nil {
		return errcode.NullParameter
	}
	mgr, code := manager()
	if code != errcode.NoError {
		return code
	}
	requested := mathx.Min(int(*numMsgs), len(msgs))
	*numMsgs = 0
	deadline := time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	for i := 0; i < requested; i++ {
		if timeoutMS != 0 && time.Now().After(deadline) {
			return errcode.Timeout
		}
		if err := mgr.Transmit(channelID, &msgs[i], timeoutMS != 0); err != nil {
			return status(err)
		}
		*numMsgs++
	}
	return errcode.NoError
}

// PassThruStartMsgFilter installs a mask/pattern filter (plus flow
// control for ISO15765) and writes the filter id to msgID.
func PassThruStartMsgFilter(channelID, filterType uint32, mask, pattern, flowControl *j2534.Msg, msgID *uint32) errcode.Code {
	kind, ok := j2534.FilterKindFromRaw(filterType)
	if !ok {
		setLastError(fmt.Sprintf("0x%02X is not a valid filter type", filterType))
		return errcode.Failed
	}
	if mask == nil || pattern == nil {
		logger.Error("mask or pattern is nil!?")
		return errcode.NullParameter
	}
	if kind == j2534.FlowControlFilter && flowControl == nil {
		return errcode.NullParameter
	}
	if msgID == nil {
		return errcode.NullParameter
	}
	var fc []byte
	if flowControl != nil {
		fc = flowControl.Bytes()
	}
	mgr, code := manager()
	if code != errcode.NoError {
		return code
	}
	id, err := mgr.AddFilter(channelID, kind, mask.Bytes(), pattern.Bytes(), fc)
	if err != nil {
		return status(err)
	}
	*msgID = id
	return errcode.NoError
}

// PassThruStopMsgFilter removes a previously installed filter.
func PassThruStopMsgFilter(channelID, msgID uint32) errcode.Code {
	mgr, code := manager()
	if code != errcode.NoError {
		return code
	}
	return status(mgr.RemoveFilter(channelID, msgID))
}

// PassThruReadVersion queries the adapter firmware version and fills the
// DLL and API strings from driver constants.
func PassThruReadVersion(_ uint32, fwVersion, dllVer, apiVer *string) errcode.Code {
	if fwVersion == nil || dllVer == nil || apiVer == nil {
		return errcode.NullParameter
	}
	dev.mu.RLock()
	tr := dev.tr
	dev.mu.RUnlock()
	if tr == nil {
		return errcode.DeviceNotConnected
	}
	fw, err := tr.Call(wire.New(wire.TypeGetFwVersion, nil), fwVersionTimeout)
	if err != nil {
		logger.Warn("adapter failed to respond to FW version request: " + err.Error())
		return status(err)
	}
	*fwVersion = string(fw)
	*dllVer = dllVersion
	*apiVer = apiVersion
	return errcode.NoError
}

// PassThruGetLastError copies out the most recent failure description.
func PassThruGetLastError(desc *string) errcode.Code {
	if desc == nil {
		return errcode.NullParameter
	}
	*desc = lastErrorText()
	return errcode.NoError
}

// PassThruStartPeriodicMsg is accepted and ignored: periodic scheduling
// lives on the adapter and this firmware has none.
func PassThruStartPeriodicMsg(_ uint32, _ *j2534.Msg, _ *uint32, _ uint32) errcode.Code {
	return errcode.NoError
}

// PassThruStopPeriodicMsg is accepted and ignored.
func PassThruStopPeriodicMsg(_, _ uint32) errcode.Code {
	return errcode.NoError
}

// PassThruSetProgrammingVoltage always fails: the hardware has no
// programmable voltage pins.
func PassThruSetProgrammingVoltage(_, _, _ uint32) errcode.Code {
	logger.Error("programming voltage setting not supported")
	setLastError("Programming voltage is not supported")
	return errcode.Failed
}

// manager snapshots the channel manager, reporting the device absent
// when the transport is down.
func manager() (*channels.Manager, errcode.Code) {
	dev.mu.RLock()
	defer dev.mu.RUnlock()
	if dev.mgr == nil {
		return nil, errcode.DeviceNotConnected
	}
	return dev.mgr, errcode.NoError
}
