package driver

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"passthru-go/errcode"
	"passthru-go/j2534"
	"passthru-go/logger"
	"passthru-go/wire"
)

const vbattTimeout = 250 * time.Millisecond

// lastVBatt caches the most recent good reading; a short response under
// adapter load falls back to it instead of failing the call.
var lastVBatt atomic.Uint32

// PassThruIoctl dispatches an IOCTL against a channel (or the device, for
// the voltage reads). input and output mirror the C void pointers: each
// operation type-checks what it was given and rejects nil where the
// contract demands a value.
func PassThruIoctl(handleID, ioctlID uint32, input, output any) errcode.Code {
	id, ok := j2534.IoctlIDFromRaw(ioctlID)
	if !ok {
		logger.Error(fmt.Sprintf("IOCTL ID %08X is invalid", ioctlID))
		return errcode.InvalidIoctlID
	}

	switch id {
	case j2534.ReadVBatt:
		out, ok := output.(*uint32)
		if !ok || out == nil {
			logger.Error("cannot read battery voltage. Output ptr is nil")
			return errcode.NullParameter
		}
		return readVBatt(out)

	case j2534.ReadProgVoltage:
		out, ok := output.(*uint32)
		if !ok || out == nil {
			logger.Error("cannot read programming voltage. Output ptr is nil")
			return errcode.NullParameter
		}
		logger.Warn("read programming voltage unimplemented")
		return errcode.NoError

	case j2534.SetConfig:
		in, ok := input.(*j2534.SConfigList)
		if !ok || in == nil {
			logger.Error("cannot set config. Input ptr is nil")
			return errcode.NullParameter
		}
		return setConfig(handleID, in)

	case j2534.GetConfig:
		in, ok := input.(*j2534.SConfigList)
		if !ok || in == nil {
			logger.Error("cannot get config. Input ptr is nil")
			return errcode.NullParameter
		}
		return getConfig(handleID, in)

	case j2534.FiveBaudInit:
		if in, ok := input.(*j2534.SByteArray); !ok || in == nil {
			logger.Error("cannot run five baud init. Input ptr is nil")
			return errcode.NullParameter
		}
		if out, ok := output.(*j2534.SByteArray); !ok || out == nil {
			logger.Error("cannot run five baud init. Output ptr is nil")
			return errcode.NullParameter
		}
		logger.Warn("five baud init unimplemented")
		return errcode.NoError

	case j2534.FastInit:
		if in, ok := input.(*j2534.Msg); !ok || in == nil {
			logger.Error("cannot run fast init. Input ptr is nil")
			return errcode.NullParameter
		}
		if out, ok := output.(*j2534.Msg); !ok || out == nil {
			logger.Error("cannot run fast init. Output ptr is nil")
			return errcode.NullParameter
		}
		logger.Warn("fast init unimplemented")
		return errcode.NoError

	case j2534.ClearTxBuffer:
		mgr, code := manager()
		if code != errcode.NoError {
			return code
		}
		return status(mgr.ClearTx(handleID))

	case j2534.ClearRxBuffer:
		mgr, code := manager()
		if code != errcode.NoError {
			return code
		}
		return status(mgr.ClearRx(handleID))

	case j2534.ClearPeriodicMsgs:
		logger.Warn("clear periodic messages unimplemented")
		return errcode.NoError

	case j2534.ClearMsgFilters:
		logger.Warn("clear message filters unimplemented")
		return errcode.NoError

	case j2534.ClearFunctMsgLookupTable:
		logger.Warn("clear function message lookup table unimplemented")
		return errcode.NoError

	case j2534.AddToFunctMsgLookupTable:
		if in, ok := input.(*j2534.SByteArray); !ok || in == nil {
			logger.Error("cannot add to function message lookup table. Input ptr is nil")
			return errcode.NullParameter
		}
		logger.Warn("add to function message lookup table unimplemented")
		return errcode.NoError

	case j2534.DeleteFromFunctMsgLookupTable:
		if in, ok := input.(*j2534.SByteArray); !ok || in == nil {
			logger.Error("cannot delete from function message lookup table. Input ptr is nil")
			return errcode.NullParameter
		}
		logger.Warn("delete from function message lookup table unimplemented")
		return errcode.NoError
	}
	return errcode.InvalidIoctlID
}

// readVBatt asks the adapter for the battery rail in millivolts.
func readVBatt(out *uint32) errcode.Code {
	dev.mu.RLock()
	tr := dev.tr
	dev.mu.RUnlock()
	if tr == nil {
		return errcode.DeviceNotConnected
	}
	tail, err := tr.Call(wire.New(wire.TypeReadBatt, nil), vbattTimeout)
	if err != nil {
		logger.Error("error reading battery voltage: " + err.Error())
		return status(err)
	}
	if len(tail) < 4 {
		logger.Error("error reading battery voltage - response too short, returning last known")
		*out = lastVBatt.Load()
		return errcode.NoError
	}
	v := binary.LittleEndian.Uint32(tail)
	lastVBatt.Store(v)
	*out = v
	return errcode.NoError
}

func setConfig(channelID uint32, cfg *j2534.SConfigList) errcode.Code {
	mgr, code := manager()
	if code != errcode.NoError {
		return code
	}
	for _, p := range cfg.Params {
		if p.Parameter >= uint32(j2534.ReservedBase) {
			logger.Warn(fmt.Sprintf("setconfig param name is reserved / tool specific?. Param: %08X, value: %08X",
				p.Parameter, p.Value))
			continue
		}
		param, ok := j2534.ConfigParamFromRaw(p.Parameter)
		if !ok {
			return errcode.NotSupported
		}
		if err := mgr.IoctlSet(channelID, param, p.Value); err != nil {
			return status(err)
		}
	}
	return errcode.NoError
}

func getConfig(channelID uint32, cfg *j2534.SConfigList) errcode.Code {
	mgr, code := manager()
	if code != errcode.NoError {
		return code
	}
	for i := range cfg.Params {
		p := &cfg.Params[i]
		if p.Parameter >= uint32(j2534.ReservedBase) {
			logger.Warn(fmt.Sprintf("get config param name is reserved / tool specific?. Param: %08X, value: %08X",
				p.Parameter, p.Value))
			continue
		}
		param, ok := j2534.ConfigParamFromRaw(p.Parameter)
		if !ok {
			return errcode.NotSupported
		}
		v, err := mgr.IoctlGet(channelID, param)
		if err != nil {
			if status(err) != errcode.Failed {
				setLastError(err.Error())
			}
			return errcode.Failed
		}
		p.Value = v
	}
	return errcode.NoError
}
