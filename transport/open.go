package transport

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"passthru-go/config"
	"passthru-go/logger"
	"passthru-go/wire"
)

// portReadTimeout keeps the reader goroutine responsive to the stop flag.
const portReadTimeout = 10 * time.Millisecond

// PortOpener resolves and opens the adapter's serial device. A variable
// so tests can substitute an in-memory adapter.
var PortOpener = func() (io.ReadWriteCloser, wire.Codec, error) {
	path, err := config.PortPath()
	if err != nil {
		return nil, nil, err
	}
	port, err := serial.Open(path, &serial.Mode{BaudRate: config.PortBaud})
	if err != nil {
		return nil, nil, fmt.Errorf("transport: open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(portReadTimeout); err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("transport: set read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		logger.Warn("could not clear serial input buffer: " + err.Error())
	}
	if err := port.ResetOutputBuffer(); err != nil {
		logger.Warn("could not clear serial output buffer: " + err.Error())
	}
	logger.Info("serial port " + path + " open")
	return port, wire.Default(), nil
}
