// Package config resolves the serial device path for the attached
// adapter. The path is read from a per-user JSON file on Unix or the
// PassThruSupport registry hive on Windows; when neither names a port,
// the USB bus is scanned for the adapter's VID/PID.
package config

import (
	"errors"

	"go.bug.st/serial/enumerator"

	"passthru-go/logger"
)

// ErrNoPort means no COM-PORT entry exists and auto-detection found no
// matching USB device.
var ErrNoPort = errors.New("config: cannot find COM-PORT attribute")

const portKey = "COM-PORT"

// PortPath returns the serial device path to open.
func PortPath() (string, error) {
	if p, ok := lookup(); ok {
		logger.Info("com port is " + p)
		return p, nil
	}
	if p, ok := detectUSB(); ok {
		logger.Info("auto-detected adapter on " + p)
		return p, nil
	}
	return "", ErrNoPort
}

func detectUSB() (string, bool) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		logger.Warn("usb port scan failed: " + err.Error())
		return "", false
	}
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if p.VID == usbVID && p.PID == usbPID {
			return p.Name, true
		}
	}
	return "", false
}
