//go:build a0

package config

// A0 build: ESP32-based adapter behind a CP2102 UART bridge.
const (
	AdapterName = "macchina_a0"
	registryKey = "Macchina-Passthru-A0"

	usbVID = "10C4"
	usbPID = "EA60"

	// True serial through the bridge; 2 M/s without flow control.
	PortBaud = 2000000
)
