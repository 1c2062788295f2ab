//go:build !a0

package config

// M2 build: SAM3X-based adapter on USB CDC.
const (
	AdapterName = "macchina_m2"
	registryKey = "Macchina-Passthru-M2"

	usbVID = "2341"
	usbPID = "003E"

	// USB CDC; the nominal rate is ignored by the hardware but the OS
	// still wants one.
	PortBaud = 500000
)
