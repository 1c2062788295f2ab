//go:build windows

package config

import (
	"golang.org/x/sys/windows/registry"

	"passthru-go/logger"
)

// Lookup path: HKLM\SOFTWARE\WOW6432Node\PassThruSupport.04.04\<adapter>,
// value COM-PORT.
func lookup() (string, bool) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE,
		`SOFTWARE\WOW6432Node\PassThruSupport.04.04\`+registryKey, registry.QUERY_VALUE)
	if err != nil {
		return "", false
	}
	defer k.Close()
	logger.Info("found adapter registry key")
	s, _, err := k.GetStringValue(portKey)
	if err != nil || s == "" {
		return "", false
	}
	return s, true
}
