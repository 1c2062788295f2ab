//go:build !windows

package config

import (
	"os"
	"path/filepath"

	"github.com/andreyvit/tinyjson"

	"passthru-go/logger"
)

// Lookup path: ~/.passthru/<adapter>.json, field COM-PORT.
func lookup() (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	raw, err := os.ReadFile(filepath.Join(home, ".passthru", AdapterName+".json"))
	if err != nil {
		return "", false
	}
	port, ok := portFromJSON(raw)
	if !ok {
		logger.Warn("adapter config file has no usable " + portKey + " entry")
	}
	return port, ok
}

func portFromJSON(raw []byte) (port string, ok bool) {
	defer func() {
		if recover() != nil { // tinyjson panics on malformed input
			port, ok = "", false
		}
	}()
	r := tinyjson.Raw(raw)
	val := r.Value()
	r.EnsureEOF()

	m, isMap := val.(map[string]any)
	if !isMap {
		return "", false
	}
	s, isStr := m[portKey].(string)
	return s, isStr && s != ""
}
