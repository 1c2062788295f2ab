//go:build !windows

package logger

import (
	"os"
	"path/filepath"
)

func logPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "passthru_log.txt"
	}
	return filepath.Join(home, ".passthru", "passthru_log.txt")
}
