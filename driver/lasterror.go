package driver

import (
	"sync"

	"passthru-go/errcode"
)

// lastError is the process-wide error description: any component's
// failure sets it, the application reads it through PassThruGetLastError.
var lastError struct {
	mu sync.Mutex
	s  string
}

func setLastError(s string) {
	lastError.mu.Lock()
	lastError.s = s
	lastError.mu.Unlock()
}

func lastErrorText() string {
	lastError.mu.Lock()
	defer lastError.mu.Unlock()
	return lastError.s
}

// status maps a component error to the ABI status code, recording the
// human-readable description whenever one is attached or the failure is
// otherwise opaque.
func status(err error) errcode.Code {
	if err == nil {
		return errcode.NoError
	}
	code := errcode.Of(err)
	if text := errcode.Text(err); text != "" {
		setLastError(text)
	} else if code == errcode.Failed {
		setLastError(err.Error())
	}
	return code
}
