// Package logger is the driver's fire-and-forget text sink. Callers hand
// a line to a bounded queue and continue; one background goroutine drains
// the queue into a zap logger. Callers are never blocked: when the queue
// is full the line is dropped.
package logger

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const queueDepth = 1024

type entry struct {
	level   zapcore.Level
	adapter bool // passthrough line originating on the device
	msg     string
	flush   chan struct{} // non-nil for flush sentinels
}

var (
	mu      sync.Mutex
	base    *zap.Logger
	device  *zap.Logger
	queue   = make(chan entry, queueDepth)
	dropped atomic.Uint64
)

func init() {
	// Console sink until InitFile is called; tests stay on stdout.
	set(newConsole())
	go drain()
}

func newConsole() *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(os.Stdout), zapcore.DebugLevel)
	return zap.New(core)
}

func set(l *zap.Logger) {
	mu.Lock()
	base = l
	device = l.Named("adapter")
	mu.Unlock()
}

// Swap installs l as the sink and returns the previous logger. Used by
// tests to observe output; once called, InitFile leaves the sink alone.
func Swap(l *zap.Logger) *zap.Logger {
	swapped.Store(true)
	mu.Lock()
	old := base
	mu.Unlock()
	set(l)
	return old
}

var (
	swapped  atomic.Bool
	fileOnce sync.Once
)

// InitFile routes the sink to the fixed per-OS log file, appending.
// Idempotent; failure to open the file keeps the console sink and is
// reported there.
func InitFile() {
	if swapped.Load() {
		return
	}
	fileOnce.Do(initFile)
}

func initFile() {
	path := logPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		Warn("log directory create failed: " + err.Error())
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		Warn("log file open failed: " + err.Error())
		return
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(zapcore.AddSync(f)), zapcore.DebugLevel)
	set(zap.New(core))
}

func drain() {
	for e := range queue {
		if e.flush != nil {
			mu.Lock()
			l := base
			mu.Unlock()
			_ = l.Sync()
			close(e.flush)
			continue
		}
		mu.Lock()
		l := base
		if e.adapter {
			l = device
		}
		mu.Unlock()
		if n := dropped.Swap(0); n > 0 {
			l.Warn("log lines dropped under load", zap.Uint64("count", n))
		}
		switch e.level {
		case zapcore.DebugLevel:
			l.Debug(e.msg)
		case zapcore.InfoLevel:
			l.Info(e.msg)
		case zapcore.WarnLevel:
			l.Warn(e.msg)
		default:
			l.Error(e.msg)
		}
	}
}

func enqueue(e entry) {
	select {
	case queue <- e:
	default:
		dropped.Add(1)
	}
}

func Debug(msg string) { enqueue(entry{level: zapcore.DebugLevel, msg: msg}) }
func Info(msg string)  { enqueue(entry{level: zapcore.InfoLevel, msg: msg}) }
func Warn(msg string)  { enqueue(entry{level: zapcore.WarnLevel, msg: msg}) }
func Error(msg string) { enqueue(entry{level: zapcore.ErrorLevel, msg: msg}) }

// Adapter records a passthrough line received from the device.
func Adapter(msg string) {
	enqueue(entry{level: zapcore.InfoLevel, adapter: true, msg: msg})
}

// Flush blocks until every line queued before the call has been written.
func Flush() {
	done := make(chan struct{})
	queue <- entry{flush: done}
	<-done
}
