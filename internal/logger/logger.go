// Package logger is the process-wide logging facade. Backends are registered
// once with Init and every call fans out to all of them.
package logger

import "sync/atomic"

// Backend is implemented by every log sink.
type Backend interface {
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

type registry struct {
	backends []Backend
}

var current atomic.Pointer[registry]

// Init replaces the registered backends. Calling it with no arguments silences logging.
func Init(backends ...Backend) {
	current.Store(&registry{backends: backends})
}

func each(fn func(Backend)) {
	r := current.Load()
	if r == nil {
		return
	}
	for _, b := range r.backends {
		fn(b)
	}
}

func Debug(message string, keyvals ...any) {
	each(func(b Backend) { b.Debug(message, keyvals...) })
}

func Info(message string, keyvals ...any) {
	each(func(b Backend) { b.Info(message, keyvals...) })
}

func Warn(message string, keyvals ...any) {
	each(func(b Backend) { b.Warn(message, keyvals...) })
}

func Error(message string, keyvals ...any) {
	each(func(b Backend) { b.Error(message, keyvals...) })
}

// Fatal logs to every backend and exits through the first backend that terminates.
func Fatal(message string, keyvals ...any) {
	each(func(b Backend) { b.Fatal(message, keyvals...) })
}
