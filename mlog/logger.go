package mlog

import "fmt"

// Logger is the backend behind the package level logging functions.
type Logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
	Fatalf(format string, v ...any)
}

var logger Logger

func SetLogger(l Logger) {
	logger = l
}

// UseStdLogger installs a stdout backend at the given level.
func UseStdLogger(level Level) {
	SetLogger(newStdoutLogger(level))
}

type Level uint32

const (
	FatalLevel Level = iota
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
)

// The package functions below Fatal are no-ops until a backend is
// installed, so library code can log unconditionally. Fatalf is the
// exception: a fatal condition must stop the caller whether or not a
// backend exists.

func Debugf(format string, v ...any) {
	if logger == nil {
		return
	}
	logger.Debugf(format, v...)
}

func Infof(format string, v ...any) {
	if logger == nil {
		return
	}
	logger.Infof(format, v...)
}

func Warnf(format string, v ...any) {
	if logger == nil {
		return
	}
	logger.Warnf(format, v...)
}

func Errorf(format string, v ...any) {
	if logger == nil {
		return
	}
	logger.Errorf(format, v...)
}

// Fatalf never returns. Without a backend it panics with the formatted
// message instead of silently dropping it.
func Fatalf(format string, v ...any) {
	if logger == nil {
		panic(fmt.Sprintf(format, v...))
	}
	logger.Fatalf(format, v...)
}
