package mlog

import (
	"fmt"
	"log"
	"os"
)

type stdoutLogger struct {
	level Level
}

func newStdoutLogger(level Level) *stdoutLogger {
	log.SetFlags(log.Ldate | log.Lmicroseconds)
	return &stdoutLogger{level: level}
}

func (l *stdoutLogger) logf(level Level, tag, format string, v ...any) {
	if l.level >= level {
		log.Println(tag + fmt.Sprintf(format, v...))
	}
}

func (l *stdoutLogger) Debugf(format string, v ...any) {
	l.logf(DebugLevel, "[debug] ", format, v...)
}

func (l *stdoutLogger) Infof(format string, v ...any) {
	l.logf(InfoLevel, "[info] ", format, v...)
}

func (l *stdoutLogger) Warnf(format string, v ...any) {
	l.logf(WarnLevel, "[warn] ", format, v...)
}

func (l *stdoutLogger) Errorf(format string, v ...any) {
	l.logf(ErrorLevel, "[error] ", format, v...)
}

func (l *stdoutLogger) Fatalf(format string, v ...any) {
	l.logf(FatalLevel, "[fatal] ", format, v...)
	os.Exit(1)
}
