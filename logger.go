package modbus

import (
	"fmt"
	"log"
	"os"
)

// LeveledLogger is the interface used throughout the client and server for
// diagnostic output. It can be swapped out via the Logger configuration
// field on either Client or Server.
type LeveledLogger interface {
	Info(msg string)
	Infof(format string, args ...interface{})
	Warning(msg string)
	Warningf(format string, args ...interface{})
	Error(msg string)
	Errorf(format string, args ...interface{})
	Fatal(msg string)
	Fatalf(format string, args ...interface{})
}

var _ LeveledLogger = (*logger)(nil)

// logger is a minimal leveled logger writing to stdout/stderr by default,
// or through a caller-supplied *log.Logger when one is configured.
type logger struct {
	prefix string
	custom *log.Logger
}

func newLogger(prefix string, custom *log.Logger) *logger {
	return &logger{
		prefix: prefix,
		custom: custom,
	}
}

func (l *logger) Info(msg string) {
	l.write(false, "info", msg)
}

func (l *logger) Infof(format string, args ...interface{}) {
	l.write(false, "info", fmt.Sprintf(format, args...))
}

func (l *logger) Warning(msg string) {
	l.write(false, "warn", msg)
}

func (l *logger) Warningf(format string, args ...interface{}) {
	l.write(false, "warn", fmt.Sprintf(format, args...))
}

func (l *logger) Error(msg string) {
	l.write(true, "error", msg)
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.write(true, "error", fmt.Sprintf(format, args...))
}

func (l *logger) Fatal(msg string) {
	l.Error(msg)
	os.Exit(1)
}

func (l *logger) Fatalf(format string, args ...interface{}) {
	l.Errorf(format, args...)
	os.Exit(1)
}

func (l *logger) write(stderr bool, level string, msg string) {
	line := fmt.Sprintf("%s [%s]: %s", l.prefix, level, msg)

	if l.custom != nil {
		l.custom.Println(line)
		return
	}

	if stderr {
		os.Stderr.WriteString(line + "\n")
	} else {
		os.Stdout.WriteString(line + "\n")
	}
}
