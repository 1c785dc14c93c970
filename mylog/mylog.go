// Package mylog is a small levelled logger.
//
// Messages at ERROR and FATAL go to the console logger. When a file logger
// is given, it receives every message up to the configured level.
package mylog

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger is what the other packages need to log
type Logger interface {
	Printf(string, ...interface{})
}

type Level int

const (
	LevelFatal Level = iota - 2
	LevelError
	LevelInfo
	LevelTrace
	LevelDebug
)

var levelStrings = map[string]Level{
	"FATAL": LevelFatal,
	"ERROR": LevelError,
	"INFO":  LevelInfo,
	"TRACE": LevelTrace,
	"DEBUG": LevelDebug,
}

var prefixes = map[Level]string{
	LevelFatal: "[FATAL] ",
	LevelError: "[ERROR] ",
	LevelInfo:  "[INFO ] ",
	LevelTrace: "[TRACE] ",
	LevelDebug: "[DEBUG] ",
}

func (l Level) String() string {
	return strings.TrimSpace(strings.Trim(prefixes[l], "[] "))
}

// ParseLevel returns the level named by s, case insensitive
func ParseLevel(s string) (Level, error) {
	level, ok := levelStrings[strings.ToUpper(s)]
	if !ok {
		return 0, fmt.Errorf("invalid log level '%s'", s)
	}
	return level, nil
}

var (
	osExit = os.Exit
	exit   = osExit
)

type MyLog struct {
	logLevel                  Level
	consoleLogger, fileLogger Logger
}

// NewLog return a MyLog structure
func NewLog(lvl string, consoleLogger, fileLogger Logger) (*MyLog, error) {
	level, err := ParseLevel(lvl)
	if err != nil {
		return nil, err
	}
	return &MyLog{
		logLevel:      level,
		consoleLogger: consoleLogger,
		fileLogger:    fileLogger,
	}, nil
}

// Fatal prepare the output of FATAL message
func (l *MyLog) Fatal() logcontext {
	return logcontext{l, LevelFatal}
}

// Error prepare the output of ERROR message
func (l *MyLog) Error() logcontext {
	return logcontext{l, LevelError}
}

// Info prepare the output of INFO message
func (l *MyLog) Info() logcontext {
	return logcontext{l, LevelInfo}
}

// Trace prepare the output of TRACE message
func (l *MyLog) Trace() logcontext {
	return logcontext{l, LevelTrace}
}

// Debug prepare the output of DEBUG message
func (l *MyLog) Debug() logcontext {
	return logcontext{l, LevelDebug}
}

// IsDebug return true if log level is DEBUG
func (l *MyLog) IsDebug() bool {
	if l == nil {
		return true
	}
	return l.logLevel >= LevelDebug
}

// logcontext get the level of current message
type logcontext struct {
	mylog *MyLog
	lvl   Level
}

// Printf print message on configured writers.
// Without file logger, the console gets every message up to the configured level.
// With a file logger, only errors are written on the console.
// A FATAL message ends the program.
// If the logger isn't initialized, it logs to the standard logger.
func (c logcontext) Printf(fmt string, args ...interface{}) {
	if c.mylog == nil {
		log.Printf(prefixes[c.lvl]+fmt, args...)
		if c.lvl == LevelFatal {
			exit(1)
		}
		return
	}
	if c.mylog.consoleLogger != nil {
		if c.lvl <= LevelError || (c.mylog.fileLogger == nil && c.lvl <= c.mylog.logLevel) {
			c.mylog.consoleLogger.Printf(prefixes[c.lvl]+fmt, args...)
		}
	}
	if c.mylog.fileLogger != nil && c.lvl <= c.mylog.logLevel {
		c.mylog.fileLogger.Printf(prefixes[c.lvl]+fmt, args...)
	}
	if c.lvl == LevelFatal {
		exit(1)
	}
}
