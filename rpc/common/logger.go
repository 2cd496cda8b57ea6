package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Logger (implements dragonboat's logger.ILogger)
// --------------------------------------------------------------------------

// logOutput receives every log line. Logs go to stderr so that command
// output on stdout (query results, dumps to -) stays machine readable.
var logOutput io.Writer = os.Stderr

// dStatsLogger writes "LEVEL | package | message" lines
type dStatsLogger struct {
	name   string
	level  atomic.Int32
	logger *log.Logger
}

func (l *dStatsLogger) SetLevel(level logger.LogLevel) {
	l.level.Store(int32(level))
}

func (l *dStatsLogger) Debugf(format string, args ...interface{}) {
	l.logf(logger.DEBUG, "DEBUG", format, args...)
}

func (l *dStatsLogger) Infof(format string, args ...interface{}) {
	l.logf(logger.INFO, "INFO", format, args...)
}

func (l *dStatsLogger) Warningf(format string, args ...interface{}) {
	l.logf(logger.WARNING, "WARN", format, args...)
}

func (l *dStatsLogger) Errorf(format string, args ...interface{}) {
	l.logf(logger.ERROR, "ERROR", format, args...)
}

func (l *dStatsLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logf(logger.CRITICAL, "PANIC", "%s", msg)
	panic(msg)
}

func (l *dStatsLogger) logf(level logger.LogLevel, tag, format string, args ...interface{}) {
	if logger.LogLevel(l.level.Load()) < level {
		return
	}
	l.logger.Printf("%-5s | %-15s | %s", tag, l.name, fmt.Sprintf(format, args...))
}

// CreateLogger is the logger.Factory installed by InitLoggers.
func CreateLogger(pkgName string) logger.ILogger {
	l := &dStatsLogger{
		name:   pkgName,
		logger: log.New(logOutput, "", log.Ldate|log.Ltime),
	}
	l.level.Store(int32(logger.INFO))
	return l
}

// --------------------------------------------------------------------------
// Levels
// --------------------------------------------------------------------------

var logLevels = map[string]logger.LogLevel{
	"debug":   logger.DEBUG,
	"info":    logger.INFO,
	"warn":    logger.WARNING,
	"warning": logger.WARNING,
	"error":   logger.ERROR,
}

// ParseLogLevel converts a level name (debug, info, warn, error) to logger.LogLevel.
func ParseLogLevel(level string) (logger.LogLevel, error) {
	lvl, ok := logLevels[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
	return lvl, nil
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// dragonboatLoggers are the package loggers created inside dragonboat
var dragonboatLoggers = []string{"raft", "raftdb", "rsm", "transport", "dragonboat", "grpc", "util", "logdb"}

// appLoggers are the package loggers of dStats
var appLoggers = []string{"store", "transport/rpc", "rpc", "runtime", "memstore", "processor", "defaults", "corrections", "dump", "cmd"}

// InitLoggers installs the dStats logger factory and sets all known loggers to level.
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	logger.SetLoggerFactory(CreateLogger)

	for _, name := range dragonboatLoggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
	for _, name := range appLoggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
