package util

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level     = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	useColors = true
	logger    *zap.Logger
	sugar     *zap.SugaredLogger
)

func init() {
	rebuild()
}

// rebuild recreates the console logger after an encoder setting changes.
// The level is atomic and shared, so SetVerbose/SetQuiet don't need it.
func rebuild() {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	enc.CallerKey = ""
	enc.StacktraceKey = ""
	if useColors {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
	logger = zap.New(core)
	sugar = logger.Sugar()
}

// Logger returns the structured logger shared by the helpers below
func Logger() *zap.Logger {
	return logger
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		level.SetLevel(zapcore.DebugLevel)
	}
}

// SetQuiet enables quiet mode (errors only)
func SetQuiet(quiet bool) {
	if quiet {
		level.SetLevel(zapcore.ErrorLevel)
	}
}

// IsQuiet reports whether only errors are being logged
func IsQuiet() bool {
	return level.Level() >= zapcore.ErrorLevel
}

// SetColors enables or disables colored level names
func SetColors(enabled bool) {
	useColors = enabled
	rebuild()
}

// DebugLog logs debug messages
func DebugLog(format string, args ...interface{}) {
	sugar.Debugf(format, args...)
}

// InfoLog logs informational messages
func InfoLog(format string, args ...interface{}) {
	sugar.Infof(format, args...)
}

// WarnLog logs warning messages
func WarnLog(format string, args ...interface{}) {
	sugar.Warnf(format, args...)
}

// ErrorLog logs error messages
func ErrorLog(format string, args ...interface{}) {
	sugar.Errorf(format, args...)
}

// SuccessLog logs success messages (always shown unless quiet)
func SuccessLog(format string, args ...interface{}) {
	sugar.Info("OK " + fmt.Sprintf(format, args...))
}

// Sync flushes buffered log entries
func Sync() {
	_ = logger.Sync()
}
