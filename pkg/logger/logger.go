// Package logger provides opinionated logging for the obrew client engine.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console zap logger writing to stderr. Debug enables the
// debug level, which includes per-frame decode noise from the stream decoder.
func New(debug bool) *zap.Logger {
	return NewWithWriters(debug, os.Stderr)
}

// NewWithWriters returns a console zap logger writing to the given writers.
func NewWithWriters(debug bool, writers ...io.Writer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	if len(writers) == 0 {
		writers = []io.Writer{os.Stderr}
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(writers))
	for _, writer := range writers {
		syncers = append(syncers, zapcore.AddSync(writer))
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(syncers...),
		level,
	)

	return zap.New(core)
}

// Nop returns a logger that discards everything. Library consumers that do
// not care about client engine logs can pass this instead of nil.
func Nop() *zap.Logger {
	return zap.NewNop()
}
