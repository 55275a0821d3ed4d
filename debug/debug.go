// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go - structured logging for the supervisory side
//
// Purpose:
//   - Builds the zap logger shared by the supervisor, launcher and session.
//   - Keeps the cold-path DropError/DropMessage helpers for one-line
//     diagnostics (memory lock failures, stabilization results, joins).
//
// ⚠️ Never call from the RT thread. The RT loop emits protocol Log records
//    and the supervisor relays them here.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a JSON logger writing to stdout at the given level
// ("debug", "info", "warn", "error"; anything else means info). The
// returned AtomicLevel changes the threshold of the live logger.
func NewLogger(level string) (*zap.Logger, zap.AtomicLevel) {
	lvl := zap.NewAtomicLevelAt(ParseLevel(level))
	return newLogger(lvl, zapcore.AddSync(os.Stdout)), lvl
}

func newLogger(level zapcore.LevelEnabler, sink zapcore.WriteSyncer) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		sink,
		level,
	)

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// ParseLevel maps a config string to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// DropError logs a cold-path failure. A nil err logs just the prefix as a
// warning (tagged events such as "memory lock skipped").
func DropError(log *zap.Logger, prefix string, err error) {
	if log == nil {
		return
	}
	if err != nil {
		log.Error(prefix, zap.Error(err))
		return
	}
	log.Warn(prefix)
}

// DropMessage logs an infrequent state change.
func DropMessage(log *zap.Logger, prefix, message string) {
	if log == nil {
		return
	}
	log.Info(message, zap.String("tag", prefix))
}
