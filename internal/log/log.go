package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base   *zap.Logger
	logger *zap.SugaredLogger
)

func init() {
	setLogger(zap.New(newCore(zapcore.InfoLevel, os.Stderr, nil)))
}

// Init sets up logging with the given level and optional file writer.
func Init(level string, fileWriter io.Writer) {
	setLogger(zap.New(newCore(parseLevel(level), os.Stderr, fileWriter)))
}

// InitWriter routes all log output to w only. Tests use it to capture lines.
func InitWriter(level string, w io.Writer) {
	setLogger(zap.New(newCore(parseLevel(level), w, nil)))
}

// Logger returns the underlying structured logger for components that take one.
func Logger() *zap.Logger { return base }

// Sync flushes buffered entries.
func Sync() { _ = base.Sync() }

func Debug(msg string, args ...any) { logger.Debugw(msg, args...) }
func Info(msg string, args ...any)  { logger.Infow(msg, args...) }
func Warn(msg string, args ...any)  { logger.Warnw(msg, args...) }
func Error(msg string, args ...any) { logger.Errorw(msg, args...) }

func setLogger(l *zap.Logger) {
	base = l
	logger = l.Sugar()
}

func parseLevel(level string) zapcore.Level {
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

func newCore(lvl zapcore.Level, w io.Writer, fileWriter io.Writer) zapcore.Core {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	ws := zapcore.AddSync(w)
	if fileWriter != nil {
		ws = zapcore.NewMultiWriteSyncer(ws, zapcore.AddSync(fileWriter))
	}
	return zapcore.NewCore(enc, zapcore.Lock(ws), zap.NewAtomicLevelAt(lvl))
}
