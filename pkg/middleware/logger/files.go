package logger

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	SystemLogName = "system.log"
	AccessLogName = "http-access.log"
)

// logDir is LOG_DIR, or "log" under the working directory.
func logDir() string {
	dir := strings.TrimSpace(os.Getenv("LOG_DIR"))
	if dir == "" {
		dir = "log"
	}
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

// Level reads LOG_LEVEL (debug, info, warn, error); anything else is info.
func Level() zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(os.Getenv("LOG_LEVEL")))); err != nil {
		return zap.InfoLevel
	}
	return lvl
}

// NewLog builds a JSON logger writing to stdout and to a rotated file named n
// in the log directory.
func NewLog(n string) *zap.Logger {
	return newLog(n, Level(), true)
}

// NewAccessLog is NewLog for the access log: one line per request, no message
// field.
func NewAccessLog(n string) *zap.Logger {
	return newLog(n, zap.InfoLevel, false)
}

func newLog(n string, lvl zapcore.Level, withMessage bool) *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if !withMessage {
		cfg.MessageKey = zapcore.OmitKey
	}

	console := zapcore.Lock(os.Stdout)
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir(), n),
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
	})

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, lvl),
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg), console, lvl),
	)
	return zap.New(core)
}
