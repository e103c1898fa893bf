package logging

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "grok_search.log"

// Options configures the process logger
type Options struct {
	Level string // DEBUG, INFO, WARN, ERROR
	Dir   string // empty disables the file core
	Debug bool   // console uses the development encoder
}

// ParseLevel maps a level name to a zap level, defaulting to info
func ParseLevel(name string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// New builds a logger writing JSON to stderr and, when Dir can be created,
// to a rotating file in Dir.
func New(opts Options) *zap.Logger {
	level := zap.NewAtomicLevelAt(ParseLevel(opts.Level))

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)

	consoleEncoder := jsonEncoder
	if opts.Debug {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level),
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err == nil {
			rotator := &lumberjack.Logger{
				Filename:   filepath.Join(opts.Dir, logFileName),
				MaxSize:    10, // Megabytes
				MaxBackups: 5,
				MaxAge:     30, // Days
				Compress:   true,
			}
			cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator), level))
		}
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}
