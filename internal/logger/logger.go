package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger; components receive it through their constructors.
var Log = zap.NewNop()

// ParseLevel maps a config level onto zap; unknown values mean info.
func ParseLevel(level string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return zap.InfoLevel
	}
	return lvl
}

// New builds a JSON logger writing to stdout.
func New(level string) (*zap.Logger, error) {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.Config{
		Encoding:         "json",
		Level:            zap.NewAtomicLevelAt(ParseLevel(level)),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    enc,
		InitialFields:    map[string]any{"service": "email-gateway"},
	}
	return cfg.Build()
}

// Init initializes the global logger with level from config
func Init(level string) {
	l, err := New(level)
	if err != nil {
		panic(err)
	}
	Log = l
}
