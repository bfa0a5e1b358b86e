package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger backs orchestrator.Logger with a sugared zap logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) Debug(msg string, args ...interface{}) { l.s.Debugw(msg, args...) }
func (l *zapLogger) Info(msg string, args ...interface{})  { l.s.Infow(msg, args...) }
func (l *zapLogger) Warn(msg string, args ...interface{})  { l.s.Warnw(msg, args...) }
func (l *zapLogger) Error(msg string, args ...interface{}) { l.s.Errorw(msg, args...) }

func (l *zapLogger) With(component string) *zapLogger {
	return &zapLogger{s: l.s.With("component", component)}
}

func newLogger(level, format string) *zap.Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if format == "json" {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		format = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Development:      format == "console",
		Encoding:         format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
