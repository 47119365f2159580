// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package logging builds the process logger, a logr.Logger backed by zap.
package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	flagLogEncoding = "log-encoding"
	flagLogLevel    = "log-level"
)

// Options holds the logger configuration.
type Options struct {
	// Encoding is json or console.
	Encoding string

	// Level is one of trace, debug, info or error. The debug level
	// enables V(1) messages, trace enables V(2).
	Level string
}

// DefaultOptions returns console logging at the info level.
func DefaultOptions() Options {
	return Options{Encoding: "console", Level: "info"}
}

// BindFlags binds the logger options to the flag set.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Encoding, flagLogEncoding, o.Encoding,
		"Log encoding format. Can be 'json' or 'console'.")
	fs.StringVar(&o.Level, flagLogLevel, o.Level,
		"Log verbosity level. Can be one of 'trace', 'debug', 'info', 'error'.")
}

// NewLogger returns a logger writing to stderr.
func NewLogger(opts Options) (logr.Logger, error) {
	return newLogger(opts, zapcore.Lock(os.Stderr))
}

func newLogger(opts Options, out zapcore.WriteSyncer) (logr.Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return logr.Discard(), err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339),
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(opts.Encoding) {
	case "", "console":
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return logr.Discard(), fmt.Errorf("invalid log encoding '%s', must be 'json' or 'console'", opts.Encoding)
	}

	core := zapcore.NewCore(encoder, out, level)
	return zapr.NewLogger(zap.New(core, zap.AddStacktrace(zapcore.PanicLevel))), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "trace":
		return zapcore.Level(-2), nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level '%s'", level)
	}
}
