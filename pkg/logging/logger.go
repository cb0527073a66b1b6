// Copyright (c) 2026 The Nanoev Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging sets up the logger used by nanoev loops.
//
// The default logger is a zap sugared logger writing to stdout, every line
// being prefixed with "[nanoev]". Two environment variables tune it when the
// package gets loaded:
//
//	NANOEV_LOGGING_LEVEL  zap level, either numeric (-1 for debug up to 5 for fatal) or named ("debug", "warn", ...)
//	NANOEV_LOGGING_FILE   path of a local file to log into instead of stdout, rotated by lumberjack
//
// A loop may be handed its own Logger through the nanoev options, anything
// implementing the Logger interface will do.
package logging

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	envLevel = "NANOEV_LOGGING_LEVEL"
	envFile  = "NANOEV_LOGGING_FILE"

	linePrefix = "[nanoev]"
)

// Flusher flushes buffered log entries to the underlying writer.
type Flusher = func() error

// Level is the alias of zapcore.Level.
type Level = zapcore.Level

const (
	// DebugLevel logs are voluminous and usually disabled outside development.
	DebugLevel = zapcore.DebugLevel
	// InfoLevel is the default level.
	InfoLevel = zapcore.InfoLevel
	// WarnLevel reports recoverable anomalies such as dropped operations.
	WarnLevel = zapcore.WarnLevel
	// ErrorLevel reports failures of the loop itself.
	ErrorLevel = zapcore.ErrorLevel
	// FatalLevel logs a message then calls os.Exit(1).
	FatalLevel = zapcore.FatalLevel
)

// Logger is used for logging formatted messages.
type Logger interface {
	// Debugf logs messages at DEBUG level.
	Debugf(format string, args ...interface{})
	// Infof logs messages at INFO level.
	Infof(format string, args ...interface{})
	// Warnf logs messages at WARN level.
	Warnf(format string, args ...interface{})
	// Errorf logs messages at ERROR level.
	Errorf(format string, args ...interface{})
	// Fatalf logs messages at FATAL level.
	Fatalf(format string, args ...interface{})
}

var (
	mu             sync.RWMutex
	defaultLogger  Logger
	defaultFlusher Flusher
	defaultLevel   = InfoLevel
)

func init() {
	if s := os.Getenv(envLevel); len(s) > 0 {
		lvl, err := ParseLevel(s)
		if err != nil {
			panic("invalid " + envLevel + ", " + err.Error())
		}
		defaultLevel = lvl
	}

	if path := os.Getenv(envFile); len(path) > 0 {
		var err error
		defaultLogger, defaultFlusher, err = NewFileLogger(path, defaultLevel)
		if err != nil {
			panic("invalid " + envFile + ", " + err.Error())
		}
		return
	}
	defaultLogger, defaultFlusher = NewConsoleLogger(defaultLevel)
}

// ParseLevel parses either a numeric zap level or its name.
func ParseLevel(s string) (Level, error) {
	if n, err := strconv.ParseInt(s, 10, 8); err == nil {
		lvl := Level(n)
		if lvl < DebugLevel || lvl > FatalLevel {
			return InfoLevel, fmt.Errorf("logging level %d out of range", n)
		}
		return lvl, nil
	}
	var lvl Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return InfoLevel, err
	}
	return lvl, nil
}

type prefixEncoder struct {
	zapcore.Encoder

	prefix  string
	bufPool buffer.Pool
}

func (e *prefixEncoder) Clone() zapcore.Encoder {
	return &prefixEncoder{Encoder: e.Encoder.Clone(), prefix: e.prefix, bufPool: e.bufPool}
}

func (e *prefixEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line, err := e.Encoder.EncodeEntry(entry, fields)
	if err != nil {
		return nil, err
	}
	defer line.Free()

	buf := e.bufPool.Get()
	buf.AppendString(e.prefix)
	buf.AppendByte(' ')
	if _, err = buf.Write(line.Bytes()); err != nil {
		buf.Free()
		return nil, err
	}
	return buf, nil
}

func newEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return &prefixEncoder{
		Encoder: zapcore.NewConsoleEncoder(cfg),
		prefix:  linePrefix,
		bufPool: buffer.NewPool(),
	}
}

// NewConsoleLogger creates a development logger writing to stdout.
func NewConsoleLogger(lvl Level) (Logger, Flusher) {
	core := zapcore.NewCore(newEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.Lock(os.Stdout), lvl)
	zl := zap.New(core,
		zap.Development(),
		zap.AddCaller(),
		zap.AddStacktrace(ErrorLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	return zl.Sugar(), zl.Sync
}

// NewFileLogger creates a logger writing into the file at path, which gets rotated
// once it grows past 100 megabytes.
func NewFileLogger(path string, lvl Level) (Logger, Flusher, error) {
	if len(path) == 0 {
		return nil, nil, errors.New("empty log file path")
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 2,
		MaxAge:     15, // days
	}
	core := zapcore.NewCore(newEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(rotator), lvl)
	zl := zap.New(core, zap.AddCaller(), zap.AddStacktrace(ErrorLevel))
	return zl.Sugar(), func() error {
		_ = zl.Sync()
		return rotator.Close()
	}, nil
}

// Default returns the package-wide logger.
func Default() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// DefaultLevel tells the level the default logger was built with.
func DefaultLevel() Level {
	return defaultLevel
}

// SetDefault replaces the package-wide logger, flushing the previous one.
// A nil flusher is allowed.
func SetDefault(logger Logger, flusher Flusher) {
	if logger == nil {
		return
	}
	mu.Lock()
	prev := defaultFlusher
	defaultLogger, defaultFlusher = logger, flusher
	mu.Unlock()
	if prev != nil {
		_ = prev()
	}
}

// Flush flushes the package-wide logger.
func Flush() error {
	mu.RLock()
	flush := defaultFlusher
	mu.RUnlock()
	if flush == nil {
		return nil
	}
	return flush()
}

// Error logs err at ERROR level if it's not nil.
func Error(err error) {
	if err != nil {
		Default().Errorf("error occurs during runtime, %v", err)
	}
}

// Debugf logs messages at DEBUG level.
func Debugf(format string, args ...interface{}) {
	Default().Debugf(format, args...)
}

// Infof logs messages at INFO level.
func Infof(format string, args ...interface{}) {
	Default().Infof(format, args...)
}

// Warnf logs messages at WARN level.
func Warnf(format string, args ...interface{}) {
	Default().Warnf(format, args...)
}

// Errorf logs messages at ERROR level.
func Errorf(format string, args ...interface{}) {
	Default().Errorf(format, args...)
}
