// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

type loggerKey struct{}

var globalLogger zerolog.Logger

func init() {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	pname, err := os.Executable()
	if err != nil {
		pname = os.Args[0]
	}

	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}

	globalLogger = zerolog.New(output(os.Stderr)).With().
		Timestamp().
		Str("hostname", hostname).
		Str("executable", filepath.Base(pname)).
		Stack().
		Caller().
		Logger().
		Level(level)

	log.Logger = globalLogger
}

// output renders human readable lines when w is a terminal and JSON
// otherwise.
func output(w *os.File) io.Writer {
	if term.IsTerminal(int(w.Fd())) {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return w
}

// Ctx returns the logger stored in ctx, or the global logger.
func Ctx(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return &globalLogger
	}
	if l, ok := ctx.Value(loggerKey{}).(*zerolog.Logger); ok {
		return l
	}
	return &globalLogger
}

func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// SetLevel updates the global log level
func SetLevel(level zerolog.Level) {
	globalLogger = globalLogger.Level(level)
	log.Logger = globalLogger
}

// SetLevelString parses name and updates the global log level. Empty names
// leave the level unchanged.
func SetLevelString(name string) error {
	if name == "" {
		return nil
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return err
	}
	SetLevel(level)
	return nil
}

// Fatal logs a fatal message and exits
func Fatal() *zerolog.Event {
	return globalLogger.Fatal()
}

// Error logs an error message
func Error() *zerolog.Event {
	return globalLogger.Error()
}

// Warn logs a warning message
func Warn() *zerolog.Event {
	return globalLogger.Warn()
}

// Info logs an info message
func Info() *zerolog.Event {
	return globalLogger.Info()
}

// Debug logs a debug message
func Debug() *zerolog.Event {
	return globalLogger.Debug()
}

// Trace logs a trace message
func Trace() *zerolog.Event {
	return globalLogger.Trace()
}
