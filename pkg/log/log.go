// Copyright 2018 Comcast Cable Communications Management, LLC
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log is the connection core's sole logging entrypoint: a thin,
// package-level wrapper around zerolog so every other package can call
// log.Debugf/log.Warnf/log.Errorf without carrying a logger handle through
// every constructor. Call Configure once at process startup (normally from
// cmd/pulsar-dial) to pick the sink; everything before that falls back to
// a plain console writer so library code is still usable (and its tests
// still quiet) without a Configure call.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"go.elastic.co/ecszerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Format selects the wire shape of emitted log lines.
type Format int

const (
	// FormatConsole is a human-readable, optionally colorized writer —
	// the default, and what a TTY gets automatically.
	FormatConsole Format = iota
	// FormatECS emits Elastic Common Schema JSON, for log lines destined
	// for an ingest pipeline rather than a human terminal.
	FormatECS
)

// Options configures Configure. The zero value is a console logger at
// debug level (zerolog's zero Level) writing to stderr.
type Options struct {
	Level  zerolog.Level
	Format Format

	// RotateFile, if set, routes output through a lumberjack.Logger
	// instead of os.Stderr, rotating at 100MB/28 days/3 backups.
	RotateFile string
}

var (
	mu     sync.Mutex
	logger = zerolog.New(consoleWriter(os.Stderr)).With().Timestamp().Logger().Level(zerolog.InfoLevel)
)

// Configure replaces the package logger. Safe to call concurrently with
// logging calls, though in practice it's only ever called once at
// startup.
func Configure(opts Options) {
	var w io.Writer = os.Stderr
	if opts.RotateFile != "" {
		w = &lumberjack.Logger{
			Filename:   opts.RotateFile,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
	}

	var l zerolog.Logger
	switch opts.Format {
	case FormatECS:
		l = ecszerolog.New(w, ecszerolog.Level(opts.Level)).Logger()
	default:
		if opts.RotateFile == "" {
			w = consoleWriter(os.Stderr)
		}
		l = zerolog.New(w).With().Timestamp().Logger().Level(opts.Level)
	}

	mu.Lock()
	logger = l
	mu.Unlock()
}

// consoleWriter wraps w with zerolog's pretty console formatter,
// colorizing only when w is a terminal (go-isatty) and routing through
// go-colorable so the ANSI codes survive on Windows consoles too.
func consoleWriter(w *os.File) io.Writer {
	noColor := !isatty.IsTerminal(w.Fd()) && !isatty.IsCygwinTerminal(w.Fd())
	return zerolog.ConsoleWriter{
		Out:     colorable.NewColorable(w),
		NoColor: noColor,
	}
}

func current() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

func Tracef(format string, args ...interface{}) {
	current().Trace().Msgf(format, args...)
}

func Debugf(format string, args ...interface{}) {
	current().Debug().Msgf(format, args...)
}

func Infof(format string, args ...interface{}) {
	current().Info().Msgf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	current().Warn().Msgf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	current().Error().Msgf(format, args...)
}
