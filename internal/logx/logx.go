// Copyright 2025 Google LLC
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

// Package logx is the engine's structured logging facade: a thin layer
// over log/slog with an extra TRACE level below DEBUG, optional JSON or
// text formatting, and file rotation via lumberjack.
package logx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity is a logging level, ordered TRACE < DEBUG < INFO < WARNING < ERROR < OFF.
type Severity string

const (
	TRACE   Severity = "TRACE"
	DEBUG   Severity = "DEBUG"
	INFO    Severity = "INFO"
	WARNING Severity = "WARNING"
	ERROR   Severity = "ERROR"
	OFF     Severity = "OFF"

	// levelTrace sits one slog level below LevelDebug so Tracef can be
	// filtered independently of Debugf.
	levelTrace = slog.LevelDebug - 4
)

func (s Severity) slogLevel() slog.Leveler {
	switch s {
	case TRACE:
		return levelTrace
	case DEBUG:
		return slog.LevelDebug
	case INFO:
		return slog.LevelInfo
	case WARNING:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	case OFF:
		return slog.Level(1_000_000)
	default:
		return slog.LevelInfo
	}
}

// Config controls how the process-wide logger is constructed.
type Config struct {
	// Format is "text" or "json".
	Format string
	// Severity is the minimum level that will be emitted.
	Severity Severity
	// FilePath, if non-empty, routes output through a rotating file
	// writer instead of stderr.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu      sync.Mutex
	level   = new(slog.LevelVar)
	logger  = slog.New(newHandler(os.Stderr, level, "text"))
	sevName = map[slog.Level]string{
		levelTrace:       string(TRACE),
		slog.LevelDebug:  string(DEBUG),
		slog.LevelInfo:   string(INFO),
		slog.LevelWarn:   string(WARNING),
		slog.LevelError:  string(ERROR),
	}
)

// Init reconfigures the process-wide logger. It is called once at startup
// from the CLI after configuration has been parsed.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	var w io.Writer = os.Stderr
	if cfg.FilePath != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
	}

	sev := cfg.Severity
	if sev == "" {
		sev = INFO
	}
	level.Set(sev.slogLevel().Level())

	format := cfg.Format
	if format == "" {
		format = "text"
	}
	logger = slog.New(newHandler(w, level, format))
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// handler renders records either as logfmt-ish text (matching the
// teacher's `time="..." severity=LEVEL message="..."` shape) or JSON with
// a nested timestamp object, and knows about the extra TRACE level.
type handler struct {
	w      io.Writer
	level  slog.Leveler
	format string
	mu     *sync.Mutex
}

func newHandler(w io.Writer, lvl slog.Leveler, format string) *handler {
	return &handler{w: w, level: lvl, format: format, mu: &sync.Mutex{}}
}

func (h *handler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.level.Level()
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	sev, ok := sevName[r.Level]
	if !ok {
		sev = r.Level.String()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.format == "json" {
		_, err := fmt.Fprintf(h.w, "{\"timestamp\":{\"seconds\":%d,\"nanos\":%d},\"severity\":%q,\"message\":%q}\n",
			r.Time.Unix(), r.Time.Nanosecond(), sev, r.Message)
		return err
	}

	_, err := fmt.Fprintf(h.w, "time=%q severity=%s message=%q\n", r.Time.Format(time.RFC3339Nano), sev, r.Message)
	return err
}

func (h *handler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *handler) WithGroup(_ string) slog.Handler      { return h }

func logf(lvl slog.Level, format string, args ...any) {
	mu.Lock()
	l := logger
	mu.Unlock()
	l.Log(context.Background(), lvl, fmt.Sprintf(format, args...))
}

func Tracef(format string, args ...any)   { logf(levelTrace, format, args...) }
func Debugf(format string, args ...any)   { logf(slog.LevelDebug, format, args...) }
func Infof(format string, args ...any)    { logf(slog.LevelInfo, format, args...) }
func Warnf(format string, args ...any)    { logf(slog.LevelWarn, format, args...) }
func Errorf(format string, args ...any)   { logf(slog.LevelError, format, args...) }
