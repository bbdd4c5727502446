/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log configures the editor's slog logger: a console handler for humans, an optional
// rotated JSON file, and context fields naming the document and entity a record is about.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"opuseditor/internal/version"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger initialization. FromEnv reads them from
//   - OPUS_LOG_LEVEL=debug|info|warn|error
//   - OPUS_LOG_FORMAT=console|json
//   - OPUS_LOG_FILE=<path> (JSON lines, rotated)
//   - OPUS_LOG_SOURCE=true|false
type Options struct {
	Level     string
	Format    string // "console" or "json"
	AddSource bool
	File      string
	// Console receives console output. Nil means stderr.
	Console io.Writer
}

var (
	mu   sync.RWMutex
	root *slog.Logger
	// open rotating file, closed when Init replaces it
	file *lj.Logger
)

// L returns the editor logger, initializing it from the environment on first use.
func L() *slog.Logger {
	mu.RLock()
	l := root
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(FromEnv())
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Init replaces the editor logger and slog's default.
func Init(opts Options) {
	lvl := parseLevel(opts.Level)
	out := opts.Console
	if out == nil {
		out = os.Stderr
	}

	var console slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		console = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource})
	} else {
		console = newConsoleHandler(out, lvl, opts.AddSource)
	}
	handlers := []slog.Handler{console}

	var rot *lj.Logger
	if f := strings.TrimSpace(opts.File); f != "" {
		rot = &lj.Logger{Filename: f, MaxSize: 10, MaxBackups: 3, MaxAge: 28, Compress: true}
		handlers = append(handlers, slog.NewJSONHandler(rot, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource}))
	}

	var h slog.Handler = fanout(handlers)
	if len(handlers) == 1 {
		h = handlers[0]
	}
	logger := slog.New(contextHandler{next: h}).With(
		slog.String("app", "opuseditor"),
		slog.String("ver", version.Version),
	)

	mu.Lock()
	prev := file
	root, file = logger, rot
	mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	slog.SetDefault(logger)
}

// FromEnv builds Options from OPUS_LOG_* variables.
func FromEnv() Options {
	return Options{
		Level:     getenv("OPUS_LOG_LEVEL", "info"),
		Format:    getenv("OPUS_LOG_FORMAT", "console"),
		AddSource: strings.EqualFold(getenv("OPUS_LOG_SOURCE", "false"), "true"),
		File:      os.Getenv("OPUS_LOG_FILE"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// WithComponent returns a logger tagged with the subsystem name (opus, session, storage, ...).
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation tags l with an operation: load, save, open, undo, index, fire.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type ctxKey int

const (
	docKey ctxKey = iota
	entityKey
)

// WithDocument returns a context whose records carry doc=<path>.
func WithDocument(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, docKey, path)
}

// WithEntity returns a context whose records carry entity=<category>/<name>, e.g. action/intro.
func WithEntity(ctx context.Context, category, name string) context.Context {
	return context.WithValue(ctx, entityKey, category+"/"+name)
}

// contextHandler copies the document and entity fields of the record's context into the record.
type contextHandler struct{ next slog.Handler }

func (c contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return c.next.Enabled(ctx, level)
}

func (c contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if doc, _ := ctx.Value(docKey).(string); doc != "" {
			r.AddAttrs(slog.String("doc", doc))
		}
		if ent, _ := ctx.Value(entityKey).(string); ent != "" {
			r.AddAttrs(slog.String("entity", ent))
		}
	}
	return c.next.Handle(ctx, r)
}

func (c contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{next: c.next.WithAttrs(attrs)}
}

func (c contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{next: c.next.WithGroup(name)}
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
