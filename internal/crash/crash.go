/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns panics into a crash report and an autosave of the open document.
package crash

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "opuseditor/internal/log"
	"opuseditor/internal/storage"
	"opuseditor/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Document is the open document to rescue. *session.Session implements it.
type Document interface {
	CurrentFile() string
	Snapshot() ([]byte, error)
}

// Recover captures a panic, logs an error with stacktrace,
// writes an error report file, and attempts a crash-safe autosave
// of the open document (if provided).
//
// Usage: defer crash.Recover(sess)
func Recover(doc Document) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		path := docPath(doc)
		ctx := applog.WithDocument(context.Background(), path)
		stack := debug.Stack()
		l.ErrorContext(ctx, "panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		reportPath, _ := writeReport(path, r, stack)
		if path != "" {
			if data, err := doc.Snapshot(); err != nil {
				l.ErrorContext(ctx, "crash snapshot unavailable", slog.Any("err", err))
			} else if out, err := storage.AutosaveCrashSnapshot(path, data); err != nil {
				l.ErrorContext(ctx, "autosave crash snapshot failed", slog.Any("err", err))
			} else {
				l.InfoContext(ctx, "autosave crash snapshot written", slog.String("snapshot", out))
			}
		}

		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		// Exit with a non-zero code to indicate failure in CLI context.
		exitFn(2)
	}
}

func docPath(doc Document) string {
	if doc == nil {
		return ""
	}
	return doc.CurrentFile()
}

func writeReport(path string, panicVal any, stack []byte) (string, error) {
	dir := os.TempDir()
	if path != "" {
		dir = filepath.Join(filepath.Dir(path), storage.BackupsDirName)
		_ = os.MkdirAll(dir, 0o755)
	}
	stamp := time.Now().Format("20060102-150405")
	out := filepath.Join(dir, fmt.Sprintf("crash-%s.log", stamp))

	f, err := os.OpenFile(out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return out, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", out))
		}
	}()

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Opus Editor Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if path != "" {
		_, _ = fmt.Fprintf(&buf, "Document: %s\n", path)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if _, err := f.Write(buf.Bytes()); err != nil {
		return out, err
	}
	_ = f.Sync()
	return out, nil
}
