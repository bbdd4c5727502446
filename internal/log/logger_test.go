/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// quiet restores a silent logger once the test is done.
func quiet(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { Init(Options{Level: "error", Console: io.Discard}) })
}

func lastJSONLine(t *testing.T, path string) map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var last string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("log file %s has no lines", path)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", last, err)
	}
	return m
}

func TestFileSinkCarriesDocumentAndEntity(t *testing.T) {
	quiet(t)
	fpath := filepath.Join(t.TempDir(), "editor.json")
	Init(Options{Level: "debug", File: fpath, Console: io.Discard})

	ctx := WithEntity(WithDocument(context.Background(), "/shows/opus.yaml"), "action", "intro")
	WithOperation(WithComponent("session"), "save").InfoContext(ctx, "document saved", slog.Int("bytes", 12))

	m := lastJSONLine(t, fpath)
	want := map[string]any{
		"app":       "opuseditor",
		"component": "session",
		"op":        "save",
		"doc":       "/shows/opus.yaml",
		"entity":    "action/intro",
		"msg":       "document saved",
		"bytes":     float64(12),
	}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("%s = %v, want %v (line %v)", k, m[k], v, m)
		}
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver: %v", m)
	}
}

func TestConsoleLineLayout(t *testing.T) {
	quiet(t)
	var buf bytes.Buffer
	Init(Options{Level: "info", Console: &buf})

	ctx := WithDocument(context.Background(), "show.yaml")
	WithOperation(WithComponent("session"), "open").ErrorContext(ctx, "read failed", slog.Any("err", errors.New("no such file")))

	line := buf.String()
	for _, want := range []string{" ERR [session/open] read failed", "doc=show.yaml", `err="no such file"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("console line lacks %q: %q", want, line)
		}
	}
	for _, unwanted := range []string{"component=", "op=", "app=", "ver="} {
		if strings.Contains(line, unwanted) {
			t.Fatalf("console line repeats %q: %q", unwanted, line)
		}
	}
}

func TestLevelFilter(t *testing.T) {
	quiet(t)
	var buf bytes.Buffer
	Init(Options{Level: "warn", Console: &buf})

	WithComponent("opus").Info("loaded")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %q", buf.String())
	}
	WithComponent("opus").Warn("dangling reference")
	if !strings.Contains(buf.String(), "WRN [opus] dangling reference") {
		t.Fatalf("warn missing: %q", buf.String())
	}
}

func TestConsoleGroupsAndSource(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(newConsoleHandler(&buf, slog.LevelDebug, true))

	l.WithGroup("index").Debug("rebuilt", slog.Int("entries", 4), slog.Group("refs", slog.Int("n", 2)))
	line := buf.String()
	for _, want := range []string{"DBG rebuilt", "index.entries=4", "index.refs.n=2", "src=logger_test.go:"} {
		if !strings.Contains(line, want) {
			t.Fatalf("console line lacks %q: %q", want, line)
		}
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("OPUS_LOG_LEVEL", "debug")
	t.Setenv("OPUS_LOG_FORMAT", "json")
	t.Setenv("OPUS_LOG_SOURCE", "TRUE")
	t.Setenv("OPUS_LOG_FILE", "")

	opts := FromEnv()
	if opts.Level != "debug" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv = %+v", opts)
	}
	if parseLevel(" Warning ") != slog.LevelWarn || parseLevel("bogus") != slog.LevelInfo {
		t.Fatal("parseLevel mismatch")
	}
}
