/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"opuseditor/internal/config"
)

// isolate keeps the CLI away from the user's config and keyring.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvConfigPath, filepath.Join(dir, "config.yaml"))
	t.Setenv(config.EnvBrokerPassword, "unused")
	t.Setenv(config.EnvLogLevel, "error")
	t.Setenv(config.EnvCommandsDir, filepath.Join("..", "..", "internal", "commands", "testdata"))
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	code := run(args, &out)
	return code, out.String()
}

func TestVersionAndUsage(t *testing.T) {
	isolate(t)
	if code, out := runCLI(t, "version"); code != 0 || !strings.Contains(out, "opuseditor") {
		t.Fatalf("version: code=%d out=%q", code, out)
	}
	if code, out := runCLI(t, "bogus"); code != 2 || !strings.Contains(out, "Usage:") {
		t.Fatalf("unknown command: code=%d out=%q", code, out)
	}
	if code, out := runCLI(t, "open"); code != 2 || !strings.Contains(out, "open requires <file>") {
		t.Fatalf("missing arg: code=%d out=%q", code, out)
	}
}

func TestDocumentWorkflow(t *testing.T) {
	dir := isolate(t)
	doc := filepath.Join(dir, "show.yaml")

	if code, out := runCLI(t, "new", doc); code != 0 {
		t.Fatalf("new: code=%d out=%q", code, out)
	}
	code, out := runCLI(t, "open", doc)
	if code != 0 || !strings.Contains(out, "Start node: default") || !strings.Contains(out, "1 nodes") {
		t.Fatalf("open: code=%d out=%q", code, out)
	}

	text := `startNode: intro
nodes:
  intro:
    next: intro
    prompt: Welcome to the lighthouse
    actions:
      - title
action_templates:
  title:
    target: image
    desc: Title card
    cmd: show
    assets: [card]
assets:
  card:
    path: media/card.png
`
	if err := os.WriteFile(doc, []byte(text), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if code, out := runCLI(t, "check", doc); code != 0 || !strings.Contains(out, "Round trip: clean") {
		t.Fatalf("check: code=%d out=%q", code, out)
	}
	if code, out := runCLI(t, "describe", doc); code != 0 || !strings.Contains(out, "title: Show an image (card.png)") {
		t.Fatalf("describe: code=%d out=%q", code, out)
	}
	if code, out := runCLI(t, "search", doc, "lighthouse"); code != 0 || !strings.Contains(out, "node intro prompt") {
		t.Fatalf("search: code=%d out=%q", code, out)
	}
	if code, out := runCLI(t, "where", doc, "action", "title"); code != 0 || !strings.Contains(out, "nodes.intro.actions[0]") {
		t.Fatalf("where: code=%d out=%q", code, out)
	}
	if code, out := runCLI(t, "save", doc); code != 0 {
		t.Fatalf("save: code=%d out=%q", code, out)
	}
	pdf := filepath.Join(dir, "out", "cues.pdf")
	if code, out := runCLI(t, "cuesheet", doc, pdf); code != 0 {
		t.Fatalf("cuesheet: code=%d out=%q", code, out)
	}
	if st, err := os.Stat(pdf); err != nil || st.Size() == 0 {
		t.Fatalf("cue sheet missing: %v", err)
	}

	if err := os.WriteFile(doc, []byte("nodes: {}\n"), 0o644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if code, _ := runCLI(t, "open", doc); code != 1 {
		t.Fatalf("broken document should fail to open, code=%d", code)
	}
	if code, out := runCLI(t, "recover", doc); code != 0 {
		t.Fatalf("recover: code=%d out=%q", code, out)
	}
	if code, out := runCLI(t, "open", doc); code != 0 || !strings.Contains(out, "Start node: intro") {
		t.Fatalf("open after recover: code=%d out=%q", code, out)
	}
}

func TestCheckReportsDanglingReferences(t *testing.T) {
	dir := isolate(t)
	doc := filepath.Join(dir, "show.yaml")
	text := "startNode: a\nnodes:\n  a:\n    next: a\n    prompt: x\n    actions: [ghost]\n"
	if err := os.WriteFile(doc, []byte(text), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	code, out := runCLI(t, "check", doc)
	if code != 1 || !strings.Contains(out, "Dangling:") || !strings.Contains(out, "ghost") {
		t.Fatalf("check: code=%d out=%q", code, out)
	}
}
