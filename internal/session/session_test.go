/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package session

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"opuseditor/internal/commands"
	applog "opuseditor/internal/log"
	"opuseditor/internal/opus"
	"opuseditor/internal/storage"
)

const showDoc = `startNode: intro
nodes:
  intro:
    next: intro
    prompt: Welcome to the lighthouse
    actions:
      - title
      - target: audio
        cmd: destroy
        params:
          entityId: theme
action_templates:
  title:
    target: image
    desc: Title card
    cmd: show
    assets:
      - card
assets:
  card:
    path: media/card.png
`

func newSession(t *testing.T, index bool) *Session {
	t.Helper()
	cat, err := commands.LoadDir(filepath.Join("..", "commands", "testdata"))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return New(Options{
		KeepBackups: 3,
		Catalog:     cat,
		SkipIndex:   !index,
		Opus:        []opus.Option{opus.WithNameAllocator(opus.NewSeededNameAllocator(3))},
	})
}

func writeShow(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "show.yaml")
	if err := os.WriteFile(path, []byte(showDoc), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}
	return path
}

func TestCreateSavesDefaultDocument(t *testing.T) {
	s := newSession(t, false)
	path := filepath.Join(t.TempDir(), "new.yaml")
	if !s.Create(path) {
		t.Fatalf("Create failed")
	}
	if !s.HasLoaded() || s.CurrentFile() != path {
		t.Fatalf("unexpected session state: loaded=%v file=%q", s.HasLoaded(), s.CurrentFile())
	}
	other := newSession(t, false)
	if !other.Open(path) {
		t.Fatalf("Open of created document failed")
	}
	n, ok := other.Opus().Node(opus.DefaultNodeName)
	if !ok || n.Prompt != "Initial node" || other.Opus().StartNode() != opus.DefaultNodeName {
		t.Fatalf("unexpected default document: %+v ok=%v start=%q", n, ok, other.Opus().StartNode())
	}
}

func TestOpenFailuresLeaveNothingOpen(t *testing.T) {
	s := newSession(t, false)
	good := writeShow(t)
	if !s.Open(good) {
		t.Fatalf("Open failed")
	}
	if s.Open(filepath.Join(t.TempDir(), "missing.yaml")) {
		t.Fatalf("Open of a missing file should fail")
	}
	if s.HasLoaded() || s.CurrentFile() != "" {
		t.Fatalf("failed open must leave the session empty")
	}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("startNode: nowhere\nnodes:\n  a:\n    next: a\n    prompt: x\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if s.Open(bad) || s.HasLoaded() {
		t.Fatalf("document with unknown start node must not load")
	}
	if s.Save() {
		t.Fatalf("Save without a document must fail")
	}
}

func TestSaveKeepsBackupsAndSaveAsSwitchesFile(t *testing.T) {
	s := newSession(t, false)
	path := writeShow(t)
	if !s.Open(path) {
		t.Fatalf("Open failed")
	}
	if !s.Save() {
		t.Fatalf("Save failed")
	}
	backups, _ := storage.BackupPaths(path)
	if len(backups) != 1 {
		t.Fatalf("expected one backup, got %v", backups)
	}
	if b, _ := os.ReadFile(backups[0]); string(b) != showDoc {
		t.Fatalf("backup should hold the original text")
	}
	saved, _ := os.ReadFile(path)
	if !strings.Contains(string(saved), "target: audio") || !strings.Contains(string(saved), "- title") {
		t.Fatalf("saved document lost content:\n%s", saved)
	}

	copyPath := filepath.Join(t.TempDir(), "copy.yaml")
	if !s.SaveAs(copyPath) || s.CurrentFile() != copyPath {
		t.Fatalf("SaveAs failed or did not switch file: %q", s.CurrentFile())
	}
	if s.SaveAs("") {
		t.Fatalf("SaveAs with empty path must fail")
	}
}

func TestUndoRedoThroughSession(t *testing.T) {
	s := newSession(t, false)
	if !s.Open(writeShow(t)) {
		t.Fatalf("Open failed")
	}
	if s.CanUndo() {
		t.Fatalf("fresh document has no history")
	}
	name, err := s.UpdateNode("hall", opus.Node{Prompt: "A hall", Next: opus.NextTo("intro")})
	if err != nil || name != "hall" {
		t.Fatalf("UpdateNode = %q, %v", name, err)
	}
	if s.DeleteNode("intro") {
		t.Fatalf("start node must not be deletable")
	}
	if !s.Undo() {
		t.Fatalf("Undo failed")
	}
	if s.Opus().NodeExists("hall") {
		t.Fatalf("undo should remove hall")
	}
	if s.CanUndo() {
		t.Fatalf("refused delete must not be recorded")
	}
	if !s.Redo() || !s.Opus().NodeExists("hall") {
		t.Fatalf("redo should restore hall")
	}
	if s.Redo() {
		t.Fatalf("nothing left to redo")
	}

	if !s.DeleteAction("title") {
		t.Fatalf("DeleteAction failed")
	}
	if s.DeleteAction("title") {
		t.Fatalf("second delete must report false")
	}
	if !s.Undo() {
		t.Fatalf("Undo of delete failed")
	}
	if _, ok := s.Opus().Action("title"); !ok {
		t.Fatalf("undo should restore the action")
	}
}

func TestActionDescriptions(t *testing.T) {
	s := newSession(t, false)
	if !s.Open(writeShow(t)) {
		t.Fatalf("Open failed")
	}
	desc := s.ActionDescriptions()
	if got := desc["title"]; got != "Show an image (card.png)" {
		t.Fatalf("title description = %q", got)
	}
	var inline string
	for name, d := range desc {
		if name != "title" {
			inline = d
		}
	}
	if inline != "Stop audio entityId=theme" {
		t.Fatalf("inline description = %q (all: %v)", inline, desc)
	}
}

func TestRecoverFromBackup(t *testing.T) {
	s := newSession(t, false)
	path := writeShow(t)
	if !s.Open(path) || !s.Save() {
		t.Fatalf("Open/Save failed")
	}
	if err := os.WriteFile(path, []byte("::: broken"), 0o644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if s.Open(path) {
		t.Fatalf("broken document should not open")
	}
	if !s.RecoverFromBackup(path) {
		t.Fatalf("RecoverFromBackup failed")
	}
	if s.CurrentFile() != path || s.Opus().StartNode() != "intro" {
		t.Fatalf("unexpected recovered state: file=%q start=%q", s.CurrentFile(), s.Opus().StartNode())
	}
	if !s.Save() {
		t.Fatalf("Save after recovery failed")
	}
	if _, err := storage.ReadDocument(path); err != nil {
		t.Fatalf("read repaired document: %v", err)
	}
}

func TestSearchUsesDocumentIndex(t *testing.T) {
	s := newSession(t, true)
	path := writeShow(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.Search(ctx, storage.SearchQuery{Text: "x"}); err != opus.ErrNotLoaded {
		t.Fatalf("expected ErrNotLoaded without a document, got %v", err)
	}
	if !s.Open(path) {
		t.Fatalf("Open failed")
	}
	res, err := s.Search(ctx, storage.SearchQuery{Text: "lighthouse"})
	if err != nil || len(res) != 1 || res[0].Name != "intro" {
		t.Fatalf("Search = %+v, %v", res, err)
	}
	if _, err := s.UpdateNode("hall", opus.Node{Prompt: "Keeper's hall", Next: opus.NextTo("intro")}); err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}
	if !s.Save() {
		t.Fatalf("Save failed")
	}
	res, err = s.Search(ctx, storage.SearchQuery{Text: "keeper*"})
	if err != nil || len(res) != 1 || res[0].Name != "hall" {
		t.Fatalf("index not refreshed on save: %+v, %v", res, err)
	}
	used, err := s.WhereUsed(ctx, "asset", "card")
	if err != nil || len(used) != 1 || used[0].FromName != "title" {
		t.Fatalf("WhereUsed = %+v, %v", used, err)
	}
}

func TestLogRecordsNameTheDocument(t *testing.T) {
	var buf bytes.Buffer
	applog.Init(applog.Options{Level: "warn", Console: &buf})
	t.Cleanup(func() { applog.Init(applog.Options{Level: "error", Console: io.Discard}) })

	s := newSession(t, false)
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	if s.Open(missing) {
		t.Fatalf("Open of a missing file should fail")
	}
	out := buf.String()
	if !strings.Contains(out, "[session/open] read failed") || !strings.Contains(out, "doc="+missing) {
		t.Fatalf("open failure not tagged with the document:\n%s", out)
	}

	buf.Reset()
	path := writeShow(t)
	if !s.Open(path) || !s.DeleteAction("title") {
		t.Fatalf("open and delete failed")
	}
	if !s.Save() {
		t.Fatalf("Save failed")
	}
	out = buf.String()
	for _, want := range []string{"[session/save] dangling reference", "doc=" + path, "entity=actions/title", "where=nodes.intro.actions[0]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("save log lacks %q:\n%s", want, out)
		}
	}
}
