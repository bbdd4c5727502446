/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package session owns the document being edited: its file path, the loaded opus,
// undo history and the on-disk index. Failures are logged and reported as false.
package session

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"opuseditor/internal/commands"
	applog "opuseditor/internal/log"
	"opuseditor/internal/opus"
	"opuseditor/internal/storage"
	"opuseditor/internal/undo"
)

// Options configures a Session. Zero values select defaults.
type Options struct {
	KeepBackups int
	Catalog     *commands.Catalog
	Undo        undo.Config
	// SkipIndex disables the search index refresh after load and save.
	SkipIndex bool
	Opus      []opus.Option
}

// Session is the editing model around one document at a time. It is not safe for concurrent use.
type Session struct {
	path    string
	doc     *opus.Opus
	catalog *commands.Catalog
	history *undo.Manager
	keep    int
	index   bool
	log     *slog.Logger
}

// New returns an empty session.
func New(opts Options) *Session {
	cat := opts.Catalog
	if cat == nil {
		cat = commands.NewCatalog()
	}
	return &Session{
		doc:     opus.New(opts.Opus...),
		catalog: cat,
		history: undo.NewManager(opts.Undo),
		keep:    opts.KeepBackups,
		index:   !opts.SkipIndex,
		log:     applog.WithComponent("session"),
	}
}

// Opus returns the document. Mutations made directly on it bypass undo history.
func (s *Session) Opus() *opus.Opus { return s.doc }

// Catalog returns the command catalog used for descriptions.
func (s *Session) Catalog() *commands.Catalog { return s.catalog }

// CurrentFile returns the path of the open document, or "".
func (s *Session) CurrentFile() string { return s.path }

// HasLoaded reports whether a document is open.
func (s *Session) HasLoaded() bool { return s.doc.Loaded() }

// Create starts a default document at path and saves it there. The document stays open even if
// the save fails.
func (s *Session) Create(path string) bool {
	l, ctx := applog.WithOperation(s.log, "new"), docContext(path)
	s.reset()
	s.doc.CreateDefault()
	s.path = path
	if !s.write(path) {
		return false
	}
	l.InfoContext(ctx, "document created")
	return true
}

// Open loads the document at path. On failure nothing is open afterwards.
func (s *Session) Open(path string) bool {
	l, ctx := applog.WithOperation(s.log, "open"), docContext(path)
	s.reset()
	data, err := storage.ReadDocument(path)
	if err != nil {
		l.ErrorContext(ctx, "read failed", slog.Any("err", err))
		return false
	}
	if err := s.doc.LoadBytes(data); err != nil {
		l.ErrorContext(ctx, "load failed", slog.Any("err", err))
		return false
	}
	s.path = path
	s.refreshIndex(false)
	return true
}

// RecoverFromBackup loads the newest backup of path. The session file stays path, so the next
// Save replaces the broken document.
func (s *Session) RecoverFromBackup(path string) bool {
	l, ctx := applog.WithOperation(s.log, "recover"), docContext(path)
	s.reset()
	data, from, err := storage.OpenLatestBackup(path)
	if err != nil {
		l.ErrorContext(ctx, "no usable backup", slog.Any("err", err))
		return false
	}
	if err := s.doc.LoadBytes(data); err != nil {
		l.ErrorContext(ctx, "backup does not load", slog.String("backup", from), slog.Any("err", err))
		return false
	}
	s.path = path
	l.WarnContext(ctx, "recovered from backup", slog.String("backup", from))
	return true
}

// Save writes the open document to its current file.
func (s *Session) Save() bool {
	if s.path == "" {
		s.log.Error("save without file", slog.Any("err", opus.ErrNotLoaded))
		return false
	}
	return s.write(s.path)
}

// SaveAs writes the open document to path, which becomes the current file on success.
func (s *Session) SaveAs(path string) bool {
	if strings.TrimSpace(path) == "" {
		s.log.Error("save as without path")
		return false
	}
	if !s.write(path) {
		return false
	}
	if filepath.Clean(path) != filepath.Clean(s.path) {
		s.history.Clear(s.path)
		s.path = path
		s.refreshIndex(true)
	}
	return true
}

func (s *Session) write(path string) bool {
	l, ctx := applog.WithOperation(s.log, "save"), docContext(path)
	for _, le := range s.doc.DanglingReferences() {
		l.WarnContext(applog.WithEntity(ctx, string(le.Category), le.Name), "dangling reference", slog.String("where", le.Where))
	}
	data, err := s.doc.SaveBytes()
	if err != nil {
		l.ErrorContext(ctx, "serialize failed", slog.Any("err", err))
		return false
	}
	if err := storage.WriteDocument(path, data, s.keep); err != nil {
		l.ErrorContext(ctx, "write failed", slog.Any("err", err))
		return false
	}
	l.InfoContext(ctx, "document saved", slog.Int("bytes", len(data)))
	if filepath.Clean(path) == filepath.Clean(s.path) {
		s.refreshIndex(true)
	}
	return true
}

// docContext tags log records with the document they concern.
func docContext(path string) context.Context {
	return applog.WithDocument(context.Background(), path)
}

// Unload closes the document and drops its history.
func (s *Session) Unload() {
	s.reset()
}

func (s *Session) reset() {
	if s.path != "" {
		s.history.Clear(s.path)
	}
	s.path = ""
	if s.doc.State() != opus.StateUnloaded {
		s.doc.Unload()
	}
}

func (s *Session) refreshIndex(force bool) {
	if !s.index || s.path == "" || !s.doc.Loaded() {
		return
	}
	ctx, cancel := context.WithTimeout(docContext(s.path), 10*time.Second)
	defer cancel()
	var err error
	if force {
		err = storage.RebuildIndex(ctx, s.path, s.doc)
	} else {
		var rebuilt bool
		if rebuilt, err = storage.DetectAndRebuildIndex(ctx, s.path, s.doc); err == nil && !rebuilt {
			// the file may have been edited outside the editor
			err = storage.RebuildIndex(ctx, s.path, s.doc)
		}
	}
	if err != nil {
		applog.WithOperation(s.log, "index").WarnContext(ctx, "index refresh failed", slog.Any("err", err))
	}
}

// Search runs a full-text query over the index of the open document.
func (s *Session) Search(ctx context.Context, q storage.SearchQuery) ([]storage.SearchResult, error) {
	if s.path == "" {
		return nil, opus.ErrNotLoaded
	}
	return storage.Search(ctx, s.path, q)
}

// WhereUsed lists the slots referring to kind/name in the indexed document.
func (s *Session) WhereUsed(ctx context.Context, kind, name string) ([]storage.Usage, error) {
	if s.path == "" {
		return nil, opus.ErrNotLoaded
	}
	return storage.WhereUsed(ctx, s.path, kind, name)
}

// ActionDescriptions maps every action name to its human-readable description.
func (s *Session) ActionDescriptions() map[string]string {
	out := make(map[string]string)
	for _, a := range s.doc.Actions() {
		out[a.Name] = s.catalog.Describe(a, s.doc)
	}
	return out
}

// Snapshot returns the serialized open document.
func (s *Session) Snapshot() ([]byte, error) {
	return s.doc.Marshal()
}

// record stores the pre-mutation state in the undo history.
func (s *Session) record() {
	data, err := s.doc.Marshal()
	if err != nil {
		return
	}
	s.history.PushSnapshot(undo.Snapshot{Doc: s.path, Blob: data, TS: time.Now()})
}

// UpdateNode upserts a node with undo history.
func (s *Session) UpdateNode(name string, n opus.Node) (string, error) {
	s.record()
	return s.doc.UpdateNode(name, n)
}

// UpdateAction upserts an action with undo history.
func (s *Session) UpdateAction(name string, inline bool, data opus.ActionData) (string, error) {
	for _, d := range data.Steps {
		if err := s.catalog.Validate(d); err != nil && !errors.Is(err, commands.ErrUnknownCommand) {
			ctx := applog.WithEntity(docContext(s.path), string(opus.CategoryActions), name)
			s.log.WarnContext(ctx, "directive does not match its command schema", slog.Any("err", err))
		}
	}
	s.record()
	return s.doc.UpdateAction(name, inline, data)
}

// UpdateAsset upserts an asset with undo history.
func (s *Session) UpdateAsset(name string, inline bool, data opus.AssetData) (string, error) {
	s.record()
	return s.doc.UpdateAsset(name, inline, data)
}

// DeleteNode removes a node with undo history.
func (s *Session) DeleteNode(name string) bool {
	return s.guard(func() bool { return s.doc.DeleteNode(name) })
}

// DeleteAction removes an action with undo history.
func (s *Session) DeleteAction(name string) bool {
	return s.guard(func() bool { return s.doc.DeleteAction(name) })
}

// DeleteAsset removes an asset with undo history.
func (s *Session) DeleteAsset(name string) bool {
	return s.guard(func() bool { return s.doc.DeleteAsset(name) })
}

// SetStartNode changes the start node with undo history.
func (s *Session) SetStartNode(name string) error {
	var err error
	s.guard(func() bool { err = s.doc.SetStartNode(name); return err == nil })
	return err
}

// SetUI replaces the UI configuration with undo history.
func (s *Session) SetUI(cfg opus.UIConfig) error {
	var err error
	s.guard(func() bool { err = s.doc.SetUI(cfg); return err == nil })
	return err
}

// guard records history only when fn actually changed the document.
func (s *Session) guard(fn func() bool) bool {
	before, err := s.doc.Marshal()
	if !fn() {
		return false
	}
	if err == nil {
		s.history.PushSnapshot(undo.Snapshot{Doc: s.path, Blob: before, TS: time.Now()})
	}
	return true
}

// CanUndo reports whether Undo would change the document.
func (s *Session) CanUndo() bool { return s.history.CanUndo(s.path) }

// CanRedo reports whether Redo would change the document.
func (s *Session) CanRedo() bool { return s.history.CanRedo(s.path) }

// Undo restores the state before the last recorded mutation.
func (s *Session) Undo() bool {
	return s.travel("undo", s.history.Undo)
}

// Redo re-applies the last undone mutation.
func (s *Session) Redo() bool {
	return s.travel("redo", s.history.Redo)
}

func (s *Session) travel(op string, step func(string, []byte) (undo.Snapshot, bool)) bool {
	l, ctx := applog.WithOperation(s.log, op), docContext(s.path)
	current, err := s.doc.Marshal()
	if err != nil {
		l.ErrorContext(ctx, "snapshot current state failed", slog.Any("err", err))
		return false
	}
	snap, ok := step(s.path, current)
	if !ok {
		return false
	}
	if err := s.doc.LoadBytes(snap.Blob); err != nil {
		// history only holds states this document serialized itself
		l.ErrorContext(ctx, "restore failed", slog.Any("err", err))
		return false
	}
	return true
}
