/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "opuseditor/internal/log"
	"opuseditor/internal/opus"
	"opuseditor/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName holds the disposable per-document index files next to the document.
	IndexDirName = ".opus"

	// schemaVersion tracks the local SQLite schema for the embedded index.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2
)

// IndexPath returns the index database file of the document at docPath.
func IndexPath(docPath string) string {
	return filepath.Join(filepath.Dir(docPath), IndexDirName, filepath.Base(docPath)+".sqlite")
}

// InitOrOpenIndex ensures that the index of the document exists, opens the database,
// enables WAL mode, and ensures the meta/version tables and the index schema exist.
// Callers close the returned *sql.DB.
func InitOrOpenIndex(docPath string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("doc", docPath),
	)
	if strings.TrimSpace(docPath) == "" {
		return nil, errors.New("document path is required")
	}
	path := IndexPath(docPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		l.Error("create index dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	// Convert to forward slashes for the SQLite URI.
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("index ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// Keep existing schema for migrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for cur < schemaVersion {
		next := cur + 1
		switch next {
		case 2:
			// where-used lookups go by target
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin migration %d: %w", next, err)
			}
			stmts := []string{
				`CREATE INDEX IF NOT EXISTS idx_refs_to ON refs(to_kind, to_name);`,
				`CREATE INDEX IF NOT EXISTS idx_refs_from ON refs(from_kind, from_name);`,
			}
			for _, q := range stmts {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					_ = tx.Rollback()
					return fmt.Errorf("migration %d stmt failed: %w", next, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d update version: %w", next, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("migration %d commit: %w", next, err)
			}
			// best-effort
			_, _ = db.ExecContext(ctx, `INSERT INTO fts_entries(fts_entries) VALUES('optimize')`)
		}
		cur = next
	}
	return nil
}

// ensureIndexSchema creates the entry, FTS and reference tables if they do not exist.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		// One row per searchable text: node prompts, jump descriptions, directive descriptions, asset paths, shortcut titles.
		`CREATE TABLE IF NOT EXISTS entries (
			entry_id INTEGER PRIMARY KEY,
			kind     TEXT NOT NULL,
			name     TEXT NOT NULL,
			field    TEXT NOT NULL,
			text     TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entries_name ON entries(kind, name);`,

		// External-content FTS5 index over entries, kept in sync via triggers.
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_entries USING fts5(
			text,
			content='entries',
			content_rowid='entry_id',
			tokenize = 'unicode61'
		);`,

		// Name references between entities (where-used)
		`CREATE TABLE IF NOT EXISTS refs (
			from_kind TEXT NOT NULL,
			from_name TEXT NOT NULL,
			to_kind   TEXT NOT NULL,
			to_name   TEXT NOT NULL,
			slot      TEXT NOT NULL,
			PRIMARY KEY(slot, to_kind)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_refs_to ON refs(to_kind, to_name);`,
		`CREATE INDEX IF NOT EXISTS idx_refs_from ON refs(from_kind, from_name);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
			INSERT INTO fts_entries(rowid, text) VALUES (new.entry_id, new.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
			INSERT INTO fts_entries(fts_entries, rowid, text) VALUES ('delete', old.entry_id, old.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS entries_au AFTER UPDATE OF text ON entries BEGIN
			INSERT INTO fts_entries(fts_entries, rowid, text) VALUES ('delete', old.entry_id, old.text);
			INSERT INTO fts_entries(rowid, text) VALUES (new.entry_id, new.text);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// DetectAndRebuildIndex checks for corruption or missing schema and rebuilds the index if needed.
// It returns true when a rebuild was performed.
func DetectAndRebuildIndex(ctx context.Context, docPath string, o *opus.Opus) (bool, error) {
	path := IndexPath(docPath)
	db, err := InitOrOpenIndex(docPath)
	if err != nil {
		backupIndexFile(path)
		removeIndexFiles(path)
		if rbErr := RebuildIndex(ctx, docPath, o); rbErr != nil {
			return false, fmt.Errorf("rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	needs := false
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		needs = true
	}
	if !needs {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM entries LIMIT 1;`); err != nil {
			needs = true
		}
	}
	_ = db.Close()
	if !needs {
		return false, nil
	}
	backupIndexFile(path)
	removeIndexFiles(path)
	if err := RebuildIndex(ctx, docPath, o); err != nil {
		return false, err
	}
	return true, nil
}

// backupIndexFile copies the current index file into a timestamped backup in .opus/backups.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), BackupsDirName)
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

// removeIndexFiles deletes the index database with its WAL side files.
func removeIndexFiles(indexPath string) {
	for _, p := range []string{indexPath, indexPath + "-wal", indexPath + "-shm"} {
		_ = os.Remove(p)
	}
}

// RebuildIndex replaces the indexed content with the current state of o.
func RebuildIndex(ctx context.Context, docPath string, o *opus.Opus) error {
	if o == nil || !o.Loaded() {
		return opus.ErrNotLoaded
	}
	db, err := InitOrOpenIndex(docPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return rebuildFromOpus(ctx, db, o)
}

type entryRow struct {
	kind, name, field, text string
}

func entryRows(o *opus.Opus) []entryRow {
	rows := make([]entryRow, 0, 128)
	add := func(kind, name, field, text string) {
		if s := strings.TrimSpace(text); s != "" {
			rows = append(rows, entryRow{kind: kind, name: name, field: field, text: s})
		}
	}
	for _, n := range o.Nodes() {
		add("node", n.Name, "prompt", n.Prompt)
		for i, j := range n.Next.Branches {
			add("node", n.Name, fmt.Sprintf("next[%d].description", i), j.Description)
		}
	}
	for _, a := range o.Actions() {
		for i, d := range a.Data.Steps {
			add("action", a.Name, fmt.Sprintf("[%d].desc", i), d.Desc)
			add("action", a.Name, fmt.Sprintf("[%d].command", i), strings.TrimSpace(d.Target+" "+d.Cmd))
		}
	}
	for _, a := range o.Assets() {
		add("asset", a.Name, "path", a.Path())
	}
	for i, sc := range o.UI().Shortcuts {
		add("shortcut", sc.Title, fmt.Sprintf("ui.shortcuts[%d].title", i), sc.Title)
	}
	return rows
}

// kindOf maps a table category to the singular kind stored in the index.
func kindOf(c opus.Category) string {
	switch c {
	case opus.CategoryNodes:
		return "node"
	case opus.CategoryActions:
		return "action"
	case opus.CategoryAssets:
		return "asset"
	default:
		return "opus"
	}
}

func rebuildFromOpus(ctx context.Context, db *sql.DB, o *opus.Opus) error {
	rows := entryRows(o)
	refs := o.AllReferences()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, q := range []string{"DELETE FROM entries;", "DELETE FROM refs;"} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("clear index: %w", err)
		}
	}
	ins, err := tx.PrepareContext(ctx, "INSERT INTO entries(kind, name, field, text) VALUES(?,?,?,?);")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()
	for _, r := range rows {
		if _, err := ins.ExecContext(ctx, r.kind, r.name, r.field, r.text); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	insRef, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO refs(from_kind, from_name, to_kind, to_name, slot) VALUES(?,?,?,?,?);")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare ref insert: %w", err)
	}
	defer insRef.Close()
	for _, r := range refs {
		if _, err := insRef.ExecContext(ctx, kindOf(r.From), r.Owner, kindOf(r.Target), r.Name, r.Where); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert ref: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key, value) VALUES('indexed_at', ?)`, time.Now().UTC().Format(time.RFC3339)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	applog.WithComponent("storage").DebugContext(ctx, "index rebuilt", slog.Int("entries", len(rows)), slog.Int("refs", len(refs)))
	return nil
}
