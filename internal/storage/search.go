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
	"strings"
)

// SearchQuery describes a search over the document index.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT).
// Kinds restricts results to node, action, asset or shortcut entries.
// Limit/Offset implement pagination; reasonable defaults applied if zero.
type SearchQuery struct {
	Text   string
	Kinds  []string
	Limit  int
	Offset int
}

// SearchResult is a single matching entry. Snippet marks matches with [ ] when Text was used.
type SearchResult struct {
	EntryID int64
	Kind    string
	Name    string
	Field   string
	Snippet string
}

// Usage is one slot referring to an entity.
type Usage struct {
	FromKind string
	FromName string
	Slot     string
}

// Search performs full-text search over the index of the document at docPath.
// When q.Text is empty, it lists entries with the filters applied.
func Search(ctx context.Context, docPath string, q SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(docPath) == "" {
		return nil, errors.New("document path is required")
	}
	db, err := InitOrOpenIndex(docPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return searchDB(ctx, db, q)
}

func searchDB(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	if strings.TrimSpace(q.Text) != "" {
		sb.WriteString("SELECT e.entry_id, e.kind, e.name, e.field, snippet(fts_entries, 0, '[', ']', '…', 10)\n")
		sb.WriteString("FROM fts_entries JOIN entries e ON fts_entries.rowid = e.entry_id\n")
		sb.WriteString("WHERE fts_entries MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT e.entry_id, e.kind, e.name, e.field, ''\n")
		sb.WriteString("FROM entries e\nWHERE 1=1\n")
	}
	if len(q.Kinds) > 0 {
		sb.WriteString(" AND e.kind IN (" + placeholders(len(q.Kinds)) + ")\n")
		for _, k := range q.Kinds {
			args = append(args, k)
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	sb.WriteString("ORDER BY e.entry_id\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var sn sql.NullString
		if err := rows.Scan(&r.EntryID, &r.Kind, &r.Name, &r.Field, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Snippet = sn.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// WhereUsed returns the slots that refer to the entity kind/name ("node", "action" or "asset").
func WhereUsed(ctx context.Context, docPath, kind, name string) ([]Usage, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name is required")
	}
	db, err := InitOrOpenIndex(docPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, `SELECT from_kind, from_name, slot FROM refs
		WHERE to_kind = ? AND to_name = ?
		ORDER BY rowid`, kind, name)
	if err != nil {
		return nil, fmt.Errorf("where-used query: %w", err)
	}
	defer rows.Close()
	out := []Usage{}
	for rows.Next() {
		var u Usage
		if err := rows.Scan(&u.FromKind, &u.FromName, &u.Slot); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
