/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"testing"
	"time"
)

func TestUndoRedoTradesCurrentState(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024 * 1024, MaxDepth: 10, MinInterval: 10 * time.Millisecond})
	doc := "show.yaml"
	t0 := time.Now()
	m.PushSnapshot(Snapshot{Doc: doc, Blob: []byte("a"), TS: t0})
	m.PushSnapshot(Snapshot{Doc: doc, Blob: []byte("b"), TS: t0.Add(20 * time.Millisecond)})
	if _, docs, total := m.Stats(); docs != 1 || total != 2 {
		t.Fatalf("expected 1 doc and 2 snapshots, got docs=%d total=%d", docs, total)
	}
	s, ok := m.Undo(doc, []byte("c"))
	if !ok || string(s.Blob) != "b" {
		t.Fatalf("undo expected 'b', got ok=%v blob=%q", ok, string(s.Blob))
	}
	if !m.CanRedo(doc) {
		t.Fatalf("expected redo to be available")
	}
	s, ok = m.Redo(doc, []byte("b"))
	if !ok || string(s.Blob) != "c" {
		t.Fatalf("redo expected 'c', got ok=%v blob=%q", ok, string(s.Blob))
	}
	s, ok = m.Undo(doc, []byte("c"))
	if !ok || string(s.Blob) != "b" {
		t.Fatalf("second undo expected 'b', got ok=%v blob=%q", ok, string(s.Blob))
	}
	s, ok = m.Undo(doc, []byte("b"))
	if !ok || string(s.Blob) != "a" {
		t.Fatalf("third undo expected 'a', got ok=%v blob=%q", ok, string(s.Blob))
	}
	if _, ok := m.Undo(doc, []byte("a")); ok {
		t.Fatalf("expected undo history to be exhausted")
	}
}

func TestPushClearsRedo(t *testing.T) {
	m := NewManager(Config{})
	doc := "show.yaml"
	m.PushSnapshot(Snapshot{Doc: doc, Blob: []byte("a"), TS: time.Now()})
	if _, ok := m.Undo(doc, []byte("b")); !ok {
		t.Fatalf("undo failed")
	}
	m.PushSnapshot(Snapshot{Doc: doc, Blob: []byte("a"), TS: time.Now()})
	if m.CanRedo(doc) {
		t.Fatalf("a new change must invalidate redo")
	}
	if tb, _, _ := m.Stats(); tb != 1 {
		t.Fatalf("redo bytes not released, total=%d", tb)
	}
}

func TestCoalesceKeepsEarlierState(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024 * 1024, MaxDepth: 10, MinInterval: 50 * time.Millisecond})
	doc := "show.yaml"
	t0 := time.Now()
	m.PushSnapshot(Snapshot{Doc: doc, Blob: []byte("1"), TS: t0})
	m.PushSnapshot(Snapshot{Doc: doc, Blob: []byte("2"), TS: t0.Add(10 * time.Millisecond)}) // coalesce
	_, _, total := m.Stats()
	if total != 1 {
		t.Fatalf("expected coalesced to 1 snapshot, got %d", total)
	}
	s, ok := m.Undo(doc, []byte("3"))
	if !ok || string(s.Blob) != "1" {
		t.Fatalf("expected coalesced snapshot '1', got ok=%v blob=%q", ok, string(s.Blob))
	}
}

func TestCaps(t *testing.T) {
	m := NewManager(Config{MaxBytes: 20, MaxDepth: 2})
	doc := "show.yaml"
	for i := 0; i < 10; i++ {
		m.PushSnapshot(Snapshot{Doc: doc, Blob: []byte("xxxxx"), TS: time.Now().Add(time.Duration(i) * time.Millisecond)})
	}
	_, _, total := m.Stats()
	if total > 2 {
		t.Fatalf("expected depth cap 2, got %d", total)
	}
}

func TestClearAndStats(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024, MaxDepth: 10})
	doc := "show.yaml"
	m.PushSnapshot(Snapshot{Doc: doc, Blob: []byte("abcdef"), TS: time.Now()})
	m.Undo(doc, []byte("ghi"))
	m.PushSnapshot(Snapshot{Doc: doc, Blob: []byte("abcdef"), TS: time.Now()})
	tb, docs, total := m.Stats()
	if tb == 0 || docs != 1 || total != 1 {
		t.Fatalf("unexpected stats before clear: tb=%d docs=%d total=%d", tb, docs, total)
	}
	m.Clear(doc)
	tb2, docs2, total2 := m.Stats()
	if tb2 != 0 || docs2 != 0 || total2 != 0 {
		t.Fatalf("expected cleared stats to be zero, got tb=%d docs=%d total=%d", tb2, docs2, total2)
	}
}

func TestGlobalPruneAcrossDocuments(t *testing.T) {
	// Very small MaxBytes so pruning triggers across documents
	m := NewManager(Config{MaxBytes: 8})
	t0 := time.Now()
	m.PushSnapshot(Snapshot{Doc: "one.yaml", Blob: []byte("xxxx"), TS: t0})
	m.PushSnapshot(Snapshot{Doc: "two.yaml", Blob: []byte("yyyy"), TS: t0.Add(time.Second)})
	// exceeds the cap and forces pruning of the other document
	m.PushSnapshot(Snapshot{Doc: "two.yaml", Blob: []byte("zzzz"), TS: t0.Add(2 * time.Second)})

	if m.CanUndo("one.yaml") {
		t.Fatalf("expected one.yaml to have been pruned")
	}
	if _, ok := m.Undo("two.yaml", []byte("w")); !ok {
		t.Fatalf("expected two.yaml to have snapshots")
	}
}
