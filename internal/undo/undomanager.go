/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package undo keeps in-memory undo/redo history of serialized documents.
package undo

import (
	"sync"
	"time"
)

// Snapshot is a serialized document state. Blob is opaque to the manager; size is estimated as len(Blob).
// TS is when the snapshot was captured.
type Snapshot struct {
	Doc  string
	Blob []byte
	TS   time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; older entries are pruned when exceeded.
	MaxBytes int
	// MaxDepth limits number of undo snapshots per document kept in memory (0 means unlimited).
	MaxDepth int
	// MinInterval coalesces snapshots captured within the interval for the same document:
	// the earlier state is kept and the new one dropped, so a burst of edits undoes in one step.
	MinInterval time.Duration
}

// Manager provides an in-memory undo/redo stack per document with performance safeguards.
// Snapshots hold the state before a change; Undo and Redo trade the caller's current state
// against the top of the opposite stack.
// It is safe for concurrent use.
type Manager struct {
	cfg Config
	mu  sync.Mutex
	// per-document stacks
	undo map[string][]Snapshot
	redo map[string][]Snapshot
	// accounting, undo and redo together
	totalBytes int
}

func NewManager(cfg Config) *Manager {
	// Set conservative defaults if not provided
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024 // 16 MiB
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	return &Manager{cfg: cfg, undo: make(map[string][]Snapshot), redo: make(map[string][]Snapshot)}
}

// PushSnapshot records the state of a document before a change. Clears the redo stack of that document.
func (m *Manager) PushSnapshot(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropRedoLocked(s.Doc)
	stack := m.undo[s.Doc]
	if n := len(stack); n > 0 && m.cfg.MinInterval > 0 {
		last := stack[n-1]
		if s.TS.Sub(last.TS) < m.cfg.MinInterval {
			// Coalesce: keep the older state, extend its window
			stack[n-1].TS = s.TS
			return
		}
	}
	m.undo[s.Doc] = append(stack, s)
	m.totalBytes += len(s.Blob)
	m.enforceCapsLocked(s.Doc)
}

// Undo pops the newest snapshot of doc and stores current on the redo stack.
func (m *Manager) Undo(doc string, current []byte) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[doc]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	s := stack[len(stack)-1]
	m.undo[doc] = stack[:len(stack)-1]
	m.totalBytes -= len(s.Blob)
	m.redo[doc] = append(m.redo[doc], Snapshot{Doc: doc, Blob: current, TS: time.Now()})
	m.totalBytes += len(current)
	m.enforceCapsLocked(doc)
	return s, true
}

// Redo pops the newest redo snapshot of doc and stores current back on the undo stack.
func (m *Manager) Redo(doc string, current []byte) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[doc]
	if len(r) == 0 {
		return Snapshot{}, false
	}
	s := r[len(r)-1]
	m.redo[doc] = r[:len(r)-1]
	m.totalBytes -= len(s.Blob)
	// redo entries never coalesce with the undo stack
	m.undo[doc] = append(m.undo[doc], Snapshot{Doc: doc, Blob: current, TS: time.Time{}})
	m.totalBytes += len(current)
	m.enforceCapsLocked(doc)
	return s, true
}

// CanUndo reports whether doc has undo history.
func (m *Manager) CanUndo(doc string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[doc]) > 0
}

// CanRedo reports whether doc has redo history.
func (m *Manager) CanRedo(doc string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[doc]) > 0
}

// Clear drops undo/redo history of a document to free memory.
func (m *Manager) Clear(doc string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.undo[doc] {
		m.totalBytes -= len(s.Blob)
	}
	m.dropRedoLocked(doc)
	delete(m.undo, doc)
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, docs int, totalSnapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs = len(m.undo)
	for _, v := range m.undo {
		totalSnapshots += len(v)
	}
	return m.totalBytes, docs, totalSnapshots
}

func (m *Manager) dropRedoLocked(doc string) {
	for _, s := range m.redo[doc] {
		m.totalBytes -= len(s.Blob)
	}
	delete(m.redo, doc)
}

func (m *Manager) enforceCapsLocked(doc string) {
	// Per-document depth cap
	if m.cfg.MaxDepth > 0 {
		stack := m.undo[doc]
		if len(stack) > m.cfg.MaxDepth {
			// drop the oldest extras
			toDrop := len(stack) - m.cfg.MaxDepth
			for i := 0; i < toDrop; i++ {
				m.totalBytes -= len(stack[i].Blob)
			}
			m.undo[doc] = append([]Snapshot{}, stack[toDrop:]...)
		}
	}
	// Global memory cap: prune oldest undo entries of other documents first, then of doc itself
	for m.cfg.MaxBytes > 0 && m.totalBytes > m.cfg.MaxBytes {
		victim := ""
		found := false
		var oldestTS time.Time
		for d, stack := range m.undo {
			if len(stack) == 0 || d == doc {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				victim, oldestTS, found = d, stack[0].TS, true
			}
		}
		if !found {
			if len(m.undo[doc]) <= 1 {
				break
			}
			victim = doc
		}
		stack := m.undo[victim]
		m.totalBytes -= len(stack[0].Blob)
		m.undo[victim] = stack[1:]
		if len(m.undo[victim]) == 0 {
			delete(m.undo, victim)
		}
	}
}
