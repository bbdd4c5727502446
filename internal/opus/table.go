/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package opus

import "slices"

// entity is implemented by the value types kept in an EntityTable.
type entity[T any] interface {
	withName(name string) T
	clone() T
}

// EntityTable is an insertion-ordered, uniquely keyed store for one entity category.
// Cross-table invariants are enforced by Opus, not here.
type EntityTable[T entity[T]] struct {
	prefix string
	alloc  *NameAllocator
	order  []string
	items  map[string]T
}

func newEntityTable[T entity[T]](prefix string, alloc *NameAllocator) *EntityTable[T] {
	return &EntityTable[T]{prefix: prefix, alloc: alloc, items: make(map[string]T)}
}

// Upsert stores v under name and returns the name used. An empty name allocates a fresh one
// that is not a key of the table. Overwriting keeps the original insertion position.
func (t *EntityTable[T]) Upsert(name string, v T) string {
	if name == "" {
		name = t.alloc.Allocate(t.prefix, t.Has)
	}
	if _, ok := t.items[name]; !ok {
		t.order = append(t.order, name)
	}
	t.items[name] = v.withName(name)
	return name
}

// Get returns the entity stored under name.
func (t *EntityTable[T]) Get(name string) (T, bool) {
	v, ok := t.items[name]
	return v, ok
}

func (t *EntityTable[T]) Has(name string) bool {
	_, ok := t.items[name]
	return ok
}

// Remove deletes name and reports whether it was present.
func (t *EntityTable[T]) Remove(name string) bool {
	if _, ok := t.items[name]; !ok {
		return false
	}
	delete(t.items, name)
	if i := slices.Index(t.order, name); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
	return true
}

// Keys returns the names in insertion order.
func (t *EntityTable[T]) Keys() []string { return slices.Clone(t.order) }

// Values returns copies of the entities in insertion order.
func (t *EntityTable[T]) Values() []T {
	out := make([]T, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.items[k].clone())
	}
	return out
}

func (t *EntityTable[T]) Len() int { return len(t.order) }

func (t *EntityTable[T]) reset() {
	t.order = nil
	t.items = make(map[string]T)
}
