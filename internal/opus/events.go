/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package opus

// Category names one of the three entity tables.
type Category string

const (
	CategoryNodes   Category = "nodes"
	CategoryActions Category = "actions"
	CategoryAssets  Category = "assets"
)

// ChangeKind tells whether an entity was written or removed.
type ChangeKind int

const (
	ChangeUpdated ChangeKind = iota
	ChangeDeleted
)

func (k ChangeKind) String() string {
	if k == ChangeDeleted {
		return "deleted"
	}
	return "updated"
}

// Change is delivered to category subscribers after a mutation has been committed.
type Change struct {
	Category Category
	Kind     ChangeKind
	Name     string
}

// listeners is a synchronous, ordered list of callbacks. Removal leaves a nil hole so
// indices handed out earlier stay valid.
type listeners[T any] struct {
	fns []func(T)
}

func (l *listeners[T]) add(fn func(T)) func() {
	l.fns = append(l.fns, fn)
	i := len(l.fns) - 1
	return func() { l.fns[i] = nil }
}

func (l *listeners[T]) emit(v T) {
	for _, fn := range l.fns {
		if fn != nil {
			fn(v)
		}
	}
}
