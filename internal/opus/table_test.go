/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package opus

import (
	"slices"
	"testing"
)

func TestEntityTableUpsertKeepsInsertionOrder(t *testing.T) {
	tb := newEntityTable[Asset]("asset", NewSeededNameAllocator(1))
	tb.Upsert("b", Asset{Data: AssetData{Path: "b.png"}})
	tb.Upsert("a", Asset{Data: AssetData{Path: "a.png"}})
	tb.Upsert("c", Asset{Data: AssetData{Path: "c.png"}})
	// overwrite must not move the key
	tb.Upsert("b", Asset{Data: AssetData{Path: "b2.png"}})

	if got, want := tb.Keys(), []string{"b", "a", "c"}; !slices.Equal(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	v, ok := tb.Get("b")
	if !ok || v.Path() != "b2.png" || v.Name != "b" {
		t.Fatalf("Get(b) = %+v, %v", v, ok)
	}
	if !tb.Remove("a") || tb.Remove("a") {
		t.Fatalf("Remove should succeed once")
	}
	if tb.Len() != 2 || tb.Has("a") {
		t.Fatalf("unexpected table after remove: %v", tb.Keys())
	}
	vals := tb.Values()
	if len(vals) != 2 || vals[0].Name != "b" || vals[1].Name != "c" {
		t.Fatalf("Values out of order: %+v", vals)
	}
}

func TestEntityTableGeneratedNamesAreUnique(t *testing.T) {
	tb := newEntityTable[Node]("node", NewSeededNameAllocator(99))
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		before := tb.Len()
		name := tb.Upsert("", Node{Prompt: "p"})
		if seen[name] {
			t.Fatalf("name %q allocated twice", name)
		}
		if tb.Len() != before+1 {
			t.Fatalf("upsert with empty name did not insert")
		}
		seen[name] = true
	}
}

func TestEntityTableValuesAreCopies(t *testing.T) {
	tb := newEntityTable[Node]("node", NewSeededNameAllocator(3))
	tb.Upsert("n", Node{Actions: []string{"a"}})
	vals := tb.Values()
	vals[0].Actions[0] = "changed"
	if n, _ := tb.Get("n"); n.Actions[0] != "a" {
		t.Fatalf("table entry was modified through Values: %v", n.Actions)
	}
}
