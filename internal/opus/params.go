/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package opus

import "slices"

// Params is the ordered, string-keyed parameter map of a directive. Values are YAML scalars,
// []any, or nested *Params for mappings (map[string]any is accepted too and written sorted).
// The zero value is an empty map.
type Params struct {
	keys   []string
	values map[string]any
}

// NewParams builds Params from alternating key/value pairs, e.g. NewParams("entityId", "x", "volume", 0.5).
// A trailing key without value is ignored.
func NewParams(kv ...any) *Params {
	p := &Params{}
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		p.Set(k, kv[i+1])
	}
	return p
}

// Set inserts or replaces key. New keys are appended.
func (p *Params) Set(key string, v any) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = v
}

func (p *Params) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v, ok
}

func (p *Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (p *Params) Delete(key string) bool {
	if p == nil {
		return false
	}
	if _, ok := p.values[key]; !ok {
		return false
	}
	delete(p.values, key)
	if i := slices.Index(p.keys, key); i >= 0 {
		p.keys = slices.Delete(p.keys, i, i+1)
	}
	return true
}

// Keys returns the keys in insertion order.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	return slices.Clone(p.keys)
}

func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Map returns an unordered deep copy with nested *Params flattened to maps, suitable for
// JSON encoding.
func (p *Params) Map() map[string]any {
	out := make(map[string]any, p.Len())
	if p == nil {
		return out
	}
	for _, k := range p.keys {
		out[k] = plainValue(p.values[k])
	}
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case *Params:
		return t.Map()
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = plainValue(e)
		}
		return s
	default:
		return cloneValue(v)
	}
}

func (p *Params) clone() *Params {
	if p == nil {
		return nil
	}
	c := &Params{keys: slices.Clone(p.keys), values: make(map[string]any, len(p.values))}
	for k, v := range p.values {
		c.values[k] = cloneValue(v)
	}
	return c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Params:
		return t.clone()
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}
