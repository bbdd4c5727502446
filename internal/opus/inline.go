/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package opus

import (
	"log/slog"

	"gopkg.in/yaml.v3"
)

// resolver converts reference slots between their raw form (a bare name or an embedded payload)
// and the in-memory form (always a name). Embedded payloads become inline entities with
// generated names; on the way out inline entities are embedded again and never written at top level.
type resolver struct {
	o *Opus
	// lookups collects dangling references met while serializing.
	lookups []*LookupError
}

// actionSlot resolves one action slot of a node, jump, or shortcut.
func (r *resolver) actionSlot(path string, n *yaml.Node) (string, error) {
	n = resolveAlias(n)
	switch {
	case isNull(n):
		return "", parseErrorf(path, "empty action slot")
	case n.Kind == yaml.ScalarNode:
		return n.Value, nil
	case n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode:
		data, err := r.parseActionData(path, n)
		if err != nil {
			return "", err
		}
		return r.o.actions.Upsert("", Action{IsInline: true, Data: data}), nil
	default:
		return "", parseErrorf(path, "expected an action name or directive, got %s", kindName(n))
	}
}

func (r *resolver) actionSlots(path string, n *yaml.Node) ([]string, error) {
	n = resolveAlias(n)
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, parseErrorf(path, "expected a list of actions, got %s", kindName(n))
	}
	out := make([]string, 0, len(n.Content))
	for i, c := range n.Content {
		name, err := r.actionSlot(at(path, i), c)
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

// assetSlot resolves one entry of a directive's asset list.
func (r *resolver) assetSlot(path string, n *yaml.Node) (string, error) {
	n = resolveAlias(n)
	switch {
	case isNull(n):
		return "", parseErrorf(path, "empty asset slot")
	case n.Kind == yaml.ScalarNode:
		return n.Value, nil
	case n.Kind == yaml.MappingNode:
		data, err := parseAssetData(path, n)
		if err != nil {
			return "", err
		}
		return r.o.assets.Upsert("", Asset{IsInline: true, Data: data}), nil
	default:
		return "", parseErrorf(path, "expected an asset name or {path}, got %s", kindName(n))
	}
}

// actionRef emits an action slot: the embedded data when inline, the bare name otherwise.
func (r *resolver) actionRef(path, name string) *yaml.Node {
	a, ok := r.o.actions.Get(name)
	if !ok {
		r.missing(CategoryActions, name, path)
		return strNode(name)
	}
	if a.IsInline {
		return r.encodeActionData(path, a.Data)
	}
	return strNode(name)
}

func (r *resolver) actionRefs(path string, names []string) *yaml.Node {
	seq := sequenceNode()
	for i, name := range names {
		seq.Content = append(seq.Content, r.actionRef(at(path, i), name))
	}
	return seq
}

func (r *resolver) assetRef(path, name string) *yaml.Node {
	a, ok := r.o.assets.Get(name)
	if !ok {
		r.missing(CategoryAssets, name, path)
		return strNode(name)
	}
	if a.IsInline {
		return encodeAssetData(a.Data)
	}
	return strNode(name)
}

func (r *resolver) missing(cat Category, name, where string) {
	le := &LookupError{Category: cat, Name: name, Where: where}
	r.lookups = append(r.lookups, le)
}

func (r *resolver) logLookups(l *slog.Logger) {
	for _, le := range r.lookups {
		l.Warn("dangling reference", slog.String("category", string(le.Category)), slog.String("name", le.Name), slog.String("where", le.Where))
	}
}
