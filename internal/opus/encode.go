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

// document builds the save representation. Top-level action_templates and assets
// only hold entities that can be saved; inline ones are embedded at their use sites.
func (r *resolver) document() *yaml.Node {
	doc := mappingNode()
	addPair(doc, "startNode", strNode(r.o.startNode))

	nodes := mappingNode()
	for _, name := range r.o.nodes.order {
		n := r.o.nodes.items[name]
		addPair(nodes, name, r.encodeNode(join("nodes", name), n))
	}
	addPair(doc, "nodes", nodes)

	templates := mappingNode()
	for _, name := range r.o.actions.order {
		a := r.o.actions.items[name]
		if !a.CanBeSaved() {
			continue
		}
		addPair(templates, name, r.encodeActionData(join("action_templates", name), a.Data))
	}
	addPair(doc, "action_templates", templates)

	assets := mappingNode()
	for _, name := range r.o.assets.order {
		a := r.o.assets.items[name]
		if !a.CanBeSaved() {
			continue
		}
		addPair(assets, name, encodeAssetData(a.Data))
	}
	addPair(doc, "assets", assets)

	addPair(doc, "ui", r.encodeUI(r.o.ui))
	return doc
}

func (r *resolver) encodeNode(path string, n Node) *yaml.Node {
	m := mappingNode()
	addPair(m, "next", r.encodeNext(join(path, "next"), n.Next))
	addPair(m, "prompt", strNode(n.Prompt))
	if n.PDFPage != nil {
		addPair(m, "pdfPage", r.value(path, *n.PDFPage))
	}
	if n.PDFLocationOnPage != nil {
		addPair(m, "pdfLocationOnPage", r.value(path, *n.PDFLocationOnPage))
	}
	if n.LineNumber != nil {
		addPair(m, "lineNumber", r.value(path, *n.LineNumber))
	}
	if len(n.Actions) > 0 {
		addPair(m, "actions", r.actionRefs(join(path, "actions"), n.Actions))
	}
	return m
}

func (r *resolver) encodeNext(path string, next Next) *yaml.Node {
	if !next.IsBranching() {
		return strNode(next.Target)
	}
	seq := sequenceNode()
	for i, j := range next.Branches {
		p := at(path, i)
		m := mappingNode()
		addPair(m, "node", strNode(j.Node))
		if j.Description != "" {
			addPair(m, "description", strNode(j.Description))
		}
		if len(j.Actions) > 0 {
			addPair(m, "actions", r.actionRefs(join(p, "actions"), j.Actions))
		}
		seq.Content = append(seq.Content, m)
	}
	return seq
}

// encodeActionData writes a single mapping-form directive as a mapping, everything else as a sequence.
func (r *resolver) encodeActionData(path string, d ActionData) *yaml.Node {
	if !d.isList() {
		return r.encodeDirective(path, d.Steps[0])
	}
	seq := sequenceNode()
	for i, s := range d.Steps {
		seq.Content = append(seq.Content, r.encodeDirective(at(path, i), s))
	}
	return seq
}

func (r *resolver) encodeDirective(path string, d Directive) *yaml.Node {
	m := mappingNode()
	addPair(m, "target", strNode(d.Target))
	if d.Desc != "" {
		addPair(m, "desc", strNode(d.Desc))
	}
	if d.Cmd != "" {
		addPair(m, "cmd", strNode(d.Cmd))
	}
	if d.Params != nil {
		pm := mappingNode()
		for _, k := range d.Params.keys {
			addPair(pm, k, r.value(join(join(path, "params"), k), d.Params.values[k]))
		}
		addPair(m, "params", pm)
	}
	if len(d.Assets) > 0 {
		seq := sequenceNode()
		for i, name := range d.Assets {
			seq.Content = append(seq.Content, r.assetRef(at(join(path, "assets"), i), name))
		}
		addPair(m, "assets", seq)
	}
	return m
}

func encodeAssetData(d AssetData) *yaml.Node {
	m := mappingNode()
	addPair(m, "path", strNode(d.Path))
	return m
}

func (r *resolver) encodeUI(ui UIConfig) *yaml.Node {
	m := mappingNode()
	if len(ui.Shortcuts) == 0 {
		return m
	}
	seq := sequenceNode()
	for i, sc := range ui.Shortcuts {
		p := at("ui.shortcuts", i)
		sm := mappingNode()
		addPair(sm, "title", strNode(sc.Title))
		if sc.Hotkey != nil {
			hm := mappingNode()
			addPair(hm, "key", strNode(sc.Hotkey.Key))
			if len(sc.Hotkey.Modifiers) > 0 {
				mods := sequenceNode()
				for _, mod := range sc.Hotkey.Modifiers {
					mods.Content = append(mods.Content, strNode(string(mod)))
				}
				addPair(hm, "modifiers", mods)
			}
			addPair(sm, "hotkey", hm)
		}
		addPair(sm, "actions", r.actionRefs(join(p, "actions"), sc.Actions))
		seq.Content = append(seq.Content, sm)
	}
	addPair(m, "shortcuts", seq)
	return m
}

// value encodes an arbitrary value; values yaml cannot represent are written as null.
func (r *resolver) value(path string, v any) *yaml.Node {
	n, err := valueNode(v)
	if err != nil {
		r.o.log.Warn("value not representable, writing null", slog.String("where", path), slog.Any("err", err))
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
	return n
}
