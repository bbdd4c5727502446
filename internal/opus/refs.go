/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package opus

import "fmt"

// Reference is one name slot pointing into a table.
type Reference struct {
	// Target is the table Name is looked up in.
	Target Category
	Name   string
	// From and Owner identify the entity holding the slot; both are empty for the start node
	// and UI shortcuts.
	From  Category
	Owner string
	Where string
}

// AllReferences lists every reference slot of the document in document order.
func (o *Opus) AllReferences() []Reference {
	var out []Reference
	var from Category
	add := func(target Category, name, owner, where string) {
		out = append(out, Reference{Target: target, Name: name, From: from, Owner: owner, Where: where})
	}
	if o.startNode != "" {
		add(CategoryNodes, o.startNode, "", "startNode")
	}
	from = CategoryNodes
	for _, name := range o.nodes.order {
		n := o.nodes.items[name]
		p := join("nodes", name)
		if n.Next.IsBranching() {
			for i, j := range n.Next.Branches {
				jp := at(join(p, "next"), i)
				add(CategoryNodes, j.Node, name, join(jp, "node"))
				for k, a := range j.Actions {
					add(CategoryActions, a, name, at(join(jp, "actions"), k))
				}
			}
		} else {
			add(CategoryNodes, n.Next.Target, name, join(p, "next"))
		}
		for i, a := range n.Actions {
			add(CategoryActions, a, name, at(join(p, "actions"), i))
		}
	}
	from = CategoryActions
	for _, name := range o.actions.order {
		a := o.actions.items[name]
		p := join("actions", name)
		for i, s := range a.Data.Steps {
			for k, asset := range s.Assets {
				add(CategoryAssets, asset, name, at(join(at(p, i), "assets"), k))
			}
		}
	}
	from = ""
	for i, sc := range o.ui.Shortcuts {
		for k, a := range sc.Actions {
			add(CategoryActions, a, "", at(join(at("ui.shortcuts", i), "actions"), k))
		}
	}
	return out
}

// References returns the slots that refer to name in the given table.
func (o *Opus) References(cat Category, name string) []Reference {
	var out []Reference
	for _, r := range o.AllReferences() {
		if r.Target == cat && r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// DanglingReferences reports every slot whose name is missing from its table.
func (o *Opus) DanglingReferences() []*LookupError {
	var out []*LookupError
	for _, r := range o.AllReferences() {
		if !o.has(r.Target, r.Name) {
			out = append(out, &LookupError{Category: r.Target, Name: r.Name, Where: r.Where})
		}
	}
	return out
}

func (o *Opus) has(cat Category, name string) bool {
	switch cat {
	case CategoryNodes:
		return o.nodes.Has(name)
	case CategoryActions:
		return o.actions.Has(name)
	case CategoryAssets:
		return o.assets.Has(name)
	}
	return false
}

// Report summarizes the size of a document.
type Report struct {
	Nodes         int
	Actions       int
	InlineActions int
	Assets        int
	InlineAssets  int
	Shortcuts     int
}

func (r Report) String() string {
	return fmt.Sprintf("%d nodes, %d actions (%d inline), %d assets (%d inline), %d shortcuts",
		r.Nodes, r.Actions, r.InlineActions, r.Assets, r.InlineAssets, r.Shortcuts)
}

func (o *Opus) Report() Report {
	rep := Report{
		Nodes:     o.nodes.Len(),
		Actions:   o.actions.Len(),
		Assets:    o.assets.Len(),
		Shortcuts: len(o.ui.Shortcuts),
	}
	for _, a := range o.actions.items {
		if a.IsInline {
			rep.InlineActions++
		}
	}
	for _, a := range o.assets.items {
		if a.IsInline {
			rep.InlineAssets++
		}
	}
	return rep
}
