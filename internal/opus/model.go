/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package opus

import "slices"

// Jump is one conditional branch of a node's next field.
type Jump struct {
	Node        string
	Description string
	Actions     []string
}

// Next is where playback continues after a node: either a single target node,
// or an ordered list of branches (Branches non-nil, possibly empty).
type Next struct {
	Target   string
	Branches []Jump
}

// NextTo returns a Next pointing at a single node.
func NextTo(node string) Next { return Next{Target: node} }

// Branch returns a Next with the given branches.
func Branch(jumps ...Jump) Next {
	if jumps == nil {
		jumps = []Jump{}
	}
	return Next{Branches: jumps}
}

func (n Next) IsBranching() bool { return n.Branches != nil }

// Targets lists every node name this Next can jump to.
func (n Next) Targets() []string {
	if !n.IsBranching() {
		return []string{n.Target}
	}
	out := make([]string, 0, len(n.Branches))
	for _, j := range n.Branches {
		out = append(out, j.Node)
	}
	return out
}

func (n Next) clone() Next {
	if n.Branches == nil {
		return n
	}
	c := Next{Target: n.Target, Branches: make([]Jump, len(n.Branches))}
	for i, j := range n.Branches {
		j.Actions = slices.Clone(j.Actions)
		c.Branches[i] = j
	}
	return c
}

// Node is a narrative unit. Actions holds action names in playback order.
type Node struct {
	Name              string
	Prompt            string
	Next              Next
	PDFPage           *int
	PDFLocationOnPage *float64
	LineNumber        *int
	Actions           []string
}

func (n Node) withName(name string) Node {
	n.Name = name
	return n
}

func (n Node) clone() Node {
	c := n
	c.Next = n.Next.clone()
	c.Actions = slices.Clone(n.Actions)
	if n.PDFPage != nil {
		v := *n.PDFPage
		c.PDFPage = &v
	}
	if n.PDFLocationOnPage != nil {
		v := *n.PDFLocationOnPage
		c.PDFLocationOnPage = &v
	}
	if n.LineNumber != nil {
		v := *n.LineNumber
		c.LineNumber = &v
	}
	return c
}

// ActionNames returns the node's own actions followed by the actions of each branch.
func (n Node) ActionNames() []string {
	out := slices.Clone(n.Actions)
	for _, j := range n.Next.Branches {
		out = append(out, j.Actions...)
	}
	return out
}

// Directive is a single instruction to a playback component.
type Directive struct {
	Target string
	Desc   string
	Cmd    string
	Params *Params
	Assets []string
}

func (d Directive) clone() Directive {
	d.Params = d.Params.clone()
	d.Assets = slices.Clone(d.Assets)
	return d
}

// ActionData holds the directives of an action in execution order. List is set when the
// action was written as a sequence; a single directive written as a mapping has List false.
type ActionData struct {
	Steps []Directive
	List  bool
}

// SingleDirective wraps one directive written in mapping form.
func SingleDirective(d Directive) ActionData { return ActionData{Steps: []Directive{d}} }

// DirectiveList builds a multi-step action.
func DirectiveList(ds ...Directive) ActionData {
	if ds == nil {
		ds = []Directive{}
	}
	return ActionData{Steps: ds, List: true}
}

// EmptyActionData is the starting point for a new action in the editor.
func EmptyActionData() ActionData { return SingleDirective(Directive{Params: &Params{}}) }

// isList reports whether the data is written as a sequence.
func (d ActionData) isList() bool { return d.List || len(d.Steps) != 1 }

func (d ActionData) clone() ActionData {
	c := ActionData{List: d.List, Steps: make([]Directive, len(d.Steps))}
	for i, s := range d.Steps {
		c.Steps[i] = s.clone()
	}
	return c
}

// Action is a named, possibly inline, list of directives.
type Action struct {
	Name     string
	IsInline bool
	Data     ActionData
}

func (a Action) withName(name string) Action {
	a.Name = name
	return a
}

func (a Action) clone() Action {
	a.Data = a.Data.clone()
	return a
}

// CanBeSaved reports whether the action gets its own top-level entry.
func (a Action) CanBeSaved() bool { return !a.IsInline }

// AssetNames lists asset references of all steps in order, duplicates included.
func (a Action) AssetNames() []string {
	var out []string
	for _, s := range a.Data.Steps {
		out = append(out, s.Assets...)
	}
	return out
}

type AssetData struct {
	Path string
}

// Asset is a named reference to a media resource path.
type Asset struct {
	Name     string
	IsInline bool
	Data     AssetData
}

func (a Asset) withName(name string) Asset {
	a.Name = name
	return a
}

func (a Asset) clone() Asset { return a }

func (a Asset) CanBeSaved() bool { return !a.IsInline }

func (a Asset) Path() string { return a.Data.Path }

// Modifier is a hotkey modifier key.
type Modifier string

const (
	ModCtrl  Modifier = "ctrl"
	ModAlt   Modifier = "alt"
	ModShift Modifier = "shift"
)

func (m Modifier) valid() bool { return m == ModCtrl || m == ModAlt || m == ModShift }

type Hotkey struct {
	Key       string
	Modifiers []Modifier
}

// Shortcut triggers its actions from the operator UI.
type Shortcut struct {
	Title   string
	Hotkey  *Hotkey
	Actions []string
}

// UIConfig holds the operator shortcuts of an opus.
type UIConfig struct {
	Shortcuts []Shortcut
}

func (u UIConfig) clone() UIConfig {
	if u.Shortcuts == nil {
		return u
	}
	c := UIConfig{Shortcuts: make([]Shortcut, len(u.Shortcuts))}
	for i, s := range u.Shortcuts {
		s.Actions = slices.Clone(s.Actions)
		if s.Hotkey != nil {
			hk := *s.Hotkey
			hk.Modifiers = slices.Clone(hk.Modifiers)
			s.Hotkey = &hk
		}
		c.Shortcuts[i] = s
	}
	return c
}
