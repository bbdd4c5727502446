/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package opus

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

func (r *resolver) parseNode(path string, n *yaml.Node) (Node, error) {
	var node Node
	if resolveAlias(n) == nil || resolveAlias(n).Kind != yaml.MappingNode {
		return node, parseErrorf(path, "expected a node mapping, got %s", kindName(n))
	}
	err := eachPair(path, n, func(key string, val *yaml.Node) error {
		p := join(path, key)
		switch key {
		case "next":
			next, err := r.parseNext(p, val)
			node.Next = next
			return err
		case "prompt":
			s, err := scalarString(p, val)
			node.Prompt = s
			return err
		case "pdfPage":
			v, err := decodeScalar[int](p, val)
			node.PDFPage = v
			return err
		case "pdfLocationOnPage":
			v, err := decodeScalar[float64](p, val)
			if err == nil && v != nil && (*v < 0 || *v > 1) {
				return parseErrorf(p, "must be within [0,1], got %v", *v)
			}
			node.PDFLocationOnPage = v
			return err
		case "lineNumber":
			v, err := decodeScalar[int](p, val)
			node.LineNumber = v
			return err
		case "actions":
			names, err := r.actionSlots(p, val)
			node.Actions = names
			return err
		default:
			return parseErrorf(p, "unknown node field")
		}
	})
	return node, err
}

func (r *resolver) parseNext(path string, n *yaml.Node) (Next, error) {
	n = resolveAlias(n)
	switch {
	case isNull(n):
		return Next{}, parseErrorf(path, "next is required")
	case n.Kind == yaml.ScalarNode:
		return NextTo(n.Value), nil
	case n.Kind == yaml.SequenceNode:
		jumps := make([]Jump, 0, len(n.Content))
		for i, c := range n.Content {
			j, err := r.parseJump(at(path, i), c)
			if err != nil {
				return Next{}, err
			}
			jumps = append(jumps, j)
		}
		return Branch(jumps...), nil
	default:
		return Next{}, parseErrorf(path, "expected a node name or a list of jumps, got %s", kindName(n))
	}
}

func (r *resolver) parseJump(path string, n *yaml.Node) (Jump, error) {
	var j Jump
	if resolveAlias(n) == nil || resolveAlias(n).Kind != yaml.MappingNode {
		return j, parseErrorf(path, "expected a jump mapping, got %s", kindName(n))
	}
	err := eachPair(path, n, func(key string, val *yaml.Node) error {
		p := join(path, key)
		var err error
		switch key {
		case "node":
			j.Node, err = scalarString(p, val)
		case "description":
			j.Description, err = scalarString(p, val)
		case "actions":
			j.Actions, err = r.actionSlots(p, val)
		default:
			err = parseErrorf(p, "unknown jump field")
		}
		return err
	})
	return j, err
}

// parseActionData decodes a directive mapping or a list of them. Parameterized templates
// (a mapping with parameters/actions instead of target) are rejected.
func (r *resolver) parseActionData(path string, n *yaml.Node) (ActionData, error) {
	n = resolveAlias(n)
	switch {
	case n != nil && n.Kind == yaml.MappingNode:
		if field(n, "target") == nil {
			if field(n, "parameters") != nil || field(n, "actions") != nil {
				return ActionData{}, &ParseError{Path: path, Msg: "parameterized action", Err: ErrUnsupported}
			}
			return ActionData{}, parseErrorf(path, "directive has no target")
		}
		d, err := r.parseDirective(path, n)
		if err != nil {
			return ActionData{}, err
		}
		return SingleDirective(d), nil
	case n != nil && n.Kind == yaml.SequenceNode:
		steps := make([]Directive, 0, len(n.Content))
		for i, c := range n.Content {
			p := at(path, i)
			if resolveAlias(c).Kind != yaml.MappingNode {
				return ActionData{}, parseErrorf(p, "expected a directive mapping, got %s", kindName(c))
			}
			d, err := r.parseDirective(p, c)
			if err != nil {
				return ActionData{}, err
			}
			steps = append(steps, d)
		}
		return DirectiveList(steps...), nil
	default:
		return ActionData{}, parseErrorf(path, "expected a directive or a list of directives, got %s", kindName(n))
	}
}

func (r *resolver) parseDirective(path string, n *yaml.Node) (Directive, error) {
	var d Directive
	err := eachPair(path, n, func(key string, val *yaml.Node) error {
		p := join(path, key)
		var err error
		switch key {
		case "target":
			d.Target, err = scalarString(p, val)
		case "desc":
			d.Desc, err = scalarString(p, val)
		case "cmd":
			d.Cmd, err = scalarString(p, val)
		case "params":
			d.Params, err = parseParams(p, val)
		case "assets":
			d.Assets, err = r.assetSlots(p, val)
		default:
			err = parseErrorf(p, "unknown directive field")
		}
		return err
	})
	return d, err
}

func (r *resolver) assetSlots(path string, n *yaml.Node) ([]string, error) {
	n = resolveAlias(n)
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, parseErrorf(path, "expected a list of assets, got %s", kindName(n))
	}
	out := make([]string, 0, len(n.Content))
	for i, c := range n.Content {
		name, err := r.assetSlot(at(path, i), c)
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

func parseParams(path string, n *yaml.Node) (*Params, error) {
	p := &Params{}
	err := eachPair(path, n, func(key string, val *yaml.Node) error {
		v, err := paramValue(val)
		if err != nil {
			return &ParseError{Path: join(path, key), Msg: "bad parameter value", Err: err}
		}
		p.Set(key, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func parseAssetData(path string, n *yaml.Node) (AssetData, error) {
	var a AssetData
	if resolveAlias(n) == nil || resolveAlias(n).Kind != yaml.MappingNode {
		return a, parseErrorf(path, "expected an asset mapping, got %s", kindName(n))
	}
	err := eachPair(path, n, func(key string, val *yaml.Node) error {
		p := join(path, key)
		if key != "path" {
			return parseErrorf(p, "unknown asset field")
		}
		var err error
		a.Path, err = scalarString(p, val)
		return err
	})
	if err == nil && field(n, "path") == nil {
		err = parseErrorf(path, "asset has no path")
	}
	return a, err
}

func (r *resolver) parseUI(path string, n *yaml.Node) (UIConfig, error) {
	var ui UIConfig
	err := eachPair(path, n, func(key string, val *yaml.Node) error {
		p := join(path, key)
		if key != "shortcuts" {
			return parseErrorf(p, "unknown ui field")
		}
		if isNull(val) {
			return nil
		}
		if val.Kind != yaml.SequenceNode {
			return parseErrorf(p, "expected a list of shortcuts, got %s", kindName(val))
		}
		ui.Shortcuts = make([]Shortcut, 0, len(val.Content))
		for i, c := range val.Content {
			sc, err := r.parseShortcut(at(p, i), c)
			if err != nil {
				return err
			}
			ui.Shortcuts = append(ui.Shortcuts, sc)
		}
		return nil
	})
	return ui, err
}

func (r *resolver) parseShortcut(path string, n *yaml.Node) (Shortcut, error) {
	var sc Shortcut
	if resolveAlias(n) == nil || resolveAlias(n).Kind != yaml.MappingNode {
		return sc, parseErrorf(path, "expected a shortcut mapping, got %s", kindName(n))
	}
	err := eachPair(path, n, func(key string, val *yaml.Node) error {
		p := join(path, key)
		var err error
		switch key {
		case "title":
			sc.Title, err = scalarString(p, val)
		case "hotkey":
			sc.Hotkey, err = parseHotkey(p, val)
		case "actions":
			sc.Actions, err = r.actionSlots(p, val)
		default:
			err = parseErrorf(p, "unknown shortcut field")
		}
		return err
	})
	if err == nil && sc.Actions == nil {
		sc.Actions = []string{}
	}
	return sc, err
}

func parseHotkey(path string, n *yaml.Node) (*Hotkey, error) {
	if isNull(n) {
		return nil, nil
	}
	hk := &Hotkey{}
	err := eachPair(path, n, func(key string, val *yaml.Node) error {
		p := join(path, key)
		switch key {
		case "key":
			var err error
			hk.Key, err = scalarString(p, val)
			return err
		case "modifiers":
			if isNull(val) {
				return nil
			}
			if val.Kind != yaml.SequenceNode {
				return parseErrorf(p, "expected a list of modifiers, got %s", kindName(val))
			}
			for i, c := range val.Content {
				s, err := scalarString(at(p, i), c)
				if err != nil {
					return err
				}
				m := Modifier(s)
				if !m.valid() {
					return parseErrorf(at(p, i), "unknown modifier %q", s)
				}
				hk.Modifiers = append(hk.Modifiers, m)
			}
			return nil
		default:
			return parseErrorf(p, "unknown hotkey field")
		}
	})
	return hk, err
}

// decodeScalar decodes an optional scalar; null yields nil.
func decodeScalar[T any](path string, n *yaml.Node) (*T, error) {
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.ScalarNode {
		return nil, parseErrorf(path, "expected a scalar, got %s", kindName(n))
	}
	var v T
	if err := n.Decode(&v); err != nil {
		return nil, &ParseError{Path: path, Msg: fmt.Sprintf("invalid %T", v), Err: err}
	}
	return &v, nil
}
