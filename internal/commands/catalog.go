/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package commands loads the command schemas of playback components and uses them to
// validate and describe action directives.
package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	applog "opuseditor/internal/log"
	"opuseditor/internal/opus"
)

// ErrUnknownCommand is returned by Validate when no schema describes a target/cmd pair.
var ErrUnknownCommand = errors.New("unknown command")

type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamEnum    ParamType = "enum"
	ParamUnknown ParamType = "unknown"
)

// Parameter is one leaf of a command's params object. Nested objects are flattened:
// {"fade": {"in": ...}} becomes Name "fade -> in" with DataPath ["fade", "in"].
type Parameter struct {
	Name        string
	DataPath    []string
	Title       string
	Description string
	Type        ParamType
	Required    bool
	Min         *float64
	Max         *float64
	Default     any
	EnumValues  []string
}

// Command describes one target/cmd pair of a component.
type Command struct {
	Component   string
	Command     string
	Title       string
	Description string
	MinAssets   int
	MaxAssets   int
	Parameters  []Parameter

	// schema is the compiled file the command came from.
	schema *gojsonschema.Schema
}

// Catalog maps component names to their commands. The zero value is empty and usable.
type Catalog struct {
	byComponent map[string][]*Command
}

func NewCatalog() *Catalog { return &Catalog{byComponent: map[string][]*Command{}} }

// LoadDir reads every *.json schema in dir, in name order.
func LoadDir(dir string) (*Catalog, error) {
	l := applog.WithOperation(applog.WithComponent("commands"), "load").With(slog.String("dir", dir))
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	c := NewCatalog()
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read command schema: %w", err)
		}
		if err := c.AddSchema(b); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
	}
	l.Info("command catalog loaded", slog.Int("files", len(files)), slog.Int("components", len(c.byComponent)))
	return c, nil
}

type rawSchema struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	OneOf       []json.RawMessage `json:"oneOf"`
}

type rawCommand struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Properties  struct {
		Target struct {
			Const string `json:"const"`
		} `json:"target"`
		Cmd struct {
			Const string `json:"const"`
		} `json:"cmd"`
		Params *rawParam `json:"params"`
		Assets *struct {
			MinLength int `json:"minLength"`
			MaxLength int `json:"maxLength"`
		} `json:"assets"`
	} `json:"properties"`
}

type rawParam struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Minimum     *float64        `json:"minimum"`
	Maximum     *float64        `json:"maximum"`
	Default     any             `json:"default"`
	Enum        []any           `json:"enum"`
	Properties  json.RawMessage `json:"properties"`
	Required    []string        `json:"required"`
}

// AddSchema registers the commands of one component schema file.
func (c *Catalog) AddSchema(data []byte) error {
	var raw rawSchema
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse command schema: %w", err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("compile command schema: %w", err)
	}
	if c.byComponent == nil {
		c.byComponent = map[string][]*Command{}
	}
	for i, entry := range raw.OneOf {
		var rc rawCommand
		if err := json.Unmarshal(entry, &rc); err != nil {
			return fmt.Errorf("oneOf[%d]: %w", i, err)
		}
		target := rc.Properties.Target.Const
		if target == "" {
			return fmt.Errorf("oneOf[%d]: missing target const", i)
		}
		cmd := &Command{
			Component:   target,
			Command:     rc.Properties.Cmd.Const,
			Title:       firstNonEmpty(rc.Title, rc.Description, "[No title]"),
			Description: rc.Description,
			schema:      schema,
		}
		if a := rc.Properties.Assets; a != nil {
			cmd.MinAssets, cmd.MaxAssets = a.MinLength, a.MaxLength
		}
		if p := rc.Properties.Params; p != nil {
			params, err := flattenParams(p.Properties, p.Required, nil, true)
			if err != nil {
				return fmt.Errorf("oneOf[%d] params: %w", i, err)
			}
			cmd.Parameters = params
		}
		c.byComponent[target] = append(c.byComponent[target], cmd)
	}
	return nil
}

func flattenParams(props json.RawMessage, required, path []string, parentRequired bool) ([]Parameter, error) {
	if len(props) == 0 {
		return nil, nil
	}
	keys, err := objectKeys(props)
	if err != nil {
		return nil, err
	}
	var byName map[string]rawParam
	if err := json.Unmarshal(props, &byName); err != nil {
		return nil, err
	}
	var out []Parameter
	for _, k := range keys {
		rp := byName[k]
		isRequired := contains(required, k)
		dataPath := append(append([]string(nil), path...), k)
		if rp.Type == "object" {
			sub, err := flattenParams(rp.Properties, rp.Required, dataPath, isRequired)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		p := Parameter{
			Name:        strings.Join(dataPath, " -> "),
			DataPath:    dataPath,
			Title:       firstNonEmpty(rp.Title, k),
			Description: firstNonEmpty(rp.Description, k),
			Required:    parentRequired && isRequired,
			Type:        ParamUnknown,
		}
		switch {
		case len(rp.Enum) > 0:
			p.Type = ParamEnum
			for _, v := range rp.Enum {
				p.EnumValues = append(p.EnumValues, fmt.Sprint(v))
			}
		case rp.Type == "string":
			p.Type = ParamString
		case rp.Type == "number" || rp.Type == "integer":
			p.Type = ParamNumber
			p.Min, p.Max, p.Default = rp.Minimum, rp.Maximum, rp.Default
		case rp.Type == "boolean":
			p.Type = ParamBoolean
			p.EnumValues = []string{"true", "false"}
		}
		out = append(out, p)
	}
	return out, nil
}

// objectKeys returns the keys of a JSON object in document order.
func objectKeys(data json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected an object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// Lookup returns the command registered for target and cmd.
func (c *Catalog) Lookup(target, cmd string) (*Command, bool) {
	if c == nil {
		return nil, false
	}
	for _, command := range c.byComponent[target] {
		if command.Command == cmd {
			return command, true
		}
	}
	return nil, false
}

// Components returns the known component names, sorted.
func (c *Catalog) Components() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.byComponent))
	for k := range c.byComponent {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Commands returns the commands of a component in schema order.
func (c *Catalog) Commands(component string) []*Command {
	if c == nil {
		return nil
	}
	return append([]*Command(nil), c.byComponent[component]...)
}

// ValidationError lists the problems of a directive that does not match its command schema.
type ValidationError struct {
	Target   string
	Cmd      string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s:%s: %s", e.Target, e.Cmd, strings.Join(e.Problems, "; "))
}

// Validate checks a directive against the schema of its command and the command's asset bounds.
// A MaxAssets of zero means unbounded.
func (c *Catalog) Validate(d opus.Directive) error {
	cmd, ok := c.Lookup(d.Target, d.Cmd)
	if !ok {
		return fmt.Errorf("%w: %s:%s", ErrUnknownCommand, d.Target, d.Cmd)
	}
	doc := map[string]any{"target": d.Target}
	if d.Cmd != "" {
		doc["cmd"] = d.Cmd
	}
	if d.Desc != "" {
		doc["desc"] = d.Desc
	}
	if d.Params != nil {
		doc["params"] = d.Params.Map()
	}
	if len(d.Assets) > 0 {
		doc["assets"] = append([]string(nil), d.Assets...)
	}
	verr := &ValidationError{Target: d.Target, Cmd: d.Cmd}
	res, err := cmd.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate %s:%s: %w", d.Target, d.Cmd, err)
	}
	if !res.Valid() {
		for _, re := range res.Errors() {
			verr.Problems = append(verr.Problems, re.String())
		}
	}
	if n := len(d.Assets); n < cmd.MinAssets {
		verr.Problems = append(verr.Problems, fmt.Sprintf("needs at least %d assets, has %d", cmd.MinAssets, n))
	} else if cmd.MaxAssets > 0 && n > cmd.MaxAssets {
		verr.Problems = append(verr.Problems, fmt.Sprintf("takes at most %d assets, has %d", cmd.MaxAssets, n))
	}
	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
