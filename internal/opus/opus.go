/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package opus

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	applog "opuseditor/internal/log"

	"gopkg.in/yaml.v3"
)

// DefaultNodeName is the single node created by CreateDefault.
const DefaultNodeName = "default"

// State is the load state of an Opus.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// Option configures an Opus.
type Option func(*Opus)

// WithNameAllocator sets the allocator used for generated entity names.
func WithNameAllocator(a *NameAllocator) Option {
	return func(o *Opus) {
		if a != nil {
			o.alloc = a
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Opus) {
		if l != nil {
			o.log = l
		}
	}
}

// Opus is the in-memory document. It owns the node, action and asset tables, the start node
// and the UI configuration. Listeners run synchronously after each committed change.
type Opus struct {
	alloc *NameAllocator
	log   *slog.Logger

	state     State
	nodes     *EntityTable[Node]
	actions   *EntityTable[Action]
	assets    *EntityTable[Asset]
	startNode string
	ui        UIConfig

	inhibit  bool
	changes  listeners[Change]
	loaded   listeners[bool]
	updated  listeners[struct{}]
	lastDiff string
}

// New returns an unloaded Opus.
func New(opts ...Option) *Opus {
	o := &Opus{}
	for _, opt := range opts {
		opt(o)
	}
	if o.alloc == nil {
		o.alloc = NewNameAllocator(nil)
	}
	if o.log == nil {
		o.log = applog.WithComponent("opus")
	}
	o.nodes = newEntityTable[Node]("node", o.alloc)
	o.actions = newEntityTable[Action]("action", o.alloc)
	o.assets = newEntityTable[Asset]("asset", o.alloc)
	return o
}

func (o *Opus) clear() {
	o.nodes.reset()
	o.actions.reset()
	o.assets.reset()
	o.startNode = ""
	o.ui = UIConfig{}
	o.lastDiff = ""
}

// Load replaces the document with the YAML read from r. On failure the Opus ends up unloaded.
func (o *Opus) Load(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		o.failLoad(applog.WithOperation(o.log, "load"), err)
		return &IOError{Op: "read", Err: err}
	}
	return o.LoadBytes(data)
}

// LoadBytes replaces the document with data.
func (o *Opus) LoadBytes(data []byte) error {
	l := applog.WithOperation(o.log, "load")
	o.clear()
	o.state = StateLoading
	o.inhibit = true
	input, err := o.parse(data)
	o.inhibit = false
	if err != nil {
		o.failLoad(l, err)
		return err
	}
	o.state = StateLoaded

	r := &resolver{o: o}
	diff, err := checkRoundTrip(input, r.document())
	switch {
	case err != nil:
		l.Warn("round-trip check skipped", slog.Any("err", err))
	case diff != "":
		o.lastDiff = diff
		l.Warn("document does not round-trip, saving will change it", slog.String("diff", diff))
	default:
		l.Debug("round-trip check passed")
	}
	rep := o.Report()
	l.Info("opus loaded",
		slog.Int("nodes", rep.Nodes),
		slog.Int("actions", rep.Actions),
		slog.Int("assets", rep.Assets),
		slog.Int("shortcuts", rep.Shortcuts),
	)
	o.loaded.emit(true)
	o.updated.emit(struct{}{})
	return nil
}

func (o *Opus) failLoad(l *slog.Logger, err error) {
	o.clear()
	o.state = StateUnloaded
	l.Error("failed to load opus", slog.Any("err", err))
	o.loaded.emit(false)
	o.updated.emit(struct{}{})
}

// parse fills the tables from data and returns the plain form of the input for the round-trip check.
// Assets and templates are read before nodes so generated inline names never shadow top-level ones.
func (o *Opus) parse(data []byte) (any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Msg: "invalid yaml", Err: err}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, parseErrorf("", "empty document")
	}
	doc := resolveAlias(root.Content[0])
	input, err := toPlain(doc)
	if err != nil {
		return nil, &ParseError{Msg: "unreadable document", Err: err}
	}
	if err := validateStructure(input); err != nil {
		return nil, err
	}

	r := &resolver{o: o}
	err = eachPair("assets", field(doc, "assets"), func(name string, val *yaml.Node) error {
		a, err := parseAssetData(join("assets", name), val)
		if err != nil {
			return err
		}
		o.assets.Upsert(name, Asset{Data: a})
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = eachPair("action_templates", field(doc, "action_templates"), func(name string, val *yaml.Node) error {
		d, err := r.parseActionData(join("action_templates", name), val)
		if err != nil {
			return err
		}
		o.actions.Upsert(name, Action{Data: d})
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = eachPair("nodes", field(doc, "nodes"), func(name string, val *yaml.Node) error {
		n, err := r.parseNode(join("nodes", name), val)
		if err != nil {
			return err
		}
		o.nodes.Upsert(name, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if o.ui, err = r.parseUI("ui", field(doc, "ui")); err != nil {
		return nil, err
	}
	start, err := scalarString("startNode", field(doc, "startNode"))
	if err != nil {
		return nil, err
	}
	if !o.nodes.Has(start) {
		return nil, &ParseError{Path: "startNode", Msg: fmt.Sprintf("%q is not a node", start), Err: ErrStartNode}
	}
	o.startNode = start
	return input, nil
}

// Save writes the document as YAML to w.
func (o *Opus) Save(w io.Writer) error {
	data, err := o.Marshal()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	o.updated.emit(struct{}{})
	return nil
}

// SaveBytes returns the document as YAML and notifies update listeners like Save.
func (o *Opus) SaveBytes() ([]byte, error) {
	data, err := o.Marshal()
	if err != nil {
		return nil, err
	}
	o.updated.emit(struct{}{})
	return data, nil
}

// Marshal encodes the document without notifying listeners. Dangling references are
// logged and written as bare names.
func (o *Opus) Marshal() ([]byte, error) {
	if o.state != StateLoaded {
		return nil, ErrNotLoaded
	}
	r := &resolver{o: o}
	doc := r.document()
	r.logLookups(applog.WithOperation(o.log, "save"))
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode opus: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode opus: %w", err)
	}
	return buf.Bytes(), nil
}

// CreateDefault replaces the document with a single node that is also the start node.
func (o *Opus) CreateDefault() {
	o.clear()
	o.nodes.Upsert(DefaultNodeName, Node{Prompt: "Initial node", Next: NextTo(DefaultNodeName)})
	o.startNode = DefaultNodeName
	o.state = StateLoaded
	o.changed(CategoryNodes, ChangeUpdated, DefaultNodeName)
	o.loaded.emit(true)
	o.updated.emit(struct{}{})
}

// Unload drops the document.
func (o *Opus) Unload() {
	o.clear()
	o.state = StateUnloaded
	o.loaded.emit(false)
	o.updated.emit(struct{}{})
}

func (o *Opus) changed(cat Category, kind ChangeKind, name string) {
	if o.inhibit {
		return
	}
	o.changes.emit(Change{Category: cat, Kind: kind, Name: name})
}

// UpdateNode stores n under name, or under a fresh name when name is empty, and returns the name used.
func (o *Opus) UpdateNode(name string, n Node) (string, error) {
	if o.state != StateLoaded {
		return "", ErrNotLoaded
	}
	name = o.nodes.Upsert(name, n.clone())
	o.changed(CategoryNodes, ChangeUpdated, name)
	return name, nil
}

// UpdateAction stores an action and returns the name used. Inline actions are only written at their use sites.
func (o *Opus) UpdateAction(name string, inline bool, data ActionData) (string, error) {
	if o.state != StateLoaded {
		return "", ErrNotLoaded
	}
	name = o.actions.Upsert(name, Action{IsInline: inline, Data: data.clone()})
	o.changed(CategoryActions, ChangeUpdated, name)
	return name, nil
}

// UpdateAsset stores an asset and returns the name used.
func (o *Opus) UpdateAsset(name string, inline bool, data AssetData) (string, error) {
	if o.state != StateLoaded {
		return "", ErrNotLoaded
	}
	name = o.assets.Upsert(name, Asset{IsInline: inline, Data: data})
	o.changed(CategoryAssets, ChangeUpdated, name)
	return name, nil
}

// DeleteNode removes a node. It refuses to remove the start node.
func (o *Opus) DeleteNode(name string) bool {
	if name == o.startNode {
		return false
	}
	return o.remove(CategoryNodes, name, o.nodes.Remove)
}

// DeleteAction removes an action. References to it are left in place and reported on save.
func (o *Opus) DeleteAction(name string) bool {
	return o.remove(CategoryActions, name, o.actions.Remove)
}

// DeleteAsset removes an asset. References to it are left in place and reported on save.
func (o *Opus) DeleteAsset(name string) bool {
	return o.remove(CategoryAssets, name, o.assets.Remove)
}

func (o *Opus) remove(cat Category, name string, rm func(string) bool) bool {
	if !rm(name) {
		o.log.Warn("delete ignored", slog.Any("err", &LookupError{Category: cat, Name: name}))
		return false
	}
	if refs := o.References(cat, name); len(refs) > 0 {
		o.log.Warn("deleted entity is still referenced",
			slog.String("category", string(cat)), slog.String("name", name), slog.Int("refs", len(refs)))
	}
	o.changed(cat, ChangeDeleted, name)
	return true
}

// SetStartNode moves the entry point to an existing node.
func (o *Opus) SetStartNode(name string) error {
	if o.state != StateLoaded {
		return ErrNotLoaded
	}
	if !o.nodes.Has(name) {
		return fmt.Errorf("%w: %q", ErrStartNode, name)
	}
	o.startNode = name
	o.changed(CategoryNodes, ChangeUpdated, name)
	return nil
}

// SetUI replaces the shortcut configuration.
func (o *Opus) SetUI(cfg UIConfig) error {
	if o.state != StateLoaded {
		return ErrNotLoaded
	}
	o.ui = cfg.clone()
	o.updated.emit(struct{}{})
	return nil
}

func (o *Opus) State() State { return o.state }

func (o *Opus) Loaded() bool { return o.state == StateLoaded }

func (o *Opus) StartNode() string { return o.startNode }

func (o *Opus) NodeExists(name string) bool { return o.nodes.Has(name) }

// Nodes returns copies of all nodes in insertion order.
func (o *Opus) Nodes() []Node { return o.nodes.Values() }

func (o *Opus) Actions() []Action { return o.actions.Values() }

func (o *Opus) Assets() []Asset { return o.assets.Values() }

func (o *Opus) Node(name string) (Node, bool) {
	n, ok := o.nodes.Get(name)
	return n.clone(), ok
}

func (o *Opus) Action(name string) (Action, bool) {
	a, ok := o.actions.Get(name)
	return a.clone(), ok
}

func (o *Opus) Asset(name string) (Asset, bool) { return o.assets.Get(name) }

func (o *Opus) UI() UIConfig { return o.ui.clone() }

// FindPathByAsset returns the resource path of the named asset.
func (o *Opus) FindPathByAsset(name string) (string, bool) {
	a, ok := o.assets.Get(name)
	if !ok {
		return "", false
	}
	return a.Path(), true
}

// RoundTripDiff returns the difference found by the check that runs after each load, empty when the
// document survives a save unchanged.
func (o *Opus) RoundTripDiff() string { return o.lastDiff }

// Subscribe registers fn for changes of one category and returns a function removing it.
func (o *Opus) Subscribe(cat Category, fn func(Change)) (unsubscribe func()) {
	return o.changes.add(func(c Change) {
		if c.Category == cat {
			fn(c)
		}
	})
}

// SubscribeLoaded registers fn for load state changes.
func (o *Opus) SubscribeLoaded(fn func(loaded bool)) (unsubscribe func()) {
	return o.loaded.add(fn)
}

// SubscribeUpdated registers fn for load, save and UI updates.
func (o *Opus) SubscribeUpdated(fn func()) (unsubscribe func()) {
	return o.updated.add(func(struct{}) { fn() })
}
