/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package playback test-fires actions at show components over MQTT.
package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	applog "opuseditor/internal/log"
	"opuseditor/internal/opus"
)

// Publisher sends a payload to a topic. *Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// AssetRef is an asset as sent to a component.
type AssetRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Cue is the JSON message published for one directive.
type Cue struct {
	ID     string         `json:"id"`
	Action string         `json:"action"`
	Step   int            `json:"step"`
	Target string         `json:"target"`
	Cmd    string         `json:"cmd,omitempty"`
	Desc   string         `json:"desc,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	Assets []AssetRef     `json:"assets,omitempty"`
}

// Firer turns actions into cues and publishes them to <prefix>/<target>.
type Firer struct {
	pub    Publisher
	prefix string
	newID  func() string
	log    *slog.Logger
}

// NewFirer returns a Firer publishing under prefix.
func NewFirer(pub Publisher, prefix string) *Firer {
	return &Firer{
		pub:    pub,
		prefix: strings.Trim(prefix, "/"),
		newID:  uuid.NewString,
		log:    applog.WithComponent("playback"),
	}
}

// Topic returns the topic a directive for target is published to.
func (f *Firer) Topic(target string) string {
	if f.prefix == "" {
		return target
	}
	return f.prefix + "/" + target
}

// Cues builds the messages for the action called name without publishing them.
// All cues of one firing share an ID.
func (f *Firer) Cues(o *opus.Opus, name string) ([]Cue, error) {
	a, ok := o.Action(name)
	if !ok {
		return nil, &opus.LookupError{Category: opus.CategoryActions, Name: name}
	}
	if len(a.Data.Steps) == 0 {
		return nil, fmt.Errorf("action %s: %w", name, opus.ErrUnsupported)
	}
	id := f.newID()
	cues := make([]Cue, 0, len(a.Data.Steps))
	for i, d := range a.Data.Steps {
		if strings.TrimSpace(d.Target) == "" {
			return nil, fmt.Errorf("action %s step %d: empty target", name, i)
		}
		c := Cue{ID: id, Action: name, Step: i, Target: d.Target, Cmd: d.Cmd, Desc: d.Desc}
		if d.Params.Len() > 0 {
			c.Params = d.Params.Map()
		}
		for _, an := range d.Assets {
			path, ok := o.FindPathByAsset(an)
			if !ok {
				f.log.Warn("cue refers to unknown asset", slog.String("action", name), slog.Any("err", &opus.LookupError{Category: opus.CategoryAssets, Name: an}))
			}
			c.Assets = append(c.Assets, AssetRef{Name: an, Path: path})
		}
		cues = append(cues, c)
	}
	return cues, nil
}

// Fire publishes every directive of the action called name, in order. It stops at the first
// failed publish and returns the number of cues sent.
func (f *Firer) Fire(o *opus.Opus, name string) (int, error) {
	l := applog.WithOperation(f.log, "fire")
	ctx := applog.WithEntity(context.Background(), string(opus.CategoryActions), name)
	cues, err := f.Cues(o, name)
	if err != nil {
		l.ErrorContext(ctx, "cannot fire action", slog.Any("err", err))
		return 0, err
	}
	for i, c := range cues {
		payload, err := json.Marshal(c)
		if err != nil {
			return i, fmt.Errorf("encode cue %d: %w", i, err)
		}
		topic := f.Topic(c.Target)
		if err := f.pub.Publish(topic, payload); err != nil {
			l.ErrorContext(ctx, "publish failed", slog.String("topic", topic), slog.Any("err", err))
			return i, fmt.Errorf("publish %s: %w", topic, err)
		}
		l.DebugContext(ctx, "cue sent", slog.String("topic", topic), slog.String("id", c.ID))
	}
	l.InfoContext(ctx, "action fired", slog.Int("cues", len(cues)))
	return len(cues), nil
}
