/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package commands

import (
	"testing"

	"opuseditor/internal/opus"
)

type assetMap map[string]string

func (m assetMap) Asset(name string) (opus.Asset, bool) {
	p, ok := m[name]
	if !ok {
		return opus.Asset{}, false
	}
	return opus.Asset{Name: name, Data: opus.AssetData{Path: p}}, true
}

func TestDescribe(t *testing.T) {
	c := loadTestCatalog(t)
	assets := assetMap{"theme": "media/audio/theme.ogg", "bg": "bg.png"}

	cases := []struct {
		name string
		data opus.ActionData
		want string
	}{
		{
			name: "catalog title with asset and entity",
			data: opus.SingleDirective(opus.Directive{Target: "audio", Cmd: "create", Params: opus.NewParams("entityId", "x"), Assets: []string{"theme"}}),
			want: "Play audio (theme.ogg) entityId=x",
		},
		{
			name: "unknown command",
			data: opus.SingleDirective(opus.Directive{Target: "light", Cmd: "dim"}),
			want: "light:dim",
		},
		{
			name: "multi step",
			data: opus.DirectiveList(
				opus.Directive{Target: "image", Cmd: "show", Assets: []string{"bg", "gone"}},
				opus.Directive{Target: "audio", Cmd: "destroy", Params: opus.NewParams("entityId", 7)},
			),
			want: "Show an image (bg.png, gone), Stop audio entityId=7",
		},
		{
			name: "no directives",
			data: opus.DirectiveList(),
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Describe(opus.Action{Name: "a", Data: tc.data}, assets)
			if got != tc.want {
				t.Fatalf("Describe = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDescribeWithoutCatalog(t *testing.T) {
	var c *Catalog
	got := c.Describe(opus.Action{Data: opus.SingleDirective(opus.Directive{Target: "audio", Cmd: "create"})}, nil)
	if got != "audio:create" {
		t.Fatalf("nil catalog should fall back to target:cmd, got %q", got)
	}
}
