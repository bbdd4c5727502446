/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package commands

import (
	"fmt"
	"strings"

	"opuseditor/internal/opus"
)

// AssetLookup resolves asset names. *opus.Opus implements it.
type AssetLookup interface {
	Asset(name string) (opus.Asset, bool)
}

// Describe renders a one-line summary of an action, joining its directives with ", ".
// An action without directives describes as "".
func (c *Catalog) Describe(a opus.Action, assets AssetLookup) string {
	parts := make([]string, 0, len(a.Data.Steps))
	for _, d := range a.Data.Steps {
		parts = append(parts, c.DescribeDirective(d, assets))
	}
	return strings.Join(parts, ", ")
}

// DescribeDirective renders the catalog title of a directive with its asset file names and entityId.
// Unknown commands render as "target:cmd".
func (c *Catalog) DescribeDirective(d opus.Directive, assets AssetLookup) string {
	cmd, ok := c.Lookup(d.Target, d.Cmd)
	if !ok {
		return d.Target + ":" + d.Cmd
	}
	var b strings.Builder
	b.WriteString(cmd.Title)
	if len(d.Assets) > 0 {
		names := make([]string, 0, len(d.Assets))
		for _, name := range d.Assets {
			names = append(names, assetLabel(name, assets))
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(names, ", "))
	}
	if v, ok := d.Params.Get("entityId"); ok {
		fmt.Fprintf(&b, " entityId=%v", v)
	}
	return b.String()
}

func assetLabel(name string, assets AssetLookup) string {
	if assets == nil {
		return name
	}
	a, ok := assets.Asset(name)
	if !ok {
		return name
	}
	p := a.Path()
	return p[strings.LastIndex(p, "/")+1:]
}
