/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package opus

import (
	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

// optionalSections are written on save even when the input left them out.
var optionalSections = []string{"action_templates", "assets", "ui"}

// checkRoundTrip compares the parsed input with what saving would write and returns
// a human readable diff, empty when they are structurally equal.
func checkRoundTrip(input any, saved *yaml.Node) (string, error) {
	out, err := toPlain(saved)
	if err != nil {
		return "", err
	}
	if m, ok := input.(map[string]any); ok {
		in := make(map[string]any, len(m)+len(optionalSections))
		for k, v := range m {
			in[k] = v
		}
		for _, k := range optionalSections {
			if in[k] == nil {
				in[k] = map[string]any{}
			}
		}
		input = in
	}
	return cmp.Diff(input, out), nil
}
