/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package commands

import (
	"errors"
	"reflect"
	"testing"

	"opuseditor/internal/opus"
)

func loadTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := LoadDir("testdata")
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	return c
}

func TestLoadDirFlattensParameters(t *testing.T) {
	c := loadTestCatalog(t)
	if got := c.Components(); !reflect.DeepEqual(got, []string{"audio", "image"}) {
		t.Fatalf("components = %v", got)
	}
	cmd, ok := c.Lookup("audio", "create")
	if !ok {
		t.Fatalf("audio:create not found")
	}
	if cmd.Title != "Play audio" || cmd.MinAssets != 1 || cmd.MaxAssets != 1 {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	var names []string
	for _, p := range cmd.Parameters {
		names = append(names, p.Name)
	}
	want := []string{"entityId", "volume", "loop", "fade -> in", "fade -> out"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("parameters = %v, want %v", names, want)
	}
	byName := map[string]Parameter{}
	for _, p := range cmd.Parameters {
		byName[p.Name] = p
	}
	if p := byName["entityId"]; !p.Required || p.Type != ParamString || p.Title != "Entity id" {
		t.Fatalf("entityId = %+v", p)
	}
	if p := byName["volume"]; p.Required || p.Type != ParamNumber || p.Min == nil || *p.Min != 0 || p.Max == nil || *p.Max != 1 {
		t.Fatalf("volume = %+v", p)
	}
	if p := byName["loop"]; p.Type != ParamBoolean || len(p.EnumValues) != 2 {
		t.Fatalf("loop = %+v", p)
	}
	if p := byName["fade -> in"]; !p.Required || !reflect.DeepEqual(p.DataPath, []string{"fade", "in"}) {
		t.Fatalf("fade -> in = %+v", p)
	}
	if p := byName["fade -> out"]; p.Required {
		t.Fatalf("fade -> out should be optional")
	}

	img, _ := c.Lookup("image", "show")
	if img.Title != "Show an image" {
		t.Fatalf("title should fall back to description, got %q", img.Title)
	}
	if img.Parameters[0].Type != ParamEnum || !reflect.DeepEqual(img.Parameters[0].EnumValues, []string{"back", "front"}) {
		t.Fatalf("layer = %+v", img.Parameters[0])
	}
	if len(c.Commands("audio")) != 2 || c.Commands("video") != nil {
		t.Fatalf("unexpected Commands result")
	}
}

func TestValidate(t *testing.T) {
	c := loadTestCatalog(t)
	ok := opus.Directive{
		Target: "audio", Cmd: "create",
		Params: opus.NewParams("entityId", "x", "fade", map[string]any{"in": 1.5}),
		Assets: []string{"theme"},
	}
	if err := c.Validate(ok); err != nil {
		t.Fatalf("valid directive rejected: %v", err)
	}

	missing := ok
	missing.Params = opus.NewParams("fade", map[string]any{"in": 1})
	var verr *ValidationError
	if err := c.Validate(missing); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for missing entityId, got %v", err)
	}

	tooMany := ok
	tooMany.Assets = []string{"a", "b"}
	if err := c.Validate(tooMany); !errors.As(err, &verr) || len(verr.Problems) != 1 {
		t.Fatalf("expected one asset bound problem, got %v", err)
	}

	if err := c.Validate(opus.Directive{Target: "video", Cmd: "play"}); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestAddSchemaRejectsBrokenFiles(t *testing.T) {
	c := NewCatalog()
	if err := c.AddSchema([]byte("{not json")); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := c.AddSchema([]byte(`{"oneOf":[{"properties":{"cmd":{"const":"x"}}}]}`)); err == nil {
		t.Fatalf("expected error for command without target")
	}
}
