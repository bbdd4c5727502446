/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"opuseditor/internal/commands"
	"opuseditor/internal/opus"
)

const cueDoc = `startNode: intro
nodes:
  intro:
    next:
      - node: hall
        description: Enter
        actions: [title]
    prompt: Welcome to the lighthouse
    pdfPage: 2
    lineNumber: 14
    actions:
      - title
  hall:
    next: intro
    prompt: A dusty hall
action_templates:
  title:
    target: image
    desc: Title card
    cmd: show
    assets: [card]
assets:
  card:
    path: media/card.png
`

func loadCueDoc(t *testing.T) (*opus.Opus, *commands.Catalog) {
	t.Helper()
	o := opus.New()
	if err := o.LoadBytes([]byte(cueDoc)); err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	cat, err := commands.LoadDir(filepath.Join("..", "commands", "testdata"))
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	return o, cat
}

func TestExportCueSheetPDF_CreatesFile(t *testing.T) {
	o, cat := loadCueDoc(t)
	out := filepath.Join(t.TempDir(), "exports", "cues.pdf")
	if err := ExportCueSheetPDF(o, cat, out, CueSheetOptions{Title: "Lighthouse"}); err != nil {
		t.Fatalf("export: %v", err)
	}
	st, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Size() <= 0 {
		t.Fatalf("pdf file empty")
	}
}

func TestWriteCueSheetPDF_ContainsNodesAndDescriptions(t *testing.T) {
	o, cat := loadCueDoc(t)
	var buf bytes.Buffer
	if err := WriteCueSheetPDF(&buf, o, cat, CueSheetOptions{Uncompressed: true, PageSize: "Letter"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := buf.String()
	if !strings.HasPrefix(s, "%PDF-") {
		t.Fatalf("not a pdf")
	}
	for _, want := range []string{"intro  [start]", "Welcome to the lighthouse", "page 2, line 14", "title: Show an image \\(card.png\\)", "-> hall: Enter", "-> intro"} {
		if !strings.Contains(s, want) {
			t.Fatalf("pdf missing %q", want)
		}
	}
}

func TestCueSheetSelectsNodesAndNeedsDocument(t *testing.T) {
	o, cat := loadCueDoc(t)
	pdf, err := buildCueSheet(o, cat, CueSheetOptions{Nodes: []string{"hall", "nope"}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if pdf.PageCount() != 1 {
		t.Fatalf("expected a single page, got %d", pdf.PageCount())
	}
	if got := selectNodes(o, []string{"hall", "nope"}); len(got) != 1 || got[0].Name != "hall" {
		t.Fatalf("selectNodes = %+v", got)
	}
	if err := WriteCueSheetPDF(&bytes.Buffer{}, opus.New(), cat, CueSheetOptions{}); err != opus.ErrNotLoaded {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}
