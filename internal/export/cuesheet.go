/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders documents to formats for people who do not run the editor.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"opuseditor/internal/commands"
	"opuseditor/internal/opus"
)

// CueSheetOptions controls cue sheet export.
// Units are points (pt). Built-in Helvetica keeps text vector without embedding.
type CueSheetOptions struct {
	Title    string
	PageSize string   // "A4" (default) or "Letter"
	Nodes    []string // if empty, export all nodes in document order
	// Uncompressed disables stream compression, which makes the output greppable.
	Uncompressed bool
}

const (
	margin   = 36.0
	bodySize = 10.0
	lineH    = bodySize * 1.35
)

// ExportCueSheetPDF writes the cue sheet of o to outPath, creating parent directories.
func ExportCueSheetPDF(o *opus.Opus, cat *commands.Catalog, outPath string, opt CueSheetOptions) error {
	if strings.TrimSpace(outPath) == "" {
		return fmt.Errorf("output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	pdf, err := buildCueSheet(o, cat, opt)
	if err != nil {
		return err
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// WriteCueSheetPDF renders the cue sheet of o to w.
func WriteCueSheetPDF(w io.Writer, o *opus.Opus, cat *commands.Catalog, opt CueSheetOptions) error {
	pdf, err := buildCueSheet(o, cat, opt)
	if err != nil {
		return err
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func buildCueSheet(o *opus.Opus, cat *commands.Catalog, opt CueSheetOptions) (*gofpdf.Fpdf, error) {
	if o == nil || !o.Loaded() {
		return nil, opus.ErrNotLoaded
	}
	if cat == nil {
		cat = commands.NewCatalog()
	}
	size := opt.PageSize
	if size == "" {
		size = "A4"
	}
	pdf := gofpdf.New("P", "pt", size, "")
	pdf.SetCompression(!opt.Uncompressed)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	title := opt.Title
	if title == "" {
		title = "Cue sheet"
	}
	pdf.SetTitle(title, true)
	pdf.SetAuthor("Opus Editor", false)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-margin + 8)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("%s  -  page %d", tr(title), pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 22, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", bodySize)
	pdf.CellFormat(0, lineH, tr(fmt.Sprintf("Start node: %s   (%s)", o.StartNode(), o.Report())), "", 1, "L", false, 0, "")
	pdf.Ln(lineH / 2)

	describe := func(name string) string {
		a, ok := o.Action(name)
		if !ok {
			return name + " (missing)"
		}
		d := cat.Describe(a, o)
		if !a.IsInline {
			d = name + ": " + d
		}
		return d
	}

	for _, n := range selectNodes(o, opt.Nodes) {
		heading := n.Name
		if n.Name == o.StartNode() {
			heading += "  [start]"
		}
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetFillColor(230, 230, 230)
		pdf.CellFormat(0, 16, tr(heading), "", 1, "L", true, 0, "")

		pdf.SetFont("Helvetica", "I", 8)
		if pos := position(n); pos != "" {
			pdf.CellFormat(0, lineH, tr(pos), "", 1, "L", false, 0, "")
		}
		pdf.SetFont("Helvetica", "", bodySize)
		pdf.MultiCell(0, lineH, tr(n.Prompt), "", "L", false)

		for _, a := range n.Actions {
			pdf.CellFormat(0, lineH, tr("* "+describe(a)), "", 1, "L", false, 0, "")
		}
		if n.Next.IsBranching() {
			for _, j := range n.Next.Branches {
				line := "-> " + j.Node
				if j.Description != "" {
					line += ": " + j.Description
				}
				pdf.CellFormat(0, lineH, tr(line), "", 1, "L", false, 0, "")
				for _, a := range j.Actions {
					pdf.CellFormat(0, lineH, tr("     * "+describe(a)), "", 1, "L", false, 0, "")
				}
			}
		} else {
			pdf.CellFormat(0, lineH, tr("-> "+n.Next.Target), "", 1, "L", false, 0, "")
		}
		pdf.Ln(lineH / 2)
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render cue sheet: %w", err)
	}
	return pdf, nil
}

func selectNodes(o *opus.Opus, names []string) []opus.Node {
	if len(names) == 0 {
		return o.Nodes()
	}
	out := make([]opus.Node, 0, len(names))
	for _, name := range names {
		if n, ok := o.Node(name); ok {
			out = append(out, n)
		}
	}
	return out
}

// position renders where the node sits in the source script.
func position(n opus.Node) string {
	var parts []string
	if n.PDFPage != nil {
		parts = append(parts, fmt.Sprintf("page %d", *n.PDFPage))
	}
	if n.PDFLocationOnPage != nil {
		parts = append(parts, fmt.Sprintf("at %.0f%%", *n.PDFLocationOnPage*100))
	}
	if n.LineNumber != nil {
		parts = append(parts, fmt.Sprintf("line %d", *n.LineNumber))
	}
	return strings.Join(parts, ", ")
}
