/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"opuseditor/internal/commands"
	"opuseditor/internal/config"
	"opuseditor/internal/crash"
	"opuseditor/internal/export"
	applog "opuseditor/internal/log"
	"opuseditor/internal/playback"
	"opuseditor/internal/session"
	"opuseditor/internal/storage"
	"opuseditor/internal/undo"
	"opuseditor/internal/version"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "Opus Editor")
	fmt.Fprintf(w, "Version: %s\n", version.String())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  opuseditor version|-v|--version          Show version")
	fmt.Fprintln(w, "  opuseditor new <file>                    Create a default document at <file>")
	fmt.Fprintln(w, "  opuseditor open <file>                   Open document and print summary")
	fmt.Fprintln(w, "  opuseditor check <file>                  Load, report round trip differences and dangling references")
	fmt.Fprintln(w, "  opuseditor save <file>                   Rewrite document in normal form (creates backup)")
	fmt.Fprintln(w, "  opuseditor recover <file>                Replace document with its newest backup")
	fmt.Fprintln(w, "  opuseditor describe <file>               Describe every action")
	fmt.Fprintln(w, "  opuseditor search <file> <query>         Full-text search over prompts, descriptions and assets")
	fmt.Fprintln(w, "  opuseditor where <file> <kind> <name>    List slots using node|action|asset <name>")
	fmt.Fprintln(w, "  opuseditor cuesheet <file> <out.pdf>     Export a PDF cue sheet")
	fmt.Fprintln(w, "  opuseditor fire <file> <action>          Publish an action's directives over MQTT")
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// env bundles what every subcommand needs.
type env struct {
	cfg      config.AppConfig
	password string
	sess     *session.Session
	out      io.Writer
	l        *slog.Logger
}

func run(args []string, out io.Writer) int {
	cfg, password, err := config.Load()
	if err != nil {
		fmt.Fprintln(out, "Warning: config:", err)
	}
	// initialize structured logging from config (env overrides already applied)
	applog.Init(cfg.Logging.LogOptions())
	l := applog.WithComponent("cli")

	catalog := commands.NewCatalog()
	if dir := cfg.General.CommandsDir; dir != "" {
		if c, err := commands.LoadDir(dir); err != nil {
			l.Warn("command catalog unavailable", slog.String("dir", dir), slog.Any("err", err))
		} else {
			catalog = c
		}
	}
	sess := session.New(session.Options{
		KeepBackups: cfg.General.KeepBackups,
		Catalog:     catalog,
		Undo:        undo.Config{MaxDepth: cfg.Undo.MaxDepth, MaxBytes: cfg.Undo.MaxBytes},
	})
	defer crash.Recover(sess)

	l.Debug("start", slog.Int("args", len(args)))
	if len(args) == 0 {
		usage(out)
		return 0
	}
	e := &env{cfg: cfg, password: password, sess: sess, out: out, l: l}
	cmd, rest := args[0], args[1:]
	need := func(n int, what string) bool {
		if len(rest) < n {
			fmt.Fprintf(out, "%s requires %s\n", cmd, what)
			usage(out)
			return false
		}
		return true
	}
	switch cmd {
	case "version", "--version", "-v":
		fmt.Fprintln(out, version.String())
		return 0
	case "new":
		if !need(1, "<file>") {
			return 2
		}
		return e.create(rest[0])
	case "open":
		if !need(1, "<file>") {
			return 2
		}
		return e.open(rest[0])
	case "check":
		if !need(1, "<file>") {
			return 2
		}
		return e.check(rest[0])
	case "save":
		if !need(1, "<file>") {
			return 2
		}
		return e.save(rest[0])
	case "recover":
		if !need(1, "<file>") {
			return 2
		}
		return e.restore(rest[0])
	case "describe":
		if !need(1, "<file>") {
			return 2
		}
		return e.describe(rest[0])
	case "search":
		if !need(2, "<file> and <query>") {
			return 2
		}
		return e.search(rest[0], strings.Join(rest[1:], " "))
	case "where":
		if !need(3, "<file>, <kind> and <name>") {
			return 2
		}
		return e.where(rest[0], rest[1], rest[2])
	case "cuesheet":
		if !need(2, "<file> and <out.pdf>") {
			return 2
		}
		return e.cuesheet(rest[0], rest[1])
	case "fire":
		if !need(2, "<file> and <action>") {
			return 2
		}
		return e.fire(rest[0], rest[1])
	}
	usage(out)
	return 2
}

func (e *env) load(file string) bool {
	abs, _ := filepath.Abs(file)
	if !e.sess.Open(abs) {
		fmt.Fprintln(e.out, "Error: could not open", abs, "(see log)")
		return false
	}
	return true
}

func (e *env) create(file string) int {
	abs, _ := filepath.Abs(file)
	if !e.sess.Create(abs) {
		fmt.Fprintln(e.out, "Error: could not create", abs)
		return 1
	}
	fmt.Fprintln(e.out, "Created document at", abs)
	return 0
}

func (e *env) open(file string) int {
	if !e.load(file) {
		return 1
	}
	o := e.sess.Opus()
	fmt.Fprintf(e.out, "Opened document: %s\n", e.sess.CurrentFile())
	fmt.Fprintf(e.out, "Start node: %s\n", o.StartNode())
	fmt.Fprintf(e.out, "Contents: %s\n", o.Report())
	return 0
}

func (e *env) check(file string) int {
	if !e.load(file) {
		return 1
	}
	o := e.sess.Opus()
	code := 0
	if d := o.RoundTripDiff(); d != "" {
		fmt.Fprintf(e.out, "Round trip differences (-read +saved):\n%s\n", d)
	} else {
		fmt.Fprintln(e.out, "Round trip: clean")
	}
	for _, le := range o.DanglingReferences() {
		fmt.Fprintln(e.out, "Dangling:", le)
		code = 1
	}
	// without a catalog every command is unknown
	if cat := e.sess.Catalog(); len(cat.Components()) > 0 {
		for _, a := range o.Actions() {
			for _, d := range a.Data.Steps {
				if err := cat.Validate(d); err != nil {
					fmt.Fprintf(e.out, "Action %s: %v\n", a.Name, err)
					code = 1
				}
			}
		}
	}
	return code
}

func (e *env) save(file string) int {
	if !e.load(file) {
		return 1
	}
	if !e.sess.Save() {
		fmt.Fprintln(e.out, "Error: save failed (see log)")
		return 1
	}
	fmt.Fprintln(e.out, "Saved document and created a backup of the previous version.")
	return 0
}

func (e *env) restore(file string) int {
	abs, _ := filepath.Abs(file)
	if !e.sess.RecoverFromBackup(abs) || !e.sess.Save() {
		fmt.Fprintln(e.out, "Error: recovery failed (see log)")
		return 1
	}
	fmt.Fprintln(e.out, "Restored", abs, "from its newest backup")
	return 0
}

func (e *env) describe(file string) int {
	if !e.load(file) {
		return 1
	}
	desc := e.sess.ActionDescriptions()
	names := make([]string, 0, len(desc))
	for name := range desc {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(e.out, "%s: %s\n", name, desc[name])
	}
	return 0
}

func (e *env) search(file, query string) int {
	if !e.load(file) {
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := e.sess.Search(ctx, storage.SearchQuery{Text: query})
	if err != nil {
		fmt.Fprintln(e.out, "Error:", err)
		return 1
	}
	for _, r := range res {
		fmt.Fprintf(e.out, "%s %s %s: %s\n", r.Kind, r.Name, r.Field, r.Snippet)
	}
	fmt.Fprintf(e.out, "%d result(s)\n", len(res))
	return 0
}

func (e *env) where(file, kind, name string) int {
	if !e.load(file) {
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	used, err := e.sess.WhereUsed(ctx, kind, name)
	if err != nil {
		fmt.Fprintln(e.out, "Error:", err)
		return 1
	}
	for _, u := range used {
		fmt.Fprintln(e.out, u.Slot)
	}
	fmt.Fprintf(e.out, "%d usage(s)\n", len(used))
	return 0
}

func (e *env) cuesheet(file, outPath string) int {
	if !e.load(file) {
		return 1
	}
	title := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	if err := export.ExportCueSheetPDF(e.sess.Opus(), e.sess.Catalog(), outPath, export.CueSheetOptions{Title: title}); err != nil {
		e.l.Error("cue sheet export failed", slog.Any("err", err))
		fmt.Fprintln(e.out, "Error:", err)
		return 1
	}
	fmt.Fprintln(e.out, "Wrote", outPath)
	return 0
}

func (e *env) fire(file, action string) int {
	if !e.load(file) {
		return 1
	}
	pc := e.cfg.Playback
	client := playback.NewClient(playback.ClientConfig{
		BrokerURL: pc.BrokerURL,
		ClientID:  pc.ClientID,
		Username:  pc.Username,
		Password:  e.password,
		Timeout:   pc.Timeout(),
	})
	if err := client.Connect(); err != nil {
		e.l.Error("broker unavailable", slog.String("broker", pc.BrokerURL), slog.Any("err", err))
		fmt.Fprintln(e.out, "Error:", err)
		return 1
	}
	defer client.Disconnect()
	n, err := playback.NewFirer(client, pc.TopicPrefix).Fire(e.sess.Opus(), action)
	if err != nil {
		fmt.Fprintln(e.out, "Error:", err)
		if _, ok := e.sess.Opus().Action(action); !ok {
			return 2
		}
		return 1
	}
	fmt.Fprintf(e.out, "Fired %s: %d cue(s)\n", action, n)
	return 0
}
