/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	applog "opuseditor/internal/log"
	"opuseditor/internal/opus"
)

const (
	BackupsDirName = "backups"
	// DefaultKeepBackups is used when a caller passes keep <= 0 to WriteDocument.
	DefaultKeepBackups = 20

	stampLayout = "20060102-150405.000"
)

// ReadDocument returns the raw text of the document at path.
func ReadDocument(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &opus.IOError{Op: "read", Err: errors.New("path is required")}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &opus.IOError{Op: "read", Path: path, Err: err}
	}
	return b, nil
}

// WriteDocument replaces the document at path with data. An existing file is first copied to a
// timestamped backup (<dir>/backups/<file>.<stamp>.bak) and old backups beyond keep are pruned.
// The write goes to a temp file in the same directory that is then renamed over the target, so a
// failed write leaves the previous file untouched.
func WriteDocument(path string, data []byte, keep int) error {
	l := applog.WithOperation(applog.WithComponent("storage"), "write").With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return &opus.IOError{Op: "write", Err: errors.New("path is required")}
	}
	if keep <= 0 {
		keep = DefaultKeepBackups
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &opus.IOError{Op: "write", Path: path, Err: fmt.Errorf("create dir: %w", err)}
	}

	// Back up the current file before replacing it
	if _, statErr := os.Stat(path); statErr == nil {
		bdir := filepath.Join(dir, BackupsDirName)
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(path), time.Now().Format(stampLayout)))
		if err := copyFile(path, bpath); err != nil {
			return &opus.IOError{Op: "backup", Path: path, Err: err}
		}
		if n, err := pruneBackups(path, keep); err != nil {
			l.Warn("prune backups failed", slog.Any("err", err))
		} else if n > 0 {
			l.Debug("pruned backups", slog.Int("removed", n))
		}
	}

	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if err := writeFileSync(temp, data); err != nil {
		_ = os.Remove(temp)
		return &opus.IOError{Op: "write", Path: path, Err: fmt.Errorf("write temp file: %w", err)}
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	if err := os.Rename(temp, path); err != nil {
		_ = os.Remove(temp)
		return &opus.IOError{Op: "write", Path: path, Err: fmt.Errorf("replace document: %w", err)}
	}
	l.Debug("document written", slog.Int("bytes", len(data)))
	return nil
}

// BackupPaths lists the backups of the document at path, oldest first.
func BackupPaths(path string) ([]string, error) {
	bdir := filepath.Join(filepath.Dir(path), BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	prefix := filepath.Base(path) + "."
	var out []string
	for _, e := range ents {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

// OpenLatestBackup returns the content and location of the newest backup of path.
func OpenLatestBackup(path string) ([]byte, string, error) {
	backups, err := BackupPaths(path)
	if err != nil {
		return nil, "", err
	}
	if len(backups) == 0 {
		return nil, "", errors.New("no backups found")
	}
	latest := backups[len(backups)-1]
	b, err := os.ReadFile(latest)
	if err != nil {
		return nil, "", fmt.Errorf("read latest backup: %w", err)
	}
	return b, latest, nil
}

func pruneBackups(path string, keep int) (int, error) {
	backups, err := BackupPaths(path)
	if err != nil {
		return 0, err
	}
	removed := 0
	for len(backups)-removed > keep {
		if err := os.Remove(backups[removed]); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// AutosaveCrashSnapshot writes data next to the backups as <file>.crash-<stamp>.yaml and returns
// its path. It is used when the process is going down and skips the transactional dance.
func AutosaveCrashSnapshot(path string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("document path is required")
	}
	bdir := filepath.Join(filepath.Dir(path), BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return "", fmt.Errorf("ensure backups dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(bdir, fmt.Sprintf("%s.crash-%s.yaml", base, time.Now().Format("20060102-150405")))
	if err := writeFileSync(out, data); err != nil {
		return "", err
	}
	return out, nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
