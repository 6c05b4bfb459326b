/*
Copyright © 2025 Elemental Boot Authors
SPDX-License-Identifier: Apache-2.0

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package filter builds the rsync inclusion-filter file the persistent-file
// copier consumes. It is independently unit-testable against a
// temporary-directory-backed vfs.FS, kept separate from the engine's
// Snapshotter subvolume operations the way pkg/rsync keeps its own flag
// composition separate.
package filter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/elemental-boot/immutability/pkg/log"
	"github.com/elemental-boot/immutability/pkg/sys"
	"github.com/elemental-boot/immutability/pkg/sys/vfs"
)

// Builder computes a deterministic rsync filter file from a set of
// persistent-path globs resolved against a subvolume's PREVIOUS snapshot.
type Builder struct {
	fs     sys.FS
	logger log.Logger
}

func NewBuilder(fs sys.FS, logger log.Logger) *Builder {
	return &Builder{fs: fs, logger: logger}
}

// globMagic are the shell wildcard characters a persistent-path entry may
// contain (e.g. "/home/*/.cache"), matching the host configuration loader's
// glob grammar.
const globMagic = "*?["

// Build emits filter directives for paths, each an absolute path (optionally
// containing shell wildcards) under mountPrefix, resolved against previous
// (the subvolume's PREVIOUS snapshot root). The result is order-preserving:
// the same inputs against unchanged PREVIOUS contents always produce the
// same lines, since matches are walked in sorted order by vfs.FindFiles.
func (b *Builder) Build(mountPrefix, previous string, paths []string) []string {
	lines := []string{"+ */"}

	for _, p := range paths {
		rel := strings.TrimPrefix(p, mountPrefix)
		rel = strings.TrimPrefix(rel, "/")
		if rel == "" {
			continue
		}

		matches, err := b.resolve(previous, rel)
		if err != nil {
			b.logger.Info("Persistent path %s could not be resolved against %s: %s, skipping", p, previous, err)
			continue
		}
		if len(matches) == 0 {
			b.logger.Info("Persistent path %s not present in %s, skipping", p, previous)
			continue
		}

		for _, m := range matches {
			target := filepath.Join(previous, m)
			isDir, err := sys.IsDir(b.fs, target, true)
			if err != nil {
				continue
			}
			if isDir {
				lines = append(lines, fmt.Sprintf("+ /%s/", m), fmt.Sprintf("+ /%s/**", m))
			} else {
				lines = append(lines, fmt.Sprintf("+ /%s", m))
			}
		}
	}

	lines = append(lines, "- *")
	return lines
}

// resolve expands rel, a path relative to previous that may contain shell
// wildcards, into the relative paths of its matches inside previous. A
// literal (non-wildcard) rel that does not exist resolves to no matches,
// the same outcome a glob with zero matches produces.
func (b *Builder) resolve(previous, rel string) ([]string, error) {
	if !strings.ContainsAny(rel, globMagic) {
		exists, err := sys.Exists(b.fs, filepath.Join(previous, rel), true)
		if err != nil || !exists {
			return nil, nil
		}
		return []string{rel}, nil
	}

	found, err := vfs.FindFiles(b.fs, previous, "/"+rel)
	if err != nil {
		return nil, err
	}

	matches := make([]string, 0, len(found))
	for _, f := range found {
		m, err := filepath.Rel(previous, f)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Write renders lines to dest, one directive per line, overwriting any
// existing content at that scratch path.
func (b *Builder) Write(dest string, lines []string) error {
	if err := vfs.MkdirAll(b.fs, filepath.Dir(dest), vfs.DirPerm); err != nil {
		return fmt.Errorf("creating parent directory for filter %q: %w", dest, err)
	}
	content := strings.Join(lines, "\n") + "\n"
	return b.fs.WriteFile(dest, []byte(content), sys.FilePerm)
}
