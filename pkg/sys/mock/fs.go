/*
Copyright © 2022-2025 SUSE LLC
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

package mock

import (
	"os"
	"path/filepath"

	"github.com/elemental-boot/immutability/pkg/sys/vfs"
)

// TestFS creates a throwaway directory on the real OS filesystem and returns
// it wrapped as a vfs.FS rooted at "/", along with a cleanup function that
// removes it. files, if non-nil, seeds the tree with path -> content before
// returning. Using a real directory (rather than a purely in-memory FS)
// keeps RawPath meaningful, which the runner/rsync/btrfs wrappers rely on to
// hand real paths to external tools under test.
func TestFS(files map[string]string) (vfs.FS, func(), error) {
	dir, err := os.MkdirTemp("", "immutability-test-")
	if err != nil {
		return nil, nil, err
	}

	fsys := vfs.PathFS(dir)
	cleanup := func() { _ = os.RemoveAll(dir) }

	for name, content := range files {
		full := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(full), vfs.DirPerm); err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	return fsys, cleanup, nil
}

// ReadOnlyTestFS flips every entry already written under fs to read-only, so
// writes through the returned FS fail exactly as they would against a
// read-only btrfs snapshot. fs must have been produced by TestFS.
func ReadOnlyTestFS(fsys vfs.FS) (vfs.FS, error) {
	raw, err := fsys.RawPath("/")
	if err != nil {
		return nil, err
	}

	err = filepath.Walk(raw, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return os.Chmod(path, 0555)
		}
		return os.Chmod(path, 0444)
	})
	if err != nil {
		return nil, err
	}

	return fsys, nil
}
