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

package engine

import (
	"context"
	"fmt"

	"github.com/elemental-boot/immutability/pkg/rsync"
	"github.com/elemental-boot/immutability/pkg/sys"
)

// CopyPersistent rsyncs previous into current through filterPath, the one
// step whose cost dominates a reset cycle. It is the reason the dispatcher
// fans out across subvolumes in parallel rather than running reconcilers
// one after another.
func CopyPersistent(ctx context.Context, s *sys.System, previous, current, filterPath string) error {
	r := rsync.NewRsync(s,
		rsync.WithContext(ctx),
		rsync.WithFlags(persistentCopyFlags(filterPath)...),
	)

	if err := r.MirrorData(previous, current); err != nil {
		return fmt.Errorf("%w: copying persistent files from %q to %q: %w", ErrExternalTool, previous, current, err)
	}
	return nil
}

// persistentCopyFlags extends the teacher's DefaultFlags with the
// hardlinks/numeric-ids/filter behaviour this copy step needs beyond a
// plain data sync: hardlinks preserve link structure in persisted trees,
// numeric-ids avoids uid/gid translation since both sides are the same
// filesystem, and the filter directive scopes the copy to persistent paths
// only.
func persistentCopyFlags(filterPath string) []string {
	flags := rsync.DefaultFlags()
	flags = append(flags, "--hardlinks", "--numeric-ids", fmt.Sprintf("--filter=. %s", filterPath))
	return flags
}
