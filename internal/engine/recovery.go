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
	"fmt"
	"path/filepath"

	"github.com/elemental-boot/immutability/pkg/sys"
)

// RecoverCurrent inspects subvolumeRoot/CURRENT and deletes it whenever its
// presence cannot be trusted as a completed, swapped-in build: both a
// sentinel-less CURRENT (a build that was interrupted) and a
// sentinel-bearing one (a build that finished but whose swap into the live
// subvolume never happened) are treated as crashed. Redoing the swap from a
// fresh CLEAN clone is cheaper than reasoning about which side is newer.
func RecoverCurrent(sn *Snapshotter, fs sys.FS, subvolumeRoot string) error {
	current := filepath.Join(subvolumeRoot, string(LabelCurrent))

	exists, err := sys.Exists(fs, current, true)
	if err != nil {
		return fmt.Errorf("checking for stale %s: %w", current, err)
	}
	if !exists {
		return nil
	}

	if err := sn.Delete(current); err != nil {
		return fmt.Errorf("removing stale %s: %w", current, err)
	}
	return nil
}
