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
	"path/filepath"

	"github.com/elemental-boot/immutability/internal/engine/filter"
	"github.com/elemental-boot/immutability/pkg/sys"
)

// Subvolume names one named subvolume's inputs for a single reconciler run.
type Subvolume struct {
	Name       string
	LiveMount  string
	FilterPath string

	// PersistGlobs, when non-empty, tells the reconciler to build its own
	// filter file at FilterPath from these globs instead of trusting a
	// precomputed one, per the --persist flag.
	PersistGlobs []string
}

// Reconciler runs one Mode to completion or fatal error for a single
// subvolume. It is the tagged-variant state machine named in the package
// doc: mode is a closed, small enumeration dispatched with a single
// exhaustive switch in Run, not an interface per mode.
type Reconciler struct {
	s                 *sys.System
	sn                *Snapshotter
	snapshotsRootName string
	cleanLabel        Label
}

func NewReconciler(s *sys.System, snapshotsRootName string, cleanLabel Label) *Reconciler {
	return &Reconciler{
		s:                 s,
		sn:                NewSnapshotter(s),
		snapshotsRootName: snapshotsRootName,
		cleanLabel:        cleanLabel,
	}
}

// Run executes mode for sub against the volume mounted at volumeRoot.
func (rc *Reconciler) Run(ctx context.Context, volumeRoot string, sub Subvolume, mode Mode) error {
	root := filepath.Join(volumeRoot, rc.snapshotsRootName, sub.Name)
	clean := filepath.Join(root, string(rc.cleanLabel))
	previous := filepath.Join(root, string(LabelPrevious))
	penultimate := filepath.Join(root, string(LabelPenultimate))
	current := filepath.Join(root, string(LabelCurrent))
	live := filepath.Join(volumeRoot, sub.LiveMount)

	switch mode {
	case ModeDisabled:
		rc.s.Logger().Info("Subvolume %s: disabled, nothing to do", sub.Name)
		return nil

	case ModeRestorePrevious, ModeRestorePenultimate:
		label := mode.RestoreLabel()
		source := filepath.Join(root, string(label))
		isDir, err := sys.IsDir(rc.s.FS(), source, true)
		if err != nil || !isDir {
			return fmt.Errorf("%w: subvolume %s: %s does not exist", ErrConfiguration, sub.Name, label)
		}
		if err := rc.sn.Snapshot(source, live); err != nil {
			return err
		}
		return rc.sn.Sync(volumeRoot)

	case ModeReset, ModeSnapshotOnly:
		return rc.reset(ctx, root, clean, previous, penultimate, current, live, sub, volumeRoot, mode)

	default:
		return fmt.Errorf("%w: subvolume %s: unhandled mode %q", ErrConfiguration, sub.Name, mode)
	}
}

func (rc *Reconciler) reset(ctx context.Context, root, clean, previous, penultimate, current, live string, sub Subvolume, volumeRoot string, mode Mode) error {
	if mode == ModeReset && sub.FilterPath == "" {
		return fmt.Errorf("%w: subvolume %s: reset mode requires a filter_path", ErrConfiguration, sub.Name)
	}

	if err := RecoverCurrent(rc.sn, rc.s.FS(), root); err != nil {
		return fmt.Errorf("subvolume %s: %w", sub.Name, err)
	}

	isDir, err := sys.IsDir(rc.s.FS(), clean, true)
	if err != nil || !isDir {
		return fmt.Errorf("%w: subvolume %s: %s does not exist", ErrConfiguration, sub.Name, rc.cleanLabel)
	}

	if exists, _ := sys.Exists(rc.s.FS(), penultimate, true); !exists {
		if err := rc.sn.Snapshot(clean, penultimate); err != nil {
			return fmt.Errorf("subvolume %s: initialising %s: %w", sub.Name, LabelPenultimate, err)
		}
	}
	if exists, _ := sys.Exists(rc.s.FS(), previous, true); !exists {
		if err := rc.sn.Snapshot(clean, previous); err != nil {
			return fmt.Errorf("subvolume %s: initialising %s: %w", sub.Name, LabelPrevious, err)
		}
	}

	if err := rc.sn.Snapshot(previous, penultimate); err != nil {
		return fmt.Errorf("subvolume %s: rotating %s into %s: %w", sub.Name, LabelPrevious, LabelPenultimate, err)
	}

	if err := rc.sn.Snapshot(live, previous); err != nil {
		return fmt.Errorf("subvolume %s: capturing live into %s: %w", sub.Name, LabelPrevious, err)
	}

	if mode == ModeSnapshotOnly {
		return rc.sn.Sync(volumeRoot)
	}

	if err := rc.buildCurrent(ctx, sub, clean, previous, current); err != nil {
		return fmt.Errorf("subvolume %s: %w", sub.Name, err)
	}

	if err := rc.sn.Snapshot(current, live); err != nil {
		return fmt.Errorf("subvolume %s: swapping %s into live: %w", sub.Name, LabelCurrent, err)
	}

	return rc.sn.Sync(volumeRoot)
}

// buildCurrent creates CURRENT from CLEAN, copies persistent files forward
// from PREVIOUS and writes the sentinel proving the build phase completed.
func (rc *Reconciler) buildCurrent(ctx context.Context, sub Subvolume, clean, previous, current string) error {
	if err := rc.sn.Snapshot(clean, current); err != nil {
		return fmt.Errorf("building %s: %w", LabelCurrent, err)
	}
	if err := rc.sn.SetRW(current); err != nil {
		return fmt.Errorf("building %s: %w", LabelCurrent, err)
	}

	filterPath := sub.FilterPath
	if len(sub.PersistGlobs) > 0 {
		builder := filter.NewBuilder(rc.s.FS(), rc.s.Logger())
		lines := builder.Build(sub.LiveMount, previous, sub.PersistGlobs)
		if err := builder.Write(filterPath, lines); err != nil {
			return fmt.Errorf("writing filter for %s: %w", sub.Name, err)
		}
		// Only the "+ */" scaffold and "- *" terminator: no persistent path
		// applies to this subvolume, so the copy step is skipped.
		if len(lines) == 2 {
			rc.s.Logger().Info("Subvolume %s: no persistent paths to carry forward, skipping copy", sub.Name)
			filterPath = ""
		}
	}

	if filterPath != "" {
		if err := CopyPersistent(ctx, rc.s, previous, current, filterPath); err != nil {
			return err
		}
	}

	sentinel := filepath.Join(current, Sentinel)
	if err := rc.s.FS().WriteFile(sentinel, []byte{}, sys.FilePerm); err != nil {
		return fmt.Errorf("writing sentinel at %s: %w", sentinel, err)
	}
	return nil
}
