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
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/elemental-boot/immutability/pkg/sys"
	"github.com/elemental-boot/immutability/pkg/utils/cleanstack"
)

// Args is the dispatcher's fully parsed input: the positional grammar
// described by the CLI surface, already validated and split into typed
// fields.
type Args struct {
	Device            string
	SnapshotsRootName string
	CleanLabel        Label
	Mode              Mode
	Subvolumes        []Subvolume
}

// ParsePair parses a single "name=mount[:filter_path]" token.
func ParsePair(token string) (Subvolume, error) {
	name, rest, ok := strings.Cut(token, "=")
	if !ok || name == "" || rest == "" {
		return Subvolume{}, fmt.Errorf("%w: malformed pair %q, expected name=mount[:filter_path]", ErrConfiguration, token)
	}

	mount, filterPath, _ := strings.Cut(rest, ":")
	return Subvolume{Name: name, LiveMount: mount, FilterPath: filterPath}, nil
}

type result struct {
	name string
	err  error
}

// Dispatch mounts device, then runs every subvolume's reconciler. For
// mode == ModeDisabled it logs and returns without touching any subvolume.
// A single subvolume runs inline; more than one runs as one goroutine per
// subvolume, joined with a WaitGroup, the first-failure(s) reported
// together via errors.Join.
func Dispatch(ctx context.Context, s *sys.System, args Args) error {
	if args.Mode == ModeDisabled {
		stack := cleanstack.NewCleanStack()
		if _, err := MountWithCleanup(s, args.Device, stack); err != nil {
			return err
		}
		s.Logger().Info("Mode disabled for device %s, nothing to reconcile", args.Device)
		return stack.Cleanup(nil)
	}

	stack := cleanstack.NewCleanStack()
	handle, err := MountWithCleanup(s, args.Device, stack)
	if err != nil {
		return err
	}

	rc := NewReconciler(s, args.SnapshotsRootName, args.CleanLabel)

	if len(args.Subvolumes) == 1 {
		runErr := rc.Run(ctx, handle.Path(), args.Subvolumes[0], args.Mode)
		return stack.Cleanup(runErr)
	}

	results := make(chan result, len(args.Subvolumes))
	var wg sync.WaitGroup
	for _, sub := range args.Subvolumes {
		wg.Add(1)
		go func(sub Subvolume) {
			defer wg.Done()
			err := rc.Run(ctx, handle.Path(), sub, args.Mode)
			results <- result{name: sub.Name, err: err}
		}(sub)
	}
	wg.Wait()
	close(results)

	var errs []error
	for r := range results {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("subvolume %s: %w", r.name, r.err))
		}
	}

	return stack.Cleanup(errors.Join(errs...))
}
