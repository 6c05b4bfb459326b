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

package engine_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/elemental-boot/immutability/internal/engine"
	"github.com/elemental-boot/immutability/pkg/log"
	"github.com/elemental-boot/immutability/pkg/sys"
	sysmock "github.com/elemental-boot/immutability/pkg/sys/mock"
	"github.com/elemental-boot/immutability/pkg/sys/vfs"
)

var _ = Describe("Reconciler", func() {
	var tfs vfs.FS
	var s *sys.System
	var cleanup func()
	var err error
	var runner *sysmock.Runner
	var rc *engine.Reconciler

	const root = "/snapshots/@root"

	snapshotSideEffect := func(fs vfs.FS) func(string, ...string) ([]byte, error) {
		return func(command string, args ...string) ([]byte, error) {
			switch {
			case command == "btrfs" && len(args) >= 2 && args[0] == "subvolume" && args[1] == "snapshot":
				src, dst := args[2], args[3]
				_ = vfs.MkdirAll(fs, dst, vfs.DirPerm)
				_, statErr := fs.Stat(src)
				Expect(statErr).NotTo(HaveOccurred())
				return nil, nil
			case command == "btrfs" && len(args) >= 2 && args[0] == "subvolume" && args[1] == "delete":
				_ = fs.RemoveAll(args[len(args)-1])
				return nil, nil
			case command == "btrfs" && len(args) >= 2 && args[0] == "subvolume" && args[1] == "list":
				return []byte(""), nil
			case command == "btrfs":
				return nil, nil
			case command == "rsync":
				return nil, nil
			}
			return nil, nil
		}
	}

	BeforeEach(func() {
		runner = sysmock.NewRunner()
		tfs, cleanup, err = sysmock.TestFS(map[string]string{
			root + "/CLEAN/marker": "clean",
			"/@root/existing":      "live",
		})
		Expect(err).NotTo(HaveOccurred())
		runner.SideEffect = snapshotSideEffect(tfs)
		s, err = sys.NewSystem(
			sys.WithFS(tfs), sys.WithLogger(log.New(log.WithDiscardAll())),
			sys.WithRunner(runner),
		)
		Expect(err).NotTo(HaveOccurred())
		rc = engine.NewReconciler(s, "snapshots", engine.LabelClean)
	})
	AfterEach(func() {
		cleanup()
	})

	It("fails fast when CLEAN is missing", func() {
		sub := engine.Subvolume{Name: "@missing", LiveMount: "@missing", FilterPath: "/scratch/missing.filter"}
		err := rc.Run(context.Background(), "/", sub, engine.ModeReset)
		Expect(err).To(HaveOccurred())
	})

	It("rejects reset mode for a subvolume pair with no filter_path", func() {
		sub := engine.Subvolume{Name: "@root", LiveMount: "@root"}
		err := rc.Run(context.Background(), "/", sub, engine.ModeReset)
		Expect(err).To(MatchError(engine.ErrConfiguration))
		Expect(runner.GetCmds()).To(BeEmpty())
	})

	It("runs the reset sequence end to end for a subvolume with a filter", func() {
		sub := engine.Subvolume{Name: "@root", LiveMount: "@root", FilterPath: "/scratch/root.filter"}
		Expect(rc.Run(context.Background(), "/", sub, engine.ModeReset)).To(Succeed())
		Expect(runner.MatchMilestones([][]string{
			{"btrfs", "subvolume", "snapshot", root + "/CLEAN", root + "/PENULTIMATE"},
			{"btrfs", "subvolume", "snapshot", root + "/CLEAN", root + "/PREVIOUS"},
			{"btrfs", "subvolume", "snapshot", root + "/PREVIOUS", root + "/PENULTIMATE"},
			{"btrfs", "subvolume", "snapshot", "/@root", root + "/PREVIOUS"},
			{"btrfs", "subvolume", "snapshot", root + "/CLEAN", root + "/CURRENT"},
			{"btrfs", "subvolume", "snapshot", root + "/CURRENT", "/@root"},
			{"btrfs", "filesystem", "sync", "/"},
		})).To(Succeed())
	})

	It("does not swap the live subvolume in snapshot-only mode", func() {
		sub := engine.Subvolume{Name: "@root", LiveMount: "@root"}
		Expect(rc.Run(context.Background(), "/", sub, engine.ModeSnapshotOnly)).To(Succeed())
		for _, cmd := range runner.GetCmds() {
			if len(cmd) >= 3 && cmd[0] == "btrfs" && cmd[1] == "subvolume" && cmd[2] == "snapshot" {
				Expect(cmd[len(cmd)-1]).NotTo(Equal("/@root"))
			}
		}
	})

	It("restores PREVIOUS onto the live subvolume for restore-previous", func() {
		Expect(vfs.MkdirAll(tfs, root+"/PREVIOUS", vfs.DirPerm)).To(Succeed())
		sub := engine.Subvolume{Name: "@root", LiveMount: "@root"}
		Expect(rc.Run(context.Background(), "/", sub, engine.ModeRestorePrevious)).To(Succeed())
		Expect(runner.IncludesCmds([][]string{
			{"btrfs", "subvolume", "snapshot", root + "/PREVIOUS", "/@root"},
		})).To(Succeed())
	})

	It("does nothing for disabled mode on a single subvolume via the reconciler directly", func() {
		sub := engine.Subvolume{Name: "@root", LiveMount: "@root"}
		Expect(rc.Run(context.Background(), "/", sub, engine.ModeDisabled)).To(Succeed())
		Expect(runner.GetCmds()).To(BeEmpty())
	})
})
