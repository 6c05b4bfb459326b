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

var _ = Describe("ParsePair", func() {
	It("parses name=mount", func() {
		sub, err := engine.ParsePair("@root=/")
		Expect(err).NotTo(HaveOccurred())
		Expect(sub).To(Equal(engine.Subvolume{Name: "@root", LiveMount: "/"}))
	})

	It("parses name=mount:filter_path", func() {
		sub, err := engine.ParsePair("@home=/home:/scratch/home.filter")
		Expect(err).NotTo(HaveOccurred())
		Expect(sub).To(Equal(engine.Subvolume{Name: "@home", LiveMount: "/home", FilterPath: "/scratch/home.filter"}))
	})

	It("fails on a pair missing '='", func() {
		_, err := engine.ParsePair("@root")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Dispatch", func() {
	var tfs vfs.FS
	var s *sys.System
	var cleanup func()
	var err error
	var runner *sysmock.Runner
	var mounter *sysmock.Mounter

	BeforeEach(func() {
		runner = sysmock.NewRunner()
		mounter = sysmock.NewMounter()
		tfs, cleanup, err = sysmock.TestFS(nil)
		Expect(err).NotTo(HaveOccurred())
		s, err = sys.NewSystem(
			sys.WithFS(tfs), sys.WithLogger(log.New(log.WithDiscardAll())),
			sys.WithRunner(runner), sys.WithMounter(mounter),
		)
		Expect(err).NotTo(HaveOccurred())
	})
	AfterEach(func() {
		cleanup()
	})

	It("mounts, logs and unmounts without touching any subvolume in disabled mode", func() {
		args := engine.Args{
			Device: "/dev/test", SnapshotsRootName: "snapshots", CleanLabel: engine.LabelClean,
			Mode: engine.ModeDisabled,
		}
		Expect(engine.Dispatch(context.Background(), s, args)).To(Succeed())
	})

	It("fails fast on an unmountable device before touching any subvolume", func() {
		mounter.ErrorOnMount = true
		args := engine.Args{
			Device: "/dev/bad", SnapshotsRootName: "snapshots", CleanLabel: engine.LabelClean,
			Mode:       engine.ModeReset,
			Subvolumes: []engine.Subvolume{{Name: "@root", LiveMount: "@root"}},
		}
		Expect(engine.Dispatch(context.Background(), s, args)).To(HaveOccurred())
		Expect(runner.GetCmds()).To(BeEmpty())
	})
})
