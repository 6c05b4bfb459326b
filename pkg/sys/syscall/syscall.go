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

package syscall

import (
	"os"
	sc "syscall"
)

type sysCall struct{}

// Syscall returns the real OS-backed implementation of sys.Syscall.
func Syscall() *sysCall { //nolint:revive
	return &sysCall{}
}

func (sysCall) Chroot(path string) error {
	return sc.Chroot(path)
}

func (sysCall) Chdir(path string) error {
	return os.Chdir(path)
}
