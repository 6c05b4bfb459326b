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

import "github.com/elemental-boot/immutability/pkg/sys"

var _ sys.Syscall = (*Syscall)(nil)

// Syscall is a no-op fake of sys.Syscall for tests that never chroot.
type Syscall struct {
	ChrootErr error
	ChdirErr  error
	Chroots   []string
	Chdirs    []string
}

func (s *Syscall) Chroot(path string) error {
	s.Chroots = append(s.Chroots, path)
	return s.ChrootErr
}

func (s *Syscall) Chdir(path string) error {
	s.Chdirs = append(s.Chdirs, path)
	return s.ChdirErr
}
