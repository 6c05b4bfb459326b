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

import "errors"

// ErrConfiguration marks a fatal error discovered before any mutation was
// made: bad arguments, a missing mount point, an unparsable mode. Wrap it
// with fmt.Errorf("...: %w", ErrConfiguration) so callers can distinguish it
// from external-tool or invariant failures with errors.Is.
var ErrConfiguration = errors.New("configuration error")

// ErrExternalTool marks a nonzero exit from an external tool, or an
// invariant discovered broken mid-run (e.g. a snapshot directory vanishing
// between check and use). Both are fatal for the enclosing reconciler and
// are handled identically.
var ErrExternalTool = errors.New("external tool failure")
