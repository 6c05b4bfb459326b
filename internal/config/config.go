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

// Package config loads optional defaults for the dispatcher's positional
// arguments from an env-style file, the way pkg/snapper loads snapper's
// /etc/sysconfig/snapper envfile.
package config

import (
	"fmt"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/elemental-boot/immutability/pkg/sys"
)

// MaxGenerations is the number of snapshot generations this engine ever
// keeps per subvolume (PENULTIMATE, PREVIOUS, CURRENT): a fixed depth, not a
// garbage-collection policy. A config file may only assert this value for
// validation; it cannot raise or lower it.
const MaxGenerations = 3

// Defaults holds values a --config file may supply. Every field is
// overridden by its corresponding positional CLI argument when present.
type Defaults struct {
	SnapshotsRootName string
	CleanLabel        string
}

// Load parses a KEY=VALUE file at path with godotenv and returns the subset
// of keys this engine understands. An absent or empty path returns a zero
// Defaults without error: --config is optional.
func Load(fs sys.FS, path string) (Defaults, error) {
	var d Defaults
	if path == "" {
		return d, nil
	}

	f, err := fs.Open(path)
	if err != nil {
		return d, err
	}
	defer f.Close()

	envMap, err := godotenv.Parse(f)
	if err != nil {
		return d, err
	}

	d.SnapshotsRootName = envMap["SNAPSHOTS_ROOT_NAME"]
	d.CleanLabel = envMap["CLEAN_LABEL"]

	if raw, ok := envMap["MAX_GENERATIONS"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return d, err
		}
		if n != MaxGenerations {
			return d, fmt.Errorf("MAX_GENERATIONS in config file must equal %d, got %d", MaxGenerations, n)
		}
	}

	return d, nil
}
