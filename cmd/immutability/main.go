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

package main

import (
	"log"
	"os"

	"github.com/elemental-boot/immutability/internal/cli/app"
	"github.com/elemental-boot/immutability/internal/cli/immutability"
)

func main() {
	application := app.New(immutability.Usage, immutability.GlobalFlags(), immutability.Setup, immutability.Teardown)
	application.Action = immutability.Action
	application.ArgsUsage = "<device> <snapshots_root_name> <clean_label> <mode> <pair>..."

	if err := application.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
