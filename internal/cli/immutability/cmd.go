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

// Package immutability wires the engine's dispatcher to the urfave/cli
// surface, following the Setup/Teardown/GlobalFlags split the teacher's
// internal/cli/cmd package uses for its own root command.
package immutability

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/elemental-boot/immutability/internal/config"
	"github.com/elemental-boot/immutability/internal/engine"
	"github.com/elemental-boot/immutability/pkg/log"
	"github.com/elemental-boot/immutability/pkg/sys"
	"github.com/elemental-boot/immutability/pkg/sys/vfs"
)

const Usage = "Reconcile btrfs subvolumes against a reset-on-boot immutability policy"

var logFile *os.File

func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Set logging at debug level",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "Save logs to file, accepts path to file or stdout/stderr",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to an env-style file supplying defaults for snapshots_root_name and clean_label",
		},
		&cli.StringSliceFlag{
			Name:  "persist",
			Usage: "name:glob1;glob2, repeatable; builds the filter file for name instead of trusting a precomputed one",
		},
	}
}

func Setup(ctx *cli.Context) error {
	s, err := sys.NewSystem()
	if err != nil {
		return err
	}

	if ctx.Bool("debug") {
		s.Logger().SetLevel(log.DebugLevel())
	}

	if err := setLoggerTarget(s, ctx); err != nil {
		return err
	}

	if ctx.App.Metadata == nil {
		ctx.App.Metadata = map[string]any{}
	}
	ctx.App.Metadata["system"] = s
	return nil
}

func Teardown(_ *cli.Context) error {
	if logFile != nil {
		return logFile.Close()
	}
	return nil
}

func setLoggerTarget(s *sys.System, ctx *cli.Context) error {
	switch logPath := ctx.String("log-file"); logPath {
	case "", "-":
	case "stdout":
		s.Logger().SetOutput(os.Stdout)
	case "stderr":
		s.Logger().SetOutput(os.Stderr)
	default:
		var err error
		logFile, err = s.FS().OpenFile(logPath, os.O_WRONLY|os.O_CREATE, vfs.FilePerm)
		if err != nil {
			return fmt.Errorf("opening log file '%s': %w", logPath, err)
		}
		s.Logger().SetOutput(logFile)
	}
	return nil
}

// Action parses the positional grammar documented in the command's
// ArgsUsage and runs the dispatcher.
func Action(ctx *cli.Context) error {
	s, _ := ctx.App.Metadata["system"].(*sys.System)
	if s == nil {
		return fmt.Errorf("%w: system not initialised", engine.ErrConfiguration)
	}

	args, err := parseArgs(s, ctx)
	if err != nil {
		return err
	}

	return engine.Dispatch(ctx.Context, s, args)
}

func parseArgs(s *sys.System, ctx *cli.Context) (engine.Args, error) {
	positional := ctx.Args().Slice()
	if len(positional) < 4 {
		return engine.Args{}, fmt.Errorf(
			"%w: expected <device> <snapshots_root_name> <clean_label> <mode> <pair>..., got %d arguments",
			engine.ErrConfiguration, len(positional))
	}

	defaults, err := config.Load(s.FS(), ctx.String("config"))
	if err != nil {
		return engine.Args{}, fmt.Errorf("%w: loading config: %w", engine.ErrConfiguration, err)
	}

	device := positional[0]
	snapshotsRootName := positional[1]
	if snapshotsRootName == "" {
		snapshotsRootName = defaults.SnapshotsRootName
	}
	cleanLabel := positional[2]
	if cleanLabel == "" {
		cleanLabel = defaults.CleanLabel
	}

	mode, err := engine.ParseMode(positional[3])
	if err != nil {
		return engine.Args{}, err
	}

	persist := persistGlobsByName(ctx.StringSlice("persist"))

	var subvolumes []engine.Subvolume
	for _, token := range positional[4:] {
		sub, err := engine.ParsePair(token)
		if err != nil {
			return engine.Args{}, err
		}
		if globs, ok := persist[sub.Name]; ok {
			sub.PersistGlobs = globs
			if sub.FilterPath == "" {
				return engine.Args{}, fmt.Errorf(
					"%w: subvolume %s: --persist requires a filter scratch path in its pair", engine.ErrConfiguration, sub.Name)
			}
		}
		if mode == engine.ModeReset && sub.FilterPath == "" {
			return engine.Args{}, fmt.Errorf(
				"%w: subvolume %s: reset mode requires a filter_path suffix in its pair", engine.ErrConfiguration, sub.Name)
		}
		subvolumes = append(subvolumes, sub)
	}

	if mode != engine.ModeDisabled && len(subvolumes) == 0 {
		return engine.Args{}, fmt.Errorf("%w: at least one subvolume pair is required", engine.ErrConfiguration)
	}

	return engine.Args{
		Device:            device,
		SnapshotsRootName: snapshotsRootName,
		CleanLabel:        engine.Label(cleanLabel),
		Mode:              mode,
		Subvolumes:        subvolumes,
	}, nil
}

// persistGlobsByName parses the repeatable --persist flag's
// "name:glob1;glob2" entries into a name -> globs map.
func persistGlobsByName(raw []string) map[string][]string {
	out := map[string][]string{}
	for _, entry := range raw {
		name, globs, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		out[name] = strings.Split(globs, ";")
	}
	return out
}
