/*
Copyright © 2022 - 2025 SUSE LLC
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

package runner

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/elemental-boot/immutability/pkg/log"
)

type run struct {
	logger log.Logger
}

type RunOption func(r *run)

func WithLogger(l log.Logger) RunOption {
	return func(r *run) {
		r.logger = l
	}
}

func NewRunner(opts ...RunOption) *run {
	r := &run{}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r run) InitCmd(command string, args ...string) *exec.Cmd {
	return exec.Command(command, args...)
}

// Run executes command and classifies its output per the process runner's
// boot-log contract: non-empty stdout lines are logged at LOG level, non-empty
// stderr lines at WRN, blank lines suppressed. The returned bytes are stdout
// alone on success, stdout+stderr on error, for callers that fold output into
// an error message.
func (r run) Run(command string, args ...string) ([]byte, error) {
	r.debug(fmt.Sprintf("Running cmd: '%s %s'", command, strings.Join(args, " ")))
	cmd := r.InitCmd(command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	r.logOutput(stdout.Bytes(), stderr.Bytes())

	out := stdout.Bytes()
	if err != nil {
		out = append(out, stderr.Bytes()...)
		r.debug(fmt.Sprintf("'%s' command reported an error: %s", command, err.Error()))
		r.debug(fmt.Sprintf("'%s' command output: %s", command, out))
	}
	return out, err
}

func (r run) RunContext(ctx context.Context, command string, args ...string) ([]byte, error) {
	r.debug(fmt.Sprintf("Running cmd: '%s %s'", command, strings.Join(args, " ")))
	cmd := exec.CommandContext(ctx, command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	r.logOutput(stdout.Bytes(), stderr.Bytes())

	out := stdout.Bytes()
	if err != nil {
		out = append(out, stderr.Bytes()...)
		r.debug(fmt.Sprintf("'%s' command reported an error: %s", command, err.Error()))
		r.debug(fmt.Sprintf("'%s' command output: %s", command, out))
	}
	return out, err
}

// logOutput classifies stdout as LOG and stderr as WRN, one non-empty line
// at a time.
func (r run) logOutput(stdout, stderr []byte) {
	r.logLines("", stdout)
	r.logLines(log.WarnPrefix, stderr)
}

func (r run) logLines(prefix string, out []byte) {
	if r.logger == nil {
		return
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		log.PlainLine(r.logger, prefix, line)
	}
}

// RunContextParseOutput runs command with its stdout and stderr piped
// separately to stdoutH/stderrH, one non-empty line at a time. This is the
// process runner's contract with the reconciler: stdout lines are the
// caller's to log at LOG level, stderr lines at WRN, and blank lines are
// never forwarded.
func (r run) RunContextParseOutput(ctx context.Context, stdoutH, stderrH func(line string), command string, args ...string) error {
	r.debug(fmt.Sprintf("Running cmd: '%s %s'", command, strings.Join(args, " ")))
	cmd := exec.CommandContext(ctx, command, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(stdout, stdoutH)
	}()
	go func() {
		defer wg.Done()
		scanLines(stderr, stderrH)
	}()
	wg.Wait()

	err = cmd.Wait()
	if err != nil {
		r.debug(fmt.Sprintf("'%s' command reported an error: %s", command, err.Error()))
	}
	return err
}

func scanLines(r io.Reader, handle func(line string)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if handle != nil {
			handle(line)
		}
	}
}

func (r run) debug(msg string) {
	if r.logger != nil {
		r.logger.Debug(msg)
	}
}
