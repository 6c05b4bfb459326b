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

// Package cleanstack provides a LIFO stack of cleanup callbacks so every
// acquired resource (mount, temp dir, scratch file) can be released in the
// reverse order it was acquired, regardless of where in a call chain the
// failure that triggers cleanup occurs.
package cleanstack

import "errors"

// Job is a single cleanup callback.
type Job func() error

// Run executes the job if it is non-nil.
func (j Job) Run() error {
	if j == nil {
		return nil
	}
	return j()
}

type entry struct {
	job         Job
	errorOnly   bool
	successOnly bool
}

// CleanStack accumulates cleanup callbacks and runs them in reverse
// registration order.
type CleanStack struct {
	stack []entry
}

func NewCleanStack() *CleanStack {
	return &CleanStack{}
}

// Push registers a callback that always runs during Cleanup.
func (c *CleanStack) Push(job Job) {
	c.stack = append(c.stack, entry{job: job})
}

// PushErrorOnly registers a callback that only runs when Cleanup is called
// with a non-nil error or a job run before it in the same Cleanup failed.
func (c *CleanStack) PushErrorOnly(job Job) {
	c.stack = append(c.stack, entry{job: job, errorOnly: true})
}

// PushSuccessOnly registers a callback that only runs when Cleanup is called
// with a nil error and no job run before it in the same Cleanup failed.
func (c *CleanStack) PushSuccessOnly(job Job) {
	c.stack = append(c.stack, entry{job: job, successOnly: true})
}

// Pop removes and returns the most recently pushed job without running it.
// Returns nil if the stack is empty.
func (c *CleanStack) Pop() Job {
	if len(c.stack) == 0 {
		return nil
	}
	last := len(c.stack) - 1
	e := c.stack[last]
	c.stack = c.stack[:last]
	return e.job
}

// Cleanup runs every registered job in reverse order, regardless of whether
// earlier jobs fail, so a single broken unmount never blocks the rest of the
// release chain. err is the error already in flight (possibly nil); Cleanup
// folds any new cleanup errors into it via errors.Join and returns the
// combined result, preserving the original error's position as primary
// context for callers that only check the string form.
func (c *CleanStack) Cleanup(err error) error {
	errs := []error{err}
	hasError := err != nil
	for i := len(c.stack) - 1; i >= 0; i-- {
		e := c.stack[i]
		if e.errorOnly && !hasError {
			continue
		}
		if e.successOnly && hasError {
			continue
		}
		if jobErr := e.job.Run(); jobErr != nil {
			errs = append(errs, jobErr)
			hasError = true
		}
	}
	c.stack = nil
	return errors.Join(errs...)
}
