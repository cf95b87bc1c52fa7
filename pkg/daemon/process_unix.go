// Copyright 2025 The Daemonet Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build unix

package daemon

import (
	"fmt"
	"os"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
)

// Alive reports whether a process with the given PID can be signalled.
// It sends signal 0, which performs the existence and permission checks
// without delivering anything. A permission failure counts as not
// alive; callers that need to distinguish the two should use SendSignal
// directly and inspect the errno.
func Alive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// SendSignal delivers sig to the given process. The returned error
// wraps the raw errno so callers can classify delivery failures with
// errors.Is (syscall.ESRCH for a missing process, syscall.EPERM for a
// permission failure).
func SendSignal(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(pid, sig); err != nil {
		return fmt.Errorf("signal %v to process %d: %w", sig, pid, err)
	}
	return nil
}

// SameExecutable reports whether the process with the given PID is
// running the same binary as the current process. It guards against
// acting on a recycled PID from a stale PID file. Any inspection
// failure counts as not matching.
func SameExecutable(pid int) bool {
	self, err := os.Executable()
	if err != nil {
		return false
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}

	exe, err := proc.Exe()
	if err != nil {
		return false
	}

	return exe == self
}
