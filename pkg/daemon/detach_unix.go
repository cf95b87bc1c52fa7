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
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/daemonet/daemonet/internal/log"
)

// detachStageEnv marks a process as the detached stage of a Start. The
// parent re-executes its own binary with this variable set; when Start
// runs again in the child it takes the detached path instead of
// spawning another process.
const detachStageEnv = "DAEMONET_DETACH_STAGE"

// inDetachStage reports whether this process is the detached child.
func inDetachStage() bool {
	return os.Getenv(detachStageEnv) != ""
}

// spawnDetached re-executes the current binary in a new session with
// the detach-stage marker set. The child's standard streams go to the
// null device, or to the configured detach log so a file logging sink
// survives detachment. Descriptors beyond the standard three are not
// inherited across exec, so no explicit close loop is needed.
//
// Returns the child PID. The child is released, not waited on.
func (d *Daemon) spawnDetached() (int, error) {
	binary, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("cannot resolve executable: %w", err)
	}

	var out *os.File
	if d.detachLog != "" {
		if err := os.MkdirAll(filepath.Dir(d.detachLog), 0o755); err != nil {
			return 0, fmt.Errorf("failed to create detach log directory: %w", err)
		}
		out, err = os.OpenFile(d.detachLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("failed to open detach log: %w", err)
		}
	} else {
		out, err = os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return 0, fmt.Errorf("failed to open null device: %w", err)
		}
	}
	defer out.Close()

	cmd := detachCommand(binary, out)

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	pid := cmd.Process.Pid

	if err := cmd.Process.Release(); err != nil {
		// The child is already running at this point.
		return pid, fmt.Errorf("process started but failed to release: %w", err)
	}

	return pid, nil
}

// detachCommand builds the re-exec command for the detached stage:
// same binary and arguments, the stage marker in the environment, a
// new session, the root directory as working directory, stdout and
// stderr on out, and stdin on the null device.
func detachCommand(binary string, out *os.File) *exec.Cmd {
	cmd := exec.Command(binary, os.Args[1:]...)
	cmd.Env = append(os.Environ(), detachStageEnv+"=1")
	cmd.Stdin = nil
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Dir = "/"
	cmd.SysProcAttr = &syscall.SysProcAttr{
		// New session: detach from the controlling terminal and the
		// parent's process group.
		Setsid: true,
	}
	return cmd
}

// runDetached is the child side of the detachment sequence: decouple
// from the inherited environment, durably record our own PID, arrange
// PID file cleanup, install the termination handler, and hand control
// to the body.
func (d *Daemon) runDetached(body Body) error {
	// The working directory must not pin a filesystem that could be
	// unmounted while the daemon runs.
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("cannot change to root directory: %w", err)
	}

	// File creation permissions are the daemon's own business from
	// here on.
	syscall.Umask(0)

	pf := NewPIDFile(d.pidfile)
	pid := os.Getpid()
	if err := pf.Write(pid); err != nil {
		d.logger.Error("cannot write PID file", log.PIDFileKey, d.pidfile, log.Error(err))
		return err
	}
	d.pid = pid
	d.logger.Debug("PID of detached process recorded", log.PIDKey, pid, log.PIDFileKey, d.pidfile)

	// The PID file lives exactly as long as the body. A hard kill that
	// bypasses this path leaves a stale file for Stop to heal.
	defer func() {
		d.logger.Debug("removing PID file", log.PIDFileKey, d.pidfile)
		if err := pf.Remove(); err != nil {
			d.logger.Warn("failed to remove PID file", log.PIDFileKey, d.pidfile, log.Error(err))
		}
	}()

	d.HandleTermination()

	d.logger.Info("daemon started", log.PIDKey, pid)
	return body(d.latch)
}
