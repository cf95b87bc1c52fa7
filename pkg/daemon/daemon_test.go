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
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	t.Run("missing PID file means idle", func(t *testing.T) {
		pidPath := filepath.Join(t.TempDir(), "svc.pid")

		d, err := New(pidPath, WithTerminateParent(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if d.PID() != 0 {
			t.Errorf("PID() = %d, want 0", d.PID())
		}
		if d.Status() {
			t.Error("Status() = true with no PID file, want false")
		}
	})

	t.Run("loads recorded PID", func(t *testing.T) {
		pidPath := filepath.Join(t.TempDir(), "svc.pid")
		if err := os.WriteFile(pidPath, []byte("4242\n"), 0o644); err != nil {
			t.Fatalf("failed to seed PID file: %v", err)
		}

		d, err := New(pidPath, WithTerminateParent(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if d.PID() != 4242 {
			t.Errorf("PID() = %d, want 4242", d.PID())
		}
	})

	t.Run("corrupt PID file is a hard error", func(t *testing.T) {
		pidPath := filepath.Join(t.TempDir(), "svc.pid")
		if err := os.WriteFile(pidPath, []byte("garbage\n"), 0o644); err != nil {
			t.Fatalf("failed to seed PID file: %v", err)
		}

		_, err := New(pidPath, WithTerminateParent(false))
		if !errors.Is(err, ErrInvalidPID) {
			t.Errorf("New() error = %v, want ErrInvalidPID", err)
		}
	})

	t.Run("relative path is rooted at /", func(t *testing.T) {
		tmpDir := t.TempDir()
		rel := filepath.Join(strings.TrimPrefix(tmpDir, "/"), "svc.pid")

		d, err := New(rel, WithTerminateParent(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		want := filepath.Join("/", rel)
		if d.Pidfile() != want {
			t.Errorf("Pidfile() = %q, want %q", d.Pidfile(), want)
		}
	})

	t.Run("creates parent directory", func(t *testing.T) {
		pidPath := filepath.Join(t.TempDir(), "nested", "svc.pid")

		if _, err := New(pidPath, WithTerminateParent(false)); err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, err := os.Stat(filepath.Dir(pidPath)); err != nil {
			t.Errorf("parent directory not created: %v", err)
		}
	})

	t.Run("empty pidfile suppresses daemonization", func(t *testing.T) {
		d, err := New("", WithTerminateParent(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		err = d.Start(func(stop *Latch) error { return nil })
		if !errors.Is(err, ErrNoPIDFile) {
			t.Errorf("Start() error = %v, want ErrNoPIDFile", err)
		}
	})
}

func TestStart_Inline(t *testing.T) {
	t.Run("runs body in-process and never touches the PID file", func(t *testing.T) {
		pidPath := filepath.Join(t.TempDir(), "svc.pid")

		d, err := New(pidPath, WithInline(true), WithTerminateParent(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		ran := false
		err = d.Start(func(stop *Latch) error {
			ran = true
			if stop != d.Latch() {
				t.Error("body did not receive the daemon's latch")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if !ran {
			t.Error("service body did not run")
		}

		if NewPIDFile(pidPath).Exists() {
			t.Error("inline start created a PID file")
		}
		if d.Status() {
			t.Error("Status() = true after inline start, want false")
		}
	})

	t.Run("propagates body error", func(t *testing.T) {
		d, err := New("", WithInline(true), WithTerminateParent(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		wantErr := fmt.Errorf("body failed")
		err = d.Start(func(stop *Latch) error { return wantErr })
		if !errors.Is(err, wantErr) {
			t.Errorf("Start() error = %v, want %v", err, wantErr)
		}
	})
}

func TestStart_RefusesWhenPIDRecorded(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "svc.pid")
	if err := os.WriteFile(pidPath, []byte("4242\n"), 0o644); err != nil {
		t.Fatalf("failed to seed PID file: %v", err)
	}

	d, err := New(pidPath, WithTerminateParent(false))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = d.Start(func(stop *Latch) error {
		t.Error("service body ran despite recorded PID")
		return nil
	})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Start() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestStart_DetachStage(t *testing.T) {
	// Exercises the child side of the detachment sequence in-process.
	// The stage marker makes Start behave as the spawned child: it must
	// record our PID, run the body, and clean the PID file up afterwards.
	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	defer os.Chdir(oldWd)

	oldUmask := syscall.Umask(0)
	syscall.Umask(oldUmask)
	defer syscall.Umask(oldUmask)

	t.Setenv(detachStageEnv, "1")

	pidPath := filepath.Join(t.TempDir(), "svc.pid")
	d, err := New(pidPath, WithTerminateParent(false))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = d.Start(func(stop *Latch) error {
		pid, err := NewPIDFile(pidPath).Read()
		if err != nil {
			t.Errorf("PID file unreadable while body runs: %v", err)
		}
		if pid != os.Getpid() {
			t.Errorf("recorded PID = %d, want %d", pid, os.Getpid())
		}

		wd, _ := os.Getwd()
		if wd != "/" {
			t.Errorf("working directory = %q, want /", wd)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if NewPIDFile(pidPath).Exists() {
		t.Error("PID file not removed after body returned")
	}
}

func TestStop(t *testing.T) {
	t.Run("no recorded PID reports failure without touching the filesystem", func(t *testing.T) {
		pidPath := filepath.Join(t.TempDir(), "svc.pid")

		d, err := New(pidPath, WithTerminateParent(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		if err := d.Stop(); !errors.Is(err, ErrNotRunning) {
			t.Errorf("Stop() error = %v, want ErrNotRunning", err)
		}
		if NewPIDFile(pidPath).Exists() {
			t.Error("Stop() created a PID file")
		}
	})

	t.Run("stale PID self-heals by removing the PID file", func(t *testing.T) {
		pidPath := filepath.Join(t.TempDir(), "svc.pid")
		stale := exitedPID(t)
		if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", stale)), 0o644); err != nil {
			t.Fatalf("failed to seed PID file: %v", err)
		}

		d, err := New(pidPath, WithTerminateParent(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		if err := d.Stop(); !errors.Is(err, ErrStaleProcess) {
			t.Errorf("Stop() error = %v, want ErrStaleProcess", err)
		}
		if NewPIDFile(pidPath).Exists() {
			t.Error("stale PID file not removed")
		}
	})

	t.Run("signals a live process and clears the cached PID", func(t *testing.T) {
		cmd := exec.Command("sleep", "60")
		if err := cmd.Start(); err != nil {
			t.Fatalf("failed to start sleep process: %v", err)
		}
		defer func() {
			cmd.Process.Kill()
			cmd.Wait()
		}()

		pidPath := filepath.Join(t.TempDir(), "svc.pid")
		if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", cmd.Process.Pid)), 0o644); err != nil {
			t.Fatalf("failed to seed PID file: %v", err)
		}

		d, err := New(pidPath, WithTerminateParent(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		if err := d.Stop(); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		if d.PID() != 0 {
			t.Errorf("PID() = %d after Stop(), want 0", d.PID())
		}
	})
}

func TestRestart(t *testing.T) {
	t.Run("starts the body even when there is nothing to stop", func(t *testing.T) {
		pidPath := filepath.Join(t.TempDir(), "svc.pid")

		d, err := New(pidPath, WithInline(true), WithTerminateParent(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		ran := false
		began := time.Now()
		err = d.Restart(func(stop *Latch) error {
			ran = true
			return nil
		})
		if err != nil {
			t.Fatalf("Restart() error = %v", err)
		}
		if !ran {
			t.Error("service body did not run after restart")
		}
		if elapsed := time.Since(began); elapsed < restartGrace {
			t.Errorf("restart took %v, want at least the %v grace interval", elapsed, restartGrace)
		}
		if NewPIDFile(pidPath).Exists() {
			t.Error("inline restart created a PID file")
		}
	})

	t.Run("stops a recorded stale process before starting", func(t *testing.T) {
		pidPath := filepath.Join(t.TempDir(), "svc.pid")
		if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", exitedPID(t))), 0o644); err != nil {
			t.Fatalf("failed to seed PID file: %v", err)
		}

		d, err := New(pidPath, WithInline(true), WithTerminateParent(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		ran := false
		err = d.Restart(func(stop *Latch) error {
			ran = true
			return nil
		})
		if err != nil {
			t.Fatalf("Restart() error = %v", err)
		}
		if !ran {
			t.Error("service body did not run after restart")
		}
		if NewPIDFile(pidPath).Exists() {
			t.Error("stale PID file not removed by the stop phase")
		}
	})

	t.Run("propagates body error from the start phase", func(t *testing.T) {
		d, err := New(filepath.Join(t.TempDir(), "svc.pid"),
			WithInline(true), WithTerminateParent(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		wantErr := fmt.Errorf("body failed")
		err = d.Restart(func(stop *Latch) error { return wantErr })
		if !errors.Is(err, wantErr) {
			t.Errorf("Restart() error = %v, want %v", err, wantErr)
		}
	})
}

func TestStatus(t *testing.T) {
	t.Run("alive process", func(t *testing.T) {
		pidPath := filepath.Join(t.TempDir(), "svc.pid")
		if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
			t.Fatalf("failed to seed PID file: %v", err)
		}

		d, err := New(pidPath, WithTerminateParent(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		if !d.Status() {
			t.Error("Status() = false for live process, want true")
		}
	})

	t.Run("dead process", func(t *testing.T) {
		pidPath := filepath.Join(t.TempDir(), "svc.pid")
		if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", exitedPID(t))), 0o644); err != nil {
			t.Fatalf("failed to seed PID file: %v", err)
		}

		d, err := New(pidPath, WithTerminateParent(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		if d.Status() {
			t.Error("Status() = true for dead process, want false")
		}
	})

	t.Run("is a pure predicate", func(t *testing.T) {
		pidPath := filepath.Join(t.TempDir(), "svc.pid")
		if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
			t.Fatalf("failed to seed PID file: %v", err)
		}

		d, err := New(pidPath, WithTerminateParent(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		first := d.Status()
		for i := 0; i < 5; i++ {
			if d.Status() != first {
				t.Fatal("Status() changed across calls with no intervening start/stop")
			}
		}
		if d.PID() != os.Getpid() {
			t.Errorf("Status() mutated cached PID: got %d", d.PID())
		}
		if !NewPIDFile(pidPath).Exists() {
			t.Error("Status() removed the PID file")
		}
	})
}
