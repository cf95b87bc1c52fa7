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
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/daemonet/daemonet/internal/log"
)

// restartGrace is the pause between Stop and Start during a Restart,
// giving the OS time to reclaim the terminated process's resources.
// Restart does not poll for actual termination.
const restartGrace = 2 * time.Second

// Body is the caller-supplied service entry point. It receives the
// cancellation latch and is expected to observe it at bounded intervals
// and return promptly once it is set.
type Body func(stop *Latch) error

// Daemon manages the lifecycle of a single background service instance
// identified by a PID file. A Daemon is owned by the process that
// created it; cross-process visibility of state happens only through
// the PID file on disk.
type Daemon struct {
	pidfile    string
	termParent bool
	inline     bool
	detachLog  string
	pid        int
	latch      *Latch
	logger     *slog.Logger
}

// Option configures a Daemon at construction time.
type Option func(*Daemon)

// WithTerminateParent controls whether the invoking process exits after
// a successful detachment. Defaults to true; suppress it when running
// under a test harness that cannot tolerate its own process exiting.
func WithTerminateParent(v bool) Option {
	return func(d *Daemon) { d.termParent = v }
}

// WithInline selects inline mode: Start runs the body synchronously in
// the calling process and never touches the PID file.
func WithInline(v bool) Option {
	return func(d *Daemon) { d.inline = v }
}

// WithDetachLog redirects the detached process's standard streams to
// the given file instead of the null device, so log output survives
// detachment.
func WithDetachLog(path string) Option {
	return func(d *Daemon) { d.detachLog = path }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) { d.logger = l }
}

// New validates the PID file state and returns a Daemon bound to it.
//
// An empty pidfile suppresses daemonization entirely: construction
// succeeds but daemon-mode Start fails with ErrNoPIDFile. A relative
// path is rooted at / because the detached process changes its working
// directory there. If the file already exists its content must parse
// as a positive integer, otherwise New fails with ErrInvalidPID; a
// missing file means "possibly idle". The parent directory is created
// if needed.
func New(pidfile string, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		pidfile:    pidfile,
		termParent: true,
		latch:      NewLatch(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.pidfile == "" {
		return d, nil
	}

	if !filepath.IsAbs(d.pidfile) {
		d.logger.Debug("PID file path is relative, rooting at /", log.PIDFileKey, d.pidfile)
		d.pidfile = filepath.Join("/", d.pidfile)
	}

	if err := os.MkdirAll(filepath.Dir(d.pidfile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create PID file directory: %w", err)
	}

	pid, err := NewPIDFile(d.pidfile).Read()
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, err
	}

	d.logger.Debug("PID file exists", log.PIDFileKey, d.pidfile, log.PIDKey, pid)
	d.pid = pid

	return d, nil
}

// PID returns the cached PID, or 0 when none is recorded.
func (d *Daemon) PID() int {
	return d.pid
}

// Pidfile returns the absolute PID file path, or "" when daemonization
// is suppressed.
func (d *Daemon) Pidfile() string {
	return d.pidfile
}

// Latch returns the cancellation latch shared with the service body.
func (d *Daemon) Latch() *Latch {
	return d.latch
}

// SetInline switches between inline and daemon mode. Must be called
// before Start; the mode is fixed for that invocation.
func (d *Daemon) SetInline(v bool) {
	d.inline = v
}

// Inline reports whether Start will run the body inline.
func (d *Daemon) Inline() bool {
	return d.inline
}

// HandleTermination installs the default SIGTERM handler: log the
// interception, then set the cancellation latch. An embedding service
// body may install its own handler instead, as long as it preserves the
// latch-setting effect.
func (d *Daemon) HandleTermination() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM)
	go func() {
		<-ch
		d.logger.Info("SIGTERM intercepted, requesting shutdown")
		d.latch.Set()
	}()
}

// Start runs the service body.
//
// In inline mode the body is invoked directly in the calling process
// with the cancellation latch; the PID file is never touched.
//
// In daemon mode Start detaches and runs the body in the detached
// process. When a PID is already recorded for this PID file, Start logs
// a warning and returns ErrAlreadyRunning rather than guessing whether
// that instance is alive. On successful detachment the parent exits
// with status 0 unless WithTerminateParent(false) was given, in which
// case Start returns nil to the caller while the daemon runs on.
func (d *Daemon) Start(body Body) error {
	if d.inline {
		d.logger.Debug("running service body inline")
		return body(d.latch)
	}
	return d.startDaemon(body)
}

func (d *Daemon) startDaemon(body Body) error {
	if d.pidfile == "" {
		return ErrNoPIDFile
	}

	if inDetachStage() {
		return d.runDetached(body)
	}

	d.logger.Debug("checking daemon status", log.PIDKey, d.pid)
	if d.pid != 0 {
		d.logger.Warn("PID file exists, daemon may be running",
			log.PIDFileKey, d.pidfile, log.PIDKey, d.pid)
		return fmt.Errorf("%w: PID %d recorded in %s", ErrAlreadyRunning, d.pid, d.pidfile)
	}

	d.logger.Debug("starting daemon")
	pid, err := d.spawnDetached()
	if err != nil {
		d.logger.Error("failed to detach daemon process", log.Error(err))
		return fmt.Errorf("failed to detach daemon process: %w", err)
	}
	d.logger.Info("daemon process detached", log.PIDKey, pid, log.PIDFileKey, d.pidfile)

	if d.termParent {
		os.Exit(0)
	}

	return nil
}

// Stop sends SIGTERM to the recorded process. It confirms signal
// delivery only; it does not wait for the target to exit or for the PID
// file to disappear.
//
// With no recorded PID, Stop warns and returns ErrNotRunning without
// touching the filesystem. When delivery fails with ESRCH the stale PID
// file is removed and ErrStaleProcess returned. Any other delivery
// failure is logged and returned with no state change.
func (d *Daemon) Stop() error {
	if d.pid == 0 {
		d.logger.Warn("stopping process but unable to find PID", log.PIDFileKey, d.pidfile)
		return ErrNotRunning
	}

	d.logger.Debug("stopping daemon process", log.PIDKey, d.pid, log.SignalKey, "SIGTERM")

	if err := SendSignal(d.pid, syscall.SIGTERM); err != nil {
		d.logger.Error("failed to signal daemon", log.PIDKey, d.pid, log.Error(err))
		if errors.Is(err, syscall.ESRCH) {
			if d.pidfile != "" {
				d.logger.Warn("removing stale PID file", log.PIDFileKey, d.pidfile)
				if rmErr := NewPIDFile(d.pidfile).Remove(); rmErr != nil {
					d.logger.Warn("failed to remove stale PID file", log.Error(rmErr))
				}
			}
			return fmt.Errorf("%w: PID %d", ErrStaleProcess, d.pid)
		}
		return err
	}

	d.pid = 0
	return nil
}

// Status probes the recorded process with signal 0 and reports whether
// it is alive. It has no side effects and does not distinguish "no such
// process" from "no permission to signal"; both count as not alive.
func (d *Daemon) Status() bool {
	if d.pid == 0 {
		return false
	}
	return Alive(d.pid)
}

// Restart stops the recorded process, waits a fixed grace interval, and
// starts the body again. Best effort: the stop outcome is logged but
// does not gate the start, and actual termination is not polled for.
func (d *Daemon) Restart(body Body) error {
	d.logger.Info("attempting restart")

	if err := d.Stop(); err != nil {
		d.logger.Warn("stop before restart failed", log.Error(err))
	}

	time.Sleep(restartGrace)

	return d.Start(body)
}
