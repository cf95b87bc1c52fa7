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

package daemon

import "errors"

var (
	// ErrNoPIDFile is returned when a daemon-mode operation is requested
	// without a PID file path configured.
	ErrNoPIDFile = errors.New("no PID file has been configured")

	// ErrInvalidPID is returned when an existing PID file contains
	// anything other than a positive decimal integer.
	ErrInvalidPID = errors.New("invalid PID in file")

	// ErrAlreadyRunning is returned by Start when a PID is already
	// recorded for this PID file. This is a best-effort check, not a
	// lock: the recorded process is not re-probed for liveness.
	ErrAlreadyRunning = errors.New("daemon may already be running")

	// ErrNotRunning is returned by Stop when no PID is recorded.
	ErrNotRunning = errors.New("no daemon PID recorded")

	// ErrStaleProcess is returned by Stop when the recorded process no
	// longer exists. The PID file is removed as a side effect.
	ErrStaleProcess = errors.New("recorded process does not exist")
)
