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

/*
Package daemon turns a long-running service body into a controllable
background process on POSIX systems.

A Daemon is bound to a PID file, which is the sole durable evidence that
an instance is running: the detached process writes its own PID there on
startup and removes it when the body returns. Later invocations of the
same program construct a Daemon against the same path and use Stop,
Status and Restart to control the recorded process.

# Starting

Start either runs the body inline (useful for tests and foreground
operation) or detaches. Detachment re-executes the current binary in a
new session with stdin/stdout/stderr on the null device, since the
classic double fork is not expressible under the Go runtime. The four
observable effects are the same: the parent does not block, the child is
detached from the controlling terminal, the standard streams are
redirected, and the PID is durably recorded before the body begins.

	d, err := daemon.New("/var/run/myapp.pid")
	if err != nil {
	    // corrupt PID file or unusable path
	}
	err = d.Start(func(stop *daemon.Latch) error {
	    for {
	        select {
	        case <-stop.Done():
	            return nil
	        case <-time.After(5 * time.Second):
	            // do work
	        }
	    }
	})

# Shutdown

Shutdown is cooperative. Stop sends SIGTERM to the recorded PID; the
detached process's default handler logs the interception and sets the
cancellation Latch, and the body is expected to observe the latch and
return promptly. The framework never forces termination.

# PID file semantics

The PID file is advisory. It is read and written without any locking
primitive, so two concurrent Start calls against the same path can both
observe an empty slot; callers who need a hard guarantee must serialize
start attempts themselves. Stop self-heals a stale file left behind by a
crashed process (ESRCH on signal delivery removes the file).
*/
package daemon
