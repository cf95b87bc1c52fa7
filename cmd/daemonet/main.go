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

// Command daemonet is a reference service built on pkg/daemon and
// pkg/service: a heartbeat loop that can be started, stopped, queried
// and restarted like any embedding application would be.
package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/daemonet/daemonet/pkg/daemon"
	"github.com/daemonet/daemonet/pkg/service"
)

const heartbeatInterval = 5 * time.Second

func main() {
	ctl := service.New("daemonet",
		service.WithSupportedCommands([]string{"start", "stop", "status", "restart"}))
	cmd := ctl.NewCommand(heartbeat(ctl))
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// heartbeat returns a service body that logs a pulse until shutdown is
// requested. In batch mode it exits after a single pulse.
func heartbeat(ctl *service.Controller) daemon.Body {
	return func(stop *daemon.Latch) error {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop.Done():
				slog.Info("shutdown requested, exiting")
				return nil
			case t := <-ticker.C:
				slog.Info("heartbeat", "at", t.Format(time.RFC3339))
				if ctl.Batch() {
					return nil
				}
			}
		}
	}
}
