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

package service

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// DefaultPIDFilePath derives the per-user PID file location for a
// service from its script name: $XDG_STATE_HOME/pids/<name>.pid.
func DefaultPIDFilePath(name string) string {
	return filepath.Join(xdg.StateHome, "pids", name+".pid")
}

// DefaultConfigPath derives the per-user config file location:
// $XDG_CONFIG_HOME/<name>/config.yaml.
func DefaultConfigPath(name string) string {
	return filepath.Join(xdg.ConfigHome, name, "config.yaml")
}
