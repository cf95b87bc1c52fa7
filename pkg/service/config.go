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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the optional service configuration file.
type Config struct {
	// PIDFile overrides the derived PID file location.
	PIDFile string `yaml:"pidfile"`

	// DetachLog, when set, receives the detached process's standard
	// streams instead of the null device.
	DetachLog string `yaml:"detach_log"`

	// Log configures the structured logger. Command-line verbosity
	// flags take precedence over Level.
	Log LogConfig `yaml:"log"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level"`
	// Format is the output format (json, text).
	Format string `yaml:"format"`
}

// LoadConfig reads the YAML configuration at path. A missing file is
// not an error and yields an empty config; malformed YAML is.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return &cfg, nil
}
