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

// Package service translates operator command-line intent into daemon
// lifecycle operations. It is a thin façade over pkg/daemon: a
// Controller resolves the requested command and configuration,
// constructs a Daemon bound to a PID file, and drives the matching
// operation.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daemonet/daemonet/internal/log"
	"github.com/daemonet/daemonet/internal/styles"
	"github.com/daemonet/daemonet/pkg/daemon"
)

// DefaultCommands is the stock command vocabulary. Embedding
// applications may extend it with WithSupportedCommands; Launch also
// understands "restart".
var DefaultCommands = []string{"start", "stop", "status"}

// Controller drives daemon lifecycle commands for one named service.
// Each Controller instance carries its own configuration; there are no
// shared defaults across instances.
type Controller struct {
	scriptName string
	supported  []string
	command    string
	configPath string
	pidfile    string
	dry        bool
	batch      bool
	verbose    int
	cfg        *Config
	out        io.Writer
	logger     *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithSupportedCommands replaces the command vocabulary.
func WithSupportedCommands(cmds []string) Option {
	return func(c *Controller) { c.supported = cmds }
}

// WithCommand predefines the command, bypassing positional-argument
// resolution.
func WithCommand(cmd string) Option {
	return func(c *Controller) { c.command = cmd }
}

// WithConfigPath sets the default configuration file location,
// overridable on the command line with -c.
func WithConfigPath(path string) Option {
	return func(c *Controller) { c.configPath = path }
}

// WithPIDFile fixes the PID file path instead of deriving it from the
// script name.
func WithPIDFile(path string) Option {
	return func(c *Controller) { c.pidfile = path }
}

// WithOutput redirects the one-line human-readable outcomes. Defaults
// to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Controller) { c.out = w }
}

// New returns a Controller for the service known to operators as
// scriptName. The name also seeds the default PID file and config
// locations.
func New(scriptName string, opts ...Option) *Controller {
	c := &Controller{
		scriptName: scriptName,
		supported:  DefaultCommands,
		out:        os.Stdout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.configPath == "" {
		c.configPath = DefaultConfigPath(scriptName)
	}
	return c
}

// Command returns the resolved command name.
func (c *Controller) Command() string {
	return c.command
}

// Dry reports whether -d/--dry was given: report only, run inline.
func (c *Controller) Dry() bool {
	return c.dry
}

// Batch reports whether -b/--batch was given. The flag is informational
// to the core; the service body decides what a single pass means.
func (c *Controller) Batch() bool {
	return c.batch
}

// NewCommand builds the cobra command implementing the control surface:
//
//	<script> [flags] {start|stop|status|restart}
//
// Usage errors (wrong argument count, unsupported command, dry/batch
// with anything but start) surface through cobra's usage-and-nonzero
// exit contract.
func (c *Controller) NewCommand(body daemon.Body) *cobra.Command {
	cmd := &cobra.Command{
		Use:           fmt.Sprintf("%s [flags] {%s}", c.scriptName, strings.Join(c.supported, "|")),
		Short:         fmt.Sprintf("Control the %s service", c.scriptName),
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.CheckArgs(args); err != nil {
				return err
			}
			// Validation passed; anything past here is an operational
			// failure, not misuse.
			cmd.SilenceUsage = true

			d, err := c.NewDaemon()
			if err != nil {
				return err
			}
			return c.Launch(d, body)
		},
	}

	f := cmd.Flags()
	f.CountVarP(&c.verbose, "verbose", "v", "raise logging verbosity")
	f.BoolVarP(&c.dry, "dry", "d", false, "dry run - report only, do not execute")
	f.BoolVarP(&c.batch, "batch", "b", false, "single pass batch mode")
	f.StringVarP(&c.configPath, "config", "c", c.configPath, "override default config")

	return cmd
}

// CheckArgs resolves the command from the positional arguments (unless
// predefined) and validates flag/command combinations, then configures
// logging for the run.
func (c *Controller) CheckArgs(args []string) error {
	if c.command == "" {
		if len(args) != 1 {
			return fmt.Errorf("incorrect number of arguments")
		}
		cmd := args[0]

		if !slices.Contains(c.supported, cmd) {
			return fmt.Errorf("command %q not supported", cmd)
		}

		if cmd != "start" && (c.dry || c.batch) {
			return fmt.Errorf("invalid option(s) with command %q", cmd)
		}

		c.command = cmd
	}

	c.configureLogging()
	return nil
}

// configureLogging builds the process-wide logger. Status queries and
// dry runs talk to an operator, so they get console text output; the
// rest follows terminal autodetection. Verbosity raises the level from
// info through debug to trace.
func (c *Controller) configureLogging() {
	cfg := log.FromEnv()

	// Verbosity flags win, then the config file, then whatever the
	// environment derived.
	switch {
	case c.verbose > 0:
		cfg.Level = log.VerbosityLevel(c.verbose)
	case c.config().Log.Level != "":
		cfg.Level = c.config().Log.Level
	}

	if c.command == "status" || c.dry {
		cfg.Format = log.FormatText
	} else if c.config().Log.Format != "" {
		cfg.Format = log.Format(c.config().Log.Format)
	} else {
		cfg.Format = log.DetectFormat(os.Stderr)
	}

	c.logger = log.WithComponent(log.New(cfg), c.scriptName)
	slog.SetDefault(c.logger)

	c.logger.Debug("command resolved", log.CommandKey, c.command)
	if c.verbose > 0 {
		c.logger.Debug("logging verbosity raised", "level", cfg.Level)
	}
}

// config lazily loads the configuration file. A missing file yields an
// empty config; a malformed one is logged and treated as empty so a bad
// config cannot brick service control.
func (c *Controller) config() *Config {
	if c.cfg == nil {
		cfg, err := LoadConfig(c.configPath)
		if err != nil {
			c.logger.Warn("ignoring unreadable config", "path", c.configPath, log.Error(err))
			cfg = &Config{}
		}
		c.cfg = cfg
	}
	return c.cfg
}

// NewDaemon constructs the Daemon targeted by the resolved command. The
// PID file path comes from, in order: WithPIDFile, the config file, the
// per-user default derived from the script name.
func (c *Controller) NewDaemon() (*daemon.Daemon, error) {
	pidfile := c.pidfile
	if pidfile == "" {
		pidfile = c.config().PIDFile
	}
	if pidfile == "" {
		pidfile = DefaultPIDFilePath(c.scriptName)
	}

	opts := []daemon.Option{daemon.WithLogger(c.logger)}
	if c.config().DetachLog != "" {
		opts = append(opts, daemon.WithDetachLog(c.config().DetachLog))
	}

	return daemon.New(pidfile, opts...)
}

// Launch drives the resolved command against d, printing a one-line
// outcome for the operator.
func (c *Controller) Launch(d *daemon.Daemon, body daemon.Body) error {
	switch c.command {
	case "start":
		msg := "Starting " + c.scriptName
		if c.dry {
			d.SetInline(true)
			msg += " inline"
		} else {
			msg += " as daemon"
		}
		if c.batch {
			msg += " (batch mode)"
		}
		fmt.Fprintf(c.out, "%s ...\n", msg)

		if err := d.Start(body); err != nil {
			fmt.Fprintln(c.out, styles.RenderError("Start aborted"))
			return err
		}
		return nil

	case "stop":
		fmt.Fprintf(c.out, "Stopping %s ...\n", c.scriptName)
		if err := d.Stop(); err != nil {
			fmt.Fprintln(c.out, styles.RenderError("Stop aborted"))
			return err
		}
		fmt.Fprintln(c.out, styles.RenderOK("OK"))
		return nil

	case "status":
		if d.Status() {
			line := fmt.Sprintf("%s is running with PID %d", c.scriptName, d.PID())
			if !daemon.SameExecutable(d.PID()) {
				line += " " + styles.Muted.Render("(not this executable - stale PID file?)")
			}
			fmt.Fprintln(c.out, styles.RenderOK(line))
		} else {
			fmt.Fprintf(c.out, "%s is idle\n", c.scriptName)
		}
		return nil

	case "restart":
		fmt.Fprintf(c.out, "Restarting %s ...\n", c.scriptName)
		if err := d.Restart(body); err != nil {
			fmt.Fprintln(c.out, styles.RenderError("Restart aborted"))
			return err
		}
		return nil

	default:
		return fmt.Errorf("do not know command %q", c.command)
	}
}
