// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/hotlink/pkg/config"
	"github.com/Thermoquad/hotlink/pkg/logging"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	cfgFile  string
	logLevel string

	// set by the root pre-run
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hotlink",
	Short: "Hotkey display link tools",
	Long: `Hotlink - node runner and protocol tools for the hotkey display link.

Runs either end of the link (the touchscreen display or the USB bridge that
turns hotkeys into keystrokes) and provides tools for logging and sending
hotlink frames.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  Radio:     wireless.enabled in the config file (UDP broadcast emulation)

Settings come from --config (default ./hotlink.yaml), HOTLINK_* environment
variables and flags, in increasing priority.

For WebSocket authentication, the password is read from the HOTLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()

	// Serial connection flags
	flags.StringVarP(&portName, "port", "p", "", "Serial port device")
	flags.IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	flags.StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	flags.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	flags.StringVarP(&cfgFile, "config", "c", "", "Config file (yaml, toml or json)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// flagKeys maps persistent flags onto configuration keys
var flagKeys = map[string]string{
	"port":          "wired.port",
	"baud":          "wired.baud",
	"url":           "wired.url",
	"username":      "wired.username",
	"no-ssl-verify": "wired.noSSLVerify",
	"log-level":     "logging.level",
}

// setup loads configuration and builds the logger before any command runs
func setup(cmd *cobra.Command, _ []string) error {
	v := config.New()
	if err := config.Read(v, cfgFile); err != nil {
		return err
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	loaded, err := config.Decode(v)
	if err != nil {
		return err
	}
	cfg = loaded

	logger, err = logging.InitLogger(cfg.Logging)
	return err
}

// ExitError carries a process exit code out of a command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command error onto the process exit code
func ExitCode(err error) int {
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return 1
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
