// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/hotlink/pkg/logging"
	"github.com/Thermoquad/hotlink/pkg/node"
)

var headless bool

var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "Run the display end of the link",
	Long: `Run the display role: a terminal UI standing in for the touchscreen.

The hotkey list sends HOTKEY to the bridge over the preferred link (falling back
to the other link when it is down) and counts the acknowledgements. Host stats,
notifications, clock updates and power signals from the bridge are shown as they
arrive. The screen dims after the idle timeout and switches to the clock when
the host shuts down.

Keys:
  enter  send the selected hotkey (or the custom one when the input is focused)
  tab    switch between the list and the custom hotkey input
  m      mute            p  play/pause
  d      display mode    b  brightness
  c      toggle configuration mode
  q      quit

With --headless the UI is replaced by log output.`,
	RunE: runDisplay,
}

func init() {
	rootCmd.AddCommand(displayCmd)
	displayCmd.Flags().BoolVar(&headless, "headless", false, "Log display calls instead of running the terminal UI")
}

func runDisplay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !headless {
		// console output would tear the UI, keep only the log file
		quiet, err := logging.New(cfg.Logging, io.Discard)
		if err != nil {
			return err
		}
		logger = quiet
	}

	t, err := openTransports(ctx, node.RoleDisplay)
	if err != nil {
		return err
	}

	opts, err := nodeOptions(node.RoleDisplay)
	if err != nil {
		t.close()
		return err
	}
	obs := newObservability()
	opts.Observer = obs.observer()

	if headless {
		opts.Display = node.LogDisplay{Log: logging.Component(logger, "display")}
		n, err := node.New(opts, t.links...)
		if err != nil {
			t.close()
			return err
		}
		for _, info := range t.info {
			fmt.Printf("Connection: %s\n", info)
		}
		fmt.Printf("Press Ctrl+C to exit\n\n")
		return runNode(ctx, n, obs)
	}

	ui := &tuiDisplay{}
	opts.Display = ui
	n, err := node.New(opts, t.links...)
	if err != nil {
		t.close()
		return err
	}
	return runDisplayTUI(ctx, n, obs, t, ui)
}

// runDisplayTUI runs the node loop in the background and the terminal UI in
// the foreground. Quitting the UI stops the loop.
func runDisplayTUI(ctx context.Context, n *node.Node, obs *observability, t *transports, ui *tuiDisplay) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newDisplayModel(n, t.info), tea.WithAltScreen(), tea.WithContext(ctx))
	ui.send = p.Send
	if t.wired != nil {
		t.wired.onChange = func(connected bool, info string) {
			p.Send(connectionMsg{connected: connected, info: info})
		}
	}

	done := make(chan error, 1)
	go func() {
		err := runNode(ctx, n, obs)
		if err != nil {
			p.Send(nodeStoppedMsg{err: err})
		}
		done <- err
	}()

	_, uiErr := p.Run()
	cancel()
	nodeErr := <-done

	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return fmt.Errorf("display UI: %w", uiErr)
	}
	if nodeErr != nil {
		logger.Error("node stopped", zap.Error(nodeErr))
	}
	return nodeErr
}
