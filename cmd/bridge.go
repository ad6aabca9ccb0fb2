// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/hotlink/pkg/logging"
	"github.com/Thermoquad/hotlink/pkg/node"
)

var publishTime time.Duration

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run the bridge end of the link",
	Long: `Run the bridge role: receive hotkeys and media keys from the display,
emit them as keystrokes (logged here, as there is no USB HID device) and answer
every hotkey with HOTKEY_ACK.

The bridge pings the display on every link, pauses publishing while the display
is in configuration mode and can publish the host clock periodically.

Uses the wired link (--port or --url) and/or the radio (wireless.enabled).`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().DurationVar(&publishTime, "publish-time", time.Minute, "TIME_SYNC interval, 0 disables")
}

func runBridge(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, err := openTransports(ctx, node.RoleBridge)
	if err != nil {
		return err
	}

	opts, err := nodeOptions(node.RoleBridge)
	if err != nil {
		t.close()
		return err
	}
	obs := newObservability()
	opts.Keyboard = node.LogKeyboard{Log: logging.Component(logger, "hid")}
	opts.Observer = obs.observer()

	n, err := node.New(opts, t.links...)
	if err != nil {
		t.close()
		return err
	}

	for _, info := range t.info {
		fmt.Printf("Connection: %s\n", info)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if publishTime > 0 {
		go publishClock(ctx, n, publishTime)
	}
	return runNode(ctx, n, obs)
}

// publishClock queues a TIME_SYNC on the node loop every interval
func publishClock(ctx context.Context, n *node.Node, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	publish := func(n *node.Node) {
		if _, err := n.PublishTime(time.Now()); err != nil {
			logger.Warn("time sync", zap.Error(err))
		}
	}
	queue := func() {
		if err := n.Do(publish); err != nil {
			logger.Warn("time sync skipped", zap.Error(err))
		}
	}

	queue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			queue()
		}
	}
}
