// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
)

var probeTimeout int

var errProbeTimeout = errors.New("no valid frame received")

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the wired line by waiting for a valid frame",
	Long: `Wait for a valid hotlink frame on the serial port or WebSocket tunnel until
timeout.

Invalid bytes and frames failing the CRC check are skipped. A running peer
sends PING at least every few seconds, so a healthy line yields a frame well
within the default timeout.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runProbe(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(cmd.Context())
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}
	defer conn.Close()

	fmt.Printf("Hotlink - Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for a valid frame...\n\n")

	decoder := hotlink.NewDecoder()
	frames := make(chan hotlink.Message, 1)
	errc := make(chan error, 1)

	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			for i := 0; i < n; i++ {
				if msg, _ := decoder.DecodeByte(buf[i]); msg != nil {
					frames <- *msg
					return
				}
			}
			if err != nil {
				errc <- err
				return
			}
		}
	}()

	select {
	case msg := <-frames:
		if skipped := decoder.Statistics().DiscardedBytes; skipped > 0 {
			fmt.Printf("(skipped %d invalid bytes before sync)\n", skipped)
		}
		frame := hotlink.MustEncodeFrame(msg.Kind, msg.Payload)
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%02X)\n", hotlink.FormatKind(msg.Kind), uint8(msg.Kind))
		fmt.Printf("  Length: %d bytes\n", len(msg.Payload))
		fmt.Printf("  CRC: 0x%02X\n", frame[len(frame)-1])
		return nil

	case err := <-errc:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		return &ExitError{Code: 2, Err: err}

	case <-time.After(time.Duration(probeTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", probeTimeout)
		return &ExitError{Code: 1, Err: errProbeTimeout}
	}
}
