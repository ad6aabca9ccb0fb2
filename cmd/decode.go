// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
)

var decodeDatagram bool

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode one hex encoded frame",
	Long: `Decode one complete hotlink frame given as hex, e.g.

  hotlink decode AA 02 01 01 63 5D
  hotlink decode aa:02:01:01:63:5d

With --datagram the bytes are read as a radio datagram (TYPE then payload,
no framing).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := parseHex(args)
		if err != nil {
			return err
		}
		decode := hotlink.DecodeFrame
		if decodeDatagram {
			decode = hotlink.DecodeDatagram
		}
		msg, err := decode(data)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprint(out, hotlink.FormatMessage(msg, time.Now()))
		if err := hotlink.ValidateMessage(msg); err != nil {
			fmt.Fprintf(out, "  VALIDATION: %v\n", err)
		}
		return nil
	},
}

var encodeCmd = &cobra.Command{
	Use:   "encode <kind> [args]",
	Short: "Print the wire frame of a message as hex",
	Long: `Encode a message the way send would transmit it on the wired line and print
the frame and the radio datagram as hex. Arguments are the same as for send.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, payload, err := buildMessage(args, time.Now())
		if err != nil {
			return err
		}
		frame, err := hotlink.EncodeFrame(kind, payload)
		if err != nil {
			return err
		}
		datagram, err := hotlink.EncodeDatagram(kind, payload)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Frame:    %s\n", hotlink.FormatHex(frame))
		fmt.Fprintf(out, "Datagram: %s\n", hotlink.FormatHex(datagram))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd, encodeCmd)
	decodeCmd.Flags().BoolVar(&decodeDatagram, "datagram", false, "Decode a radio datagram instead of a frame")
}

// parseHex joins the arguments and accepts spaces, colons and 0x prefixes
func parseHex(args []string) ([]byte, error) {
	s := strings.ToLower(strings.Join(args, " "))
	s = strings.NewReplacer("0x", "", " ", "", ":", "", ",", "", "-", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return data, nil
}
