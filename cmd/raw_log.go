// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
)

var (
	showAll       bool
	statsInterval int
)

// rawLogIdleFlush is how long the line must be quiet before an unfinished
// frame is dropped
const rawLogIdleFlush = 100 * time.Millisecond

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Decode and display frames from the wired line",
	Long: `Continuously decode and display hotlink frames as they arrive on the
serial port or WebSocket tunnel.

Framing errors (CRC mismatch, oversize length) are highlighted as they happen,
once the decoder has synchronized on the first valid frame. Messages of unknown
kind or with short payloads are reported as validation errors. Statistics are
printed every --stats-interval seconds.

By default every frame is printed. Use --show-all=false to print errors only.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&showAll, "show-all", true, "Show all frames (not just errors)")
	rawLogCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics interval in seconds, 0 disables")
}

// frameLogger decodes a byte stream and prints frames, errors and sync state
type frameLogger struct {
	out     io.Writer
	decoder *hotlink.Decoder
	showAll bool

	// decode errors before the first valid frame are not reported
	synchronized bool
}

func newFrameLogger(out io.Writer, showAll bool) *frameLogger {
	return &frameLogger{out: out, decoder: hotlink.NewDecoder(), showAll: showAll}
}

func (l *frameLogger) feed(data []byte, now time.Time) {
	for _, b := range data {
		msg, err := l.decoder.DecodeByte(b)
		if err != nil && l.synchronized {
			fmt.Fprintf(l.out, "[%s] \033[1;31mDECODE ERROR:\033[0m %v\n\n", now.Format("15:04:05.000"), err)
		}
		// a resync can complete more than one frame
		for ; msg != nil; msg = l.decoder.Next() {
			l.emit(*msg, now)
		}
	}
}

// flush drops an unfinished frame after the line went quiet and prints the
// frames it was holding back
func (l *frameLogger) flush(now time.Time) {
	if l.decoder.Pending() == 0 {
		return
	}
	l.decoder.Flush()
	if l.synchronized {
		fmt.Fprintf(l.out, "[%s] \033[1;31mDECODE ERROR:\033[0m line idle, unfinished frame dropped\n\n", now.Format("15:04:05.000"))
	}
	for msg := l.decoder.Next(); msg != nil; msg = l.decoder.Next() {
		l.emit(*msg, now)
	}
}

func (l *frameLogger) emit(msg hotlink.Message, now time.Time) {
	if !l.synchronized {
		l.synchronized = true
		if skipped := l.decoder.Statistics().DiscardedBytes; skipped > 0 {
			fmt.Fprintf(l.out, "[SYNC] Synchronized after skipping %d invalid bytes\n\n", skipped)
		} else {
			fmt.Fprintf(l.out, "[SYNC] Synchronized\n\n")
		}
	}
	l.print(msg, now)
}

func (l *frameLogger) print(msg hotlink.Message, now time.Time) {
	var verr *hotlink.ValidationError
	if err := hotlink.ValidateMessage(msg); errors.As(err, &verr) {
		fmt.Fprintf(l.out, "[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n",
			now.Format("15:04:05.000"), hotlink.FormatKind(msg.Kind), uint8(msg.Kind))
		fmt.Fprintf(l.out, "  CRC: \033[1;32mOK\033[0m\n")
		fmt.Fprintf(l.out, "  Issue: %s (%s, len=%d)\n", verr.Message, verr.Type, verr.Length)
		fmt.Fprintf(l.out, "  Payload: %s\n\n", hotlink.FormatHex(msg.Payload))
		return
	}
	if l.showAll {
		fmt.Fprint(l.out, hotlink.FormatMessage(msg, now))
	}
}

func (l *frameLogger) printStatistics() {
	fmt.Fprintln(l.out)
	fmt.Fprint(l.out, l.decoder.Statistics().String())
	fmt.Fprintln(l.out)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Hotlink - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if statsInterval > 0 {
		fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	// reads block, so they run apart from the ticker
	chunks := make(chan []byte, 10)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				chunks <- data
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	var statsC <-chan time.Time
	if statsInterval > 0 {
		ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
		defer ticker.Stop()
		statsC = ticker.C
	}

	idle := time.NewTimer(rawLogIdleFlush)
	defer idle.Stop()

	fl := newFrameLogger(os.Stdout, showAll)
	for {
		select {
		case <-ctx.Done():
			fl.printStatistics()
			return nil
		case data := <-chunks:
			fl.feed(data, time.Now())
			idle.Reset(rawLogIdleFlush)
		case <-idle.C:
			fl.flush(time.Now())
		case err := <-readErr:
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				logger.Info("connection closed")
				return nil
			}
			logger.Error("read failed", zap.Error(err))
			return err
		case <-statsC:
			fl.printStatistics()
		}
	}
}
