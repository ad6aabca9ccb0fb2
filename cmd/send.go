// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
	"github.com/Thermoquad/hotlink/pkg/link"
	"github.com/Thermoquad/hotlink/pkg/node"
)

var (
	sendCount int
	sendWait  time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <kind> [args]",
	Short: "Send one hotlink message",
	Long: `Send one message over the wired link and/or the radio, as the host companion
of the bridge would.

Kinds:
  stats [cpu=12.5 ram=40 gpu= cputemp= gputemp= rx= tx= disk=]
  power shutdown|wake
  time [epoch]            (defaults to now)
  notify <app> <summary> [body]
  hotkey <modifiers> <keycode>   e.g. hotkey ctrl+shift 0x04
  media <code|mute|play|next|prev|volup|voldown>
  ping
  config-mode
  config-done

HOTKEY waits --wait for HOTKEY_ACK. PING waits for the peer's heartbeat
when node.pingInterval is set, since the peer only pings with it enabled.

Exit codes:
  0 - All messages sent (and answered, when a reply is expected)
  1 - One or more messages failed or timed out
  2 - Connection error`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().IntVar(&sendCount, "count", 1, "Number of times to send the message")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 2*time.Second, "Time to wait for a reply, 0 disables")
}

var mediaNames = map[string]uint16{
	"mute":    mediaMute,
	"play":    mediaPlayPause,
	"next":    0xB5,
	"prev":    0xB6,
	"volup":   0xE9,
	"voldown": 0xEA,
}

var statsKeys = map[string]func(*hotlink.Stats, float64){
	"cpu":     func(s *hotlink.Stats, v float64) { s.CPUPercent = hotlink.Float(v) },
	"ram":     func(s *hotlink.Stats, v float64) { s.RAMPercent = hotlink.Float(v) },
	"gpu":     func(s *hotlink.Stats, v float64) { s.GPUPercent = hotlink.Float(v) },
	"cputemp": func(s *hotlink.Stats, v float64) { s.CPUTemp = hotlink.Float(v) },
	"gputemp": func(s *hotlink.Stats, v float64) { s.GPUTemp = hotlink.Float(v) },
	"rx":      func(s *hotlink.Stats, v float64) { s.NetRxKBps = hotlink.Float(v) },
	"tx":      func(s *hotlink.Stats, v float64) { s.NetTxKBps = hotlink.Float(v) },
	"disk":    func(s *hotlink.Stats, v float64) { s.DiskPercent = hotlink.Float(v) },
}

var errUsage = errors.New("invalid arguments")

func usage(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// buildMessage turns the command arguments into a kind and payload
func buildMessage(args []string, now time.Time) (hotlink.Kind, []byte, error) {
	name, rest := strings.ToLower(args[0]), args[1:]

	switch name {
	case "stats":
		var s hotlink.Stats
		for _, kv := range rest {
			key, value, ok := strings.Cut(kv, "=")
			set, known := statsKeys[strings.ToLower(key)]
			if !ok || !known {
				return 0, nil, usage("stats field %q (want key=value)", kv)
			}
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return 0, nil, usage("stats value %q", kv)
			}
			set(&s, v)
		}
		payload, err := s.Marshal()
		return hotlink.KindStats, payload, err

	case "power":
		if len(rest) != 1 {
			return 0, nil, usage("power needs shutdown or wake")
		}
		switch strings.ToLower(rest[0]) {
		case "shutdown", "off":
			return hotlink.KindPowerState, hotlink.PowerState{Signal: hotlink.PowerShutdown}.Marshal(), nil
		case "wake", "on":
			return hotlink.KindPowerState, hotlink.PowerState{Signal: hotlink.PowerWake}.Marshal(), nil
		}
		return 0, nil, usage("power signal %q", rest[0])

	case "time":
		sync := hotlink.NewTimeSync(now)
		if len(rest) > 0 {
			epoch, err := strconv.ParseUint(rest[0], 10, 64)
			if err != nil {
				return 0, nil, usage("epoch %q", rest[0])
			}
			sync = hotlink.TimeSync{Epoch: epoch}
		}
		return hotlink.KindTimeSync, sync.Marshal(), nil

	case "notify", "notification":
		if len(rest) < 2 {
			return 0, nil, usage("notify needs an app name and a summary")
		}
		n := hotlink.Notification{AppName: rest[0], Summary: rest[1]}
		if len(rest) > 2 {
			n.Body = strings.Join(rest[2:], " ")
		}
		return hotlink.KindNotification, n.Marshal(), nil

	case "hotkey":
		var h hotlink.Hotkey
		var err error
		switch len(rest) {
		case 1:
			h, err = parseHotkeyCombo(rest[0])
		case 2:
			if h.Modifiers, err = parseModifiers(rest[0]); err == nil {
				h.Keycode, err = parseKeycode(rest[1])
			}
		default:
			return 0, nil, usage("hotkey needs modifiers and a keycode")
		}
		if err != nil {
			return 0, nil, usage("%v", err)
		}
		return hotlink.KindHotkey, h.Marshal(), nil

	case "media":
		if len(rest) != 1 {
			return 0, nil, usage("media needs a usage code")
		}
		code, ok := mediaNames[strings.ToLower(rest[0])]
		if !ok {
			var err error
			if code, err = parseKeycode(rest[0]); err != nil {
				return 0, nil, usage("%v", err)
			}
		}
		return hotlink.KindMediaKey, hotlink.MediaKey{Code: code}.Marshal(), nil

	case "ping":
		return hotlink.KindPing, nil, nil
	case "config-mode":
		return hotlink.KindConfigMode, nil, nil
	case "config-done":
		return hotlink.KindConfigDone, nil, nil
	}

	kind, ok := hotlink.ParseKind(name)
	if !ok {
		return 0, nil, usage("unknown kind %q", args[0])
	}
	return 0, nil, usage("kind %s needs its own arguments", kind)
}

// expectedReply returns the kind a peer answers with, if any. PING is only
// answered by a peer running the heartbeat.
func expectedReply(kind hotlink.Kind, heartbeat time.Duration) (hotlink.Kind, bool) {
	switch kind {
	case hotlink.KindHotkey:
		return hotlink.KindHotkeyAck, true
	case hotlink.KindPing:
		return hotlink.KindPing, heartbeat > 0
	}
	return 0, false
}

func runSend(cmd *cobra.Command, args []string) error {
	kind, payload, err := buildMessage(args, time.Now())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, err := openTransports(ctx, node.RoleBridge)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}
	defer t.close()
	for _, l := range t.links {
		if err := l.Init(); err != nil {
			return &ExitError{Code: 2, Err: err}
		}
	}

	for _, info := range t.info {
		fmt.Printf("Connection: %s\n", info)
	}
	fmt.Printf("Message: %s len=%d\n\n", hotlink.FormatKind(kind), len(payload))

	wait := sendWait
	if kind == hotlink.KindPing && wait > 0 && wait <= cfg.Node.PingInterval {
		// the peer only pings once per interval
		wait = cfg.Node.PingInterval + time.Second
	}

	failures := 0
	for i := 1; i <= sendCount; i++ {
		// small delay between messages
		if i > 1 {
			time.Sleep(100 * time.Millisecond)
		}

		fmt.Printf("Send %d/%d: ", i, sendCount)
		if !sendAll(t.links, kind, payload) {
			fmt.Printf("SEND FAILED\n")
			failures++
			continue
		}

		reply, waits := expectedReply(kind, cfg.Node.PingInterval)
		if !waits || wait <= 0 {
			fmt.Printf("sent\n")
			continue
		}

		start := time.Now()
		msg, ch, err := awaitReply(ctx, t.links, reply, wait)
		if err != nil {
			fmt.Printf("%v\n", err)
			failures++
			continue
		}
		fmt.Printf("%s on %s, rtt=%v\n%s", hotlink.FormatKind(msg.Kind), ch,
			time.Since(start).Round(time.Millisecond), hotlink.FormatPayload(msg.Kind, msg.Payload))
		if msg.Kind == hotlink.KindHotkeyAck {
			if ack, err := hotlink.ParseHotkeyAck(msg.Payload); err == nil && ack.Status != hotlink.AckOK {
				failures++
			}
		}
	}

	fmt.Printf("\n--- Send statistics ---\n")
	fmt.Printf("%d sent, %d failed\n", sendCount, failures)
	if failures > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d of %d messages failed", failures, sendCount)}
	}
	return nil
}

// sendAll broadcasts on every link and reports whether any accepted it
func sendAll(links []link.Link, kind hotlink.Kind, payload []byte) bool {
	sent := false
	for _, l := range links {
		if link.Broadcast(l, kind, payload) {
			sent = true
		}
	}
	return sent
}

// awaitReply polls the links until a message of the wanted kind arrives
func awaitReply(ctx context.Context, links []link.Link, want hotlink.Kind, wait time.Duration) (hotlink.Message, link.Channel, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	poll := time.NewTicker(5 * time.Millisecond)
	defer poll.Stop()

	for {
		for _, l := range links {
			for {
				msg, ok := l.Poll()
				if !ok {
					break
				}
				if msg.Kind == want {
					return msg, l.Channel(), nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return hotlink.Message{}, 0, ctx.Err()
		case <-deadline.C:
			return hotlink.Message{}, 0, fmt.Errorf("TIMEOUT (no %s in %v)", hotlink.FormatKind(want), wait)
		case <-poll.C:
		}
	}
}
