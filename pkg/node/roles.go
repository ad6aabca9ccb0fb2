// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/hotlink/pkg/dispatch"
	"github.com/Thermoquad/hotlink/pkg/hotlink"
	"github.com/Thermoquad/hotlink/pkg/link"
	"github.com/Thermoquad/hotlink/pkg/power"
)

func ping(dispatch.Inbound) error { return nil }

// Bridge role

func (n *Node) registerBridge() {
	n.table.Register(hotlink.KindHotkey, n.handleHotkey)
	n.table.Register(hotlink.KindMediaKey, n.handleMediaKey)
	n.table.Register(hotlink.KindPing, ping)
	n.table.Register(hotlink.KindConfigMode, func(in dispatch.Inbound) error {
		n.setPeerConfigMode(true, in.Link.Channel())
		return nil
	})
	n.table.Register(hotlink.KindConfigDone, func(in dispatch.Inbound) error {
		n.setPeerConfigMode(false, in.Link.Channel())
		return nil
	})
}

func (n *Node) handleHotkey(in dispatch.Inbound) error {
	h, err := hotlink.ParseHotkey(in.Message.Payload)
	if err != nil {
		return err
	}
	if err := n.opts.Keyboard.FireKeystroke(h.Modifiers, h.Keycode); err != nil {
		return fmt.Errorf("fire keystroke: %w", err)
	}
	return nil
}

func (n *Node) handleMediaKey(in dispatch.Inbound) error {
	m, err := hotlink.ParseMediaKey(in.Message.Payload)
	if err != nil {
		return err
	}
	if err := n.opts.Keyboard.FireMediaKey(m.Code); err != nil {
		return fmt.Errorf("fire media key: %w", err)
	}
	return nil
}

func (n *Node) setPeerConfigMode(active bool, channel link.Channel) {
	if n.configMode != active {
		n.log.Info("display config mode", zap.Bool("active", active), zap.Stringer("channel", channel))
	}
	n.configMode = active
}

// Publish sends a host message to the display on every link and returns how
// many links accepted it. Nothing is sent while the display is configuring.
func (n *Node) Publish(kind hotlink.Kind, payload []byte) (int, error) {
	if n.opts.Role != RoleBridge {
		return 0, ErrWrongRole
	}
	if len(payload) > hotlink.MaxPayloadSize {
		return 0, fmt.Errorf("publish %s: %w", kind, hotlink.ErrPayloadTooLarge)
	}
	if n.configMode {
		n.log.Debug("publish paused", zap.Stringer("kind", kind))
		return 0, nil
	}
	sent := 0
	for _, p := range n.ports {
		if link.Broadcast(p.link, kind, payload) {
			sent++
		}
	}
	return sent, nil
}

// PublishStats publishes host telemetry
func (n *Node) PublishStats(s hotlink.Stats) (int, error) {
	payload, err := s.Marshal()
	if err != nil {
		return 0, err
	}
	return n.Publish(hotlink.KindStats, payload)
}

// PublishPower publishes a host power transition
func (n *Node) PublishPower(signal hotlink.PowerSignal) (int, error) {
	return n.Publish(hotlink.KindPowerState, hotlink.PowerState{Signal: signal}.Marshal())
}

// PublishTime publishes the host clock
func (n *Node) PublishTime(t time.Time) (int, error) {
	return n.Publish(hotlink.KindTimeSync, hotlink.NewTimeSync(t).Marshal())
}

// PublishNotification publishes a desktop notification
func (n *Node) PublishNotification(note hotlink.Notification) (int, error) {
	return n.Publish(hotlink.KindNotification, note.Marshal())
}

// Display role

func (n *Node) registerDisplay() {
	n.table.Register(hotlink.KindHotkeyAck, n.handleAck)
	n.table.Register(hotlink.KindStats, func(in dispatch.Inbound) error {
		s, err := hotlink.ParseStats(in.Message.Payload)
		if err != nil {
			return err
		}
		n.opts.Display.UpdateStats(s)
		return nil
	})
	n.table.Register(hotlink.KindPowerState, n.handlePowerState)
	n.table.Register(hotlink.KindTimeSync, func(in dispatch.Inbound) error {
		ts, err := hotlink.ParseTimeSync(in.Message.Payload)
		if err != nil {
			return err
		}
		n.opts.Display.SetTime(ts.Time())
		return nil
	})
	n.table.Register(hotlink.KindNotification, func(in dispatch.Inbound) error {
		note, err := hotlink.ParseNotification(in.Message.Payload)
		if err != nil {
			return err
		}
		n.opts.Display.ShowNotification(note)
		return nil
	})
	n.table.Register(hotlink.KindPing, ping)
}

func (n *Node) handleAck(in dispatch.Inbound) error {
	ack, err := hotlink.ParseHotkeyAck(in.Message.Payload)
	if err != nil {
		return err
	}
	n.acks++
	n.lastAck = ack.Status
	if ack.Status != hotlink.AckOK {
		n.ackErrors++
		n.log.Warn("hotkey rejected by bridge", zap.Uint8("status", uint8(ack.Status)))
		return nil
	}
	n.log.Debug("hotkey acknowledged", zap.Stringer("channel", in.Link.Channel()))
	return nil
}

func (n *Node) handlePowerState(in dispatch.Inbound) error {
	ps, err := hotlink.ParsePowerState(in.Message.Payload)
	if err != nil {
		return err
	}
	switch ps.Signal {
	case hotlink.PowerShutdown:
		n.power.ShutdownReceived(in.Now)
	case hotlink.PowerWake:
		n.power.WakeDetected(in.Now)
	default:
		return fmt.Errorf("unknown power signal %d", ps.Signal)
	}
	return nil
}

// powerChanged couples the display mode to the power state: the clock screen
// follows a host shutdown and the hotkey view returns on wake.
func (n *Node) powerChanged(from, to power.State, reason power.Reason) {
	n.log.Info("power state",
		zap.Stringer("from", from), zap.Stringer("to", to), zap.String("reason", string(reason)))
	switch {
	case to == power.StateClock:
		n.power.SetDisplayMode(power.ModeClock)
		n.opts.Display.ShowClockMode()
	case from == power.StateClock && to == power.StateActive:
		n.power.SetDisplayMode(power.ModeHotkeys)
		n.opts.Display.ShowHotkeyView()
	}
}

// PressHotkey records a touch and sends the hotkey on the command link. It
// reports whether the link accepted the message.
func (n *Node) PressHotkey(modifiers uint8, keycode uint16) bool {
	return n.command(hotlink.KindHotkey, hotlink.Hotkey{Modifiers: modifiers, Keycode: keycode}.Marshal())
}

// PressMediaKey records a touch and sends a consumer control code
func (n *Node) PressMediaKey(code uint16) bool {
	return n.command(hotlink.KindMediaKey, hotlink.MediaKey{Code: code}.Marshal())
}

func (n *Node) command(kind hotlink.Kind, payload []byte) bool {
	if n.opts.Role != RoleDisplay {
		n.log.Warn("command ignored outside display role", zap.Stringer("kind", kind))
		return false
	}
	now := n.now()
	n.power.Activity(now)
	l := n.commandLink(now)
	if !l.Send(kind, payload) {
		n.log.Warn("command not sent", zap.Stringer("kind", kind), zap.Stringer("channel", l.Channel()))
		return false
	}
	return true
}

// CycleDisplayMode records a touch and advances the display mode
func (n *Node) CycleDisplayMode() power.DisplayMode {
	n.power.Activity(n.now())
	mode := n.power.CycleDisplayMode()
	if n.opts.Display != nil {
		switch mode {
		case power.ModeClock:
			n.opts.Display.ShowClockMode()
		case power.ModeHotkeys:
			n.opts.Display.ShowHotkeyView()
		}
	}
	return mode
}

// CycleBrightness records a touch and advances the brightness preset. A touch
// that wakes a dimmed screen only wakes it.
func (n *Node) CycleBrightness() bool {
	wasActive := n.power.State() == power.StateActive
	n.power.Activity(n.now())
	if !wasActive {
		return false
	}
	return n.power.CycleBrightness()
}

// EnterConfigMode announces configuration mode to the bridge on every link
func (n *Node) EnterConfigMode() {
	n.setConfigMode(true, hotlink.KindConfigMode)
}

// ExitConfigMode announces the end of configuration mode
func (n *Node) ExitConfigMode() {
	n.setConfigMode(false, hotlink.KindConfigDone)
}

func (n *Node) setConfigMode(active bool, kind hotlink.Kind) {
	if n.opts.Role != RoleDisplay {
		return
	}
	n.power.Activity(n.now())
	n.configMode = active
	n.opts.Display.SetConfigMode(active)
	for _, p := range n.ports {
		if !link.Broadcast(p.link, kind, nil) {
			n.log.Warn("config mode not announced", zap.Stringer("channel", p.link.Channel()))
		}
	}
}
