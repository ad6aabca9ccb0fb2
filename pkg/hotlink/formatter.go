// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hotlink

import (
	"fmt"
	"strings"
	"time"
)

// FormatKind returns the human-readable name for a message kind
func FormatKind(kind Kind) string {
	switch kind {
	case KindHotkey:
		return "HOTKEY"
	case KindHotkeyAck:
		return "HOTKEY_ACK"
	case KindMediaKey:
		return "MEDIA_KEY"
	case KindStats:
		return "STATS"
	case KindPowerState:
		return "POWER_STATE"
	case KindTimeSync:
		return "TIME_SYNC"
	case KindNotification:
		return "NOTIFICATION"
	case KindConfigMode:
		return "CONFIG_MODE"
	case KindConfigDone:
		return "CONFIG_DONE"
	case KindPing:
		return "PING"
	default:
		return "UNKNOWN"
	}
}

// ParseKind looks up a kind by its wire name, case-insensitively
func ParseKind(name string) (Kind, bool) {
	name = strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	for _, k := range Kinds {
		if FormatKind(k) == name {
			return k, true
		}
	}
	return 0, false
}

// FormatMessage formats a message into a human-readable string
func FormatMessage(m Message, timestamp time.Time) string {
	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d\n",
		timestamp.Format("15:04:05.000"), FormatKind(m.Kind), uint8(m.Kind), len(m.Payload))
	return result + FormatPayload(m.Kind, m.Payload)
}

// FormatPayload formats a payload based on message kind
func FormatPayload(kind Kind, payload []byte) string {
	switch kind {
	case KindConfigMode, KindConfigDone, KindPing:
		return "  (no payload)\n"

	case KindHotkey:
		h, err := ParseHotkey(payload)
		if err != nil {
			return formatInvalid(err, payload)
		}
		return fmt.Sprintf("  Modifiers: %s (0x%02X), Keycode: 0x%02X\n",
			FormatModifiers(h.Modifiers), h.Modifiers, h.Keycode)

	case KindHotkeyAck:
		a, err := ParseHotkeyAck(payload)
		if err != nil {
			return formatInvalid(err, payload)
		}
		return fmt.Sprintf("  Status: %s (%d)\n", formatAckStatus(a.Status), a.Status)

	case KindMediaKey:
		mk, err := ParseMediaKey(payload)
		if err != nil {
			return formatInvalid(err, payload)
		}
		return fmt.Sprintf("  Consumer Code: 0x%04X\n", mk.Code)

	case KindStats:
		s, err := ParseStats(payload)
		if err != nil {
			return formatInvalid(err, payload)
		}
		return "  " + FormatStats(s) + "\n"

	case KindPowerState:
		p, err := ParsePowerState(payload)
		if err != nil {
			return formatInvalid(err, payload)
		}
		return fmt.Sprintf("  Signal: %s (%d)\n", formatPowerSignal(p.Signal), p.Signal)

	case KindTimeSync:
		t, err := ParseTimeSync(payload)
		if err != nil {
			return formatInvalid(err, payload)
		}
		return fmt.Sprintf("  Epoch: %d (%s)\n", t.Epoch, t.Time().UTC().Format(time.RFC3339))

	case KindNotification:
		n, err := ParseNotification(payload)
		if err != nil {
			return formatInvalid(err, payload)
		}
		return fmt.Sprintf("  App: %q, Summary: %q, Body: %q\n", n.AppName, n.Summary, n.Body)

	default:
		return fmt.Sprintf("  Raw: %s\n", FormatHex(payload))
	}
}

// FormatStats returns a one-line summary of the telemetry fields present
func FormatStats(s Stats) string {
	var parts []string
	add := func(name string, v *float64, unit string) {
		if v != nil {
			parts = append(parts, fmt.Sprintf("%s=%.1f%s", name, *v, unit))
		}
	}
	add("CPU", s.CPUPercent, "%")
	add("RAM", s.RAMPercent, "%")
	add("GPU", s.GPUPercent, "%")
	add("CPUTemp", s.CPUTemp, "°C")
	add("GPUTemp", s.GPUTemp, "°C")
	add("RX", s.NetRxKBps, "kB/s")
	add("TX", s.NetTxKBps, "kB/s")
	add("Disk", s.DiskPercent, "%")
	if len(parts) == 0 {
		return "(empty)"
	}
	return strings.Join(parts, ", ")
}

// FormatHex formats bytes as space separated hex, e.g. "AA 02 01"
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

func formatInvalid(err error, payload []byte) string {
	return fmt.Sprintf("  INVALID: %v\n  Raw: %s\n", err, FormatHex(payload))
}

func formatAckStatus(s AckStatus) string {
	switch s {
	case AckOK:
		return "OK"
	case AckMalformed:
		return "MALFORMED"
	default:
		return "UNKNOWN"
	}
}

func formatPowerSignal(s PowerSignal) string {
	switch s {
	case PowerShutdown:
		return "SHUTDOWN"
	case PowerWake:
		return "WAKE"
	default:
		return "UNKNOWN"
	}
}

// FormatModifiers names the set HID modifier bits, e.g. "LCtrl+LShift"
func FormatModifiers(mods uint8) string {
	names := []string{"LCtrl", "LShift", "LAlt", "LGUI", "RCtrl", "RShift", "RAlt", "RGUI"}
	var set []string
	for i, name := range names {
		if mods&(1<<i) != 0 {
			set = append(set, name)
		}
	}
	if len(set) == 0 {
		return "none"
	}
	return strings.Join(set, "+")
}
