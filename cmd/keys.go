// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
)

// Consumer control usages bound to the display keys
const (
	mediaMute      = 0xE2
	mediaPlayPause = 0xCD
)

var modifierNames = map[string]uint8{
	"ctrl":   hotlink.ModLeftCtrl,
	"lctrl":  hotlink.ModLeftCtrl,
	"shift":  hotlink.ModLeftShift,
	"lshift": hotlink.ModLeftShift,
	"alt":    hotlink.ModLeftAlt,
	"lalt":   hotlink.ModLeftAlt,
	"gui":    hotlink.ModLeftGUI,
	"lgui":   hotlink.ModLeftGUI,
	"super":  hotlink.ModLeftGUI,
	"rctrl":  hotlink.ModRightCtrl,
	"rshift": hotlink.ModRightShift,
	"ralt":   hotlink.ModRightAlt,
	"rgui":   hotlink.ModRightGUI,
}

// parseModifiers accepts a number (0x03) or names joined by '+' (ctrl+shift)
func parseModifiers(s string) (uint8, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "none" {
		return 0, nil
	}
	if v, err := strconv.ParseUint(s, 0, 8); err == nil {
		return uint8(v), nil
	}
	var mods uint8
	for _, name := range strings.Split(s, "+") {
		bit, ok := modifierNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown modifier %q", name)
		}
		mods |= bit
	}
	return mods, nil
}

// parseKeycode accepts a decimal or 0x-prefixed HID usage up to 0xFFFF
func parseKeycode(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid keycode %q", s)
	}
	return uint16(v), nil
}

// parseHotkeyCombo parses "ctrl+shift+0x04": modifier names then the keycode
func parseHotkeyCombo(s string) (hotlink.Hotkey, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, "+")
	if i < 0 {
		code, err := parseKeycode(s)
		return hotlink.Hotkey{Keycode: code}, err
	}
	mods, err := parseModifiers(s[:i])
	if err != nil {
		return hotlink.Hotkey{}, err
	}
	code, err := parseKeycode(s[i+1:])
	if err != nil {
		return hotlink.Hotkey{}, err
	}
	return hotlink.Hotkey{Modifiers: mods, Keycode: code}, nil
}

// formatUptime formats a duration as a human friendly string
func formatUptime(d time.Duration) string {
	total := uint64(d / time.Second)
	units := []struct {
		name string
		size uint64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	parts := []string{}
	for _, u := range units {
		v := total / u.size
		total %= u.size
		if v == 0 && !(u.size == 1 && len(parts) == 0) {
			continue
		}
		if v == 1 {
			parts = append(parts, "1 "+u.name)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", v, u.name))
		}
	}

	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
}
