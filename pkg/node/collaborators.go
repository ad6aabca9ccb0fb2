// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
	"github.com/Thermoquad/hotlink/pkg/power"
)

// Keyboard emits HID reports to the host. The bridge role drives it.
type Keyboard interface {
	FireKeystroke(modifiers uint8, keycode uint16) error
	FireMediaKey(code uint16) error
}

// Display is the user interface of the display role.
type Display interface {
	ShowClockMode()
	ShowHotkeyView()
	UpdateStats(stats hotlink.Stats)
	UpdateDeviceStatus(rssi int, linkUp bool, brightness power.Brightness)
	ShowNotification(n hotlink.Notification)
	SetTime(t time.Time)
	SetConfigMode(active bool)
}

// LogKeyboard is a Keyboard that logs the reports it would send.
type LogKeyboard struct {
	Log *zap.Logger
}

// FireKeystroke logs a key press
func (k LogKeyboard) FireKeystroke(modifiers uint8, keycode uint16) error {
	k.logger().Info("keystroke",
		zap.String("modifiers", hotlink.FormatModifiers(modifiers)),
		zap.Uint16("keycode", keycode))
	return nil
}

// FireMediaKey logs a consumer control press
func (k LogKeyboard) FireMediaKey(code uint16) error {
	k.logger().Info("media key", zap.Uint16("code", code))
	return nil
}

func (k LogKeyboard) logger() *zap.Logger {
	if k.Log == nil {
		return zap.NewNop()
	}
	return k.Log
}

// LogDisplay is a headless Display that logs every call.
type LogDisplay struct {
	Log *zap.Logger
}

func (d LogDisplay) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// ShowClockMode logs the view change
func (d LogDisplay) ShowClockMode() { d.logger().Info("show clock") }

// ShowHotkeyView logs the view change
func (d LogDisplay) ShowHotkeyView() { d.logger().Info("show hotkeys") }

// UpdateStats logs host telemetry
func (d LogDisplay) UpdateStats(s hotlink.Stats) {
	d.logger().Debug("stats", zap.String("stats", hotlink.FormatStats(s)))
}

// UpdateDeviceStatus logs link and backlight status
func (d LogDisplay) UpdateDeviceStatus(rssi int, linkUp bool, brightness power.Brightness) {
	d.logger().Debug("device status",
		zap.Int("rssi", rssi), zap.Bool("link_up", linkUp), zap.Uint8("brightness", uint8(brightness)))
}

// ShowNotification logs a desktop notification
func (d LogDisplay) ShowNotification(n hotlink.Notification) {
	d.logger().Info("notification",
		zap.String("app", n.AppName), zap.String("summary", n.Summary), zap.String("body", n.Body))
}

// SetTime logs a clock update
func (d LogDisplay) SetTime(t time.Time) { d.logger().Info("time sync", zap.Time("time", t)) }

// SetConfigMode logs configuration mode changes
func (d LogDisplay) SetConfigMode(active bool) {
	d.logger().Info("config mode", zap.Bool("active", active))
}
