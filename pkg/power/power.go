// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package power implements the display's power and display-mode state
// machine. Time is always passed in, so the machine is deterministic.
package power

import (
	"fmt"
	"strings"
	"time"
)

// DefaultIdleTimeout is how long without activity before the screen dims.
const DefaultIdleTimeout = 60 * time.Second

// State is the power state of the display.
type State int

const (
	StateActive State = iota
	StateDimmed
	StateClock
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateDimmed:
		return "DIMMED"
	case StateClock:
		return "CLOCK"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DisplayMode selects what the screen shows while active.
type DisplayMode int

const (
	ModeHotkeys DisplayMode = iota
	ModeClock
	ModePictureFrame
	ModeStandby
)

// displayModes is the cycle order
var displayModes = []DisplayMode{ModeHotkeys, ModeClock, ModePictureFrame, ModeStandby}

// String returns the display mode name
func (m DisplayMode) String() string {
	switch m {
	case ModeHotkeys:
		return "HOTKEYS"
	case ModeClock:
		return "CLOCK"
	case ModePictureFrame:
		return "PICTURE_FRAME"
	case ModeStandby:
		return "STANDBY"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the mode name in JSON
func (m DisplayMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseDisplayMode parses a display mode name
func ParseDisplayMode(s string) (DisplayMode, error) {
	name := strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
	for _, m := range displayModes {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown display mode %q", s)
}

// Brightness is a backlight level in percent.
type Brightness uint8

// Brightness presets
const (
	BrightnessDim    Brightness = 10
	BrightnessLow    Brightness = 30
	BrightnessMedium Brightness = 60
	BrightnessHigh   Brightness = 100
)

var brightnessPresets = []Brightness{BrightnessLow, BrightnessMedium, BrightnessHigh}

// Reason explains a state transition.
type Reason string

// Transition reasons
const (
	ReasonActivity Reason = "activity"
	ReasonIdle     Reason = "idle"
	ReasonShutdown Reason = "shutdown"
	ReasonWake     Reason = "wake"
)

// Listener is notified of every power state transition.
type Listener interface {
	PowerChanged(from, to State, reason Reason)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(from, to State, reason Reason)

// PowerChanged calls f
func (f ListenerFunc) PowerChanged(from, to State, reason Reason) {
	f(from, to, reason)
}

// Machine is the power/display state machine. It is owned by a single loop
// and is not safe for concurrent use.
type Machine struct {
	idleTimeout  time.Duration
	state        State
	mode         DisplayMode
	preset       int
	lastActivity time.Time
	listener     Listener
}

// NewMachine creates a machine in ACTIVE with the hotkey view, treating now
// as the last activity. A non-positive timeout selects DefaultIdleTimeout.
func NewMachine(idleTimeout time.Duration, now time.Time) *Machine {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Machine{
		idleTimeout:  idleTimeout,
		state:        StateActive,
		mode:         ModeHotkeys,
		preset:       len(brightnessPresets) - 1,
		lastActivity: now,
	}
}

// SetListener installs the transition listener; nil removes it
func (m *Machine) SetListener(l Listener) {
	m.listener = l
}

// Activity records local input or a received non-POWER_STATE message
func (m *Machine) Activity(now time.Time) {
	m.lastActivity = now
	switch m.state {
	case StateDimmed:
		m.transition(StateActive, ReasonActivity)
	case StateClock:
		m.transition(StateActive, ReasonWake)
	}
}

// ShutdownReceived forces CLOCK from any state
func (m *Machine) ShutdownReceived(now time.Time) {
	m.transition(StateClock, ReasonShutdown)
}

// WakeDetected handles an explicit wake signal
func (m *Machine) WakeDetected(now time.Time) {
	m.lastActivity = now
	m.transition(StateActive, ReasonWake)
}

// Tick dims the display once the idle timeout elapses. Idling never reaches
// CLOCK.
func (m *Machine) Tick(now time.Time) {
	if m.state == StateActive && now.Sub(m.lastActivity) >= m.idleTimeout {
		m.transition(StateDimmed, ReasonIdle)
	}
}

func (m *Machine) transition(to State, reason Reason) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	if m.listener != nil {
		m.listener.PowerChanged(from, to, reason)
	}
}

// State returns the current power state
func (m *Machine) State() State {
	return m.state
}

// IdleTimeout returns the configured idle timeout
func (m *Machine) IdleTimeout() time.Duration {
	return m.idleTimeout
}

// LastActivity returns the time of the last activity
func (m *Machine) LastActivity() time.Time {
	return m.lastActivity
}

// DisplayMode returns the current display mode
func (m *Machine) DisplayMode() DisplayMode {
	return m.mode
}

// SetDisplayMode selects a display mode
func (m *Machine) SetDisplayMode(mode DisplayMode) {
	m.mode = mode
}

// CycleDisplayMode advances to the next display mode and returns it
func (m *Machine) CycleDisplayMode() DisplayMode {
	for i, mode := range displayModes {
		if mode == m.mode {
			m.mode = displayModes[(i+1)%len(displayModes)]
			return m.mode
		}
	}
	m.mode = ModeHotkeys
	return m.mode
}

// Brightness returns the effective backlight level
func (m *Machine) Brightness() Brightness {
	if m.state == StateDimmed {
		return BrightnessDim
	}
	return brightnessPresets[m.preset]
}

// Preset returns the selected brightness preset regardless of dimming
func (m *Machine) Preset() Brightness {
	return brightnessPresets[m.preset]
}

// CycleBrightness advances to the next preset while ACTIVE. It reports
// whether the preset changed.
func (m *Machine) CycleBrightness() bool {
	if m.state != StateActive {
		return false
	}
	m.preset = (m.preset + 1) % len(brightnessPresets)
	return true
}
