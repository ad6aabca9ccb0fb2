// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
	"github.com/Thermoquad/hotlink/pkg/node"
	"github.com/Thermoquad/hotlink/pkg/power"
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

const (
	statusRefresh  = 250 * time.Millisecond
	commandTimeout = time.Second
	maxLogEntries  = 100
)

type focusField int

const (
	focusHotkeys focusField = iota
	focusCustom
)

type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for events
}

// hotkeyItem is one entry of the hotkey grid
type hotkeyItem struct {
	label  string
	hotkey hotlink.Hotkey
}

func (h hotkeyItem) Title() string { return h.label }
func (h hotkeyItem) Description() string {
	return fmt.Sprintf("%s 0x%02X", hotlink.FormatModifiers(h.hotkey.Modifiers), h.hotkey.Keycode)
}
func (h hotkeyItem) FilterValue() string { return h.label }

// defaultHotkeys are the built-in hotkey grid
var defaultHotkeys = []hotkeyItem{
	{"Copy", hotlink.Hotkey{Modifiers: hotlink.ModLeftCtrl, Keycode: 0x06}},
	{"Paste", hotlink.Hotkey{Modifiers: hotlink.ModLeftCtrl, Keycode: 0x19}},
	{"Undo", hotlink.Hotkey{Modifiers: hotlink.ModLeftCtrl, Keycode: 0x1D}},
	{"Toggle mic", hotlink.Hotkey{Modifiers: hotlink.ModLeftCtrl | hotlink.ModLeftShift, Keycode: 0x10}},
	{"Screenshot", hotlink.Hotkey{Modifiers: hotlink.ModLeftGUI | hotlink.ModLeftShift, Keycode: 0x16}},
	{"Lock", hotlink.Hotkey{Modifiers: hotlink.ModLeftGUI, Keycode: 0x0F}},
	{"F13", hotlink.Hotkey{Keycode: 0x68}},
	{"Keypad 1", hotlink.Hotkey{Keycode: 0x59}},
}

type displayModel struct {
	node     *node.Node
	connInfo []string
	started  time.Time

	hotkeys list.Model
	custom  textinput.Model
	focused focusField

	status         *node.Status
	clock          bool
	stats          *hotlink.Stats
	notification   *hotlink.Notification
	hostTime       time.Time
	hostTimeAt     time.Time
	configMode     bool
	device         deviceStatusMsg
	connectionLost bool

	errorLog []errorLogEntry
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type statusTickMsg time.Time

type viewMsg struct{ clock bool }

type statsMsg hotlink.Stats

type deviceStatusMsg struct {
	rssi       int
	linkUp     bool
	brightness power.Brightness
}

type notificationMsg hotlink.Notification

type timeSyncMsg time.Time

type configModeMsg bool

type connectionMsg struct {
	connected bool
	info      string
}

type nodeStoppedMsg struct{ err error }

type eventMsg struct {
	text    string
	isError bool
}

//////////////////////////////////////////////////////////////
// Display collaborator
//////////////////////////////////////////////////////////////

// tuiDisplay forwards the node's display calls to the terminal UI. It is
// called on the node loop; the UI never waits on the loop, so Send cannot
// deadlock.
type tuiDisplay struct {
	send func(tea.Msg)
}

func (d *tuiDisplay) post(msg tea.Msg) {
	if d.send != nil {
		d.send(msg)
	}
}

func (d *tuiDisplay) ShowClockMode()  { d.post(viewMsg{clock: true}) }
func (d *tuiDisplay) ShowHotkeyView() { d.post(viewMsg{clock: false}) }

func (d *tuiDisplay) UpdateStats(s hotlink.Stats) { d.post(statsMsg(s)) }

func (d *tuiDisplay) UpdateDeviceStatus(rssi int, linkUp bool, brightness power.Brightness) {
	d.post(deviceStatusMsg{rssi: rssi, linkUp: linkUp, brightness: brightness})
}

func (d *tuiDisplay) ShowNotification(n hotlink.Notification) { d.post(notificationMsg(n)) }
func (d *tuiDisplay) SetTime(t time.Time)                     { d.post(timeSyncMsg(t)) }
func (d *tuiDisplay) SetConfigMode(active bool)               { d.post(configModeMsg(active)) }

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func newDisplayModel(n *node.Node, connInfo []string) displayModel {
	ti := textinput.New()
	ti.Placeholder = "ctrl+shift+0x04"
	ti.CharLimit = 32
	ti.Width = 20

	items := make([]list.Item, len(defaultHotkeys))
	for i, h := range defaultHotkeys {
		items[i] = h
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	hotkeys := list.New(items, delegate, 30, 12)
	hotkeys.Title = "Hotkeys"
	hotkeys.SetShowStatusBar(false)
	hotkeys.SetShowHelp(false)
	hotkeys.SetFilteringEnabled(false)

	return displayModel{
		node:     n,
		connInfo: connInfo,
		started:  time.Now(),
		hotkeys:  hotkeys,
		custom:   ti,
		focused:  focusHotkeys,
		width:    80,
		height:   24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m displayModel) Init() tea.Cmd {
	return statusTickCmd()
}

func statusTickCmd() tea.Cmd {
	return tea.Tick(statusRefresh, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

func (m displayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listHeight := max(m.height/2, 6)
		m.hotkeys.SetSize(28, listHeight)

	case statusTickMsg:
		m.status = m.node.Status()
		return m, statusTickCmd()

	case viewMsg:
		m.clock = msg.clock
		if msg.clock {
			m.addLogEntry("Clock view", false)
		}

	case statsMsg:
		s := hotlink.Stats(msg)
		m.stats = &s

	case deviceStatusMsg:
		if msg.linkUp != m.device.linkUp {
			if msg.linkUp {
				m.addLogEntry("Bridge link up", false)
			} else {
				m.addLogEntry("Bridge link down", true)
			}
		}
		m.device = msg

	case notificationMsg:
		n := hotlink.Notification(msg)
		m.notification = &n
		m.addLogEntry(fmt.Sprintf("Notification from %s: %s", n.AppName, n.Summary), false)

	case timeSyncMsg:
		m.hostTime = time.Time(msg)
		m.hostTimeAt = time.Now()

	case configModeMsg:
		m.configMode = bool(msg)

	case connectionMsg:
		m.connectionLost = !msg.connected
		if msg.connected {
			m.addLogEntry("Reconnected: "+msg.info, false)
		} else {
			m.addLogEntry("Connection lost - reconnecting...", true)
		}

	case nodeStoppedMsg:
		m.addLogEntry(fmt.Sprintf("Node stopped: %v", msg.err), true)
		m.quitting = true
		return m, tea.Quit

	case eventMsg:
		m.addLogEntry(msg.text, msg.isError)
	}

	var cmd tea.Cmd
	if m.focused == focusCustom {
		m.custom, cmd = m.custom.Update(msg)
	} else {
		m.hotkeys, cmd = m.hotkeys.Update(msg)
	}
	return m, cmd
}

func (m displayModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab", "shift+tab":
		if m.focused == focusHotkeys {
			m.focused = focusCustom
			m.custom.Focus()
		} else {
			m.focused = focusHotkeys
			m.custom.Blur()
		}
		return m, nil

	case "enter":
		return m, m.pressSelected()
	}

	// the custom input takes every other key while focused
	if m.focused == focusCustom {
		var cmd tea.Cmd
		m.custom, cmd = m.custom.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "m":
		return m, m.do("Mute", func(n *node.Node) (string, bool) {
			return "", n.PressMediaKey(mediaMute)
		})
	case "p":
		return m, m.do("Play/Pause", func(n *node.Node) (string, bool) {
			return "", n.PressMediaKey(mediaPlayPause)
		})
	case "d":
		return m, m.do("Display mode", func(n *node.Node) (string, bool) {
			return n.CycleDisplayMode().String(), true
		})
	case "b":
		return m, m.do("Brightness", func(n *node.Node) (string, bool) {
			if !n.CycleBrightness() {
				return "wake only", true
			}
			return fmt.Sprintf("%d%%", n.Brightness()), true
		})
	case "c":
		return m, m.do("Config mode", func(n *node.Node) (string, bool) {
			if n.ConfigMode() {
				n.ExitConfigMode()
				return "off", true
			}
			n.EnterConfigMode()
			return "on", true
		})
	}

	var cmd tea.Cmd
	m.hotkeys, cmd = m.hotkeys.Update(msg)
	return m, cmd
}

// pressSelected sends the focused hotkey: the list selection or the custom
// input.
func (m *displayModel) pressSelected() tea.Cmd {
	var item hotkeyItem
	if m.focused == focusCustom {
		combo := m.custom.Value()
		if combo == "" {
			combo = m.custom.Placeholder
		}
		h, err := parseHotkeyCombo(combo)
		if err != nil {
			m.addLogEntry(fmt.Sprintf("Invalid hotkey: %v", err), true)
			return nil
		}
		item = hotkeyItem{label: combo, hotkey: h}
	} else {
		selected, ok := m.hotkeys.SelectedItem().(hotkeyItem)
		if !ok {
			return nil
		}
		item = selected
	}

	return m.do(item.label, func(n *node.Node) (string, bool) {
		return "", n.PressHotkey(item.hotkey.Modifiers, item.hotkey.Keycode)
	})
}

// do runs fn on the node loop and reports its outcome in the event log
func (m displayModel) do(label string, fn func(*node.Node) (string, bool)) tea.Cmd {
	n := m.node
	return func() tea.Msg {
		type outcome struct {
			detail string
			ok     bool
		}
		res := make(chan outcome, 1)
		err := n.Do(func(n *node.Node) {
			detail, ok := fn(n)
			res <- outcome{detail, ok}
		})
		if err != nil {
			return eventMsg{text: fmt.Sprintf("%s: %v", label, err), isError: true}
		}

		select {
		case out := <-res:
			switch {
			case !out.ok:
				return eventMsg{text: label + ": not sent, no link", isError: true}
			case out.detail != "":
				return eventMsg{text: label + ": " + out.detail}
			default:
				return eventMsg{text: "Sent " + label}
			}
		case <-time.After(commandTimeout):
			return eventMsg{text: label + ": node not responding", isError: true}
		}
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedBoxStyle = boxStyle.
			BorderForeground(lipgloss.Color("12"))

	clockStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(1, 4)
)

func (m displayModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("HOTLINK DISPLAY"))
	s.WriteString(" ")
	conn := strings.Join(m.connInfo, " + ")
	if m.connectionLost {
		conn = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | up %s | q=quit Tab=switch", conn, formatUptime(time.Since(m.started)))))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatusBar())
	s.WriteString("\n")

	if m.clock {
		s.WriteString(m.renderClock())
	} else {
		s.WriteString(m.renderHotkeyView())
	}
	s.WriteString("\n")
	s.WriteString(m.renderEventLog())

	out := s.String()
	if m.status != nil && m.status.Power == power.StateDimmed {
		out = lipgloss.NewStyle().Faint(true).Render(out)
	}
	return out
}

func (m displayModel) renderStatusBar() string {
	var parts []string
	label := func(name, value string) {
		parts = append(parts, fmt.Sprintf("%s %s", statsLabelStyle.Render(name), value))
	}

	if m.status != nil {
		label("Power:", statsValueStyle.Render(m.status.Power.String()))
		label("Brightness:", statsValueStyle.Render(fmt.Sprintf("%d%%", m.status.Brightness)))
		for _, l := range m.status.Links {
			state := errorStyle.Render("down")
			if l.Up {
				state = statsValueStyle.Render("up")
			}
			label(l.Channel.String()+":", state)
		}
		acks := statsValueStyle.Render(fmt.Sprintf("%d", m.status.Acks))
		if m.status.AckErrors > 0 {
			acks += errorStyle.Render(fmt.Sprintf(" (%d failed)", m.status.AckErrors))
		}
		label("Acks:", acks)
	}
	if m.device.linkUp {
		label("RSSI:", statsValueStyle.Render(fmt.Sprintf("%d dBm", m.device.rssi)))
	}
	if m.configMode {
		parts = append(parts, warningStyle.Render("CONFIG MODE"))
	}

	return boxStyle.Width(m.width - 4).Render(strings.Join(parts, "  "))
}

func (m displayModel) renderHotkeyView() string {
	listStyle := boxStyle.Width(30)
	customStyle := boxStyle.Width(28)
	if m.focused == focusHotkeys {
		listStyle = focusedBoxStyle.Width(30)
	} else {
		customStyle = focusedBoxStyle.Width(28)
	}

	var custom strings.Builder
	custom.WriteString(statsLabelStyle.Render("Custom hotkey"))
	custom.WriteString("\n")
	custom.WriteString(m.custom.View())
	custom.WriteString("\n\n")
	custom.WriteString(headerStyle.Render("m mute  p play/pause\nd display  b brightness\nc config mode"))

	right := lipgloss.JoinVertical(lipgloss.Left,
		customStyle.Render(custom.String()),
		boxStyle.Width(max(m.width-40, 28)).Render(m.renderHostPanel()),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, listStyle.Render(m.hotkeys.View()), " ", right)
}

func (m displayModel) renderHostPanel() string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("HOST"))
	s.WriteString("\n")
	if m.stats == nil {
		s.WriteString(headerStyle.Render("(no stats yet)"))
	} else {
		s.WriteString(statsValueStyle.Render(hotlink.FormatStats(*m.stats)))
	}
	if m.notification != nil {
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("%s %s\n%s",
			statsLabelStyle.Render(m.notification.AppName+":"),
			m.notification.Summary,
			headerStyle.Render(m.notification.Body)))
	}
	return s.String()
}

func (m displayModel) renderClock() string {
	now := time.Now()
	source := "local clock"
	if !m.hostTime.IsZero() {
		now = m.hostTime.Add(time.Since(m.hostTimeAt))
		source = "host clock"
	}
	clock := clockStyle.Render(now.Format("15:04:05"))
	date := headerStyle.Render(fmt.Sprintf("%s (%s)", now.Format("Mon 2 Jan 2006"), source))
	return boxStyle.Width(m.width - 4).Render(lipgloss.JoinVertical(lipgloss.Center, clock, date))
}

func (m displayModel) renderEventLog() string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
		return boxStyle.Width(m.width - 4).Render(s.String())
	}

	start := max(len(m.errorLog)-8, 0)
	for _, entry := range m.errorLog[start:] {
		icon, style := "i", warningStyle
		if entry.isError {
			icon, style = "x", errorStyle
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}
	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *displayModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.errorLog) > maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-maxLogEntries:]
	}
}
