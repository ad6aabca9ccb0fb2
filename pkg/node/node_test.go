// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/hotlink/pkg/dispatch"
	"github.com/Thermoquad/hotlink/pkg/hotlink"
	"github.com/Thermoquad/hotlink/pkg/link"
	"github.com/Thermoquad/hotlink/pkg/power"
)

var (
	displayAddr = link.Address{0x24, 0x6F, 0x28, 0x00, 0x00, 0x01}
	bridgeAddr  = link.Address{0x24, 0x6F, 0x28, 0x00, 0x00, 0x02}
)

type fakeClock struct {
	t time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type keystroke struct {
	modifiers uint8
	keycode   uint16
}

type recordingKeyboard struct {
	keys  []keystroke
	media []uint16
	err   error
}

func (k *recordingKeyboard) FireKeystroke(modifiers uint8, keycode uint16) error {
	if k.err != nil {
		return k.err
	}
	k.keys = append(k.keys, keystroke{modifiers, keycode})
	return nil
}

func (k *recordingKeyboard) FireMediaKey(code uint16) error {
	k.media = append(k.media, code)
	return nil
}

type recordingDisplay struct {
	clockShown   int
	hotkeysShown int
	stats        []hotlink.Stats
	notes        []hotlink.Notification
	times        []time.Time
	configMode   []bool
	linkUp       bool
	brightness   power.Brightness
	rssi         int
}

func (d *recordingDisplay) ShowClockMode() { d.clockShown++ }
func (d *recordingDisplay) ShowHotkeyView() { d.hotkeysShown++ }
func (d *recordingDisplay) UpdateStats(s hotlink.Stats) { d.stats = append(d.stats, s) }
func (d *recordingDisplay) ShowNotification(n hotlink.Notification) {
	d.notes = append(d.notes, n)
}
func (d *recordingDisplay) SetTime(t time.Time) { d.times = append(d.times, t) }
func (d *recordingDisplay) SetConfigMode(active bool) { d.configMode = append(d.configMode, active) }
func (d *recordingDisplay) UpdateDeviceStatus(rssi int, linkUp bool, b power.Brightness) {
	d.rssi, d.linkUp, d.brightness = rssi, linkUp, b
}

type pair struct {
	clock    *fakeClock
	air      *link.Air
	display  *Node
	bridge   *Node
	screen   *recordingDisplay
	keyboard *recordingKeyboard
}

// newPair connects a display and a bridge over an in-memory radio
func newPair(t *testing.T) *pair {
	t.Helper()
	p := &pair{
		clock:    newClock(),
		air:      link.NewAir(-55),
		screen:   &recordingDisplay{},
		keyboard: &recordingKeyboard{},
	}

	displayLink := link.NewWireless(p.air.NewRadio(displayAddr), link.WirelessOptions{Policy: link.PolicyQueue, QueueDepth: 8})
	bridgeLink := link.NewWireless(p.air.NewRadio(bridgeAddr), link.WirelessOptions{Policy: link.PolicyQueue, QueueDepth: 8})

	var err error
	p.display, err = New(Options{
		Role:        RoleDisplay,
		IdleTimeout: time.Minute,
		Preferred:   link.ChannelWireless,
		Display:     p.screen,
		Now:         p.clock.Now,
	}, displayLink)
	require.NoError(t, err)

	p.bridge, err = New(Options{
		Role:     RoleBridge,
		Keyboard: p.keyboard,
		Now:      p.clock.Now,
	}, bridgeLink)
	require.NoError(t, err)

	require.NoError(t, p.display.Init())
	require.NoError(t, p.bridge.Init())
	t.Cleanup(func() {
		p.display.Close()
		p.bridge.Close()
	})
	return p
}

func (p *pair) tick() {
	p.bridge.Tick(p.clock.Now())
	p.display.Tick(p.clock.Now())
}

func TestNew_Validation(t *testing.T) {
	l := link.NewWired(nil, link.WiredOptions{})

	_, err := New(Options{Role: RoleBridge, Keyboard: &recordingKeyboard{}})
	assert.ErrorIs(t, err, ErrNoLinks)

	_, err = New(Options{Role: RoleBridge}, l)
	assert.ErrorIs(t, err, ErrNoKeyboard)

	_, err = New(Options{Role: RoleDisplay}, l)
	assert.ErrorIs(t, err, ErrNoDisplay)

	_, err = New(Options{Role: Role(7)}, l)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("Display")
	require.NoError(t, err)
	assert.Equal(t, RoleDisplay, r)

	r, err = ParseRole("bridge")
	require.NoError(t, err)
	assert.Equal(t, RoleBridge, r)

	_, err = ParseRole("router")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestPair_HotkeyAcknowledged(t *testing.T) {
	p := newPair(t)

	require.True(t, p.display.PressHotkey(hotlink.ModLeftCtrl, 0x63))
	p.tick()

	require.Len(t, p.keyboard.keys, 1)
	assert.Equal(t, keystroke{hotlink.ModLeftCtrl, 0x63}, p.keyboard.keys[0])

	// the bridge answered the display directly
	st := p.display.Status()
	assert.Equal(t, uint64(1), st.Acks)
	assert.Zero(t, st.AckErrors)
	assert.Equal(t, uint64(1), st.Results["accepted"])
	assert.Equal(t, uint64(1), p.bridge.Status().Results["accepted"])
}

func TestPair_MediaKey(t *testing.T) {
	p := newPair(t)

	require.True(t, p.display.PressMediaKey(0x00E9))
	p.tick()
	assert.Equal(t, []uint16{0x00E9}, p.keyboard.media)
}

func TestPair_KeyboardFailureNacks(t *testing.T) {
	p := newPair(t)
	p.keyboard.err = errors.New("usb not configured")

	require.True(t, p.display.PressHotkey(0, 0x04))
	p.tick()

	st := p.display.Status()
	assert.Equal(t, uint64(1), st.Acks)
	assert.Equal(t, uint64(1), st.AckErrors)
	assert.Equal(t, uint64(1), p.bridge.Status().Results["failed"])
}

func TestPair_PublishToDisplay(t *testing.T) {
	p := newPair(t)

	sent, err := p.bridge.PublishStats(hotlink.Stats{CPUPercent: hotlink.Float(42)})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	p.tick()
	require.Len(t, p.screen.stats, 1)
	assert.Equal(t, 42.0, *p.screen.stats[0].CPUPercent)

	when := time.Unix(1_750_000_000, 0)
	_, err = p.bridge.PublishTime(when)
	require.NoError(t, err)
	p.tick()
	require.Len(t, p.screen.times, 1)
	assert.True(t, when.Equal(p.screen.times[0]))

	_, err = p.bridge.PublishNotification(hotlink.Notification{AppName: "mail", Summary: "hi", Body: "lunch?"})
	require.NoError(t, err)
	p.tick()
	require.Len(t, p.screen.notes, 1)
	assert.Equal(t, "lunch?", p.screen.notes[0].Body)
}

func TestPair_PowerScenario(t *testing.T) {
	p := newPair(t)

	// idle dims
	p.clock.Advance(time.Minute)
	p.tick()
	assert.Equal(t, power.StateDimmed, p.display.PowerState())
	assert.Equal(t, power.BrightnessDim, p.display.Brightness())

	// host shutdown selects the clock screen
	_, err := p.bridge.PublishPower(hotlink.PowerShutdown)
	require.NoError(t, err)
	p.tick()
	assert.Equal(t, power.StateClock, p.display.PowerState())
	assert.Equal(t, power.ModeClock, p.display.DisplayMode())
	assert.Equal(t, 1, p.screen.clockShown)

	// idling never leaves the clock
	p.clock.Advance(10 * time.Minute)
	p.tick()
	assert.Equal(t, power.StateClock, p.display.PowerState())

	// any other message wakes it
	_, err = p.bridge.PublishStats(hotlink.Stats{RAMPercent: hotlink.Float(10)})
	require.NoError(t, err)
	p.tick()
	assert.Equal(t, power.StateActive, p.display.PowerState())
	assert.Equal(t, power.ModeHotkeys, p.display.DisplayMode())
	assert.Equal(t, 1, p.screen.hotkeysShown)
}

func TestPair_PowerWake(t *testing.T) {
	p := newPair(t)

	_, err := p.bridge.PublishPower(hotlink.PowerShutdown)
	require.NoError(t, err)
	p.tick()
	require.Equal(t, power.StateClock, p.display.PowerState())

	_, err = p.bridge.PublishPower(hotlink.PowerWake)
	require.NoError(t, err)
	p.tick()
	assert.Equal(t, power.StateActive, p.display.PowerState())
	assert.Equal(t, p.clock.Now(), p.display.power.LastActivity())
}

func TestDisplay_PingWakesFromClock(t *testing.T) {
	p := newPair(t)

	_, err := p.bridge.PublishPower(hotlink.PowerShutdown)
	require.NoError(t, err)
	p.tick()
	require.Equal(t, power.StateClock, p.display.PowerState())

	p.clock.Advance(time.Second)
	_, err = p.bridge.Publish(hotlink.KindPing, nil)
	require.NoError(t, err)
	p.tick()
	assert.Equal(t, power.StateActive, p.display.PowerState())
	assert.Equal(t, p.clock.Now(), p.display.power.LastActivity())

	h, ok := p.display.Health(link.ChannelWireless)
	require.True(t, ok)
	assert.True(t, h.Up(p.clock.Now()))
	rssi, ok := h.RSSI()
	require.True(t, ok)
	assert.Equal(t, -55, rssi)
}

func TestPair_ConfigModePausesPublishing(t *testing.T) {
	p := newPair(t)

	p.display.EnterConfigMode()
	p.tick()
	assert.Equal(t, []bool{true}, p.screen.configMode)
	assert.True(t, p.display.ConfigMode())
	assert.True(t, p.bridge.ConfigMode())

	sent, err := p.bridge.PublishStats(hotlink.Stats{CPUPercent: hotlink.Float(1)})
	require.NoError(t, err)
	assert.Zero(t, sent)
	p.tick()
	assert.Empty(t, p.screen.stats)

	p.display.ExitConfigMode()
	p.tick()
	assert.False(t, p.bridge.ConfigMode())

	sent, err = p.bridge.PublishStats(hotlink.Stats{CPUPercent: hotlink.Float(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestBridge_ShortHotkeyRejected(t *testing.T) {
	p := newPair(t)

	// a one-byte hotkey straight from the display link
	displayLink := p.display.Links()[0]
	require.True(t, displayLink.Send(hotlink.KindHotkey, []byte{0x01}))
	p.tick()

	assert.Empty(t, p.keyboard.keys)
	assert.Equal(t, uint64(1), p.bridge.Status().Results["rejected"])
	st := p.display.Status()
	assert.Equal(t, uint64(1), st.Acks)
	assert.Equal(t, uint64(1), st.AckErrors)
}

func TestRoleGuards(t *testing.T) {
	p := newPair(t)

	_, err := p.display.Publish(hotlink.KindStats, nil)
	assert.ErrorIs(t, err, ErrWrongRole)
	assert.False(t, p.bridge.PressHotkey(0, 0x04))

	_, err = p.bridge.Publish(hotlink.KindNotification, make([]byte, hotlink.MaxPayloadSize+1))
	assert.ErrorIs(t, err, hotlink.ErrPayloadTooLarge)
}

func TestDisplay_CycleControls(t *testing.T) {
	p := newPair(t)

	assert.Equal(t, power.ModeClock, p.display.CycleDisplayMode())
	assert.Equal(t, 1, p.screen.clockShown)

	assert.Equal(t, power.BrightnessHigh, p.display.Brightness())
	assert.True(t, p.display.CycleBrightness())
	assert.Equal(t, power.BrightnessLow, p.display.Brightness())

	// a touch on a dimmed screen only wakes it
	p.clock.Advance(time.Minute)
	p.display.Tick(p.clock.Now())
	require.Equal(t, power.StateDimmed, p.display.PowerState())
	assert.False(t, p.display.CycleBrightness())
	assert.Equal(t, power.StateActive, p.display.PowerState())
	assert.Equal(t, power.BrightnessLow, p.display.Brightness())
}

func TestDisplay_DeviceStatusFollowsLink(t *testing.T) {
	p := newPair(t)
	assert.False(t, p.screen.linkUp)

	_, err := p.bridge.Publish(hotlink.KindPing, nil)
	require.NoError(t, err)
	p.tick()
	assert.True(t, p.screen.linkUp)
	assert.Equal(t, -55, p.screen.rssi)
	assert.Equal(t, power.BrightnessHigh, p.screen.brightness)

	p.clock.Advance(link.DefaultStaleTimeout)
	p.display.Tick(p.clock.Now())
	assert.False(t, p.screen.linkUp)
}

// capturePort blocks reads until closed and records writes
type capturePort struct {
	mu      sync.Mutex
	written []byte
	done    chan struct{}
	once    sync.Once
}

func newCapturePort() *capturePort {
	return &capturePort{done: make(chan struct{})}
}

func (c *capturePort) Read([]byte) (int, error) {
	<-c.done
	return 0, errors.New("closed")
}

func (c *capturePort) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, b...)
	return len(b), nil
}

func (c *capturePort) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *capturePort) Messages(t *testing.T) []hotlink.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	return hotlink.NewDecoder().Decode(c.written)
}

func TestDisplay_CommandLinkFallback(t *testing.T) {
	clock := newClock()
	air := link.NewAir(-60)
	peer := air.NewRadio(bridgeAddr)
	var (
		mu    sync.Mutex
		heard [][]byte
	)
	require.NoError(t, peer.Start(func(_ link.Address, _ int, data []byte) {
		mu.Lock()
		heard = append(heard, data)
		mu.Unlock()
	}))

	serial := newCapturePort()
	wired := link.NewWired(serial, link.WiredOptions{})
	wireless := link.NewWireless(air.NewRadio(displayAddr), link.WirelessOptions{Policy: link.PolicyLatch})

	n, err := New(Options{
		Role:      RoleDisplay,
		Preferred: link.ChannelWired,
		Display:   &recordingDisplay{},
		Now:       clock.Now,
	}, wired, wireless)
	require.NoError(t, err)
	require.NoError(t, n.Init())
	defer n.Close()

	// nothing heard yet: the preferred link is used
	require.True(t, n.PressHotkey(0, 0x04))
	require.Len(t, serial.Messages(t), 1)

	// only the radio is up
	require.NoError(t, peer.Send(link.BroadcastAddress, []byte{byte(hotlink.KindPing)}))
	n.Tick(clock.Now())
	require.True(t, n.PressHotkey(0, 0x05))
	assert.Len(t, serial.Messages(t), 1)
	mu.Lock()
	assert.Equal(t, [][]byte{{byte(hotlink.KindHotkey), 0x00, 0x05}}, heard)
	mu.Unlock()

	// the wire comes back
	wired.Receive(hotlink.MustEncodeFrame(hotlink.KindPing, nil))
	n.Tick(clock.Now())
	require.True(t, n.PressHotkey(0, 0x06))
	msgs := serial.Messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte{0x00, 0x06}, msgs[1].Payload)
}

func TestNode_Heartbeat(t *testing.T) {
	clock := newClock()
	air := link.NewAir(0)
	radio := air.NewRadio(bridgeAddr)
	n, err := New(Options{
		Role:         RoleBridge,
		Keyboard:     &recordingKeyboard{},
		PingInterval: 3 * time.Second,
		Now:          clock.Now,
	}, link.NewWireless(radio, link.WirelessOptions{}))
	require.NoError(t, err)
	require.NoError(t, n.Init())

	pings := func() int {
		count := 0
		for _, d := range radio.Sent() {
			if len(d.Data) == 1 && hotlink.Kind(d.Data[0]) == hotlink.KindPing {
				count++
			}
		}
		return count
	}

	n.Tick(clock.Now())
	assert.Equal(t, 1, pings())
	clock.Advance(time.Second)
	n.Tick(clock.Now())
	assert.Equal(t, 1, pings())
	clock.Advance(2 * time.Second)
	n.Tick(clock.Now())
	assert.Equal(t, 2, pings())
}

type countingObserver struct {
	results map[dispatch.Result]int
}

func (o *countingObserver) Dispatched(_ link.Channel, _ hotlink.Kind, r dispatch.Result) {
	o.results[r]++
}

func TestNode_ObserverAndStatus(t *testing.T) {
	clock := newClock()
	obs := &countingObserver{results: map[dispatch.Result]int{}}
	wired := link.NewWired(nil, link.WiredOptions{})
	n, err := New(Options{
		Role:     RoleBridge,
		Name:     "desk",
		Keyboard: &recordingKeyboard{},
		Observer: obs,
		Now:      clock.Now,
	}, wired)
	require.NoError(t, err)

	wired.Receive(hotlink.MustEncodeFrame(hotlink.KindStats, []byte{0xA0}))
	n.Tick(clock.Now())

	assert.Equal(t, 1, obs.results[dispatch.Unhandled])

	st := n.Status()
	require.Len(t, st.Links, 1)
	assert.Equal(t, link.ChannelWired, st.Links[0].Channel)
	assert.True(t, st.Links[0].Up)
	assert.Equal(t, uint64(1), st.Links[0].Frames)
	assert.Equal(t, uint64(1), st.Results["unhandled"])

	out, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"role":"bridge"`)
	assert.Contains(t, string(out), `"power":"ACTIVE"`)
	assert.Contains(t, string(out), `"channel":"wired"`)
	assert.Contains(t, string(out), `"name":"desk"`)
}

func TestNode_DoAndRun(t *testing.T) {
	n, err := New(Options{
		Role:         RoleBridge,
		Keyboard:     &recordingKeyboard{},
		TickInterval: time.Millisecond,
	}, link.NewWired(nil, link.WiredOptions{}))
	require.NoError(t, err)

	ran := make(chan struct{})
	require.NoError(t, n.Do(func(*Node) { close(ran) }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("queued input never ran")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNode_DoQueueFull(t *testing.T) {
	n, err := New(Options{Role: RoleBridge, Keyboard: &recordingKeyboard{}}, link.NewWired(nil, link.WiredOptions{}))
	require.NoError(t, err)

	for i := 0; i < inputQueueSize; i++ {
		require.NoError(t, n.Do(func(*Node) {}))
	}
	assert.ErrorIs(t, n.Do(func(*Node) {}), ErrInputFull)
}
