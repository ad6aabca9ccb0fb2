// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package node is the owning context of a hotlink endpoint. A Node holds the
// links, their health monitors, the dispatch table and the power state
// machine, and drives them from one cooperative loop.
package node

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/hotlink/pkg/dispatch"
	"github.com/Thermoquad/hotlink/pkg/hotlink"
	"github.com/Thermoquad/hotlink/pkg/link"
	"github.com/Thermoquad/hotlink/pkg/power"
)

// Node defaults
const (
	DefaultTickInterval = 10 * time.Millisecond
	inputQueueSize      = 64
)

// Node errors
var (
	ErrNoLinks     = errors.New("node: no links configured")
	ErrNoKeyboard  = errors.New("node: bridge role requires a keyboard")
	ErrNoDisplay   = errors.New("node: display role requires a display")
	ErrWrongRole   = errors.New("node: operation not available in this role")
	ErrInputFull   = errors.New("node: input queue full")
	ErrInvalidRole = errors.New("node: invalid role")
)

// Role selects which side of the link a node plays.
type Role int

const (
	// RoleBridge is the host side: it turns hotkeys into HID reports and
	// publishes host telemetry.
	RoleBridge Role = iota
	// RoleDisplay is the touchscreen side.
	RoleDisplay
)

// String returns the role name
func (r Role) String() string {
	switch r {
	case RoleBridge:
		return "bridge"
	case RoleDisplay:
		return "display"
	default:
		return "unknown"
	}
}

// MarshalText renders the role name in JSON
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ParseRole parses "bridge" or "display"
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "bridge":
		return RoleBridge, nil
	case "display":
		return RoleDisplay, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Options configures a Node.
type Options struct {
	Role Role
	Name string
	// IdleTimeout is the display's ACTIVE to DIMMED timeout.
	IdleTimeout time.Duration
	// StaleTimeout marks a link down when nothing arrived for this long.
	StaleTimeout time.Duration
	// PingInterval is the heartbeat period on every link; 0 disables it.
	// A received PING is display activity, so a bridge heartbeat keeps the
	// display from dimming.
	PingInterval time.Duration
	TickInterval time.Duration
	// Preferred is the link display commands go out on while it is up.
	Preferred link.Channel

	Keyboard Keyboard
	Display  Display
	// Observer additionally receives every dispatch result.
	Observer dispatch.Observer
	Logger   *zap.Logger
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

type port struct {
	link   link.Link
	health *link.Health
}

// rssiReporter is implemented by links that know the signal strength of the
// last polled message.
type rssiReporter interface {
	LastRSSI() int
}

// Node is one hotlink endpoint. Everything except Do and Status must be
// called from the goroutine running the loop.
type Node struct {
	opts  Options
	log   *zap.Logger
	now   func() time.Time
	ports []*port
	table *dispatch.Table
	power *power.Machine

	configMode bool
	lastPing   time.Time
	acks       uint64
	ackErrors  uint64
	lastAck    hotlink.AckStatus
	results    map[dispatch.Result]uint64
	device     deviceStatus

	inputs chan func(*Node)
	status atomic.Pointer[Status]
}

// New creates a node over links. Roles require their collaborator: a bridge
// needs a Keyboard and a display needs a Display.
func New(opts Options, links ...link.Link) (*Node, error) {
	if len(links) == 0 {
		return nil, ErrNoLinks
	}
	switch opts.Role {
	case RoleBridge:
		if opts.Keyboard == nil {
			return nil, ErrNoKeyboard
		}
	case RoleDisplay:
		if opts.Display == nil {
			return nil, ErrNoDisplay
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, opts.Role)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.StaleTimeout <= 0 {
		opts.StaleTimeout = link.DefaultStaleTimeout
	}
	if opts.Name == "" {
		opts.Name = "hotlink"
	}

	n := &Node{
		opts:    opts,
		log:     opts.Logger.With(zap.Stringer("role", opts.Role)),
		now:     opts.Now,
		table:   dispatch.NewTable(opts.Logger),
		power:   power.NewMachine(opts.IdleTimeout, opts.Now()),
		results: make(map[dispatch.Result]uint64),
		inputs:  make(chan func(*Node), inputQueueSize),
	}
	for _, l := range links {
		n.ports = append(n.ports, &port{link: l, health: link.NewHealth(opts.StaleTimeout)})
	}
	n.table.SetObserver(n)

	switch opts.Role {
	case RoleBridge:
		n.registerBridge()
	case RoleDisplay:
		n.registerDisplay()
		n.power.SetListener(power.ListenerFunc(n.powerChanged))
	}

	n.publishStatus(opts.Now())
	return n, nil
}

// Init starts reception on every link. Links already started are closed
// again when a later one fails.
func (n *Node) Init() error {
	for i, p := range n.ports {
		if err := p.link.Init(); err != nil {
			for _, started := range n.ports[:i] {
				_ = started.link.Close()
			}
			return fmt.Errorf("init %s link: %w", p.link.Channel(), err)
		}
	}
	n.log.Info("node started", zap.String("name", n.opts.Name), zap.Int("links", len(n.ports)))
	return nil
}

// Close closes every link
func (n *Node) Close() error {
	var errs []error
	for _, p := range n.ports {
		if err := p.link.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s link: %w", p.link.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// Run ticks the node every TickInterval until ctx is done
func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n.Tick(n.now())
		}
	}
}

// Tick runs one pass of the loop: queued local input, one poll of every
// link, the idle check, heartbeats and the status snapshot.
func (n *Node) Tick(now time.Time) {
	n.drainInputs()

	for _, p := range n.ports {
		msg, ok := p.link.Poll()
		if !ok {
			continue
		}
		n.receive(p, msg, now)
	}

	if n.opts.Role == RoleDisplay {
		n.power.Tick(now)
	}
	n.heartbeat(now)
	n.publishStatus(now)
}

func (n *Node) receive(p *port, msg hotlink.Message, now time.Time) {
	if r, ok := p.link.(rssiReporter); ok {
		p.health.TouchRSSI(now, r.LastRSSI())
	} else {
		p.health.Touch(now)
	}

	if n.opts.Role == RoleDisplay && msg.Kind != hotlink.KindPowerState {
		n.power.Activity(now)
	}

	n.table.Dispatch(dispatch.Inbound{Link: p.link, Message: msg, Now: now})
}

func (n *Node) heartbeat(now time.Time) {
	if n.opts.PingInterval <= 0 || (!n.lastPing.IsZero() && now.Sub(n.lastPing) < n.opts.PingInterval) {
		return
	}
	n.lastPing = now
	for _, p := range n.ports {
		if !p.link.Send(hotlink.KindPing, nil) {
			n.log.Debug("ping not sent", zap.Stringer("channel", p.link.Channel()))
		}
	}
}

// Do queues fn to run on the loop at the start of the next tick. It is the
// only way for other goroutines, such as a UI, to reach the node.
func (n *Node) Do(fn func(*Node)) error {
	select {
	case n.inputs <- fn:
		return nil
	default:
		return ErrInputFull
	}
}

func (n *Node) drainInputs() {
	for {
		select {
		case fn := <-n.inputs:
			fn(n)
		default:
			return
		}
	}
}

// Dispatched counts dispatch results and forwards them to the configured
// observer.
func (n *Node) Dispatched(channel link.Channel, kind hotlink.Kind, result dispatch.Result) {
	n.results[result]++
	if n.opts.Observer != nil {
		n.opts.Observer.Dispatched(channel, kind, result)
	}
}

// Role returns the node role
func (n *Node) Role() Role {
	return n.opts.Role
}

// Links returns the node's links in configuration order
func (n *Node) Links() []link.Link {
	out := make([]link.Link, len(n.ports))
	for i, p := range n.ports {
		out[i] = p.link
	}
	return out
}

// Health returns the health monitor of the link on channel
func (n *Node) Health(channel link.Channel) (*link.Health, bool) {
	for _, p := range n.ports {
		if p.link.Channel() == channel {
			return p.health, true
		}
	}
	return nil, false
}

// ConfigMode reports whether configuration mode is active. On a bridge this
// means the display is configuring and publishing is paused.
func (n *Node) ConfigMode() bool {
	return n.configMode
}

// PowerActivity records local activity now
func (n *Node) PowerActivity() {
	n.power.Activity(n.now())
}

// PowerShutdownReceived forces the clock screen as if the host shut down
func (n *Node) PowerShutdownReceived() {
	n.power.ShutdownReceived(n.now())
}

// PowerWakeDetected wakes the display as if the host woke up
func (n *Node) PowerWakeDetected() {
	n.power.WakeDetected(n.now())
}

// PowerState returns the current power state
func (n *Node) PowerState() power.State {
	return n.power.State()
}

// DisplayMode returns the current display mode
func (n *Node) DisplayMode() power.DisplayMode {
	return n.power.DisplayMode()
}

// Brightness returns the effective backlight level
func (n *Node) Brightness() power.Brightness {
	return n.power.Brightness()
}

// commandLink picks the link for display commands: the preferred one while
// it is up, the other one when only that is up, else the preferred one.
func (n *Node) commandLink(now time.Time) link.Link {
	var preferred, fallback *port
	for _, p := range n.ports {
		if p.link.Channel() == n.opts.Preferred && preferred == nil {
			preferred = p
		} else if fallback == nil {
			fallback = p
		}
	}
	switch {
	case preferred == nil:
		return fallback.link
	case fallback != nil && !preferred.health.Up(now) && fallback.health.Up(now):
		return fallback.link
	default:
		return preferred.link
	}
}
