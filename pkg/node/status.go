// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"time"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
	"github.com/Thermoquad/hotlink/pkg/link"
	"github.com/Thermoquad/hotlink/pkg/power"
)

// LinkStatus is the published state of one link.
type LinkStatus struct {
	Channel     link.Channel `json:"channel"`
	Up          bool         `json:"up"`
	LastMessage time.Time    `json:"lastMessage"`
	RSSI        *int         `json:"rssi,omitempty"`

	// wired
	Frames         uint64 `json:"frames"`
	CRCErrors      uint64 `json:"crcErrors"`
	LengthErrors   uint64 `json:"lengthErrors"`
	Truncated      uint64 `json:"truncated"`
	DiscardedBytes uint64 `json:"discardedBytes"`
	Overflow       uint64 `json:"overflow"`

	// wireless
	Dropped     uint64 `json:"dropped"`
	Overwritten uint64 `json:"overwritten"`
	Discarded   uint64 `json:"discarded"`
}

// Status is an immutable snapshot of a node, safe to read from any
// goroutine.
type Status struct {
	Name        string            `json:"name"`
	Role        Role              `json:"role"`
	Power       power.State       `json:"power"`
	DisplayMode power.DisplayMode `json:"displayMode"`
	Brightness  uint8             `json:"brightness"`
	ConfigMode  bool              `json:"configMode"`
	Links       []LinkStatus      `json:"links"`
	Results     map[string]uint64 `json:"results"`
	Acks        uint64            `json:"acks"`
	AckErrors   uint64            `json:"ackErrors"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Up reports whether any link is up
func (s *Status) Up() bool {
	for _, l := range s.Links {
		if l.Up {
			return true
		}
	}
	return false
}

type framedLink interface {
	Statistics() *hotlink.Statistics
	Overflow() uint64
}

type radioLink interface {
	Dropped() uint64
	Overwritten() uint64
	Discarded() uint64
}

type deviceStatus struct {
	rssi       int
	linkUp     bool
	brightness power.Brightness
	valid      bool
}

// Status returns the latest snapshot. It is safe for concurrent use.
func (n *Node) Status() *Status {
	return n.status.Load()
}

func (n *Node) publishStatus(now time.Time) {
	s := &Status{
		Name:        n.opts.Name,
		Role:        n.opts.Role,
		Power:       n.power.State(),
		DisplayMode: n.power.DisplayMode(),
		Brightness:  uint8(n.power.Brightness()),
		ConfigMode:  n.configMode,
		Results:     make(map[string]uint64, len(n.results)),
		Acks:        n.acks,
		AckErrors:   n.ackErrors,
		UpdatedAt:   now,
	}
	for result, count := range n.results {
		s.Results[result.String()] = count
	}

	for _, p := range n.ports {
		ls := LinkStatus{
			Channel:     p.link.Channel(),
			Up:          p.health.Up(now),
			LastMessage: p.health.LastMessage(),
		}
		if rssi, ok := p.health.RSSI(); ok {
			ls.RSSI = &rssi
		}
		if f, ok := p.link.(framedLink); ok {
			st := f.Statistics()
			ls.Frames = st.Frames
			ls.CRCErrors = st.CRCErrors
			ls.LengthErrors = st.LengthErrors
			ls.Truncated = st.Truncated
			ls.DiscardedBytes = st.DiscardedBytes
			ls.Overflow = f.Overflow()
		}
		if r, ok := p.link.(radioLink); ok {
			ls.Dropped = r.Dropped()
			ls.Overwritten = r.Overwritten()
			ls.Discarded = r.Discarded()
		}
		s.Links = append(s.Links, ls)
	}
	n.status.Store(s)

	if n.opts.Role == RoleDisplay {
		n.updateDevice(s)
	}
}

// updateDevice pushes link and backlight status to the display when it
// changes.
func (n *Node) updateDevice(s *Status) {
	d := deviceStatus{
		linkUp:     s.Up(),
		brightness: n.power.Brightness(),
		valid:      true,
	}
	for _, l := range s.Links {
		if l.RSSI != nil {
			d.rssi = *l.RSSI
		}
	}
	if d == n.device {
		return
	}
	n.device = d
	n.opts.Display.UpdateDeviceStatus(d.rssi, d.linkUp, d.brightness)
}
