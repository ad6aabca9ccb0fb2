// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
)

// WirelessOptions configures a WirelessLink.
type WirelessOptions struct {
	Policy     Policy
	QueueDepth int
	Logger     *zap.Logger
}

// WirelessLink carries unframed datagrams (TYPE | PAYLOAD) over a Radio.
// The radio callback writes into the handoff; everything else runs on the
// polling loop.
type WirelessLink struct {
	radio   Radio
	handoff Handoff
	policy  Policy
	log     *zap.Logger

	discarded atomic.Uint64

	// last polled sender, loop owned
	sender    Address
	hasSender bool
	rssi      int
}

// NewWireless creates a wireless link over radio
func NewWireless(radio Radio, opts WirelessOptions) *WirelessLink {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &WirelessLink{
		radio:   radio,
		handoff: NewHandoff(opts.Policy, opts.QueueDepth),
		policy:  opts.Policy,
		log:     opts.Logger.With(zap.String("channel", ChannelWireless.String())),
	}
}

// Init starts radio reception
func (w *WirelessLink) Init() error {
	return w.radio.Start(w.onReceive)
}

// onReceive runs on the radio goroutine
func (w *WirelessLink) onReceive(from Address, rssi int, data []byte) {
	if len(data) == 0 || len(data) > MaxDatagramSize {
		w.discarded.Add(1)
		return
	}
	msg, err := hotlink.DecodeDatagram(data)
	if err != nil {
		w.discarded.Add(1)
		return
	}
	w.handoff.Put(Arrival{From: from, RSSI: rssi, Message: msg})
}

// Poll takes the next arrival and remembers its sender for Reply
func (w *WirelessLink) Poll() (hotlink.Message, bool) {
	a, ok := w.handoff.Take()
	if !ok {
		return hotlink.Message{}, false
	}
	w.sender = a.From
	w.hasSender = true
	w.rssi = a.RSSI
	return a.Message, true
}

// Send broadcasts the message
func (w *WirelessLink) Send(kind hotlink.Kind, payload []byte) bool {
	return w.Broadcast(kind, payload)
}

// Broadcast transmits to every listener
func (w *WirelessLink) Broadcast(kind hotlink.Kind, payload []byte) bool {
	return w.transmit(BroadcastAddress, kind, payload)
}

// Reply unicasts to the most recently polled sender, registering it as a
// peer on first use. With no sender yet it broadcasts.
func (w *WirelessLink) Reply(kind hotlink.Kind, payload []byte) bool {
	if !w.hasSender {
		return w.Broadcast(kind, payload)
	}
	if !w.radio.HasPeer(w.sender) {
		if err := w.radio.AddPeer(w.sender); err != nil {
			w.log.Warn("add peer failed", zap.Stringer("peer", w.sender), zap.Error(err))
			return false
		}
	}
	return w.transmit(w.sender, kind, payload)
}

func (w *WirelessLink) transmit(to Address, kind hotlink.Kind, payload []byte) bool {
	data, err := hotlink.EncodeDatagram(kind, payload)
	if err != nil {
		w.log.Warn("encode failed", zap.Stringer("kind", kind), zap.Error(err))
		return false
	}
	if err := w.radio.Send(to, data); err != nil {
		w.log.Warn("radio send failed", zap.Stringer("to", to), zap.Stringer("kind", kind), zap.Error(err))
		return false
	}
	return true
}

// Channel returns ChannelWireless
func (w *WirelessLink) Channel() Channel {
	return ChannelWireless
}

// Close stops the radio
func (w *WirelessLink) Close() error {
	return w.radio.Close()
}

// LastSender returns the sender of the most recently polled message
func (w *WirelessLink) LastSender() (Address, bool) {
	return w.sender, w.hasSender
}

// LastRSSI returns the signal strength of the most recently polled message
func (w *WirelessLink) LastRSSI() int {
	return w.rssi
}

// Policy returns the handoff policy
func (w *WirelessLink) Policy() Policy {
	return w.policy
}

// Dropped counts arrivals refused by a full queue
func (w *WirelessLink) Dropped() uint64 {
	return w.handoff.Dropped()
}

// Overwritten counts arrivals replaced in the latch before being polled
func (w *WirelessLink) Overwritten() uint64 {
	return w.handoff.Overwritten()
}

// Discarded counts empty or oversize datagrams
func (w *WirelessLink) Discarded() uint64 {
	return w.discarded.Load()
}
