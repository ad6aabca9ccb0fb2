// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"sync"
)

// Air is an in-memory radio medium. Every StubRadio created from the same
// Air hears broadcasts from the others; delivery is synchronous.
type Air struct {
	mu     sync.Mutex
	radios map[Address]*StubRadio
	rssi   int
}

// NewAir creates an empty medium reporting rssi for every delivery
func NewAir(rssi int) *Air {
	return &Air{radios: make(map[Address]*StubRadio), rssi: rssi}
}

// NewRadio attaches a radio with the given address to the medium
func (a *Air) NewRadio(addr Address) *StubRadio {
	r := &StubRadio{air: a, addr: addr, peers: make(map[Address]bool)}
	a.mu.Lock()
	a.radios[addr] = r
	a.mu.Unlock()
	return r
}

// SetRSSI changes the signal strength reported for later deliveries
func (a *Air) SetRSSI(rssi int) {
	a.mu.Lock()
	a.rssi = rssi
	a.mu.Unlock()
}

func (a *Air) deliver(from, to Address, data []byte) {
	a.mu.Lock()
	rssi := a.rssi
	var targets []*StubRadio
	for addr, r := range a.radios {
		if addr == from {
			continue
		}
		if to.IsBroadcast() || to == addr {
			targets = append(targets, r)
		}
	}
	a.mu.Unlock()

	for _, r := range targets {
		r.Inject(from, rssi, data)
	}
}

// SentDatagram is a transmission recorded by StubRadio.
type SentDatagram struct {
	To   Address
	Data []byte
}

// StubRadio implements Radio on an Air for tests and simulations.
type StubRadio struct {
	air  *Air
	addr Address

	mu        sync.Mutex
	peers     map[Address]bool
	onReceive ReceiveFunc
	sent      []SentDatagram
	closed    bool
}

// Start registers the receive callback
func (r *StubRadio) Start(onReceive ReceiveFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRadioClosed
	}
	if r.onReceive != nil {
		return ErrRadioStarted
	}
	r.onReceive = onReceive
	return nil
}

// Send records the datagram and delivers it over the air
func (r *StubRadio) Send(to Address, data []byte) error {
	if len(data) > MaxDatagramSize {
		return ErrDatagramTooLarge
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRadioClosed
	}
	if !to.IsBroadcast() && !r.peers[to] {
		r.mu.Unlock()
		return ErrUnknownPeer
	}
	frame := append([]byte(nil), data...)
	r.sent = append(r.sent, SentDatagram{To: to, Data: frame})
	r.mu.Unlock()

	if r.air != nil {
		r.air.deliver(r.addr, to, frame)
	}
	return nil
}

// AddPeer registers a unicast target
func (r *StubRadio) AddPeer(addr Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[addr] = true
	return nil
}

// HasPeer reports whether addr is registered
func (r *StubRadio) HasPeer(addr Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[addr]
}

// Address returns the radio's address
func (r *StubRadio) Address() Address {
	return r.addr
}

// Close detaches the radio from the air
func (r *StubRadio) Close() error {
	r.mu.Lock()
	r.closed = true
	r.onReceive = nil
	r.mu.Unlock()

	if r.air != nil {
		r.air.mu.Lock()
		if r.air.radios[r.addr] == r {
			delete(r.air.radios, r.addr)
		}
		r.air.mu.Unlock()
	}
	return nil
}

// Inject delivers a datagram as if it had been received from the air
func (r *StubRadio) Inject(from Address, rssi int, data []byte) {
	r.mu.Lock()
	cb := r.onReceive
	r.mu.Unlock()
	if cb != nil {
		cb(from, rssi, append([]byte(nil), data...))
	}
}

// Sent returns a copy of every datagram transmitted so far
func (r *StubRadio) Sent() []SentDatagram {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SentDatagram, len(r.sent))
	copy(out, r.sent)
	return out
}
