// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
)

// MaxDatagramSize is the largest radio datagram: one kind byte plus the
// maximum payload.
const MaxDatagramSize = 1 + hotlink.MaxPayloadSize

// Radio errors
var (
	ErrUnknownPeer      = errors.New("radio: unicast target is not a registered peer")
	ErrRadioClosed      = errors.New("radio: closed")
	ErrRadioStarted     = errors.New("radio: already started")
	ErrDatagramTooLarge = errors.New("radio: datagram too large")
	ErrInvalidAddress   = errors.New("radio: invalid address")
)

// Address is a 6-byte radio station address.
type Address [6]byte

// BroadcastAddress reaches every radio on the channel.
var BroadcastAddress = Address{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// String formats the address as AA:BB:CC:DD:EE:FF
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// IsBroadcast reports whether a is the broadcast address
func (a Address) IsBroadcast() bool {
	return a == BroadcastAddress
}

// ParseAddress parses "AA:BB:CC:DD:EE:FF" (or '-' separated)
func ParseAddress(s string) (Address, error) {
	var a Address
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != len(a) {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		a[i] = byte(v)
	}
	return a, nil
}

// ReceiveFunc is called by a radio for every datagram addressed to it. It
// runs on the radio's own goroutine and must not block.
type ReceiveFunc func(from Address, rssi int, data []byte)

// Radio is a connectionless broadcast radio driver.
type Radio interface {
	// Start begins delivering received datagrams to onReceive.
	Start(onReceive ReceiveFunc) error
	// Send transmits data to a registered peer or to BroadcastAddress.
	Send(to Address, data []byte) error
	// AddPeer registers a unicast target.
	AddPeer(addr Address) error
	// HasPeer reports whether addr is registered.
	HasPeer(addr Address) bool
	// Address returns this radio's own address.
	Address() Address
	// Close stops the radio.
	Close() error
}
