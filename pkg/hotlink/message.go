// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hotlink

import (
	"bytes"
	"errors"
)

// Protocol errors
var (
	ErrPayloadTooLarge = errors.New("hotlink: payload too large")
	ErrInvalidLength   = errors.New("hotlink: invalid length")
	ErrCRCMismatch     = errors.New("hotlink: CRC mismatch")
	ErrShortFrame      = errors.New("hotlink: short frame")
	ErrMissingSOF      = errors.New("hotlink: missing start byte")
	ErrEmptyDatagram   = errors.New("hotlink: empty datagram")
)

// Message is the transport independent unit of communication: a kind plus
// up to MaxPayloadSize payload bytes.
type Message struct {
	Kind    Kind
	Payload []byte
}

// NewMessage creates a message owning a copy of payload.
func NewMessage(kind Kind, payload []byte) Message {
	m := Message{Kind: kind}
	if len(payload) > 0 {
		m.Payload = append([]byte(nil), payload...)
	}
	return m
}

// Len returns the payload length
func (m Message) Len() int {
	return len(m.Payload)
}

// Equal reports whether two messages carry the same kind and payload bytes.
func (m Message) Equal(o Message) bool {
	return m.Kind == o.Kind && bytes.Equal(m.Payload, o.Payload)
}

// String returns the message kind name, e.g. "HOTKEY"
func (m Message) String() string {
	return FormatKind(m.Kind)
}

// Known reports whether k is part of the message taxonomy.
func (k Kind) Known() bool {
	return k >= KindHotkey && k <= KindPing
}

// String returns the wire name of the kind
func (k Kind) String() string {
	return FormatKind(k)
}

// EncodeDatagram builds the unframed radio form: TYPE | PAYLOAD.
func EncodeDatagram(kind Kind, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	data := make([]byte, 0, 1+len(payload))
	data = append(data, byte(kind))
	data = append(data, payload...)
	return data, nil
}

// DecodeDatagram parses an unframed radio datagram. The returned message
// owns its payload.
func DecodeDatagram(data []byte) (Message, error) {
	if len(data) == 0 {
		return Message{}, ErrEmptyDatagram
	}
	if len(data)-1 > MaxPayloadSize {
		return Message{}, ErrPayloadTooLarge
	}
	return NewMessage(Kind(data[0]), data[1:]), nil
}
