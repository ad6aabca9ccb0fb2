// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hotlink

import "fmt"

// Encoder encodes messages into wired frames.
type Encoder struct{}

// NewEncoder creates a new frame encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode encodes a Message to wire format.
func (e *Encoder) Encode(m Message) ([]byte, error) {
	return EncodeFrame(m.Kind, m.Payload)
}

// EncodeFrame creates a complete wire-formatted frame:
// SOF | len | type | payload | crc8(len ‖ type ‖ payload).
// It refuses payloads longer than MaxPayloadSize.
func EncodeFrame(kind Kind, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	length := uint8(len(payload))
	frame := make([]byte, 0, len(payload)+FrameOverhead)
	frame = append(frame, StartByte, length, byte(kind))
	frame = append(frame, payload...)
	frame = append(frame, frameCRC(length, kind, payload))

	return frame, nil
}

// MustEncodeFrame is EncodeFrame for payloads known to fit.
// Panics on encoding error.
func MustEncodeFrame(kind Kind, payload []byte) []byte {
	data, err := EncodeFrame(kind, payload)
	if err != nil {
		panic(fmt.Sprintf("hotlink: encode error: %v", err))
	}
	return data
}

// DecodeFrame decodes exactly one complete frame held in data.
// Unlike Decoder it does not search for a start byte and rejects trailing
// bytes.
func DecodeFrame(data []byte) (Message, error) {
	if len(data) < FrameOverhead {
		return Message{}, ErrShortFrame
	}
	if data[0] != StartByte {
		return Message{}, ErrMissingSOF
	}

	length := data[1]
	if length > MaxPayloadSize {
		return Message{}, fmt.Errorf("%w: %d (max %d)", ErrInvalidLength, length, MaxPayloadSize)
	}
	if len(data) != int(length)+FrameOverhead {
		return Message{}, fmt.Errorf("%w: declared %d payload bytes, frame holds %d",
			ErrInvalidLength, length, len(data)-FrameOverhead)
	}

	kind := Kind(data[2])
	payload := data[3 : 3+int(length)]
	received := data[len(data)-1]
	expected := frameCRC(length, kind, payload)
	if received != expected {
		return Message{}, fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrCRCMismatch, expected, received)
	}

	return NewMessage(kind, payload), nil
}
