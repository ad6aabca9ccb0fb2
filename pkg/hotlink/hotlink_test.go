// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hotlink

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hotkeyFrame is HOTKEY{mod=0x01, key=0x63} on the wire
var hotkeyFrame = []byte{0xAA, 0x02, 0x01, 0x01, 0x63, 0x7C}

func TestCalculateCRC_Empty(t *testing.T) {
	assert.Equal(t, uint8(0x00), CalculateCRC(nil))
	assert.Equal(t, uint8(0x00), CalculateCRC([]byte{}))
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint8
	}{
		{"check string", []byte("123456789"), 0xF4},
		{"hotkey frame body", []byte{0x02, 0x01, 0x01, 0x63}, 0x7C},
		{"ping frame body", []byte{0x00, 0x0A}, 0x36},
		{"ack ok body", []byte{0x01, 0x02, 0x00}, 0x41},
		{"ack malformed body", []byte{0x01, 0x02, 0x01}, 0x46},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateCRC(tt.data))
		})
	}
}

func TestFrameCRC_MatchesCalculateCRC(t *testing.T) {
	payload := []byte{0x10, 0x20, 0x30}
	body := append([]byte{byte(len(payload)), byte(KindStats)}, payload...)
	assert.Equal(t, CalculateCRC(body), frameCRC(uint8(len(payload)), KindStats, payload))
}

func TestEncodeFrame_HotkeyExample(t *testing.T) {
	frame, err := EncodeFrame(KindHotkey, Hotkey{Modifiers: 0x01, Keycode: 0x63}.Marshal())
	require.NoError(t, err)
	assert.Equal(t, hotkeyFrame, frame)
}

func TestEncodeFrame_EmptyPayload(t *testing.T) {
	frame, err := EncodeFrame(KindPing, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0x00, 0x0A, 0x36}, frame)
}

func TestEncodeFrame_PayloadTooLarge(t *testing.T) {
	_, err := EncodeFrame(KindStats, make([]byte, MaxPayloadSize+1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPayloadTooLarge))

	frame, err := EncodeFrame(KindStats, make([]byte, MaxPayloadSize))
	require.NoError(t, err)
	assert.Len(t, frame, MaxFrameSize)
}

func TestMustEncodeFrame_Panics(t *testing.T) {
	assert.Panics(t, func() { MustEncodeFrame(KindStats, make([]byte, MaxPayloadSize+1)) })
	assert.NotPanics(t, func() { MustEncodeFrame(KindPing, nil) })
}

func TestEncoder_Encode(t *testing.T) {
	enc := NewEncoder()
	frame, err := enc.Encode(NewMessage(KindHotkey, []byte{0x01, 0x63}))
	require.NoError(t, err)
	assert.Equal(t, hotkeyFrame, frame)
}

func TestDecodeFrame(t *testing.T) {
	msg, err := DecodeFrame(hotkeyFrame)
	require.NoError(t, err)
	assert.Equal(t, KindHotkey, msg.Kind)
	assert.Equal(t, []byte{0x01, 0x63}, msg.Payload)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short", []byte{0xAA, 0x00}, ErrShortFrame},
		{"missing sof", []byte{0xAB, 0x00, 0x0A, 0x36}, ErrMissingSOF},
		{"oversize length", []byte{0xAA, 0xFA, 0x01, 0x00}, ErrInvalidLength},
		{"trailing bytes", append(append([]byte{}, hotkeyFrame...), 0x00), ErrInvalidLength},
		{"bad crc", []byte{0xAA, 0x02, 0x01, 0x01, 0x63, 0x7D}, ErrCRCMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(tt.data)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDecoder_SimpleFrame(t *testing.T) {
	d := NewDecoder()
	assert.Equal(t, StateWaitSOF, d.State())

	states := []int{StateReadLen, StateReadType, StateReadPayload, StateReadPayload, StateReadCRC}
	for i, b := range hotkeyFrame[:len(hotkeyFrame)-1] {
		msg, err := d.DecodeByte(b)
		require.NoError(t, err)
		require.Nil(t, msg, "byte %d completed a frame early", i)
		assert.Equal(t, states[i], d.State(), "state after byte %d", i)
	}

	msg, err := d.DecodeByte(hotkeyFrame[len(hotkeyFrame)-1])
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, KindHotkey, msg.Kind)
	assert.Equal(t, []byte{0x01, 0x63}, msg.Payload)
	assert.Equal(t, StateWaitSOF, d.State())
	assert.Equal(t, uint64(1), d.Statistics().Frames)
}

func TestDecoder_ZeroLengthSkipsPayload(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(0xAA)
	d.DecodeByte(0x00)
	assert.Equal(t, StateReadType, d.State())
	d.DecodeByte(byte(KindPing))
	assert.Equal(t, StateReadCRC, d.State())

	msg, err := d.DecodeByte(0x36)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, KindPing, msg.Kind)
	assert.Empty(t, msg.Payload)
}

func TestDecoder_IgnoresNoiseBeforeSOF(t *testing.T) {
	d := NewDecoder()
	for _, b := range []byte{0x00, 0x13, 0xFF, 0x55} {
		msg, err := d.DecodeByte(b)
		assert.Nil(t, msg)
		assert.NoError(t, err)
		assert.Equal(t, StateWaitSOF, d.State())
	}
	assert.Equal(t, uint64(4), d.Statistics().DiscardedBytes)
}

func TestDecoder_CRCMismatchThenRecovery(t *testing.T) {
	d := NewDecoder()
	bad := append([]byte{}, hotkeyFrame...)
	bad[len(bad)-1] ^= 0xFF

	var gotErr error
	for _, b := range bad {
		msg, err := d.DecodeByte(b)
		assert.Nil(t, msg)
		if err != nil {
			gotErr = err
		}
	}
	require.Error(t, gotErr)
	assert.True(t, errors.Is(gotErr, ErrCRCMismatch))
	assert.Equal(t, StateWaitSOF, d.State())
	assert.Equal(t, uint64(1), d.Statistics().CRCErrors)

	msgs := d.Decode(hotkeyFrame)
	require.Len(t, msgs, 1)
	assert.Equal(t, KindHotkey, msgs[0].Kind)
}

func TestDecoder_CorruptPayloadThenRecovery(t *testing.T) {
	bad := append([]byte{}, hotkeyFrame...)
	bad[4] ^= 0x01

	d := NewDecoder()
	msgs := d.Decode(append(bad, hotkeyFrame...))
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte{0x01, 0x63}, msgs[0].Payload)
	assert.Equal(t, uint64(1), d.Statistics().CRCErrors)
}

func TestDecoder_InvalidLength(t *testing.T) {
	d := NewDecoder()
	_, err := d.DecodeByte(0xAA)
	require.NoError(t, err)

	msg, err := d.DecodeByte(0xFA)
	assert.Nil(t, msg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidLength))
	assert.Equal(t, StateWaitSOF, d.State())
	assert.Equal(t, uint64(1), d.Statistics().LengthErrors)

	msgs := d.Decode(append([]byte{0x01}, hotkeyFrame...))
	require.Len(t, msgs, 1)
	assert.Equal(t, KindHotkey, msgs[0].Kind)
}

func TestDecoder_ResyncAfterNoiseWithSOF(t *testing.T) {
	tests := []struct {
		name  string
		noise []byte
	}{
		{"lone sof", []byte{0xAA}},
		{"double sof", []byte{0xAA, 0xAA}},
		{"mixed", []byte{0x00, 0xAA, 0xAA, 0x13, 0xAA}},
		{"truncated frame", []byte{0xAA, 0x05, 0x01, 0x10, 0x20}},
		{"oversize header", []byte{0xAA, 0xFA, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder()
			msgs := decodeIdle(d, append(append([]byte{}, tt.noise...), hotkeyFrame...))
			require.Len(t, msgs, 1)
			assert.Equal(t, KindHotkey, msgs[0].Kind)
			assert.Equal(t, []byte{0x01, 0x63}, msgs[0].Payload)
			assert.Equal(t, 0, d.Pending())
		})
	}
}

func TestDecoder_NoiseLengthHoldsFramesUntilFlush(t *testing.T) {
	d := NewDecoder()
	// the stray start byte reads the real one as a 170 byte length
	assert.Empty(t, d.Decode(append([]byte{0xAA}, hotkeyFrame...)))
	assert.Equal(t, 1+len(hotkeyFrame), d.Pending())

	assert.Equal(t, 1, d.Flush())
	msg := d.Next()
	require.NotNil(t, msg)
	assert.True(t, msg.Equal(NewMessage(KindHotkey, []byte{0x01, 0x63})))
	assert.Nil(t, d.Next())
	assert.Equal(t, 0, d.Pending())
	assert.Equal(t, uint64(1), d.Statistics().Truncated)
}

func TestDecoder_InnerFrameIsPayload(t *testing.T) {
	// a complete PING inside a STATS body
	payload := []byte{0x01, 0xAA, 0x00, 0x0A, 0x36, 0x05}
	frame := MustEncodeFrame(KindStats, payload)

	d := NewDecoder()
	for i, b := range frame[:len(frame)-1] {
		msg, err := d.DecodeByte(b)
		require.NoError(t, err)
		require.Nil(t, msg, "byte %d", i)
	}
	msg, err := d.DecodeByte(frame[len(frame)-1])
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, KindStats, msg.Kind)
	assert.Equal(t, payload, msg.Payload)
}

func TestDecoder_NotificationWithStartByte(t *testing.T) {
	// "ª" encodes as C2 AA and the NUL padding after it looks like a header
	note := Notification{AppName: "Señora ª", Summary: "Hola", Body: "¿Qué tal?"}
	frame := MustEncodeFrame(KindNotification, note.Marshal())
	require.Contains(t, string(frame), "\xaa\x00\x00\x00")

	d := NewDecoder()
	var msgs []Message
	for _, b := range frame {
		msg, err := d.DecodeByte(b)
		require.NoError(t, err)
		if msg != nil {
			msgs = append(msgs, *msg)
		}
	}
	require.Len(t, msgs, 1)
	assert.Equal(t, KindNotification, msgs[0].Kind)
	got, err := ParseNotification(msgs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, note, got)
}

func TestDecoder_BacktrackCompletesSeveralFrames(t *testing.T) {
	ping := MustEncodeFrame(KindPing, nil)
	// a 10 byte frame around two PINGs whose CRC byte is wrong
	stream := []byte{0xAA, 0x0A, 0x00}
	stream = append(stream, ping...)
	stream = append(stream, ping...)
	stream = append(stream, 0x00, 0x00)

	d := NewDecoder()
	for _, b := range stream {
		msg, err := d.DecodeByte(b)
		require.NoError(t, err)
		require.Nil(t, msg)
	}

	msg, err := d.DecodeByte(0x00)
	assert.ErrorIs(t, err, ErrCRCMismatch)
	require.NotNil(t, msg)
	assert.Equal(t, KindPing, msg.Kind)
	assert.Equal(t, 1, d.Ready())

	msg = d.Next()
	require.NotNil(t, msg)
	assert.Equal(t, KindPing, msg.Kind)
	assert.Nil(t, d.Next())
	assert.Equal(t, uint64(2), d.Statistics().Frames)
	assert.Equal(t, uint64(6), d.Statistics().DiscardedBytes)
}

func TestDecoder_BackToBackFrames(t *testing.T) {
	ping := MustEncodeFrame(KindPing, nil)
	ack := MustEncodeFrame(KindHotkeyAck, HotkeyAck{Status: AckOK}.Marshal())

	var stream []byte
	stream = append(stream, hotkeyFrame...)
	stream = append(stream, ping...)
	stream = append(stream, ack...)

	d := NewDecoder()
	msgs := d.Decode(stream)
	require.Len(t, msgs, 3)
	assert.Equal(t, KindHotkey, msgs[0].Kind)
	assert.Equal(t, KindPing, msgs[1].Kind)
	assert.Equal(t, KindHotkeyAck, msgs[2].Kind)
	assert.Equal(t, []byte{0x00}, msgs[2].Payload)
}

func TestDecoder_PartialFrameIsPreserved(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Decode(hotkeyFrame[:3]))
	assert.Equal(t, 3, d.Pending())

	msgs := d.Decode(hotkeyFrame[3:])
	require.Len(t, msgs, 1)
	assert.Equal(t, KindHotkey, msgs[0].Kind)
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	d.Decode(hotkeyFrame[:4])
	assert.NotEqual(t, StateWaitSOF, d.State())

	d.Reset()
	assert.Equal(t, StateWaitSOF, d.State())
	assert.Equal(t, 0, d.Pending())

	msgs := d.Decode(hotkeyFrame)
	assert.Len(t, msgs, 1)
}

func TestDecoder_MessageOwnsPayload(t *testing.T) {
	d := NewDecoder()
	msgs := d.Decode(hotkeyFrame)
	require.Len(t, msgs, 1)

	// later input must not alias an emitted payload
	d.Decode([]byte{0xAA, 0x02, 0x01, 0xFF, 0xFF})
	assert.Equal(t, []byte{0x01, 0x63}, msgs[0].Payload)
}

func TestDecoder_MaxPayload(t *testing.T) {
	payload := bytes.Repeat([]byte{0x55}, MaxPayloadSize)
	frame := MustEncodeFrame(KindStats, payload)

	d := NewDecoder()
	msgs := d.Decode(frame)
	require.Len(t, msgs, 1)
	assert.Equal(t, payload, msgs[0].Payload)
}

func TestDatagram_RoundTrip(t *testing.T) {
	data, err := EncodeDatagram(KindMediaKey, []byte{0xE9, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0xE9, 0x00}, data)

	msg, err := DecodeDatagram(data)
	require.NoError(t, err)
	assert.True(t, msg.Equal(NewMessage(KindMediaKey, []byte{0xE9, 0x00})))

	_, err = DecodeDatagram(nil)
	assert.True(t, errors.Is(err, ErrEmptyDatagram))

	_, err = DecodeDatagram(make([]byte, MaxPayloadSize+2))
	assert.True(t, errors.Is(err, ErrPayloadTooLarge))

	_, err = EncodeDatagram(KindStats, make([]byte, MaxPayloadSize+1))
	assert.True(t, errors.Is(err, ErrPayloadTooLarge))
}

func TestStatistics_String(t *testing.T) {
	d := NewDecoder()
	bad := append([]byte{}, hotkeyFrame...)
	bad[5] = 0x00
	d.Decode(append(bad, hotkeyFrame...))

	s := d.Statistics()
	assert.Equal(t, uint64(1), s.Frames)
	assert.Equal(t, uint64(1), s.Errors())
	out := s.String()
	assert.Contains(t, out, "Valid Frames:")
	assert.Contains(t, out, "CRC Errors:")

	s.Reset()
	assert.Equal(t, uint64(0), s.Frames)
}
