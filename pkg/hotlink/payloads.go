// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hotlink

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Hotkey is the payload of a HOTKEY message: a modifier bitmask and a
// keycode. Keycodes above 0xFF are sent as a 16-bit little-endian value.
type Hotkey struct {
	Modifiers uint8
	Keycode   uint16
}

// HotkeyAck is the payload of a HOTKEY_ACK message.
type HotkeyAck struct {
	Status AckStatus
}

// MediaKey is the payload of a MEDIA_KEY message (HID consumer usage).
type MediaKey struct {
	Code uint16
}

// PowerState is the payload of a POWER_STATE message.
type PowerState struct {
	Signal PowerSignal
}

// TimeSync is the payload of a TIME_SYNC message.
type TimeSync struct {
	Epoch uint64 // seconds since the Unix epoch
}

// Notification is the payload of a NOTIFICATION message.
type Notification struct {
	AppName string
	Summary string
	Body    string
}

// Marshal encodes the hotkey payload
func (h Hotkey) Marshal() []byte {
	if h.Keycode <= 0xFF {
		return []byte{h.Modifiers, uint8(h.Keycode)}
	}
	buf := make([]byte, 3)
	buf[0] = h.Modifiers
	binary.LittleEndian.PutUint16(buf[1:], h.Keycode)
	return buf
}

// ParseHotkey decodes a HOTKEY payload
func ParseHotkey(payload []byte) (Hotkey, error) {
	if err := checkMin(KindHotkey, payload); err != nil {
		return Hotkey{}, err
	}
	h := Hotkey{Modifiers: payload[0], Keycode: uint16(payload[1])}
	if len(payload) >= 3 {
		h.Keycode = binary.LittleEndian.Uint16(payload[1:3])
	}
	return h, nil
}

// Marshal encodes the ack payload
func (a HotkeyAck) Marshal() []byte {
	return []byte{byte(a.Status)}
}

// ParseHotkeyAck decodes a HOTKEY_ACK payload
func ParseHotkeyAck(payload []byte) (HotkeyAck, error) {
	if err := checkMin(KindHotkeyAck, payload); err != nil {
		return HotkeyAck{}, err
	}
	return HotkeyAck{Status: AckStatus(payload[0])}, nil
}

// Marshal encodes the media key payload
func (m MediaKey) Marshal() []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, m.Code)
	return buf
}

// ParseMediaKey decodes a MEDIA_KEY payload
func ParseMediaKey(payload []byte) (MediaKey, error) {
	if err := checkMin(KindMediaKey, payload); err != nil {
		return MediaKey{}, err
	}
	return MediaKey{Code: binary.LittleEndian.Uint16(payload)}, nil
}

// Marshal encodes the power state payload
func (p PowerState) Marshal() []byte {
	return []byte{byte(p.Signal)}
}

// ParsePowerState decodes a POWER_STATE payload
func ParsePowerState(payload []byte) (PowerState, error) {
	if err := checkMin(KindPowerState, payload); err != nil {
		return PowerState{}, err
	}
	return PowerState{Signal: PowerSignal(payload[0])}, nil
}

// NewTimeSync creates a TIME_SYNC payload for t
func NewTimeSync(t time.Time) TimeSync {
	sec := t.Unix()
	if sec < 0 {
		sec = 0
	}
	return TimeSync{Epoch: uint64(sec)}
}

// Time returns the synchronized wall clock time
func (t TimeSync) Time() time.Time {
	if t.Epoch > math.MaxInt64 {
		return time.Unix(math.MaxInt64, 0)
	}
	return time.Unix(int64(t.Epoch), 0)
}

// Marshal encodes the epoch as 32 bits when it fits, 64 bits otherwise
func (t TimeSync) Marshal() []byte {
	if t.Epoch <= math.MaxUint32 {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(t.Epoch))
		return buf
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, t.Epoch)
	return buf
}

// ParseTimeSync decodes a TIME_SYNC payload
func ParseTimeSync(payload []byte) (TimeSync, error) {
	if err := checkMin(KindTimeSync, payload); err != nil {
		return TimeSync{}, err
	}
	if len(payload) >= 8 {
		return TimeSync{Epoch: binary.LittleEndian.Uint64(payload)}, nil
	}
	return TimeSync{Epoch: uint64(binary.LittleEndian.Uint32(payload))}, nil
}

// Marshal encodes the three fixed-size, NUL-terminated fields. Longer
// strings are truncated to leave room for the terminator.
func (n Notification) Marshal() []byte {
	buf := make([]byte, NotificationSize)
	putCString(buf[:NotificationAppNameSize], n.AppName)
	putCString(buf[NotificationAppNameSize:NotificationAppNameSize+NotificationSummarySize], n.Summary)
	putCString(buf[NotificationAppNameSize+NotificationSummarySize:], n.Body)
	return buf
}

// ParseNotification decodes a NOTIFICATION payload
func ParseNotification(payload []byte) (Notification, error) {
	if err := checkMin(KindNotification, payload); err != nil {
		return Notification{}, err
	}
	summaryEnd := NotificationAppNameSize + NotificationSummarySize
	return Notification{
		AppName: getCString(payload[:NotificationAppNameSize]),
		Summary: getCString(payload[NotificationAppNameSize:summaryEnd]),
		Body:    getCString(payload[summaryEnd:NotificationSize]),
	}, nil
}

func putCString(field []byte, s string) {
	n := copy(field[:len(field)-1], s)
	for i := n; i < len(field); i++ {
		field[i] = 0
	}
}

// getCString reads up to the first NUL; a field without one is read whole.
func getCString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		return string(field[:i])
	}
	return string(field)
}

func checkMin(kind Kind, payload []byte) error {
	if need := MinPayloadSize(kind); len(payload) < need {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrPayloadTooShort, kind, need, len(payload))
	}
	return nil
}
