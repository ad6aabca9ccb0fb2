// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hotlink implements the Hotlink messaging protocol spoken between
// the touchscreen display and the USB bridge.
//
// Messages are a one byte kind plus a bounded payload. On the wired serial
// line every message travels inside a frame:
//
//	SOF(1) | LEN(1) | TYPE(1) | PAYLOAD(LEN) | CRC8(1)
//
// where the CRC covers LEN, TYPE and PAYLOAD. On the radio link a datagram is
// just TYPE followed by the payload; integrity is left to the radio stack.
package hotlink

// Protocol framing bytes
const (
	StartByte = 0xAA
)

// Size limits
const (
	// MaxPayloadSize bounds every payload on every transport. One kind byte
	// plus 249 payload bytes fills a 250 byte radio datagram.
	MaxPayloadSize = 249
	FrameOverhead  = 4 // SOF + LEN + TYPE + CRC
	MaxFrameSize   = MaxPayloadSize + FrameOverhead
)

// CRC-8/SMBUS configuration
const (
	crcPolynomial = 0x07
	crcInitial    = 0x00
)

// Kind identifies the message type carried in the TYPE byte.
type Kind uint8

// Message kinds
const (
	KindHotkey       Kind = 0x01
	KindHotkeyAck    Kind = 0x02
	KindMediaKey     Kind = 0x03
	KindStats        Kind = 0x04
	KindPowerState   Kind = 0x05
	KindTimeSync     Kind = 0x06
	KindNotification Kind = 0x07
	KindConfigMode   Kind = 0x08
	KindConfigDone   Kind = 0x09
	KindPing         Kind = 0x0A
)

// Kinds lists every known message kind in wire order.
var Kinds = []Kind{
	KindHotkey,
	KindHotkeyAck,
	KindMediaKey,
	KindStats,
	KindPowerState,
	KindTimeSync,
	KindNotification,
	KindConfigMode,
	KindConfigDone,
	KindPing,
}

// AckStatus is the single status byte of a HOTKEY_ACK.
type AckStatus uint8

// Ack status values
const (
	AckOK        AckStatus = 0x00
	AckMalformed AckStatus = 0x01
)

// PowerSignal is the state byte of a POWER_STATE message.
type PowerSignal uint8

// Power signal values
const (
	PowerShutdown PowerSignal = 0x00
	PowerWake     PowerSignal = 0x01
)

// Keyboard modifier bits (USB HID boot keyboard layout)
const (
	ModLeftCtrl   = 0x01
	ModLeftShift  = 0x02
	ModLeftAlt    = 0x04
	ModLeftGUI    = 0x08
	ModRightCtrl  = 0x10
	ModRightShift = 0x20
	ModRightAlt   = 0x40
	ModRightGUI   = 0x80
)

// Notification field capacities, NUL terminator included
const (
	NotificationAppNameSize = 32
	NotificationSummarySize = 100
	NotificationBodySize    = 116
	NotificationSize        = NotificationAppNameSize + NotificationSummarySize + NotificationBodySize
)

// Decoder states
const (
	StateWaitSOF = iota
	StateReadLen
	StateReadType
	StateReadPayload
	StateReadCRC
)
