// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hotlink

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrUnknownKind     = errors.New("hotlink: unknown message kind")
	ErrPayloadTooShort = errors.New("hotlink: payload too short")
)

// AnomalyType classifies a message validation failure
type AnomalyType int

const (
	AnomalyUnknownKind AnomalyType = iota
	AnomalyOversize
	AnomalyUndersize
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case AnomalyUnknownKind:
		return "unknown_kind"
	case AnomalyOversize:
		return "oversize"
	case AnomalyUndersize:
		return "undersize"
	default:
		return "unknown"
	}
}

// ValidationError represents a message validation failure
type ValidationError struct {
	Type    AnomalyType
	Kind    Kind
	Length  int
	Message string
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Unwrap maps the anomaly onto the package's sentinel errors
func (v *ValidationError) Unwrap() error {
	switch v.Type {
	case AnomalyUnknownKind:
		return ErrUnknownKind
	case AnomalyOversize:
		return ErrPayloadTooLarge
	default:
		return ErrPayloadTooShort
	}
}

// minPayloadSizes holds the minimum payload length of every known kind.
var minPayloadSizes = map[Kind]int{
	KindHotkey:       2,
	KindHotkeyAck:    1,
	KindMediaKey:     2,
	KindStats:        1,
	KindPowerState:   1,
	KindTimeSync:     4,
	KindNotification: NotificationSize,
	KindConfigMode:   0,
	KindConfigDone:   0,
	KindPing:         0,
}

// MinPayloadSize returns the minimum payload length for kind, or 0 for
// kinds outside the taxonomy.
func MinPayloadSize(kind Kind) int {
	return minPayloadSizes[kind]
}

// ValidateMessage checks the kind and payload length of a received message.
// Checks run in order: unknown kind, oversize, undersize.
func ValidateMessage(m Message) error {
	if !m.Kind.Known() {
		return &ValidationError{
			Type:    AnomalyUnknownKind,
			Kind:    m.Kind,
			Length:  len(m.Payload),
			Message: fmt.Sprintf("unknown message kind 0x%02X", uint8(m.Kind)),
		}
	}
	if len(m.Payload) > MaxPayloadSize {
		return &ValidationError{
			Type:    AnomalyOversize,
			Kind:    m.Kind,
			Length:  len(m.Payload),
			Message: fmt.Sprintf("%s payload too large (%d bytes, max %d)", m.Kind, len(m.Payload), MaxPayloadSize),
		}
	}
	if need := MinPayloadSize(m.Kind); len(m.Payload) < need {
		return &ValidationError{
			Type:    AnomalyUndersize,
			Kind:    m.Kind,
			Length:  len(m.Payload),
			Message: fmt.Sprintf("%s payload too short (%d bytes, expected %d)", m.Kind, len(m.Payload), need),
		}
	}
	return nil
}
