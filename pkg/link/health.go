// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "time"

// DefaultStaleTimeout is how long a link stays up after its last message.
const DefaultStaleTimeout = 10 * time.Second

// Health tracks liveness of one link. It is a status indicator only and is
// owned by the polling loop, so it carries no locking.
type Health struct {
	staleTimeout time.Duration
	last         time.Time
	seen         bool
	rssi         int
	hasRSSI      bool
}

// NewHealth creates a health monitor; a non-positive timeout selects
// DefaultStaleTimeout.
func NewHealth(staleTimeout time.Duration) *Health {
	if staleTimeout <= 0 {
		staleTimeout = DefaultStaleTimeout
	}
	return &Health{staleTimeout: staleTimeout}
}

// Touch records a received message
func (h *Health) Touch(now time.Time) {
	h.last = now
	h.seen = true
}

// TouchRSSI records a received radio message and its signal strength
func (h *Health) TouchRSSI(now time.Time, rssi int) {
	h.Touch(now)
	h.rssi = rssi
	h.hasRSSI = true
}

// LastMessage returns the time of the last message, zero if none yet
func (h *Health) LastMessage() time.Time {
	return h.last
}

// RSSI returns the signal strength of the last radio message
func (h *Health) RSSI() (int, bool) {
	return h.rssi, h.hasRSSI
}

// Up reports whether a message arrived within the stale timeout
func (h *Health) Up(now time.Time) bool {
	return h.seen && now.Sub(h.last) < h.staleTimeout
}

// StaleTimeout returns the configured timeout
func (h *Health) StaleTimeout() time.Duration {
	return h.staleTimeout
}
