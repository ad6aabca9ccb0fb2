// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hotlink

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Stats is the host telemetry carried by a STATS message. It travels as a
// CBOR map with integer keys; nil fields are omitted from the map.
type Stats struct {
	CPUPercent  *float64 `cbor:"0,keyasint,omitempty"`
	RAMPercent  *float64 `cbor:"1,keyasint,omitempty"`
	GPUPercent  *float64 `cbor:"2,keyasint,omitempty"`
	CPUTemp     *float64 `cbor:"3,keyasint,omitempty"` // °C
	GPUTemp     *float64 `cbor:"4,keyasint,omitempty"` // °C
	NetRxKBps   *float64 `cbor:"5,keyasint,omitempty"`
	NetTxKBps   *float64 `cbor:"6,keyasint,omitempty"`
	DiskPercent *float64 `cbor:"7,keyasint,omitempty"`
}

// Float returns a pointer to v, for filling Stats literals
func Float(v float64) *float64 {
	return &v
}

var statsEncMode cbor.EncMode

func init() {
	var err error
	// Float16 shrinks percentages and temperatures whenever no precision is lost
	statsEncMode, err = cbor.EncOptions{ShortestFloat: cbor.ShortestFloat16}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("hotlink: stats encoder: %v", err))
	}
}

// Marshal encodes the stats payload
func (s Stats) Marshal() ([]byte, error) {
	data, err := statsEncMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stats: %w", err)
	}
	if len(data) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: stats encode to %d bytes", ErrPayloadTooLarge, len(data))
	}
	return data, nil
}

// ParseStats decodes a STATS payload
func ParseStats(payload []byte) (Stats, error) {
	if err := checkMin(KindStats, payload); err != nil {
		return Stats{}, err
	}
	var s Stats
	if err := cbor.Unmarshal(payload, &s); err != nil {
		return Stats{}, fmt.Errorf("failed to decode stats: %w", err)
	}
	return s, nil
}
