// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hotlink

import "fmt"

// Decoder implements the wired frame decoder state machine.
//
// The decoder is fed one byte at a time and never blocks. Only the frame that
// started at the oldest start byte is parsed: WAIT_SOF, READ_LEN, READ_TYPE,
// READ_PAYLOAD, READ_CRC. Its raw bytes (at most MaxFrameSize) are kept so
// that when it fails its length or CRC check the decoder can backtrack:
// the failed start byte is dropped and the bytes after it are parsed again.
// A start byte inside a frame is never treated as a frame of its own while
// that frame may still complete.
//
// A bogus length read from noise can hold back the frames behind it until
// enough bytes arrive to fail its CRC. Callers that see the line go quiet
// call Flush to resolve it.
type Decoder struct {
	window []byte    // raw bytes of the frame in progress, from its start byte
	ready  []Message // completed, not yet handed out
	stats  *Statistics
}

// NewDecoder creates a new protocol decoder
func NewDecoder() *Decoder {
	return &Decoder{
		window: make([]byte, 0, MaxFrameSize),
		stats:  NewStatistics(),
	}
}

// Reset drops any partial frame and undelivered message and returns the
// decoder to WAIT_SOF
func (d *Decoder) Reset() {
	d.window = d.window[:0]
	d.ready = nil
}

// Statistics returns the decoder's running counters
func (d *Decoder) Statistics() *Statistics {
	return d.stats
}

// State returns the parser state of the frame in progress
func (d *Decoder) State() int {
	rel := len(d.window)
	switch {
	case rel == 0:
		return StateWaitSOF
	case rel == 1:
		return StateReadLen
	case rel == 2:
		return StateReadType
	case rel < int(d.window[1])+3:
		return StateReadPayload
	default:
		return StateReadCRC
	}
}

// Pending returns the number of buffered bytes belonging to the unfinished
// frame
func (d *Decoder) Pending() int {
	return len(d.window)
}

// Ready returns the number of completed messages waiting for Next
func (d *Decoder) Ready() int {
	return len(d.ready)
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns the oldest completed message, or nil if none is waiting. Returns an
// error when the frame in progress was discarded on this byte; the decoder
// has already resynchronized when it does. Backtracking can complete more
// than one frame on a single byte; take the rest with Next.
func (d *Decoder) DecodeByte(b byte) (*Message, error) {
	err := d.feed(b)
	return d.Next(), err
}

// Next returns the oldest completed message not yet handed out, or nil
func (d *Decoder) Next() *Message {
	if len(d.ready) == 0 {
		return nil
	}
	msg := d.ready[0]
	d.ready = d.ready[1:]
	if len(d.ready) == 0 {
		d.ready = nil
	}
	return &msg
}

// Decode feeds a buffer through the decoder and returns every completed
// message. Framing errors are counted in Statistics but not returned.
func (d *Decoder) Decode(data []byte) []Message {
	for _, b := range data {
		_ = d.feed(b)
	}
	return d.drain()
}

// Flush declares the line idle: the frame in progress is truncated. Its
// start byte is dropped and the bytes after it parsed again, until no frame
// is left in progress. Returns the number of messages waiting for Next.
func (d *Decoder) Flush() int {
	for len(d.window) > 0 {
		d.stats.Truncated++
		d.backtrack()
	}
	return len(d.ready)
}

func (d *Decoder) drain() []Message {
	out := d.ready
	d.ready = nil
	return out
}

func (d *Decoder) feed(b byte) error {
	if len(d.window) == 0 {
		if b != StartByte {
			d.stats.DiscardedBytes++
			return nil
		}
		d.window = append(d.window, b)
		return nil
	}
	d.window = append(d.window, b)

	length := d.window[1]
	if length > MaxPayloadSize {
		d.stats.LengthErrors++
		d.backtrack()
		return fmt.Errorf("%w: %d (max %d)", ErrInvalidLength, length, MaxPayloadSize)
	}
	if len(d.window) < int(length)+FrameOverhead {
		return nil
	}

	kind := Kind(d.window[2])
	payload := d.window[3 : 3+int(length)]
	if expected := frameCRC(length, kind, payload); expected != b {
		d.stats.CRCErrors++
		d.backtrack()
		return fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrCRCMismatch, expected, b)
	}

	d.ready = append(d.ready, NewMessage(kind, payload))
	d.stats.Frames++
	d.window = d.window[:0]
	return nil
}

// backtrack drops the start byte of the failed frame and parses the bytes
// after it again. Failures found while doing so are counted, not returned.
func (d *Decoder) backtrack() {
	rest := append([]byte(nil), d.window[1:]...)
	d.window = d.window[:0]
	d.stats.DiscardedBytes++
	for _, b := range rest {
		_ = d.feed(b)
	}
}
