// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
)

// DefaultQueueDepth is the ring size used by PolicyQueue when none is given.
const DefaultQueueDepth = 8

// Policy selects how radio arrivals are handed to the polling loop.
type Policy int

const (
	// PolicyLatch keeps a single slot; a new arrival replaces an unread one.
	PolicyLatch Policy = iota
	// PolicyQueue keeps a bounded ring; a new arrival is dropped when full.
	PolicyQueue
)

// String returns the policy name
func (p Policy) String() string {
	switch p {
	case PolicyLatch:
		return "latch"
	case PolicyQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// ParsePolicy parses "latch" or "queue"
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "latch":
		return PolicyLatch, nil
	case "queue":
		return PolicyQueue, nil
	default:
		return 0, fmt.Errorf("unknown handoff policy %q (use latch or queue)", s)
	}
}

// Arrival is one radio datagram as seen by the receive callback.
type Arrival struct {
	From    Address
	RSSI    int
	Message hotlink.Message
}

// Handoff passes arrivals from the radio callback (single producer) to the
// polling loop (single consumer) without locks.
type Handoff interface {
	// Put stores an arrival; false means it was dropped.
	Put(a Arrival) bool
	// Take removes the next arrival, if any.
	Take() (Arrival, bool)
	// Dropped counts arrivals refused because the handoff was full.
	Dropped() uint64
	// Overwritten counts unread arrivals replaced by newer ones.
	Overwritten() uint64
}

// NewHandoff creates the handoff for policy. depth applies to PolicyQueue.
func NewHandoff(policy Policy, depth int) Handoff {
	if policy == PolicyQueue {
		return NewQueue(depth)
	}
	return NewLatch()
}

// Latch is a single-slot handoff where the last write wins.
type Latch struct {
	slot        atomic.Pointer[Arrival]
	overwritten atomic.Uint64
}

// NewLatch creates an empty latch
func NewLatch() *Latch {
	return &Latch{}
}

// Put replaces any unread arrival
func (l *Latch) Put(a Arrival) bool {
	if old := l.slot.Swap(&a); old != nil {
		l.overwritten.Add(1)
	}
	return true
}

// Take empties the slot
func (l *Latch) Take() (Arrival, bool) {
	p := l.slot.Swap(nil)
	if p == nil {
		return Arrival{}, false
	}
	return *p, true
}

// Dropped is always zero for a latch
func (l *Latch) Dropped() uint64 { return 0 }

// Overwritten returns how many unread arrivals were replaced
func (l *Latch) Overwritten() uint64 { return l.overwritten.Load() }

// Queue is a bounded single-producer/single-consumer ring. The producer
// publishes a slot by advancing tail after writing it; the consumer frees a
// slot by advancing head after reading it.
type Queue struct {
	slots   []Arrival
	head    atomic.Uint64 // next slot to take
	tail    atomic.Uint64 // next slot to fill
	dropped atomic.Uint64
}

// NewQueue creates a ring holding depth arrivals
func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Queue{slots: make([]Arrival, depth)}
}

// Put appends an arrival, dropping it when the ring is full
func (q *Queue) Put(a Arrival) bool {
	tail := q.tail.Load()
	if tail-q.head.Load() == uint64(len(q.slots)) {
		q.dropped.Add(1)
		return false
	}
	q.slots[tail%uint64(len(q.slots))] = a
	q.tail.Store(tail + 1)
	return true
}

// Take removes the oldest arrival
func (q *Queue) Take() (Arrival, bool) {
	head := q.head.Load()
	if head == q.tail.Load() {
		return Arrival{}, false
	}
	i := head % uint64(len(q.slots))
	a := q.slots[i]
	q.slots[i] = Arrival{}
	q.head.Store(head + 1)
	return a, true
}

// Len returns the number of unread arrivals
func (q *Queue) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// Dropped returns how many arrivals were refused while full
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Overwritten is always zero for a queue
func (q *Queue) Overwritten() uint64 { return 0 }
