// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dispatch validates received hotlink messages and routes them to
// per-kind handlers.
package dispatch

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
	"github.com/Thermoquad/hotlink/pkg/link"
)

// Result is the outcome of dispatching one message.
type Result int

const (
	// Accepted means a handler ran and succeeded.
	Accepted Result = iota
	// Rejected means the payload was shorter than the kind requires.
	Rejected
	// Unhandled means no handler is registered for the kind.
	Unhandled
	// Unknown means the kind is outside the taxonomy.
	Unknown
	// Oversize means the payload exceeded MaxPayloadSize.
	Oversize
	// Failed means the handler returned an error.
	Failed
)

// String returns the result name, used as a metrics label
func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Unhandled:
		return "unhandled"
	case Unknown:
		return "unknown"
	case Oversize:
		return "oversize"
	case Failed:
		return "failed"
	default:
		return "invalid"
	}
}

// Inbound is a received message together with the link it arrived on.
type Inbound struct {
	Link    link.Link
	Message hotlink.Message
	Now     time.Time
}

// HandlerFunc processes one validated message.
type HandlerFunc func(in Inbound) error

// Observer is told the result of every dispatch.
type Observer interface {
	Dispatched(channel link.Channel, kind hotlink.Kind, result Result)
}

// Table routes messages by kind.
type Table struct {
	mu       sync.RWMutex
	handlers map[hotlink.Kind]HandlerFunc
	log      *zap.Logger
	observer Observer
}

// NewTable creates an empty routing table
func NewTable(log *zap.Logger) *Table {
	if log == nil {
		log = zap.NewNop()
	}
	return &Table{
		handlers: make(map[hotlink.Kind]HandlerFunc),
		log:      log,
	}
}

// SetObserver installs the dispatch observer
func (t *Table) SetObserver(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observer = o
}

// Register installs h for kind, replacing any previous handler
func (t *Table) Register(kind hotlink.Kind, h HandlerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[kind] = h
}

// Handles reports whether a handler is registered for kind
func (t *Table) Handles(kind hotlink.Kind) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.handlers[kind] != nil
}

// Dispatch validates in.Message and routes it. A HOTKEY is always answered
// with a HOTKEY_ACK on the link it arrived on once it has been validated or
// rejected: status OK when the handler succeeded, MALFORMED otherwise.
func (t *Table) Dispatch(in Inbound) Result {
	t.mu.RLock()
	h := t.handlers[in.Message.Kind]
	observer := t.observer
	t.mu.RUnlock()

	result := t.route(in, h)
	if observer != nil && in.Link != nil {
		observer.Dispatched(in.Link.Channel(), in.Message.Kind, result)
	}
	return result
}

func (t *Table) route(in Inbound, h HandlerFunc) Result {
	msg := in.Message
	fields := []zap.Field{zap.Stringer("kind", msg.Kind), zap.Int("len", len(msg.Payload))}
	if in.Link != nil {
		fields = append(fields, zap.Stringer("channel", in.Link.Channel()))
	}

	if err := hotlink.ValidateMessage(msg); err != nil {
		verr := err.(*hotlink.ValidationError)
		t.log.Debug("message dropped", append(fields, zap.String("anomaly", verr.Type.String()))...)
		switch verr.Type {
		case hotlink.AnomalyUnknownKind:
			return Unknown
		case hotlink.AnomalyOversize:
			return Oversize
		default:
			if msg.Kind == hotlink.KindHotkey {
				t.ack(in, hotlink.AckMalformed)
			}
			return Rejected
		}
	}

	if h == nil {
		t.log.Debug("no handler", fields...)
		return Unhandled
	}

	err := h(in)
	if msg.Kind == hotlink.KindHotkey {
		status := hotlink.AckOK
		if err != nil {
			status = hotlink.AckMalformed
		}
		t.ack(in, status)
	}
	if err != nil {
		t.log.Warn("handler failed", append(fields, zap.Error(err))...)
		return Failed
	}
	return Accepted
}

func (t *Table) ack(in Inbound, status hotlink.AckStatus) {
	if in.Link == nil {
		return
	}
	if !in.Link.Reply(hotlink.KindHotkeyAck, hotlink.HotkeyAck{Status: status}.Marshal()) {
		t.log.Warn("ack not sent", zap.Stringer("channel", in.Link.Channel()))
	}
}
