// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link carries hotlink messages over the two transports: the framed
// wired serial line and the unframed broadcast radio.
//
// Links are polled from a single cooperative loop. Poll never blocks: "no
// message" is a normal result. Bytes and datagrams arrive on background
// goroutines that only ever write into the link's input buffer or handoff.
package link

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
)

// Channel identifies the transport a message arrived on.
type Channel int

const (
	ChannelWired Channel = iota
	ChannelWireless
)

// String returns the channel name
func (c Channel) String() string {
	switch c {
	case ChannelWired:
		return "wired"
	case ChannelWireless:
		return "wireless"
	default:
		return "unknown"
	}
}

// MarshalText renders the channel name in JSON and YAML
func (c Channel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseChannel parses "wired" or "wireless"
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(s) {
	case "wired", "serial":
		return ChannelWired, nil
	case "wireless", "radio":
		return ChannelWireless, nil
	default:
		return 0, fmt.Errorf("unknown channel %q (use wired or wireless)", s)
	}
}

// Link errors
var (
	ErrClosed = errors.New("link: closed")
)

// Link is the transport contract shared by the wired and wireless links.
type Link interface {
	// Init starts background reception. It is called once before polling.
	Init() error
	// Poll returns at most one received message without blocking.
	Poll() (hotlink.Message, bool)
	// Send transmits a message to the peer (wired) or to everyone (wireless).
	Send(kind hotlink.Kind, payload []byte) bool
	// Reply answers the sender of the most recently polled message.
	Reply(kind hotlink.Kind, payload []byte) bool
	// Channel identifies the transport.
	Channel() Channel
	// Close stops reception and releases the transport.
	Close() error
}

// Broadcaster is implemented by links that can address every listener at
// once, for system-wide kinds such as CONFIG_MODE.
type Broadcaster interface {
	Broadcast(kind hotlink.Kind, payload []byte) bool
}

// Broadcast sends on l as a broadcast when the link supports it and as a
// plain send otherwise.
func Broadcast(l Link, kind hotlink.Kind, payload []byte) bool {
	if b, ok := l.(Broadcaster); ok {
		return b.Broadcast(kind, payload)
	}
	return l.Send(kind, payload)
}
