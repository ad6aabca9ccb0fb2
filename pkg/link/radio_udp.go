// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// UDP radio emulation wire constants.
const (
	// DefaultRadioPort is the UDP port the emulated radio channel uses.
	DefaultRadioPort = 47474

	udpHeaderSize = 12 // 6B source + 6B destination
	udpReadBuffer = 512

	// read failures back off from readBackoffMin, doubling to readBackoffMax
	readBackoffMin = 10 * time.Millisecond
	readBackoffMax = time.Second
)

// UDPRadioConfig configures a UDPRadio.
type UDPRadioConfig struct {
	Address   Address // this radio's station address
	Listen    string  // local bind address, e.g. ":47474"
	Broadcast string  // destination of every transmission, e.g. "255.255.255.255:47474"
	Logger    *zap.Logger
}

// UDPRadio emulates the broadcast radio over UDP. Every transmission is a
// UDP broadcast of src(6) | dst(6) | datagram; receivers ignore their own
// transmissions and unicasts addressed to other stations. Reported RSSI is
// always zero.
type UDPRadio struct {
	conn  *net.UDPConn
	addr  Address
	bcast *net.UDPAddr
	log   *zap.Logger

	read       func([]byte) (int, *net.UDPAddr, error)
	errLimiter *rate.Limiter
	done       chan struct{}

	mu      sync.Mutex
	peers   map[Address]bool
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewUDPRadio binds the emulated radio
func NewUDPRadio(cfg UDPRadioConfig) (*UDPRadio, error) {
	if cfg.Listen == "" {
		cfg.Listen = fmt.Sprintf(":%d", DefaultRadioPort)
	}
	if cfg.Broadcast == "" {
		cfg.Broadcast = fmt.Sprintf("255.255.255.255:%d", DefaultRadioPort)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	bcast, err := net.ResolveUDPAddr("udp4", cfg.Broadcast)
	if err != nil {
		return nil, fmt.Errorf("radio: resolve %s: %w", cfg.Broadcast, err)
	}

	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("radio: listen %s: %w", cfg.Listen, err)
	}

	conn := pc.(*net.UDPConn)
	return &UDPRadio{
		conn:       conn,
		addr:       cfg.Address,
		bcast:      bcast,
		log:        cfg.Logger.With(zap.String("radio", cfg.Address.String())),
		read:       conn.ReadFromUDP,
		errLimiter: rate.NewLimiter(1, 1),
		done:       make(chan struct{}),
		peers:      make(map[Address]bool),
	}, nil
}

// Start launches the receive goroutine
func (r *UDPRadio) Start(onReceive ReceiveFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRadioClosed
	}
	if r.started {
		return ErrRadioStarted
	}
	r.started = true

	r.wg.Add(1)
	go r.receiveLoop(onReceive)
	return nil
}

func (r *UDPRadio) receiveLoop(onReceive ReceiveFunc) {
	defer r.wg.Done()
	buf := make([]byte, udpReadBuffer)
	backoff := readBackoffMin
	for {
		n, _, err := r.read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if r.errLimiter.Allow() {
				r.log.Warn("radio read failed", zap.Error(err), zap.Duration("backoff", backoff))
			}
			select {
			case <-r.done:
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, readBackoffMax)
			continue
		}
		backoff = readBackoffMin
		if n <= udpHeaderSize {
			continue
		}

		var src, dst Address
		copy(src[:], buf[0:6])
		copy(dst[:], buf[6:12])
		if src == r.addr {
			continue
		}
		if dst != r.addr && !dst.IsBroadcast() {
			continue
		}

		data := make([]byte, n-udpHeaderSize)
		copy(data, buf[udpHeaderSize:n])
		onReceive(src, 0, data)
	}
}

// Send transmits data to a registered peer or to BroadcastAddress
func (r *UDPRadio) Send(to Address, data []byte) error {
	if len(data) > MaxDatagramSize {
		return ErrDatagramTooLarge
	}

	r.mu.Lock()
	closed := r.closed
	known := r.peers[to]
	r.mu.Unlock()
	if closed {
		return ErrRadioClosed
	}
	if !to.IsBroadcast() && !known {
		return ErrUnknownPeer
	}

	frame := make([]byte, udpHeaderSize+len(data))
	copy(frame[0:6], r.addr[:])
	copy(frame[6:12], to[:])
	copy(frame[udpHeaderSize:], data)

	if _, err := r.conn.WriteToUDP(frame, r.bcast); err != nil {
		return fmt.Errorf("radio: send to %s: %w", to, err)
	}
	return nil
}

// AddPeer registers a unicast target
func (r *UDPRadio) AddPeer(addr Address) error {
	if addr.IsBroadcast() {
		return fmt.Errorf("%w: broadcast is not a peer", ErrInvalidAddress)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[addr] = true
	return nil
}

// HasPeer reports whether addr is registered
func (r *UDPRadio) HasPeer(addr Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[addr]
}

// Address returns this radio's station address
func (r *UDPRadio) Address() Address {
	return r.addr
}

// LocalAddr returns the bound UDP address
func (r *UDPRadio) LocalAddr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Close stops the receive goroutine and releases the socket
func (r *UDPRadio) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.done)
	err := r.conn.Close()
	r.wg.Wait()
	return err
}
