// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

const maxBackoff = 30 * time.Second

var errReconnecting = errors.New("connection lost, reconnecting")

// reconnectingConn keeps a wired connection open. When a read fails the
// connection is reopened with exponential backoff, so the link's pump simply
// keeps reading. Writes while disconnected fail.
type reconnectingConn struct {
	dial     dialFunc
	log      *zap.Logger
	minWait  time.Duration
	onChange func(connected bool, info string)

	mu   sync.RWMutex
	conn Connection
	info string

	ctx    context.Context
	cancel context.CancelFunc
}

func newReconnectingConn(conn Connection, info string, dial dialFunc, wait time.Duration, log *zap.Logger) *reconnectingConn {
	if wait <= 0 {
		wait = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &reconnectingConn{
		dial:    dial,
		log:     log,
		minWait: wait,
		conn:    conn,
		info:    info,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (r *reconnectingConn) getConn() Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn
}

func (r *reconnectingConn) setConn(conn Connection, info string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conn = conn
	r.info = info
}

// Info describes the current connection
func (r *reconnectingConn) Info() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.info
}

func (r *reconnectingConn) Read(p []byte) (int, error) {
	for {
		conn := r.getConn()
		if conn != nil {
			n, err := conn.Read(p)
			if err == nil || n > 0 {
				return n, nil
			}
			if r.ctx.Err() != nil {
				return 0, io.EOF
			}
			r.log.Warn("connection lost", zap.String("connection", r.Info()), zap.Error(err))
			_ = conn.Close()
			r.setConn(nil, "")
			r.notify(false, "")
		}

		if !r.reconnect() {
			return 0, io.EOF
		}
	}
}

// reconnect retries with exponential backoff. It returns false once the
// connection is closed.
func (r *reconnectingConn) reconnect() bool {
	backoff := r.minWait
	for {
		select {
		case <-r.ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, info, err := r.dial(r.ctx)
		if err == nil {
			if r.ctx.Err() != nil {
				_ = conn.Close()
				return false
			}
			r.setConn(conn, info)
			r.log.Info("reconnected", zap.String("connection", info))
			r.notify(true, info)
			return true
		}
		r.log.Debug("reconnect failed", zap.Error(err), zap.Duration("backoff", backoff))

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (r *reconnectingConn) notify(connected bool, info string) {
	if r.onChange != nil {
		r.onChange(connected, info)
	}
}

func (r *reconnectingConn) Write(p []byte) (int, error) {
	conn := r.getConn()
	if conn == nil {
		return 0, errReconnecting
	}
	return conn.Write(p)
}

func (r *reconnectingConn) Close() error {
	r.cancel()
	if conn := r.getConn(); conn != nil {
		return conn.Close()
	}
	return nil
}
