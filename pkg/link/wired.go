// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
)

// Wired link defaults
const (
	DefaultMaxBytesPerPoll = 64
	DefaultInboxSize       = 4096
	DefaultIdleFlush       = 100 * time.Millisecond
	pumpReadSize           = 256
)

// WiredOptions configures a WiredLink.
type WiredOptions struct {
	// MaxBytesPerPoll bounds the decoding work done by one Poll.
	MaxBytesPerPoll int
	// InboxSize bounds the bytes buffered between the pump and Poll; the
	// oldest bytes are discarded on overflow.
	InboxSize int
	// ErrorLogLimit rate-limits framing diagnostics (events per second).
	ErrorLogLimit rate.Limit
	// IdleFlush drops an unfinished frame once the line has been quiet this
	// long, releasing frames held behind a start byte read from noise.
	// Negative disables it.
	IdleFlush time.Duration
	Logger    *zap.Logger
	// Now replaces time.Now in tests
	Now func() time.Time
}

// WiredLink carries framed messages over a point-to-point byte stream such
// as a serial port or a WebSocket tunnel.
type WiredLink struct {
	port io.ReadWriteCloser
	opts WiredOptions
	log  *zap.Logger

	decoder    *hotlink.Decoder
	errLimiter *rate.Limiter

	mu       sync.Mutex
	inbox    []byte
	overflow uint64
	lastRx   time.Time

	writeMu sync.Mutex

	closed  atomic.Bool
	started atomic.Bool
	readErr atomic.Pointer[error]
	wg      sync.WaitGroup
}

// NewWired creates a wired link over port. A nil port creates a receive-only
// link fed through Receive, which is how tests drive it.
func NewWired(port io.ReadWriteCloser, opts WiredOptions) *WiredLink {
	if opts.MaxBytesPerPoll <= 0 {
		opts.MaxBytesPerPoll = DefaultMaxBytesPerPoll
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = DefaultInboxSize
	}
	if opts.ErrorLogLimit == 0 {
		opts.ErrorLogLimit = 1
	}
	if opts.IdleFlush == 0 {
		opts.IdleFlush = DefaultIdleFlush
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &WiredLink{
		port:       port,
		opts:       opts,
		log:        opts.Logger.With(zap.String("channel", ChannelWired.String())),
		decoder:    hotlink.NewDecoder(),
		errLimiter: rate.NewLimiter(opts.ErrorLogLimit, 5),
		inbox:      make([]byte, 0, opts.InboxSize),
	}
}

// Init starts the pump goroutine that moves port bytes into the inbox
func (w *WiredLink) Init() error {
	if w.closed.Load() {
		return ErrClosed
	}
	if w.port == nil || !w.started.CompareAndSwap(false, true) {
		return nil
	}

	w.wg.Add(1)
	go w.pump()
	return nil
}

func (w *WiredLink) pump() {
	defer w.wg.Done()
	buf := make([]byte, pumpReadSize)
	for {
		n, err := w.port.Read(buf)
		if n > 0 {
			w.Receive(buf[:n])
		}
		if err != nil {
			if !w.closed.Load() && !errors.Is(err, io.EOF) {
				w.log.Error("wired read failed", zap.Error(err))
			}
			w.readErr.Store(&err)
			return
		}
	}
}

// Receive deposits raw bytes into the inbox
func (w *WiredLink) Receive(p []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastRx = w.opts.Now()
	if excess := len(w.inbox) + len(p) - w.opts.InboxSize; excess > 0 {
		if excess >= len(w.inbox) {
			// the new bytes alone fill the inbox
			drop := excess - len(w.inbox)
			w.overflow += uint64(len(w.inbox) + drop)
			w.inbox = append(w.inbox[:0], p[drop:]...)
			return
		}
		w.overflow += uint64(excess)
		n := copy(w.inbox, w.inbox[excess:])
		w.inbox = w.inbox[:n]
	}
	w.inbox = append(w.inbox, p...)
}

// Poll decodes at most MaxBytesPerPoll buffered bytes and returns the first
// message completed. Unconsumed bytes and partial frames carry over.
func (w *WiredLink) Poll() (hotlink.Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// one byte can complete several frames after a resync
	if msg := w.decoder.Next(); msg != nil {
		return *msg, true
	}

	limit := len(w.inbox)
	if limit > w.opts.MaxBytesPerPoll {
		limit = w.opts.MaxBytesPerPoll
	}

	consumed := 0
	var msg *hotlink.Message
	for consumed < limit && msg == nil {
		var err error
		msg, err = w.decoder.DecodeByte(w.inbox[consumed])
		consumed++
		if err != nil && w.errLimiter.Allow() {
			w.log.Debug("framing error", zap.Error(err))
		}
	}

	n := copy(w.inbox, w.inbox[consumed:])
	w.inbox = w.inbox[:n]

	if msg == nil && n == 0 && w.idle() {
		before := w.decoder.Statistics().Truncated
		w.decoder.Flush()
		if w.errLimiter.Allow() {
			w.log.Debug("line idle, dropped unfinished frame",
				zap.Uint64("truncated", w.decoder.Statistics().Truncated-before))
		}
		msg = w.decoder.Next()
	}

	if msg == nil {
		return hotlink.Message{}, false
	}
	return *msg, true
}

// idle reports whether a partial frame has waited out IdleFlush. Caller
// holds mu.
func (w *WiredLink) idle() bool {
	if w.opts.IdleFlush < 0 || w.decoder.Pending() == 0 {
		return false
	}
	return w.opts.Now().Sub(w.lastRx) >= w.opts.IdleFlush
}

// Send frames and writes the message synchronously
func (w *WiredLink) Send(kind hotlink.Kind, payload []byte) bool {
	if w.port == nil || w.closed.Load() {
		return false
	}

	frame, err := hotlink.EncodeFrame(kind, payload)
	if err != nil {
		w.log.Warn("encode failed", zap.Stringer("kind", kind), zap.Error(err))
		return false
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	n, err := w.port.Write(frame)
	if err != nil {
		w.log.Warn("wired write failed", zap.Stringer("kind", kind), zap.Error(err))
		return false
	}
	return n == len(frame)
}

// Reply answers the peer; the wired link is point to point
func (w *WiredLink) Reply(kind hotlink.Kind, payload []byte) bool {
	return w.Send(kind, payload)
}

// Channel returns ChannelWired
func (w *WiredLink) Channel() Channel {
	return ChannelWired
}

// Close stops the pump and closes the port
func (w *WiredLink) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if w.port != nil {
		err = w.port.Close()
	}
	w.wg.Wait()
	return err
}

// Pending returns the number of buffered bytes not yet fed to the decoder
func (w *WiredLink) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inbox)
}

// Overflow returns how many bytes were discarded because the inbox was full
func (w *WiredLink) Overflow() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.overflow
}

// Statistics returns the decoder counters. Read them from the polling loop.
func (w *WiredLink) Statistics() *hotlink.Statistics {
	return w.decoder.Statistics()
}

// Err returns the error that stopped the pump, if any
func (w *WiredLink) Err() error {
	if p := w.readErr.Load(); p != nil {
		return *p
	}
	return nil
}
