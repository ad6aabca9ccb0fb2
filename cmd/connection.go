// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/hotlink/pkg/config"
)

// PasswordEnv holds the WebSocket Basic auth password
const PasswordEnv = "HOTLINK_PASSWORD"

const (
	wsHandshakeTimeout = 10 * time.Second
	wsDialTimeout      = 15 * time.Second
)

// Connection is the byte stream under the wired link: a serial port or a
// WebSocket tunnel to a remote serial port.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

var (
	// ErrConnectionClosed is returned when reading from a closed tunnel
	ErrConnectionClosed = errors.New("websocket connection closed")
	// ErrNoWiredTarget means neither a serial port nor a URL is configured
	ErrNoWiredTarget = errors.New("either --port or --url must be specified")
)

// tunnel turns binary WebSocket messages back into a byte stream. Frames may
// span messages; the wired decoder reassembles them.
type tunnel struct {
	conn *websocket.Conn

	// read side, one reader only
	current io.Reader
	closed  bool

	writeMu sync.Mutex
}

func (t *tunnel) Read(p []byte) (int, error) {
	for {
		if t.closed {
			return 0, ErrConnectionClosed
		}
		if t.current != nil {
			n, err := t.current.Read(p)
			if errors.Is(err, io.EOF) {
				t.current = nil
				err = nil
			}
			if n > 0 || err != nil {
				return n, err
			}
			continue
		}

		kind, r, err := t.conn.NextReader()
		if err != nil {
			t.closed = true
			return 0, err
		}
		// text messages are console chatter from the tunnel
		if kind == websocket.BinaryMessage {
			t.current = r
		}
	}
}

func (t *tunnel) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *tunnel) Close() error {
	return t.conn.Close()
}

// dialFunc opens a fresh wired connection and describes it
type dialFunc func(ctx context.Context) (Connection, string, error)

// wiredDialer resolves credentials once and returns a function that opens
// the configured connection. A URL wins over a port.
func wiredDialer(w config.WiredConfig) (dialFunc, error) {
	switch {
	case w.URL != "":
		u, err := url.Parse(w.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid URL: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
		}

		header := http.Header{}
		if w.Username != "" {
			password, err := readPassword()
			if err != nil {
				return nil, err
			}
			req := http.Request{Header: header}
			req.SetBasicAuth(w.Username, password)
		}

		dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
		if u.Scheme == "wss" {
			dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: w.NoSSLVerify}
		}
		info := fmt.Sprintf("WebSocket: %s", w.URL)

		return func(ctx context.Context) (Connection, string, error) {
			ctx, cancel := context.WithTimeout(ctx, wsDialTimeout)
			defer cancel()
			conn, resp, err := dialer.DialContext(ctx, w.URL, header)
			if err != nil {
				if resp != nil {
					return nil, "", fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
				}
				return nil, "", fmt.Errorf("WebSocket connection failed: %w", err)
			}
			return &tunnel{conn: conn}, info, nil
		}, nil

	case w.Port != "":
		mode := &serial.Mode{
			BaudRate: w.Baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		info := fmt.Sprintf("Serial: %s @ %d baud", w.Port, w.Baud)

		return func(context.Context) (Connection, string, error) {
			port, err := serial.Open(w.Port, mode)
			if err != nil {
				return nil, "", fmt.Errorf("failed to open serial port %s: %w", w.Port, err)
			}
			return port, info, nil
		}, nil

	default:
		return nil, ErrNoWiredTarget
	}
}

// readPassword takes the password from the environment, then from the
// terminal without echo, then from a plain stdin line.
func readPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	if term.IsTerminal(int(syscall.Stdin)) {
		pw, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// OpenConnection opens the configured wired connection once
func OpenConnection(ctx context.Context) (Connection, string, error) {
	dial, err := wiredDialer(cfg.Wired)
	if err != nil {
		return nil, "", err
	}
	return dial(ctx)
}
