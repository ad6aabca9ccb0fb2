// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
	"github.com/Thermoquad/hotlink/pkg/link"
)

var discoverTimeout int

var errNoPeers = errors.New("no radio peers responded")

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover nodes on the radio channel",
	Long: `Broadcast PING on the radio channel and list every station heard until the
timeout.

Nodes answer with their own heartbeat PING, so a running display or bridge
shows up within one ping interval. Any other traffic also counts.

Exit codes:
  0 - At least one station was heard
  1 - No station responded before the timeout
  2 - Radio error`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout", 5, "Timeout in seconds for discovery")
}

// stationInfo is one station heard during discovery
type stationInfo struct {
	address  link.Address
	rssi     int
	lastSeen time.Time
	kinds    map[hotlink.Kind]int
}

// stationTable collects stations from the radio goroutine
type stationTable struct {
	mu       sync.Mutex
	self     link.Address
	stations map[link.Address]*stationInfo
}

func newStationTable(self link.Address) *stationTable {
	return &stationTable{self: self, stations: make(map[link.Address]*stationInfo)}
}

// observe records a datagram. It reports true the first time a station is
// heard.
func (t *stationTable) observe(from link.Address, rssi int, data []byte, now time.Time) bool {
	if from == t.self {
		return false
	}
	msg, err := hotlink.DecodeDatagram(data)
	if err != nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stations[from]
	if !ok {
		s = &stationInfo{address: from, kinds: make(map[hotlink.Kind]int)}
		t.stations[from] = s
	}
	s.rssi = rssi
	s.lastSeen = now
	s.kinds[msg.Kind]++
	return !ok
}

// list returns the stations ordered by address
func (t *stationTable) list() []stationInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]stationInfo, 0, len(t.stations))
	for _, s := range t.stations {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].address.String() < out[j].address.String()
	})
	return out
}

func runDiscover(cmd *cobra.Command, args []string) error {
	radio, err := openRadio()
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}
	defer radio.Close()

	fmt.Printf("Hotlink - Radio Discovery\n")
	fmt.Printf("Radio: %s via %s\n", radio.Address(), cfg.Wireless.Broadcast)
	fmt.Printf("Timeout: %d seconds\n\n", discoverTimeout)

	table := newStationTable(radio.Address())
	err = radio.Start(func(from link.Address, rssi int, data []byte) {
		if table.observe(from, rssi, data, time.Now()) {
			fmt.Printf("Station found: %s (RSSI %d dBm)\n", from, rssi)
		}
	})
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	ping, err := hotlink.EncodeDatagram(hotlink.KindPing, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Sending PING to %s...\n", link.BroadcastAddress)
	if err := radio.Send(link.BroadcastAddress, ping); err != nil {
		return &ExitError{Code: 2, Err: fmt.Errorf("send failed: %w", err)}
	}

	select {
	case <-cmd.Context().Done():
	case <-time.After(time.Duration(discoverTimeout) * time.Second):
	}

	stations := table.list()
	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Stations found: %d\n", len(stations))
	for _, s := range stations {
		kinds := make([]string, 0, len(s.kinds))
		for k, n := range s.kinds {
			kinds = append(kinds, fmt.Sprintf("%s x%d", hotlink.FormatKind(k), n))
		}
		sort.Strings(kinds)
		fmt.Printf("  %s  RSSI %4d dBm  last %s  %v\n",
			s.address, s.rssi, s.lastSeen.Format("15:04:05.000"), kinds)
	}

	if len(stations) == 0 {
		return &ExitError{Code: 1, Err: errNoPeers}
	}
	return nil
}
