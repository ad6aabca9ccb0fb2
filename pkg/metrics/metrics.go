// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes hotlink node counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/hotlink/pkg/dispatch"
	"github.com/Thermoquad/hotlink/pkg/hotlink"
	"github.com/Thermoquad/hotlink/pkg/link"
	"github.com/Thermoquad/hotlink/pkg/node"
)

const namespace = "hotlink"

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// StatusFunc returns the latest node snapshot, nil before the first one.
type StatusFunc func() *node.Status

// Metrics holds the hotlink collectors. It implements dispatch.Observer.
type Metrics struct {
	Messages *prometheus.CounterVec // labels: channel, kind, result

	status *statusCollector
}

// New registers the hotlink collectors on reg. Link and power metrics are
// read from status at scrape time.
func New(reg prometheus.Registerer, status StatusFunc) *Metrics {
	m := &Metrics{
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Dispatched messages by channel, kind and result.",
		}, []string{"channel", "kind", "result"}),
		status: newStatusCollector(status),
	}
	reg.MustRegister(m.Messages, m.status)
	return m
}

// Dispatched counts one dispatch result
func (m *Metrics) Dispatched(channel link.Channel, kind hotlink.Kind, result dispatch.Result) {
	m.Messages.WithLabelValues(channel.String(), kind.String(), result.String()).Inc()
}

// statusCollector turns node snapshots into const metrics, so the polling
// loop never touches Prometheus state.
type statusCollector struct {
	status StatusFunc

	frames      *prometheus.Desc
	frameErrors *prometheus.Desc
	discarded   *prometheus.Desc
	overflow    *prometheus.Desc
	handoff     *prometheus.Desc
	linkUp      *prometheus.Desc
	rssi        *prometheus.Desc
	powerState  *prometheus.Desc
	brightness  *prometheus.Desc
	configMode  *prometheus.Desc
	acks        *prometheus.Desc
}

func newStatusCollector(status StatusFunc) *statusCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &statusCollector{
		status:      status,
		frames:      desc("frames_decoded_total", "Valid frames decoded from the wired line.", "channel"),
		frameErrors: desc("framing_errors_total", "Candidate frames discarded by the decoder.", "channel", "reason"),
		discarded:   desc("discarded_bytes_total", "Bytes skipped while resynchronizing.", "channel"),
		overflow:    desc("inbox_overflow_bytes_total", "Bytes lost because the receive buffer was full.", "channel"),
		handoff:     desc("handoff_losses_total", "Radio datagrams lost before polling.", "channel", "reason"),
		linkUp:      desc("link_up", "Whether a message arrived within the stale timeout.", "channel"),
		rssi:        desc("link_rssi_dbm", "Signal strength of the last radio message.", "channel"),
		powerState:  desc("power_state", "Display power state (0 active, 1 dimmed, 2 clock).", "role"),
		brightness:  desc("brightness_percent", "Effective backlight level.", "role"),
		configMode:  desc("config_mode", "Whether configuration mode is active.", "role"),
		acks:        desc("hotkey_acks_total", "HOTKEY_ACK messages received by status.", "status"),
	}
}

func (c *statusCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.frames, c.frameErrors, c.discarded, c.overflow, c.handoff,
		c.linkUp, c.rssi, c.powerState, c.brightness, c.configMode, c.acks,
	} {
		ch <- d
	}
}

func (c *statusCollector) Collect(ch chan<- prometheus.Metric) {
	if c.status == nil {
		return
	}
	s := c.status()
	if s == nil {
		return
	}

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	for _, l := range s.Links {
		channel := l.Channel.String()
		gauge(c.linkUp, boolValue(l.Up), channel)
		if l.RSSI != nil {
			gauge(c.rssi, float64(*l.RSSI), channel)
		}
		switch l.Channel {
		case link.ChannelWired:
			counter(c.frames, l.Frames, channel)
			counter(c.frameErrors, l.CRCErrors, channel, "crc")
			counter(c.frameErrors, l.LengthErrors, channel, "length")
			counter(c.frameErrors, l.Truncated, channel, "truncated")
			counter(c.discarded, l.DiscardedBytes, channel)
			counter(c.overflow, l.Overflow, channel)
		case link.ChannelWireless:
			counter(c.handoff, l.Dropped, channel, "dropped")
			counter(c.handoff, l.Overwritten, channel, "overwritten")
			counter(c.handoff, l.Discarded, channel, "discarded")
		}
	}

	role := s.Role.String()
	gauge(c.powerState, float64(s.Power), role)
	gauge(c.brightness, float64(s.Brightness), role)
	gauge(c.configMode, boolValue(s.ConfigMode), role)
	counter(c.acks, s.Acks-s.AckErrors, "ok")
	counter(c.acks, s.AckErrors, "error")
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
