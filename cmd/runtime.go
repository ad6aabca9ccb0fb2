// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Thermoquad/hotlink/pkg/dispatch"
	"github.com/Thermoquad/hotlink/pkg/httpserver"
	"github.com/Thermoquad/hotlink/pkg/link"
	"github.com/Thermoquad/hotlink/pkg/logging"
	"github.com/Thermoquad/hotlink/pkg/metrics"
	"github.com/Thermoquad/hotlink/pkg/node"
)

// transports are the opened links of one node
type transports struct {
	links []link.Link
	wired *reconnectingConn
	info  []string
}

// openTransports opens every enabled transport for role. The wired link is
// skipped with a warning when no port or URL is set but the radio is enabled.
func openTransports(ctx context.Context, role node.Role) (*transports, error) {
	t := &transports{}

	if cfg.Wired.Enabled {
		dial, err := wiredDialer(cfg.Wired)
		switch {
		case errors.Is(err, ErrNoWiredTarget) && cfg.Wireless.Enabled:
			logger.Warn("wired link enabled without --port or --url, using the radio only")
		case err != nil:
			return nil, err
		default:
			conn, info, err := dial(ctx)
			if err != nil {
				return nil, err
			}
			log := logging.Component(logger, "wired")
			t.wired = newReconnectingConn(conn, info, dial, cfg.Wired.ReconnectWait, log)
			t.links = append(t.links, link.NewWired(t.wired, link.WiredOptions{
				MaxBytesPerPoll: cfg.Node.MaxBytesPerPoll,
				Logger:          log,
			}))
			t.info = append(t.info, info)
		}
	}

	if cfg.Wireless.Enabled {
		l, info, err := openWireless(role)
		if err != nil {
			t.close()
			return nil, err
		}
		t.links = append(t.links, l)
		t.info = append(t.info, info)
	}

	if len(t.links) == 0 {
		return nil, ErrNoWiredTarget
	}
	return t, nil
}

func openWireless(role node.Role) (*link.WirelessLink, string, error) {
	policy, err := link.ParsePolicy(cfg.Wireless.PolicyFor(role.String()))
	if err != nil {
		return nil, "", err
	}
	radio, err := openRadio()
	if err != nil {
		return nil, "", err
	}

	l := link.NewWireless(radio, link.WirelessOptions{
		Policy:     policy,
		QueueDepth: cfg.Wireless.QueueDepth,
		Logger:     logging.Component(logger, "wireless"),
	})
	return l, fmt.Sprintf("Radio: %s via %s (%s)", radio.Address(), cfg.Wireless.Broadcast, policy), nil
}

// openRadio binds the emulated radio described by the wireless section
func openRadio() (*link.UDPRadio, error) {
	addr, err := link.ParseAddress(cfg.Wireless.Address)
	if err != nil {
		return nil, err
	}
	return link.NewUDPRadio(link.UDPRadioConfig{
		Address:   addr,
		Listen:    cfg.Wireless.Listen,
		Broadcast: cfg.Wireless.Broadcast,
		Logger:    logging.Component(logger, "radio"),
	})
}

// close releases links that were never handed to a node
func (t *transports) close() {
	for _, l := range t.links {
		_ = l.Close()
	}
}

// nodeOptions maps the node configuration section onto node.Options
func nodeOptions(role node.Role) (node.Options, error) {
	preferred, err := link.ParseChannel(cfg.Node.PreferredLink)
	if err != nil {
		return node.Options{}, err
	}
	return node.Options{
		Role:         role,
		Name:         cfg.Node.Name,
		IdleTimeout:  cfg.Node.IdleTimeout,
		StaleTimeout: cfg.Node.StaleTimeout,
		PingInterval: cfg.Node.PingInterval,
		TickInterval: cfg.Node.TickInterval,
		Preferred:    preferred,
		Logger:       logging.Component(logger, "node"),
	}, nil
}

// observability is the optional metrics and status endpoint
type observability struct {
	metrics *metrics.Metrics
	server  *httpserver.Server
	node    *node.Node
}

func newObservability() *observability {
	o := &observability{}
	if !cfg.Metrics.Enabled {
		return o
	}
	gin.SetMode(gin.ReleaseMode)
	reg := metrics.NewRegistry()
	o.metrics = metrics.New(reg, o.status)
	o.server = httpserver.New(cfg.Metrics, metrics.Handler(reg), o.status)
	return o
}

func (o *observability) status() *node.Status {
	if o.node == nil {
		return nil
	}
	return o.node.Status()
}

// observer returns the dispatch observer, nil when metrics are off
func (o *observability) observer() dispatch.Observer {
	if o.metrics == nil {
		return nil
	}
	return o.metrics
}

func (o *observability) start(n *node.Node) {
	o.node = n
	if o.server == nil {
		return
	}
	logger.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr), zap.String("path", cfg.Metrics.Path))
	go func() {
		if err := o.server.Start(); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

func (o *observability) stop() {
	if o.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.server.Shutdown(ctx); err != nil {
		logger.Warn("metrics shutdown", zap.Error(err))
	}
}

// runNode starts the links and the metrics endpoint and runs the loop until
// ctx is done.
func runNode(ctx context.Context, n *node.Node, obs *observability) error {
	if err := n.Init(); err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			logger.Warn("close links", zap.Error(err))
		}
	}()

	obs.start(n)
	defer obs.stop()

	return n.Run(ctx)
}
