// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/hotlink/pkg/config"
	"github.com/Thermoquad/hotlink/pkg/link"
	"github.com/Thermoquad/hotlink/pkg/metrics"
	"github.com/Thermoquad/hotlink/pkg/node"
	"github.com/Thermoquad/hotlink/pkg/power"
)

func get(srv *Server, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealthzReadyzMetrics(t *testing.T) {
	reg := metrics.NewRegistry()
	status := &node.Status{
		Name:  "desk",
		Role:  node.RoleDisplay,
		Power: power.StateDimmed,
		Links: []node.LinkStatus{{Channel: link.ChannelWireless, Up: true}},
	}
	srv := New(config.MetricsConfig{Addr: ":0", Path: "/metrics"}, metrics.Handler(reg),
		func() *node.Status { return status })

	assert.Equal(t, http.StatusOK, get(srv, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(srv, "/readyz").Code)
	assert.Equal(t, http.StatusOK, get(srv, "/metrics").Code)

	rr := get(srv, "/status")
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "desk", body["name"])
	assert.Equal(t, "display", body["role"])
	assert.Equal(t, "DIMMED", body["power"])
}

func TestReadyzNotReady(t *testing.T) {
	down := &node.Status{Links: []node.LinkStatus{{Channel: link.ChannelWired}}}
	srv := New(config.MetricsConfig{Addr: ":0"}, nil, func() *node.Status { return down })
	assert.Equal(t, http.StatusServiceUnavailable, get(srv, "/readyz").Code)
	assert.Equal(t, http.StatusNotFound, get(srv, "/metrics").Code)

	srv = New(config.MetricsConfig{Addr: ":0"}, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(srv, "/readyz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(srv, "/status").Code)
}

func TestStartShutdown(t *testing.T) {
	srv := New(config.MetricsConfig{Addr: "127.0.0.1:0"}, nil, nil)
	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}
