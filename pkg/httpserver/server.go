// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package httpserver serves health, status and metrics for a running node.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Thermoquad/hotlink/pkg/config"
	"github.com/Thermoquad/hotlink/pkg/node"
)

const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
)

// Server wraps the HTTP server.
type Server struct {
	srv *http.Server
}

// New configures the gin router. /readyz reports ready once any link is up;
// /status renders the latest node snapshot.
func New(cfg config.MetricsConfig, metricsHandler http.Handler, status func() *node.Status) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if s := snapshot(status); s != nil && s.Up() {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	r.GET("/status", func(c *gin.Context) {
		s := snapshot(status)
		if s == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "node not started"})
			return
		}
		c.JSON(http.StatusOK, s)
	})

	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	if metricsHandler != nil {
		r.GET(path, gin.WrapH(metricsHandler))
	}

	return &Server{srv: &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}}
}

func snapshot(status func() *node.Status) *node.Status {
	if status == nil {
		return nil
	}
	return status()
}

// Start serves until Shutdown (blocking). A clean shutdown returns nil.
func (s *Server) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
