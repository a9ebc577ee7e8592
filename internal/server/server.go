/*
Copyright 2024 The Spotalis Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
)

// ProcessConfig holds the managed server process's own startup
// configuration, as distinct from Config, the peer-list document it
// watches.
type ProcessConfig struct {
	ServerName string
	BindAddr   string
	ConfigPath string
}

// Server is the managed peering server process: it serves /health, /ping,
// /config and /metrics, watches its mounted configuration for peer-list
// changes, and pings every peer on the configured interval.
type Server struct {
	cfg ProcessConfig
	log logr.Logger

	metrics  *serverMetrics
	handlers *Handlers
	pinger   *Pinger
	watcher  *ConfigWatcher

	httpServer *http.Server

	runCtx context.Context
}

// New wires a Server from its process configuration. The initial peer
// configuration is loaded by Run, not here, so construction never fails on
// a missing config file.
func New(cfg ProcessConfig, log logr.Logger) *Server {
	metrics := newServerMetrics()
	handlers := NewHandlers(cfg.ServerName, DefaultConfig())
	pinger := NewPinger(log.WithName("pinger"), metrics)

	s := &Server{
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		handlers: handlers,
		pinger:   pinger,
	}
	s.watcher = NewConfigWatcher(cfg.ConfigPath, s.reload, log.WithName("watcher"))

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/health", handlers.Health)
	engine.GET("/ping", handlers.Ping)
	engine.GET("/config", handlers.ConfigDebug)
	engine.GET("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:    cfg.BindAddr,
		Handler: engine,
	}

	return s
}

// reload re-reads the configuration file and re-schedules the pinger. It is
// the ConfigWatcher's onChange callback, so it never returns an error —
// a read failure is logged and the prior configuration stays in effect.
func (s *Server) reload() {
	cfg, err := LoadConfig(s.cfg.ConfigPath)
	if err != nil {
		s.log.Error(err, "failed to reload config, keeping prior configuration")
		return
	}

	s.handlers.SetConfig(cfg)
	s.pinger.SetSchedule(s.runCtx, cfg.Peers, cfg.Interval())
	s.metrics.recordReload()
	s.log.Info("configuration reloaded", "peers", len(cfg.Peers), "intervalMs", cfg.PingInterval)
}

// Run loads the initial configuration, starts the ping schedule and config
// watcher, and serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.runCtx = ctx

	cfg, err := LoadConfig(s.cfg.ConfigPath)
	if err != nil {
		s.log.Error(err, "failed to load initial config, starting with defaults")
		cfg = DefaultConfig()
	}
	s.handlers.SetConfig(cfg)
	s.pinger.SetSchedule(ctx, cfg.Peers, cfg.Interval())

	watcherErrCh := make(chan error, 1)
	go func() {
		watcherErrCh <- s.watcher.Run(ctx)
	}()

	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
			return
		}
		serveErrCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-serveErrCh:
		return err
	case err := <-watcherErrCh:
		return err
	}
}

// shutdown stops the pinger and drains the HTTP listener with a bounded
// deadline.
func (s *Server) shutdown() error {
	s.pinger.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}
