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
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// Handlers serves the managed server's HTTP surface: /health and /ping for
// probes and peers, /config for debugging the live configuration. Unlike a
// controller's health checks, none of these touch the Kubernetes API — the
// managed server never talks to the API server at all.
type Handlers struct {
	serverName string

	mu  sync.RWMutex
	cfg Config
}

// NewHandlers constructs Handlers with an initial configuration.
func NewHandlers(serverName string, cfg Config) *Handlers {
	return &Handlers{serverName: serverName, cfg: cfg}
}

// SetConfig swaps the configuration the /config endpoint reports. Called by
// the config watcher after every reload.
func (h *Handlers) SetConfig(cfg Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}

func (h *Handlers) currentConfig() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Health implements GET /health, used by liveness and readiness probes.
func (h *Handlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Ping implements GET /ping, the endpoint every peer calls on its own
// schedule.
func (h *Handlers) Ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

// ConfigDebug implements GET /config, a debug-only view of the live
// configuration.
func (h *Handlers) ConfigDebug(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"serverName": h.serverName,
		"config":     h.currentConfig(),
	})
}
