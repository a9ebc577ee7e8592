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
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"
)

const pingTimeout = 5 * time.Second

// Pinger runs a single recurring timer that, on every tick, pings every
// configured peer concurrently. Restarting the schedule (via SetSchedule)
// cancels the prior timer but never the in-flight pings it already started.
type Pinger struct {
	client *http.Client
	log    logr.Logger
	metric *serverMetrics

	mu       sync.Mutex
	peers    []Peer
	interval time.Duration
	cancel   context.CancelFunc
}

// NewPinger constructs a Pinger with a client timeout matching the per-peer
// ping deadline.
func NewPinger(log logr.Logger, metric *serverMetrics) *Pinger {
	return &Pinger{
		client: &http.Client{Timeout: pingTimeout},
		log:    log,
		metric: metric,
	}
}

// SetSchedule replaces the peer list and interval, restarting the ticker.
// Called on startup and on every config reload.
func (p *Pinger) SetSchedule(ctx context.Context, peers []Peer, interval time.Duration) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.peers = peers
	p.interval = interval

	tickerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(tickerCtx, interval)
}

// Stop cancels the current ticker without affecting in-flight pings.
func (p *Pinger) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Pinger) run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Detach the round from the ticker's cancellation so that a
			// restart or Stop lets in-flight pings run to their own timeout.
			p.pingAll(context.WithoutCancel(ctx))
		}
	}
}

// pingAll issues one concurrent round of pings; no peer's failure affects
// the others.
func (p *Pinger) pingAll(ctx context.Context) {
	p.mu.Lock()
	peers := make([]Peer, len(p.peers))
	copy(peers, p.peers)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func(peer Peer) {
			defer wg.Done()
			p.pingOne(ctx, peer)
		}(peer)
	}
	wg.Wait()
}

func (p *Pinger) pingOne(ctx context.Context, peer Peer) {
	url := fmt.Sprintf("http://%s:%d/ping", peer.Host, peer.Port)

	reqCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		p.log.Error(err, "build ping request", "peer", peer.Host)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.classifyAndLog(peer, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.metric.recordPing(peer.Host, false)
		p.log.Error(fmt.Errorf("unexpected status %d", resp.StatusCode), "ping failed", "peer", peer.Host)
		return
	}

	p.metric.recordPing(peer.Host, true)
	p.log.Info("ping succeeded", "peer", peer.Host)
}

// classifyAndLog classifies a transport error: connection refused and
// timeout are logged with Info under their own messages, any other transport
// error with Error. logr has no separate warning level, so these two cases
// are logged at the same level as a successful ping.
func (p *Pinger) classifyAndLog(peer Peer, err error) {
	p.metric.recordPing(peer.Host, false)

	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		p.log.Info("ping timed out", "peer", peer.Host, "error", err.Error())
	case isConnectionRefused(err):
		p.log.Info("ping connection refused", "peer", peer.Host, "error", err.Error())
	default:
		p.log.Error(err, "ping failed", "peer", peer.Host)
	}
}

func isConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
