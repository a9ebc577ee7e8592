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

// Package ratelimit bounds how often the watch engine's reconnect helper may
// repeat its list-then-watch cycle against the API server. The operator's
// REST clients are throttled separately by rest.Config's QPS/Burst.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Config controls a Limiter's steady-state and burst rate.
type Config struct {
	QPS   float64
	Burst int
}

// DefaultConfig mirrors client-go's own default QPS/Burst for a single
// controller client.
func DefaultConfig() *Config {
	return &Config{QPS: 20.0, Burst: 30}
}

// Limiter wraps golang.org/x/time/rate to bound API server call volume.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter from config, falling back to DefaultConfig when nil.
func New(config *Config) *Limiter {
	if config == nil {
		config = DefaultConfig()
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(config.QPS), config.Burst)}
}

// Wait blocks until a token is available or ctx is done, matching
// client-go's flow-control contract for a single outbound call.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a call may proceed immediately without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Reserve reserves a token and returns how long the caller must wait before
// acting on it, i.e. the Delay of rate.Limiter.Reserve's Reservation.
func (l *Limiter) Reserve() time.Duration {
	return l.limiter.Reserve().Delay()
}
