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

// Package server implements the managed peering server: the process that
// runs inside every PeeringServer pod, reading its mounted ConfigMap and
// pinging every peer on a schedule.
package server

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

const (
	// DefaultConfigPath is read when CONFIG_PATH is unset.
	DefaultConfigPath = "/etc/peering/config.json"

	// DefaultPort is used when PORT is unset, matching desiredStatefulSet's
	// own default container port.
	DefaultPort = 8080

	defaultPingInterval = 60000 * time.Millisecond
)

// Peer identifies one cohort member by its cluster DNS name and port.
type Peer struct {
	Host string `json:"host"`
	Port int32  `json:"port"`
}

// Config is the wire format the operator writes into the mounted ConfigMap.
type Config struct {
	Peers        []Peer `json:"peers"`
	PingInterval int64  `json:"pingInterval"`
}

// Interval returns PingInterval as a time.Duration, defaulting when zero.
func (c Config) Interval() time.Duration {
	if c.PingInterval <= 0 {
		return defaultPingInterval
	}
	return time.Duration(c.PingInterval) * time.Millisecond
}

// DefaultConfig is used when CONFIG_PATH is absent: no peers, a 60s ping
// interval, so the server starts cleanly in isolation.
func DefaultConfig() Config {
	return Config{Peers: nil, PingInterval: int64(defaultPingInterval / time.Millisecond)}
}

// LoadConfig reads and parses path. A missing file yields DefaultConfig
// with no error; a parse error returns the error so the caller can retain
// whatever configuration it already has rather than crash.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigPathFromEnv returns CONFIG_PATH's value, or DefaultConfigPath when
// unset.
func ConfigPathFromEnv(getenv func(string) string) string {
	if path := getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return DefaultConfigPath
}

// PortFromEnv returns PORT's value, or DefaultPort when unset or
// unparseable. The operator injects PORT into the container's Env so the
// process listens on the same port the Service, probes, and peers target.
func PortFromEnv(getenv func(string) string) int {
	raw := getenv("PORT")
	if raw == "" {
		return DefaultPort
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 {
		return DefaultPort
	}
	return port
}
