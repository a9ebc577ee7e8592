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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefault(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigParsesWireFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body, err := json.Marshal(Config{
		Peers:        []Peer{{Host: "peering-server-0.peering-server", Port: 7000}},
		PingInterval: 2500,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Peers, 1)
	assert.Equal(t, "peering-server-0.peering-server", cfg.Peers[0].Host)
	assert.Equal(t, 2500*time.Millisecond, cfg.Interval())
}

func TestLoadConfigMalformedReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigIntervalDefaultsWhenUnset(t *testing.T) {
	cfg := Config{}
	assert.Equal(t, 60*time.Second, cfg.Interval())
}

func TestConfigPathFromEnvFallsBackToDefault(t *testing.T) {
	getenv := func(string) string { return "" }
	assert.Equal(t, DefaultConfigPath, ConfigPathFromEnv(getenv))
}

func TestConfigPathFromEnvHonorsOverride(t *testing.T) {
	getenv := func(key string) string {
		if key == "CONFIG_PATH" {
			return "/custom/config.json"
		}
		return ""
	}
	assert.Equal(t, "/custom/config.json", ConfigPathFromEnv(getenv))
}

func TestPortFromEnvFallsBackToDefault(t *testing.T) {
	getenv := func(string) string { return "" }
	assert.Equal(t, DefaultPort, PortFromEnv(getenv))
}

func TestPortFromEnvHonorsOverride(t *testing.T) {
	getenv := func(key string) string {
		if key == "PORT" {
			return "9090"
		}
		return ""
	}
	assert.Equal(t, 9090, PortFromEnv(getenv))
}

func TestPortFromEnvIgnoresUnparseableValue(t *testing.T) {
	getenv := func(key string) string {
		if key == "PORT" {
			return "not-a-port"
		}
		return ""
	}
	assert.Equal(t, DefaultPort, PortFromEnv(getenv))
}
