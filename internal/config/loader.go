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

// Package config loads operator configuration from a YAML file, layered
// under environment variable and command-line flag overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration is the complete operator configuration. Command-line flags
// take precedence over this file, which takes precedence over the built-in
// defaults.
type Configuration struct {
	Controller     ControllerConfig     `yaml:"controller" json:"controller"`
	Kubernetes     KubernetesConfig     `yaml:"kubernetes" json:"kubernetes"`
	LeaderElection LeaderElectionConfig `yaml:"leaderElection" json:"leaderElection"`
	Logging        LoggingConfig        `yaml:"logging" json:"logging"`
	Metrics        MetricsConfig        `yaml:"metrics" json:"metrics"`
}

// ControllerConfig contains reconciler-specific configuration.
type ControllerConfig struct {
	Namespace               string        `yaml:"namespace" json:"namespace"`
	MaxConcurrentReconciles int           `yaml:"maxConcurrentReconciles" json:"maxConcurrentReconciles"`
	ReconcileTimeout        time.Duration `yaml:"reconcileTimeout" json:"reconcileTimeout"`
}

// KubernetesConfig contains Kubernetes client configuration.
type KubernetesConfig struct {
	Kubeconfig string        `yaml:"kubeconfig" json:"kubeconfig"`
	QPS        float32       `yaml:"qps" json:"qps"`
	Burst      int           `yaml:"burst" json:"burst"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// LeaderElectionConfig contains manager-level leader election configuration.
// The Reconciler's own correctness never depends on this; it is an
// operational toggle only.
type LeaderElectionConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	ID        string `yaml:"id" json:"id"`
	LeaseName string `yaml:"leaseName" json:"leaseName"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig contains metrics and probe bind addresses.
type MetricsConfig struct {
	BindAddress       string `yaml:"bindAddress" json:"bindAddress"`
	HealthBindAddress string `yaml:"healthBindAddress" json:"healthBindAddress"`
}

// DefaultConfiguration returns the built-in configuration used when no file
// or environment override is present.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		Controller: ControllerConfig{
			Namespace:               "default",
			MaxConcurrentReconciles: 1,
			ReconcileTimeout:        5 * time.Minute,
		},
		Kubernetes: KubernetesConfig{
			QPS:     20.0,
			Burst:   30,
			Timeout: 30 * time.Second,
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:   true,
			ID:        "peering-operator-leader",
			LeaseName: "peering-operator-leader",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			BindAddress:       ":8080",
			HealthBindAddress: ":8081",
		},
	}
}

// ConfigurationLoader layers a YAML file and environment variables onto
// DefaultConfiguration.
type ConfigurationLoader struct {
	config *Configuration
}

// NewConfigurationLoader creates a loader seeded with the default
// configuration.
func NewConfigurationLoader() *ConfigurationLoader {
	return &ConfigurationLoader{config: DefaultConfiguration()}
}

// LoadFromFile merges path's YAML contents onto the loader's configuration.
// An empty path is a no-op; a missing file is an error, since the caller
// only passes a path when one was explicitly requested.
func (cl *ConfigurationLoader) LoadFromFile(path string) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s", path)
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is an operator-supplied configuration file
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	if err := yaml.Unmarshal(data, cl.config); err != nil {
		return fmt.Errorf("failed to parse configuration file: %w", err)
	}

	return nil
}

// LoadFromEnvironment overrides the loader's configuration from environment
// variables, taking precedence over the file. WATCH_NAMESPACE sets the
// watched namespace; PEERING_NAMESPACE, when also set, wins over it.
func (cl *ConfigurationLoader) LoadFromEnvironment() error {
	if value := os.Getenv("WATCH_NAMESPACE"); value != "" {
		cl.config.Controller.Namespace = value
	}

	envMappings := map[string]func(string) error{
		"PEERING_NAMESPACE":                  cl.setControllerNamespace,
		"PEERING_MAX_CONCURRENT_RECONCILES":  cl.setMaxConcurrentReconciles,
		"PEERING_RECONCILE_TIMEOUT":          cl.setReconcileTimeout,
		"KUBECONFIG":                         cl.setKubeconfig,
		"PEERING_KUBE_QPS":                   cl.setKubeQPS,
		"PEERING_KUBE_BURST":                 cl.setKubeBurst,
		"PEERING_KUBE_TIMEOUT":               cl.setKubeTimeout,
		"PEERING_LEADER_ELECTION_ENABLED":    cl.setLeaderElectionEnabled,
		"PEERING_LEADER_ELECTION_ID":         cl.setLeaderElectionID,
		"PEERING_LOG_LEVEL":                  cl.setLogLevel,
		"PEERING_LOG_FORMAT":                 cl.setLogFormat,
		"PEERING_METRICS_BIND_ADDRESS":       cl.setMetricsBindAddress,
		"PEERING_HEALTH_BIND_ADDRESS":        cl.setHealthBindAddress,
	}

	for envVar, setter := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			if err := setter(value); err != nil {
				return fmt.Errorf("failed to set %s=%s: %w", envVar, value, err)
			}
		}
	}

	return nil
}

// LoadConfiguration loads defaults, then file, then environment, then
// validates the result.
func (cl *ConfigurationLoader) LoadConfiguration(configFile string) (*Configuration, error) {
	cl.config = DefaultConfiguration()

	if configFile != "" {
		if err := cl.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load configuration from file: %w", err)
		}
	}

	if err := cl.LoadFromEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	if err := cl.ValidateConfiguration(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cl.config, nil
}

// ValidateConfiguration rejects non-positive values the Reconciler and
// Kubernetes client cannot operate with.
func (cl *ConfigurationLoader) ValidateConfiguration() error {
	if cl.config.Controller.MaxConcurrentReconciles <= 0 {
		return fmt.Errorf("controller.maxConcurrentReconciles must be positive")
	}
	if cl.config.Controller.ReconcileTimeout <= 0 {
		return fmt.Errorf("controller.reconcileTimeout must be positive")
	}
	if cl.config.Kubernetes.QPS <= 0 {
		return fmt.Errorf("kubernetes.qps must be positive")
	}
	if cl.config.Kubernetes.Burst <= 0 {
		return fmt.Errorf("kubernetes.burst must be positive")
	}
	return nil
}

func (cl *ConfigurationLoader) setControllerNamespace(value string) error {
	cl.config.Controller.Namespace = value
	return nil
}

func (cl *ConfigurationLoader) setMaxConcurrentReconciles(value string) error {
	val, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	cl.config.Controller.MaxConcurrentReconciles = val
	return nil
}

func (cl *ConfigurationLoader) setReconcileTimeout(value string) error {
	val, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	cl.config.Controller.ReconcileTimeout = val
	return nil
}

func (cl *ConfigurationLoader) setKubeconfig(value string) error {
	cl.config.Kubernetes.Kubeconfig = value
	return nil
}

func (cl *ConfigurationLoader) setKubeQPS(value string) error {
	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return err
	}
	cl.config.Kubernetes.QPS = float32(val)
	return nil
}

func (cl *ConfigurationLoader) setKubeBurst(value string) error {
	val, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	cl.config.Kubernetes.Burst = val
	return nil
}

func (cl *ConfigurationLoader) setKubeTimeout(value string) error {
	val, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	cl.config.Kubernetes.Timeout = val
	return nil
}

func (cl *ConfigurationLoader) setLeaderElectionEnabled(value string) error {
	val, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}
	cl.config.LeaderElection.Enabled = val
	return nil
}

func (cl *ConfigurationLoader) setLeaderElectionID(value string) error {
	cl.config.LeaderElection.ID = value
	return nil
}

func (cl *ConfigurationLoader) setLogLevel(value string) error {
	cl.config.Logging.Level = value
	return nil
}

func (cl *ConfigurationLoader) setLogFormat(value string) error {
	cl.config.Logging.Format = value
	return nil
}

func (cl *ConfigurationLoader) setMetricsBindAddress(value string) error {
	cl.config.Metrics.BindAddress = value
	return nil
}

func (cl *ConfigurationLoader) setHealthBindAddress(value string) error {
	cl.config.Metrics.HealthBindAddress = value
	return nil
}
