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

// Package logging provides the structured logger shared by the operator and
// the managed server binaries.
package logging

import (
	"os"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	ctrlzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Config controls the shared logger's verbosity and encoding.
type Config struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// DefaultConfig returns the logger configuration used when no environment
// overrides are present.
func DefaultConfig() *Config {
	return &Config{Level: "info", Format: "json"}
}

// New builds a logr.Logger backed by zap, matching the encoding controller-
// runtime itself uses so operator and library log lines share one format.
func New(config *Config) logr.Logger {
	if config == nil {
		config = DefaultConfig()
	}

	opts := ctrlzap.Options{Development: false}

	if config.Format == "console" {
		opts.Encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "time"
		encoderConfig.LevelKey = "level"
		encoderConfig.MessageKey = "msg"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		opts.Encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	level := parseLevel(config.Level)
	opts.Level = &level

	return ctrlzap.New(ctrlzap.UseFlagOptions(&opts))
}

// FromEnv builds a logger from PEERING_LOG_LEVEL/PEERING_LOG_FORMAT, falling
// back to the plain LOG_LEVEL env var and then DefaultConfig when unset.
func FromEnv() logr.Logger {
	return New(&Config{
		Level:  getEnvOrDefault("PEERING_LOG_LEVEL", getEnvOrDefault("LOG_LEVEL", "info")),
		Format: getEnvOrDefault("PEERING_LOG_FORMAT", "json"),
	})
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
