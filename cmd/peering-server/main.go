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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/luxor-io/peering-operator/internal/logging"
	"github.com/luxor-io/peering-operator/internal/server"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		bindAddr    = flag.String("bind-address", "", "Address the managed server's HTTP surface binds to. Defaults to 0.0.0.0:$PORT.")
		serverName  = flag.String("server-name", "", "This pod's own name, reported by /config. Defaults to the POD_NAME env var, then HOSTNAME.")
		showVersion = flag.Bool("version", false, "Show version information and exit.")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("peering-server\nVersion: %s\nCommit: %s\n", version, commit)
		os.Exit(0)
	}

	addr := *bindAddr
	if addr == "" {
		addr = fmt.Sprintf("0.0.0.0:%d", server.PortFromEnv(os.Getenv))
	}

	log := logging.FromEnv()
	log = log.WithName("peering-server")

	name := *serverName
	if name == "" {
		name = os.Getenv("POD_NAME")
	}
	if name == "" {
		name = os.Getenv("HOSTNAME")
	}

	cfg := server.ProcessConfig{
		ServerName: name,
		BindAddr:   addr,
		ConfigPath: server.ConfigPathFromEnv(os.Getenv),
	}

	log.Info("starting peering-server", "version", version, "commit", commit, "serverName", name, "configPath", cfg.ConfigPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := server.New(cfg, log)
	if err := srv.Run(ctx); err != nil {
		log.Error(err, "peering-server exited with error")
		os.Exit(1)
	}

	log.Info("peering-server stopped")
}
