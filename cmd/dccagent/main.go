// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dccbot/dccagent/internal/archive"
	"github.com/dccbot/dccagent/internal/config"
	"github.com/dccbot/dccagent/internal/logging"
	"github.com/dccbot/dccagent/internal/manager"
)

// main wires config -> logger -> manager and blocks on a shutdown signal.
// The HTTP/WebSocket control surface is an external collaborator out of
// scope for this repository; a future control adapter would call
// manager.Manager's exported methods directly.
func main() {
	configPath := flag.String("config", "/etc/dccagent/config.yaml", "path to agent config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uploader, err := archive.NewS3Uploader(ctx, cfg.Archive)
	if err != nil {
		logger.Error("archive uploader init failed", "error", err)
		os.Exit(1)
	}

	m := manager.New(cfg, logger)
	if uploader != nil {
		m.SetArchiver(uploader)
	}
	m.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	m.Shutdown()
}
