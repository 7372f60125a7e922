// Package main wires the session orchestrator process lifecycle.
//
// It reads config from flags/env and runs the orchestrator until shutdown.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	orchestratorcmd "github.com/louisbranch/questmaster/internal/cmd/orchestrator"
	"github.com/louisbranch/questmaster/internal/platform/config"
)

func main() {
	cfg, err := orchestratorcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[ORCHESTRATOR] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orchestratorcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
