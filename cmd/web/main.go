// Package main is the entry point for the ipranges query server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ipranges/internal/config"
	"github.com/ipranges/internal/controller"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml")
	port := flag.Int("port", 0, "Port to serve on (overrides config)")
	flag.Parse()

	if err := run(*configPath, *port); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl, err := controller.New(ctx, cfg)
	if err != nil {
		return err
	}
	return ctrl.Serve(ctx)
}
