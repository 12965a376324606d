// Package main provides the gaem command for inspecting, verifying, and
// running game packages.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	gaemcmd "github.com/louisbranch/gaem/internal/cmd/gaem"
	"github.com/louisbranch/gaem/internal/platform/config"
)

func main() {
	cfg, err := gaemcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gaemcmd.Run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		config.Exitf("Error: %s", gaemcmd.Describe(err, cfg.Locale))
	}
}
