package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/cockroachdb/errors"

	"github.com/eden-gfx/eden/internal/app"
	"github.com/eden-gfx/eden/internal/config"
	"github.com/eden-gfx/eden/internal/logging"
	"github.com/eden-gfx/eden/internal/scenes"
)

func main() {
	// SDL and the Vulkan surface must stay on the main thread.
	runtime.LockOSThread()

	cfg, err := config.ParseFlags(os.Args[0], os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	registry := scenes.Default()
	if cfg.ListScenes {
		for i, name := range registry.Names() {
			fmt.Printf("%d  %s\n", i+1, name)
		}
		return
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "scene", cfg.Scene, "assets", cfg.Assets.Dir)
	err = app.New(cfg, registry, logger).Run(ctx)
	if err != nil {
		logger.Error("eden failed", "error", fmt.Sprintf("%+v", err))
		stop()
		os.Exit(1)
	}
}
