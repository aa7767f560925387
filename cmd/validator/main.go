package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/app"
	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/config"
)

func main() {
	mode := flag.String("mode", "worker", "run mode: worker (the only mode)")
	flag.Parse()

	if *mode != "worker" {
		fmt.Fprintf(os.Stderr, "error: unknown mode %q\n", *mode)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
