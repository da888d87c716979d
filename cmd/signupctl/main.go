package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/rkanadam/sssbcsj-api/internal/app"
	"github.com/rkanadam/sssbcsj-api/internal/cli"
	"github.com/rkanadam/sssbcsj-api/internal/config"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	load := func(ctx context.Context) (*app.Runtime, error) {
		return app.Build(ctx, cfg)
	}
	if err := cli.NewRootCommand(load, cfg.OperatorEmail).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
