package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/afesign/internal/api"
	"github.com/dharsanguruparan/afesign/internal/app"
	"github.com/dharsanguruparan/afesign/internal/config"
	"github.com/dharsanguruparan/afesign/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("init dependencies", zap.Error(err))
	}
	defer a.Close()

	if a.Dispatcher != nil {
		a.Dispatcher.Start(ctx)
		defer a.Dispatcher.Wait()
	}

	srv := api.New(cfg, a.Service, a.Links, log)
	if err := srv.Run(ctx); err != nil {
		log.Error("server stopped", zap.Error(err))
		stop()
		os.Exit(1)
	}
}
