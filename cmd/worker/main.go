package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/afesign/internal/app"
	"github.com/dharsanguruparan/afesign/internal/config"
	"github.com/dharsanguruparan/afesign/internal/logging"
	"github.com/dharsanguruparan/afesign/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	if err := app.RequireBackends(cfg); err != nil {
		log.Fatal("worker needs durable backends", zap.Error(err))
	}
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("init dependencies", zap.Error(err))
	}
	defer a.Close()

	server := asynq.NewServer(app.RedisOpt(cfg), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Logger:      log.Named("asynq").Sugar(),
	})
	processor := worker.NewProcessor(a.Delivery, a.Service, log)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.Info("worker started", zap.Int("concurrency", cfg.WorkerConcurrency))
	if err := server.Run(mux); err != nil {
		log.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
}
