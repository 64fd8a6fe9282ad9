package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"centinela/internal/config"
	"centinela/internal/logger"
	"centinela/internal/service"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	log := logger.WithComponent("main")

	svc, err := service.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize service")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run service in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	// Wait for termination signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		log.Info().Msg("shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("service exited")
			os.Exit(1)
		}
	}

	log.Info().Msg("exited")
}
