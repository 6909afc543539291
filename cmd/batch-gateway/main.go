package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/batchgate/internal/config"
	"github.com/example/batchgate/internal/observability"
	"github.com/example/batchgate/internal/service"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	shutdownTrace, err := observability.InitTracingFromEnv(cfg.OTelServiceName)
	if err != nil {
		log.Fatalf("init tracing: %v", err)
	}
	defer func() { _ = shutdownTrace(context.Background()) }()

	svc, err := service.New(cfg)
	if err != nil {
		log.Fatalf("build service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runDone := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(runDone)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace+5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("batch-gateway listening on :%s (mode=%s)", cfg.Port, svc.EngineMode())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("batch-gateway: listen failed: %v", err)
		stop()
		<-runDone
		os.Exit(2)
	}

	<-runDone
	log.Println("batch-gateway shut down cleanly")
}
