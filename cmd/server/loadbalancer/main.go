package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bingo/internal/logger"
	"bingo/internal/services/cluster"
)

const (
	defaultListenAddr      = ":80"
	defaultConsulAddr      = "consul:8500"
	defaultTargetService   = "bingo"
	defaultShutdownTimeout = 5 * time.Second
)

type Config struct {
	ListenAddr      string
	ConsulAddrs     string
	TargetService   string
	ShutdownTimeout time.Duration
	LogLevel        string
}

func loadConfig() *Config {
	cfg := &Config{
		ListenAddr:      os.Getenv("LB_LISTEN_ADDR"),
		ConsulAddrs:     os.Getenv("CONSUL_HTTP_ADDR"),
		TargetService:   os.Getenv("LB_TARGET_SERVICE"),
		ShutdownTimeout: defaultShutdownTimeout,
		LogLevel:        os.Getenv("LOG_LEVEL"),
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.ConsulAddrs == "" {
		cfg.ConsulAddrs = defaultConsulAddr
	}
	if cfg.TargetService == "" {
		cfg.TargetService = defaultTargetService
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg
}

func main() {
	cfg := loadConfig()
	log, err := logger.New(cfg.LogLevel, "json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	client, err := cluster.NewConsulClient(cfg.ConsulAddrs, log)
	if err != nil {
		log.Fatal("consul client", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := &BackendsStore{}
	go cluster.WatchService(ctx, client, cfg.TargetService, log, func(addrs []string) {
		store.SetAddrs(addrs)
		if len(addrs) == 0 {
			log.Warn("no healthy backends", zap.String("service", cfg.TargetService))
			return
		}
		log.Info("backends updated", zap.String("service", cfg.TargetService), zap.Strings("addrs", addrs))
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(store, cfg.TargetService, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("load balancer listening", zap.String("addr", cfg.ListenAddr), zap.String("service", cfg.TargetService))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
