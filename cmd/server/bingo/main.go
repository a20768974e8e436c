package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"bingo/internal/api"
	"bingo/internal/auth"
	"bingo/internal/clock"
	"bingo/internal/config"
	"bingo/internal/game/card"
	"bingo/internal/game/draw"
	"bingo/internal/history"
	"bingo/internal/logger"
	"bingo/internal/metrics"
	"bingo/internal/network"
	"bingo/internal/services/cluster"
	"bingo/internal/services/eventbus"
	"bingo/internal/session"
	"bingo/internal/store"
)

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file (default $BINGO_CONFIG)")
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	pflag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := cluster.NewHealthAggregator()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	health.AddCheck("store", st.Ping)

	db, err := history.Open(cfg.Database.Driver, cfg.Database.DSN, log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	sink := history.NewGormSink(db, log)
	health.AddCheck("database", sink.Ping)

	rec, err := metrics.New(cfg.Server.ServiceName)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	hub := network.NewHub(log)
	subscribers := []session.Subscriber{session.NewHubFanout(hub), rec}

	if cfg.NATS.URL != "" {
		nc, err := eventbus.Connect(cfg.NATS.URL, cfg.Server.ServiceName, log)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer nc.Drain()
		subscribers = append(subscribers, eventbus.NewPublisher(nc, cfg.NATS.SubjectPrefix, log))
		health.AddCheck("nats", natsCheck(nc))
	}

	coord := session.NewCoordinator(session.Options{
		Store:       st,
		Cards:       card.NewFactory(nil),
		Drawer:      draw.NewDrawer(nil),
		History:     sink,
		Presence:    hub,
		Subscribers: subscribers,
		TTL:         cfg.Session.TTL,
		Logger:      log,
	})

	var authn auth.Authenticator = auth.Trust{}
	if cfg.Auth.URL != "" {
		authn = auth.NewRemote(cfg.Auth.URL, log)
	} else {
		log.Warn("AUTH_URL not set, trusting tokens as player ids")
	}

	ws := network.NewServer(hub, session.NewGameHandler(coord, authn, log), log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/health", health.Handler())
	r.Handle("/debug/metrics", rec.Handler())
	r.Get("/sessions/{id}/ws", ws.ServeHTTP)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger)
		api.New(coord, sink, log).Routes(r, authn)
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go reportConnections(ctx, hub, rec)

	if cfg.Consul.Addr != "" {
		deregister, err := registerService(cfg, log)
		if err != nil {
			return err
		}
		defer deregister()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Server.Addr), zap.String("store", cfg.Store.Backend))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// Shutdown does not wait for hijacked websocket connections.
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.SessionStore, func(), error) {
	if cfg.Store.Backend == "memory" {
		log.Warn("using in-memory session store, sessions are lost on restart")
		return store.NewMemoryStore(clock.Real(), cfg.Session.TTL), func() {}, nil
	}
	rs, err := store.DialRedis(ctx, cfg.Store.RedisURL, cfg.Session.TTL, log)
	if err != nil {
		return nil, nil, err
	}
	return rs, func() {
		if err := rs.Close(); err != nil {
			log.Warn("closing redis", zap.Error(err))
		}
	}, nil
}

func natsCheck(nc *nats.Conn) cluster.CheckFunc {
	status := eventbus.Health(nc)
	return func(context.Context) error {
		if ok, msg := status(); !ok {
			return errors.New(msg)
		}
		return nil
	}
}

func registerService(cfg config.Config, log *zap.Logger) (func(), error) {
	_, portStr, err := net.SplitHostPort(cfg.Server.Addr)
	if err != nil {
		return nil, fmt.Errorf("server addr %q: %w", cfg.Server.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("server port %q: %w", portStr, err)
	}

	client, err := cluster.NewConsulClient(cfg.Consul.Addr, log)
	if err != nil {
		return nil, err
	}
	id, err := cluster.Register(client, cluster.Registration{
		Name: cfg.Server.ServiceName,
		Port: port,
		Tags: []string{"bingo", "websocket"},
	}, log)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := cluster.Deregister(client, id); err != nil {
			log.Warn("consul deregistration failed", zap.Error(err))
		}
	}, nil
}

func reportConnections(ctx context.Context, hub *network.Hub, rec *metrics.Recorder) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rec.SetConnections(hub.Count())
		}
	}
}
