package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/room-chat/config"
	"github.com/cwrk-planet/room-chat/internal/auth"
	"github.com/cwrk-planet/room-chat/internal/logger"
	"github.com/cwrk-planet/room-chat/internal/presence"
	"github.com/cwrk-planet/room-chat/internal/registry"
	"github.com/cwrk-planet/room-chat/internal/security"
	"github.com/cwrk-planet/room-chat/internal/service"
	"github.com/cwrk-planet/room-chat/internal/store"
	grpcx "github.com/cwrk-planet/room-chat/internal/transport/grpc"
	httpx "github.com/cwrk-planet/room-chat/internal/transport/http"
	"github.com/cwrk-planet/room-chat/internal/transport/ws"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	lg := logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     level,
		AddSource: cfg.Logging.AddSource,
	})
	lg.Info("starting room-chat", "env", cfg.Logging.Env, "version", cfg.Logging.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- store ---
	st, backend := store.Open(ctx, store.OpenConfig{
		Backends: cfg.Store.Backends,
		Postgres: store.PostgresConfig{
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
			ApplicationName: cfg.Logging.Service,
		},
		PostgresDSNs:   cfg.Postgres.DSNs,
		RedisURL:       cfg.Redis.URL,
		BadgerPath:     cfg.Badger.Path,
		ConnectTimeout: cfg.Store.ConnectTimeout,
		OpTimeout:      cfg.Store.OpTimeout,
	}, logger.Component("store"))
	defer func() {
		if err := st.Close(); err != nil {
			lg.Warn("store close failed", "err", err)
		}
	}()
	lg.Info("store ready", "backend", backend)

	// --- core ---
	tokens, err := auth.NewProvider(auth.Config{
		Secret:     cfg.Auth.JWTSecret,
		Issuer:     cfg.Auth.Issuer,
		TTL:        cfg.Auth.TokenTTL,
		CookieName: cfg.Auth.CookieName,
	})
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	reg := registry.New(st, logger.Component("registry"), registry.WithKeyGenerator(registry.RandomKeys(cfg.Rooms.KeyBytes)))
	hub := ws.NewHub(logger.Component("ws"))
	coord := presence.NewCoordinator(reg, st, hub, logger.Component("presence"),
		presence.WithMaxMessageLen(cfg.Rooms.MaxMessageLen))
	accounts := service.NewAccountService(st, security.BcryptConfig{Cost: cfg.Auth.BcryptCost}, logger.Component("accounts"))

	// --- WS & HTTP ---
	wsServer := ws.NewServer(hub, coord, tokens, logger.Component("ws"), ws.Options{
		PingEvery:  cfg.WS.PingEvery,
		SendBuffer: cfg.WS.SendBuffer,
		ReadLimit:  cfg.WS.ReadLimit,
	})
	router := httpx.NewRouter(httpx.RouterDeps{
		Handler:     httpx.NewHandler(accounts, coord, reg, tokens, logger.Component("http")),
		Auth:        tokens,
		WS:          wsServer.HandleWS,
		Store:       st,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Log:         logger.Component("http"),
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// --- gRPC health ---
	grpcSrv := grpcx.NewServer(st, logger.Component("grpc"), 0)
	go grpcSrv.Watch(ctx)

	// --- run both servers ---
	errCh := make(chan error, 2)

	go func() {
		lg.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			errCh <- err
			return
		}
		lg.Info("grpc listen", "addr", cfg.GRPC.Addr)
		if err := grpcSrv.GRPC().Serve(lis); err != nil {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	select {
	case <-ctx.Done():
		lg.Info("shutdown signal")
	case err := <-errCh:
		lg.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcSrv.Shutdown()
	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		lg.Warn("http shutdown", "err", err)
	}
	lg.Info("stopped")
}
