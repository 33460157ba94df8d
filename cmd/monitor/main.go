package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/api"
	"github.com/technosupport/ts-vms-monitor/internal/backend"
	"github.com/technosupport/ts-vms-monitor/internal/config"
	"github.com/technosupport/ts-vms-monitor/internal/logger"
	"github.com/technosupport/ts-vms-monitor/internal/monitor"
	"github.com/technosupport/ts-vms-monitor/internal/relay"
)

func main() {
	configPath := flag.String("config", "config/monitor.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. Configuration & logging
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log, cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go config.Watch(ctx, *configPath, log, func(next *config.Config) {
		logger.SetLevel(next.Log.Level)
		log.Info("log level reloaded", zap.String("level", next.Log.Level))
	})

	// 2. Optional infrastructure
	client := backend.NewClient(cfg.Backend, log)
	deps := monitor.Deps{Backend: client, Transport: client.EventStream(), Catalog: client}

	if cfg.Views.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Views.Redis.Addr,
			Password: cfg.Views.Redis.Password,
			DB:       cfg.Views.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("redis unavailable, recent events stay in memory", zap.String("addr", cfg.Views.Redis.Addr), zap.Error(err))
			rdb.Close()
		} else {
			defer rdb.Close()
			deps.Redis = rdb
		}
	}

	if cfg.Relay.NATS.Enabled {
		p, err := relay.DialNATS(cfg.Relay.NATS)
		if err != nil {
			log.Warn("nats relay disabled", zap.Error(err))
		} else {
			deps.Relays = append(deps.Relays, p)
		}
	}
	if cfg.Relay.MQTT.Enabled {
		p, err := relay.DialMQTT(cfg.Relay.MQTT)
		if err != nil {
			log.Warn("mqtt relay disabled", zap.Error(err))
		} else {
			deps.Relays = append(deps.Relays, p)
		}
	}

	// 3. Monitor
	mon, err := monitor.New(cfg, deps, log)
	if err != nil {
		log.Fatal("monitor init failed", zap.Error(err))
	}
	if err := mon.Start(ctx); err != nil {
		log.Fatal("monitor start failed", zap.Error(err))
	}

	// 4. HTTP surface
	h := api.NewHandler(mon, cfg.Views.SearchPageSize, log)
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           h.Router(cfg.HTTP.RequestTimeout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown requested")

	// 5. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown error", zap.Error(err))
	}
	mon.Stop()
	log.Info("monitor stopped gracefully")
}
