// Package main is the entry point for the ORBIT inference-serving control
// plane server: it bootstraps the config manager, datasource registry,
// provider factory and adapter manager, then serves the admin HTTP surface
// until an interrupt signal arrives. Grounded on the teacher's
// cmd/server/main.go bootstrap/signal-handling shape.
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

	"github.com/orbit-project/orbit/internal/adaptermanager"
	"github.com/orbit-project/orbit/internal/adminapi"
	"github.com/orbit-project/orbit/internal/config"
	"github.com/orbit-project/orbit/internal/datasource"
	"github.com/orbit-project/orbit/internal/providerfactory"
	"github.com/orbit-project/orbit/internal/reloadlock"
	logger "github.com/orbit-project/orbit/pkg/logging"
)

const (
	serviceName    = "orbit"
	serviceVersion = "0.1.0"
)

func main() {
	configPath := flag.String("config", "config/orbit.yaml", "path to the root configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, serviceVersion)
		os.Exit(0)
	}

	bootLog := logger.NewLogger(logger.Config{Level: "info", Format: "json", Output: "stdout"})
	bootLog.Info("starting orbit server", "version", serviceVersion, "config", *configPath)

	cfgManager := config.NewManager(*configPath, 5*time.Second)
	cfg, err := cfgManager.Load()
	if err != nil {
		bootLog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Cache.TTL > 0 {
		cfgManager = config.NewManager(*configPath, cfg.Cache.TTL)
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	registry := datasource.NewRegistry(log, nil)
	providers := providerfactory.New(cfg)
	manager := adaptermanager.New(registry, providers, log)

	ctx := context.Background()
	summary, err := manager.LoadAll(ctx, cfg)
	if err != nil {
		log.Error("initial adapter catalog load failed", "error", err)
		os.Exit(1)
	}
	log.Info("adapter catalog loaded",
		"added", summary.Added, "enabled", summary.Enabled, "failed", len(summary.Failed))

	var locks *reloadlock.Manager
	if cfg.Lock.Enabled {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
		locks = reloadlock.NewManager(redisClient, &reloadlock.Config{
			TTL:            cfg.Lock.TTL,
			AcquireTimeout: cfg.Lock.AcquireTimeout,
		}, log)
	}

	admin := adminapi.NewServer(manager, cfgManager, locks, cfg.Admin, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler: admin.Router(),
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("admin HTTP server listening", "port", cfg.Admin.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("admin HTTP server forced shutdown", "error", err)
		os.Exit(1)
	}
	if locks != nil {
		_ = locks.Close(shutdownCtx)
	}
	log.Info("server exited")
}
