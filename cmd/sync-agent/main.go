package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Mansoor88-6/facility-sync-agent/internal/client"
	"Mansoor88-6/facility-sync-agent/internal/collector"
	"Mansoor88-6/facility-sync-agent/internal/config"
	"Mansoor88-6/facility-sync-agent/internal/conflict"
	"Mansoor88-6/facility-sync-agent/internal/database"
	"Mansoor88-6/facility-sync-agent/internal/device"
	"Mansoor88-6/facility-sync-agent/internal/feed"
	"Mansoor88-6/facility-sync-agent/internal/handler"
	"Mansoor88-6/facility-sync-agent/internal/liveness"
	"Mansoor88-6/facility-sync-agent/internal/logger"
	"Mansoor88-6/facility-sync-agent/internal/models"
	"Mansoor88-6/facility-sync-agent/internal/network"
	"Mansoor88-6/facility-sync-agent/internal/notify"
	"Mansoor88-6/facility-sync-agent/internal/queue"
	"Mansoor88-6/facility-sync-agent/internal/repository"
	"Mansoor88-6/facility-sync-agent/internal/router"
	"Mansoor88-6/facility-sync-agent/internal/server"
	"Mansoor88-6/facility-sync-agent/internal/service"

	"go.uber.org/zap"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/local.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting facility sync agent",
		zap.String("env", cfg.Env),
		zap.String("config_path", *configPath),
	)

	// Initialize database
	db, err := database.New(cfg.StoragePath, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()

	kvRepo := repository.NewKVRepository(db.DB)
	peerRepo := repository.NewPeerRepository(db.DB)

	consoleID, err := device.NewConsoleIdentity(kvRepo, log.Logger).Resolve(cfg.Console.ID)
	if err != nil {
		log.Fatal("Failed to resolve console id", zap.Error(err))
	}
	log.Info("Using console id",
		zap.String("console_id", consoleID),
		zap.String("console_name", cfg.Console.Name),
	)

	// Initialize API client
	apiClient := client.NewAPIClient(
		cfg.Backend.BaseURL,
		cfg.Backend.APIKey,
		time.Duration(cfg.Backend.Timeout)*time.Second,
		log.Logger,
	)
	apiClient.SetConsoleID(consoleID)

	sink := notify.NewLogSink(log.Logger)

	// Restore the offline queue
	opQueue := queue.NewOperationQueue(kvRepo, log.Logger)
	restored := opQueue.Load()
	log.Info("Offline queue restored", zap.Int("operations", len(restored)))

	netMonitor := network.NewMonitor(
		apiClient,
		time.Duration(cfg.Network.CheckInterval)*time.Second,
		log.Logger,
	)

	resolver := conflict.NewResolver(apiClient, sink, log.Logger)

	syncService := service.NewSyncService(
		opQueue,
		apiClient,
		netMonitor,
		resolver,
		sink,
		time.Duration(cfg.Sync.FlushInterval)*time.Second,
		log.Logger,
	)

	livenessMonitor := liveness.NewMonitor(
		peerRepo,
		time.Duration(cfg.Liveness.CheckInterval)*time.Second,
		time.Duration(cfg.Liveness.DeviceThreshold)*time.Minute,
		time.Duration(cfg.Liveness.AgentThreshold)*time.Minute,
		log.Logger,
	)
	if err := livenessMonitor.Load(context.Background()); err != nil {
		log.Warn("Failed to load liveness records", zap.Error(err))
	}

	heartbeats := collector.NewHeartbeatCollector(
		cfg.Liveness.BatchSize,
		time.Duration(cfg.Liveness.FlushInterval)*time.Second,
		log.Logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start components, leaves first
	netMonitor.Start()
	syncService.Start()
	livenessMonitor.Start()
	heartbeats.Start(func(batch []models.Heartbeat) {
		livenessMonitor.ApplyHeartbeats(ctx, batch)
	})

	var subscriber *feed.Subscriber
	if cfg.Feed.URL != "" {
		subscriber = feed.NewSubscriber(
			cfg.Feed.URL,
			cfg.Backend.APIKey,
			consoleID,
			time.Duration(cfg.Feed.ReconnectDelay)*time.Second,
			heartbeats,
			log.Logger,
		)
		subscriber.Start(ctx)
	} else {
		log.Info("Heartbeat feed disabled in configuration")
	}

	var apiServer *server.Server
	if cfg.Server.Enabled {
		apiServer = server.New(cfg.Server.Port, router.New(router.Handlers{
			Sync:     handler.NewSyncHandler(syncService, log.Logger),
			Conflict: handler.NewConflictHandler(resolver, log.Logger),
			Liveness: handler.NewLivenessHandler(heartbeats, livenessMonitor, log.Logger),
		}, log.Logger), log.Logger)

		if err := apiServer.Start(); err != nil {
			log.Fatal("Failed to start local API server", zap.Error(err))
		}
	} else {
		log.Info("Local API server disabled in configuration")
	}

	log.Info("Facility sync agent started successfully",
		zap.String("console_id", consoleID),
		zap.String("backend_url", cfg.Backend.BaseURL),
		zap.Bool("online", netMonitor.IsOnline()),
	)

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("Local API server shutdown error", zap.Error(err))
		}
		shutdownCancel()
	}

	done := make(chan struct{})
	go func() {
		if subscriber != nil {
			subscriber.Stop()
		}
		heartbeats.Stop()
		livenessMonitor.Stop()
		syncService.Stop()
		netMonitor.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("All components stopped")
	case <-time.After(5 * time.Second):
		log.Warn("Shutdown timeout reached, some components did not stop")
	}

	log.Info("Facility sync agent stopped",
		zap.Int("pending", syncService.PendingCount()),
		zap.Int("failed", syncService.FailedCount()),
	)
}
