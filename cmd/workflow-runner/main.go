package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lyzr/wfcompiler/internal/bootstrap"
	"github.com/lyzr/wfcompiler/internal/controller"
	wfredis "github.com/lyzr/wfcompiler/internal/redis"
	"github.com/lyzr/wfcompiler/internal/registry"
	"github.com/lyzr/wfcompiler/internal/server"
	"github.com/lyzr/wfcompiler/internal/telemetry"
	"github.com/lyzr/wfcompiler/internal/workflow"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Setup(ctx, "workflow-runner")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	components.Logger.Info("workflow-runner starting")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     firstAddr(components.Config.Redis.Addrs),
		Password: components.Config.Redis.Password,
		DB:       components.Config.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		components.Logger.Error("failed to ping Redis", "error", err)
		os.Exit(1)
	}
	components.Logger.Info("connected to Redis")
	defer redisClient.Close()

	wfClient := wfredis.NewClient(redisClient, components.Logger)

	services, err := loadServiceCatalogue(getEnv("SERVICES_CONFIG_PATH", ""))
	if err != nil {
		components.Logger.Error("failed to load service catalogue", "error", err)
		os.Exit(1)
	}

	submissions := registry.NewPostgresSubmissionRegistry(components.DB)
	var chains registry.ProcessChainRegistry = registry.NewPostgresProcessChainRegistry(components.DB)
	chains = registry.NewCachedProcessChainRegistry(chains, wfClient, components.Config.Compiler.StatusCacheTTL)
	serviceRegistry := registry.NewStaticServiceMetadataRegistry(services)
	oracle := registry.NewStaticOutputAdapterOracle(splitCSV(getEnv("OUTPUT_ADAPTER_DATA_TYPES", "")))
	leases := registry.NewRedisLeaseManager(wfClient)
	signalBus := registry.NewRedisSignalBus(wfClient)

	ctl := controller.New(components.Logger, submissions, chains, serviceRegistry, oracle, leases, signalBus, controller.Config{
		TmpPath:        components.Config.Compiler.TmpPath,
		OutPath:        components.Config.Compiler.OutPath,
		LookupInterval: durationFromMS(components.Config.Compiler.LookupIntervalMS),
		OrphanInterval: durationFromMS(components.Config.Compiler.OrphanLookupIntervalMS),
		LeaseTTL:       components.Config.Compiler.LeaseTTL,
	})

	loop := controller.NewLookupLoop(ctl, components.Logger,
		durationFromMS(components.Config.Compiler.LookupIntervalMS),
		durationFromMS(components.Config.Compiler.OrphanLookupIntervalMS))

	if components.Config.Telemetry.EnablePprof {
		tel := telemetry.New(components.Config.Telemetry.PprofPort, components.Config.Telemetry.MetricsPort, components.Logger)
		if err := tel.Start(ctx); err != nil {
			components.Logger.Error("telemetry start failed", "error", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", server.HealthHandler())
	mux.Handle("/metrics/controller", server.ControllerMetricsHandler(ctl.Metrics()))
	httpServer := server.New("workflow-runner", components.Config.Service.Port, mux, components.Logger)

	errChan := make(chan error, 1)
	go func() {
		components.Logger.Info("starting lookup loop",
			"lookup_interval_ms", components.Config.Compiler.LookupIntervalMS,
			"orphan_interval_ms", components.Config.Compiler.OrphanLookupIntervalMS)
		loop.Run(ctx)
		errChan <- nil
	}()
	go func() {
		if err := httpServer.Start(); err != nil {
			components.Logger.Error("http server stopped", "error", err)
		}
	}()

	components.Logger.Info("workflow-runner started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			components.Logger.Error("lookup loop failed", "error", err)
			os.Exit(1)
		}
	case sig := <-sigChan:
		components.Logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}

	components.Logger.Info("workflow-runner shutting down gracefully")
}

func loadServiceCatalogue(path string) ([]workflow.ServiceMetadata, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service catalogue %s: %w", path, err)
	}
	var services []workflow.ServiceMetadata
	if err := json.Unmarshal(data, &services); err != nil {
		return nil, fmt.Errorf("parse service catalogue %s: %w", path, err)
	}
	return services, nil
}

func firstAddr(addrs []string) string {
	if len(addrs) == 0 {
		return "localhost:6379"
	}
	return addrs[0]
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func durationFromMS(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
