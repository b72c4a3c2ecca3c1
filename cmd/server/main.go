package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vertigrow/internal/alerts"
	"vertigrow/internal/analytics"
	"vertigrow/internal/cache"
	"vertigrow/internal/config"
	"vertigrow/internal/handlers"
	"vertigrow/internal/hub"
	"vertigrow/internal/monitor"
	"vertigrow/internal/simulation"
)

func main() {
	log.Println("Starting VertiGrow monitoring service...")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	// Симуляция и демонстрационные башни
	engine := simulation.NewEngine(cfg.SimulationSeed, cfg.TickInterval)
	engine.SetTimeScale(cfg.TimeScale)
	if err := monitor.SeedTowers(engine, cfg.SeedTowers); err != nil {
		log.Fatalf("Failed to seed towers: %v", err)
	}
	log.Printf("Simulation ready: %d towers, tick every %s, time scale x%.0f", cfg.SeedTowers, cfg.TickInterval, cfg.TimeScale)

	analyzer := analytics.NewAnalyzer(cfg.WindowSize, cfg.AnomalyThreshold)
	analyzer.Start(cfg.AnalyzerWorkers)
	log.Printf("Analyzer started with window size: %d, threshold: %.2f, workers: %d",
		cfg.WindowSize, cfg.AnomalyThreshold, cfg.AnalyzerWorkers)

	evaluator := alerts.NewEvaluator(alerts.DefaultRules, cfg.AlertCooldown)

	var pipeline *monitor.Pipeline
	wsHub := hub.New(
		func() interface{} { return engine.Snapshot() },
		func(cmd hub.Command) (string, interface{}, error) { return pipeline.HandleCommand(cmd) },
	)
	wsHub.AllowOrigins(cfg.AllowedOrigins...)
	pipeline = monitor.NewPipeline(engine, store, analyzer, evaluator, wsHub)

	go wsHub.Run(ctx)
	go pipeline.ConsumeAnalysis()
	go pipeline.RefreshGauges(ctx, cfg.TickInterval)

	engine.OnTick(pipeline.HandleTick)
	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		engine.Run(ctx)
	}()

	handler := handlers.NewHandler(engine, store, pipeline, analyzer, wsHub)

	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     handler.Routes(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	<-simDone
	analyzer.Stop()

	log.Println("Server stopped gracefully")
}

// openStore подключает Redis или, если адрес не задан, хранилище в памяти
func openStore(ctx context.Context, cfg config.Config) (cache.Store, error) {
	if cfg.RedisAddr == "" {
		log.Printf("REDIS_ADDR not set, keeping last %d readings per tower in memory", cfg.HistoryLimit)
		return cache.NewMemoryStore(cfg.HistoryLimit), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := cache.NewRedisStore(connectCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		cfg.ReadingRetention, cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to Redis at %s", cfg.RedisAddr)
	return store, nil
}

func init() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}
