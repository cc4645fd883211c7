package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/itskum47/TaskFlux/scheduler_plane/feedback"
	"github.com/itskum47/TaskFlux/scheduler_plane/heartbeat"
	"github.com/itskum47/TaskFlux/scheduler_plane/predictor"
	"github.com/itskum47/TaskFlux/scheduler_plane/registry"
	"github.com/itskum47/TaskFlux/scheduler_plane/scheduler"
	"github.com/itskum47/TaskFlux/scheduler_plane/store"
	"github.com/itskum47/TaskFlux/scheduler_plane/streaming"
)

func main() {
	cfg := LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis carries the task stream, dispatch channels, heartbeats and the
	// prediction snapshots. Required.
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := client.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
	}
	pingCancel()
	log.Printf("Connected to Redis at %s", cfg.RedisAddr)

	// Optional Postgres audit sink.
	var audit *store.PostgresAuditSink
	if cfg.PostgresDSN != "" {
		sink, err := store.NewPostgresAuditSink(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Printf("Postgres audit sink unavailable, continuing without: %v", err)
		} else {
			audit = sink
			defer audit.Close()
			log.Println("Postgres audit sink connected")
		}
	}

	// Predictor with warm start. A failed load leaves it serving defaults.
	predStore := store.NewRedisPredictionStoreWithClient(client, cfg.PredictionsKey)
	pred := predictor.NewHeuristicPredictor(cfg.predictorConfig(), predStore)
	pred.WarmStart(ctx)

	reg := registry.NewWorkerRegistry(time.Duration(cfg.HeartbeatTimeoutMs) * time.Millisecond)

	// Heartbeat telemetry.
	hbSource := streaming.NewRedisHeartbeatSource(ctx, client, cfg.HeartbeatChannel)
	heartbeats := heartbeat.NewSubscriber(hbSource, reg, cfg.heartbeatConfig())
	heartbeats.Start()

	// Feedback pipeline over the completion stream.
	completionSource, err := streaming.NewRedisSource(ctx, client, cfg.CompletionStream, cfg.ConsumerGroup, cfg.ConsumerName)
	if err != nil {
		log.Fatalf("Failed to attach completion stream: %v", err)
	}
	var sampleSink feedback.SampleSink
	if audit != nil {
		sampleSink = audit
	}
	feedbacks := feedback.NewSubscriber(completionSource, pred, heartbeats, sampleSink, cfg.feedbackConfig())
	feedbacks.Start(ctx)

	// Dispatcher over the task stream.
	taskSource, err := streaming.NewRedisSource(ctx, client, cfg.TaskStream, cfg.ConsumerGroup, cfg.ConsumerName)
	if err != nil {
		log.Fatalf("Failed to attach task stream: %v", err)
	}
	scorer := scheduler.NewScorer(cfg.Weights, cfg.scorerConfig(), float64(cfg.DefaultDurationMs))
	fallback := scheduler.NewFallbackScheduler()
	publisher := streaming.NewRedisPublisher(client)
	var auditSink scheduler.AuditSink
	if audit != nil {
		auditSink = audit
	}
	dispatcher := scheduler.NewDispatcher(taskSource, publisher, reg, pred, scorer, fallback, auditSink, cfg.dispatcherConfig())
	dispatcher.Start(ctx)

	// Event fan-out to dashboards.
	hub := NewEventHub(heartbeats.Events(), feedbacks.Events())
	go hub.Run(ctx)

	api := NewAPI(reg, dispatcher, scorer, pred, heartbeats, feedbacks, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/workers", api.handleWorkers)
	mux.HandleFunc("/scheduler/debug/snapshot", api.handleSnapshot)
	mux.HandleFunc("/scheduler/weights", api.handleWeights)
	mux.HandleFunc("/scheduler/predictor/reset", api.handlePredictorReset)
	mux.HandleFunc("/events/stream", api.handleEventsStream)

	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Printf("TaskFlux scheduler listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Graceful shutdown: stop consuming, persist the predictor, close out.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down", sig)

	dispatcher.Stop()
	feedbacks.Stop()
	heartbeats.Stop()

	persistCtx, persistCancel := context.WithTimeout(context.Background(), 5*time.Second)
	pred.Close(persistCtx)
	persistCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	server.Shutdown(shutdownCtx)
	shutdownCancel()
	cancel()

	log.Println("Shutdown complete")
}
