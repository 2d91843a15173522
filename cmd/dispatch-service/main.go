package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JeremyGnt/serenio-sub002/internal/config"
	"github.com/JeremyGnt/serenio-sub002/internal/dispatch"
	"github.com/JeremyGnt/serenio-sub002/internal/httpapi"
	"github.com/JeremyGnt/serenio-sub002/internal/store/postgres"
	"github.com/JeremyGnt/serenio-sub002/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("dispatch-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)
	dispatcher := dispatch.New(store)
	handler := httpapi.NewHandler(store, dispatcher, cfg.EscalationRadiusFactor)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:       cfg.RateLimitPerMinute,
		IPBurst:           cfg.RateLimitBurst,
		TrackingPerMinute: cfg.TrackingRateLimitPerMinute,
		TrackingBurst:     cfg.TrackingRateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/", handler.Routes())

	chain := httpapi.LoggingMiddleware(limiter.Middleware(httpapi.AuthMiddleware(store, mux)))
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(chain, "dispatch-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("dispatch-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go func() {
		if cfg.DispatchScanInterval <= 0 {
			return
		}
		ticker := time.NewTicker(cfg.DispatchScanInterval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			started, err := dispatcher.ScanPending(ctx, cfg.DispatchBatchSize)
			cancel()
			if err != nil {
				log.Printf("dispatch scan error: %v", err)
				continue
			}
			if started > 0 {
				log.Printf("dispatch scan started %d searches", started)
			}
		}
	}()

	go func() {
		if cfg.EscalationAfter <= 0 || cfg.DispatchScanInterval <= 0 {
			return
		}
		ticker := time.NewTicker(cfg.DispatchScanInterval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			escalated, err := dispatcher.EscalateStalled(ctx, cfg.EscalationAfter, cfg.DispatchBatchSize, cfg.EscalationRadiusFactor)
			cancel()
			if err != nil {
				log.Printf("escalation scan error: %v", err)
				continue
			}
			if escalated > 0 {
				log.Printf("escalated %d stalled searches", escalated)
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
