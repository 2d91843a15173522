package main

import (
	"context"
	"encoding/json"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/JeremyGnt/serenio-sub002/internal/config"
	"github.com/JeremyGnt/serenio-sub002/internal/httpapi"
	"github.com/JeremyGnt/serenio-sub002/internal/hub"
	"github.com/JeremyGnt/serenio-sub002/internal/store"
	"github.com/JeremyGnt/serenio-sub002/internal/store/postgres"
	"github.com/JeremyGnt/serenio-sub002/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	realtimeConsumer = "realtime"
	notifierConsumer = "notifier"
)

// eventEnvelope is the wire shape pushed to subscribers. It carries the
// coarse transition only; contact details and candidate payloads stay
// server-side.
type eventEnvelope struct {
	Type           string    `json:"type"`
	TrackingNumber string    `json:"tracking_number"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("realtime-service")
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

	st := postgres.NewStore(pool)
	h := hub.New()
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute: cfg.RateLimitPerMinute,
		IPBurst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	sockjsHandler := sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		// Anonymous connections are fine: a tracking subscription needs
		// nothing more than the token itself. A session upgrades the
		// connection to the artisan's dashboard feed.
		var artisanID string
		if sessionID := sessionIDFromRequest(session.Request()); sessionID != "" {
			authSession, err := st.GetSession(context.Background(), sessionID)
			if err != nil {
				_ = session.Close(4002, "invalid session")
				return
			}
			if authSession.Role == store.RoleArtisan {
				artisanID = authSession.AccountID
			}
		}

		client := &hub.Client{
			ID:           uuid.NewString(),
			Send:         make(chan []byte, 16),
			Subscription: hub.Subscription{ArtisanID: artisanID},
		}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			sub := hub.Subscription{ArtisanID: artisanID}
			if parsed.Action == "subscribe" {
				sub.TrackingNumber = strings.TrimSpace(parsed.TrackingNumber)
			}
			h.UpdateSubscription(client, sub)
		}
	})
	mux.Handle("/realtime/", sockjsHandler)

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "realtime-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lastTime, lastID, err := st.GetConsumerOffset(context.Background(), realtimeConsumer)
	if err != nil {
		log.Printf("load offset error: %v", err)
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	var running int32

	go func() {
		log.Printf("realtime-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for range ticker.C {
			if !atomic.CompareAndSwapInt32(&running, 0, 1) {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			events, err := st.ListOutboxEventsSince(ctx, lastTime, lastID, cfg.PollBatchSize)
			cancel()
			if err == nil {
				for _, event := range events {
					lastTime = event.CreatedAt
					lastID = event.EventID
					meta := extractMeta(event.Payload)
					payload, _ := json.Marshal(sanitize(event))
					h.Broadcast(payload, meta)
				}
				if len(events) > 0 {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					if err := st.UpdateConsumerOffset(ctx, realtimeConsumer, lastTime, lastID); err != nil {
						log.Printf("update offset error: %v", err)
					}
					// Prune only what every consumer has moved past.
					notifyTime, _, err := st.GetConsumerOffset(ctx, notifierConsumer)
					if err != nil {
						log.Printf("notifier offset error: %v", err)
					} else if !notifyTime.IsZero() {
						cleanupBefore := lastTime
						if notifyTime.Before(cleanupBefore) {
							cleanupBefore = notifyTime
						}
						if _, err := st.DeleteOutboxEventsBefore(ctx, cleanupBefore.Add(-time.Minute)); err != nil {
							log.Printf("cleanup outbox error: %v", err)
						}
					}
					cancel()
				}
			}
			atomic.StoreInt32(&running, 0)
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

func sanitize(event store.OutboxEvent) eventEnvelope {
	var data map[string]interface{}
	_ = json.Unmarshal(event.Payload, &data)
	return eventEnvelope{
		Type:           event.Type,
		TrackingNumber: str(data["tracking_number"]),
		Status:         str(data["status"]),
		CreatedAt:      event.CreatedAt,
	}
}

// extractMeta routes an event: the tracking number reaches the public view,
// artisan ids reach candidate dashboards (offers and withdrawals alike).
func extractMeta(payload []byte) hub.Meta {
	var data map[string]interface{}
	if err := json.Unmarshal(payload, &data); err != nil {
		return hub.Meta{}
	}
	meta := hub.Meta{TrackingNumber: str(data["tracking_number"])}
	if id := str(data["artisan_id"]); id != "" {
		meta.ArtisanIDs = append(meta.ArtisanIDs, id)
	}
	if raw, ok := data["candidate_ids"].([]interface{}); ok {
		for _, value := range raw {
			if id := str(value); id != "" {
				meta.ArtisanIDs = append(meta.ArtisanIDs, id)
			}
		}
	}
	return meta
}

func str(value interface{}) string {
	if value == nil {
		return ""
	}
	if v, ok := value.(string); ok {
		return v
	}
	return ""
}

func sessionIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
