package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"spa-system/internal/config"
	"spa-system/internal/dispatch"
	"spa-system/internal/httpapi"
	"spa-system/internal/hub"
	"spa-system/internal/store"
	"spa-system/internal/store/postgres"
	"spa-system/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("spa-service")
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

	st := postgres.NewStore(pool, postgres.Options{
		DefaultPaymentMethod: cfg.DefaultPaymentMethod,
	})
	h := hub.New()
	handler := httpapi.NewHandler(st)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:      cfg.RateLimitPerMinute,
		IPBurst:          cfg.RateLimitBurst,
		SessionPerMinute: cfg.SessionRateLimitPerMinute,
		SessionBurst:     cfg.SessionRateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", newRealtimeHandler(st, h))
	mux.Handle("/", httpapi.AuthMiddleware(st, handler.Routes()))

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "spa-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())
	defer stopDispatcher()
	dispatcher := dispatch.NewDispatcher(st, h, cfg.DispatchPollInterval, cfg.DispatchBatchSize)
	go func() {
		if err := dispatcher.Run(dispatcherCtx); err != nil && dispatcherCtx.Err() == nil {
			log.Fatalf("dispatcher error: %v", err)
		}
	}()

	go func() {
		log.Printf("spa-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopDispatcher()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func newRealtimeHandler(st store.TransactionStore, h *hub.Hub) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		role := roleForSession(st, session.Request())

		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
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
			topic, ok := hub.ParseTopic(parsed.Topic)
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.Unsubscribe(client, topic)
				continue
			}
			if !canSubscribe(role, topic) {
				_ = session.Close(4003, "access denied")
				return
			}
			h.Subscribe(client, topic)
		}
	})
}

// roleForSession resolves the station role behind a realtime connection.
// Connections without a session stay anonymous and may only follow public
// topics.
func roleForSession(st store.TransactionStore, r *http.Request) string {
	sessionID := realtimeSessionID(r)
	if sessionID == "" {
		return ""
	}
	session, err := st.GetSession(context.Background(), sessionID)
	if err != nil {
		return ""
	}
	return session.Role
}

func canSubscribe(role string, topic hub.Topic) bool {
	switch topic.Kind {
	case hub.TopicTherapistQueue:
		return role == store.RoleTherapist
	case hub.TopicCashierQueue:
		return role == store.RoleCashier
	default:
		// Monitor boards and kiosk follow-up views are unauthenticated.
		return true
	}
}

func realtimeSessionID(r *http.Request) string {
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
