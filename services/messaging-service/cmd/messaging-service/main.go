package main

import (
	"context"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wellnest-app/wellnest/libs/auth"
	"github.com/wellnest-app/wellnest/libs/config"
	"github.com/wellnest-app/wellnest/libs/db"
	"github.com/wellnest-app/wellnest/libs/httpx"
	"github.com/wellnest-app/wellnest/libs/kafkax"
	otelx "github.com/wellnest-app/wellnest/libs/otel"
	"github.com/wellnest-app/wellnest/libs/runtime"
	"github.com/wellnest-app/wellnest/services/messaging-service/internal/consumer"
	"github.com/wellnest-app/wellnest/services/messaging-service/internal/handlers"
	"github.com/wellnest-app/wellnest/services/messaging-service/internal/inbox"
	"github.com/wellnest-app/wellnest/services/messaging-service/internal/messaging"
	"github.com/wellnest-app/wellnest/services/messaging-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "messaging-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	messages := storage.NewMessageRepository(pool)
	inboxRepo := inbox.NewRepository(pool)

	brokers := config.String("KAFKA_BROKERS", "")
	if brokers != "" {
		statusConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "messaging-service"),
			Topic:   config.String("KAFKA_CONSUME_TOPIC", "appointment.status.changed.v1"),
		}, func(ctx context.Context, msg kafka.Message) error {
			sysMsg, err := messaging.SystemMessageFromStatusEvent(msg.Value)
			if err != nil {
				// Malformed payloads are logged and skipped, not retried.
				logger.Error("invalid status event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if sysMsg == nil {
				return nil
			}
			return messages.Insert(ctx, sysMsg)
		})
		go statusConsumer.Run(ctx)
	}

	h := handlers.NewMessageHandler(messages, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)

	authed := func(next http.Handler) http.Handler {
		return auth.RequireAuth(next, jwtSecret)
	}
	mux.Handle("POST /api/v1/groups/{id}/messages", authed(http.HandlerFunc(h.Post)))
	mux.Handle("GET /api/v1/groups/{id}/messages", authed(http.HandlerFunc(h.List)))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(256<<10),
		httpx.WithTimeout(10*time.Second),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "messaging")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
