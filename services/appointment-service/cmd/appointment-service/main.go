package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wellnest-app/wellnest/libs/auth"
	"github.com/wellnest-app/wellnest/libs/config"
	"github.com/wellnest-app/wellnest/libs/db"
	"github.com/wellnest-app/wellnest/libs/httpx"
	"github.com/wellnest-app/wellnest/libs/kafkax"
	otelx "github.com/wellnest-app/wellnest/libs/otel"
	"github.com/wellnest-app/wellnest/libs/outbox"
	"github.com/wellnest-app/wellnest/libs/runtime"
	"github.com/wellnest-app/wellnest/services/appointment-service/internal/appointment"
	"github.com/wellnest-app/wellnest/services/appointment-service/internal/email"
	"github.com/wellnest-app/wellnest/services/appointment-service/internal/handlers"
	"github.com/wellnest-app/wellnest/services/appointment-service/internal/notify"
	"github.com/wellnest-app/wellnest/services/appointment-service/internal/storage"
)

// Roles allowed to mutate appointments. Clients book through Create; lifecycle
// changes stay with staff.
var specialistRoles = []string{"trainer", "nutritionist", "therapist", "psychologist", "admin"}

func main() {
	service := config.String("SERVICE_NAME", "appointment-service")
	port, err := config.Port("PORT", "8081")
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

	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	repo := storage.NewAppointmentRepository(pool, outboxRepo)
	svc := appointment.NewService(repo)

	sender := email.NewSMTPSender(
		config.String("SMTP_HOST", "localhost"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@wellnest.local"),
	)
	dispatcher := notify.NewDispatcher(sender, storage.NewNotificationsRepository(pool, outboxRepo), logger)

	h := handlers.NewAppointmentHandler(svc, dispatcher, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)

	staffOnly := func(next http.Handler) http.Handler {
		return auth.RequireAuth(auth.RequireRole(next, specialistRoles...), jwtSecret)
	}
	authed := func(next http.Handler) http.Handler {
		return auth.RequireAuth(next, jwtSecret)
	}

	mux.Handle("GET /api/v1/appointments", authed(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/v1/appointments", authed(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/v1/appointments/{id}", authed(http.HandlerFunc(h.Get)))
	mux.Handle("PUT /api/v1/appointments/{id}", staffOnly(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/v1/appointments/{id}", staffOnly(http.HandlerFunc(h.Delete)))

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(15 * time.Second),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}),
	}

	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL; falling back to in-memory rate limiting", "err", err)
			middlewares = append(middlewares, httpx.NewRateLimiter(120, time.Minute).Middleware())
		} else {
			rdb := redis.NewClient(opts)
			defer rdb.Close()
			limiter := httpx.NewRedisRateLimiter(rdb, 120, time.Minute, service)
			middlewares = append(middlewares, limiter.Middleware(logger, true))
		}
	} else {
		middlewares = append(middlewares, httpx.NewRateLimiter(120, time.Minute).Middleware())
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "appointment")

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
