package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Old6Man6/Qtime/internal/accounts"
	"github.com/Old6Man6/Qtime/internal/accounts/sms"
	"github.com/Old6Man6/Qtime/internal/appointments"
	"github.com/Old6Man6/Qtime/internal/authz"
	"github.com/Old6Man6/Qtime/internal/consumer"
	"github.com/Old6Man6/Qtime/internal/directory"
	"github.com/Old6Man6/Qtime/internal/handlers"
	"github.com/Old6Man6/Qtime/internal/inbox"
	"github.com/Old6Man6/Qtime/internal/model"
	"github.com/Old6Man6/Qtime/internal/notifications"
	"github.com/Old6Man6/Qtime/internal/outbox"
	"github.com/Old6Man6/Qtime/internal/schedule"
	"github.com/Old6Man6/Qtime/internal/sessions"
	"github.com/Old6Man6/Qtime/libs/config"
	"github.com/Old6Man6/Qtime/libs/db"
	"github.com/Old6Man6/Qtime/libs/httpx"
	"github.com/Old6Man6/Qtime/libs/kafkax"
	otelx "github.com/Old6Man6/Qtime/libs/otel"
	"github.com/Old6Man6/Qtime/libs/runtime"
)

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	service := config.String("SERVICE_NAME", "qtime")
	port, err := config.Port("PORT", "8080")
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

	pool, err := db.Open(ctx, dbURL, int32(config.Int("DB_MAX_CONNS", 10)))
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: config.String("REDIS_ADDR", "localhost:6379"),
	})
	defer rdb.Close()

	// Repositories.
	users := accounts.NewUserRepository(pool)
	refreshRepo := sessions.NewRefreshRepository(pool)
	slotRepo := schedule.NewSlotRepository(pool)
	apptRepo := appointments.NewRepository(pool)
	directoryRepo := directory.NewRepository(pool)
	notificationRepo := notifications.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)

	// One-time codes go out through the SMS webhook when configured.
	var smsSender sms.Sender = sms.NewNoopSender()
	if url := config.String("SMS_WEBHOOK_URL", ""); url != "" {
		smsSender = sms.NewWebhookSender(url, config.String("SMS_WEBHOOK_TOKEN", ""))
	}
	otp := accounts.NewOTP(
		accounts.NewRedisCache(rdb),
		smsSender,
		config.Seconds("OTP_CODE_TTL_SECONDS", 2*time.Minute),
		config.Seconds("OTP_RESEND_COOLDOWN_SECONDS", 30*time.Second),
	)

	reserver := schedule.NewReserver(slotRepo)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	if strings.TrimSpace(brokers) != "" {
		notify := consumer.NotificationHandler(notificationRepo)
		for _, topic := range []string{
			outbox.EventUserRegistered,
			outbox.EventAppointmentBooked,
			outbox.EventAppointmentCancelled,
		} {
			eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
				Brokers: brokers,
				GroupID: config.String("KAFKA_GROUP_ID", "qtime"),
				Topic:   topic,
			}, notify)
			go eventConsumer.Run(ctx)
		}
	}

	refreshTTL := config.Seconds("REFRESH_TOKEN_TTL_SECONDS", 30*24*time.Hour)
	authHandler := handlers.NewAuthHandler(jwtSecret, users, otp, outboxRepo, refreshRepo, refreshTTL, logger)
	slotsHandler := handlers.NewSlotsHandler(slotRepo, directoryRepo, logger)
	apptHandler := handlers.NewAppointmentsHandler(apptRepo, slotRepo, reserver, outboxRepo, logger)
	directoryHandler := handlers.NewDirectoryHandler(directoryRepo, logger)
	notificationsHandler := handlers.NewNotificationsHandler(notificationRepo, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	}
	if strings.TrimSpace(brokers) != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	requireAuth := func(h http.HandlerFunc) http.Handler {
		return authz.RequireAuth(h, jwtSecret)
	}
	optionalAuth := func(h http.HandlerFunc) http.Handler {
		return authz.OptionalAuth(h, jwtSecret)
	}

	mux.HandleFunc("/api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("/api/v1/auth/token", authHandler.Token)
	mux.HandleFunc("/api/v1/auth/token/refresh", authHandler.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", authHandler.Logout)
	if isTruthy(config.String("OTP_LOGIN_ENABLED", "true")) {
		mux.HandleFunc("/api/v1/auth/otp/request", authHandler.RequestOTP)
		mux.HandleFunc("/api/v1/auth/otp/verify", authHandler.VerifyOTP)
	}

	mux.Handle("/api/v1/profile", requireAuth(authHandler.Profile))

	mux.Handle("/api/v1/available-times", optionalAuth(slotsHandler.AvailableTimes))

	mux.Handle("/api/v1/appointments", requireAuth(apptHandler.Collection))
	mux.Handle("/api/v1/appointments/provider", authz.RequireAuth(
		authz.RequireRole(http.HandlerFunc(apptHandler.Provider), model.RoleProvider, model.RoleAdmin), jwtSecret))
	mux.Handle("/api/v1/appointments/admin", authz.RequireAuth(
		authz.RequireRole(http.HandlerFunc(apptHandler.Admin), model.RoleAdmin), jwtSecret))
	mux.Handle("/api/v1/appointments/", requireAuth(apptHandler.Item))

	mux.Handle("/api/v1/branches", requireAuth(directoryHandler.Branches))
	mux.Handle("/api/v1/branches/", requireAuth(directoryHandler.BranchItem))
	mux.Handle("/api/v1/services", requireAuth(directoryHandler.Services))
	mux.Handle("/api/v1/services/", requireAuth(directoryHandler.ServiceItem))

	mux.Handle("/api/v1/notifications", requireAuth(notificationsHandler.List))
	mux.Handle("/api/v1/notifications/", requireAuth(notificationsHandler.MarkRead))

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS")),
			AllowedHeaders:   parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id")),
			AllowCredentials: isTruthy(config.String("CORS_ALLOW_CREDENTIALS", "false")),
			MaxAge:           10 * time.Minute,
		}),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(15 * time.Second),
	}
	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if rateLimit > 0 {
		if isTruthy(config.String("RATE_LIMIT_REDIS", "true")) {
			limiter := httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, service)
			middlewares = append(middlewares, limiter.Middleware(logger, true))
		} else {
			limiter := httpx.NewRateLimiter(rateLimit, time.Minute)
			middlewares = append(middlewares, limiter.Middleware())
		}
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
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
