package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuttime/reminder-service/internal/handlers"
	"github.com/cuttime/reminder-service/internal/jobs"
	"github.com/cuttime/reminder-service/internal/outbox"
	"github.com/cuttime/reminder-service/internal/push"
	"github.com/cuttime/reminder-service/internal/scan"
	"github.com/cuttime/reminder-service/internal/storage"
	"github.com/cuttime/reminder-service/libs/config"
	"github.com/cuttime/reminder-service/libs/db"
	"github.com/cuttime/reminder-service/libs/httpx"
	"github.com/cuttime/reminder-service/libs/kafkax"
	otelx "github.com/cuttime/reminder-service/libs/otel"
	"github.com/cuttime/reminder-service/libs/runtime"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "reminder-service")
	port, err := config.Port("PORT", "8088")
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

	// Push gateway credentials are the one hard requirement; without them
	// the service cannot deliver anything.
	appID, err := config.RequiredString("PUSH_APP_ID")
	if err != nil {
		panic(err)
	}
	apiKey, err := config.RequiredString("PUSH_API_KEY")
	if err != nil {
		panic(err)
	}
	sender := push.NewClient(push.Config{
		URL:         config.String("PUSH_GATEWAY_URL", "https://onesignal.com/api/v1/notifications"),
		AppID:       appID,
		APIKey:      apiKey,
		AccentColor: config.String("PUSH_ACCENT_COLOR", ""),
	})

	loc, err := config.UTCOffset("SCHEDULE_UTC_OFFSET", "+02:00")
	if err != nil {
		panic(err)
	}

	// The database is optional: without it the scan and dispatch cycles
	// skip and only the manual notify endpoint does real work.
	var pool *db.Pool
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err = db.OpenLazy(ctx, dbURL)
		if err != nil {
			logger.Error("db pool init failed", "err", err)
			pool = nil
		} else {
			defer pool.Close()
		}
	} else {
		logger.Warn("DATABASE_URL not set; reminder scheduling disabled")
	}

	outboxRepo := outbox.NewRepository(pool)
	jobStore := jobs.NewStore(pool, outboxRepo)
	repo := storage.NewAppointmentRepository(pool, jobStore, outboxRepo)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		Topic:     config.String("KAFKA_OUTBOX_TOPIC", "reminder.events"),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	planner := scan.NewPlanner(repo, logger, loc, scan.PlannerConfig{
		Interval:  config.Duration("SCAN_INTERVAL", 5*time.Minute),
		BatchSize: config.Int("SCAN_BATCH_SIZE", 100),
	})
	go planner.Run(ctx)

	dispatcher := jobs.NewDispatcher(jobStore, sender, logger, jobs.DispatcherConfig{
		Interval:  config.Duration("DISPATCH_INTERVAL", time.Minute),
		BatchSize: config.Int("DISPATCH_BATCH_SIZE", 50),
	})
	go dispatcher.Run(ctx)

	directScanner := scan.NewDirectScanner(repo, sender, logger, loc, scan.DirectScannerConfig{
		Interval:  config.Duration("DIRECT_SCAN_INTERVAL", time.Minute),
		BatchSize: config.Int("DIRECT_SCAN_BATCH_SIZE", 200),
	})
	go directScanner.Run(ctx)

	confirmationNotifier := scan.NewConfirmationNotifier(repo, sender, logger, scan.ConfirmationNotifierConfig{
		Interval:  config.Duration("CONFIRMATION_INTERVAL", 5*time.Minute),
		BatchSize: config.Int("CONFIRMATION_BATCH_SIZE", 10),
	})
	go confirmationNotifier.Run(ctx)

	var checks []runtime.ReadyCheck
	if pool != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	}
	if strings.TrimSpace(brokers) != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)

	apptHandler := handlers.NewAppointmentsHandler(repo, jobStore, outboxRepo, logger, loc)
	notifyHandler := handlers.NewNotifyHandler(sender, logger)
	mux.HandleFunc("/api/v1/appointments", apptHandler.List)
	mux.HandleFunc("/api/v1/appointments/book", apptHandler.Book)
	mux.HandleFunc("/api/v1/appointments/approve", apptHandler.Approve)
	mux.HandleFunc("/api/v1/appointments/confirm", apptHandler.Confirm)
	mux.HandleFunc("/api/v1/notify", notifyHandler.Notify)

	bodyLimit := int64(1 << 20) // 1MB
	if v, err := strconv.Atoi(config.String("REQUEST_BODY_LIMIT_BYTES", "1048576")); err == nil && v > 0 {
		bodyLimit = int64(v)
	}
	requestTimeout := 10 * time.Second
	if v, err := strconv.Atoi(config.String("REQUEST_TIMEOUT_SECONDS", "10")); err == nil && v > 0 {
		requestTimeout = time.Duration(v) * time.Second
	}
	limitPerMinute := 60
	if v, err := strconv.Atoi(config.String("RATE_LIMIT_PER_MINUTE", "60")); err == nil && v > 0 {
		limitPerMinute = v
	}

	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB := 0
		if v, err := strconv.Atoi(config.String("REDIS_DB", "0")); err == nil && v >= 0 {
			redisDB = v
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, isTruthy(config.String("RATE_LIMIT_FAIL_OPEN", "true")))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS")),
			AllowedHeaders:   parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id")),
			AllowCredentials: isTruthy(config.String("CORS_ALLOW_CREDENTIALS", "false")),
			MaxAge:           time.Duration(corsMaxAgeSeconds()) * time.Second,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecovery(logger),
		httpx.WithBodyLimit(bodyLimit),
		httpx.WithTimeout(requestTimeout),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "reminder")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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

func isTruthy(s string) bool {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func corsMaxAgeSeconds() int {
	value := 600
	if v, err := strconv.Atoi(config.String("CORS_MAX_AGE_SECONDS", "600")); err == nil && v > 0 {
		value = v
	}
	return value
}
