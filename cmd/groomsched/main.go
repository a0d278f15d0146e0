package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pawprint-labs/groomsched/internal/audit"
	"github.com/pawprint-labs/groomsched/internal/availability"
	"github.com/pawprint-labs/groomsched/internal/booking"
	"github.com/pawprint-labs/groomsched/internal/handlers"
	"github.com/pawprint-labs/groomsched/internal/outbox"
	"github.com/pawprint-labs/groomsched/internal/reschedule"
	"github.com/pawprint-labs/groomsched/internal/storage"
	"github.com/pawprint-labs/groomsched/libs/config"
	"github.com/pawprint-labs/groomsched/libs/db"
	"github.com/pawprint-labs/groomsched/libs/httpx"
	"github.com/pawprint-labs/groomsched/libs/kafkax"
	otelx "github.com/pawprint-labs/groomsched/libs/otel"
	"github.com/pawprint-labs/groomsched/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func parseReminderOffsets(raw string, logger *slog.Logger) []time.Duration {
	var offsets []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			logger.Warn("invalid reminder offset", "value", part)
			continue
		}
		offsets = append(offsets, time.Duration(mins)*time.Minute)
	}
	if len(offsets) == 0 {
		offsets = []time.Duration{24 * time.Hour, time.Hour}
	}
	return offsets
}

func main() {
	service := config.String("SERVICE_NAME", "groomsched")
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
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository(pool)
	catalogRepo := storage.NewCatalogRepository(pool)
	scheduleRepo := storage.NewScheduleRepository(pool)
	appointmentRepo := storage.NewAppointmentRepository(pool, outboxRepo)
	linkRepo := storage.NewLinkRepository(pool, outboxRepo)
	auditRepo := audit.NewRepository(pool)

	generator := availability.NewGenerator(
		storage.NewSlotSource(catalogRepo, scheduleRepo, appointmentRepo),
		logger,
	)

	offsets := parseReminderOffsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,60"), logger)
	bookingSvc := booking.NewService(catalogRepo, appointmentRepo, generator, auditRepo, logger, offsets)
	rescheduleSvc := reschedule.NewService(linkRepo, appointmentRepo, catalogRepo, generator, auditRepo, logger,
		config.String("RESCHEDULE_BASE_URL", "http://localhost:"+port))

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	appointmentHandler := handlers.NewAppointmentHandler(bookingSvc, generator, logger)
	rescheduleHandler := handlers.NewRescheduleHandler(rescheduleSvc, logger)
	auditHandler := handlers.NewAuditHandler(auditRepo, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	// Unauthenticated endpoints get a per-client rate limit when Redis is
	// configured; without it they run unthrottled (dev mode).
	public := func(h http.HandlerFunc) http.Handler { return h }
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT_PER_MINUTE", 60),
			time.Minute,
			service,
		)
		limit := limiter.Middleware(logger, true)
		public = func(h http.HandlerFunc) http.Handler { return limit(h) }
	}

	mux.Handle("/api/v1/public/slots", public(appointmentHandler.Slots))
	mux.Handle("/api/v1/public/book", public(appointmentHandler.Book))
	mux.Handle("/api/v1/public/reschedule", public(rescheduleHandler.Apply))
	mux.HandleFunc("/api/v1/appointments", appointmentHandler.List)
	mux.HandleFunc("/api/v1/appointments/update", appointmentHandler.Update)
	mux.HandleFunc("/api/v1/appointments/cancel", appointmentHandler.Cancel)
	mux.HandleFunc("/api/v1/reschedule-links", rescheduleHandler.CreateLink)
	mux.HandleFunc("/api/v1/audit-events", auditHandler.ListRecent)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", "*"), ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		}),
	)
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
