package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"parkspace/internal/api"
	"parkspace/internal/auth"
	"parkspace/internal/config"
	"parkspace/internal/db"
	"parkspace/internal/events"
	"parkspace/internal/logger"
	"parkspace/internal/ratelimit"
	"parkspace/internal/repository"
	"parkspace/internal/service"
	"parkspace/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  "parkspace",
		OTLPEndpoint: cfg.OTelEndpoint,
	})
	if err != nil {
		return err
	}

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn); err != nil {
		return err
	}

	loc, err := time.LoadLocation(cfg.ReferenceTimezone)
	if err != nil {
		return err
	}

	resourceRepo := repository.NewResourceRepository(conn)
	bookingRepo := repository.NewBookingRepository(conn)
	stripeRepo := repository.NewStripeRepository(conn)
	jobRepo := repository.NewJobRepository(conn)

	publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, zl)
	defer publisher.Close()

	if cfg.StripeSecretKey == "" {
		zl.Warn("STRIPE_SECRET_KEY not set, payments will fail")
	}
	stripeService := service.NewStripeService(service.StripeConfig{
		SecretKey:   cfg.StripeSecretKey,
		Timeout:     cfg.ProcessorTimeout,
		ReadRetries: cfg.ProcessorReadRetries,
		SuccessURL:  cfg.CheckoutSuccessURL,
		CancelURL:   cfg.CheckoutCancelURL,
	}, zl)

	availabilityService := service.NewAvailabilityService(resourceRepo, service.AvailabilityConfig{
		DefaultLocation: loc,
		EnforceSchedule: cfg.EnforceAvailability,
		MaxSegments:     cfg.MaxSegments,
	}, zl)
	bookingService := service.NewBookingService(service.BookingDeps{
		Availability: availabilityService,
		Resources:    resourceRepo,
		Store:        bookingRepo,
		Records:      stripeRepo,
		Processor:    stripeService,
		Publisher:    publisher,
		Notifier:     newNotifier(cfg, loc, zl),
	}, service.BookingConfig{
		RefundCutoff:   cfg.RefundCutoff,
		CommissionRate: cfg.DefaultCommissionRate,
		HoldTimeout:    cfg.PaymentHoldTimeout,
	}, zl)
	jobService := service.NewJobService(jobRepo, bookingService, stripeService, publisher, cfg.PaymentHoldTimeout, zl)

	readiness := []api.ReadyCheck{{Name: "postgres", Check: conn.PingContext}}
	var createLimit api.Middleware
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		readiness = append(readiness, api.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		limiter := ratelimit.New(rdb, cfg.RateLimitPerMinute, time.Minute, zl)
		createLimit = limiter.Middleware(func(r *http.Request) string {
			id, _ := auth.UserID(r.Context())
			return id
		})
	} else {
		zl.Info("REDIS_URL not set, booking creation is not rate limited")
	}
	if cfg.CronSecretHash == "" {
		zl.Warn("CRON_SECRET_HASH not set, /api/jobs/expire is disabled")
	}

	router := api.NewRouter(api.Handlers{
		Availability: api.NewAvailabilityHandler(availabilityService, zl),
		Bookings:     api.NewUserBookingHandler(bookingService, zl),
		Jobs:         api.NewJobHandler(jobService, zl),
		Stripe:       api.NewStripeWebhookHandler(cfg.StripeWebhookSecret, cfg.StripeWebhookTolerance, bookingService, zl),
		Health:       api.NewHealthHandler(zl, readiness...),
	}, api.RouterConfig{
		Authenticate: auth.NewAuthenticator(cfg.JWTSecret, zl).Middleware,
		CronAuth:     auth.CronSecret(cfg.CronSecretHash, zl),
		CreateLimit:  createLimit,
	})

	var handler http.Handler = router
	handler = logger.AccessLog(zl)(handler)
	handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(zl)),
		handlers.PrintRecoveryStack(true),
	)(handler)
	handler = handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSAllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(handler)
	handler = otelhttp.NewHandler(handler, "parkspace.http")

	scheduler := cron.New()
	if err := jobService.Schedule(scheduler, cfg.SweepSchedule); err != nil {
		return err
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		zl.Info("server running", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		zl.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown", zap.Error(err))
	}
	<-scheduler.Stop().Done()
	if err := shutdownTracing(shutdownCtx); err != nil {
		zl.Warn("tracing shutdown", zap.Error(err))
	}
	return nil
}

// newNotifier returns nil when no channel is configured.
func newNotifier(cfg config.Config, loc *time.Location, zl *zap.Logger) service.Notifier {
	if !cfg.NotificationsEnabled() {
		return nil
	}
	var (
		email service.EmailSender
		sms   service.SMSSender
	)
	if cfg.SendGridAPIKey != "" {
		email = service.NewSendGridMailer(cfg.SendGridAPIKey, cfg.SendGridFrom)
	}
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		sms = service.NewTwilioTexter(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom)
	}
	return service.NewSenderService(email, sms, loc, zl)
}
