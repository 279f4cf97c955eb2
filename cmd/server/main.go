package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/rondo-space/venue-reservations/internal/cache"
	"github.com/rondo-space/venue-reservations/internal/config"
	"github.com/rondo-space/venue-reservations/internal/database"
	"github.com/rondo-space/venue-reservations/internal/handler"
	"github.com/rondo-space/venue-reservations/internal/middleware"
	"github.com/rondo-space/venue-reservations/internal/monitoring"
	"github.com/rondo-space/venue-reservations/internal/payment"
	"github.com/rondo-space/venue-reservations/internal/queue"
	"github.com/rondo-space/venue-reservations/internal/repository"
	"github.com/rondo-space/venue-reservations/internal/router"
	"github.com/rondo-space/venue-reservations/internal/service"
	"github.com/rondo-space/venue-reservations/internal/slot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := monitoring.InitTracer(ctx, cfg.Telemetry, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	resources := repository.NewResourceRepo(db)
	reservations := repository.NewReservationRepo(db)

	// Redis is optional: without it the projection reads the store directly
	// and the hold limiter is skipped.  A nil *redis.Client must not reach
	// the interface-typed parameters below.
	redisCfg, err := config.LoadRedisConfig()
	if err != nil {
		return err
	}
	cacheCfg, err := config.LoadProjectionCacheConfig()
	if err != nil {
		return err
	}
	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		return err
	}
	var (
		slotCache *cache.SlotCache
		limiter   echo.MiddlewareFunc
	)
	if rdb := config.NewRedisClient(redisCfg); rdb != nil {
		defer rdb.Close()
		slotCache = cache.NewSlotCache(cacheCfg, rdb)
		limiter = middleware.NewTokenBucket(rlCfg, rdb, logger)
	} else {
		logger.Warn("redis unreachable, running without slot cache and rate limiting", "addr", redisCfg.Address())
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	cal := service.Calendar{Policy: slot.Policy{HorizonDays: cfg.Booking.HorizonDays}, Location: loc}
	projection := service.NewProjection(resources, reservations, slotCache, cal, logger)

	signer := payment.NewSigner(cfg.Payment.SigningKey)
	opts := []service.EngineOption{
		service.WithHoldTTL(cfg.Booking.HoldTTL),
		service.WithCalendar(cal),
		service.WithPayments(payment.NewGateway(cfg.Payment, signer)),
		service.WithViewInvalidator(projection),
		service.WithLogger(logger),
	}
	if cfg.Broker.URL != "" {
		publisher := queue.NewPublisher(cfg.Broker.URL, cfg.Broker.Exchange, logger)
		defer publisher.Close()
		opts = append(opts, service.WithNotifier(publisher))
	}
	engine := service.NewEngine(resources, reservations, opts...)
	catalog := service.NewCatalog(resources, logger)
	sweeper := service.NewSweeper(reservations, projection, cfg.Booking.SweepInterval, cfg.Booking.SweepBatch, logger)

	go sweeper.Run(ctx)
	if cfg.Broker.URL != "" {
		consumer := queue.NewPaymentConsumer(cfg.Broker.URL, cfg.Broker.Exchange, cfg.Broker.PaymentQueue, signer, engine, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("payment consumer stopped", "error", err)
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", slog.Group("http", attrs...))
			return nil
		},
	}))

	resourceHandler := handler.NewResourceHandler(catalog)
	availabilityHandler := handler.NewAvailabilityHandler(projection)
	reservationHandler := handler.NewReservationHandler(engine, sweeper)

	router.RegisterRoutes(e, db)
	router.RegisterPublic(e, resourceHandler, availabilityHandler, cfg.JWTSecret)
	router.RegisterReservations(e, reservationHandler, cfg.JWTSecret, limiter)
	router.RegisterPayments(e, handler.NewPaymentHandler(signer, engine))
	router.RegisterAdmin(e, resourceHandler, availabilityHandler, reservationHandler, cfg.JWTSecret)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", "addr", addr, "env", cfg.Env, "db", cfg.DB.Driver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
