package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"harmonie/backend/internal/availability"
	"harmonie/backend/internal/calendar"
	"harmonie/backend/internal/config"
	"harmonie/backend/internal/notify"
	"harmonie/backend/internal/observability/metrics"
	"harmonie/backend/internal/payment"
	"harmonie/backend/internal/reminder"
	"harmonie/backend/internal/service/booking"
	"harmonie/backend/internal/service/schedule"
	"harmonie/backend/internal/store"
	"harmonie/backend/internal/store/localstore"
	"harmonie/backend/internal/store/memory"
	"harmonie/backend/internal/store/postgres"
	"harmonie/backend/internal/store/redisstore"
	grpcTransport "harmonie/backend/internal/transport/grpc"
	httpTransport "harmonie/backend/internal/transport/http"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "harmonie-server"),
	)
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("env file load failed", slog.Any("err", err))
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "harmonie-server"),
	)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("store", string(cfg.StoreDriver)),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb redis.UniversalClient
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		}()
	}

	backend, closeStore, err := openStore(ctx, cfg, rdb, log)
	if err != nil {
		log.Error("store open failed", slog.Any("err", err), slog.String("store", string(cfg.StoreDriver)))
		os.Exit(1)
	}
	defer closeStore()

	scheduleSvc := schedule.NewService(backend, log)
	if _, err := scheduleSvc.Seed(ctx); err != nil {
		log.Error("slot template seed failed", slog.Any("err", err))
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBookingMetrics(reg)

	var sender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.MailFrom,
		FromName:  cfg.MailFromName,
	}, log); sg != nil {
		sender = sg
	} else {
		log.Info("sendgrid not configured; emails are logged only")
	}
	notifier := notify.NewService(sender, notify.Business{Name: cfg.Business.Name, Address: cfg.Business.Address}, log)

	var reminders reminder.Scheduler = reminder.NoopScheduler{}
	if rdb != nil {
		reminders = reminder.NewQueueScheduler(rdb, reminder.Config{
			Queue:    cfg.ReminderQueue,
			Lead:     cfg.ReminderLead,
			TimeZone: cfg.Business.TimeZone,
		}, log)
	} else {
		log.Info("redis not configured; reminders disabled")
	}

	engine := availability.NewEngine(
		availability.WithClosedWeekday(cfg.Business.ClosedWeekday),
		availability.WithStrictSubWindows(cfg.Business.StrictSubWindows),
	)
	bookingSvc := booking.NewService(backend, backend, engine,
		booking.WithNotifier(notifier),
		booking.WithReminders(reminders),
		booking.WithMetrics(bookingMetrics),
		booking.WithLogger(log),
		booking.WithClock(cfg.Business.TimeZone, time.Now),
	)

	var worker *reminder.Worker
	if rdb != nil {
		worker = reminder.NewWorker(rdb, reminder.WorkerConfig{Queue: cfg.ReminderQueue},
			reminder.NewHandler(bookingSvc, notifier, log), log)
		if err := worker.Start(); err != nil {
			log.Error("reminder worker start failed", slog.Any("err", err))
			os.Exit(1)
		}
		log.Info("reminder worker started", slog.String("queue", cfg.ReminderQueue))
	}

	var gateway payment.Gateway
	if cfg.StripeSecretKey != "" || cfg.StripeDryRun {
		gateway = payment.NewStripeGateway(payment.StripeConfig{SecretKey: cfg.StripeSecretKey, DryRun: cfg.StripeDryRun}, log)
	} else {
		log.Info("stripe not configured; online payment disabled")
	}

	if cfg.AdminToken == "" {
		log.Warn("admin token not configured; admin endpoints are open to any caller")
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcTransport.RateLimitInterceptor(cfg.GRPCRateLimit, cfg.GRPCRateBurst, log),
			grpcTransport.AdminTokenInterceptor(cfg.AdminToken, grpcTransport.AdminMethods, log),
			grpcTransport.DefaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout),
		),
	)
	grpcTransport.RegisterBookingServiceServer(grpcServer,
		grpcTransport.NewBookingServer(bookingSvc, scheduleSvc, gateway, cfg.Currency, log))

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpTransport.NewRouter(httpTransport.Config{
			Bookings: bookingSvc,
			Calendar: calendar.Options{
				BusinessName: cfg.Business.Name,
				Domain:       cfg.Business.Domain,
				Address:      cfg.Business.Address,
				TimeZone:     cfg.Business.TimeZone,
			},
			Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			Health: func(ctx context.Context) error {
				_, err := backend.LoadSlots(ctx)
				return err
			},
			AdminToken: cfg.AdminToken,
			Logger:     log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("servers started", slog.String("grpc_addr", cfg.GRPCAddr()), slog.String("http_addr", cfg.HTTPAddr))

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			exitCode = 1
		}
	}

	shutdown(log, grpcServer, httpServer, cfg.ShutdownTimeout)
	if worker != nil {
		worker.Shutdown()
	}
	if exitCode != 0 {
		closeStore()
		os.Exit(exitCode)
	}
}

// openStore returns the configured backend and a function that releases it.
func openStore(ctx context.Context, cfg config.Config, rdb redis.UniversalClient, log *slog.Logger) (store.Backend, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		s, err := localstore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using sqlite profile store", slog.String("path", cfg.SQLitePath))
		return s, func() {
			if err := s.Close(); err != nil {
				log.Warn("sqlite close failed", slog.Any("err", err))
			}
		}, nil

	case config.StorePostgres:
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			return nil, nil, err
		}
		if err := postgres.CheckSchema(ctx, db); err != nil {
			_ = postgres.Close(db)
			return nil, nil, err
		}
		return postgres.NewStore(db), func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}, nil

	case config.StoreRedis:
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, err
		}
		log.Info("using redis store", slog.String("redis_addr", cfg.RedisAddr))
		return redisstore.New(rdb, cfg.RedisKeyPrefix), func() {}, nil

	default:
		log.Warn("using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil
	}
}

func shutdown(log *slog.Logger, s *grpc.Server, h *http.Server, timeout time.Duration) {
	log.Info("shutting down servers", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := h.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed", slog.Any("err", err))
	}

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
