package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"salonsched/backend/internal/availability"
	"salonsched/backend/internal/config"
	"salonsched/backend/internal/events"
	"salonsched/backend/internal/metrics"
	"salonsched/backend/internal/ratelimit"
	"salonsched/backend/internal/runtime"
	"salonsched/backend/internal/service/booking"
	"salonsched/backend/internal/service/kiosk"
	"salonsched/backend/internal/service/waitlist"
	"salonsched/backend/internal/store"
	"salonsched/backend/internal/store/memory"
	"salonsched/backend/internal/store/postgres"
	"salonsched/backend/internal/telemetry"
	grpcTransport "salonsched/backend/internal/transport/grpc"
)

// backend is everything the services need from storage. Both the postgres
// and the in-memory store provide it.
type backend interface {
	store.Directory
	store.ScheduleStore
	store.AppointmentRepository
	store.WaitlistRepository
	store.Outbox
}

type serveOptions struct {
	memory   bool
	seedPath string
}

func serveCmd(configPath *string) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC scheduler and the event relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cfg, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.memory, "memory", false, "Use the in-memory store instead of postgres")
	cmd.Flags().StringVar(&opts.seedPath, "seed", "", "Seed file (yaml) loaded into the in-memory store")
	return cmd
}

func serve(cfg config.Config, opts serveOptions) error {
	log := runtime.NewLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSamplingRatio,
	})
	if err != nil {
		log.Error("otel setup failed", slog.Any("err", err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCListenAddr()),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("log_level", cfg.LogLevel),
		slog.Bool("memory_store", opts.memory),
	)

	var checks []runtime.ReadyCheck
	var st backend
	if opts.memory {
		mem := memory.New()
		if opts.seedPath != "" {
			seed, err := memory.LoadSeedFile(opts.seedPath)
			if err != nil {
				return err
			}
			if err := mem.Apply(seed); err != nil {
				return fmt.Errorf("apply seed: %w", err)
			}
			log.Info("seed loaded", slog.String("path", opts.seedPath), slog.Int("salons", len(seed.Salons)))
		}
		st = mem
	} else {
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			return err
		}
		defer func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}()
		st = postgres.NewStore(db)
		checks = append(checks, runtime.ReadyCheck{Name: "postgres", Check: postgres.ReadyCheck(db)})
	}

	m := metrics.New()
	loc := cfg.Location()

	calc := availability.NewCalculator(st, st, st, availability.Config{
		DefaultLocation:    loc,
		DefaultGranularity: cfg.DefaultSlotGranularity,
		DefaultMinLeadTime: cfg.DefaultMinLeadTime,
	}, availability.WithLogger(log), availability.WithMetrics(m))
	bookings := booking.NewManager(st, st, st, booking.Config{
		DefaultLocation:    loc,
		DefaultMinLeadTime: cfg.DefaultMinLeadTime,
	}, booking.WithLogger(log), booking.WithMetrics(m))
	queue := waitlist.NewQueue(st, st, waitlist.Config{
		DefaultWaitPerParty: cfg.DefaultWaitPerParty,
	}, waitlist.WithLogger(log), waitlist.WithMetrics(m))
	adapter := kiosk.NewAdapter(st, st, bookings, queue, kiosk.WithLogger(log), kiosk.WithDefaultLocation(loc))

	var counter ratelimit.Counter
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis.url: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		defer func() { _ = rdb.Close() }()
		counter = ratelimit.NewRedisCounter(rdb)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: ratelimit.ReadyCheck(rdb)})
		log.Info("rate limiting enabled (redis)", slog.Int("per_minute", cfg.RateLimitKioskPerMinute), slog.String("redis_addr", redisOpts.Addr))
	} else {
		counter = ratelimit.NewMemoryCounter()
		log.Info("rate limiting enabled (in-memory)", slog.Int("per_minute", cfg.RateLimitKioskPerMinute))
	}
	limiter := ratelimit.NewLimiter(counter, ratelimit.Config{
		Limit:    cfg.RateLimitKioskPerMinute,
		Window:   time.Minute,
		Prefix:   serviceName + ":rl",
		FailOpen: cfg.RateLimitFailOpen,
	}, log, m)

	sink, err := events.NewSink(cfg.EventsSink, cfg.KafkaBrokers, cfg.NATSURL, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn("event sink close failed", slog.Any("err", err))
		}
	}()
	switch s := sink.(type) {
	case *events.KafkaSink:
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: events.KafkaReadyCheck(cfg.KafkaBrokers)})
	case *events.NATSSink:
		checks = append(checks, runtime.ReadyCheck{Name: "nats", Check: s.Ready})
	}
	relay := events.NewRelay(st, sink, log.With(slog.String("component", "events.relay")), m, events.RelayConfig{
		PollEvery: cfg.EventsPollEvery,
		BatchSize: cfg.EventsBatchSize,
	})

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			grpcTransport.RecoveryInterceptor(log),
			grpcTransport.DefaultTimeoutInterceptor(cfg.GRPCRequestTimeout),
			limiter.UnaryServerInterceptor(grpcTransport.MethodKioskLookup, grpcTransport.MethodAvailableSlots),
		),
	)
	grpcTransport.RegisterSchedulerServer(grpcServer, grpcTransport.NewServer(calc, bookings, queue, adapter, log))

	lis, err := net.Listen("tcp", cfg.GRPCListenAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCListenAddr()))
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           runtime.NewMux(m.Handler(), checks...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	relayCtx, stopRelay := context.WithCancel(ctx)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(relayCtx)
	}()

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	if strings.TrimSpace(cfg.HTTPAddr) != "" {
		go func() {
			log.Info("http server starting", slog.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCListenAddr()))

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			runErr = err
		}
	}

	shutdown(log, grpcServer, cfg.ShutdownTimeout)

	httpCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		log.Warn("http server shutdown failed", slog.Any("err", err))
	}

	stopRelay()
	<-relayDone
	// Final pass for events committed while the servers drained.
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelFlush()
	if n, err := relay.RunOnce(flushCtx); err != nil {
		log.Warn("final relay pass failed", slog.Int("published", n), slog.Any("err", err))
	}

	return runErr
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}
