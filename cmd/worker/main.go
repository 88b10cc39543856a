package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ken-Obieze/travel-tasks/internal/broker"
	"github.com/Ken-Obieze/travel-tasks/internal/config"
	"github.com/Ken-Obieze/travel-tasks/internal/db"
	"github.com/Ken-Obieze/travel-tasks/internal/dedup"
	"github.com/Ken-Obieze/travel-tasks/internal/health"
	"github.com/Ken-Obieze/travel-tasks/internal/logging"
	"github.com/Ken-Obieze/travel-tasks/internal/mailer"
	"github.com/Ken-Obieze/travel-tasks/internal/metrics"
	"github.com/Ken-Obieze/travel-tasks/internal/notify"
	"github.com/Ken-Obieze/travel-tasks/internal/store"
	"github.com/Ken-Obieze/travel-tasks/internal/task"
	"github.com/Ken-Obieze/travel-tasks/internal/tracing"
	"github.com/Ken-Obieze/travel-tasks/internal/worker"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("traveltasks-worker")

	shutdownTracing, err := tracing.Init(ctx, "traveltasks-worker")
	if err != nil {
		logger.Plain().WithError(err).Fatal("tracing init failed")
	}
	defer shutdownTracing()

	// System of record
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	// Prom metrics + health
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool, cfg.NSQ.NsqdHTTPAddr))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Worker.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	// Task registry: names must resolve before any worker starts.
	registry := task.NewRegistry()
	policy := task.RetryPolicy{
		MaxRetries:   cfg.Worker.MaxRetries,
		BaseDelay:    cfg.Worker.BaseDelay,
		Backoff:      task.BackoffExponential,
		DelayCeiling: cfg.Worker.DelayCeiling,
	}
	st := store.New(pool)
	handlers := &notify.Handlers{
		Bookings: st,
		Payments: st,
		Mail:     mailer.NewSMTP(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.From),
		Log:      logger,
	}
	if err := handlers.Register(registry, policy); err != nil {
		logger.Plain().WithError(err).Fatal("task registration failed")
	}
	if err := registry.ValidateNames(
		notify.TaskBookingConfirmation,
		notify.TaskPaymentConfirmation,
		notify.TaskPaymentFailed,
	); err != nil {
		logger.Plain().WithError(err).Fatal("task name validation failed")
	}

	// Broker transport
	pub, err := broker.NewNSQPublisher(cfg.NSQ.NsqdTCPAddr)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq producer failed")
	}
	defer pub.Stop()
	consumer := broker.NewNSQConsumer(cfg.NSQ.NsqdTCPAddr, cfg.NSQ.LookupHTTPAddr)

	// Optional envelope-id dedup
	var deduper dedup.Deduper = dedup.None{}
	if cfg.Redis.Enabled {
		rd := dedup.NewRedis(cfg.Redis.Addr, cfg.Redis.DedupTTL)
		if err := rd.Ping(ctx); err != nil {
			logger.Plain().WithError(err).Fatal("redis connect failed")
		}
		defer rd.Close()
		deduper = rd
	}

	wp := worker.New(registry, pub, pub, consumer, logger, worker.Options{
		Concurrency: cfg.Worker.Concurrency,
		Channel:     cfg.NSQ.WorkerChannel,
		DLQSuffix:   cfg.NSQ.DLQSuffix,
		ExecTimeout: cfg.Worker.ExecTimeout,
		Dedup:       deduper,
	})
	if err := wp.Start(ctx); err != nil {
		logger.Plain().WithError(err).Fatal("worker start failed")
	}
	logger.Plain().Info("worker service started")

	// Graceful stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down worker service")
	wp.Stop(cfg.Worker.GracePeriod)
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("worker service stopped")
}
