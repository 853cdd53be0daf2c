package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/tableservice/internal/config"
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/kiwari-pos/tableservice/internal/logging"
	"github.com/kiwari-pos/tableservice/internal/notify"
	"github.com/kiwari-pos/tableservice/internal/printqueue"
	"github.com/kiwari-pos/tableservice/internal/router"
	"github.com/kiwari-pos/tableservice/internal/schedule"
	"github.com/kiwari-pos/tableservice/internal/service"
	"github.com/kiwari-pos/tableservice/internal/telemetry"
	"github.com/kiwari-pos/tableservice/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer shutdownTracing(context.Background()) //nolint:errcheck

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Connected to database")

	// Post-commit events fan out to websocket rooms and, when configured, AMQP.
	hub := ws.NewHub()
	go hub.Run(ctx)

	sinks := []notify.Sink{hub}
	if cfg.AMQPURL != "" {
		conn, ch, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("Unable to connect to AMQP: %v", err)
		}
		defer conn.Close()
		defer ch.Close()
		sinks = append(sinks, notify.NewAMQPSink(ch, cfg.AMQPExchange))
		log.Printf("Publishing events to AMQP exchange %s", cfg.AMQPExchange)
	}
	batcher := notify.NewBatcher(cfg.NotifyBuffer, cfg.NotifyFlushInterval, logger, sinks...)
	notifierDone := make(chan struct{})
	go func() {
		defer close(notifierDone)
		batcher.Run(ctx)
	}()

	coord := service.NewCoordinator(pool, func(db database.DBTX) service.Store {
		return database.New(db)
	}, service.CoordinatorConfig{
		CoverCharge:      cfg.CoverCharge(),
		PrintMaxAttempts: cfg.PrintMaxAttempts,
		Notifier:         batcher,
		Logger:           logger,
	})
	queue := printqueue.NewQueue(pool, func(db database.DBTX) printqueue.Store {
		return database.New(db)
	}, printqueue.Config{
		MaxAttempts: cfg.PrintMaxAttempts,
		Notifier:    batcher,
		Logger:      logger,
	})

	// Abandoned tablet sessions: clear stale table locks on a schedule.
	var sched *schedule.Scheduler
	if cfg.LockSweepSchedule != "" {
		sched = schedule.New(logger, time.Minute)
		err := sched.Add(cfg.LockSweepSchedule, "sweep-table-locks", func(ctx context.Context) error {
			_, err := coord.SweepExpiredLocks(ctx, cfg.LockTTL)
			return err
		})
		if err != nil {
			log.Fatalf("Invalid LOCK_SWEEP_SCHEDULE: %v", err)
		}
		sched.Start()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router.New(cfg, coord, queue, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: http shutdown: %v", err)
	}
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	select {
	case <-notifierDone:
	case <-shutdownCtx.Done():
	}
	if n := batcher.Dropped(); n > 0 {
		log.Printf("WARNING: notifier dropped %d events", n)
	}
}
