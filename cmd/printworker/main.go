package main

import (
	"context"
	"log"
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
	"github.com/kiwari-pos/tableservice/internal/schedule"
	"github.com/kiwari-pos/tableservice/internal/telemetry"
)

func main() {
	cfg, err := config.LoadWorker()
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

	profile := printqueue.DefaultProfile("tickets")
	if cfg.PrinterProfile != "" {
		if profile, err = printqueue.LoadProfile(cfg.PrinterProfile); err != nil {
			log.Fatalf("Failed to load printer profile: %v", err)
		}
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}

	// The worker has no websocket clients; job updates reach the tablets
	// through AMQP when it is configured.
	var notifier notify.Notifier = notify.Nop{}
	var batcher *notify.Batcher
	if cfg.AMQPURL != "" {
		conn, ch, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("Unable to connect to AMQP: %v", err)
		}
		defer conn.Close()
		defer ch.Close()
		batcher = notify.NewBatcher(0, 0, logger, notify.NewAMQPSink(ch, cfg.AMQPExchange))
		go batcher.Run(ctx)
		notifier = batcher
	}

	queue := printqueue.NewQueue(pool, func(db database.DBTX) printqueue.Store {
		return database.New(db)
	}, printqueue.Config{
		MaxAttempts: cfg.MaxAttempts,
		Notifier:    notifier,
		Logger:      logger,
	})
	loader := printqueue.NewStoreTicketLoader(pool, func(db database.DBTX) printqueue.TicketStore {
		return database.New(db)
	})
	worker := printqueue.NewWorker(queue, loader, printqueue.NewTextRenderer(profile), printqueue.WorkerConfig{
		ID:           cfg.WorkerID,
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
		Logger:       logger,
	})

	// Jobs whose worker died mid-print are charged an attempt and requeued.
	sched := schedule.New(logger, time.Minute)
	err = sched.Add(cfg.ReapSchedule, "reap-print-leases", func(ctx context.Context) error {
		_, err := queue.ReapStale(ctx, cfg.LeaseTTL)
		return err
	})
	if err != nil {
		log.Fatalf("Invalid PRINT_REAP_SCHEDULE: %v", err)
	}
	sched.Start()

	log.Printf("Print worker %s started", worker.ID())
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("ERROR: print worker: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sched.Stop(stopCtx)
	log.Printf("Print worker %s stopped", worker.ID())
}
