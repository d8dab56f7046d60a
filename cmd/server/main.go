package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Uttam1728/event-analytics/internal/archive"
	"github.com/Uttam1728/event-analytics/internal/bucket"
	"github.com/Uttam1728/event-analytics/internal/config"
	"github.com/Uttam1728/event-analytics/internal/handler"
	"github.com/Uttam1728/event-analytics/internal/ingest"
	"github.com/Uttam1728/event-analytics/internal/metrics"
	"github.com/Uttam1728/event-analytics/internal/queue"
	"github.com/Uttam1728/event-analytics/internal/registry"
	"github.com/Uttam1728/event-analytics/internal/status"
	"github.com/Uttam1728/event-analytics/internal/storage"
	"github.com/Uttam1728/event-analytics/internal/worker"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Info("Configuration loaded successfully")

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := client.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatalf("Failed to connect to redis at %s: %v", cfg.RedisAddr, err)
	}
	pingCancel()
	defer client.Close()
	log.Infof("Connected to redis at %s", cfg.RedisAddr)

	stream := queue.NewStream(client, cfg.StreamName)
	if err := stream.RegisterGroup(context.Background(), cfg.ConsumerGroup); err != nil {
		log.Fatalf("Failed to register consumer group: %v", err)
	}

	buckets := bucket.NewStore(client, cfg.BucketTTL())
	acceptedIDs := registry.NewAcceptedIDs(client, cfg.RegistryTTL())
	gateway := ingest.NewGateway(buckets, stream, acceptedIDs, log)

	writer, err := storage.NewWriter(cfg.DataDir, consumerName(), cfg.RotateMaxBytes, cfg.RotateMaxEntries)
	if err != nil {
		log.Fatalf("Failed to open events writer: %v", err)
	}
	defer writer.Close()

	if cfg.MinIOEndpoint != "" {
		archiver, err := archive.NewMinIOArchiver(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket)
		if err != nil {
			log.Fatalf("Failed to create archiver: %v", err)
		}
		writer.OnRotate(func(path string) {
			metrics.FilesRotated.Inc()
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				if err := archiver.ArchiveFile(ctx, path, time.Now().UTC()); err != nil {
					log.Errorf("Archive of %s failed: %v", path, err)
				}
			}()
		})
		log.Infof("Archiving closed files to %s/%s", cfg.MinIOEndpoint, cfg.MinIOBucket)
	} else {
		writer.OnRotate(func(string) { metrics.FilesRotated.Inc() })
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	persistWorker := worker.New(stream, writer, worker.Config{
		Group:         cfg.ConsumerGroup,
		Consumer:      consumerName(),
		BatchSize:     int64(cfg.BatchSize),
		BlockTimeout:  cfg.BlockTimeout(),
		StaleAfter:    cfg.StaleAfter(),
		MaxDeliveries: int64(cfg.MaxDeliveries),
		ReclaimEvery:  cfg.ReclaimEvery(),
		TrimEvery:     cfg.TrimEvery(),
		DedupWindow:   cfg.DedupWindowSize,
	}, log)
	go persistWorker.Run(ctx)

	reporter := status.NewReporter(stream, persistWorker, cfg.ConsumerGroup, cfg.DataDir, cfg.HeartbeatStale())

	metrics.Serve(":"+cfg.MetricsPort, log)

	eventHandler := handler.NewEventHandler(gateway)
	analyticsHandler := handler.NewAnalyticsHandler(buckets)
	statusHandler := handler.NewStatusHandler(reporter, cfg.DataDir)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	app.Post("/events", eventHandler.HandleEvent)
	app.Get("/analytics/page_views_per_minute", analyticsHandler.HandlePageViewsPerMinute)
	app.Get("/analytics/minute-buckets/:bucket_key", analyticsHandler.HandleMinuteBucket)
	app.Get("/persist-events/status", statusHandler.HandleStatus)
	app.Get("/persist-events/files", statusHandler.HandleFiles)
	app.Get("/health", statusHandler.HandleHealth)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Shutdown signal received. Shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			log.Errorf("Server shutdown error: %v", err)
		}
	}()

	log.Infof("Event analytics service running on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	// Listen has returned: no more submissions. Stop the worker and wait
	// for it to drain the in-flight batch before the process exits.
	cancel()
	select {
	case <-persistWorker.Done():
		log.Info("Persistence worker drained")
	case <-time.After(30 * time.Second):
		log.Warn("Persistence worker did not stop in time")
	}

	if err := writer.Close(); err != nil {
		log.Errorf("Events writer close error: %v", err)
	}
	log.Info("Shutdown complete")
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
