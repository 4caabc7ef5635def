package main

import (
	"context"
	"fmt"
	"os"

	"github.com/haventory/haventory-backend/internal/data/repos/docsrepo"
	"github.com/haventory/haventory-backend/internal/data/repos/inventoryrepo"
	"github.com/haventory/haventory-backend/internal/db"
	httpSrv "github.com/haventory/haventory-backend/internal/http"
	httpH "github.com/haventory/haventory-backend/internal/http/handlers"
	httpMW "github.com/haventory/haventory-backend/internal/http/middleware"
	"github.com/haventory/haventory-backend/internal/pipeline"
	"github.com/haventory/haventory-backend/internal/pipeline/extract"
	"github.com/haventory/haventory-backend/internal/pipeline/resolve"
	"github.com/haventory/haventory-backend/internal/platform/envutil"
	"github.com/haventory/haventory-backend/internal/platform/gcp"
	"github.com/haventory/haventory-backend/internal/platform/logger"
	"github.com/haventory/haventory-backend/internal/platform/openai"
	"github.com/haventory/haventory-backend/internal/platform/resend"
	"github.com/haventory/haventory-backend/internal/platform/sendgrid"
	"github.com/haventory/haventory-backend/internal/realtime"
	"github.com/haventory/haventory-backend/internal/realtime/bus"
	"github.com/haventory/haventory-backend/internal/services"
	"github.com/haventory/haventory-backend/internal/temporalx"
	"github.com/haventory/haventory-backend/internal/temporalx/temporalworker"
)

func main() {
	// Logger
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos...")
	documentRepo := docsrepo.NewDocumentRepo(thePG, log)
	propertyRepo := inventoryrepo.NewPropertyRepo(thePG, log)
	systemRepo := inventoryrepo.NewSystemRepo(thePG, log)
	itemRepo := inventoryrepo.NewItemRepo(thePG, log)

	// Platform clients
	log.Info("Setting up platform clients...")
	bucketService, err := gcp.NewBucketService(log)
	if err != nil {
		log.Fatal("Could not init BucketService", "error", err)
	}
	modelClient, err := openai.NewClient(log)
	if err != nil {
		log.Fatal("Could not init model client", "error", err)
	}
	resendCfg := resend.ConfigFromEnv()
	resendClient, err := resend.New(log, resendCfg)
	if err != nil {
		log.Fatal("Could not init inbound email client", "error", err)
	}
	mailClient, err := sendgrid.NewFromEnv(log)
	if err != nil {
		log.Warn("Outbound mail disabled", "error", err)
		mailClient = nil
	}

	// Realtime bus + hub
	hub := realtime.NewHub()
	var statusBus bus.Bus
	if b, err := bus.NewRedisBus(log); err != nil {
		log.Warn("Status bus disabled", "error", err)
	} else {
		statusBus = b
		defer statusBus.Close()
		if err := statusBus.StartForwarder(ctx, hub.Publish); err != nil {
			log.Warn("Status bus forwarder failed to start", "error", err)
		}
	}

	notifier := services.NewDocumentNotifier(log, statusBus, mailClient)

	// Pipeline
	runner := pipeline.NewRunner(
		log,
		documentRepo,
		itemRepo,
		bucketService,
		extract.NewExtractor(log, modelClient),
		resolve.NewResolver(log, modelClient),
		notifier,
	)

	// Scheduler: Temporal when configured, inline otherwise.
	var scheduler pipeline.Scheduler
	tc, err := temporalx.NewClient(log)
	if err != nil {
		log.Fatal("Temporal init failed", "error", err)
	}
	if tc != nil {
		defer tc.Close()
		workerRunner, err := temporalworker.NewRunner(log, tc, runner)
		if err != nil {
			log.Fatal("Temporal worker init failed", "error", err)
		}
		if err := workerRunner.Start(ctx); err != nil {
			log.Fatal("Temporal worker failed to start", "error", err)
		}
		scheduler = temporalx.NewScheduler(log, tc)
	} else {
		scheduler = pipeline.NewInlineScheduler(log, runner)
	}

	// Services
	log.Info("Setting up services...")
	uploadService := services.NewUploadService(log, documentRepo, propertyRepo, systemRepo, itemRepo, bucketService, scheduler, notifier)
	reviewService := services.NewReviewService(log, documentRepo, bucketService, notifier)
	emailIngestService := services.NewEmailIngestService(log, documentRepo, propertyRepo, bucketService, resendClient, resendCfg.WebhookSecret, scheduler, notifier)

	// Middleware + handlers
	log.Info("Setting up handlers...")
	authMiddleware, err := httpMW.NewAuthMiddleware(log)
	if err != nil {
		log.Fatal("Auth middleware init failed", "error", err)
	}
	documentHandler := httpH.NewDocumentHandler(log, uploadService, reviewService)
	webhookHandler := httpH.NewWebhookHandler(log, emailIngestService)
	realtimeHandler := httpH.NewRealtimeHandler(log, hub)
	healthHandler := httpH.NewHealthHandler()

	// Router
	server := httpSrv.NewServer(httpSrv.RouterConfig{
		AuthMiddleware:  authMiddleware,
		DocumentHandler: documentHandler,
		WebhookHandler:  webhookHandler,
		RealtimeHandler: realtimeHandler,
		HealthHandler:   healthHandler,
	})

	addr := envutil.String("HTTP_ADDR", ":8080")
	log.Info("Starting HTTP server", "addr", addr)
	if err := server.Run(addr); err != nil {
		log.Fatal("HTTP server exited", "error", err)
	}
}
