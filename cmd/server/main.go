package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/craftlane/deliveryhub/common"
	"github.com/craftlane/deliveryhub/db"
	"github.com/craftlane/deliveryhub/db/migrations"
	"github.com/craftlane/deliveryhub/generators"
	"github.com/craftlane/deliveryhub/lib/logging"
	"github.com/craftlane/deliveryhub/lib/service"
	"github.com/craftlane/deliveryhub/lib/tokens"
	"github.com/craftlane/deliveryhub/lib/transport"
	"github.com/craftlane/deliveryhub/rabbitmq"
	"github.com/craftlane/deliveryhub/storage"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/uptrace/bun/migrate"
)

func main() {

	c := &service.Config{}

	// Load configuration from environment variables
	err := godotenv.Load(".env")
	if err != nil {
		fmt.Println("Failed to load .env file")
	}
	err = envconfig.Process("", c)
	if err != nil {
		log.Fatalf("Error loading environment variables: %v", err)
	}

	// Setup logging to STDOUT or a configured log file
	logger := logging.Logger(c.LogFilePath)

	// Open a DB connection based on the configured DATABASE_URI
	dbConn, err := db.Open(c)
	if err != nil {
		logger.Fatalf("Error initializing db connection: %v", err)
	}

	// Migrate the DB
	startupCtx := context.Background()
	migrator := migrate.NewMigrator(dbConn, migrations.Migrations)
	err = migrator.Init(startupCtx)
	if err != nil {
		logger.Fatalf("Error initializing db migrator: %v", err)
	}
	_, err = migrator.Migrate(startupCtx)
	if err != nil {
		logger.Fatalf("Error migrating database: %v", err)
	}

	// Setup exception tracking with Sentry if configured
	// sentry init needs to happen before the echo middlewares are added
	if c.SentryDSN != "" {
		if err = sentry.Init(sentry.ClientOptions{
			Dsn:              c.SentryDSN,
			IgnoreErrors:     []string{"401"},
			EnableTracing:    c.SentryTracesSampleRate > 0,
			TracesSampleRate: c.SentryTracesSampleRate,
		}); err != nil {
			logger.Errorf("sentry init error: %v", err)
		}
	}

	// Deliverable storage
	store, err := storage.NewStore(c.StoragePath)
	if err != nil {
		logger.Fatalf("Error initializing deliverable storage: %v", err)
	}

	// Static generator registry: one entry per supported service kind
	registry := generators.NewRegistry()
	registry.Register(common.ServiceTypeResearch, &generators.ResearchGenerator{})
	registry.Register(common.ServiceTypeScript, &generators.ScriptGenerator{})
	registry.Register(common.ServiceTypeLogo, &generators.LogoGenerator{})

	// If no RABBITMQ_URI was provided we will not attempt to create a client
	// No rabbitmq features will be available in this case.
	var rabbitmqClient rabbitmq.Client
	if c.RabbitMQUri != "" {
		rabbitmqClient, err = rabbitmq.Dial(c.RabbitMQUri,
			rabbitmq.WithLogger(logger),
			rabbitmq.WithInvoiceExchange(c.RabbitMQInvoiceExchange),
			rabbitmq.WithPaymentExchange(c.RabbitMQPaymentExchange),
			rabbitmq.WithPaymentConsumerQueueName(c.RabbitMQPaymentConsumerQueueName),
		)
		if err != nil {
			logger.Fatal(err)
		}

		// close the connection gently at the end of the runtime
		defer rabbitmqClient.Close()
	}

	repo := service.NewBunInvoiceRepository(dbConn)
	pubsub := service.NewPubsub()
	engine := service.NewDeliveryEngine(c, repo, registry, store, logger, pubsub)

	svc := &service.DeliveryService{
		Config:         c,
		DB:             dbConn,
		Logger:         logger,
		Repo:           repo,
		Registry:       registry,
		Store:          store,
		Engine:         engine,
		InvoicePubSub:  pubsub,
		RabbitMQClient: rabbitmqClient,
	}

	engine.Start()
	defer engine.Stop()

	// init echo server
	e := transport.InitEcho(c, logger)
	logMw := transport.CreateLoggingMiddleware(logger)
	strictRateLimitMiddleware := transport.CreateRateLimitMiddleware(c.StrictRateLimit, c.BurstRateLimit)
	adminMw := tokens.AdminTokenMiddleware(c.AdminToken)

	transport.RegisterEndpoints(svc, e, strictRateLimitMiddleware, adminMw, logMw)

	var backgroundWg sync.WaitGroup
	backGroundCtx, _ := signal.NotifyContext(context.Background(), os.Interrupt)

	// Liveness sweep for invoices stuck mid-processing
	backgroundWg.Add(1)
	go func() {
		err = svc.StartSweepRoutine(backGroundCtx)
		if err != nil && err != context.Canceled {
			sentry.CaptureException(err)
			svc.Logger.Fatal(err)
		}
		svc.Logger.Info("Sweep routine done")
		backgroundWg.Done()
	}()

	// Consume payment confirmations from rabbitmq if configured
	if svc.RabbitMQClient != nil {
		backgroundWg.Add(1)
		go func() {
			err = svc.RabbitMQClient.SubscribeToPayments(backGroundCtx, svc.HandlePaymentMessage)
			if err != nil && err != context.Canceled {
				sentry.CaptureException(err)
				// we want to restart in case of an error here
				svc.Logger.Fatal(err)
			}
			svc.Logger.Info("Payment consumer done")
			backgroundWg.Done()
		}()

		backgroundWg.Add(1)
		go func() {
			err = svc.RabbitMQClient.StartPublishInvoices(backGroundCtx,
				svc.SubscribeTerminalInvoices,
				svc.EncodeInvoiceEvent,
			)
			if err != nil && err != context.Canceled {
				svc.Logger.Error(err)
				sentry.CaptureException(err)
			}

			svc.Logger.Info("Rabbit invoice publisher done")
			backgroundWg.Done()
		}()
	}

	// Start webhook subscription
	if svc.Config.WebhookUrl != "" {
		backgroundWg.Add(1)
		go func() {
			svc.StartWebhookSubscription(backGroundCtx, svc.Config.WebhookUrl)
			svc.Logger.Info("Webhook routine done")
			backgroundWg.Done()
		}()
	}

	// Start Prometheus server if necessary
	if svc.Config.EnablePrometheus {
		go transport.StartPrometheusEcho(logger, svc, e)
	}

	// Start server
	go func() {
		if err := e.Start(fmt.Sprintf(":%v", c.Port)); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	<-backGroundCtx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
	// Wait for graceful shutdown of background routines
	backgroundWg.Wait()
	svc.Logger.Info("DeliveryHub exiting gracefully. Goodbye.")
}
