// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/config"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/handler"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/jobs"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/repository"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/router"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/usecase"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/pkg/cache"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/pkg/events"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/pkg/logger"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/pkg/notifier"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	log, err := logger.New(os.Getenv("ENVIRONMENT"))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("starting payment reconciliation service")

	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	log.Info("configuration loaded",
		zap.String("environment", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("store_driver", cfg.Database.Driver),
		zap.String("notifier_driver", cfg.Notifier.Driver))

	// Ledger store
	var store repository.LedgerStore
	switch cfg.Database.Driver {
	case "memory":
		log.Warn("using in-memory ledger store, state is lost on restart")
		store = repository.NewMemoryStore()
	default:
		dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		defer dbPool.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = dbPool.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatal("database ping failed", zap.Error(err))
		}

		if cfg.Database.AutoMigrate {
			if err := repository.EnsureSchema(context.Background(), dbPool); err != nil {
				log.Fatal("failed to apply schema", zap.Error(err))
			}
			log.Info("schema applied")
		}

		log.Info("connected to database", zap.String("database", cfg.Database.DBName))
		store = repository.NewLedgerStore(dbPool)
	}

	// Processed-reference cache (optional)
	var refCache usecase.ReferenceCache
	if cfg.Redis.Enabled {
		rc, err := cache.NewReferenceCache(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL, log)
		if err != nil {
			log.Warn("redis unavailable, running without reference cache", zap.Error(err))
		} else {
			defer rc.Close()
			refCache = rc
		}
	}

	// Ledger events
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, log)
		log.Info("ledger events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer publisher.Close()

	// Notifications
	var notify notifier.Notifier
	switch cfg.Notifier.Driver {
	case "sms":
		notify = notifier.NewSMSNotifier(notifier.SMSConfig{
			BaseURL:  cfg.Notifier.SMSBaseURL,
			APIKey:   cfg.Notifier.SMSAPIKey,
			UserID:   cfg.Notifier.SMSUserID,
			Password: cfg.Notifier.SMSPassword,
			SenderID: cfg.Notifier.SMSSenderID,
		}, log)
	case "amqp":
		an, err := notifier.NewAMQPNotifier(cfg.Notifier.AMQPURL, cfg.Notifier.AMQPExchange, log)
		if err != nil {
			log.Warn("rabbitmq unavailable, notifications will only be logged", zap.Error(err))
			notify = notifier.NewLogNotifier(log)
		} else {
			defer an.Close()
			notify = an
		}
	default:
		notify = notifier.NewLogNotifier(log)
	}

	// Per-gateway error logs
	sources := make([]string, 0, len(domain.AllSources))
	for _, s := range domain.AllSources {
		sources = append(sources, string(s))
	}
	gateways, closeGateways, err := logger.GatewayLoggers(cfg.Logging.GatewayLogDir, log, sources)
	if err != nil {
		log.Fatal("failed to open gateway logs", zap.Error(err))
	}
	defer closeGateways()

	reconcileUC := usecase.NewReconcileUsecase(
		store,
		refCache,
		publisher,
		notify,
		usecase.Config{
			MaxTimeoutRetries: cfg.Reconcile.MaxTimeoutRetries,
			MinPaybillAmount:  cfg.Reconcile.MinPaybillAmount,
			NotifyTimeout:     cfg.Notifier.Timeout,
			AdminContact: domain.Contact{
				Name:  cfg.Admin.Name,
				Phone: cfg.Admin.Phone,
				Email: cfg.Admin.Email,
			},
		},
		gateways,
		log,
	)

	// Recovery report
	scheduler := jobs.NewScheduler(reconcileUC, jobs.SchedulerConfig{
		Schedule: cfg.Jobs.RecoverySchedule,
		Window:   cfg.Jobs.RecoveryWindow,
	}, log)
	if err := scheduler.Start(); err != nil {
		log.Fatal("failed to start recovery report", zap.Error(err))
	}

	// Handlers
	callbackHandler := handler.NewCallbackHandler(reconcileUC, cfg.Reconcile.MinPaybillAmount, log)
	bankHandler := handler.NewBankHandler(reconcileUC, cfg.Reconcile.KCBCreditAccount, log)
	auditHandler := handler.NewAuditHandler(reconcileUC, cfg.Admin.APIKey, log)

	r := router.SetupRoutes(callbackHandler, bankHandler, auditHandler, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	<-scheduler.Stop().Done()

	// Let in-flight notifications and events finish before closing their clients.
	done := make(chan struct{})
	go func() {
		reconcileUC.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("side effects still running at shutdown")
	}

	log.Info("server stopped")
}
