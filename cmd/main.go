package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/config"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/controller"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/database"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/engine"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/external"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/jobs"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/monitoring"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/repository"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/service"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/logger"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.Logging)

	logrus.WithFields(logrus.Fields{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
		"port":       cfg.Server.Port,
	}).Info("Starting Pagos BOB Subastas API")

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := initializeApp(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.cleanup()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logrus.WithField("address", server.Addr).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	cancel()
	logrus.Info("Server exited")
}

// Application holds the initialized dependencies
type Application struct {
	config  *config.Config
	router  *gin.Engine
	cleanup func()
}

func initializeApp(ctx context.Context, cfg *config.Config) (*Application, error) {
	logrus.Info("Initializing application dependencies...")

	mongoClient, db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	var notifier external.Notifier = external.NoopNotifier{}
	if cfg.RabbitMQ.Enabled {
		notifier, err = external.NewRabbitNotifier(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
	}

	blobStore, err := external.NewLocalBlobStore(cfg.Storage, cfg.Business.MaxVoucherSizeBytes)
	if err != nil {
		return nil, err
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	auctionRepo := repository.NewAuctionRepository(db)
	guaranteeRepo := repository.NewGuaranteeRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	refundRepo := repository.NewRefundRepository(db)
	billingRepo := repository.NewBillingRepository(db)
	lockRepo := repository.NewLockRepository(redisClient)
	lockManager := repository.NewUserLockManager(lockRepo, cfg.Business.UserLockTTL)

	if err := createIndexes(ctx, db); err != nil {
		logrus.WithError(err).Warn("Failed to create indexes")
	}

	// Engines
	txRunner := engine.NewTxRunner(mongoClient)
	ledger := engine.NewLedgerEngine(movementRepo)
	recon := engine.NewReconciliationEngine(userRepo, movementRepo, auctionRepo, refundRepo, billingRepo)

	// Services
	notifications := service.NewNotificationService(notifier)
	paymentService := service.NewPaymentService(auctionRepo, guaranteeRepo, movementRepo, ledger, recon, txRunner, lockManager, notifications)
	winnerService := service.NewWinnerService(auctionRepo, guaranteeRepo, userRepo, movementRepo, ledger, recon, txRunner, lockManager, notifications, cfg)
	refundService := service.NewRefundService(refundRepo, auctionRepo, userRepo, ledger, recon, txRunner, lockManager, notifications)
	billingService := service.NewBillingService(billingRepo, auctionRepo, guaranteeRepo, recon, txRunner, lockManager, notifications)
	accountService := service.NewAccountService(userRepo, ledger, recon, txRunner, lockManager)

	// Monitoring and jobs
	metrics := monitoring.NewPrometheusMetrics()
	health := monitoring.NewHealthChecker(mongoClient, redisClient)
	scheduler := jobs.NewScheduler(winnerService, metrics, cfg.Jobs)
	if err := scheduler.Start(); err != nil {
		return nil, err
	}

	// Controllers
	paymentCtl := controller.NewPaymentController(paymentService, blobStore, metrics)
	auctionCtl := controller.NewAuctionController(winnerService, scheduler, metrics)
	refundCtl := controller.NewRefundController(refundService, metrics)
	accountCtl := controller.NewAccountController(accountService, billingService)

	router := controller.SetupRouter(cfg, metrics, health, paymentCtl, auctionCtl, refundCtl, accountCtl)

	cleanup := func() {
		logrus.Info("Cleaning up application resources...")
		scheduler.Stop()
		notifier.Close()
		redisClient.Close()
		mongoClient.Disconnect(context.Background())
	}

	logrus.Info("Application initialization completed")

	return &Application{
		config:  cfg,
		router:  router,
		cleanup: cleanup,
	}, nil
}

func createIndexes(ctx context.Context, db *mongo.Database) error {
	type indexer interface {
		CreateIndexes(ctx context.Context) error
	}

	for _, repo := range []interface{}{
		repository.NewUserRepository(db),
		repository.NewAuctionRepository(db),
		repository.NewGuaranteeRepository(db),
		repository.NewMovementRepository(db),
		repository.NewRefundRepository(db),
		repository.NewBillingRepository(db),
	} {
		if idx, ok := repo.(indexer); ok {
			if err := idx.CreateIndexes(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
