package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/willow/config"
	"github.com/Ramsey-B/willow/internal/repositories/connectedaccount"
	"github.com/Ramsey-B/willow/internal/repositories/duplicatereport"
	"github.com/Ramsey-B/willow/internal/repositories/importjob"
	"github.com/Ramsey-B/willow/internal/repositories/stageditem"
	"github.com/Ramsey-B/willow/pkg/accounts"
	"github.com/Ramsey-B/willow/pkg/connectors"
	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/dedup"
	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/httpclient"
	"github.com/Ramsey-B/willow/pkg/kafka"
	"github.com/Ramsey-B/willow/pkg/logging"
	"github.com/Ramsey-B/willow/pkg/pipeline"
	"github.com/Ramsey-B/willow/pkg/redis"
	"github.com/Ramsey-B/willow/pkg/startup"
	"github.com/Ramsey-B/willow/pkg/target"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

func main() {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		panic(fmt.Errorf("failed to bind config: %w", err))
	}

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		panic(fmt.Errorf("failed to create logger: %w", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TracingEnabled {
		shutdown, err := tracing.InitOTLP(ctx, cfg.AppName, cfg.TracingOTLPAddress)
		if err != nil {
			fatal(logger, err, "Failed to initialize tracing")
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to flush spans")
			}
		}()
	}

	db, err := database.Connect(database.ConnectConfig{
		Driver:          cfg.DatabaseDriver,
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		UserName:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
	if err != nil {
		fatal(logger, err, "Failed to connect to database")
	}
	defer db.Close()

	if err := migrateDatabase(cfg, db, logger); err != nil {
		fatal(logger, err, "Failed to run migrations")
	}

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		fatal(logger, err, "Failed to connect to redis")
	}
	defer redisClient.Close()

	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
	}
	emitter := events.NewEmitter(producer, logger)

	registry := connectors.NewRegistry()
	registry.Register(connectors.NewGedcomConnector(logger))
	registry.Register(connectors.NewCSVConnector(logger))
	registry.Register(connectors.NewHostedConnector("facebook", "Facebook", httpclient.NewClient(httpclient.DefaultConfig(), logger), 100, logger))

	accountRepo := connectedaccount.NewRepository(db, logger)
	jobRepo := importjob.NewRepository(db, logger)
	itemRepo := stageditem.NewRepository(db, logger)
	reportRepo := duplicatereport.NewRepository(db, logger)

	targetHTTPConfig := httpclient.DefaultConfig()
	targetHTTPConfig.Timeout = cfg.TargetAPITimeout
	targetClient := target.NewHTTPClient(target.Config{
		BaseURL: cfg.TargetAPIBaseURL,
		Token:   cfg.TargetAPIToken,
	}, httpclient.NewClient(targetHTTPConfig, logger), logger)

	accountService := accounts.NewService(accountRepo, registry, redisClient, logger)
	fetcher := pipeline.NewFetcher(jobRepo, itemRepo, accountService, logger)
	committer := pipeline.NewCommitter(jobRepo, itemRepo, targetClient, emitter, cfg.CommitWorkerCount, logger)

	locker := redis.NewLocker(redisClient, "willow:")
	detector := dedup.NewDetector(reportRepo, targetClient, locker, emitter, dedup.DetectorConfig{
		ScoreThreshold: cfg.DuplicateScoreThreshold,
		PageSize:       cfg.TargetMemorialPageSize,
		LockTTL:        cfg.DuplicateScanLockTTL,
	}, logger)

	if err := registerDependencies(logger, db, redisClient, accountRepo, jobRepo, itemRepo, reportRepo, accountService, fetcher, committer, detector); err != nil {
		fatal(logger, err, "Failed to build DI container")
	}

	server := newServer(cfg, logger)

	services := startup.New(logger, cfg.StartupMaxAttempts)
	services.AddDependency(newPingDependency("database", db.PingContext))
	services.AddDependency(newPingDependency("redis", redisClient.Ping))
	if cfg.DuplicateScanEnabled {
		services.AddDependency(dedup.NewScheduler(detector, cfg.DuplicateScanInterval, logger))
	}
	services.AddDependency(server)

	if err := services.Start(ctx); err != nil {
		fatal(logger, err, "Failed to start services")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Info("Shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := services.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("Failed to stop services cleanly")
	}
}

func migrateDatabase(cfg *config.Config, db database.DB, logger ectologger.Logger) error {
	driver, err := migratepg.WithInstance(db.Unsafe().DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	migrationService := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})

	return migrationService.Migrate(cfg.DatabaseName, driver)
}

func registerDependencies(
	logger ectologger.Logger,
	db database.DB,
	redisClient *redis.Client,
	accountRepo *connectedaccount.Repository,
	jobRepo *importjob.Repository,
	itemRepo *stageditem.Repository,
	reportRepo *duplicatereport.Repository,
	accountService *accounts.Service,
	fetcher *pipeline.Fetcher,
	committer *pipeline.Committer,
	detector *dedup.Detector,
) error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return err
	}

	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[database.DB](container, db); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*redis.Client](container, redisClient); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*connectedaccount.Repository](container, accountRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*importjob.Repository](container, jobRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*stageditem.Repository](container, itemRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*duplicatereport.Repository](container, reportRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*accounts.Service](container, accountService); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*pipeline.Fetcher](container, fetcher); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*pipeline.Committer](container, committer); err != nil {
		return err
	}
	return ectoinject.RegisterInstance[*dedup.Detector](container, detector)
}

// pingDependency wraps an external connection check as a startup dependency
type pingDependency struct {
	name string
	ping func(ctx context.Context) error
}

func newPingDependency(name string, ping func(ctx context.Context) error) *pingDependency {
	return &pingDependency{name: name, ping: ping}
}

func (d *pingDependency) GetName() string                 { return d.name }
func (d *pingDependency) DependsOn() []string             { return nil }
func (d *pingDependency) Start(ctx context.Context) error { return d.ping(ctx) }
func (d *pingDependency) Stop(ctx context.Context) error  { return nil }

func fatal(logger ectologger.Logger, err error, message string) {
	logger.WithError(err).Errorf("%s", message)
	os.Exit(1)
}
