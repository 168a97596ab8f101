package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/video-submission-checker/internal/config"
	"github.com/RubachokBoss/video-submission-checker/internal/database"
	"github.com/RubachokBoss/video-submission-checker/internal/delivery/httpd"
	"github.com/RubachokBoss/video-submission-checker/internal/metrics"
	"github.com/RubachokBoss/video-submission-checker/internal/notify"
	"github.com/RubachokBoss/video-submission-checker/internal/repository"
	"github.com/RubachokBoss/video-submission-checker/internal/service"
	"github.com/RubachokBoss/video-submission-checker/internal/service/analyzer"
	"github.com/RubachokBoss/video-submission-checker/internal/statestore"
	"github.com/RubachokBoss/video-submission-checker/internal/worker"
	"github.com/RubachokBoss/video-submission-checker/internal/worker/queue"
)

type App struct {
	server           *http.Server
	logger           zerolog.Logger
	config           *config.Config
	db               *sql.DB
	window           statestore.Store
	submissionWorker worker.SubmissionWorker
	reporter         *worker.DailyReporter
	// closed in reverse order on shutdown
	closers []io.Closer
}

// transport is what the configured broker contributes: an inbound consumer
// and an outbound publisher. Both are nil for transport.driver=none.
type transport struct {
	consumer  queue.Consumer
	publisher queue.Publisher
	closers   []io.Closer
}

func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (app *App, err error) {
	a := &App{
		logger: log,
		config: cfg,
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	detectionLoc, err := cfg.Detection.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load detection timezone: %w", err)
	}
	reportsLoc, err := cfg.Reports.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load reports timezone: %w", err)
	}

	if cfg.Database.MigrateOnStart {
		migrator, err := database.NewMigrator(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := migrator.Up(); err != nil {
			return nil, err
		}
		log.Info().Str("driver", cfg.Database.Driver).Msg("Ledger migrations applied")
	}

	a.db, err = database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("Ledger connection established")

	a.window = newWindowStore(cfg.Window, log)
	a.closers = append(a.closers, a.window)

	ledger := repository.NewLedgerRepository(a.db, cfg.Database.Driver, log)

	classifier := analyzer.NewDuplicateClassifier(a.window, log, analyzer.DuplicateClassifierConfig{
		KeyPrefix:      cfg.Window.KeyPrefix,
		FingerprintTTL: cfg.Window.FingerprintTTL,
		DurationTTL:    cfg.Window.DurationTTL,
		RecentTTL:      cfg.Window.RecentTTL,
		RecentLimit:    cfg.Window.RecentLimit,
	})

	scorer := analyzer.NewAnomalyScorer(ledger, log, analyzer.AnomalyScorerConfig{
		MinHistory:        cfg.Detection.MinHistory,
		DurationDeviation: cfg.Detection.DurationDeviation,
		MinFileSize:       cfg.Detection.MinFileSize,
		BurstWindow:       cfg.Detection.BurstWindow,
		BurstCount:        cfg.Detection.BurstCount,
		Location:          detectionLoc,
	})

	var (
		observer       service.DecisionObserver
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector(cfg.Metrics.Namespace)
		observer = collector
		metricsHandler = collector.Handler()
	}

	submissionService := service.NewSubmissionService(classifier, scorer, ledger, observer, log, service.SubmissionConfig{
		IOTimeout:           cfg.Detection.IOTimeout,
		SuspiciousThreshold: cfg.Detection.SuspiciousThreshold,
		Location:            detectionLoc,
	})

	reportService := service.NewReportService(ledger, log, service.ReportConfig{
		SearchLimit: cfg.Reports.SearchLimit,
		Location:    reportsLoc,
	})

	tr, err := newTransport(cfg.Transport, log)
	if tr != nil {
		a.closers = append(a.closers, tr.closers...)
	}
	if err != nil {
		return nil, err
	}

	notifier := notify.NewNopNotifier(log)
	if tr.publisher != nil && cfg.Notify.Enabled {
		notifier = notify.NewNotifier(tr.publisher, notify.NewFormatter(detectionLoc), cfg.Notify.AdminRecipient, log)
	}

	var status httpd.StatusProvider
	if tr.consumer != nil {
		pool := worker.NewWorkerPool(cfg.Worker.MaxWorkers, cfg.Worker.QueueSize, log)
		a.submissionWorker = worker.NewSubmissionWorker(pool, tr.consumer, submissionService, notifier, log)
		status = a.submissionWorker
	}

	var archive repository.ReportArchive
	if cfg.Reports.Archive.Enabled {
		archive, err = repository.NewMinIOArchive(repository.MinIOArchiveConfig{
			Endpoint:  cfg.Reports.Archive.Endpoint,
			AccessKey: cfg.Reports.Archive.AccessKey,
			SecretKey: cfg.Reports.Archive.SecretKey,
			Bucket:    cfg.Reports.Archive.Bucket,
			Prefix:    cfg.Reports.Archive.Prefix,
			UseSSL:    cfg.Reports.Archive.UseSSL,
		}, log)
		if err != nil {
			return nil, err
		}
	}

	a.reporter, err = worker.NewDailyReporter(reportService, notifier, archive, log, worker.DailyReporterConfig{
		Schedule: cfg.Reports.DailyCron,
		Location: reportsLoc,
	})
	if err != nil {
		return nil, err
	}

	handler := httpd.NewHandler(httpd.Dependencies{
		Submissions: submissionService,
		Reports:     reportService,
		Notifier:    notifier,
		Ledger:      ledger,
		Window:      a.window,
		Status:      status,
		Metrics:     metricsHandler,
		MetricsPath: cfg.Metrics.Path,
	}, log)

	a.server = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      httpd.NewRouter(handler, cfg.CORS, cfg.Server.WriteTimeout, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return a, nil
}

func newWindowStore(cfg config.WindowConfig, log zerolog.Logger) statestore.Store {
	if cfg.Driver == config.WindowMemory {
		log.Warn().Msg("Using in-process window store; duplicate state is lost on restart")
		return statestore.NewMemoryStore()
	}

	return statestore.NewRedisStore(statestore.RedisConfig{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}, log)
}

func newTransport(cfg config.TransportConfig, log zerolog.Logger) (*transport, error) {
	switch cfg.Driver {
	case config.TransportRabbitMQ:
		rmq := cfg.RabbitMQ
		repo, err := repository.NewRabbitMQRepository(rmq.URL, log)
		if err != nil {
			return nil, err
		}
		tr := &transport{closers: []io.Closer{repo}}

		if err := repo.SetupQueue(rmq.Exchange, rmq.QueueName, rmq.RoutingKey, rmq.DeadLetterExchange); err != nil {
			return tr, err
		}
		if err := repo.DeclareExchange(rmq.NotifyExchange, "topic"); err != nil {
			return tr, err
		}

		tr.consumer = queue.NewRabbitMQConsumer(repo.Channel(), rmq.QueueName, rmq.ConsumerTag, rmq.PrefetchCount, log)
		tr.publisher = queue.NewRabbitMQPublisher(repo.Channel(), rmq.NotifyExchange, log)
		tr.closers = append(tr.closers, tr.publisher)
		return tr, nil

	case config.TransportKafka:
		kc := cfg.Kafka
		reader := queue.NewKafkaReader(queue.KafkaConsumerConfig{
			Brokers:  kc.Brokers,
			Topic:    kc.Topic,
			GroupID:  kc.GroupID,
			MinBytes: kc.MinBytes,
			MaxBytes: kc.MaxBytes,
			MaxWait:  kc.MaxWait,
		})

		var deadLetter queue.KafkaWriter
		if kc.DeadLetterTopic != "" {
			deadLetter = queue.NewKafkaWriter(kc.Brokers, kc.DeadLetterTopic)
		}

		tr := &transport{
			consumer:  queue.NewKafkaConsumer(reader, deadLetter, log),
			publisher: queue.NewKafkaPublisher(queue.NewKafkaWriter(kc.Brokers, kc.NotifyTopic), log),
		}
		tr.closers = []io.Closer{tr.publisher}
		log.Info().Strs("brokers", kc.Brokers).Str("topic", kc.Topic).Msg("Kafka transport configured")
		return tr, nil

	default:
		log.Warn().Msg("No transport configured; submissions are accepted over HTTP only")
		return &transport{}, nil
	}
}

// Run starts background workers and serves HTTP until Shutdown.
func (a *App) Run(ctx context.Context) error {
	if a.submissionWorker != nil {
		if err := a.submissionWorker.Start(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Failed to start submission worker")
			return err
		}
	}
	a.reporter.Start()

	a.logger.Info().Msgf("Starting submission service on %s", a.config.Server.Address)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down submission service...")

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
		errs = append(errs, err)
	}

	if err := a.reporter.Stop(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to stop daily reporter")
	}

	if a.submissionWorker != nil {
		if err := a.submissionWorker.Stop(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to stop submission worker")
		}
	}

	a.close()

	a.logger.Info().Msg("Submission service stopped")
	return errors.Join(errs...)
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close resource")
		}
	}
	a.closers = nil

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
		a.db = nil
	}
}
