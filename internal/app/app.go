package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"news_verifier/internal/auth"
	"news_verifier/internal/config"
	"news_verifier/internal/metrics"
	"news_verifier/internal/network"
	"news_verifier/internal/publisher"
	"news_verifier/internal/scheduler"
	"news_verifier/internal/service"
	"news_verifier/internal/storage/local"
	"news_verifier/internal/storage/postgres"
)

// App holds the wired client: remote stores, device stores and the services
// built on them.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	remote    *sqlx.DB
	device    *sqlx.DB
	publisher *publisher.RabbitMQ

	Queue     *local.Queue
	Cache     *local.Cache
	Monitor   *network.Monitor
	Ratings   *service.RatingService
	Driver    *service.SyncDriver
	Feed      *service.FeedLoader
	Scheduler *scheduler.Scheduler
}

// New opens the device database and prepares the backend pool. The backend
// is not contacted here so the client starts while offline.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	device, err := local.Open(cfg.Local.Path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	remote, err := sqlx.Open("postgres", cfg.Database.DSN())
	if err != nil {
		device.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		remote: remote,
		device: device,
	}

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:          cfg.RabbitMQ.URL,
			Exchange:     cfg.RabbitMQ.Exchange,
			ExchangeKind: cfg.RabbitMQ.ExchangeKind,
			RoutingKey:   cfg.RabbitMQ.RoutingKey,
			QueueName:    cfg.RabbitMQ.QueueName,
			Transient:    cfg.RabbitMQ.Transient,
		}, logger)
		if err != nil {
			logger.Warn("rating events disabled, rabbitmq unavailable", "error", err)
		} else {
			a.publisher = rabbitMQ
			pub = rabbitMQ
		}
	}

	newsStore := postgres.NewNewsStore(remote)
	ratingStore := postgres.NewRatingStore(remote)

	a.Queue = local.NewQueue(device)
	a.Cache = local.NewCache(device, cfg.Cache.StalenessWindow, logger)
	a.Monitor = network.NewMonitor(newsStore, network.Config{
		ProbeInterval: cfg.Network.ProbeInterval,
		ProbeTimeout:  cfg.Network.ProbeTimeout,
	}, logger)

	aggregator := service.NewAggregator(newsStore, a.Cache, logger.With("component", "aggregator"))
	a.Ratings = service.NewRatingService(
		ratingStore,
		postgres.NewProfileStore(remote),
		auth.NewSession(cfg.Auth.UserAuthID),
		a.Queue,
		aggregator,
		a.Monitor,
		pub,
		logger.With("component", "ratings"),
	)
	a.Driver = service.NewSyncDriver(a.Ratings, a.Queue, a.Cache, a.Monitor, logger.With("component", "sync"))
	a.Feed = service.NewFeedLoader(
		newsStore,
		a.Cache,
		postgres.NewCategoryStore(remote),
		ratingStore,
		cfg.Feed.PageSize,
		cfg.Cache.StalenessWindow,
		logger.With("component", "feed"),
	)
	a.Scheduler = scheduler.NewScheduler(a.Feed, cfg.Cache.MaintenanceInterval, logger)

	return a, nil
}

// Run keeps the client alive: connectivity probing, queue draining, cache
// maintenance and the metrics endpoint. It returns when ctx is done or any
// component fails.
func (a *App) Run(ctx context.Context) error {
	grp, grpCtx := errgroup.WithContext(ctx)

	grp.Go(func() error { return a.Monitor.Run(grpCtx) })
	grp.Go(func() error { return a.Driver.Run(grpCtx) })
	grp.Go(func() error { return a.Scheduler.Start(grpCtx) })
	if a.cfg.Metrics.ListenAddr != "" {
		grp.Go(func() error { return a.serveMetrics(grpCtx) })
	}

	a.logger.Info("news verifier client started",
		"local_path", a.cfg.Local.Path,
		"staleness_window", a.cfg.Cache.StalenessWindow,
		"metrics_addr", a.cfg.Metrics.ListenAddr,
	)

	err := grp.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              a.cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("metrics server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return ctx.Err()
}

// Close releases the publisher and both databases.
func (a *App) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	errs = append(errs, a.remote.Close(), a.device.Close())
	return errors.Join(errs...)
}
