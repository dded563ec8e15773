package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oddscollector/ingestion/internal/cache"
	"oddscollector/ingestion/internal/client"
	"oddscollector/ingestion/internal/config"
	"oddscollector/ingestion/internal/ingest"
	"oddscollector/ingestion/internal/metrics"
	"oddscollector/ingestion/internal/repository"
	"oddscollector/ingestion/internal/scheduler"

	"github.com/rs/zerolog/log"
)

// app holds the resources shared by every subcommand
type app struct {
	cfg   *config.Config
	db    *repository.Database
	cache *cache.RedisCache
	loc   *time.Location
	// stop is cancelled on SIGINT/SIGTERM
	stop context.Context
}

// withApp loads configuration, connects the stores and runs fn until it
// returns. A shutdown signal cancels a.stop; fn is expected to wind down.
func withApp(command string, fn func(a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log.Info().
		Str("command", command).
		Str("env", cfg.AppEnv).
		Str("timezone", cfg.Timezone).
		Msg("Configuration loaded")

	// Create context that listens for cancellation
	stop, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			log.Info().Msg("Received shutdown signal, gracefully shutting down...")
			cancel()
		case <-stop.Done():
		}
	}()

	// Connecting is not interrupted by a signal; the loops check stop
	ctx := context.WithoutCancel(stop)

	db, err := repository.NewDatabase(ctx, repository.Config{
		DSN:               cfg.DatabaseDSN(),
		MaxConns:          cfg.DatabaseMaxConns,
		ConnectRetries:    3,
		ConnectRetryDelay: 2 * time.Second,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	if cfg.AutoMigrate {
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	a := &app{cfg: cfg, db: db, loc: cfg.Location(), stop: stop}

	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(ctx, cache.Config{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis - continuing without cache")
		} else {
			defer redisCache.Close()
			a.cache = redisCache
			log.Info().Msg("Redis cache connected")
		}
	}

	if cfg.EnableMetrics {
		go startMetricsServer(cfg.MetricsPort, db)
		go a.reportRuntime(stop)
	}

	return fn(a)
}

// reportRuntime updates uptime and pool gauges until stop is cancelled
func (a *app) reportRuntime(stop context.Context) {
	startTime := time.Now()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.SystemUptime.Set(time.Since(startTime).Seconds())
			stat := a.db.Pool.Stat()
			metrics.UpdateDBConnectionStats(stat.AcquiredConns(), stat.IdleConns())
		case <-stop.Done():
			return
		}
	}
}

// newClient builds a BetsAPI client. Clients are never shared between
// concurrent walks, so every caller gets its own.
func (a *app) newClient() *client.Client {
	return client.NewClient(client.Options{
		BaseURLV1:    a.cfg.BetsAPIBaseURLV1,
		BaseURLV2:    a.cfg.BetsAPIBaseURLV2,
		Token:        a.cfg.BetsAPIToken,
		Timeout:      a.cfg.BetsAPITimeout,
		RequestDelay: a.cfg.RequestDelay,
		Policy: client.Policy{
			MaxAttempts:         a.cfg.MaxRetries,
			RetryDelay:          a.cfg.RetryDelay,
			MaxRateLimitRetries: a.cfg.MaxRateLimitRetries,
		},
	})
}

// oddsFetcher puts the Redis cache in front of c when it is available
func (a *app) oddsFetcher(c *client.Client) ingest.OddsFetcher {
	if a.cache == nil {
		return c
	}
	return cache.NewOddsFetcher(c, a.cache, a.cfg.CacheTTLOdds)
}

// processorConfig builds the processor template; leagues is the allowlist
// the classifier accepts
func (a *app) processorConfig(odds ingest.OddsFetcher, mode string, leagues []string) (ingest.ProcessorConfig, error) {
	classifier, err := ingest.NewClassifier(a.cfg.ClassificationMode, a.cfg.TargetSportID, leagues)
	if err != nil {
		return ingest.ProcessorConfig{}, err
	}
	return ingest.ProcessorConfig{
		Odds:       odds,
		Classifier: classifier,
		Location:   a.loc,
		SportID:    a.cfg.TargetSportID,
		Mode:       mode,
	}, nil
}

// runDaily performs one daily pass on a single pooled connection
func (a *app) runDaily(stop context.Context) error {
	conn, err := a.db.Acquire(context.WithoutCancel(stop))
	if err != nil {
		return err
	}
	defer conn.Release()

	api := a.newClient()
	procCfg, err := a.processorConfig(a.oddsFetcher(api), "daily", a.cfg.Leagues())
	if err != nil {
		return err
	}

	store := repository.NewStore(conn)
	runner := ingest.NewDailyRunner(ingest.DailyConfig{
		Events:    api,
		Processor: ingest.NewProcessor(procCfg),
		DB:        conn,
		Cursors:   store.FetchState,
		// the pooled repository still works if this connection broke
		Recovery:      a.db.FetchState,
		Pruner:        store.Events,
		Summary:       store.Events,
		Location:      a.loc,
		SportID:       a.cfg.TargetSportID,
		RetentionDays: a.cfg.RetentionDays,
		MaxPages:      a.cfg.DailyMaxPages,
	})

	report, err := runner.Run(stop)
	if err != nil {
		return err
	}
	for _, d := range report.Days {
		log.Info().
			Str("fetch_type", d.FetchType).
			Str("status", string(d.Status)).
			Int("pages", d.Pages).
			Int("stored", d.Stored).
			Int("odds_inserted", d.OddsInserted).
			Msg("Daily fetch finished")
	}
	return nil
}

type backfillOptions struct {
	Workers int
	Days    int
	// Start and End override Days when both are set
	Start   time.Time
	End     time.Time
	Leagues []string
}

// prepareBackfill fills unset options from configuration and builds the
// processor template. The leagues being walked are the leagues accepted.
func (a *app) prepareBackfill(opts backfillOptions) (backfillOptions, ingest.ProcessorConfig, error) {
	if opts.Workers <= 0 {
		opts.Workers = a.cfg.BackfillWorkers
	}
	if opts.Days <= 0 {
		opts.Days = a.cfg.BackfillDays
	}
	if len(opts.Leagues) == 0 {
		opts.Leagues = a.cfg.Leagues()
	}

	procCfg, err := a.processorConfig(nil, "backfill", opts.Leagues)
	return opts, procCfg, err
}

// runBackfill walks the requested window with a pool of workers
func (a *app) runBackfill(stop context.Context, opts backfillOptions) error {
	opts, procCfg, err := a.prepareBackfill(opts)
	if err != nil {
		return err
	}
	if int32(opts.Workers) >= a.cfg.DatabaseMaxConns {
		log.Warn().
			Int("workers", opts.Workers).
			Int32("max_conns", a.cfg.DatabaseMaxConns).
			Msg("Backfill workers leave no spare pool connections")
	}

	executor := ingest.NewTaskExecutor(ingest.TaskExecutorConfig{
		Acquire: func(ctx context.Context) (ingest.Conn, error) {
			conn, err := a.db.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		NewAPI: func() (ingest.EventsFetcher, ingest.OddsFetcher) {
			api := a.newClient()
			return api, a.oddsFetcher(api)
		},
		Processor: procCfg,
		SportID:   a.cfg.TargetSportID,
		MaxPages:  a.cfg.DailyMaxPages,
	})

	window := ingest.WindowForDays(time.Now(), a.loc, opts.Days, opts.Leagues)
	if !opts.Start.IsZero() {
		window = ingest.Window{Start: opts.Start, End: opts.End, Leagues: opts.Leagues}
	}

	backfill := ingest.NewBackfill(ingest.BackfillConfig{
		Runner:        executor,
		Pruner:        a.db.Events,
		Workers:       opts.Workers,
		RetentionDays: a.cfg.RetentionDays,
		Location:      a.loc,
	})

	_, err = backfill.Run(stop, window)
	return err
}

// runSchedule runs the daily pass and the score refresh on their cron
// schedules until a shutdown signal arrives
func (a *app) runSchedule(stop context.Context) error {
	sched := scheduler.NewScheduler(
		scheduler.Job{
			Name:     "daily",
			Schedule: a.cfg.DailyCron,
			Run:      a.runDaily,
		},
		scheduler.Job{
			Name:     "score_refresh",
			Schedule: a.cfg.ScoreRefreshCron,
			Run: func(ctx context.Context) error {
				_, err := a.db.Events.RefreshPendingScores(ctx, a.cfg.ScoreRefreshAfter, a.newClient())
				return err
			},
		},
	)

	if err := sched.Start(stop); err != nil {
		return err
	}

	// Run initial pass right away
	if err := sched.RunNow(stop, "daily"); err != nil {
		log.Error().Err(err).Msg("Initial daily pass failed, continuing anyway...")
	}

	log.Info().Msg("Worker started successfully")
	<-stop.Done()

	sched.Stop()
	log.Info().Msg("Worker stopped")
	return nil
}
