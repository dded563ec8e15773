// Command manualfetch re-queries ended events that are still missing a
// final score and stores the ones BetsAPI now reports. It is the one-shot
// form of the scheduled score refresh.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"oddscollector/ingestion/internal/client"
	"oddscollector/ingestion/internal/config"
	"oddscollector/ingestion/internal/repository"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	after := flag.Duration("after", 0, "Only refresh events that started this long ago (default SCORE_REFRESH_AFTER)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	ctx := context.Background()
	cfg := config.MustLoad()
	if *after <= 0 {
		*after = cfg.ScoreRefreshAfter
	}

	db, err := repository.NewDatabase(ctx, repository.Config{
		DSN:            cfg.DatabaseDSN(),
		MaxConns:       2,
		ConnectRetries: 1,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// 1. Validate database connectivity
	log.Info().Msg("Validating service health...")
	if err := db.Health(ctx); err != nil {
		log.Fatal().Err(err).Msg("Database health check failed")
	}

	// 2. Refresh scores of finished events
	api := client.NewClient(client.Options{
		BaseURLV1:    cfg.BetsAPIBaseURLV1,
		BaseURLV2:    cfg.BetsAPIBaseURLV2,
		Token:        cfg.BetsAPIToken,
		Timeout:      cfg.BetsAPITimeout,
		RequestDelay: cfg.RequestDelay,
		Policy: client.Policy{
			MaxAttempts:         cfg.MaxRetries,
			RetryDelay:          cfg.RetryDelay,
			MaxRateLimitRetries: cfg.MaxRateLimitRetries,
		},
	})

	if err := refresh(ctx, db.Events, *after, api); err != nil {
		log.Fatal().Err(err).Msg("Failed to refresh pending scores")
	}
}

// scoreRefresher is the part of the events repository this tool drives
type scoreRefresher interface {
	RefreshPendingScores(ctx context.Context, threshold time.Duration, lookup repository.ScoreLookup) (repository.RefreshResult, error)
}

// refresh runs one pass and logs its summary. Events that could not be
// refreshed are skipped and retried on the next run, so only a failure of
// the pass itself is returned.
func refresh(ctx context.Context, events scoreRefresher, after time.Duration, lookup repository.ScoreLookup) error {
	res, err := events.RefreshPendingScores(ctx, after, lookup)
	if err != nil {
		return err
	}

	// 3. Summary
	log.Info().
		Int("checked", res.Checked).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Manual score refresh complete")

	if res.Failed > 0 {
		log.Warn().Int("failed", res.Failed).Msg("Some events could not be refreshed")
	}
	return nil
}
