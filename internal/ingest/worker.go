package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oddscollector/ingestion/internal/client"
	"oddscollector/ingestion/internal/metrics"
	"oddscollector/ingestion/internal/models"
	"oddscollector/ingestion/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// ErrStoreUnavailable marks failures caused by losing the database rather
// than by one bad event. Runs stop on it instead of moving to the next event.
var ErrStoreUnavailable = errors.New("store unavailable")

// OddsFetcher fetches the odds summary of one event
type OddsFetcher interface {
	FetchOddsSummary(ctx context.Context, eventID int64) (models.OddsSummary, error)
}

// Outcome is what happened to one event payload
type Outcome int

const (
	// OutcomeFiltered: the event is outside the leagues of interest
	OutcomeFiltered Outcome = iota
	// OutcomeInvalid: the payload has no usable event id
	OutcomeInvalid
	// OutcomeStored: the event (and any odds) were committed
	OutcomeStored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFiltered:
		return "filtered"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeStored:
		return "stored"
	default:
		return "unknown"
	}
}

// Result describes a successfully handled event
type Result struct {
	Outcome      Outcome
	EventID      int64
	OddsInserted int
	// OddsUnavailable is set when the odds lookup failed and the event was stored without odds
	OddsUnavailable bool
}

// ProcessorConfig configures a Processor
type ProcessorConfig struct {
	Odds       OddsFetcher
	Classifier *Classifier
	Location   *time.Location
	SportID    int
	Bookmaker  string
	// Mode labels metrics ("daily" or "backfill")
	Mode string
	// Now overrides the clock used when upstream reports no odds update time
	Now func() time.Time
}

// Processor ingests one event payload at a time
type Processor struct {
	odds       OddsFetcher
	classifier *Classifier
	loc        *time.Location
	sportID    int
	bookmaker  string
	mode       string
	now        func() time.Time
}

// NewProcessor creates a Processor
func NewProcessor(cfg ProcessorConfig) *Processor {
	p := &Processor{
		odds:       cfg.Odds,
		classifier: cfg.Classifier,
		loc:        cfg.Location,
		sportID:    cfg.SportID,
		bookmaker:  cfg.Bookmaker,
		mode:       cfg.Mode,
		now:        cfg.Now,
	}
	if p.loc == nil {
		p.loc = time.UTC
	}
	if p.bookmaker == "" {
		p.bookmaker = models.DefaultBookmaker
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// ProcessEvent classifies raw, then stores the event and its odds in one
// transaction on db. Any error rolls the whole event back.
//
// The odds summary is fetched before the transaction opens so no
// transaction stays open across a rate-limited HTTP call.
func (p *Processor) ProcessEvent(ctx context.Context, db repository.DBTX, raw *models.RawEvent) (Result, error) {
	if p.classifier != nil && !p.classifier.Accept(raw) {
		metrics.RecordEvent(p.mode, OutcomeFiltered.String())
		return Result{Outcome: OutcomeFiltered}, nil
	}

	event, err := raw.ToEvent(p.sportID, p.loc)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping event without a usable id")
		metrics.RecordEvent(p.mode, OutcomeInvalid.String())
		return Result{Outcome: OutcomeInvalid}, nil
	}

	res := Result{Outcome: OutcomeStored, EventID: event.EventID}

	var (
		records    []models.OddsRecord
		lastUpdate *time.Time
	)
	summary, err := p.odds.FetchOddsSummary(ctx, event.EventID)
	switch {
	case err == nil:
		records, lastUpdate = ExtractOdds(event.EventID, summary, p.bookmaker, p.loc)
	case errors.Is(err, client.ErrUnauthorized):
		metrics.RecordEvent(p.mode, "failed")
		return Result{}, fmt.Errorf("failed to fetch odds for event %d: %w", event.EventID, err)
	default:
		res.OddsUnavailable = true
		log.Warn().Err(err).Int64("event_id", event.EventID).Msg("Odds unavailable, storing event without odds")
	}

	err = repository.InTx(ctx, db, func(tx pgx.Tx) error {
		store := repository.NewStore(tx)

		if _, err := store.Events.Upsert(ctx, event); err != nil {
			return err
		}

		if len(records) == 0 {
			return nil
		}

		inserted, err := store.Odds.InsertBatch(ctx, records)
		if err != nil {
			return err
		}
		res.OddsInserted = inserted

		if inserted > 0 {
			updatedAt := p.now()
			if lastUpdate != nil {
				updatedAt = *lastUpdate
			}
			if err := store.Events.UpdateOddsStatus(ctx, event.EventID, true, updatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.RecordEvent(p.mode, "failed")
		if repository.IsConnectionError(err) {
			return Result{}, fmt.Errorf("%w: failed to store event %d: %w", ErrStoreUnavailable, event.EventID, err)
		}
		return Result{}, fmt.Errorf("failed to store event %d: %w", event.EventID, err)
	}

	metrics.RecordOddsInserted(p.mode, res.OddsInserted)
	metrics.RecordEvent(p.mode, OutcomeStored.String())

	log.Debug().
		Int64("event_id", event.EventID).
		Str("home", event.HomeTeamName).
		Str("away", event.AwayTeamName).
		Int("odds_candidates", len(records)).
		Int("odds_inserted", res.OddsInserted).
		Msg("Event processed")

	return res, nil
}
