package cache

import (
	"context"
	"time"

	"oddscollector/ingestion/internal/metrics"
	"oddscollector/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// OddsSource fetches odds summaries from upstream
type OddsSource interface {
	FetchOddsSummary(ctx context.Context, eventID int64) (models.OddsSummary, error)
}

// SummaryStore is the cache backend; *RedisCache implements it
type SummaryStore interface {
	GetOddsSummary(ctx context.Context, eventID int64) (models.OddsSummary, bool, error)
	SetOddsSummary(ctx context.Context, eventID int64, summary models.OddsSummary, ttl time.Duration) error
}

// OddsFetcher serves odds summaries from the cache, falling through to the
// source on a miss. Cache failures are logged and never fail the call.
type OddsFetcher struct {
	source OddsSource
	store  SummaryStore
	ttl    time.Duration
}

// NewOddsFetcher wraps source with store
func NewOddsFetcher(source OddsSource, store SummaryStore, ttl time.Duration) *OddsFetcher {
	return &OddsFetcher{source: source, store: store, ttl: ttl}
}

// FetchOddsSummary implements OddsSource
func (f *OddsFetcher) FetchOddsSummary(ctx context.Context, eventID int64) (models.OddsSummary, error) {
	summary, ok, err := f.store.GetOddsSummary(ctx, eventID)
	if err != nil {
		log.Warn().Err(err).Int64("event_id", eventID).Msg("Odds cache read failed")
	} else if ok {
		metrics.RecordCacheHit()
		return summary, nil
	}
	metrics.RecordCacheMiss()

	summary, err = f.source.FetchOddsSummary(ctx, eventID)
	if err != nil {
		return nil, err
	}

	// Only summaries with content are cached; empty ones may still fill in upstream
	if len(summary) > 0 {
		if err := f.store.SetOddsSummary(ctx, eventID, summary, f.ttl); err != nil {
			log.Warn().Err(err).Int64("event_id", eventID).Msg("Odds cache write failed")
		}
	}

	return summary, nil
}
