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

	"github.com/rs/zerolog/log"
)

// DefaultDailyMaxPages caps the pages walked per day in one daily pass
const DefaultDailyMaxPages = 100

const dailyFetchPrefix = "ended_events:"

// DailyFetchKey is the fetch_state key of one calendar day
func DailyFetchKey(day time.Time) string {
	return dailyFetchPrefix + day.Format("20060102")
}

// CursorStore persists fetch cursors
type CursorStore interface {
	Get(ctx context.Context, fetchType string) (*models.FetchState, error)
	Update(ctx context.Context, fetchType string, upd models.FetchStateUpdate) error
}

// Pruner removes events outside the retention window
type Pruner interface {
	PruneOlderThan(ctx context.Context, daysToKeep int, loc *time.Location) (int64, error)
}

// Summarizer reports store totals
type Summarizer interface {
	Summary(ctx context.Context) (*models.StoreSummary, error)
}

// EventProcessor ingests one event payload
type EventProcessor interface {
	ProcessEvent(ctx context.Context, db repository.DBTX, raw *models.RawEvent) (Result, error)
}

// DailyConfig wires a DailyRunner
type DailyConfig struct {
	Events    EventsFetcher
	Processor EventProcessor
	// DB is handed to the processor for every event
	DB      repository.DBTX
	Cursors CursorStore
	// Recovery records error_unexpected when Cursors itself failed.
	// Defaults to Cursors.
	Recovery CursorStore
	Pruner   Pruner
	Summary  Summarizer

	Location      *time.Location
	SportID       int
	RetentionDays int
	MaxPages      int
	Now           func() time.Time
}

// DayReport is the outcome of one day of a daily pass
type DayReport struct {
	Day          time.Time
	FetchType    string
	Status       models.FetchStatus
	StartPage    int
	Pages        int
	Events       int
	Stored       int
	Filtered     int
	Invalid      int
	OddsInserted int
}

// DailyReport is the outcome of a daily pass
type DailyReport struct {
	Pruned int64
	Days   []DayReport
	// Halted is set when an event failure stopped the pass
	Halted bool
}

// DailyRunner prunes old rows, then sequentially ingests yesterday and today
type DailyRunner struct {
	cfg DailyConfig
}

// NewDailyRunner creates a DailyRunner
func NewDailyRunner(cfg DailyConfig) *DailyRunner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultDailyMaxPages
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Recovery == nil {
		cfg.Recovery = cfg.Cursors
	}
	return &DailyRunner{cfg: cfg}
}

// Days returns yesterday and today in the configured timezone
func (r *DailyRunner) Days() []time.Time {
	now := r.cfg.Now().In(r.cfg.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.cfg.Location)
	return []time.Time{today.AddDate(0, 0, -1), today}
}

// Run executes one daily pass. Cancelling stop pauses the pass at the next
// event boundary; the cursor keeps the last fully processed page. The
// returned error is non-nil only for store failures.
func (r *DailyRunner) Run(stop context.Context) (*DailyReport, error) {
	ctx := context.WithoutCancel(stop)
	start := time.Now()
	report := &DailyReport{}

	pruned, err := r.cfg.Pruner.PruneOlderThan(ctx, r.cfg.RetentionDays, r.cfg.Location)
	if err != nil {
		metrics.RecordRun("daily", "failed", time.Since(start).Seconds())
		return report, fmt.Errorf("failed to prune old events: %w", err)
	}
	report.Pruned = pruned
	metrics.RecordPruned(pruned)

	for _, day := range r.Days() {
		if stop.Err() != nil {
			break
		}

		dr, err := r.runDay(stop, ctx, day)
		report.Days = append(report.Days, dr)
		if err != nil {
			r.recordUnexpected(ctx, dr.FetchType)
			metrics.RecordRun("daily", "failed", time.Since(start).Seconds())
			return report, fmt.Errorf("daily fetch %s failed: %w", dr.FetchType, err)
		}
		if dr.Status == models.StatusErrorProcessingEvent {
			report.Halted = true
			break
		}
	}

	status := "success"
	switch {
	case stop.Err() != nil:
		status = "cancelled"
	case report.Halted:
		status = "halted"
	}
	metrics.RecordRun("daily", status, time.Since(start).Seconds())

	r.logSummary(ctx)
	return report, nil
}

func (r *DailyRunner) runDay(stop, ctx context.Context, day time.Time) (DayReport, error) {
	key := DailyFetchKey(day)
	rep := DayReport{Day: day, FetchType: key}
	logger := log.With().Str("day", day.Format("2006-01-02")).Str("fetch_type", key).Logger()

	state, err := r.cfg.Cursors.Get(ctx, key)
	if err != nil {
		return rep, err
	}

	lastDone := 0
	if state.Status.Resumable() {
		lastDone = state.LastProcessedPage
	}
	rep.StartPage = lastDone + 1

	logger.Info().
		Str("previous_status", string(state.Status)).
		Int("start_page", rep.StartPage).
		Msg("Starting daily fetch")

	if err := r.setStatus(ctx, key, models.StatusRunning, nil); err != nil {
		return rep, err
	}

	it := NewDayLeagueIterator(r.cfg.Events, client.EndedEventsQuery{
		SportID: r.cfg.SportID,
		Page:    rep.StartPage,
		Day:     day,
	})

	finish := func(status models.FetchStatus) (DayReport, error) {
		rep.Status = status
		page := lastDone
		if err := r.setStatus(ctx, key, status, &page); err != nil {
			return rep, err
		}
		logger.Info().
			Str("status", string(status)).
			Int("last_page", lastDone).
			Int("pages", rep.Pages).
			Int("events", rep.Events).
			Int("stored", rep.Stored).
			Int("odds_inserted", rep.OddsInserted).
			Msg("Daily fetch finished")
		return rep, nil
	}

	for {
		if stop.Err() != nil {
			return finish(models.StatusPaused)
		}
		if !it.Next(ctx) {
			break
		}

		page := it.Page()
		events := it.Events()
		logger.Info().Int("page", page).Int("events", len(events)).Msg("Processing page")

		for i := range events {
			if stop.Err() != nil {
				logger.Info().Int("page", page).Msg("Interrupted mid-page, saving state")
				return finish(models.StatusPaused)
			}

			res, err := r.cfg.Processor.ProcessEvent(ctx, r.cfg.DB, &events[i])
			rep.Events++
			if errors.Is(err, ErrStoreUnavailable) {
				return rep, err
			}
			if err != nil {
				logger.Error().Err(err).Int("page", page).Str("event_id", events[i].ID.String()).Msg("Failed to process event, halting")
				return finish(models.StatusErrorProcessingEvent)
			}
			rep.tally(res)
		}

		metrics.RecordPage("daily")
		lastDone = page
		rep.Pages++

		now := r.cfg.Now()
		running := models.StatusRunning
		if err := r.cfg.Cursors.Update(ctx, key, models.FetchStateUpdate{Page: &page, Timestamp: &now, Status: &running}); err != nil {
			return rep, err
		}

		if rep.Pages >= r.cfg.MaxPages {
			logger.Warn().Int("max_pages", r.cfg.MaxPages).Msg("Page limit reached")
			return finish(models.StatusPausedMaxPages)
		}
	}

	if err := it.Err(); err != nil {
		logger.Error().Err(err).Int("page", it.Page()).Msg("Failed to fetch page, skipping")
		return finish(models.StatusErrorSkippedPage)
	}

	return finish(models.StatusCompleted)
}

func (rep *DayReport) tally(res Result) {
	switch res.Outcome {
	case OutcomeStored:
		rep.Stored++
		rep.OddsInserted += res.OddsInserted
	case OutcomeFiltered:
		rep.Filtered++
	case OutcomeInvalid:
		rep.Invalid++
	}
}

func (r *DailyRunner) setStatus(ctx context.Context, key string, status models.FetchStatus, page *int) error {
	return r.cfg.Cursors.Update(ctx, key, models.FetchStateUpdate{Page: page, Status: &status})
}

func (r *DailyRunner) recordUnexpected(ctx context.Context, key string) {
	if key == "" || r.cfg.Recovery == nil {
		return
	}
	status := models.StatusErrorUnexpected
	if err := r.cfg.Recovery.Update(ctx, key, models.FetchStateUpdate{Status: &status}); err != nil {
		log.Error().Err(err).Str("fetch_type", key).Msg("Could not record unexpected error state")
	}
}

func (r *DailyRunner) logSummary(ctx context.Context) {
	if r.cfg.Summary == nil {
		return
	}
	s, err := r.cfg.Summary.Summary(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load store summary")
		return
	}
	metrics.UpdateStoreStats(s.TotalEvents, s.TotalOdds)
	log.Info().
		Int64("events", s.TotalEvents).
		Int64("events_with_odds", s.EventsWithOdds).
		Int64("events_without_score", s.EventsWithoutScore).
		Int64("events_last_24h", s.EventsLast24h).
		Int64("odds", s.TotalOdds).
		Msg("Store summary")
}
