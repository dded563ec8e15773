package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"oddscollector/ingestion/internal/client"
	"oddscollector/ingestion/internal/metrics"
	"oddscollector/ingestion/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultBackfillWorkers is the default worker pool size
const DefaultBackfillWorkers = 4

// Window is the inclusive range of calendar days a backfill walks
type Window struct {
	Start time.Time
	End   time.Time
	// Leagues filters each day by league id; empty walks each day unfiltered
	Leagues []string
}

// WindowForDays returns the window of the last days calendar days, ending today in loc
func WindowForDays(now time.Time, loc *time.Location, days int, leagues []string) Window {
	if loc == nil {
		loc = time.UTC
	}
	if days < 1 {
		days = 1
	}
	local := now.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{Start: end.AddDate(0, 0, -(days - 1)), End: end, Leagues: leagues}
}

// Task is one (day, league) unit of backfill work
type Task struct {
	Day      time.Time
	LeagueID string
}

func (t Task) String() string {
	if t.LeagueID == "" {
		return t.Day.Format("2006-01-02")
	}
	return t.Day.Format("2006-01-02") + "/" + t.LeagueID
}

// BuildTasks expands w into its day x league cross product, oldest day first
func BuildTasks(w Window) []Task {
	if w.End.Before(w.Start) {
		return nil
	}

	leagues := w.Leagues
	if len(leagues) == 0 {
		leagues = []string{""}
	}

	var tasks []Task
	for day := w.Start; !day.After(w.End); day = day.AddDate(0, 0, 1) {
		for _, league := range leagues {
			tasks = append(tasks, Task{Day: day, LeagueID: league})
		}
	}
	return tasks
}

// TaskResult tallies one finished task
type TaskResult struct {
	Pages        int
	Events       int
	Stored       int
	Filtered     int
	Invalid      int
	Failed       int
	OddsInserted int
	// Interrupted is set when the task observed cancellation before its last page
	Interrupted bool
}

// TaskRunner executes a single backfill task. It must release everything it
// acquires before returning.
type TaskRunner interface {
	RunTask(stop context.Context, task Task) (TaskResult, error)
}

// Summary aggregates a backfill run.
// Succeeded + Failed + Interrupted == Started <= Dispatched <= Total.
type Summary struct {
	RunID       string
	Total       int
	Dispatched  int
	Started     int
	Succeeded   int
	Failed      int
	Interrupted int
	// Abandoned counts tasks that never started
	Abandoned int
	Cancelled bool
	// Aborted is set when a task lost the store and the run stopped dispatching
	Aborted bool
	Pruned  int64

	Pages         int
	Events        int
	Stored        int
	EventFailures int
	OddsInserted  int
}

func (s *Summary) record(res TaskResult, err error) {
	s.Started++
	s.Pages += res.Pages
	s.Events += res.Events
	s.Stored += res.Stored
	s.EventFailures += res.Failed
	s.OddsInserted += res.OddsInserted

	switch {
	case err != nil:
		s.Failed++
		metrics.RecordBackfillTask("failed")
	case res.Interrupted:
		s.Interrupted++
		metrics.RecordBackfillTask("interrupted")
	default:
		s.Succeeded++
		metrics.RecordBackfillTask("succeeded")
	}
}

// BackfillConfig wires a Backfill
type BackfillConfig struct {
	Runner        TaskRunner
	Pruner        Pruner
	Workers       int
	RetentionDays int
	Location      *time.Location
}

// Backfill fans (day, league) tasks out over a fixed pool of workers
type Backfill struct {
	runner        TaskRunner
	pruner        Pruner
	workers       int
	retentionDays int
	loc           *time.Location
}

// NewBackfill creates a Backfill
func NewBackfill(cfg BackfillConfig) *Backfill {
	b := &Backfill{
		runner:        cfg.Runner,
		pruner:        cfg.Pruner,
		workers:       cfg.Workers,
		retentionDays: cfg.RetentionDays,
		loc:           cfg.Location,
	}
	if b.workers < 1 {
		b.workers = DefaultBackfillWorkers
	}
	if b.loc == nil {
		b.loc = time.UTC
	}
	return b
}

// Run prunes once, then executes every task of w. Cancelling stop ends
// dispatch; running tasks finish their current event and unstarted tasks
// are abandoned. A task failing with ErrStoreUnavailable ends the run the
// same way. The error is non-nil when pruning failed, in which case nothing
// was dispatched, or when the store was lost.
func (b *Backfill) Run(stop context.Context, w Window) (Summary, error) {
	start := time.Now()
	ctx := context.WithoutCancel(stop)

	tasks := BuildTasks(w)
	sum := Summary{RunID: uuid.NewString(), Total: len(tasks)}
	logger := log.With().Str("run_id", sum.RunID).Logger()

	logger.Info().
		Str("start", w.Start.Format("2006-01-02")).
		Str("end", w.End.Format("2006-01-02")).
		Int("leagues", len(w.Leagues)).
		Int("tasks", sum.Total).
		Int("workers", b.workers).
		Msg("Starting backfill")

	pruned, err := b.pruner.PruneOlderThan(ctx, b.retentionDays, b.loc)
	if err != nil {
		sum.Abandoned = sum.Total
		metrics.RecordRun("backfill", "failed", time.Since(start).Seconds())
		return sum, fmt.Errorf("failed to prune before backfill: %w", err)
	}
	sum.Pruned = pruned
	metrics.RecordPruned(pruned)

	// run is cancelled by stop or by the first task that lost the store
	run, abort := context.WithCancel(stop)
	defer abort()

	var (
		mu    sync.Mutex
		fatal error
		queue = make(chan Task)
		g     errgroup.Group
	)

	for i := 0; i < b.workers; i++ {
		worker := i
		g.Go(func() error {
			for task := range queue {
				if run.Err() != nil {
					continue
				}

				metrics.BackfillWorkersBusy.Inc()
				res, err := b.runner.RunTask(run, task)
				metrics.BackfillWorkersBusy.Dec()
				lost := errors.Is(err, ErrStoreUnavailable)
				if lost {
					abort()
				}

				ev := logger.Info()
				if err != nil {
					ev = logger.Error().Err(err)
				}
				ev.Int("worker", worker).
					Str("task", task.String()).
					Int("pages", res.Pages).
					Int("events", res.Events).
					Int("stored", res.Stored).
					Int("failed", res.Failed).
					Bool("interrupted", res.Interrupted).
					Msg("Task finished")

				mu.Lock()
				sum.record(res, err)
				if lost && fatal == nil {
					fatal = err
				}
				mu.Unlock()
			}
			return nil
		})
	}

	dispatched := 0
dispatch:
	for _, task := range tasks {
		if run.Err() != nil {
			break
		}
		select {
		case <-run.Done():
			break dispatch
		case queue <- task:
			dispatched++
		}
	}
	close(queue)
	_ = g.Wait()

	sum.Dispatched = dispatched
	sum.Abandoned = sum.Total - sum.Started
	sum.Cancelled = stop.Err() != nil
	sum.Aborted = fatal != nil

	status := "success"
	switch {
	case sum.Aborted:
		status = "failed"
	case sum.Cancelled:
		status = "cancelled"
	case sum.Failed > 0:
		status = "partial"
	}
	metrics.RecordRun("backfill", status, time.Since(start).Seconds())

	logger.Info().
		Int("total", sum.Total).
		Int("dispatched", sum.Dispatched).
		Int("succeeded", sum.Succeeded).
		Int("failed", sum.Failed).
		Int("interrupted", sum.Interrupted).
		Int("abandoned", sum.Abandoned).
		Int("events", sum.Events).
		Int("stored", sum.Stored).
		Int("event_failures", sum.EventFailures).
		Int("odds_inserted", sum.OddsInserted).
		Bool("aborted", sum.Aborted).
		Dur("duration", time.Since(start)).
		Msg("Backfill finished")

	if fatal != nil {
		return sum, fmt.Errorf("backfill aborted: %w", fatal)
	}
	return sum, nil
}

// Conn is a database connection owned by one task
type Conn interface {
	repository.DBTX
	Release()
}

// AcquireFunc checks a connection out of a pool
type AcquireFunc func(ctx context.Context) (Conn, error)

// APIFactory creates the client handles of one task
type APIFactory func() (EventsFetcher, OddsFetcher)

// TaskExecutorConfig wires a TaskExecutor
type TaskExecutorConfig struct {
	Acquire AcquireFunc
	NewAPI  APIFactory
	// Processor is the template for each task's processor; Odds and Mode are overridden
	Processor ProcessorConfig
	SportID   int
	// MaxPages caps the pages walked per task; defaults to DefaultDailyMaxPages
	MaxPages int
}

// TaskExecutor runs a task on its own connection and API client
type TaskExecutor struct {
	acquire  AcquireFunc
	newAPI   APIFactory
	proc     ProcessorConfig
	sportID  int
	maxPages int
}

// NewTaskExecutor creates a TaskExecutor
func NewTaskExecutor(cfg TaskExecutorConfig) *TaskExecutor {
	e := &TaskExecutor{
		acquire:  cfg.Acquire,
		newAPI:   cfg.NewAPI,
		proc:     cfg.Processor,
		sportID:  cfg.SportID,
		maxPages: cfg.MaxPages,
	}
	if e.maxPages <= 0 {
		e.maxPages = DefaultDailyMaxPages
	}
	return e
}

// RunTask walks every page of task. Event failures are tallied and the walk
// continues; a page fetch failure or reaching the page cap fails the task.
// Failing to acquire a connection, or losing it mid-task, is reported as
// ErrStoreUnavailable.
func (e *TaskExecutor) RunTask(stop context.Context, task Task) (TaskResult, error) {
	var res TaskResult
	ctx := context.WithoutCancel(stop)

	conn, err := e.acquire(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: failed to acquire connection for %s: %w", ErrStoreUnavailable, task, err)
	}
	defer conn.Release()

	events, odds := e.newAPI()
	cfg := e.proc
	cfg.Odds = odds
	cfg.Mode = "backfill"
	proc := NewProcessor(cfg)

	logger := log.With().Str("task", task.String()).Logger()

	it := NewDayLeagueIterator(events, client.EndedEventsQuery{
		SportID:  e.sportID,
		Day:      task.Day,
		LeagueID: task.LeagueID,
	})

	for {
		if stop.Err() != nil {
			res.Interrupted = true
			return res, nil
		}
		if !it.Next(ctx) {
			break
		}
		if res.Pages >= e.maxPages {
			return res, fmt.Errorf("page limit %d reached for %s", e.maxPages, task)
		}

		page := it.Page()
		batch := it.Events()
		res.Pages++
		metrics.RecordPage("backfill")
		logger.Debug().Int("page", page).Int("events", len(batch)).Msg("Processing page")

		for i := range batch {
			if stop.Err() != nil {
				res.Interrupted = true
				return res, nil
			}

			r, err := proc.ProcessEvent(ctx, conn, &batch[i])
			res.Events++
			if errors.Is(err, ErrStoreUnavailable) {
				res.Failed++
				return res, fmt.Errorf("task %s: %w", task, err)
			}
			if err != nil {
				res.Failed++
				logger.Error().Err(err).Int("page", page).Str("event_id", batch[i].ID.String()).Msg("Failed to process event")
				continue
			}

			switch r.Outcome {
			case OutcomeStored:
				res.Stored++
				res.OddsInserted += r.OddsInserted
			case OutcomeFiltered:
				res.Filtered++
			case OutcomeInvalid:
				res.Invalid++
			}
		}
	}

	if err := it.Err(); err != nil {
		return res, fmt.Errorf("failed to fetch page %d of %s: %w", it.Page(), task, err)
	}

	return res, nil
}
