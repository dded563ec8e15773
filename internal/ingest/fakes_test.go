package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"oddscollector/ingestion/internal/client"
	"oddscollector/ingestion/internal/models"
	"oddscollector/ingestion/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	errBoom = errors.New("boom")

	errConnRefused error = &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
)

func rawEvent(id int64) models.RawEvent {
	return models.RawEvent{
		ID:      models.FlexString(strconv.FormatInt(id, 10)),
		SportID: "1",
		Time:    "1705312800",
		League:  models.RawRef{ID: "22614", Name: "Esoccer Battle - 8 mins play"},
		Home:    models.RawRef{ID: "1", Name: "Arsenal (Alpha)"},
		Away:    models.RawRef{ID: "2", Name: "Chelsea (Bravo)"},
		SS:      "2-1",
	}
}

// fakeFetcher serves pages[n-1] for page n with a total_pages pager
type fakeFetcher struct {
	mu      sync.Mutex
	pages   [][]models.RawEvent
	failAt  map[int]error
	noPager bool
	queries []client.EndedEventsQuery
}

func newFakeFetcher(pages ...[]models.RawEvent) *fakeFetcher {
	return &fakeFetcher{pages: pages, failAt: map[int]error{}}
}

func (f *fakeFetcher) FetchEndedEvents(ctx context.Context, q client.EndedEventsQuery) (*client.EventsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)

	if err := f.failAt[q.Page]; err != nil {
		return nil, err
	}
	page := &client.EventsPage{Page: q.Page}
	if q.Page <= len(f.pages) {
		page.Events = f.pages[q.Page-1]
	}
	if !f.noPager {
		page.Pager = &models.Pager{
			Page:       models.FlexString(strconv.Itoa(q.Page)),
			TotalPages: models.FlexString(strconv.Itoa(len(f.pages))),
		}
	}
	return page, nil
}

func (f *fakeFetcher) requestedPages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	pages := make([]int, 0, len(f.queries))
	for _, q := range f.queries {
		pages = append(pages, q.Page)
	}
	return pages
}

type fakeOdds struct {
	mu        sync.Mutex
	summaries map[int64]models.OddsSummary
	errs      map[int64]error
	calls     int
}

func (f *fakeOdds) FetchOddsSummary(ctx context.Context, eventID int64) (models.OddsSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[eventID]; err != nil {
		return nil, err
	}
	return f.summaries[eventID], nil
}

// fakeDB records statements and emulates transactions and savepoints
type fakeDB struct {
	mu           sync.Mutex
	statements   []string
	failOn       string
	failErr      error
	oddsAffected int64
	commits      int
	rollbacks    int
	releases     int
}

func newFakeDB() *fakeDB { return &fakeDB{oddsAffected: 1} }

func (db *fakeDB) record(sql string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.statements = append(db.statements, strings.Join(strings.Fields(sql), " "))
	if db.failOn != "" && strings.Contains(sql, db.failOn) {
		if db.failErr != nil {
			return db.failErr
		}
		return errBoom
	}
	return nil
}

func (db *fakeDB) count(fragment string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, s := range db.statements {
		if strings.Contains(s, fragment) {
			n++
		}
	}
	return n
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if err := db.record(sql); err != nil {
		return pgconn.CommandTag{}, err
	}
	if strings.Contains(sql, "INSERT INTO odds") {
		return pgconn.NewCommandTag(fmt.Sprintf("INSERT 0 %d", db.oddsAffected)), nil
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (db *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("fakeDB: Query not supported")
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	row := fakeRow{err: db.record(sql)}
	if len(args) > 0 {
		row.id, _ = args[0].(int64)
	}
	return row
}

func (db *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return &fakeTx{db: db, depth: 1}, nil
}

func (db *fakeDB) Release() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.releases++
}

type fakeTx struct {
	pgx.Tx
	db     *fakeDB
	depth  int
	closed bool
}

func (tx *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return &fakeTx{db: tx.db, depth: tx.depth + 1}, nil
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	if tx.depth == 1 {
		tx.db.mu.Lock()
		tx.db.commits++
		tx.db.mu.Unlock()
	}
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	if tx.depth == 1 {
		tx.db.mu.Lock()
		tx.db.rollbacks++
		tx.db.mu.Unlock()
	}
	return nil
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return tx.db.Exec(ctx, sql, args...)
}

func (tx *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return tx.db.Query(ctx, sql, args...)
}

func (tx *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return tx.db.QueryRow(ctx, sql, args...)
}

type fakeRow struct {
	id  int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if p, ok := dest[0].(*int64); ok {
		*p = r.id
	}
	return nil
}

// fakeCursors is an in-memory CursorStore
type fakeCursors struct {
	mu      sync.Mutex
	states  map[string]*models.FetchState
	history map[string][]models.FetchStatus
	failGet error
	failOn  models.FetchStatus
}

func newFakeCursors() *fakeCursors {
	return &fakeCursors{states: map[string]*models.FetchState{}, history: map[string][]models.FetchStatus{}}
}

func (c *fakeCursors) Get(ctx context.Context, fetchType string) (*models.FetchState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet != nil {
		return nil, c.failGet
	}
	s, ok := c.states[fetchType]
	if !ok {
		s = &models.FetchState{FetchType: fetchType, Status: models.StatusIdle}
		c.states[fetchType] = s
	}
	cp := *s
	return &cp, nil
}

func (c *fakeCursors) Update(ctx context.Context, fetchType string, upd models.FetchStateUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if upd.Status != nil && c.failOn != "" && *upd.Status == c.failOn {
		return errBoom
	}
	s, ok := c.states[fetchType]
	if !ok {
		s = &models.FetchState{FetchType: fetchType, Status: models.StatusIdle}
		c.states[fetchType] = s
	}
	if upd.Page != nil {
		s.LastProcessedPage = *upd.Page
	}
	if upd.Timestamp != nil {
		s.LastProcessedTimestamp.Time, s.LastProcessedTimestamp.Valid = *upd.Timestamp, true
	}
	if upd.Status != nil {
		s.Status = *upd.Status
		c.history[fetchType] = append(c.history[fetchType], *upd.Status)
	}
	return nil
}

func (c *fakeCursors) state(fetchType string) models.FetchState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[fetchType]; ok {
		return *s
	}
	return models.FetchState{}
}

type fakePruner struct {
	mu    sync.Mutex
	calls int
	days  int
	err   error
}

func (p *fakePruner) PruneOlderThan(ctx context.Context, daysToKeep int, loc *time.Location) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.days = daysToKeep
	if p.err != nil {
		return 0, p.err
	}
	return 3, nil
}

// fakeProcessor stores everything except the ids listed in fail
type fakeProcessor struct {
	mu   sync.Mutex
	fail map[string]bool
	// failErr is returned for failing ids; defaults to errBoom
	failErr error
	seen    []string
	onCall  func(id string)
}

func (p *fakeProcessor) ProcessEvent(ctx context.Context, db repository.DBTX, raw *models.RawEvent) (Result, error) {
	id := raw.ID.String()
	p.mu.Lock()
	p.seen = append(p.seen, id)
	onCall := p.onCall
	failed := p.fail[id]
	failErr := p.failErr
	p.mu.Unlock()

	if onCall != nil {
		onCall(id)
	}
	if failed {
		if failErr != nil {
			return Result{}, failErr
		}
		return Result{}, errBoom
	}
	return Result{Outcome: OutcomeStored, OddsInserted: 1}, nil
}

func (p *fakeProcessor) processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}
