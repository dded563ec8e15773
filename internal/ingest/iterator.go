// Package ingest walks the ended-events feed and persists what it finds.
// It holds the page iterator, the per-event worker, the daily runner and
// the concurrent backfill scheduler.
package ingest

import (
	"context"

	"oddscollector/ingestion/internal/client"
	"oddscollector/ingestion/internal/models"
)

// EventsFetcher fetches one page of ended events
type EventsFetcher interface {
	FetchEndedEvents(ctx context.Context, q client.EndedEventsQuery) (*client.EventsPage, error)
}

// DayLeagueIterator walks the pages of one (day, league) filter in
// ascending order. It stops on an empty page, on a pager that reports no
// further pages, or on a fetch failure (see Err).
//
//	it := NewDayLeagueIterator(api, query)
//	for it.Next(ctx) {
//		for _, ev := range it.Events() { ... }
//	}
//	if err := it.Err(); err != nil { ... }
type DayLeagueIterator struct {
	fetcher   EventsFetcher
	query     client.EndedEventsQuery
	startPage int

	nextPage  int
	current   *client.EventsPage
	err       error
	exhausted bool
}

// NewDayLeagueIterator creates an iterator starting at q.Page (or 1)
func NewDayLeagueIterator(fetcher EventsFetcher, q client.EndedEventsQuery) *DayLeagueIterator {
	it := &DayLeagueIterator{fetcher: fetcher, query: q, startPage: q.Page}
	if it.startPage < 1 {
		it.startPage = 1
	}
	it.Reset()
	return it
}

// StartAt restarts the iteration from page
func (it *DayLeagueIterator) StartAt(page int) {
	if page < 1 {
		page = 1
	}
	it.startPage = page
	it.Reset()
}

// Reset restarts the iteration from the start page
func (it *DayLeagueIterator) Reset() {
	it.nextPage = it.startPage
	it.current = nil
	it.err = nil
	it.exhausted = false
}

// Next fetches the next page and reports whether it holds events
func (it *DayLeagueIterator) Next(ctx context.Context) bool {
	if it.exhausted {
		return false
	}

	q := it.query
	q.Page = it.nextPage

	page, err := it.fetcher.FetchEndedEvents(ctx, q)
	if err != nil {
		it.err = err
		it.current = nil
		it.exhausted = true
		return false
	}
	if page == nil || len(page.Events) == 0 {
		it.current = nil
		it.exhausted = true
		return false
	}

	it.current = page
	it.nextPage++
	if !page.HasNext() {
		it.exhausted = true
	}
	return true
}

// Page returns the number of the current page, or the last page
// requested when the iteration has ended
func (it *DayLeagueIterator) Page() int {
	if it.current != nil {
		return it.current.Page
	}
	return it.nextPage
}

// Events returns the events of the current page in upstream order
func (it *DayLeagueIterator) Events() []models.RawEvent {
	if it.current == nil {
		return nil
	}
	return it.current.Events
}

// Err returns the fetch failure that ended the iteration, if any
func (it *DayLeagueIterator) Err() error {
	return it.err
}
