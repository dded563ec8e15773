package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"oddscollector/ingestion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls   int
	summary models.OddsSummary
	err     error
}

func (f *fakeSource) FetchOddsSummary(ctx context.Context, eventID int64) (models.OddsSummary, error) {
	f.calls++
	return f.summary, f.err
}

type fakeStore struct {
	data    map[int64]models.OddsSummary
	getErr  error
	setErr  error
	lastTTL time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[int64]models.OddsSummary{}}
}

func (s *fakeStore) GetOddsSummary(ctx context.Context, eventID int64) (models.OddsSummary, bool, error) {
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	v, ok := s.data[eventID]
	return v, ok, nil
}

func (s *fakeStore) SetOddsSummary(ctx context.Context, eventID int64, summary models.OddsSummary, ttl time.Duration) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.data[eventID] = summary
	s.lastTTL = ttl
	return nil
}

func sampleSummary() models.OddsSummary {
	return models.OddsSummary{models.DefaultBookmaker: models.BookmakerOdds{LastUpdate: "1700000000"}}
}

func TestOddsFetcher_MissThenHit(t *testing.T) {
	source := &fakeSource{summary: sampleSummary()}
	store := newFakeStore()
	f := NewOddsFetcher(source, store, time.Hour)

	got, err := f.FetchOddsSummary(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, sampleSummary(), got)
	assert.Equal(t, time.Hour, store.lastTTL)

	got, err = f.FetchOddsSummary(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, sampleSummary(), got)
	assert.Equal(t, 1, source.calls, "second call served from cache")
}

func TestOddsFetcher_EmptySummaryNotCached(t *testing.T) {
	source := &fakeSource{summary: models.OddsSummary{}}
	store := newFakeStore()
	f := NewOddsFetcher(source, store, time.Hour)

	_, err := f.FetchOddsSummary(context.Background(), 2)
	require.NoError(t, err)
	_, err = f.FetchOddsSummary(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, source.calls)
	assert.Empty(t, store.data)
}

func TestOddsFetcher_CacheFailuresFallThrough(t *testing.T) {
	source := &fakeSource{summary: sampleSummary()}
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	store.setErr = errors.New("connection refused")
	f := NewOddsFetcher(source, store, time.Hour)

	got, err := f.FetchOddsSummary(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, sampleSummary(), got)
	assert.Equal(t, 1, source.calls)
}

func TestOddsFetcher_SourceErrorPropagates(t *testing.T) {
	boom := errors.New("retries exhausted")
	f := NewOddsFetcher(&fakeSource{err: boom}, newFakeStore(), time.Hour)

	_, err := f.FetchOddsSummary(context.Background(), 4)
	assert.ErrorIs(t, err, boom)
}
