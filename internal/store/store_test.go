package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeytrack-collector/internal/errorkind"
	"honeytrack-collector/internal/event"
	"honeytrack-collector/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvent(hash string, score float64, band event.Band, source string) event.Event {
	now := time.Now().UTC()
	return event.Event{
		ObservedAt:    now,
		IngestedAt:    now,
		SourceAddress: source,
		TargetService: "git",
		Action:        "file_access",
		SessionID:     "s1",
		Headers:       map[string]string{},
		Payload:       []byte("{}"),
		Score: event.Score{
			Value: score,
			Band:  band,
		},
		ContentHash: hash,
	}
}

func TestPut_DedupOnContentHash(t *testing.T) {
	s := openTestStore(t)
	e := sampleEvent("hash-1", 0.5, event.BandMedium, "203.0.113.1")

	r1, err := s.Put(e)
	require.NoError(t, err)
	assert.True(t, r1.Inserted)

	r2, err := s.Put(e)
	require.NoError(t, err)
	assert.False(t, r2.Inserted)

	stats, err := s.Stats(time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
}

func TestLiveEvents_MinScoreFilter(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Put(sampleEvent("h1", 0.3, event.BandLow, "203.0.113.1"))
	require.NoError(t, err)
	_, err = s.Put(sampleEvent("h2", 1.0, event.BandHigh, "203.0.113.2"))
	require.NoError(t, err)

	min := 1.0
	events, err := s.LiveEvents(store.LiveEventsFilter{Limit: 10, MinScore: &min})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1.0, events[0].Score.Value)
}

func TestAlerts_OrderedByScoreDescending(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Put(sampleEvent("h1", 0.30, event.BandLow, "203.0.113.1"))
	require.NoError(t, err)
	_, err = s.Put(sampleEvent("h2", 0.55, event.BandMedium, "203.0.113.2"))
	require.NoError(t, err)
	_, err = s.Put(sampleEvent("h3", 0.92, event.BandHigh, "203.0.113.3"))
	require.NoError(t, err)

	events, err := s.Alerts(0.5, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 0.92, events[0].Score.Value)
	assert.Equal(t, 0.55, events[1].Score.Value)
}

func TestInvestigate_NotFoundForUnknownSource(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Investigate("198.51.100.9", time.Now().UTC())
	require.Error(t, err)
	ke, ok := errorkind.As(err)
	require.True(t, ok)
	assert.Equal(t, errorkind.NotFound, ke.Kind)
}

func TestStats_EmptyDBReturnsZerosAnd24Buckets(t *testing.T) {
	s := openTestStore(t)
	stats, err := s.Stats(time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
	require.Len(t, stats.HourlySeries, 24)
	for _, b := range stats.HourlySeries {
		assert.Equal(t, int64(0), b.Count)
	}
}

func TestHourBucketKey_Format(t *testing.T) {
	ts := time.Date(2024, 6, 1, 10, 42, 17, 0, time.UTC)
	key := store.HourBucketKey(ts)
	assert.Equal(t, "2024-06-01T10:00:00Z", key)
}

func TestStats_WindowAnchoredOnNowNotLatestRow(t *testing.T) {
	s := openTestStore(t)
	old := sampleEvent("h1", 0.5, event.BandMedium, "203.0.113.1")
	old.IngestedAt = time.Now().UTC().Add(-25 * time.Hour)
	_, err := s.Put(old)
	require.NoError(t, err)

	now := time.Now().UTC()
	analytics, err := s.Analytics(now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), analytics.Total24h)

	stats, err := s.Stats(now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
}
