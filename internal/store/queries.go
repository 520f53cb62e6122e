package store

import (
	"sort"
	"time"

	"honeytrack-collector/internal/errorkind"
	"honeytrack-collector/internal/event"
)

const bucketLayout = "2006-01-02T15:00:00Z"

// HourBucketKey truncates t to the UTC hour and formats it as the
// canonical bucket key (§4.5).
func HourBucketKey(t time.Time) string {
	return t.UTC().Truncate(time.Hour).Format(bucketLayout)
}

// hourlyBucketKeys returns the `hours` consecutive UTC-hour bucket keys
// ending at now's hour (inclusive), in ascending order (§4.5, §8 property 7).
func hourlyBucketKeys(now time.Time, hours int) []string {
	anchor := now.UTC().Truncate(time.Hour)
	keys := make([]string, hours)
	for i := 0; i < hours; i++ {
		keys[i] = HourBucketKey(anchor.Add(-time.Duration(hours-1-i) * time.Hour))
	}
	return keys
}

// Bucket is one point of an hourly time series.
type Bucket struct {
	Bucket   string  `json:"bucket"`
	Count    int64   `json:"count"`
	AvgScore float64 `json:"avg_score"`
}

// TopEntry is one row of a top-N breakdown, ordered by Count descending,
// ties broken lexicographically by Key (§4.5).
type TopEntry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

func topN(counts map[string]int64, n int) []TopEntry {
	entries := make([]TopEntry, 0, len(counts))
	for k, c := range counts {
		entries = append(entries, TopEntry{Key: k, Count: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func bucketSeries(rows []EventRow, now time.Time, hours int) []Bucket {
	keys := hourlyBucketKeys(now, hours)
	sums := make(map[string]float64, hours)
	counts := make(map[string]int64, hours)

	windowStart := now.UTC().Truncate(time.Hour).Add(-time.Duration(hours-1) * time.Hour)

	for _, r := range rows {
		if r.IngestedAt.UTC().Before(windowStart) {
			continue
		}
		key := HourBucketKey(r.IngestedAt)
		sums[key] += r.ScoreValue
		counts[key]++
	}

	buckets := make([]Bucket, len(keys))
	for i, k := range keys {
		c := counts[k]
		var avg float64
		if c > 0 {
			avg = sums[k] / float64(c)
		}
		buckets[i] = Bucket{Bucket: k, Count: c, AvgScore: avg}
	}
	return buckets
}

// LiveEventsFilter narrows the live_events query (§4.5).
type LiveEventsFilter struct {
	Limit    int
	Source   string
	MinScore *float64
}

const maxQueryLimit = 10000

func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// LiveEvents returns the most recent events, optionally filtered.
func (s *Store) LiveEvents(filter LiveEventsFilter) ([]event.Event, error) {
	q := s.db.Model(&EventRow{}).Order("ingested_at desc").Limit(clampLimit(filter.Limit))
	if filter.Source != "" {
		q = q.Where("source_address = ?", filter.Source)
	}
	if filter.MinScore != nil {
		q = q.Where("score_value >= ?", *filter.MinScore)
	}

	var rows []EventRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrapFatal(err)
	}

	events := make([]event.Event, len(rows))
	for i, r := range rows {
		events[i] = fromRow(r)
	}
	return events, nil
}

// StatsResult backs the /stats dashboard summary (§4.5).
type StatsResult struct {
	Total           int64     `json:"total"`
	DistinctSources int64     `json:"distinct_sources"`
	Last24h         int64     `json:"last_24h"`
	AverageScore    float64   `json:"average_score"`
	HighRiskCount   int64     `json:"high_risk_count"`
	AnomalyCount    int64     `json:"anomaly_count"`
	TopServices     []TopEntry `json:"top_services"`
	TopActions      []TopEntry `json:"top_actions"`
	TopCountries    []TopEntry `json:"top_countries"`
	BandHistogram   map[string]int64 `json:"band_histogram"`
	HourlySeries    []Bucket  `json:"hourly_series"`
}

const topNDefault = 10

// Stats computes the dashboard summary, anchored at now (§4.5, §4.7: the
// anchor is current UTC time, never the latest row's timestamp).
func (s *Store) Stats(now time.Time) (StatsResult, error) {
	var all []EventRow
	if err := s.db.Model(&EventRow{}).Find(&all).Error; err != nil {
		return StatsResult{}, wrapFatal(err)
	}

	result := StatsResult{
		BandHistogram: map[string]int64{
			string(event.BandMinimal): 0,
			string(event.BandLow):     0,
			string(event.BandMedium):  0,
			string(event.BandHigh):    0,
		},
	}

	sources := map[string]bool{}
	services := map[string]int64{}
	actions := map[string]int64{}
	countries := map[string]int64{}

	windowStart := now.UTC().Add(-24 * time.Hour)
	var scoreSum float64

	for _, r := range all {
		result.Total++
		sources[r.SourceAddress] = true
		services[r.TargetService]++
		actions[r.Action]++
		if r.Country != "" {
			countries[r.Country]++
		}
		result.BandHistogram[r.ScoreBand]++
		scoreSum += r.ScoreValue

		if r.ScoreBand == string(event.BandHigh) {
			result.HighRiskCount++
		}
		if r.IsAnomaly {
			result.AnomalyCount++
		}
		if r.IngestedAt.UTC().After(windowStart) {
			result.Last24h++
		}
	}

	result.DistinctSources = int64(len(sources))
	if result.Total > 0 {
		result.AverageScore = scoreSum / float64(result.Total)
	}
	result.TopServices = topN(services, topNDefault)
	result.TopActions = topN(actions, topNDefault)
	result.TopCountries = topN(countries, topNDefault)
	result.HourlySeries = bucketSeries(all, now, 24)

	return result, nil
}

// AnalyticsResult backs the /analytics page (§4.5).
type AnalyticsResult struct {
	Total24h        int64      `json:"total_24h"`
	HighRiskTotal   int64      `json:"high_risk_total"`
	DistinctSources int64      `json:"distinct_sources"`
	AverageScore    float64    `json:"average_score"`
	TopCountries    []TopEntry `json:"top_countries"`
	TopSources      []TopEntry `json:"top_sources"`
	TopProtocols    []TopEntry `json:"top_protocols"`
	HourlySeries    []Bucket   `json:"hourly_series"`
}

func (s *Store) Analytics(now time.Time) (AnalyticsResult, error) {
	var all []EventRow
	if err := s.db.Model(&EventRow{}).Find(&all).Error; err != nil {
		return AnalyticsResult{}, wrapFatal(err)
	}

	windowStart := now.UTC().Add(-24 * time.Hour)
	sources := map[string]bool{}
	countries := map[string]int64{}
	sourceCounts := map[string]int64{}
	protocols := map[string]int64{}

	var result AnalyticsResult
	var scoreSum float64
	var scoreCount int64

	for _, r := range all {
		if !r.IngestedAt.UTC().After(windowStart) {
			continue
		}
		result.Total24h++
		sources[r.SourceAddress] = true
		sourceCounts[r.SourceAddress]++
		if r.Country != "" {
			countries[r.Country]++
		}
		if r.Protocol != "" {
			protocols[r.Protocol]++
		}
		if r.ScoreBand == string(event.BandHigh) {
			result.HighRiskTotal++
		}
		scoreSum += r.ScoreValue
		scoreCount++
	}

	result.DistinctSources = int64(len(sources))
	if scoreCount > 0 {
		result.AverageScore = scoreSum / float64(scoreCount)
	}
	result.TopCountries = topN(countries, topNDefault)
	result.TopSources = topN(sourceCounts, topNDefault)
	result.TopProtocols = topN(protocols, topNDefault)
	result.HourlySeries = bucketSeries(all, now, 24)

	return result, nil
}

// MapPoint is one per-source aggregate restricted to geolocated rows (§4.5).
type MapPoint struct {
	SourceAddress string  `json:"source_address"`
	Count         int64   `json:"count"`
	AvgScore      float64 `json:"avg_score"`
	Country       string  `json:"country"`
	City          string  `json:"city"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

func (s *Store) MapPoints() ([]MapPoint, error) {
	var rows []EventRow
	if err := s.db.Model(&EventRow{}).Where("is_private = ? AND country != ?", false, "").Find(&rows).Error; err != nil {
		return nil, wrapFatal(err)
	}

	type agg struct {
		count    int64
		scoreSum float64
		country  string
		city     string
		lat, lon float64
	}
	bySource := map[string]*agg{}
	for _, r := range rows {
		a, ok := bySource[r.SourceAddress]
		if !ok {
			a = &agg{country: r.Country, city: r.City, lat: r.Latitude, lon: r.Longitude}
			bySource[r.SourceAddress] = a
		}
		a.count++
		a.scoreSum += r.ScoreValue
	}

	points := make([]MapPoint, 0, len(bySource))
	for src, a := range bySource {
		points = append(points, MapPoint{
			SourceAddress: src,
			Count:         a.count,
			AvgScore:      a.scoreSum / float64(a.count),
			Country:       a.country,
			City:          a.city,
			Latitude:      a.lat,
			Longitude:     a.lon,
		})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Count != points[j].Count {
			return points[i].Count > points[j].Count
		}
		return points[i].SourceAddress < points[j].SourceAddress
	})
	return points, nil
}

// MLInsightsResult backs the /ml-insights page (§4.5).
type MLInsightsResult struct {
	AvgAnomalyScore       float64          `json:"avg_anomaly_score"`
	AnomalyCount          int64            `json:"anomaly_count"`
	HourlySeries          []Bucket         `json:"hourly_series"`
	TopSources            []TopEntry       `json:"top_sources"`
	BandHistogram         map[string]int64 `json:"band_histogram"`
	TrafficClassHistogram map[string]int64 `json:"traffic_class_histogram"`
	SuspiciousTrafficCount int64           `json:"suspicious_traffic_count"`
}

var suspiciousTrafficClasses = map[string]bool{"TOR": true, "VPN": true}

func (s *Store) MLInsights(now time.Time) (MLInsightsResult, error) {
	var all []EventRow
	if err := s.db.Model(&EventRow{}).Find(&all).Error; err != nil {
		return MLInsightsResult{}, wrapFatal(err)
	}

	result := MLInsightsResult{
		BandHistogram: map[string]int64{
			string(event.BandMinimal): 0,
			string(event.BandLow):     0,
			string(event.BandMedium):  0,
			string(event.BandHigh):    0,
		},
		TrafficClassHistogram: map[string]int64{},
	}

	highScoreSources := map[string]int64{}
	var anomalyScoreSum float64
	var anomalyCount int64

	for _, r := range all {
		result.BandHistogram[r.ScoreBand]++
		if r.TrafficClass != "" {
			result.TrafficClassHistogram[r.TrafficClass]++
		}
		if suspiciousTrafficClasses[r.TrafficClass] {
			result.SuspiciousTrafficCount++
		}
		if r.IsAnomaly {
			anomalyScoreSum += r.ScoreValue
			anomalyCount++
		}
		if r.ScoreValue >= 0.8 {
			highScoreSources[r.SourceAddress]++
		}
	}

	result.AnomalyCount = anomalyCount
	if anomalyCount > 0 {
		result.AvgAnomalyScore = anomalyScoreSum / float64(anomalyCount)
	}
	result.TopSources = topN(highScoreSources, topNDefault)
	result.HourlySeries = bucketSeries(all, now, 24)

	return result, nil
}

// Alerts returns events at or above threshold, highest score first.
func (s *Store) Alerts(threshold float64, limit int) ([]event.Event, error) {
	var rows []EventRow
	if err := s.db.Model(&EventRow{}).
		Where("score_value >= ?", threshold).
		Order("score_value desc").
		Limit(clampLimit(limit)).
		Find(&rows).Error; err != nil {
		return nil, wrapFatal(err)
	}

	events := make([]event.Event, len(rows))
	for i, r := range rows {
		events[i] = fromRow(r)
	}
	return events, nil
}

// InvestigateResult backs per-source investigation (§4.5).
type InvestigateResult struct {
	SourceAddress   string        `json:"source_address"`
	Events          []event.Event `json:"events"`
	Count           int64         `json:"count"`
	AverageScore    float64       `json:"average_score"`
	FirstSeen       time.Time     `json:"first_seen"`
	LastSeen        time.Time     `json:"last_seen"`
	DistinctActions []string      `json:"distinct_actions"`
	DistinctServices []string     `json:"distinct_services"`
	HourlySeries    []Bucket      `json:"hourly_series"`
}

// Investigate returns every event for source plus per-source aggregates.
// Returns a NotFound errorkind.Error when the source has no rows.
func (s *Store) Investigate(source string, now time.Time) (InvestigateResult, error) {
	var rows []EventRow
	if err := s.db.Model(&EventRow{}).Where("source_address = ?", source).Order("observed_at asc").Find(&rows).Error; err != nil {
		return InvestigateResult{}, wrapFatal(err)
	}
	if len(rows) == 0 {
		return InvestigateResult{}, errorkind.New(errorkind.NotFound, "no events recorded for source "+source)
	}

	actions := map[string]bool{}
	services := map[string]bool{}
	var scoreSum float64

	events := make([]event.Event, len(rows))
	for i, r := range rows {
		events[i] = fromRow(r)
		actions[r.Action] = true
		services[r.TargetService] = true
		scoreSum += r.ScoreValue
	}

	result := InvestigateResult{
		SourceAddress:    source,
		Events:           events,
		Count:            int64(len(rows)),
		AverageScore:     scoreSum / float64(len(rows)),
		FirstSeen:        rows[0].ObservedAt,
		LastSeen:         rows[len(rows)-1].ObservedAt,
		DistinctActions:  sortedKeys(actions),
		DistinctServices: sortedKeys(services),
		HourlySeries:     bucketSeries(rows, now, 24),
	}
	return result, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
