// Package store implements the durable, append-only events relation (C5 of
// the spec): writes with content-hash deduplication, and the aggregation
// queries backing the dashboard and investigation API.
package store

import (
	"encoding/json"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"honeytrack-collector/internal/errorkind"
	"honeytrack-collector/internal/event"
	"honeytrack-collector/internal/logging"
)

// writeRetryBackoff is how long Put waits before its single internal retry
// on a transient write failure (e.g. "database is locked" under WAL
// contention), per §7's StoreTransient contract.
const writeRetryBackoff = 25 * time.Millisecond

// Store wraps the events table and its query surface.
type Store struct {
	db *gorm.DB
}

// Open connects to the sqlite database at path, enables WAL mode for
// concurrent readers/writer (mirroring the collector's original
// `PRAGMA journal_mode=WAL` startup optimization), and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errorkind.Wrap(errorkind.StoreFatal, "failed to open store", err)
	}

	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		logging.Warn("failed to enable WAL mode", logging.F("error", err.Error()))
	}

	if err := Migrate(db); err != nil {
		return nil, errorkind.Wrap(errorkind.StoreFatal, "schema migration failed", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping reports whether the store is reachable, for the /health endpoint.
func (s *Store) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func toRow(e event.Event) (EventRow, error) {
	headersJSON, err := json.Marshal(e.Headers)
	if err != nil {
		return EventRow{}, err
	}
	return EventRow{
		ObservedAt:      e.ObservedAt,
		IngestedAt:      e.IngestedAt,
		SourceAddress:   e.SourceAddress,
		Country:         e.Geo.Country,
		Region:          e.Geo.Region,
		City:            e.Geo.City,
		Latitude:        e.Geo.Latitude,
		Longitude:       e.Geo.Longitude,
		ISP:             e.Geo.ISP,
		Organization:    e.Geo.Organization,
		Timezone:        e.Geo.Timezone,
		IsPrivate:       e.Geo.IsPrivate,
		Protocol:        e.Protocol,
		TargetService:   e.TargetService,
		Action:          e.Action,
		TargetPath:      e.TargetPath,
		SessionID:       e.SessionID,
		UserAgent:       e.UserAgent,
		HeadersJSON:     string(headersJSON),
		PayloadJSON:     string(e.Payload),
		ScoreValue:      e.Score.Value,
		ScoreBand:       string(e.Score.Band),
		IsAnomaly:       e.Score.IsAnomaly,
		PredictedClass:  e.Score.PredictedClass,
		TrafficClass:    e.Score.TrafficClass,
		ScoringDegraded: e.ScoringDegraded,
		ContentHash:     e.ContentHash,
	}, nil
}

func fromRow(r EventRow) event.Event {
	var headers map[string]string
	_ = json.Unmarshal([]byte(r.HeadersJSON), &headers)

	return event.Event{
		ObservedAt:    r.ObservedAt,
		IngestedAt:    r.IngestedAt,
		SourceAddress: r.SourceAddress,
		Geo: event.Geo{
			Country:      r.Country,
			Region:       r.Region,
			City:         r.City,
			Latitude:     r.Latitude,
			Longitude:    r.Longitude,
			ISP:          r.ISP,
			Organization: r.Organization,
			Timezone:     r.Timezone,
			IsPrivate:    r.IsPrivate,
		},
		Protocol:      r.Protocol,
		TargetService: r.TargetService,
		Action:        r.Action,
		TargetPath:    r.TargetPath,
		SessionID:     r.SessionID,
		UserAgent:     r.UserAgent,
		Headers:       headers,
		Payload:       json.RawMessage(r.PayloadJSON),
		Score: event.Score{
			Value:          r.ScoreValue,
			Band:           event.Band(r.ScoreBand),
			IsAnomaly:      r.IsAnomaly,
			PredictedClass: r.PredictedClass,
			TrafficClass:   r.TrafficClass,
		},
		ScoringDegraded: r.ScoringDegraded,
		ContentHash:     r.ContentHash,
	}
}

// PutResult reports whether the write inserted a new row.
type PutResult struct {
	Inserted bool
}

// Put inserts e, deduplicating on ContentHash (§4.5): on conflict the
// original row is preserved and Inserted is false. The write is committed
// before returning, so ingest can ack durably. A transient engine failure
// (e.g. the writer lock held by a concurrent migration or checkpoint) is
// retried once internally before surfacing StoreTransient (§7).
func (s *Store) Put(e event.Event) (PutResult, error) {
	row, err := toRow(e)
	if err != nil {
		return PutResult{}, errorkind.Wrap(errorkind.StoreFatal, "failed to encode event", err)
	}

	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_hash"}},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		logging.Warn("write failed, retrying once", logging.F("error", result.Error.Error()))
		time.Sleep(writeRetryBackoff)

		row, err = toRow(e)
		if err != nil {
			return PutResult{}, errorkind.Wrap(errorkind.StoreFatal, "failed to encode event", err)
		}
		result = s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_hash"}},
			DoNothing: true,
		}).Create(&row)
		if result.Error != nil {
			return PutResult{}, errorkind.Wrap(errorkind.StoreTransient, "write failed after retry", result.Error)
		}
	}

	return PutResult{Inserted: result.RowsAffected > 0}, nil
}

func wrapFatal(err error) error {
	if err == nil {
		return nil
	}
	return errorkind.Wrap(errorkind.StoreFatal, "query failed", err)
}
