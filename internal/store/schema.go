package store

import (
	"time"

	"gorm.io/gorm"
)

// EventRow is the GORM model for the single append-only events relation
// (§4.5). Nested/opaque event fields are stored as JSON-serialized TEXT
// columns, following the collector's existing preference for storing
// structured-but-variable data as serialized blobs (models.SystemConfig /
// models.FloodConfig).
type EventRow struct {
	ID              uint      `gorm:"primaryKey"`
	ObservedAt      time.Time `gorm:"index:idx_observed_at"`
	IngestedAt      time.Time `gorm:"index:idx_ingested_at"`
	SourceAddress   string    `gorm:"index:idx_source_address;size:64"`
	Country         string
	Region          string
	City            string
	Latitude        float64
	Longitude       float64
	ISP             string
	Organization    string
	Timezone        string
	IsPrivate       bool
	Protocol        string
	TargetService   string `gorm:"index:idx_target_service"`
	Action          string `gorm:"index:idx_action"`
	TargetPath      string
	SessionID       string
	UserAgent       string
	HeadersJSON     string `gorm:"column:headers_json"`
	PayloadJSON     string `gorm:"column:payload_json"`
	ScoreValue      float64
	ScoreBand       string `gorm:"index:idx_band"`
	IsAnomaly       bool
	PredictedClass  string
	TrafficClass    string
	ScoringDegraded bool
	ContentHash     string `gorm:"uniqueIndex:idx_content_hash;size:64"`
}

func (EventRow) TableName() string {
	return "events"
}

// Migrate creates the events table and its secondary indices if missing,
// and additively migrates older schemas (column add only, per §8 of the
// spec), mirroring the collector's existing db.AutoMigrate(...) startup
// step.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRow{})
}
