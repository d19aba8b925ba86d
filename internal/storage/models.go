package storage

import (
	"time"

	"gorm.io/gorm"
)

// ForecastSnapshot is one raw forecast as returned by a provider. Payload is
// the zstd-compressed JSON encoding of forecast.Forecast.
type ForecastSnapshot struct {
	gorm.Model
	CacheKey  string    `gorm:"index" json:"cache_key"`
	Provider  string    `gorm:"index" json:"provider"`
	Location  string    `json:"location"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	FetchedAt time.Time `gorm:"index" json:"fetched_at"`
	DayCount  int       `json:"day_count"`
	RawSize   int       `json:"raw_size_bytes"`
	Payload   []byte    `json:"-"`
}

type CacheStats struct {
	Snapshots   int64     `json:"snapshots"`
	StoredBytes int64     `json:"stored_bytes"`
	RawBytes    int64     `json:"raw_bytes"`
	LatestFetch time.Time `json:"latest_fetch"`
	OldestFetch time.Time `json:"oldest_fetch"`
}
