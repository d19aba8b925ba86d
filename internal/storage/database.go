package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"goodweather/internal/forecast"
)

// ErrNoSnapshot is returned when no usable forecast is cached for a key.
var ErrNoSnapshot = errors.New("no cached forecast")

type Database struct {
	db      *gorm.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewDatabase(path string) (*Database, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&ForecastSnapshot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// A nil writer is allowed; EncodeAll/DecodeAll do not use the stream side.
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Database{db: db, encoder: encoder, decoder: decoder}, nil
}

// SaveForecast stores f under key. Start and end describe the requested
// range and are kept for inspection only.
func (d *Database) SaveForecast(key, start, end string, f *forecast.Forecast, fetchedAt time.Time) error {
	if f == nil {
		return fmt.Errorf("save forecast: nil forecast")
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode forecast: %w", err)
	}

	snapshot := &ForecastSnapshot{
		CacheKey:  key,
		Provider:  f.Provider,
		Location:  f.Address,
		StartDate: start,
		EndDate:   end,
		FetchedAt: fetchedAt.UTC(),
		DayCount:  len(f.Days),
		RawSize:   len(raw),
		Payload:   d.encoder.EncodeAll(raw, nil),
	}
	return d.db.Create(snapshot).Error
}

// LatestForecast returns the newest forecast cached under key that was
// fetched no earlier than now-maxAge. A non-positive maxAge disables the
// age check.
func (d *Database) LatestForecast(key string, maxAge time.Duration, now time.Time) (*forecast.Forecast, time.Time, error) {
	query := d.db.Where("cache_key = ?", key)
	if maxAge > 0 {
		query = query.Where("fetched_at >= ?", now.Add(-maxAge).UTC())
	}

	var snapshot ForecastSnapshot
	result := query.Order("fetched_at desc").First(&snapshot)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, time.Time{}, ErrNoSnapshot
		}
		return nil, time.Time{}, result.Error
	}

	f, err := d.decode(snapshot.Payload)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("snapshot %d: %w", snapshot.ID, err)
	}
	return f, snapshot.FetchedAt, nil
}

func (d *Database) decode(payload []byte) (*forecast.Forecast, error) {
	raw, err := d.decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress forecast: %w", err)
	}
	var f forecast.Forecast
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode forecast: %w", err)
	}
	return &f, nil
}

// PruneSnapshots hard-deletes snapshots fetched before now-olderThan and
// returns how many were removed.
func (d *Database) PruneSnapshots(olderThan time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-olderThan).UTC()
	result := d.db.Unscoped().Where("fetched_at < ?", cutoff).Delete(&ForecastSnapshot{})
	return result.RowsAffected, result.Error
}

func (d *Database) Stats() (*CacheStats, error) {
	var stats CacheStats
	var row struct {
		Count  int64
		Stored int64
		Raw    int64
	}
	result := d.db.Model(&ForecastSnapshot{}).
		Select("COUNT(*) AS count, COALESCE(SUM(LENGTH(payload)), 0) AS stored, COALESCE(SUM(raw_size), 0) AS raw").
		Scan(&row)
	if result.Error != nil {
		return nil, result.Error
	}
	stats.Snapshots = row.Count
	stats.StoredBytes = row.Stored
	stats.RawBytes = row.Raw

	var newest, oldest ForecastSnapshot
	if err := d.db.Order("fetched_at desc").First(&newest).Error; err == nil {
		stats.LatestFetch = newest.FetchedAt
	}
	if err := d.db.Order("fetched_at asc").First(&oldest).Error; err == nil {
		stats.OldestFetch = oldest.FetchedAt
	}
	return &stats, nil
}

func (d *Database) Close() error {
	d.encoder.Close()
	d.decoder.Close()
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
