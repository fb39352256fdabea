// Package history persists run outcomes in a local sqlite database so that
// `minilun stats` can report on past runs.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/futureCreator/minilun/internal/run"
)

// RunRecord is one row per pipeline run.
type RunRecord struct {
	ID        string `gorm:"primaryKey;size:32"`
	Pipeline  string `gorm:"size:128;index"`
	Prompt    string
	Output    string
	Retained  string // newline separated paths
	Status    string `gorm:"size:16;index"`
	Error     string
	StartedAt time.Time `gorm:"index"`
	ElapsedMS int64

	Stages []StageRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// StageRecord is one row per executed stage.
type StageRecord struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"size:32;index"`
	Ordinal    int
	Name       string `gorm:"size:128;index"`
	Kind       string `gorm:"size:16"`
	Status     string `gorm:"size:16"`
	DurationMS int64
	Error      string
}

// Store wraps the history database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening history %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("opening history %s: %w", path, err)
	}
	// sqlite allows one writer; batch runs record concurrently.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&RunRecord{}, &StageRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores a finished run together with its stages.
func (s *Store) Record(ctx context.Context, res *run.Result) error {
	rec := RunRecord{
		ID:        res.ID,
		Pipeline:  res.Pipeline,
		Prompt:    res.Prompt,
		Output:    res.Output,
		Retained:  strings.Join(res.Retained, "\n"),
		Status:    string(res.Status),
		Error:     res.Error,
		StartedAt: res.StartedAt,
		ElapsedMS: res.Elapsed.Milliseconds(),
	}
	for _, sr := range res.Stages {
		rec.Stages = append(rec.Stages, StageRecord{
			RunID:      res.ID,
			Ordinal:    sr.Ordinal,
			Name:       sr.Name,
			Kind:       string(sr.Kind),
			Status:     string(sr.Status),
			DurationMS: sr.Duration.Milliseconds(),
			Error:      sr.Error,
		})
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("recording run %s: %w", res.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first, with their stages.
func (s *Store) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	var recs []RunRecord
	err := s.db.WithContext(ctx).
		Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("ordinal") }).
		Order("started_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return recs, nil
}

// StageStat aggregates all executions of one stage name.
type StageStat struct {
	Name     string
	Count    int64
	Failures int64
	AvgMS    float64
}

// Summary aggregates the whole history.
type Summary struct {
	Total     int64
	Succeeded int64
	Failed    int64
	AvgMS     float64 // mean elapsed time of successful runs
	Stages    []StageStat
}

// Summary computes run and per-stage totals.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	db := s.db.WithContext(ctx)
	sum := &Summary{}

	var byStatus []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&RunRecord{}).
		Select("status, count(*) AS count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("summarizing runs: %w", err)
	}
	for _, row := range byStatus {
		sum.Total += row.Count
		switch run.Status(row.Status) {
		case run.StatusSucceeded:
			sum.Succeeded = row.Count
		case run.StatusFailed:
			sum.Failed = row.Count
		}
	}

	if sum.Succeeded > 0 {
		var avg struct{ AvgMS float64 }
		if err := db.Model(&RunRecord{}).
			Select("AVG(elapsed_ms) AS avg_ms").
			Where("status = ?", string(run.StatusSucceeded)).
			Scan(&avg).Error; err != nil {
			return nil, fmt.Errorf("summarizing runs: %w", err)
		}
		sum.AvgMS = avg.AvgMS
	}

	if err := db.Model(&StageRecord{}).
		Select("name, count(*) AS count, " +
			"SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failures, " +
			"AVG(duration_ms) AS avg_ms").
		Group("name").
		Order("MIN(ordinal), name").
		Scan(&sum.Stages).Error; err != nil {
		return nil, fmt.Errorf("summarizing stages: %w", err)
	}
	return sum, nil
}
