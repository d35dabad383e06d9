// Package telemetry is the data access layer over the monitored PostgreSQL
// instance. It owns one lazily opened gorm handle and issues two fixed
// read-only queries per poll: recent telemetry history and live sessions.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/helyotools/dbsentinel/internal/config"
	"github.com/helyotools/dbsentinel/internal/models"
)

// Options bounds what a Store reads and how many connections it may hold.
type Options struct {
	HistoryLimit int
	SessionLimit int
	MaxOpenConns int
}

// OptionsFromConfig extracts store options from the runtime config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		HistoryLimit: cfg.HistoryLimit,
		SessionLimit: cfg.SessionLimit,
		MaxOpenConns: cfg.DBMaxOpenConns,
	}
}

// Dialector returns the PostgreSQL dialector for cfg. Building it does no I/O.
func Dialector(cfg *config.Config) gorm.Dialector {
	return postgres.Open(cfg.PostgresDSN())
}

// Snapshot is the result of one poll. History is newest first.
type Snapshot struct {
	History   []models.MetricSample
	Sessions  []models.SessionSnapshot
	FetchedAt time.Time
}

// Store reads telemetry from PostgreSQL.
//
// The gorm handle is created on first use and reused for every later poll.
// Only conn writes the handle, under mu; everything else reads it through
// conn. A failed open leaves the handle nil so the next poll retries.
type Store struct {
	dialector gorm.Dialector
	opts      Options
	log       *zap.Logger

	mu sync.Mutex
	db *gorm.DB
}

// NewStore returns a Store that will connect through dialector on first use.
func NewStore(dialector gorm.Dialector, opts Options, log *zap.Logger) *Store {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.SessionLimit <= 0 {
		opts.SessionLimit = 10
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 1
	}
	return &Store{dialector: dialector, opts: opts, log: log}
}

// Open is shorthand for NewStore(Dialector(cfg), OptionsFromConfig(cfg), log).
func Open(cfg *config.Config, log *zap.Logger) *Store {
	return NewStore(Dialector(cfg), OptionsFromConfig(cfg), log)
}

func (s *Store) conn() (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	db, err := gorm.Open(s.dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		if db != nil {
			if sqlDB, e := db.DB(); e == nil {
				_ = sqlDB.Close()
			}
		}
		return nil, &DataAccessError{Op: OpConnect, Err: err}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, &DataAccessError{Op: OpConnect, Err: err}
	}
	sqlDB.SetMaxOpenConns(s.opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(s.opts.MaxOpenConns)

	s.db = db
	s.log.Info("telemetry store connected", zap.Int("max_open_conns", s.opts.MaxOpenConns))
	return db, nil
}

// FetchMetrics runs both poll queries over the shared connection.
// On any failure it returns empty (non-nil) history and sessions together
// with a *DataAccessError; no partial result is returned.
func (s *Store) FetchMetrics(ctx context.Context) (Snapshot, error) {
	empty := Snapshot{
		History:   []models.MetricSample{},
		Sessions:  []models.SessionSnapshot{},
		FetchedAt: time.Now(),
	}

	db, err := s.conn()
	if err != nil {
		s.log.Warn("telemetry connect failed", zap.Error(err))
		return empty, err
	}

	history := make([]models.MetricSample, 0, s.opts.HistoryLimit)
	if err := db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(s.opts.HistoryLimit).
		Find(&history).Error; err != nil {
		s.log.Warn("telemetry history query failed", zap.Error(err))
		return empty, &DataAccessError{Op: OpQueryHistory, Err: err}
	}

	sessions := make([]models.SessionSnapshot, 0, s.opts.SessionLimit)
	if err := db.WithContext(ctx).
		Raw(activeSessionsSQL, s.opts.SessionLimit).
		Scan(&sessions).Error; err != nil {
		s.log.Warn("telemetry sessions query failed", zap.Error(err))
		return empty, &DataAccessError{Op: OpQuerySessions, Err: err}
	}

	s.log.Debug("telemetry polled",
		zap.Int("history_rows", len(history)),
		zap.Int("session_rows", len(sessions)))

	return Snapshot{History: history, Sessions: sessions, FetchedAt: empty.FetchedAt}, nil
}

// Ping checks that the store answers a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	var one int
	if err := db.WithContext(ctx).Raw(pingSQL).Scan(&one).Error; err != nil {
		return &DataAccessError{Op: OpPing, Err: err}
	}
	return nil
}

// Close releases the connection if one was opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.db = nil
	return sqlDB.Close()
}
