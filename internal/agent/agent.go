package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/helyotools/dbsentinel/internal/config"
	"github.com/helyotools/dbsentinel/internal/models"
	"github.com/helyotools/dbsentinel/internal/telemetry"
)

// Agent samples on a ticker and appends each sample to the history table.
type Agent struct {
	db        *gorm.DB
	collector *Collector
	interval  time.Duration
	log       *zap.Logger
}

// New returns an Agent writing to db every interval.
func New(db *gorm.DB, interval, slowQuery time.Duration, log *zap.Logger) *Agent {
	return &Agent{
		db:        db,
		collector: NewCollector(db, slowQuery),
		interval:  interval,
		log:       log,
	}
}

// Run connects to the telemetry store described by cfg and samples until ctx
// is cancelled.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	db, err := gorm.Open(telemetry.Dialector(cfg), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("opening telemetry store: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(ctx, db); err != nil {
		return err
	}

	a := New(db,
		time.Duration(cfg.AgentInterval)*time.Second,
		time.Duration(cfg.AgentSlowQueryMs)*time.Millisecond,
		log)
	return a.Run(ctx)
}

// Migrate creates or updates the telemetry history table. The agent is its
// only writer, so it owns the schema.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&models.MetricSample{}); err != nil {
		return fmt.Errorf("auto-migrate %s: %w", models.MetricSampleTable, err)
	}
	return nil
}

// Tick collects one sample and inserts it.
func (a *Agent) Tick(ctx context.Context) error {
	sample, err := a.collector.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	if err := a.db.WithContext(ctx).Create(sample).Error; err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	a.log.Debug("sample recorded",
		zap.Float64("cpu_usage", sample.CPUUsage),
		zap.Int64("active_connections", sample.ActiveConnections),
		zap.Float64("avg_latency_ms", sample.AvgLatencyMs),
		zap.Int64("slow_queries_count", sample.SlowQueriesCount))
	return nil
}

// Run records a sample immediately and then once per interval. Failed ticks
// are logged and the loop continues.
func (a *Agent) Run(ctx context.Context) error {
	if a.interval <= 0 {
		return fmt.Errorf("agent interval must be positive, got %s", a.interval)
	}
	a.log.Info("agent started", zap.Duration("interval", a.interval))

	if err := a.Tick(ctx); err != nil {
		a.log.Warn("tick failed", zap.Error(err))
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.log.Info("agent stopped")
			return nil
		case <-ticker.C:
			if err := a.Tick(ctx); err != nil {
				a.log.Warn("tick failed", zap.Error(err))
			}
		}
	}
}
