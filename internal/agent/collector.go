// Package agent implements the telemetry producer that feeds the dashboard.
// It samples the database host and the PostgreSQL server on a fixed interval
// and appends one row per sample to the telemetry history table. The
// dashboard process only ever reads those rows.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"gorm.io/gorm"

	"github.com/helyotools/dbsentinel/internal/models"
)

// latencyProbes is how many round trips are averaged into AvgLatencyMs.
const latencyProbes = 3

const (
	probeSQL       = `SELECT 1`
	connectionsSQL = `SELECT count(*) FROM pg_stat_activity`
	slowQueriesSQL = `SELECT count(*) FROM pg_stat_activity
		WHERE state = 'active' AND EXTRACT(EPOCH FROM (now() - query_start)) * 1000 > ?`
)

// Collector gathers one MetricSample per call.
type Collector struct {
	db          *gorm.DB
	slowQuery   time.Duration
	cpuInterval time.Duration
	cpuPercent  func(ctx context.Context, interval time.Duration) (float64, error)
	now         func() time.Time
}

// NewCollector creates a Collector that queries db and counts active queries
// older than slowQuery as slow.
func NewCollector(db *gorm.DB, slowQuery time.Duration) *Collector {
	return &Collector{
		db:          db,
		slowQuery:   slowQuery,
		cpuInterval: 500 * time.Millisecond,
		cpuPercent:  hostCPUPercent,
		now:         time.Now,
	}
}

// Collect gathers the current sample. Host CPU is best effort; database
// probes are not.
func (c *Collector) Collect(ctx context.Context) (*models.MetricSample, error) {
	sample := &models.MetricSample{Timestamp: c.now()}

	// CPU
	if pct, err := c.cpuPercent(ctx, c.cpuInterval); err == nil {
		sample.CPUUsage = pct
	}

	// Round-trip latency
	var total time.Duration
	for i := 0; i < latencyProbes; i++ {
		start := c.now()
		var one int
		if err := c.db.WithContext(ctx).Raw(probeSQL).Scan(&one).Error; err != nil {
			return nil, fmt.Errorf("latency probe: %w", err)
		}
		total += c.now().Sub(start)
	}
	sample.AvgLatencyMs = float64(total.Microseconds()) / 1000 / latencyProbes

	// Connections
	if err := c.db.WithContext(ctx).Raw(connectionsSQL).Scan(&sample.ActiveConnections).Error; err != nil {
		return nil, fmt.Errorf("counting connections: %w", err)
	}

	// Slow queries
	if err := c.db.WithContext(ctx).Raw(slowQueriesSQL, c.slowQuery.Milliseconds()).Scan(&sample.SlowQueriesCount).Error; err != nil {
		return nil, fmt.Errorf("counting slow queries: %w", err)
	}

	return sample, nil
}

// hostCPUPercent samples total CPU utilisation of this host over interval.
func hostCPUPercent(ctx context.Context, interval time.Duration) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, fmt.Errorf("no cpu stats")
	}
	return pcts[0], nil
}
