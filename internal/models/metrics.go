// Package models defines the data shapes read from the telemetry store
// and handed to the dashboard and diagnostic layers.
package models

import "time"

// MetricSampleTable is the telemetry history table written by the agent.
const MetricSampleTable = "db_metrics_history"

// MetricSample is one row of telemetry history.
// Rows are written by the agent process and are read-only for the dashboard.
type MetricSample struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Timestamp time.Time `gorm:"column:timestamp;index;not null" json:"timestamp"`

	CPUUsage          float64 `gorm:"column:cpu_usage" json:"cpu_usage"`                   // percent 0-100
	ActiveConnections int64   `gorm:"column:active_connections" json:"active_connections"` // sessions in pg_stat_activity
	AvgLatencyMs      float64 `gorm:"column:avg_latency_ms" json:"avg_latency_ms"`
	SlowQueriesCount  int64   `gorm:"column:slow_queries_count" json:"slow_queries_count"`
}

// TableName pins the gorm table name.
func (MetricSample) TableName() string { return MetricSampleTable }

// SessionSnapshot is one non-idle backend from pg_stat_activity at poll time.
// Query and Duration are already defaulted by the SQL ("" and "N/A").
type SessionSnapshot struct {
	PID      int64  `gorm:"column:pid" json:"pid"`
	Username string `gorm:"column:username" json:"username"`
	State    string `gorm:"column:state" json:"state"`
	Query    string `gorm:"column:query" json:"query"`
	Duration string `gorm:"column:duration" json:"duration"`
}

// DiagnosticReport is the free-form text returned for one diagnostic prompt.
// It is never persisted.
type DiagnosticReport struct {
	Prompt      string    `json:"-"`
	Text        string    `json:"text"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generated_at"`
}
