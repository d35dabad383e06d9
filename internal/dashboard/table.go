// Package dashboard shapes one telemetry poll into what the browser draws:
// column-addressable tables, KPI tiles and time-series charts.
package dashboard

import (
	"time"

	"github.com/helyotools/dbsentinel/internal/models"
)

// Column names of the history and session tables.
var (
	HistoryColumns = []string{"timestamp", "cpu_usage", "active_connections", "avg_latency_ms", "slow_queries_count"}
	SessionColumns = []string{"pid", "username", "state", "query", "duration"}
)

// Table is an ordered set of rows with named columns.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Column returns every value of the named column in row order.
func (t Table) Column(name string) ([]any, bool) {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, true
}

// HistoryTable lays out samples in the order given (newest first from the store).
func HistoryTable(history []models.MetricSample) Table {
	t := Table{Columns: HistoryColumns, Rows: make([][]any, 0, len(history))}
	for _, s := range history {
		t.Rows = append(t.Rows, []any{
			s.Timestamp.Format(time.RFC3339Nano),
			s.CPUUsage,
			s.ActiveConnections,
			s.AvgLatencyMs,
			s.SlowQueriesCount,
		})
	}
	return t
}

// SessionTable lays out the session snapshot in listing order.
func SessionTable(sessions []models.SessionSnapshot) Table {
	t := Table{Columns: SessionColumns, Rows: make([][]any, 0, len(sessions))}
	for _, s := range sessions {
		t.Rows = append(t.Rows, []any{s.PID, s.Username, s.State, s.Query, s.Duration})
	}
	return t
}
