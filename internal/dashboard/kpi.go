package dashboard

import (
	"fmt"
	"strconv"

	"github.com/helyotools/dbsentinel/internal/models"
)

// KPI is one headline tile.
type KPI struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// ComputeKPIs formats the latest sample into the four headline tiles.
func ComputeKPIs(latest models.MetricSample) []KPI {
	return []KPI{
		{Key: "cpu_usage", Label: "CPU LOAD", Value: fmt.Sprintf("%.1f%%", latest.CPUUsage)},
		{Key: "active_connections", Label: "CONNECTIONS", Value: strconv.FormatInt(latest.ActiveConnections, 10)},
		{Key: "avg_latency_ms", Label: "LATENCY", Value: fmt.Sprintf("%.1fms", latest.AvgLatencyMs)},
		{Key: "slow_queries_count", Label: "SLOW QUERIES", Value: strconv.FormatInt(latest.SlowQueriesCount, 10)},
	}
}
