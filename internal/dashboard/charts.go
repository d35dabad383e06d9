package dashboard

import (
	"sort"
	"time"

	"github.com/helyotools/dbsentinel/internal/models"
)

// ChartKind selects how the browser draws a series.
type ChartKind string

const (
	ChartArea ChartKind = "area"
	ChartLine ChartKind = "line"
	ChartBar  ChartKind = "bar"
)

// Point is one (timestamp, value) pair.
type Point struct {
	X time.Time `json:"x"`
	Y float64   `json:"y"`
}

// Chart is a single time series ready for drawing.
type Chart struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Kind    ChartKind `json:"kind"`
	Markers bool      `json:"markers"`
	Color   string    `json:"color"`
	YLabel  string    `json:"y_label"`
	Points  []Point   `json:"points"`
}

// SortAscending returns a copy of history ordered by timestamp, oldest first.
// Samples with equal timestamps keep their relative order.
func SortAscending(history []models.MetricSample) []models.MetricSample {
	out := make([]models.MetricSample, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// RenderCharts builds the CPU area chart, the latency line chart with markers
// and the connection bar chart. Values are plotted as-is. Empty history gives
// three charts without points.
func RenderCharts(history []models.MetricSample) []Chart {
	sorted := SortAscending(history)

	cpu := Chart{ID: "cpu", Title: "CPU × TIME", Kind: ChartArea, Color: "#ff4466", YLabel: "CPU %"}
	latency := Chart{ID: "latency", Title: "LATENCY × TIME", Kind: ChartLine, Markers: true, Color: "#00ffc3", YLabel: "ms"}
	conns := Chart{ID: "connections", Title: "CONNECTIONS × TIME", Kind: ChartBar, Color: "#7b2d8b", YLabel: "Connections"}

	cpu.Points = make([]Point, 0, len(sorted))
	latency.Points = make([]Point, 0, len(sorted))
	conns.Points = make([]Point, 0, len(sorted))
	for _, s := range sorted {
		cpu.Points = append(cpu.Points, Point{X: s.Timestamp, Y: s.CPUUsage})
		latency.Points = append(latency.Points, Point{X: s.Timestamp, Y: s.AvgLatencyMs})
		conns.Points = append(conns.Points, Point{X: s.Timestamp, Y: float64(s.ActiveConnections)})
	}
	return []Chart{cpu, latency, conns}
}
