package dashboard

import (
	"time"

	"github.com/helyotools/dbsentinel/internal/models"
	"github.com/helyotools/dbsentinel/internal/telemetry"
)

// NoDataMessage is shown when the poll produced no history.
const NoDataMessage = "No data. Check the connection."

// Page is everything the dashboard view renders for one poll.
// When NoData is set only Warning and Message are meaningful.
type Page struct {
	NoData    bool      `json:"no_data"`
	Warning   string    `json:"warning,omitempty"`
	Message   string    `json:"message,omitempty"`
	KPIs      []KPI     `json:"kpis,omitempty"`
	Charts    []Chart   `json:"charts,omitempty"`
	Sessions  *Table    `json:"sessions,omitempty"`
	History   *Table    `json:"history,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Latest returns the newest sample. History comes from the store newest first.
func Latest(history []models.MetricSample) (models.MetricSample, bool) {
	if len(history) == 0 {
		return models.MetricSample{}, false
	}
	return history[0], true
}

// Build assembles the page for one poll. fetchErr is the error returned by
// the store, if any; it becomes the page warning and stops the pipeline.
func Build(snap telemetry.Snapshot, fetchErr error) Page {
	p := Page{FetchedAt: snap.FetchedAt}
	if fetchErr != nil {
		p.Warning = fetchErr.Error()
	}

	latest, ok := Latest(snap.History)
	if fetchErr != nil || !ok {
		p.NoData = true
		p.Message = NoDataMessage
		return p
	}

	sessions := SessionTable(snap.Sessions)
	history := HistoryTable(snap.History)

	p.KPIs = ComputeKPIs(latest)
	p.Charts = RenderCharts(snap.History)
	p.Sessions = &sessions
	p.History = &history
	return p
}
