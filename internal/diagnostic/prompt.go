package diagnostic

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/helyotools/dbsentinel/internal/models"
)

const promptTemplate = `You are a Senior DBA specialized in PostgreSQL and Supabase.
Analyze the real telemetry data below and write a technical report in %s:

PROJECT: %s
CPU: %s%% | Connections: %d | Latency: %sms | Slow Queries: %d

Provide:
1. HEALTH DIAGNOSIS
2. BOTTLENECKS IDENTIFIED
3. SQL TUNING COMMANDS (with code blocks)
4. HEALTH SCORE (0-100) with a table

Be technical and direct.`

// BuildPrompt fills the fixed template with the four scalars of sample.
// The same inputs always produce the same bytes.
func BuildPrompt(project, language string, sample models.MetricSample) string {
	return fmt.Sprintf(promptTemplate,
		language,
		project,
		formatFloat(sample.CPUUsage),
		sample.ActiveConnections,
		formatFloat(sample.AvgLatencyMs),
		sample.SlowQueriesCount,
	)
}

// formatFloat prints the shortest representation that round-trips and always
// keeps a fractional part, so 40 reads as "40.0".
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if math.IsInf(f, 0) || math.IsNaN(f) || strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}
