package telemetry

// PostgreSQL statements issued by the dashboard. All of them are read-only.
const (
	// activeSessionsSQL lists non-idle backends from pg_stat_activity.
	// NULL query text becomes "" and a NULL query_start yields the literal "N/A".
	activeSessionsSQL = `
		SELECT pid,
		       COALESCE(usename, '') AS username,
		       state,
		       COALESCE(query, '') AS query,
		       COALESCE((now() - query_start)::text, 'N/A') AS duration
		FROM pg_stat_activity
		WHERE state != 'idle'
		LIMIT ?`

	pingSQL = `SELECT 1`
)
