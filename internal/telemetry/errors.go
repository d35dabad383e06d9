package telemetry

import "fmt"

// Data access operations reported in DataAccessError.Op.
const (
	OpConnect       = "connect"
	OpQueryHistory  = "query history"
	OpQuerySessions = "query sessions"
	OpPing          = "ping"
)

// DataAccessError is returned when the telemetry store cannot be reached or
// one of its queries fails. It is recoverable: the caller shows it and the
// next poll tries again.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("data access (%s): %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error { return e.Err }
