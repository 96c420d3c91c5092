package bringup

// DBState is the coarse health signal reported by the database's
// control interface.
type DBState uint8

const (
	// DBUnknown exists only before the first probe resolves; it is
	// never persisted or acted upon.
	DBUnknown DBState = iota
	DBHealthy
	DBUnhealthy
)

func (s DBState) String() string {
	switch s {
	case DBHealthy:
		return "healthy"
	case DBUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}
