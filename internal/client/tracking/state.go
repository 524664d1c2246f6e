package tracking

import "github.com/dmitrijs2005/gpstracker/internal/client/geo"

type Status int

const (
	Idle Status = iota
	Tracking
	// Degraded means tracking was requested but the platform reported no
	// capability or denied permission.
	Degraded
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	case Degraded:
		return "degraded"
	}
	return "unknown"
}

// State is a snapshot of a Session. LastSample and LastError are never
// both set: a new sample clears the error and a new error clears the
// sample.
type State struct {
	Status     Status
	IsTracking bool
	LastSample *geo.Sample
	LastError  *geo.PositionError
	Permission geo.Permission
}
