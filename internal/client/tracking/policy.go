package tracking

import "time"

// DefaultSaveInterval is how often the current sample is sent to the
// history store while tracking.
const DefaultSaveInterval = 10 * time.Second

// Policy controls how often samples are persisted, independently of how
// often the platform reports them.
type Policy struct {
	SaveInterval time.Duration
	// SaveTimeout bounds a single append. Zero means no bound.
	SaveTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{SaveInterval: DefaultSaveInterval, SaveTimeout: 10 * time.Second}
}
