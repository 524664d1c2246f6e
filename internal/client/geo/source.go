package geo

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gpstracker/internal/logging"
)

// Handler receives watch results.
type Handler struct {
	OnSample func(Sample)
	OnError  func(*PositionError)
}

// Source owns at most one platform watch at a time.
type Source struct {
	platform Platform
	logger   logging.Logger

	mu     sync.Mutex
	id     WatchID
	active bool
	gen    uint64
}

func NewSource(p Platform, logger logging.Logger) *Source {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Source{platform: p, logger: logger.With("module", "geo")}
}

// StartWatch stops any active watch and starts a new one. A platform
// without location capability is reported through the returned error and
// h is never called.
//
// Results from a watch that has since been stopped are dropped.
func (s *Source) StartWatch(opts Options, h Handler) error {
	s.StopWatch()

	if s.platform == nil {
		return ErrUnsupported
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	onSample := func(sample Sample) {
		if s.current(gen) && h.OnSample != nil {
			h.OnSample(sample)
		}
	}
	onError := func(err error) {
		if s.current(gen) && h.OnError != nil {
			h.OnError(AsPositionError(err))
		}
	}

	id, err := s.platform.WatchPosition(opts, onSample, onError)
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.gen++
		}
		s.mu.Unlock()
		return AsPositionError(err)
	}

	s.mu.Lock()
	if s.gen != gen {
		// Stopped while the platform was starting up.
		s.mu.Unlock()
		s.platform.ClearWatch(id)
		return nil
	}
	s.id = id
	s.active = true
	s.mu.Unlock()

	s.logger.Debug(context.Background(), "watch started", "watch_id", int64(id))
	return nil
}

// StopWatch clears the active watch. It is safe to call at any time,
// including before any watch was started.
func (s *Source) StopWatch() {
	s.mu.Lock()
	s.gen++
	id, active := s.id, s.active
	s.active = false
	s.mu.Unlock()

	if !active {
		return
	}
	s.platform.ClearWatch(id)
	s.logger.Debug(context.Background(), "watch stopped", "watch_id", int64(id))
}

// Active reports whether a watch is running.
func (s *Source) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// GetOnce requests a single sample, waiting at most opts.Timeout.
func (s *Source) GetOnce(ctx context.Context, opts Options) (Sample, error) {
	if s.platform == nil {
		return Sample{}, ErrUnsupported
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	sample, err := s.platform.CurrentPosition(ctx, opts)
	if err != nil {
		return Sample{}, AsPositionError(err)
	}
	return sample, nil
}

// Permission reports the platform permission state.
func (s *Source) Permission(ctx context.Context) (Permission, error) {
	return PlatformChecker{Platform: s.platform}.Check(ctx)
}

func (s *Source) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}
