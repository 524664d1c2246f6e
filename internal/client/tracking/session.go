// Package tracking implements the client tracking session: it owns the
// on/off state, the latest position and error, and the periodic save of
// the latest position to the history store.
package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/gpstracker/internal/api"
	"github.com/dmitrijs2005/gpstracker/internal/client/geo"
	"github.com/dmitrijs2005/gpstracker/internal/clock"
	"github.com/dmitrijs2005/gpstracker/internal/common"
	"github.com/dmitrijs2005/gpstracker/internal/logging"
	"github.com/dmitrijs2005/gpstracker/internal/observer"
)

// ErrRecheckRequired is returned by Start in the Degraded state until a
// capability check reports permission granted.
var ErrRecheckRequired = errors.New("location capability must be re-checked before tracking can resume")

// PositionSource is the single-watch location source, usually *geo.Source.
type PositionSource interface {
	StartWatch(opts geo.Options, h geo.Handler) error
	StopWatch()
	GetOnce(ctx context.Context, opts geo.Options) (geo.Sample, error)
}

// Appender persists one location.
type Appender interface {
	Append(ctx context.Context, loc api.LocationRequest) (api.Location, error)
}

// IdentitySource reports the current username.
type IdentitySource interface {
	Get() (string, bool)
}

type Deps struct {
	Source   PositionSource
	Store    Appender
	Identity IdentitySource
	Checker  geo.CapabilityChecker
	Clock    clock.Clock
	Logger   logging.Logger
}

type Options struct {
	Policy Policy
	Watch  geo.Options
	Once   geo.Options
}

func DefaultOptions() Options {
	return Options{
		Policy: DefaultPolicy(),
		Watch:  geo.DefaultWatchOptions,
		Once:   geo.DefaultOnceOptions,
	}
}

// SaveStats counts append attempts made by the periodic trigger.
type SaveStats struct {
	Attempted int
	Succeeded int
	Failed    int
	LastError error
	LastSaved *api.Location
}

// Session is the tracking state machine.
//
//	Idle     --Start-->            Tracking
//	Tracking --Stop-->             Idle
//	Tracking --denied/unsupported-> Degraded
//	Degraded --Start-->            Tracking, after a granted CheckCapability
//	any      --Stop-->             Idle
//
// While Tracking, every Policy.SaveInterval the current sample is appended
// to the store if it was captured under the identity that is still
// current. The first tick is scheduled by the first sample. Appends run in
// the background and never change the session state.
//
// Observers are notified synchronously, in subscription order and in the
// order of state changes. They must not call Session commands.
type Session struct {
	source   PositionSource
	store    Appender
	identity IdentitySource
	checker  geo.CapabilityChecker
	clk      clock.Clock
	logger   logging.Logger
	opts     Options

	// cmdMu serialises Start, Stop and CheckCapability.
	cmdMu sync.Mutex
	// notifyMu keeps notifications in state-change order.
	notifyMu sync.Mutex

	mu        sync.Mutex
	status    Status
	sample    *geo.Sample
	tag       string
	lastErr   *geo.PositionError
	perm      geo.Permission
	rechecked bool
	watchGen  uint64
	timer     clock.Timer
	timerGen  uint64

	subject observer.Subject[State]

	saves   sync.WaitGroup
	statsMu sync.Mutex
	stats   SaveStats
}

func NewSession(d Deps, opts Options) *Session {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Checker == nil {
		d.Checker = geo.StaticChecker{Result: geo.PermissionUnknown}
	}
	if opts.Policy.SaveInterval <= 0 {
		opts.Policy.SaveInterval = DefaultSaveInterval
	}
	return &Session{
		source:   d.Source,
		store:    d.Store,
		identity: d.Identity,
		checker:  d.Checker,
		clk:      d.Clock,
		logger:   d.Logger.With("module", "tracking"),
		opts:     opts,
	}
}

// Start begins watching the position source. It is a no-op while already
// Tracking. In Degraded it returns ErrRecheckRequired unless a capability
// check granted permission since the session degraded. A source without
// location capability moves the session to Degraded; any other watch
// failure leaves the previous status in place. The error is returned in
// both cases.
func (s *Session) Start() error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	switch s.status {
	case Tracking:
		s.mu.Unlock()
		return nil
	case Degraded:
		if !s.rechecked {
			s.mu.Unlock()
			return ErrRecheckRequired
		}
	}
	prevStatus, prevRechecked := s.status, s.rechecked
	s.status = Tracking
	s.lastErr = nil
	s.rechecked = false
	s.watchGen++
	gen := s.watchGen
	s.commitLocked()

	s.logger.Info(context.Background(), "tracking started")

	err := s.source.StartWatch(s.opts.Watch, geo.Handler{
		OnSample: func(sample geo.Sample) { s.onSample(gen, sample) },
		OnError:  func(e *geo.PositionError) { s.onError(gen, e) },
	})
	if err != nil {
		pe := geo.AsPositionError(err)
		s.onError(gen, pe)
		s.rollbackStart(gen, prevStatus, prevRechecked)
		return pe
	}
	return nil
}

// rollbackStart restores the status held before a Start whose watch never
// began. A capability or permission failure has already degraded the
// session and is left alone.
func (s *Session) rollbackStart(gen uint64, prev Status, rechecked bool) {
	s.mu.Lock()
	if gen != s.watchGen || s.status != Tracking {
		s.mu.Unlock()
		return
	}
	s.status = prev
	s.rechecked = rechecked
	s.watchGen++
	s.cancelTimerLocked()
	s.commitLocked()

	s.logger.Warn(context.Background(), "tracking not started", "status", prev.String())
}

// Stop cancels the watch and the periodic trigger. It is safe in any
// state, including before Start. Saves already in flight complete.
func (s *Session) Stop() {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	s.watchGen++
	s.cancelTimerLocked()
	s.source.StopWatch()

	if s.status == Idle {
		s.mu.Unlock()
		return
	}
	s.status = Idle
	s.rechecked = false
	s.commitLocked()

	s.logger.Info(context.Background(), "tracking stopped")
}

// CheckCapability asks the capability checker for a fresh answer. A
// granted answer while Degraded allows the next Start.
func (s *Session) CheckCapability(ctx context.Context) (geo.Permission, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	perm, err := s.checker.Check(ctx)

	s.mu.Lock()
	s.perm = perm
	if err == nil && perm == geo.PermissionGranted && s.status == Degraded {
		s.rechecked = true
	}
	s.commitLocked()

	return perm, err
}

// Refresh requests one position independently of the watch and the
// periodic trigger. It never changes the session status. A successful
// read while Degraded counts as a granted capability check.
func (s *Session) Refresh(ctx context.Context) (geo.Sample, error) {
	sample, err := s.source.GetOnce(ctx, s.opts.Once)

	s.mu.Lock()
	if err != nil {
		pe := geo.AsPositionError(err)
		s.recordErrorLocked(pe)
		s.commitLocked()
		return geo.Sample{}, pe
	}

	s.applySampleLocked(sample)
	if s.status == Degraded {
		s.rechecked = true
	}
	if s.status == Tracking && s.timer == nil {
		s.scheduleLocked()
	}
	s.commitLocked()
	return sample, nil
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) Subscribe(fn func(State)) observer.Handle {
	return s.subject.Subscribe(fn)
}

func (s *Session) Unsubscribe(h observer.Handle) {
	s.subject.Unsubscribe(h)
}

// Wait blocks until every started append has finished.
func (s *Session) Wait() {
	s.saves.Wait()
}

func (s *Session) SaveStats() SaveStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Session) onSample(gen uint64, sample geo.Sample) {
	s.mu.Lock()
	if gen != s.watchGen || s.status != Tracking {
		s.mu.Unlock()
		return
	}
	s.applySampleLocked(sample)
	if s.timer == nil {
		s.scheduleLocked()
	}
	s.commitLocked()
}

func (s *Session) onError(gen uint64, e *geo.PositionError) {
	s.mu.Lock()
	if gen != s.watchGen || s.status != Tracking {
		s.mu.Unlock()
		return
	}
	s.recordErrorLocked(e)

	if c := geo.Classify(e.Kind); c == geo.ClassPermission || c == geo.ClassCapability {
		s.status = Degraded
		s.rechecked = false
		s.watchGen++
		s.cancelTimerLocked()
		s.source.StopWatch()
		s.logger.Warn(context.Background(), "tracking degraded", "reason", e.Kind.String())
	}
	s.commitLocked()
}

func (s *Session) applySampleLocked(sample geo.Sample) {
	s.sample = &sample
	s.lastErr = nil
	s.perm = geo.PermissionGranted
	s.tag = ""
	if s.identity != nil {
		if name, ok := s.identity.Get(); ok {
			s.tag = name
		}
	}
}

func (s *Session) recordErrorLocked(e *geo.PositionError) {
	s.lastErr = e
	s.sample = nil
	s.tag = ""
	if e.Kind == geo.KindPermissionDenied || e.Kind == geo.KindUnsupported {
		s.perm = geo.PermissionDenied
	}
}

func (s *Session) scheduleLocked() {
	s.timerGen++
	gen := s.timerGen
	var tick func()
	tick = func() {
		s.mu.Lock()
		if gen != s.timerGen || s.status != Tracking {
			s.mu.Unlock()
			return
		}
		s.timer = s.clk.AfterFunc(s.opts.Policy.SaveInterval, tick)
		req, ok := s.pendingSaveLocked()
		s.mu.Unlock()

		if ok {
			s.submit(req)
		}
	}
	s.timer = s.clk.AfterFunc(s.opts.Policy.SaveInterval, tick)
}

func (s *Session) cancelTimerLocked() {
	s.timerGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// pendingSaveLocked builds the append for the current sample. It reports
// false when there is no sample, or when the sample's identity is empty
// or no longer current.
func (s *Session) pendingSaveLocked() (api.LocationRequest, bool) {
	if s.sample == nil || s.tag == "" || s.identity == nil {
		return api.LocationRequest{}, false
	}
	if name, ok := s.identity.Get(); !ok || name != s.tag {
		s.logger.Debug(context.Background(), "skip save: identity changed since capture")
		return api.LocationRequest{}, false
	}

	sample := *s.sample
	captured := sample.CapturedAt.UTC()
	return api.LocationRequest{
		Username:  s.tag,
		Latitude:  &sample.Latitude,
		Longitude: &sample.Longitude,
		Timestamp: &captured,
		Accuracy:  sample.Accuracy,
	}, true
}

func (s *Session) submit(req api.LocationRequest) {
	s.statsMu.Lock()
	s.stats.Attempted++
	s.statsMu.Unlock()

	s.saves.Add(1)
	go func() {
		defer s.saves.Done()

		ctx := context.Background()
		if t := s.opts.Policy.SaveTimeout; t > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}

		start := time.Now()
		loc, err := s.store.Append(ctx, req)

		s.statsMu.Lock()
		defer s.statsMu.Unlock()
		if err != nil {
			s.stats.Failed++
			s.stats.LastError = err
			kind := "transport"
			if errors.Is(err, common.ErrValidation) {
				kind = "validation"
			}
			s.logger.Warn(ctx, "save location failed", "kind", kind, "error", err)
			return
		}
		s.stats.Succeeded++
		s.stats.LastError = nil
		s.stats.LastSaved = &loc
		s.logger.Debug(ctx, "location saved", "id", loc.ID, "elapsed", time.Since(start))
	}()
}

func (s *Session) snapshotLocked() State {
	return State{
		Status:     s.status,
		IsTracking: s.status == Tracking,
		LastSample: s.sample,
		LastError:  s.lastErr,
		Permission: s.perm,
	}
}

// commitLocked releases s.mu and notifies observers of the new state.
func (s *Session) commitLocked() {
	st := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	s.subject.Notify(st)
}
