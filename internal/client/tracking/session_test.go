package tracking

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gpstracker/internal/api"
	"github.com/dmitrijs2005/gpstracker/internal/client/geo"
	"github.com/dmitrijs2005/gpstracker/internal/client/identity"
	"github.com/dmitrijs2005/gpstracker/internal/clock"
	"github.com/dmitrijs2005/gpstracker/internal/common"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// platform is a scriptable geo.Platform.
type platform struct {
	mu        sync.Mutex
	next      geo.WatchID
	watches   map[geo.WatchID]func(geo.Sample, error)
	maxActive int
	watchErr  error
	onceErr   error
	once      geo.Sample
}

func newPlatform() *platform {
	return &platform{watches: make(map[geo.WatchID]func(geo.Sample, error))}
}

func (p *platform) WatchPosition(_ geo.Options, onSample func(geo.Sample), onError func(error)) (geo.WatchID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watchErr != nil {
		return 0, p.watchErr
	}
	p.next++
	p.watches[p.next] = func(s geo.Sample, err error) {
		if err != nil {
			onError(err)
			return
		}
		onSample(s)
	}
	if len(p.watches) > p.maxActive {
		p.maxActive = len(p.watches)
	}
	return p.next, nil
}

func (p *platform) ClearWatch(id geo.WatchID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.watches, id)
}

func (p *platform) CurrentPosition(context.Context, geo.Options) (geo.Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.once, p.onceErr
}

func (p *platform) Permission(context.Context) (geo.Permission, error) {
	return geo.PermissionGranted, nil
}

func (p *platform) active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watches)
}

// emit delivers to every active watch.
func (p *platform) emit(s geo.Sample, err error) {
	p.mu.Lock()
	fns := make([]func(geo.Sample, error), 0, len(p.watches))
	for _, fn := range p.watches {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(s, err)
	}
}

type recordingStore struct {
	mu    sync.Mutex
	calls []api.LocationRequest
	err   error
}

func (r *recordingStore) Append(_ context.Context, loc api.LocationRequest) (api.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, loc)
	if r.err != nil {
		return api.Location{}, r.err
	}
	return api.Location{ID: "x", Username: loc.Username, Latitude: *loc.Latitude, Longitude: *loc.Longitude}, nil
}

func (r *recordingStore) appended() []api.LocationRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.LocationRequest(nil), r.calls...)
}

type fixture struct {
	platform *platform
	store    *recordingStore
	identity *identity.Holder
	clk      *clock.Fake
	session  *Session
}

func newFixture(t *testing.T, checker geo.CapabilityChecker) *fixture {
	t.Helper()
	f := &fixture{
		platform: newPlatform(),
		store:    &recordingStore{},
		identity: identity.NewHolder(nil),
		clk:      clock.NewFake(t0),
	}
	_, err := f.identity.Set(context.Background(), "alice")
	require.NoError(t, err)

	f.session = NewSession(Deps{
		Source:   geo.NewSource(f.platform, nil),
		Store:    f.store,
		Identity: f.identity,
		Checker:  checker,
		Clock:    f.clk,
	}, DefaultOptions())
	t.Cleanup(f.session.Stop)
	return f
}

func sample(lat, lon float64, at time.Time) geo.Sample {
	return geo.Sample{Latitude: lat, Longitude: lon, CapturedAt: at}
}

// advance moves the fake clock and waits for the resulting saves.
func (f *fixture) advance(d time.Duration) {
	f.clk.Advance(d)
	f.session.Wait()
}

func TestSession_OneIntervalOneAppend(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.session.Start())
	f.platform.emit(sample(10, 20, t0), nil)
	f.advance(DefaultSaveInterval)

	calls := f.store.appended()
	require.Len(t, calls, 1)
	assert.Equal(t, "alice", calls[0].Username)
	assert.Equal(t, 10.0, *calls[0].Latitude)
	assert.Equal(t, 20.0, *calls[0].Longitude)
	assert.Equal(t, t0, *calls[0].Timestamp)
	assert.Nil(t, calls[0].Accuracy)
}

func TestSession_SaveCadenceIndependentOfWatch(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start())

	for i := 0; i < 25; i++ {
		f.platform.emit(sample(float64(i), 0, f.clk.Now()), nil)
		f.advance(time.Second)
	}

	calls := f.store.appended()
	require.Len(t, calls, 2)
	assert.Equal(t, 9.0, *calls[0].Latitude, "the sample current at the tick is saved")
	assert.Equal(t, 19.0, *calls[1].Latitude)
}

func TestSession_IdenticalSampleSavedPerTick(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start())

	f.platform.emit(sample(1, 2, t0), nil)
	f.advance(2 * DefaultSaveInterval)

	calls := f.store.appended()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0], calls[1])
}

func TestSession_TickWithoutSampleIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start())

	f.platform.emit(sample(1, 2, t0), nil)
	f.platform.emit(geo.Sample{}, geo.ErrTimeout)

	st := f.session.State()
	assert.Nil(t, st.LastSample, "an error clears the displayed sample")
	assert.Equal(t, geo.KindTimeout, st.LastError.Kind)
	assert.Equal(t, Tracking, st.Status, "transient errors keep tracking")

	f.advance(3 * DefaultSaveInterval)
	assert.Empty(t, f.store.appended())
	assert.Zero(t, f.session.SaveStats().Attempted)

	f.platform.emit(sample(3, 4, f.clk.Now()), nil)
	st = f.session.State()
	assert.Nil(t, st.LastError, "a sample clears the error")
	f.advance(DefaultSaveInterval)
	assert.Len(t, f.store.appended(), 1)
}

func TestSession_NoTriggerBeforeFirstSample(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start())
	assert.Equal(t, 0, f.clk.Pending())

	f.platform.emit(sample(1, 1, t0), nil)
	assert.Equal(t, 1, f.clk.Pending())
}

func TestSession_IdentityTagging(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.session.Start())

	f.platform.emit(sample(1, 1, t0), nil)
	f.advance(DefaultSaveInterval)

	require.NoError(t, f.identity.Clear(ctx))
	f.platform.emit(sample(2, 2, f.clk.Now()), nil)
	f.advance(DefaultSaveInterval)

	assert.Len(t, f.store.appended(), 1)
}

func TestSession_SampleCapturedWithoutIdentityIsNeverReplayed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.identity.Clear(ctx))
	require.NoError(t, f.session.Start())

	f.platform.emit(sample(1, 1, t0), nil)
	f.advance(DefaultSaveInterval)

	_, err := f.identity.Set(ctx, "bob")
	require.NoError(t, err)
	f.advance(DefaultSaveInterval)
	assert.Empty(t, f.store.appended())

	f.platform.emit(sample(2, 2, f.clk.Now()), nil)
	f.advance(DefaultSaveInterval)
	calls := f.store.appended()
	require.Len(t, calls, 1)
	assert.Equal(t, "bob", calls[0].Username)
}

func TestSession_IdentitySwitchDropsOldSample(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start())

	f.platform.emit(sample(1, 1, t0), nil)
	_, err := f.identity.Set(context.Background(), "mallory")
	require.NoError(t, err)
	f.advance(DefaultSaveInterval)

	assert.Empty(t, f.store.appended())
}

func TestSession_PermissionDeniedDegrades(t *testing.T) {
	f := newFixture(t, geo.StaticChecker{Result: geo.PermissionDenied})
	require.NoError(t, f.session.Start())

	f.platform.emit(sample(1, 1, t0), nil)
	f.platform.emit(geo.Sample{}, geo.ErrPermissionDenied)

	st := f.session.State()
	assert.Equal(t, Degraded, st.Status)
	assert.False(t, st.IsTracking)
	assert.Equal(t, geo.PermissionDenied, st.Permission)
	assert.Equal(t, 0, f.platform.active(), "degrading releases the watch")
	assert.Equal(t, 0, f.clk.Pending(), "degrading cancels the trigger")

	assert.ErrorIs(t, f.session.Start(), ErrRecheckRequired)
	assert.Equal(t, Degraded, f.session.State().Status)

	perm, err := f.session.CheckCapability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, geo.PermissionDenied, perm)
	assert.ErrorIs(t, f.session.Start(), ErrRecheckRequired)
	assert.Equal(t, Degraded, f.session.State().Status)
}

func TestSession_DegradedStartAfterGrantedRecheck(t *testing.T) {
	f := newFixture(t, geo.StaticChecker{Result: geo.PermissionGranted})
	require.NoError(t, f.session.Start())
	f.platform.emit(geo.Sample{}, geo.ErrPermissionDenied)
	require.Equal(t, Degraded, f.session.State().Status)

	_, err := f.session.CheckCapability(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.session.Start())

	st := f.session.State()
	assert.Equal(t, Tracking, st.Status)
	assert.Nil(t, st.LastError)
	assert.Equal(t, 1, f.platform.active())

	// The grant is consumed by the Start that used it.
	f.platform.emit(geo.Sample{}, geo.ErrPermissionDenied)
	assert.ErrorIs(t, f.session.Start(), ErrRecheckRequired)
}

func TestSession_CheckerErrorDoesNotGrant(t *testing.T) {
	f := newFixture(t, geo.StaticChecker{Result: geo.PermissionGranted, Err: errors.New("boom")})
	require.NoError(t, f.session.Start())
	f.platform.emit(geo.Sample{}, geo.ErrPermissionDenied)

	_, err := f.session.CheckCapability(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, f.session.Start(), ErrRecheckRequired)
}

func TestSession_UnsupportedOnStart(t *testing.T) {
	f := newFixture(t, nil)
	f.platform.watchErr = geo.ErrUnsupported

	err := f.session.Start()
	assert.ErrorIs(t, err, geo.ErrUnsupported)

	st := f.session.State()
	assert.Equal(t, Degraded, st.Status)
	assert.Equal(t, geo.KindUnsupported, st.LastError.Kind)
}

func TestSession_StartWatchFailureKeepsIdle(t *testing.T) {
	f := newFixture(t, nil)
	f.platform.watchErr = errors.New("device busy")

	err := f.session.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, geo.ErrPositionUnavailable)

	st := f.session.State()
	assert.Equal(t, Idle, st.Status)
	assert.False(t, st.IsTracking)
	require.NotNil(t, st.LastError)
	assert.Equal(t, geo.KindPositionUnavailable, st.LastError.Kind)
	assert.Equal(t, 0, f.platform.active())
	assert.Equal(t, 0, f.clk.Pending())

	f.platform.watchErr = nil
	require.NoError(t, f.session.Start())
	assert.Equal(t, Tracking, f.session.State().Status)
	assert.Equal(t, 1, f.platform.active())

	f.platform.emit(sample(10, 20, t0), nil)
	f.advance(DefaultSaveInterval)
	assert.Len(t, f.store.appended(), 1)
}

func TestSession_StopFromAnyState(t *testing.T) {
	f := newFixture(t, nil)

	f.session.Stop()
	assert.Equal(t, Idle, f.session.State().Status)

	require.NoError(t, f.session.Start())
	f.platform.emit(sample(1, 1, t0), nil)
	f.session.Stop()
	assert.Equal(t, Idle, f.session.State().Status)
	assert.Equal(t, 0, f.platform.active())
	assert.Equal(t, 0, f.clk.Pending())

	f.advance(time.Minute)
	assert.Empty(t, f.store.appended())

	require.NoError(t, f.session.Start())
	f.platform.emit(geo.Sample{}, geo.ErrPermissionDenied)
	f.session.Stop()
	assert.Equal(t, Idle, f.session.State().Status)
	require.NoError(t, f.session.Start(), "Idle can always start")
}

func TestSession_StopKeepsInFlightSave(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start())
	f.platform.emit(sample(1, 1, t0), nil)
	f.clk.Advance(DefaultSaveInterval)
	f.session.Stop()
	f.session.Wait()

	assert.Len(t, f.store.appended(), 1)
}

func TestSession_ActiveWatchesNeverExceedOne(t *testing.T) {
	f := newFixture(t, nil)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		if rng.Intn(2) == 0 {
			_ = f.session.Start()
		} else {
			f.session.Stop()
			assert.Equal(t, 0, f.platform.active())
		}
		assert.LessOrEqual(t, f.platform.active(), 1)
	}
	assert.LessOrEqual(t, f.platform.maxActive, 1)
}

func TestSession_RefreshNeverChangesTracking(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.platform.once = sample(5, 6, t0)
	got, err := f.session.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.Latitude)
	assert.False(t, f.session.State().IsTracking)
	assert.Equal(t, 0, f.clk.Pending(), "no trigger while idle")

	require.NoError(t, f.session.Start())
	f.platform.onceErr = geo.ErrPermissionDenied
	_, err = f.session.Refresh(ctx)
	assert.ErrorIs(t, err, geo.ErrPermissionDenied)

	st := f.session.State()
	assert.True(t, st.IsTracking)
	assert.Equal(t, Tracking, st.Status)
	assert.Nil(t, st.LastSample)
}

func TestSession_RefreshSuccessCountsAsRecheck(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start())
	f.platform.emit(geo.Sample{}, geo.ErrPermissionDenied)

	f.platform.once = sample(1, 1, t0)
	_, err := f.session.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Degraded, f.session.State().Status)

	require.NoError(t, f.session.Start())
	assert.Equal(t, Tracking, f.session.State().Status)
}

func TestSession_SaveFailureDoesNotChangeState(t *testing.T) {
	f := newFixture(t, nil)
	f.store.err = common.ErrTransport
	require.NoError(t, f.session.Start())

	f.platform.emit(sample(1, 1, t0), nil)
	before := f.session.State()
	f.advance(2 * DefaultSaveInterval)

	assert.Equal(t, before, f.session.State())
	stats := f.session.SaveStats()
	assert.Equal(t, 2, stats.Attempted)
	assert.Equal(t, 2, stats.Failed)
	assert.ErrorIs(t, stats.LastError, common.ErrTransport)

	f.store.mu.Lock()
	f.store.err = nil
	f.store.mu.Unlock()
	f.advance(DefaultSaveInterval)
	stats = f.session.SaveStats()
	assert.Equal(t, 1, stats.Succeeded)
	assert.NoError(t, stats.LastError)
	require.NotNil(t, stats.LastSaved)
}

func TestSession_NotifiesObserversInOrder(t *testing.T) {
	f := newFixture(t, nil)

	var seen []string
	f.session.Subscribe(func(st State) { seen = append(seen, "1:"+st.Status.String()) })
	f.session.Subscribe(func(st State) { seen = append(seen, "2:"+st.Status.String()) })

	require.NoError(t, f.session.Start())
	f.session.Stop()
	f.session.Stop()

	assert.Equal(t, []string{"1:tracking", "2:tracking", "1:idle", "2:idle"}, seen)
}

func TestSession_CustomInterval(t *testing.T) {
	f := newFixture(t, nil)
	f.session.opts.Policy.SaveInterval = 30 * time.Second
	require.NoError(t, f.session.Start())

	f.platform.emit(sample(1, 1, t0), nil)
	f.advance(29 * time.Second)
	assert.Empty(t, f.store.appended())
	f.advance(time.Second)
	assert.Len(t, f.store.appended(), 1)
}
