package geo

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gpstracker/internal/clock"
)

// Fixed reports the same coordinates on every tick. It stands in for a
// receiver in demos and tests.
type Fixed struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
	Interval  time.Duration

	clk clock.Clock

	mu      sync.Mutex
	nextID  WatchID
	watches map[WatchID]clock.Timer
}

func NewFixed(lat, lon float64, interval time.Duration, clk clock.Clock) *Fixed {
	if clk == nil {
		clk = clock.Real()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Fixed{
		Latitude:  lat,
		Longitude: lon,
		Interval:  interval,
		clk:       clk,
		watches:   make(map[WatchID]clock.Timer),
	}
}

func (f *Fixed) sample() Sample {
	return Sample{
		Latitude:   f.Latitude,
		Longitude:  f.Longitude,
		Accuracy:   f.Accuracy,
		CapturedAt: f.clk.Now(),
	}
}

// WatchPosition emits a sample immediately and then every Interval.
func (f *Fixed) WatchPosition(_ Options, onSample func(Sample), _ func(error)) (WatchID, error) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	var tick func()
	tick = func() {
		f.mu.Lock()
		if _, ok := f.watches[id]; !ok {
			f.mu.Unlock()
			return
		}
		f.watches[id] = f.clk.AfterFunc(f.Interval, tick)
		f.mu.Unlock()

		onSample(f.sample())
	}

	f.mu.Lock()
	f.watches[id] = f.clk.AfterFunc(f.Interval, tick)
	f.mu.Unlock()

	onSample(f.sample())
	return id, nil
}

func (f *Fixed) ClearWatch(id WatchID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.watches[id]; ok {
		t.Stop()
		delete(f.watches, id)
	}
}

func (f *Fixed) CurrentPosition(ctx context.Context, _ Options) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	return f.sample(), nil
}

func (f *Fixed) Permission(context.Context) (Permission, error) {
	return PermissionGranted, nil
}
