package geo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/gpstracker/internal/logging"
)

const gpsdWatchCommand = "?WATCH={\"enable\":true,\"json\":true};\n"

// GPSD reads positions from a gpsd daemon using its JSON protocol.
//
// An unreachable daemon is reported as KindUnsupported. A TPV report
// without a 2D or 3D fix is KindPositionUnavailable, reported once per loss
// of fix. Silence for longer than Options.Timeout is KindTimeout, after
// which the watch keeps listening. A lost connection is redialled until the
// watch is cleared. HighAccuracy has no gpsd equivalent and is ignored.
type GPSD struct {
	addr   string
	logger logging.Logger

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
	now  func() time.Time

	retryMin time.Duration
	retryMax time.Duration

	mu      sync.Mutex
	nextID  WatchID
	watches map[WatchID]context.CancelFunc
	last    *Sample
}

func NewGPSD(addr string, logger logging.Logger) *GPSD {
	if logger == nil {
		logger = logging.Nop()
	}
	d := &net.Dialer{Timeout: 5 * time.Second}
	return &GPSD{
		addr:     addr,
		logger:   logger.With("module", "gpsd"),
		dial:     d.DialContext,
		now:      time.Now,
		retryMin: 500 * time.Millisecond,
		retryMax: 30 * time.Second,
		watches:  make(map[WatchID]context.CancelFunc),
	}
}

type gpsdReport struct {
	Class   string   `json:"class"`
	Mode    int      `json:"mode"`
	Time    string   `json:"time"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	Alt     *float64 `json:"alt"`
	AltHAE  *float64 `json:"altHAE"`
	Speed   *float64 `json:"speed"`
	Eph     *float64 `json:"eph"`
	Epx     *float64 `json:"epx"`
	Epy     *float64 `json:"epy"`
	Message string   `json:"message"`
}

func (g *GPSD) connect(ctx context.Context) (net.Conn, error) {
	conn, err := g.dial(ctx, "tcp", g.addr)
	if err != nil {
		return nil, NewError(KindUnsupported, fmt.Errorf("connect gpsd %s: %w", g.addr, err))
	}
	if _, err := io.WriteString(conn, gpsdWatchCommand); err != nil {
		_ = conn.Close()
		return nil, NewError(KindUnsupported, fmt.Errorf("enable gpsd watch: %w", err))
	}
	return conn, nil
}

func (g *GPSD) WatchPosition(opts Options, onSample func(Sample), onError func(error)) (WatchID, error) {
	ctx, cancel := context.WithCancel(context.Background())

	conn, err := g.connect(ctx)
	if err != nil {
		cancel()
		return 0, err
	}
	g.mu.Lock()
	g.nextID++
	id := g.nextID
	g.watches[id] = cancel
	g.mu.Unlock()

	go g.stream(ctx, conn, opts, onSample, onError)
	return id, nil
}

func (g *GPSD) ClearWatch(id WatchID) {
	g.mu.Lock()
	cancel, ok := g.watches[id]
	delete(g.watches, id)
	g.mu.Unlock()

	if ok {
		cancel()
	}
}

type streamState struct {
	hadFix bool
	outage bool
}

// stream reads reports until ctx is cancelled. A dropped connection is
// reported as KindPositionUnavailable once per outage and redialled with
// exponential backoff between retryMin and retryMax.
func (g *GPSD) stream(ctx context.Context, conn net.Conn, opts Options, onSample func(Sample), onError func(error)) {
	st := &streamState{hadFix: true}
	backoff := g.retryMin

	for {
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		got, err := g.read(ctx, conn, opts, st, onSample, onError)
		stop()
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		if got {
			backoff = g.retryMin
		}
		if !st.outage {
			g.logger.Warn(ctx, "gpsd stream closed", "error", err)
			onError(NewError(KindPositionUnavailable, err))
			st.outage = true
			st.hadFix = false
		}

		for {
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}

			conn, err = g.connect(ctx)
			if err == nil {
				g.logger.Info(ctx, "gpsd reconnected")
				break
			}
			if ctx.Err() != nil {
				return
			}
			g.logger.Debug(ctx, "gpsd reconnect failed", "error", err, "retry_in", backoff)
			backoff = min(backoff*2, g.retryMax)
		}
	}
}

// read consumes one connection until it fails. got reports whether any
// line was received.
func (g *GPSD) read(ctx context.Context, conn net.Conn, opts Options, st *streamState, onSample func(Sample), onError func(error)) (got bool, err error) {
	r := bufio.NewReader(conn)
	var partial []byte

	for {
		if opts.Timeout > 0 {
			_ = conn.SetReadDeadline(g.now().Add(opts.Timeout))
		}
		line, err := r.ReadBytes('\n')
		partial = append(partial, line...)

		if err != nil {
			if ctx.Err() != nil {
				return got, err
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				onError(ErrTimeout)
				continue
			}
			return got, err
		}
		got = true

		report, ok := g.decode(ctx, partial)
		partial = partial[:0]
		if !ok {
			continue
		}

		sample, err := g.toSample(report)
		if err != nil {
			if st.hadFix {
				onError(err)
			}
			st.hadFix = false
			continue
		}
		st.hadFix = true
		st.outage = false
		g.remember(sample)
		onSample(sample)
	}
}

// CurrentPosition returns a cached sample younger than opts.MaxSampleAge,
// or waits for the next fix until ctx is done.
func (g *GPSD) CurrentPosition(ctx context.Context, opts Options) (Sample, error) {
	if s, ok := g.cached(opts.MaxSampleAge); ok {
		return s, nil
	}

	conn, err := g.connect(ctx)
	if err != nil {
		return Sample{}, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
	}

	r := bufio.NewReader(conn)
	noFix := false
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			if noFix {
				return Sample{}, ErrPositionUnavailable
			}
			var nerr net.Error
			if ctx.Err() != nil || (errors.As(err, &nerr) && nerr.Timeout()) {
				return Sample{}, NewError(KindTimeout, err)
			}
			return Sample{}, NewError(KindPositionUnavailable, err)
		}

		report, ok := g.decode(ctx, line)
		if !ok {
			continue
		}
		sample, err := g.toSample(report)
		if err != nil {
			noFix = true
			continue
		}
		g.remember(sample)
		return sample, nil
	}
}

// Permission reports granted when the daemon accepts a connection.
func (g *GPSD) Permission(ctx context.Context) (Permission, error) {
	conn, err := g.dial(ctx, "tcp", g.addr)
	if err != nil {
		return PermissionUnknown, NewError(KindUnsupported, err)
	}
	_ = conn.Close()
	return PermissionGranted, nil
}

// decode returns TPV reports only.
func (g *GPSD) decode(ctx context.Context, line []byte) (gpsdReport, bool) {
	var rep gpsdReport
	if err := json.Unmarshal(line, &rep); err != nil {
		g.logger.Debug(ctx, "skip malformed gpsd line", "error", err)
		return rep, false
	}
	if rep.Class == "ERROR" {
		g.logger.Warn(ctx, "gpsd error", "message", rep.Message)
	}
	return rep, rep.Class == "TPV"
}

func (g *GPSD) toSample(r gpsdReport) (Sample, error) {
	if r.Mode < 2 || r.Lat == nil || r.Lon == nil {
		return Sample{}, ErrPositionUnavailable
	}

	s := Sample{
		Latitude:  *r.Lat,
		Longitude: *r.Lon,
		Speed:     r.Speed,
	}

	switch {
	case r.Eph != nil:
		s.Accuracy = r.Eph
	case r.Epx != nil && r.Epy != nil:
		v := math.Max(*r.Epx, *r.Epy)
		s.Accuracy = &v
	}

	if r.Mode >= 3 {
		if r.AltHAE != nil {
			s.Altitude = r.AltHAE
		} else {
			s.Altitude = r.Alt
		}
	}

	s.CapturedAt = g.now()
	if r.Time != "" {
		if t, err := time.Parse(time.RFC3339Nano, r.Time); err == nil {
			s.CapturedAt = t
		}
	}
	return s, nil
}

func (g *GPSD) remember(s Sample) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = &s
}

func (g *GPSD) cached(maxAge time.Duration) (Sample, bool) {
	if maxAge <= 0 {
		return Sample{}, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil || g.now().Sub(g.last.CapturedAt) > maxAge {
		return Sample{}, false
	}
	return *g.last, true
}
