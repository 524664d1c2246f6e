// Package presenter renders tracking state and location history as text.
package presenter

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gpstracker/internal/client/geo"
	"github.com/dmitrijs2005/gpstracker/internal/client/tracking"
	"github.com/dmitrijs2005/gpstracker/internal/observer"
)

// GPSOffAlert is shown when the platform reports the position unavailable.
const GPSOffAlert = "GPS is turned off. Please enable location services to use this app."

// StateSource is implemented by *tracking.Session.
type StateSource interface {
	State() tracking.State
	Subscribe(fn func(tracking.State)) observer.Handle
	Unsubscribe(h observer.Handle)
}

// SessionPresenter prints the tracking state. Once attached it prints the
// full view on status changes and on each new error; plain position
// updates are kept for the next explicit Show.
type SessionPresenter struct {
	out io.Writer
	loc *time.Location

	mu         sync.Mutex
	src        StateSource
	handle     observer.Handle
	attached   bool
	lastStatus tracking.Status
	lastErr    *geo.PositionError
}

func NewSessionPresenter(out io.Writer, loc *time.Location) *SessionPresenter {
	if loc == nil {
		loc = time.Local
	}
	return &SessionPresenter{out: out, loc: loc}
}

// Attach subscribes to src. Calling it again replaces the previous source.
func (p *SessionPresenter) Attach(src StateSource) {
	p.Detach()

	st := src.State()
	p.mu.Lock()
	p.src = src
	p.lastStatus = st.Status
	p.lastErr = st.LastError
	p.attached = true
	p.mu.Unlock()

	h := src.Subscribe(p.onState)

	p.mu.Lock()
	p.handle = h
	p.mu.Unlock()
}

func (p *SessionPresenter) Detach() {
	p.mu.Lock()
	src, h, ok := p.src, p.handle, p.attached
	p.attached = false
	p.src = nil
	p.mu.Unlock()

	if ok {
		src.Unsubscribe(h)
	}
}

// Show prints st in full.
func (p *SessionPresenter) Show(st tracking.State) {
	_, _ = io.WriteString(p.out, p.Render(st))
}

func (p *SessionPresenter) onState(st tracking.State) {
	p.mu.Lock()
	statusChanged := st.Status != p.lastStatus
	newErr := st.LastError != nil && st.LastError != p.lastErr
	p.lastStatus = st.Status
	p.lastErr = st.LastError
	p.mu.Unlock()

	if newErr && st.LastError.Kind == geo.KindPositionUnavailable {
		fmt.Fprintf(p.out, "! %s\n", GPSOffAlert)
	}
	if statusChanged || newErr {
		p.Show(st)
	}
}

// Render formats st. Coordinates have six decimals; accuracy, altitude and
// speed have two.
func (p *SessionPresenter) Render(st tracking.State) string {
	var b strings.Builder

	status := "Not Tracking"
	if st.IsTracking {
		status = "Tracking"
	}
	fmt.Fprintf(&b, "Your Location [%s]\n", status)

	switch {
	case st.LastError != nil:
		fmt.Fprintf(&b, "  %s\n", st.LastError.Kind.Message())
		switch geo.Classify(st.LastError.Kind) {
		case geo.ClassPermission, geo.ClassCapability:
			fmt.Fprintln(&b, "  Enable location access, then type 'recheck' and 'start'.")
		default:
			fmt.Fprintln(&b, "  Type 'refresh' to try again.")
		}

	case st.LastSample != nil:
		s := st.LastSample
		row(&b, "Latitude", FormatCoordinate(s.Latitude))
		row(&b, "Longitude", FormatCoordinate(s.Longitude))
		if s.Accuracy != nil {
			row(&b, "Accuracy", fmt.Sprintf("%.2f m", *s.Accuracy))
		}
		if s.Altitude != nil {
			row(&b, "Altitude", fmt.Sprintf("%.2f m", *s.Altitude))
		}
		if s.Speed != nil {
			row(&b, "Speed", fmt.Sprintf("%.2f m/s", *s.Speed))
		}
		row(&b, "Last Updated", s.CapturedAt.In(p.loc).Format(time.TimeOnly))

	default:
		fmt.Fprintln(&b, "  Waiting for location data...")
	}

	if st.Status == tracking.Degraded {
		fmt.Fprintln(&b, "  Tracking is paused: location is not available.")
	}
	return b.String()
}

func row(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "  %-13s%s\n", label, value)
}

func FormatCoordinate(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
