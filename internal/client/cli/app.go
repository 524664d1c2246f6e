package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/gpstracker/internal/api"
	"github.com/dmitrijs2005/gpstracker/internal/client/config"
	"github.com/dmitrijs2005/gpstracker/internal/client/geo"
	"github.com/dmitrijs2005/gpstracker/internal/client/history"
	"github.com/dmitrijs2005/gpstracker/internal/client/identity"
	"github.com/dmitrijs2005/gpstracker/internal/client/localdb"
	"github.com/dmitrijs2005/gpstracker/internal/client/presenter"
	"github.com/dmitrijs2005/gpstracker/internal/client/tracking"
	"github.com/dmitrijs2005/gpstracker/internal/clock"
	"github.com/dmitrijs2005/gpstracker/internal/logging"
)

type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

type sessionAPI interface {
	Start() error
	Stop()
	Refresh(ctx context.Context) (geo.Sample, error)
	CheckCapability(ctx context.Context) (geo.Permission, error)
	State() tracking.State
	SaveStats() tracking.SaveStats
	Wait()
}

type identityAPI interface {
	Get() (string, bool)
	Set(ctx context.Context, username string) (identity.Identity, error)
	Clear(ctx context.Context) error
}

type historyAPI interface {
	Exists(ctx context.Context, username string) (bool, error)
	Archive(ctx context.Context, username string) (api.ArchiveResponse, error)
	Ping(ctx context.Context) error
}

type historyView interface {
	Load(ctx context.Context, username string) error
}

type App struct {
	config   *config.Config
	session  sessionAPI
	identity identityAPI
	store    historyAPI
	history  historyView
	view     *presenter.SessionPresenter
	logger   logging.Logger
	scanner  *bufio.Scanner
	out      io.Writer
	closers  []func() error

	// busy is held by the REPL while a command runs.
	busy        chan struct{}
	drainWindow time.Duration

	mu   sync.Mutex
	Mode Mode
}

// NewApp wires the client: local database, identity, position source,
// history client, tracking session and presenters.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, closeLog, err := newLogger(c)
	if err != nil {
		return nil, err
	}

	repos, err := localdb.Open(ctx, c.DatabasePath)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	ids := identity.NewHolder(repos.Metadata)
	if err := ids.Load(ctx); err != nil {
		_ = repos.Close()
		_ = closeLog()
		return nil, err
	}

	platform := newPlatform(c, logger)
	store := history.NewHTTPStore(c.ServerURL, history.Options{
		Timeout:          c.RequestTimeout,
		FailureThreshold: history.DefaultOptions().FailureThreshold,
		OpenTimeout:      history.DefaultOptions().OpenTimeout,
	}, logger)

	session := tracking.NewSession(tracking.Deps{
		Source:   geo.NewSource(platform, logger),
		Store:    store,
		Identity: ids,
		Checker:  geo.PlatformChecker{Platform: platform},
		Clock:    clock.Real(),
		Logger:   logger,
	}, tracking.Options{
		Policy: tracking.Policy{SaveInterval: c.SaveInterval, SaveTimeout: c.RequestTimeout},
		Watch:  geo.Options{HighAccuracy: c.HighAccuracy, MaxSampleAge: c.MaxSampleAge, Timeout: c.WatchTimeout},
		Once:   geo.Options{HighAccuracy: c.HighAccuracy, Timeout: c.RefreshTimeout},
	})

	out := os.Stdout
	view := presenter.NewSessionPresenter(out, time.Local)
	view.Attach(session)

	return &App{
		config:   c,
		session:  session,
		identity: ids,
		store:    store,
		history:  presenter.NewHistoryPresenter(store, c.HistoryLimit, out, time.Local, logger),
		view:     view,
		logger:   logger,
		scanner:  bufio.NewScanner(os.Stdin),
		out:      out,
		closers:  []func() error{repos.Close, closeLog},

		busy:        make(chan struct{}, 1),
		drainWindow: 5 * time.Second,
	}, nil
}

func newPlatform(c *config.Config, logger logging.Logger) geo.Platform {
	if c.PositionSource == config.SourceFixed {
		return geo.NewFixed(c.FixedLatitude, c.FixedLongitude, c.FixedInterval, clock.Real())
	}
	return geo.NewGPSD(c.GPSDAddr, logger)
}

// Run asks for a username if none is stored, takes an initial position and
// runs the command loop until the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	fmt.Fprintln(a.out, "GPS tracker (type 'help' for commands)")

	if _, ok := a.identity.Get(); !ok {
		if err := a.Login(ctx, ""); errors.Is(err, io.EOF) {
			return nil
		}
	}

	if _, err := a.session.CheckCapability(ctx); err != nil {
		a.logger.Warn(ctx, "capability check failed", "error", err)
	}
	_ = a.Refresh(ctx)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartOnlineStatusWatcher(watchCtx, a.config.OnlineCheckInterval)

	done := make(chan struct{})
	go func() {
		runREPL(ctx, a, a.getStatus, a.scanner, a.busy)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		fmt.Fprintln(a.out, "\nInterrupted")
		a.drain()
	}

	a.session.Stop()
	a.session.Wait()
	return nil
}

// drain waits up to drainWindow for the running command, if any, to finish.
// Commands that start afterwards see the cancelled context and do not run.
// A command still blocked on input after the window is abandoned.
func (a *App) drain() {
	if a.busy == nil {
		return
	}
	t := time.NewTimer(a.drainWindow)
	defer t.Stop()
	select {
	case a.busy <- struct{}{}:
		<-a.busy
	case <-t.C:
		a.logger.Warn(context.Background(), "command still running at shutdown")
	}
}

func (a *App) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Mode != mode {
		a.Mode = mode
		a.logger.Info(context.Background(), "switched mode", "mode", string(mode))
	}
}

func (a *App) mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Mode
}

// StartOnlineStatusWatcher pings the history server every interval and
// tracks whether it is reachable.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	a.checkOnline(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := a.store.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}

func (a *App) getStatus() string {
	s := "not tracking"
	if a.session.State().IsTracking {
		s = "tracking"
	}
	if st := a.session.State().Status; st == tracking.Degraded {
		s = st.String()
	}
	if name, ok := a.identity.Get(); ok {
		s = name + " " + s
	}
	if m := a.mode(); m != "" {
		s = s + " " + string(m)
	}
	return "(" + s + ")"
}

var _ execIface = (*App)(nil)
