package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/gpstracker/internal/api"
	"github.com/dmitrijs2005/gpstracker/internal/client/geo"
	"github.com/dmitrijs2005/gpstracker/internal/client/tracking"
	"github.com/dmitrijs2005/gpstracker/internal/common"
	"github.com/dmitrijs2005/gpstracker/internal/filex"
	"github.com/dmitrijs2005/gpstracker/internal/netx"
)

const (
	msgEmptyUsername = "Username cannot be empty"
	msgNotLoggedIn   = "Not logged in. Use 'login <name>' first."
)

func (a *App) Start(_ context.Context) error {
	err := a.session.Start()
	switch {
	case err == nil:
		fmt.Fprintln(a.out, "Tracking started")
		if _, ok := a.identity.Get(); !ok {
			fmt.Fprintln(a.out, "Positions are not saved until you log in.")
		}
	case errors.Is(err, tracking.ErrRecheckRequired):
		fmt.Fprintln(a.out, "Location is unavailable. Run 'recheck' after enabling location services.")
	default:
		fmt.Fprintln(a.out, geo.AsPositionError(err).Kind.Message())
	}
	return err
}

func (a *App) Stop(_ context.Context) error {
	a.session.Stop()
	fmt.Fprintln(a.out, "Tracking stopped")
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	_, err := a.session.Refresh(ctx)
	a.view.Show(a.session.State())
	return err
}

func (a *App) Status(_ context.Context) error {
	a.view.Show(a.session.State())

	stats := a.session.SaveStats()
	if stats.Attempted > 0 {
		fmt.Fprintf(a.out, "Saved %d of %d positions", stats.Succeeded, stats.Attempted)
		if stats.LastSaved != nil {
			fmt.Fprintf(a.out, ", last at %s", stats.LastSaved.Timestamp.Local().Format(time.TimeOnly))
		}
		fmt.Fprintln(a.out)
		if stats.LastError != nil {
			fmt.Fprintf(a.out, "Last save error: %v\n", stats.LastError)
		}
	}
	if m := a.mode(); m != "" {
		fmt.Fprintf(a.out, "Server: %s\n", m)
	}
	return nil
}

// History shows the stored history of username, or of the current user when
// username is empty.
func (a *App) History(ctx context.Context, username string) error {
	if username == "" {
		name, ok := a.identity.Get()
		if !ok {
			fmt.Fprintln(a.out, msgNotLoggedIn)
			return common.ErrNoIdentity
		}
		username = name
	}
	return a.history.Load(ctx, username)
}

func (a *App) Recheck(ctx context.Context) error {
	perm, err := a.session.CheckCapability(ctx)
	if err != nil {
		fmt.Fprintln(a.out, geo.AsPositionError(err).Kind.Message())
		return err
	}
	switch perm {
	case geo.PermissionGranted:
		fmt.Fprintln(a.out, "Location access granted")
	case geo.PermissionDenied:
		fmt.Fprintln(a.out, geo.KindPermissionDenied.Message())
	default:
		fmt.Fprintf(a.out, "Location permission: %s\n", perm)
	}
	return nil
}

// Login sets the current username, prompting for one when username is
// empty.
func (a *App) Login(ctx context.Context, username string) error {
	if username == "" {
		name, err := AskUsername(a.scanner, a.out)
		if err != nil {
			return err
		}
		username = name
	}

	id, err := a.identity.Set(ctx, username)
	if errors.Is(err, common.ErrInvalidIdentity) {
		fmt.Fprintln(a.out, msgEmptyUsername)
		return err
	}
	if err != nil {
		fmt.Fprintf(a.out, "Failed to save username: %v\n", err)
		return err
	}

	ok, err := a.store.Exists(ctx, id.Username)
	switch {
	case err != nil:
		a.logger.Debug(ctx, "username check failed", "username", id.Username, "error", err)
		fmt.Fprintf(a.out, "Logged in as %s\n", id.Username)
	case ok:
		fmt.Fprintf(a.out, "Welcome back, %s\n", id.Username)
	default:
		fmt.Fprintf(a.out, "Logged in as %s (new user)\n", id.Username)
	}
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if _, ok := a.identity.Get(); !ok {
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}
	if err := a.identity.Clear(ctx); err != nil {
		fmt.Fprintf(a.out, "Failed to log out: %v\n", err)
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	if a.session.State().IsTracking {
		fmt.Fprintln(a.out, "Tracking continues but positions are not saved until you log in.")
	}
	return nil
}

func (a *App) WhoAmI(_ context.Context) error {
	if name, ok := a.identity.Get(); ok {
		fmt.Fprintln(a.out, name)
		return nil
	}
	fmt.Fprintln(a.out, msgNotLoggedIn)
	return nil
}

func (a *App) Check(ctx context.Context, username string) error {
	ok, err := a.store.Exists(ctx, username)
	if err != nil {
		fmt.Fprintf(a.out, "Failed to check username: %v\n", err)
		return err
	}
	if ok {
		fmt.Fprintf(a.out, "User %q has location history\n", username)
	} else {
		fmt.Fprintf(a.out, "User %q has no location history\n", username)
	}
	return nil
}

// Archive snapshots the current user's history to object storage and, when
// dir is set, downloads the snapshot into dir.
func (a *App) Archive(ctx context.Context, dir string) error {
	name, ok := a.identity.Get()
	if !ok {
		fmt.Fprintln(a.out, msgNotLoggedIn)
		return common.ErrNoIdentity
	}

	res, err := a.store.Archive(ctx, name)
	switch {
	case errors.Is(err, common.ErrArchiveDisabled):
		fmt.Fprintln(a.out, "Archiving is not configured on the server")
		return err
	case errors.Is(err, common.ErrorNotFound):
		fmt.Fprintln(a.out, "No location history found")
		return err
	case err != nil:
		fmt.Fprintf(a.out, "Failed to archive history: %v\n", err)
		return err
	}

	fmt.Fprintf(a.out, "Archived %d locations to %s\n", res.Count, res.Key)
	if res.URL != "" {
		fmt.Fprintf(a.out, "Download (expires %s): %s\n", res.ExpiresAt.Local().Format(time.TimeOnly), res.URL)
	}
	if dir == "" {
		return nil
	}
	if res.URL == "" {
		fmt.Fprintln(a.out, "The server did not return a download link")
		return nil
	}

	path, err := a.saveArchive(ctx, dir, res)
	if err != nil {
		fmt.Fprintf(a.out, "Failed to download archive: %v\n", err)
		return err
	}
	fmt.Fprintf(a.out, "Saved to %s\n", path)
	return nil
}

func (a *App) saveArchive(ctx context.Context, dir string, res api.ArchiveResponse) (string, error) {
	dir, err := filex.EnsureDir(dir)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, filepath.Base(res.Key))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	if _, err := netx.DownloadPresignedURL(ctx, nil, res.URL, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	return path, f.Close()
}
