package presenter

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/gpstracker/internal/api"
	"github.com/dmitrijs2005/gpstracker/internal/logging"
)

// Querier is implemented by *history.HTTPStore.
type Querier interface {
	Query(ctx context.Context, username string, limit int) ([]api.Location, error)
}

// HistoryPresenter fetches and prints the stored history of a user.
type HistoryPresenter struct {
	store  Querier
	limit  int
	out    io.Writer
	loc    *time.Location
	logger logging.Logger
}

func NewHistoryPresenter(store Querier, limit int, out io.Writer, loc *time.Location, logger logging.Logger) *HistoryPresenter {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &HistoryPresenter{store: store, limit: limit, out: out, loc: loc, logger: logger.With("module", "history")}
}

// Load prints "Loading history..." followed by one line per stored
// location, oldest first. A failed query is logged and shown as an empty
// history; the error is returned.
func (p *HistoryPresenter) Load(ctx context.Context, username string) error {
	fmt.Fprintln(p.out, "Loading history...")

	locs, err := p.store.Query(ctx, username, p.limit)
	if err != nil {
		p.logger.Error(ctx, "error loading location history", "username", username, "error", err)
	}

	if len(locs) == 0 {
		fmt.Fprintln(p.out, "No location history found")
		return err
	}

	fmt.Fprintf(p.out, "Location History (%d)\n", len(locs))
	for _, l := range locs {
		fmt.Fprintf(p.out, "  %s, %s  %s\n",
			FormatCoordinate(l.Latitude), FormatCoordinate(l.Longitude),
			l.Timestamp.In(p.loc).Format(time.DateTime))
	}
	return nil
}
