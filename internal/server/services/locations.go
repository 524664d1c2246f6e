// Package services holds the server-side use cases behind the HTTP handlers.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gpstracker/internal/api"
	"github.com/dmitrijs2005/gpstracker/internal/common"
	"github.com/dmitrijs2005/gpstracker/internal/logging"
	"github.com/dmitrijs2005/gpstracker/internal/server/archive"
	"github.com/dmitrijs2005/gpstracker/internal/server/config"
	"github.com/dmitrijs2005/gpstracker/internal/server/metrics"
	"github.com/dmitrijs2005/gpstracker/internal/server/models"
	"github.com/dmitrijs2005/gpstracker/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gpstracker/internal/validation"
)

// Archiver uploads a history snapshot. *archive.S3Archiver implements it.
type Archiver interface {
	Archive(ctx context.Context, username string, locs []models.Location) (*archive.Result, error)
}

type LocationService struct {
	repomanager  repomanager.RepositoryManager
	archiver     Archiver
	historyLimit int
	logger       logging.Logger
	now          func() time.Time
}

// NewLocationService wires the service. archiver may be nil, which disables
// Archive.
func NewLocationService(m repomanager.RepositoryManager, archiver Archiver, cfg *config.Config, logger logging.Logger) *LocationService {
	limit := cfg.HistoryLimit
	if limit <= 0 || limit > common.MaxHistoryLimit {
		limit = common.MaxHistoryLimit
	}
	return &LocationService{
		repomanager:  m,
		archiver:     archiver,
		historyLimit: limit,
		logger:       logger.With("module", "locations"),
		now:          time.Now,
	}
}

// Save validates req and appends it. Only presence is checked: a username,
// a latitude and a longitude must be supplied, and zero is a valid
// coordinate. A missing timestamp defaults to the server clock.
func (s *LocationService) Save(ctx context.Context, req api.LocationRequest) (*models.Location, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	loc := &models.Location{
		Username:  req.Username,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Accuracy:  req.Accuracy,
	}
	if req.Timestamp != nil {
		loc.CapturedAt = req.Timestamp.UTC()
	} else {
		loc.CapturedAt = s.now().UTC()
	}

	start := time.Now()
	saved, err := s.repomanager.Locations().Append(ctx, loc)
	metrics.RecordStorage("append", time.Since(start), err)
	if err != nil {
		s.logger.Error(ctx, "error saving location", "username", req.Username, "err", err)
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	metrics.LocationsSaved.WithLabelValues(s.repomanager.Name()).Inc()
	return saved, nil
}

// History returns up to limit of the user's most recent locations, oldest
// first. A limit outside 1..historyLimit falls back to historyLimit.
func (s *LocationService) History(ctx context.Context, username string, limit int) ([]models.Location, error) {
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("%w: username is required", common.ErrValidation)
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	start := time.Now()
	locs, err := s.repomanager.Locations().Recent(ctx, username, limit)
	metrics.RecordStorage("recent", time.Since(start), err)
	if err != nil {
		s.logger.Error(ctx, "error fetching location history", "username", username, "err", err)
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return locs, nil
}

func (s *LocationService) Exists(ctx context.Context, username string) (bool, error) {
	start := time.Now()
	ok, err := s.repomanager.Locations().Exists(ctx, username)
	metrics.RecordStorage("exists", time.Since(start), err)
	if err != nil {
		s.logger.Error(ctx, "error checking username", "username", username, "err", err)
		return false, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return ok, nil
}

// Archive uploads the user's full history. A user with no history yields
// common.ErrorNotFound.
func (s *LocationService) Archive(ctx context.Context, username string) (*archive.Result, error) {
	if s.archiver == nil {
		return nil, common.ErrArchiveDisabled
	}

	start := time.Now()
	locs, err := s.repomanager.Locations().All(ctx, username)
	metrics.RecordStorage("all", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if len(locs) == 0 {
		return nil, common.ErrorNotFound
	}

	res, err := s.archiver.Archive(ctx, username, locs)
	if err != nil {
		s.logger.Error(ctx, "error archiving history", "username", username, "err", err)
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	metrics.ArchivesCreated.Inc()
	s.logger.Info(ctx, "history archived", "username", username, "key", res.Key, "count", res.Count)
	return res, nil
}

// StorageName is the configured backend name.
func (s *LocationService) StorageName() string {
	return s.repomanager.Name()
}
