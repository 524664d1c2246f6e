package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/gpstracker/internal/api"
	"github.com/dmitrijs2005/gpstracker/internal/common"
	"github.com/dmitrijs2005/gpstracker/internal/logging"
	"github.com/dmitrijs2005/gpstracker/internal/server/archive"
	"github.com/dmitrijs2005/gpstracker/internal/server/models"
)

// LocationService is implemented by *services.LocationService.
type LocationService interface {
	Save(ctx context.Context, req api.LocationRequest) (*models.Location, error)
	History(ctx context.Context, username string, limit int) ([]models.Location, error)
	Exists(ctx context.Context, username string) (bool, error)
	Archive(ctx context.Context, username string) (*archive.Result, error)
	StorageName() string
}

const maxBodyBytes = 64 << 10

type Handler struct {
	locations LocationService
	logger    logging.Logger
}

func NewHandler(s LocationService, l logging.Logger) *Handler {
	return &Handler{locations: s, logger: l.With("module", "handler")}
}

func (h *Handler) SaveLocation(w http.ResponseWriter, r *http.Request) {
	var req api.LocationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	loc, err := h.locations.Save(r.Context(), req)
	if err != nil {
		if errors.Is(err, common.ErrValidation) {
			writeError(w, http.StatusBadRequest, "Username, latitude, and longitude are required")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save location data")
		return
	}

	writeJSON(w, http.StatusCreated, toAPI(*loc))
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > common.MaxHistoryLimit {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and "+strconv.Itoa(common.MaxHistoryLimit))
			return
		}
		limit = n
	}

	locs, err := h.locations.History(r.Context(), username, limit)
	if err != nil {
		if errors.Is(err, common.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to fetch location history")
		return
	}

	resp := api.HistoryResponse{Username: username, Locations: make([]api.Location, 0, len(locs))}
	for _, l := range locs {
		resp.Locations = append(resp.Locations, toAPI(l))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CheckUser(w http.ResponseWriter, r *http.Request) {
	ok, err := h.locations.Exists(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check username")
		return
	}
	writeJSON(w, http.StatusOK, api.ExistsResponse{Exists: ok})
}

func (h *Handler) ArchiveHistory(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	res, err := h.locations.Archive(r.Context(), username)
	switch {
	case errors.Is(err, common.ErrArchiveDisabled):
		writeError(w, http.StatusNotImplemented, "Archiving is not configured")
		return
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "No location history found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to archive location history")
		return
	}

	writeJSON(w, http.StatusCreated, api.ArchiveResponse{
		Username:  username,
		Key:       res.Key,
		Count:     res.Count,
		URL:       res.URL,
		ExpiresAt: res.ExpiresAt,
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Storage: h.locations.StorageName()})
}

func toAPI(l models.Location) api.Location {
	return api.Location{
		ID:        l.ID,
		Username:  l.Username,
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		Timestamp: l.CapturedAt,
		Accuracy:  l.Accuracy,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}
