// Package history is the client side of the history server's HTTP API.
package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/dmitrijs2005/gpstracker/internal/api"
	"github.com/dmitrijs2005/gpstracker/internal/common"
	"github.com/dmitrijs2005/gpstracker/internal/logging"
	"github.com/dmitrijs2005/gpstracker/internal/validation"
)

// Store is the history contract the tracking client depends on.
//
// Append fails with an error matching common.ErrValidation when username,
// latitude or longitude is absent; zero coordinates are valid. Query
// returns at most limit rows ordered by capture time, and an empty slice
// for an unknown user. Network and server failures match
// common.ErrTransport.
type Store interface {
	Append(ctx context.Context, loc api.LocationRequest) (api.Location, error)
	Query(ctx context.Context, username string, limit int) ([]api.Location, error)
	Exists(ctx context.Context, username string) (bool, error)
}

type Options struct {
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

func DefaultOptions() Options {
	return Options{
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// HTTPStore implements Store against the history server. Server errors and
// network failures count towards a circuit breaker; while it is open calls
// fail fast with common.ErrTransport.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*response]
	logger  logging.Logger
}

var _ Store = (*HTTPStore)(nil)

type response struct {
	status int
	body   []byte
}

var errServer = errors.New("server error")

func NewHTTPStore(baseURL string, opts Options, logger logging.Logger) *HTTPStore {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("module", "history")

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = DefaultOptions().FailureThreshold
	}

	cb := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "history",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		breaker: cb,
		logger:  logger,
	}
}

func (s *HTTPStore) Append(ctx context.Context, loc api.LocationRequest) (api.Location, error) {
	if err := validation.Struct(loc); err != nil {
		return api.Location{}, err
	}

	body, err := json.Marshal(loc)
	if err != nil {
		return api.Location{}, fmt.Errorf("encode location: %w", err)
	}

	resp, err := s.do(ctx, http.MethodPost, "/locations", body)
	if err != nil {
		return api.Location{}, err
	}
	if resp.status != http.StatusCreated {
		return api.Location{}, statusError(resp)
	}

	var out api.Location
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return api.Location{}, fmt.Errorf("%w: decode saved location: %w", common.ErrTransport, err)
	}
	return out, nil
}

// Query fetches the most recent rows for username. Limits outside
// 1..common.MaxHistoryLimit are clamped to the maximum.
func (s *HTTPStore) Query(ctx context.Context, username string, limit int) ([]api.Location, error) {
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("%w: username is required", common.ErrValidation)
	}
	if limit <= 0 || limit > common.MaxHistoryLimit {
		limit = common.MaxHistoryLimit
	}

	path := "/locations/" + url.PathEscape(username) + "?limit=" + strconv.Itoa(limit)
	resp, err := s.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, statusError(resp)
	}

	var out api.HistoryResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode history: %w", common.ErrTransport, err)
	}
	if out.Locations == nil {
		out.Locations = []api.Location{}
	}
	if len(out.Locations) > limit {
		out.Locations = out.Locations[len(out.Locations)-limit:]
	}
	return out.Locations, nil
}

func (s *HTTPStore) Exists(ctx context.Context, username string) (bool, error) {
	if strings.TrimSpace(username) == "" {
		return false, fmt.Errorf("%w: username is required", common.ErrValidation)
	}

	resp, err := s.do(ctx, http.MethodGet, "/users/check/"+url.PathEscape(username), nil)
	if err != nil {
		return false, err
	}
	if resp.status != http.StatusOK {
		return false, statusError(resp)
	}

	var out api.ExistsResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return false, fmt.Errorf("%w: decode exists: %w", common.ErrTransport, err)
	}
	return out.Exists, nil
}

// Archive asks the server to snapshot username's history to object storage.
// It returns common.ErrArchiveDisabled when the server has no bucket and
// common.ErrorNotFound when there is nothing to archive.
func (s *HTTPStore) Archive(ctx context.Context, username string) (api.ArchiveResponse, error) {
	if strings.TrimSpace(username) == "" {
		return api.ArchiveResponse{}, fmt.Errorf("%w: username is required", common.ErrValidation)
	}

	resp, err := s.do(ctx, http.MethodPost, "/locations/"+url.PathEscape(username)+"/archive", nil)
	if err != nil {
		return api.ArchiveResponse{}, err
	}
	if resp.status != http.StatusCreated {
		return api.ArchiveResponse{}, statusError(resp)
	}

	var out api.ArchiveResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return api.ArchiveResponse{}, fmt.Errorf("%w: decode archive: %w", common.ErrTransport, err)
	}
	return out, nil
}

// Ping checks that the server answers its health endpoint.
func (s *HTTPStore) Ping(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body []byte) (*response, error) {
	resp, err := s.breaker.Execute(func() (*response, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, rd)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set(common.RequestIDHeaderName, uuid.NewString())

		res, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		out := &response{status: res.StatusCode, body: data}
		if res.StatusCode >= http.StatusInternalServerError && res.StatusCode != http.StatusNotImplemented {
			return out, errServer
		}
		return out, nil
	})

	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, errServer):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		s.logger.Debug(ctx, "request rejected by breaker", "method", method, "path", path)
		return nil, fmt.Errorf("%w: %w", common.ErrTransport, err)
	default:
		s.logger.Warn(ctx, "history request failed", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("%w: %s %s: %w", common.ErrTransport, method, path, err)
	}
}

func statusError(r *response) error {
	var e api.ErrorResponse
	msg := strings.TrimSpace(string(r.body))
	if err := json.Unmarshal(r.body, &e); err == nil && e.Error != "" {
		msg = e.Error
	}

	switch r.status {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", common.ErrValidation, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", common.ErrorNotFound, msg)
	case http.StatusNotImplemented:
		return fmt.Errorf("%w: %s", common.ErrArchiveDisabled, msg)
	}
	return fmt.Errorf("%w: status %d: %s", common.ErrTransport, r.status, msg)
}
