package tracking

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gpstracker/internal/api"
	"github.com/dmitrijs2005/gpstracker/internal/client/geo"
	"github.com/dmitrijs2005/gpstracker/internal/client/history"
	"github.com/dmitrijs2005/gpstracker/internal/client/identity"
	"github.com/dmitrijs2005/gpstracker/internal/clock"
	"github.com/dmitrijs2005/gpstracker/internal/common"
	"github.com/dmitrijs2005/gpstracker/internal/logging"
	"github.com/dmitrijs2005/gpstracker/internal/server/config"
	"github.com/dmitrijs2005/gpstracker/internal/server/httpserver"
	"github.com/dmitrijs2005/gpstracker/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gpstracker/internal/server/services"
)

func newHistoryServer(t *testing.T) *history.HTTPStore {
	t.Helper()
	log := logging.Nop()
	svc := services.NewLocationService(repomanager.NewMemoryRepositoryManager(), nil, &config.Config{HistoryLimit: 50}, log)
	router := httpserver.NewRouter(httpserver.RouterConfig{APIPrefix: "/api"}, httpserver.NewHandler(svc, log), log)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return history.NewHTTPStore(srv.URL+"/api", history.DefaultOptions(), nil)
}

func TestEndToEnd_DuplicateTicksAreSeparateRows(t *testing.T) {
	store := newHistoryServer(t)
	ids := identity.NewHolder(nil)
	_, err := ids.Set(context.Background(), "alice")
	require.NoError(t, err)

	p := newPlatform()
	clk := clock.NewFake(t0)
	s := NewSession(Deps{
		Source:   geo.NewSource(p, nil),
		Store:    store,
		Identity: ids,
		Clock:    clk,
	}, DefaultOptions())
	defer s.Stop()

	require.NoError(t, s.Start())
	p.emit(sample(0, 0, t0), nil)
	clk.Advance(DefaultSaveInterval)
	s.Wait()
	clk.Advance(DefaultSaveInterval)
	s.Wait()

	require.Equal(t, 2, s.SaveStats().Succeeded, "zero coordinates are valid")

	rows, err := store.Query(context.Background(), "alice", 50)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.NotEqual(t, rows[0].ID, rows[1].ID)
	assert.Equal(t, rows[0].Timestamp, rows[1].Timestamp)
}

func TestEndToEnd_QueryBoundedAndOrdered(t *testing.T) {
	store := newHistoryServer(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		lat := float64(i)
		ts := t0.Add(time.Duration(60-i) * time.Minute)
		_, err := store.Append(ctx, api.LocationRequest{Username: "bob", Latitude: &lat, Longitude: &lat, Timestamp: &ts})
		require.NoError(t, err)
	}

	rows, err := store.Query(ctx, "bob", 50)
	require.NoError(t, err)
	require.Len(t, rows, 50)
	for i := 1; i < len(rows); i++ {
		assert.False(t, rows[i].Timestamp.Before(rows[i-1].Timestamp))
	}

	empty, err := store.Query(ctx, "nobody", 50)
	require.NoError(t, err)
	assert.Empty(t, empty)

	one, two := 1.0, 2.0
	_, err = store.Append(ctx, api.LocationRequest{Username: "", Latitude: &one, Longitude: &two})
	assert.ErrorIs(t, err, common.ErrValidation)

	ok, err := store.Exists(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok)
}
