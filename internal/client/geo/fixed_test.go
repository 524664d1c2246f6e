package geo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gpstracker/internal/clock"
)

func TestFixed_WatchEmitsOnInterval(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	f := NewFixed(56.95, 24.1, 5*time.Second, clk)

	var got []Sample
	id, err := f.WatchPosition(DefaultWatchOptions, func(s Sample) { got = append(got, s) }, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, start, got[0].CapturedAt)

	clk.Advance(12 * time.Second)
	require.Len(t, got, 3)
	assert.Equal(t, start.Add(10*time.Second), got[2].CapturedAt)
	assert.Equal(t, 56.95, got[2].Latitude)

	f.ClearWatch(id)
	clk.Advance(time.Minute)
	assert.Len(t, got, 3)
	assert.Equal(t, 0, clk.Pending())
}

func TestFixed_CurrentPositionAndPermission(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	f := NewFixed(0, 0, time.Second, clk)

	s, err := f.CurrentPosition(context.Background(), DefaultOnceOptions)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Latitude)

	perm, err := f.Permission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionGranted, perm)
}
