package geo_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/fieldserve/internal/dispatch/domain"
	"github.com/example/fieldserve/internal/geo"
)

func TestDistanceSymmetric(t *testing.T) {
	a := domain.GeoPoint{Lat: 28.6139, Lng: 77.2090}
	b := domain.GeoPoint{Lat: 28.7041, Lng: 77.1025}

	ab, err := geo.Distance(a, b)
	require.NoError(t, err)
	ba, err := geo.Distance(b, a)
	require.NoError(t, err)
	require.Equal(t, ab, ba)
	require.Greater(t, ab, 0.0)
}

func TestDistanceZeroForIdenticalPoints(t *testing.T) {
	p := domain.GeoPoint{Lat: 51.5074, Lng: -0.1278}
	d, err := geo.Distance(p, p)
	require.NoError(t, err)
	require.InDelta(t, 0.0, d, 1e-9)
}

func TestDistanceKnownPair(t *testing.T) {
	// New Delhi city centre to Gurugram, roughly 26 km.
	delhi := domain.GeoPoint{Lat: 28.6139, Lng: 77.2090}
	gurugram := domain.GeoPoint{Lat: 28.4595, Lng: 77.0266}
	d, err := geo.Distance(delhi, gurugram)
	require.NoError(t, err)
	require.InDelta(t, 25.0, d, 2.0)
}

func TestDistanceRejectsOutOfRangeCoordinates(t *testing.T) {
	good := domain.GeoPoint{Lat: 10, Lng: 10}
	for _, bad := range []domain.GeoPoint{
		{Lat: 91, Lng: 0},
		{Lat: -91, Lng: 0},
		{Lat: 0, Lng: 181},
		{Lat: 0, Lng: -181},
	} {
		_, err := geo.Distance(good, bad)
		require.ErrorIs(t, err, domain.ErrInvalidCoordinate)
		_, err = geo.Distance(bad, good)
		require.ErrorIs(t, err, domain.ErrInvalidCoordinate)
	}
}

func TestEstimatorFloor(t *testing.T) {
	est := geo.DefaultEstimator()
	require.Equal(t, 5, est.Minutes(0))
	require.Equal(t, 5, est.Minutes(0.05))
	require.Equal(t, 5, est.Minutes(2.4))
}

func TestEstimatorMonotonic(t *testing.T) {
	est := geo.DefaultEstimator()
	prev := 0
	for km := 0.0; km < 120; km += 0.5 {
		m := est.Minutes(km)
		require.GreaterOrEqual(t, m, prev)
		require.GreaterOrEqual(t, m, 5)
		prev = m
	}
	// 30 km at 30 km/h is an hour.
	require.Equal(t, 60, est.Minutes(30))
}
