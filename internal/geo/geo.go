package geo

import (
	"math"

	"github.com/example/fieldserve/internal/dispatch/domain"
)

const earthRadiusKM = 6371.0

// Distance returns the great-circle distance between two points in
// kilometers. It is symmetric and deterministic, and rejects points outside
// the valid latitude/longitude ranges.
func Distance(a, b domain.GeoPoint) (float64, error) {
	if !a.Valid() || !b.Valid() {
		return 0, domain.ErrInvalidCoordinate
	}
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dlat := toRadians(b.Lat - a.Lat)
	dlng := toRadians(b.Lng - a.Lng)

	sinDlat := math.Sin(dlat / 2)
	sinDlng := math.Sin(dlng / 2)
	h := sinDlat*sinDlat + math.Cos(lat1)*math.Cos(lat2)*sinDlng*sinDlng
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c, nil
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
