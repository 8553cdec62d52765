package geo

import "math"

// Estimator converts a distance into a user-facing travel estimate assuming a
// fixed average speed. Estimates never drop below FloorMinutes.
type Estimator struct {
	SpeedKMH     float64
	FloorMinutes int
}

// DefaultEstimator assumes city traffic at 30 km/h with a 5 minute floor.
func DefaultEstimator() Estimator {
	return Estimator{SpeedKMH: 30, FloorMinutes: 5}
}

// Minutes returns the estimated travel time for distanceKM, monotonically
// non-decreasing in distance.
func (e Estimator) Minutes(distanceKM float64) int {
	speed := e.SpeedKMH
	if speed <= 0 {
		speed = 30
	}
	floor := e.FloorMinutes
	if floor <= 0 {
		floor = 5
	}
	minutes := int(math.Floor(distanceKM / speed * 60))
	if minutes < floor {
		return floor
	}
	return minutes
}
