// Package geo holds the validated coordinate value type used on reports.
package geo

import (
	"fmt"

	"github.com/golang/geo/s2"

	"civicreport/internal/apperr"
)

// EarthRadiusMeters is the mean Earth radius used for distances.
const EarthRadiusMeters = 6371000.0

// Coordinate is a validated (latitude, longitude) pair in degrees.
// Immutable once constructed through New.
type Coordinate struct {
	lat float64
	lng float64
}

// New validates and builds a Coordinate. A component equal to exactly
// zero is rejected: clients send 0 when the device had no fix, so it is
// treated as an unset sentinel rather than a real position.
func New(lat, lng float64) (Coordinate, error) {
	verr := &apperr.ValidationError{}
	if lat < -90 || lat > 90 {
		verr.Add("latitude", fmt.Sprintf("must be within [-90, 90], got %v", lat))
	} else if lat == 0 {
		verr.Add("latitude", "zero latitude is treated as unset")
	}
	if lng < -180 || lng > 180 {
		verr.Add("longitude", fmt.Sprintf("must be within [-180, 180], got %v", lng))
	} else if lng == 0 {
		verr.Add("longitude", "zero longitude is treated as unset")
	}
	if !verr.Empty() {
		return Coordinate{}, verr
	}
	return Coordinate{lat: lat, lng: lng}, nil
}

// Lat returns the latitude in degrees.
func (c Coordinate) Lat() float64 { return c.lat }

// Lng returns the longitude in degrees.
func (c Coordinate) Lng() float64 { return c.lng }

// DistanceMeters returns the great-circle distance to other in meters.
func (c Coordinate) DistanceMeters(other Coordinate) float64 {
	a := s2.LatLngFromDegrees(c.lat, c.lng)
	b := s2.LatLngFromDegrees(other.lat, other.lng)
	return a.Distance(b).Radians() * EarthRadiusMeters
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%f,%f", c.lat, c.lng)
}
