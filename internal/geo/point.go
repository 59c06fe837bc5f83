package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinate is matched by every InvalidCoordinateError via errors.Is.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// InvalidCoordinateError reports a latitude or longitude outside the range a
// calculation can accept.
type InvalidCoordinateError struct {
	Lat, Lon float64
	Reason   string
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinate (%g, %g): %s", e.Lat, e.Lon, e.Reason)
}

func (e *InvalidCoordinateError) Is(target error) bool {
	return target == ErrInvalidCoordinate
}

// GeoPoint is a WGS84 latitude/longitude pair in degrees.
// It is encoded in JSON as a two element array [lat, lon].
type GeoPoint struct {
	Lat float64 `bson:"lat"`
	Lon float64 `bson:"lon"`
}

// Pt is shorthand for GeoPoint{Lat: lat, Lon: lon}.
func Pt(lat, lon float64) GeoPoint {
	return GeoPoint{Lat: lat, Lon: lon}
}

// Validate checks that the point is finite and within the geographic range.
func (p GeoPoint) Validate() error {
	switch {
	case math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0):
		return &InvalidCoordinateError{Lat: p.Lat, Lon: p.Lon, Reason: "not a finite number"}
	case p.Lat < -90 || p.Lat > 90:
		return &InvalidCoordinateError{Lat: p.Lat, Lon: p.Lon, Reason: "latitude out of range [-90, 90]"}
	case p.Lon < -180 || p.Lon > 180:
		return &InvalidCoordinateError{Lat: p.Lat, Lon: p.Lon, Reason: "longitude out of range [-180, 180]"}
	}
	return nil
}

// IsZero reports whether p is (0, 0), which the display layer sends for
// "no prior position".
func (p GeoPoint) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("(%.5f, %.5f)", p.Lat, p.Lon)
}

func (p GeoPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Lon})
}

func (p *GeoPoint) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("geo point must be [lat, lon]: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("geo point must be [lat, lon], got %d values", len(pair))
	}
	p.Lat, p.Lon = pair[0], pair[1]
	return nil
}
