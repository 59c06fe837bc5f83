package route

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/twpayne/go-geom"
	gjson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"

	"enroute_tracker/internal/geo"
)

// ErrNotLineString is returned when a geometry is not a single line string.
var ErrNotLineString = errors.New("route geometry must be a LineString")

// ReadPoints decodes a route points file: a JSON array of [lat, lon] pairs
// ordered along the route.
func ReadPoints(r io.Reader) ([]geo.GeoPoint, error) {
	var points []geo.GeoPoint
	if err := json.NewDecoder(r).Decode(&points); err != nil {
		return nil, fmt.Errorf("decode route points: %w", err)
	}
	for i, p := range points {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("route point %d: %w", i, err)
		}
	}
	return points, nil
}

// ReadPlanar decodes a planarized route file {"zone": n, "path": [[e, n, km], ...]}.
func ReadPlanar(r io.Reader) (*PlanarRoute, error) {
	var pr PlanarRoute
	if err := json.NewDecoder(r).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode planar route: %w", err)
	}
	if pr.Zone < 1 || pr.Zone > 60 {
		return nil, fmt.Errorf("decode planar route: zone %d out of range", pr.Zone)
	}
	if pr.Vertices == nil {
		pr.Vertices = []Vertex{}
	}
	return &pr, nil
}

// WritePlanar encodes a planarized route file.
func WritePlanar(w io.Writer, pr *PlanarRoute) error {
	if err := json.NewEncoder(w).Encode(pr); err != nil {
		return fmt.Errorf("encode planar route: %w", err)
	}
	return nil
}

// PointsFromGeoJSON accepts a GeoJSON LineString geometry, or a Feature
// wrapping one, with [lon, lat] positions.
func PointsFromGeoJSON(data []byte) ([]geo.GeoPoint, error) {
	var g geom.T
	if err := gjson.Unmarshal(data, &g); err != nil {
		var f gjson.Feature
		if ferr := json.Unmarshal(data, &f); ferr != nil || f.Geometry == nil {
			return nil, fmt.Errorf("decode geojson: %w", err)
		}
		g = f.Geometry
	}
	return pointsFromGeom(g)
}

// ToGeoJSON encodes route points as a GeoJSON LineString.
func ToGeoJSON(points []geo.GeoPoint) ([]byte, error) {
	return gjson.Marshal(ToLineString(points))
}

// EncodeWKB encodes route points as a little-endian WKB LineString.
func EncodeWKB(points []geo.GeoPoint) ([]byte, error) {
	if len(points) == 0 {
		return nil, nil
	}
	return wkb.Marshal(ToLineString(points), binary.LittleEndian)
}

// DecodeWKB reverses EncodeWKB.
func DecodeWKB(data []byte) ([]geo.GeoPoint, error) {
	if len(data) == 0 {
		return []geo.GeoPoint{}, nil
	}
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode wkb: %w", err)
	}
	return pointsFromGeom(g)
}

func pointsFromGeom(g geom.T) ([]geo.GeoPoint, error) {
	ls, ok := g.(*geom.LineString)
	if !ok {
		return nil, fmt.Errorf("%w, got %T", ErrNotLineString, g)
	}
	coords := ls.Coords()
	points := make([]geo.GeoPoint, 0, len(coords))
	for i, c := range coords {
		p := geo.Pt(c.Y(), c.X())
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("route point %d: %w", i, err)
		}
		points = append(points, p)
	}
	return points, nil
}
