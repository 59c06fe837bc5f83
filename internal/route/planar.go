package route

import (
	"encoding/json"
	"fmt"

	"github.com/twpayne/go-geom"

	"enroute_tracker/internal/geo"
)

// Vertex is one route point in the route's forced UTM zone, with the
// cumulative along-route distance from the route start.
type Vertex struct {
	Easting      float64
	Northing     float64
	CumulativeKm float64
}

// MarshalJSON encodes a vertex as [easting, northing, cumulativeKm].
func (v Vertex) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{v.Easting, v.Northing, v.CumulativeKm})
}

func (v *Vertex) UnmarshalJSON(data []byte) error {
	var triple []float64
	if err := json.Unmarshal(data, &triple); err != nil {
		return fmt.Errorf("route vertex must be [easting, northing, km]: %w", err)
	}
	if len(triple) != 3 {
		return fmt.Errorf("route vertex must be [easting, northing, km], got %d values", len(triple))
	}
	v.Easting, v.Northing, v.CumulativeKm = triple[0], triple[1], triple[2]
	return nil
}

// PlanarRoute is a route flattened into a single UTM zone. It is immutable
// once built and safe for concurrent use by any number of projections.
type PlanarRoute struct {
	Zone     int      `json:"zone"`
	South    bool     `json:"south,omitempty"`
	Vertices []Vertex `json:"path"`
}

// Empty reports whether the route carries no vertices.
func (r *PlanarRoute) Empty() bool {
	return r == nil || len(r.Vertices) == 0
}

// TotalKm is the along-route length of the whole route.
func (r *PlanarRoute) TotalKm() float64 {
	if r.Empty() {
		return 0
	}
	return r.Vertices[len(r.Vertices)-1].CumulativeKm
}

// Planarize projects every route point into the UTM zone of the route's
// bounding-box midpoint and accumulates ellipsoidal distance between
// consecutive points. An empty route yields an empty PlanarRoute in
// geo.DefaultZone.
func Planarize(points []geo.GeoPoint) (*PlanarRoute, error) {
	if len(points) == 0 {
		return &PlanarRoute{Zone: geo.DefaultZone, Vertices: []Vertex{}}, nil
	}
	for _, p := range points {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	mid := Midpoint(points)
	zone := geo.ZoneFor(mid)
	south := mid.Lat < 0

	vertices := make([]Vertex, 0, len(points))
	totalKm := 0.0
	prev := points[0]
	for _, p := range points {
		e, n, err := geo.ProjectUTM(p, zone, south)
		if err != nil {
			return nil, err
		}
		totalKm += geo.DistanceKm(prev, p)
		vertices = append(vertices, Vertex{Easting: e, Northing: n, CumulativeKm: totalKm})
		prev = p
	}
	return &PlanarRoute{Zone: zone, South: south, Vertices: vertices}, nil
}

// Midpoint is the centre of the points' bounding box: halfway between the
// minimum and maximum latitude and the minimum and maximum longitude.
func Midpoint(points []geo.GeoPoint) geo.GeoPoint {
	if len(points) == 0 {
		return geo.GeoPoint{}
	}
	b := ToLineString(points).Bounds()
	return geo.Pt((b.Min(1)+b.Max(1))/2, (b.Min(0)+b.Max(0))/2)
}

// ToLineString builds an XY line string with X as longitude and Y as latitude.
func ToLineString(points []geo.GeoPoint) *geom.LineString {
	flat := make([]float64, 0, 2*len(points))
	for _, p := range points {
		flat = append(flat, p.Lon, p.Lat)
	}
	return geom.NewLineStringFlat(geom.XY, flat)
}
