package route

import (
	"math"

	"github.com/sirupsen/logrus"
	"github.com/twpayne/go-geom"

	"enroute_tracker/internal/geo"
)

// DefaultMaxDeviationMeters is how far an observation may sit from the route
// and still be considered travelling it.
const DefaultMaxDeviationMeters = 2000.0

// Observation is a live fix, optionally with the fix that preceded it.
// The prior point disambiguates direction where the route retraces itself.
type Observation struct {
	Point geo.GeoPoint
	Prior *geo.GeoPoint
}

// DistanceResult is the outcome of projecting an observation onto a route.
type DistanceResult struct {
	OnRoute         bool
	Km              float64
	Segment         int
	DeviationMeters float64
}

// BacktrackToleranceKm is how far a fix may fall behind its prior along the
// route and still count as travelling forward. It absorbs GPS jitter of a
// stopped rider and is independent of the deviation tolerance.
const BacktrackToleranceKm = 0.05

// notOnRoute is returned when no route segment lies within the deviation
// tolerance, or when every nearby segment runs against the direction of travel.
func notOnRoute() DistanceResult {
	return DistanceResult{Segment: -1}
}

// Distance is the along-route distance in kilometers, or 0 when the
// observation is not on the route.
func (r DistanceResult) Distance() float64 {
	if !r.OnRoute {
		return 0
	}
	return r.Km
}

type candidate struct {
	segment int
	km      float64
	sqDist  float64
}

// Project locates obs along r. Segments farther than maxDeviationMeters are
// ignored. With a prior point, the chosen segment must be reachable moving
// forward along the route from a segment near the prior point.
func Project(obs Observation, r *PlanarRoute, maxDeviationMeters float64) (DistanceResult, error) {
	x, y, err := r.project(obs.Point)
	if err != nil {
		return notOnRoute(), err
	}
	var prior *planarPoint
	if obs.Prior != nil {
		px, py, err := r.project(*obs.Prior)
		if err != nil {
			return notOnRoute(), err
		}
		prior = &planarPoint{x: px, y: py}
	}
	if r.Empty() || len(r.Vertices) < 2 {
		return notOnRoute(), nil
	}

	current := r.candidates(x, y, maxDeviationMeters)
	if len(current) == 0 {
		return notOnRoute(), nil
	}
	if prior == nil {
		return current.nearest(), nil
	}

	priorCandidates := r.candidates(prior.x, prior.y, maxDeviationMeters)
	if len(priorCandidates) == 0 {
		logrus.WithField("prior", obs.Prior.String()).
			Debug("Prior position is off route; direction not disambiguated")
		return current.nearest(), nil
	}
	return forward(priorCandidates.passes(), current.passes()), nil
}

// InterpolateRouteDistance is the display-layer form of Project: kilometers
// along the route, 0 when the point is not on it.
func InterpolateRouteDistance(lat, lon float64, r *PlanarRoute, prior *geo.GeoPoint, maxDeviationMeters float64) (float64, error) {
	res, err := Project(Observation{Point: geo.Pt(lat, lon), Prior: prior}, r, maxDeviationMeters)
	if err != nil {
		return 0, err
	}
	return res.Distance(), nil
}

func (r *PlanarRoute) project(p geo.GeoPoint) (float64, float64, error) {
	zone := geo.DefaultZone
	south := false
	if r != nil {
		zone, south = r.Zone, r.South
	}
	return geo.ProjectUTM(p, zone, south)
}

type planarPoint struct {
	x, y float64
}

type candidates []candidate

// candidates returns every segment whose closest point to (x, y) lies within
// maxDev meters, with the along-route distance of that closest point.
func (r *PlanarRoute) candidates(x, y, maxDev float64) candidates {
	maxSq := maxDev * maxDev
	reach := geom.NewBounds(geom.XY).Set(x-maxDev, y-maxDev, x+maxDev, y+maxDev)
	seg := geom.NewBounds(geom.XY)

	var out candidates
	for i := 0; i+1 < len(r.Vertices); i++ {
		a, b := r.Vertices[i], r.Vertices[i+1]
		seg.Set(
			math.Min(a.Easting, b.Easting), math.Min(a.Northing, b.Northing),
			math.Max(a.Easting, b.Easting), math.Max(a.Northing, b.Northing),
		)
		if !reach.Overlaps(geom.XY, seg) {
			continue
		}
		t, sq := closestOnSegment(a, b, x, y)
		if sq > maxSq {
			continue
		}
		km := a.CumulativeKm + t*(b.CumulativeKm-a.CumulativeKm)
		out = append(out, candidate{
			segment: i,
			km:      math.Max(a.CumulativeKm, math.Min(b.CumulativeKm, km)),
			sqDist:  sq,
		})
	}
	return out
}

// closestOnSegment drops a perpendicular from (x, y) onto the line through a
// and b and clamps its foot to the segment. It returns the foot's fractional
// position along the segment and its squared distance from (x, y).
func closestOnSegment(a, b Vertex, x, y float64) (t, sqDist float64) {
	dx := b.Easting - a.Easting
	dy := b.Northing - a.Northing
	lenSq := dx*dx + dy*dy
	if lenSq > 0 {
		t = ((x-a.Easting)*dx + (y-a.Northing)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}
	cx := a.Easting + t*dx
	cy := a.Northing + t*dy
	return t, (x-cx)*(x-cx) + (y-cy)*(y-cy)
}

func (cs candidates) nearest() DistanceResult {
	best := cs[0]
	for _, c := range cs[1:] {
		if c.sqDist < best.sqDist {
			best = c
		}
	}
	return best.result()
}

// passes collapses each run of consecutive candidate segments, one pass of the
// route through the neighbourhood, into its closest candidate.
func (cs candidates) passes() candidates {
	var out candidates
	for i, c := range cs {
		if i > 0 && c.segment == cs[i-1].segment+1 {
			if last := &out[len(out)-1]; c.sqDist < last.sqDist {
				*last = c
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

// forward pairs each prior pass with each current pass and keeps the pair
// with the least forward movement along the route. A pair that falls back by
// no more than BacktrackToleranceKm is used only when no pair moves forward.
// If no pair qualifies the observation is travelling a stretch of route in a
// direction the route never takes.
func forward(prior, current candidates) DistanceResult {
	var (
		best         candidate
		bestMove     float64
		bestBackward bool
		bestFound    bool
	)
	for _, c := range current {
		for _, p := range prior {
			move := c.km - p.km
			if move < -BacktrackToleranceKm {
				continue
			}
			backward := move < 0
			move = math.Abs(move)
			switch {
			case !bestFound,
				bestBackward && !backward,
				backward == bestBackward && move < bestMove,
				backward == bestBackward && move == bestMove && c.sqDist < best.sqDist:
				best, bestMove, bestBackward, bestFound = c, move, backward, true
			}
		}
	}
	if !bestFound {
		return notOnRoute()
	}
	return best.result()
}

func (c candidate) result() DistanceResult {
	return DistanceResult{
		OnRoute:         true,
		Km:              c.km,
		Segment:         c.segment,
		DeviationMeters: math.Sqrt(c.sqDist),
	}
}
