package geo

import "math"

// Transverse Mercator series constants for the WGS84 ellipsoid.
const (
	utmK0         = 0.9996
	utmE          = 0.00669438
	utmR          = 6378137.0
	falseEasting  = 500000.0
	falseNorthing = 10000000.0

	// DefaultZone is reported for routes with no vertices.
	DefaultZone = 10
)

var (
	utmE2  = utmE * utmE
	utmE3  = utmE2 * utmE
	utmEP2 = utmE / (1 - utmE)

	utmM1 = 1 - utmE/4 - 3*utmE2/64 - 5*utmE3/256
	utmM2 = 3*utmE/8 + 3*utmE2/32 + 45*utmE3/1024
	utmM3 = 15*utmE2/256 + 45*utmE3/1024
	utmM4 = 35 * utmE3 / 3072
)

// ZoneFor returns the natural UTM zone number containing the point,
// honouring the Norway and Svalbard exceptions.
func ZoneFor(p GeoPoint) int {
	lat, lon := p.Lat, p.Lon
	if lat >= 56 && lat < 64 && lon >= 3 && lon < 12 {
		return 32
	}
	if lat >= 72 && lat <= 84 && lon >= 0 {
		switch {
		case lon < 9:
			return 31
		case lon < 21:
			return 33
		case lon < 33:
			return 35
		case lon < 42:
			return 37
		}
	}
	if lon >= 180 {
		return 60
	}
	return int((lon+180)/6)%60 + 1
}

// ProjectUTM projects p into the given zone even when the point's natural
// zone differs. When south is set the southern false northing is applied,
// regardless of which hemisphere p itself lies in, so a whole route stays in
// one continuous coordinate frame.
func ProjectUTM(p GeoPoint, zone int, south bool) (easting, northing float64, err error) {
	if err := p.Validate(); err != nil {
		return 0, 0, err
	}
	if p.Lat < -80 || p.Lat > 84 {
		return 0, 0, &InvalidCoordinateError{Lat: p.Lat, Lon: p.Lon, Reason: "latitude outside UTM range [-80, 84]"}
	}
	if zone < 1 || zone > 60 {
		return 0, 0, &InvalidCoordinateError{Lat: p.Lat, Lon: p.Lon, Reason: "UTM zone out of range [1, 60]"}
	}

	latRad := p.Lat * math.Pi / 180
	latSin, latCos := math.Sin(latRad), math.Cos(latRad)
	latTan := latSin / latCos
	latTan2 := latTan * latTan
	latTan4 := latTan2 * latTan2

	lonRad := p.Lon * math.Pi / 180
	centralLonRad := float64((zone-1)*6-180+3) * math.Pi / 180

	n := utmR / math.Sqrt(1-utmE*latSin*latSin)
	c := utmEP2 * latCos * latCos

	a := latCos * wrapAngle(lonRad-centralLonRad)
	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	m := utmR * (utmM1*latRad -
		utmM2*math.Sin(2*latRad) +
		utmM3*math.Sin(4*latRad) -
		utmM4*math.Sin(6*latRad))

	easting = utmK0*n*(a+
		a3/6*(1-latTan2+c)+
		a5/120*(5-18*latTan2+latTan4+72*c-58*utmEP2)) + falseEasting

	northing = utmK0 * (m + n*latTan*(a2/2+
		a4/24*(5-latTan2+9*c+4*c*c)+
		a6/720*(61-58*latTan2+latTan4+600*c-330*utmEP2)))

	if south {
		northing += falseNorthing
	}
	return easting, northing, nil
}

// wrapAngle maps an angle in radians onto [-pi, pi).
func wrapAngle(x float64) float64 {
	r := math.Mod(x+math.Pi, 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	return r - math.Pi
}
