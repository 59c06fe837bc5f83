package geo

import (
	"errors"
	"math"

	"github.com/golang/geo/s2"
	"github.com/sirupsen/logrus"
)

// WGS84 ellipsoid.
const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
	wgs84B = wgs84A * (1 - wgs84F)

	// EarthRadiusKm is the mean radius used by the great-circle fallback.
	EarthRadiusKm = 6371.009

	vincentyIterations = 20
	vincentyTolerance  = 1e-12
)

var errNoConvergence = errors.New("vincenty: failed to converge")

// DistanceKm returns the ellipsoidal distance in kilometers between two points.
// Near-antipodal pairs, where Vincenty's iteration does not converge, fall back
// to the great-circle distance.
func DistanceKm(p1, p2 GeoPoint) float64 {
	d, err := vincentyKm(p1, p2)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"from": p1.String(),
			"to":   p2.String(),
		}).Warn("Vincenty failed to converge; using great circle distance")
		return GreatCircleKm(p1, p2)
	}
	return d
}

// GreatCircleKm is the spherical distance between two points in kilometers.
func GreatCircleKm(p1, p2 GeoPoint) float64 {
	a := s2.LatLngFromDegrees(p1.Lat, p1.Lon)
	b := s2.LatLngFromDegrees(p2.Lat, p2.Lon)
	return a.Distance(b).Radians() * EarthRadiusKm
}

// vincentyKm solves the inverse geodesic problem on the WGS84 ellipsoid.
func vincentyKm(p1, p2 GeoPoint) (float64, error) {
	if p1 == p2 {
		return 0, nil
	}
	rad := math.Pi / 180

	l := (p2.Lon - p1.Lon) * rad
	u1 := math.Atan((1 - wgs84F) * math.Tan(p1.Lat*rad))
	u2 := math.Atan((1 - wgs84F) * math.Tan(p2.Lat*rad))
	sinU1, cosU1 := math.Sin(u1), math.Cos(u1)
	sinU2, cosU2 := math.Sin(u2), math.Cos(u2)

	lambda := l
	var sinSigma, cosSigma, sigma, cos2Alpha, cos2SigmaM float64
	converged := false
	for i := 0; i < vincentyIterations; i++ {
		sinLambda, cosLambda := math.Sin(lambda), math.Cos(lambda)
		sinSigma = math.Sqrt(math.Pow(cosU2*sinLambda, 2) +
			math.Pow(cosU1*sinU2-sinU1*cosU2*cosLambda, 2))
		if sinSigma == 0 {
			return 0, nil
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)
		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cos2Alpha = 1 - sinAlpha*sinAlpha
		if cos2Alpha != 0 {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cos2Alpha
		} else {
			// equatorial line
			cos2SigmaM = 0
		}
		c := wgs84F / 16 * cos2Alpha * (4 + wgs84F*(4-3*cos2Alpha))
		prev := lambda
		lambda = l + (1-c)*wgs84F*sinAlpha*
			(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))
		if math.Abs(lambda-prev) < vincentyTolerance {
			converged = true
			break
		}
	}
	if !converged {
		return 0, errNoConvergence
	}

	u2sq := cos2Alpha * (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B)
	a := 1 + u2sq/16384*(4096+u2sq*(-768+u2sq*(320-175*u2sq)))
	b := u2sq / 1024 * (256 + u2sq*(-128+u2sq*(74-47*u2sq)))
	deltaSigma := b * sinSigma * (cos2SigmaM + b/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
		b/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))

	return wgs84B * a * (sigma - deltaSigma) / 1000, nil
}
