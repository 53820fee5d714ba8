package geo

import (
	"math"

	"github.com/dhconnelly/rtreego"
)

// EarthRadiusMeters is the fixed spherical-earth radius used for all
// distance math in this service. Both the index build and the final result
// annotation must use the same formula and radius, otherwise the "nearest"
// ordering would disagree with the displayed distance.
const EarthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance in meters between two
// latitude/longitude pairs given in degrees.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// ClampLatitude clamps a latitude in degrees to [-90, 90].
func ClampLatitude(lat float64) float64 {
	if lat > 90 {
		return 90
	}
	if lat < -90 {
		return -90
	}
	return lat
}

// NormalizeLongitude wraps a longitude in degrees into [-180, 180),
// so e.g. 190 becomes -170.
func NormalizeLongitude(lng float64) float64 {
	lng = math.Mod(lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	return lng - 180
}

// UnitVector projects a latitude/longitude pair onto the unit sphere.
// Euclidean (chord) distance between unit vectors is monotonic in
// great-circle distance, so an R-tree built over these points ranks
// neighbors in exactly the haversine order.
func UnitVector(lat, lng float64) rtreego.Point {
	phi := radians(lat)
	lambda := radians(lng)
	return rtreego.Point{
		math.Cos(phi) * math.Cos(lambda),
		math.Cos(phi) * math.Sin(lambda),
		math.Sin(phi),
	}
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
