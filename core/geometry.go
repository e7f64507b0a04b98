package core

import (
	"math"

	satellite "github.com/joshuaferrara/go-satellite"
)

// WGS-84 semi-axes, as used by satellite.ECIToLLA.
const (
	EarthEquatorialRadiusKm = 6378.137
	earthPolarRadiusKm      = 6356.7523142
)

// Vec3 is a position vector in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// IsFinite reports whether every component is a finite number.
func (v Vec3) IsFinite() bool {
	for _, c := range [...]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// SubSatellitePoint projects an ECI position onto the WGS-84 ellipsoid at
// Greenwich sidereal angle gmst (radians). Latitude and longitude are in
// degrees with longitude in [-180, 180); altitude is in kilometres.
func SubSatellitePoint(eci Vec3, gmst float64) (latDeg, lonDeg, altKm float64) {
	// ECIToLLA divides by cos(latitude), which is zero straight above a pole.
	if math.Hypot(eci.X, eci.Y) < 1e-9 {
		lon := -gmst * satellite.RAD2DEG
		return math.Copysign(90, eci.Z), NormalizeLongitude(lon), math.Abs(eci.Z) - earthPolarRadiusKm
	}
	alt, _, ll := satellite.ECIToLLA(satellite.Vector3{X: eci.X, Y: eci.Y, Z: eci.Z}, gmst)
	return ll.Latitude * satellite.RAD2DEG, NormalizeLongitude(ll.Longitude * satellite.RAD2DEG), alt
}

// NormalizeLongitude wraps a longitude in degrees into [-180, 180).
func NormalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
