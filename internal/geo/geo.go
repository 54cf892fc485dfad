package geo

import (
	"math"
	"time"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// Point is a signed decimal-degree coordinate.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Valid reports whether the point lies in the usual latitude/longitude range.
func (p Point) Valid() bool {
	return ValidCoordinates(p.Lat, p.Lng)
}

// ValidCoordinates reports whether lat is in [-90, 90] and lng in [-180, 180].
func ValidCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Distance returns the great-circle distance between a and b in kilometres
// using the Haversine formula. Inputs are not range checked.
func Distance(a, b Point) float64 {
	if a == b {
		return 0
	}
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push h a hair past 1 for antipodal points
	h = math.Min(1, math.Max(0, h))
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Circle is a circular geofence.
type Circle struct {
	Center   Point
	RadiusKm float64
}

// Contains reports whether p lies inside the circle. The boundary is inclusive.
func (c Circle) Contains(p Point) bool {
	return Distance(c.Center, p) <= c.RadiusKm
}

// EstimateArrival projects an arrival time for a provider distanceKm away
// travelling at speedKmh, padded by buffer. Travel time is truncated to
// whole minutes.
func EstimateArrival(from time.Time, distanceKm, speedKmh float64, buffer time.Duration) time.Time {
	if speedKmh <= 0 || distanceKm < 0 {
		return from.Add(buffer)
	}
	minutes := int(distanceKm / speedKmh * 60)
	return from.Add(time.Duration(minutes)*time.Minute + buffer)
}

// Bounds is a latitude/longitude rectangle enclosing a circle. It is a coarse
// prefilter for SQL queries; callers still confirm with Distance.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
	// WrapsLongitude is set when the box crosses the antimeridian or a pole,
	// in which case the longitude limits should not be used.
	WrapsLongitude bool
}

// BoundsFor returns the enclosing rectangle of a circle of radiusKm around center.
func BoundsFor(center Point, radiusKm float64) Bounds {
	latDelta := radiusKm / EarthRadiusKm * 180 / math.Pi
	b := Bounds{
		MinLat: math.Max(-90, center.Lat-latDelta),
		MaxLat: math.Min(90, center.Lat+latDelta),
	}
	cosLat := math.Cos(toRadians(center.Lat))
	if cosLat < 1e-6 || b.MinLat == -90 || b.MaxLat == 90 {
		b.MinLng, b.MaxLng, b.WrapsLongitude = -180, 180, true
		return b
	}
	lngDelta := latDelta / cosLat
	b.MinLng = center.Lng - lngDelta
	b.MaxLng = center.Lng + lngDelta
	if b.MinLng < -180 || b.MaxLng > 180 {
		b.MinLng, b.MaxLng, b.WrapsLongitude = -180, 180, true
	}
	return b
}
