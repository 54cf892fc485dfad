package geo

import (
	"math"
	"testing"
	"time"
)

var bengaluru = Point{Lat: 12.9716, Lng: 77.5946}

func TestDistanceIsSymmetric(t *testing.T) {
	pairs := [][2]Point{
		{bengaluru, {Lat: 13.0827, Lng: 80.2707}},
		{{Lat: -33.8688, Lng: 151.2093}, {Lat: 51.5074, Lng: -0.1278}},
		{{Lat: 0, Lng: 179.9}, {Lat: 0, Lng: -179.9}},
		{{Lat: 89.9, Lng: 0}, {Lat: -89.9, Lng: 180}},
	}
	for _, p := range pairs {
		ab := Distance(p[0], p[1])
		ba := Distance(p[1], p[0])
		if math.Abs(ab-ba) > 1e-9 {
			t.Fatalf("distance not symmetric for %v: %v vs %v", p, ab, ba)
		}
	}
}

func TestDistanceOfIdenticalPointsIsZero(t *testing.T) {
	for _, p := range []Point{bengaluru, {}, {Lat: 90, Lng: 180}, {Lat: -45.5, Lng: -120.25}} {
		if d := Distance(p, p); d != 0 {
			t.Fatalf("expected 0 for %v, got %v", p, d)
		}
	}
}

func TestDistanceKnownValues(t *testing.T) {
	chennai := Point{Lat: 13.0827, Lng: 80.2707}
	if d := Distance(bengaluru, chennai); math.Abs(d-290.2) > 1.5 {
		t.Fatalf("bengaluru-chennai expected ~290km, got %v", d)
	}

	oneDegree := Distance(Point{Lat: 0, Lng: 0}, Point{Lat: 1, Lng: 0})
	if want := EarthRadiusKm * math.Pi / 180; math.Abs(oneDegree-want) > 1e-6 {
		t.Fatalf("one degree of latitude expected %v, got %v", want, oneDegree)
	}
}

func TestDistanceAntipodal(t *testing.T) {
	d := Distance(Point{Lat: 0, Lng: 0}, Point{Lat: 0, Lng: 180})
	if want := math.Pi * EarthRadiusKm; math.Abs(d-want) > 1e-6 {
		t.Fatalf("antipodal distance expected %v, got %v", want, d)
	}
	if math.IsNaN(Distance(Point{Lat: 90, Lng: 0}, Point{Lat: -90, Lng: 0})) {
		t.Fatal("pole to pole must not be NaN")
	}
}

func TestCircleContains(t *testing.T) {
	area := Circle{Center: bengaluru, RadiusKm: 30}
	if !area.Contains(bengaluru) {
		t.Fatal("a circle must contain its own center")
	}

	edge := Point{Lat: bengaluru.Lat + 0.1, Lng: bengaluru.Lng}
	exact := Circle{Center: bengaluru, RadiusKm: Distance(bengaluru, edge)}
	if !exact.Contains(edge) {
		t.Fatal("boundary point must be contained")
	}

	far := Point{Lat: 13.0827, Lng: 80.2707}
	if area.Contains(far) {
		t.Fatal("chennai is outside a 30km circle around bengaluru")
	}

	zero := Circle{Center: bengaluru}
	if !zero.Contains(bengaluru) {
		t.Fatal("zero radius still contains the center")
	}
}

func TestValidCoordinates(t *testing.T) {
	cases := []struct {
		lat, lng float64
		ok       bool
	}{
		{12.97, 77.59, true},
		{90, 180, true},
		{-90, -180, true},
		{90.0001, 0, false},
		{0, -180.5, false},
		{math.NaN(), 0, false},
	}
	for _, tc := range cases {
		if got := ValidCoordinates(tc.lat, tc.lng); got != tc.ok {
			t.Fatalf("ValidCoordinates(%v,%v)=%v want %v", tc.lat, tc.lng, got, tc.ok)
		}
	}
}

func TestEstimateArrival(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	got := EstimateArrival(start, 15, 30, 10*time.Minute)
	if want := start.Add(40 * time.Minute); !got.Equal(want) {
		t.Fatalf("expected %v got %v", want, got)
	}
	if got := EstimateArrival(start, 7.9, 30, 10*time.Minute); !got.Equal(start.Add(25 * time.Minute)) {
		t.Fatalf("partial minutes should truncate, got %v", got)
	}
	if got := EstimateArrival(start, 5, 0, 10*time.Minute); !got.Equal(start.Add(10 * time.Minute)) {
		t.Fatalf("zero speed should fall back to buffer only, got %v", got)
	}
}

func TestBoundsForEnclosesCircle(t *testing.T) {
	b := BoundsFor(bengaluru, 10)
	if b.WrapsLongitude {
		t.Fatal("bengaluru box should not wrap")
	}
	for _, bearing := range []Point{
		{Lat: b.MinLat, Lng: bengaluru.Lng},
		{Lat: b.MaxLat, Lng: bengaluru.Lng},
		{Lat: bengaluru.Lat, Lng: b.MinLng},
		{Lat: bengaluru.Lat, Lng: b.MaxLng},
	} {
		if d := Distance(bengaluru, bearing); d < 9.99 {
			t.Fatalf("box edge %v only %vkm away", bearing, d)
		}
	}

	if !BoundsFor(Point{Lat: 0, Lng: 179.95}, 50).WrapsLongitude {
		t.Fatal("box across the antimeridian must wrap")
	}
	if !BoundsFor(Point{Lat: 89.99, Lng: 0}, 50).WrapsLongitude {
		t.Fatal("box over a pole must wrap")
	}
}
