package geo

import (
	"math"
	"testing"
)

func TestHaversineMeters(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{"same point", 52.2297, 21.0122, 52.2297, 21.0122, 0, 0.001},
		// One degree of latitude is about 111.2 km everywhere.
		{"one degree latitude", 52.0, 21.0, 53.0, 21.0, 111195, 100},
		{"warsaw to krakow", 52.2297, 21.0122, 50.0647, 19.9450, 252000, 2000},
		// ~90m north at Warsaw's latitude.
		{"ninety meters", 52.22970, 21.0122, 52.23051, 21.0122, 90, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := HaversineMeters(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			if math.Abs(got-tc.want) > tc.tolerance {
				t.Fatalf("got %.1f want %.1f (±%.1f)", got, tc.want, tc.tolerance)
			}
		})
	}
}

func TestHaversineMetersSymmetric(t *testing.T) {
	a := HaversineMeters(52.2297, 21.0122, 50.0647, 19.9450)
	b := HaversineMeters(50.0647, 19.9450, 52.2297, 21.0122)
	if math.Abs(a-b) > 1e-6 {
		t.Fatalf("asymmetric: %f vs %f", a, b)
	}
}

func TestCentroid(t *testing.T) {
	lat, long := Centroid([]float64{52.0, 52.2, 52.4}, []float64{21.0, 21.2, 21.1})
	if math.Abs(lat-52.2) > 1e-9 || math.Abs(long-21.1) > 1e-9 {
		t.Fatalf("got %f,%f", lat, long)
	}

	lat, long = Centroid(nil, nil)
	if lat != 0 || long != 0 {
		t.Fatalf("empty: got %f,%f", lat, long)
	}
}

func TestValidCoordinates(t *testing.T) {
	cases := []struct {
		lat, long float64
		want      bool
	}{
		{52.2297, 21.0122, true},
		{90, 180, true},
		{-90, -180, true},
		{90.1, 0, false},
		{-90.1, 0, false},
		{0, 180.1, false},
		{0, -180.1, false},
	}
	for _, tc := range cases {
		if got := ValidCoordinates(tc.lat, tc.long); got != tc.want {
			t.Errorf("ValidCoordinates(%f, %f): got %v want %v", tc.lat, tc.long, got, tc.want)
		}
	}
}

func TestInBoundsCornerOrderFree(t *testing.T) {
	if !InBounds(52.2, 21.0, 52.0, 20.5, 52.5, 21.5) {
		t.Fatal("point inside reported outside")
	}
	// Swapped corners describe the same rectangle.
	if !InBounds(52.2, 21.0, 52.5, 21.5, 52.0, 20.5) {
		t.Fatal("swapped corners reported outside")
	}
	if InBounds(53.0, 21.0, 52.0, 20.5, 52.5, 21.5) {
		t.Fatal("point outside reported inside")
	}
}
