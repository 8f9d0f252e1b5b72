package geo

import "math"

const earthRadiusM = 6371000.0

// HaversineMeters calculates the great-circle distance in meters between two
// points specified in decimal degrees.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	radLat1 := lat1 * math.Pi / 180
	radLat2 := lat2 * math.Pi / 180

	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(radLat1)*math.Cos(radLat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// Centroid returns the arithmetic mean of the given points. Planar averaging
// is fine at the ~100m scale clusters live at; it would drift for clusters
// spanning whole regions.
func Centroid(lats, longs []float64) (float64, float64) {
	if len(lats) == 0 {
		return 0, 0
	}
	var sumLat, sumLong float64
	for i := range lats {
		sumLat += lats[i]
		sumLong += longs[i]
	}
	n := float64(len(lats))
	return sumLat / n, sumLong / n
}

// ValidCoordinates reports whether lat/long are inside WGS84 bounds.
func ValidCoordinates(lat, long float64) bool {
	return lat >= -90 && lat <= 90 && long >= -180 && long <= 180
}

// InBounds reports whether the point lies inside the rectangle spanned by the
// two corners, regardless of corner order.
func InBounds(lat, long, lat1, lng1, lat2, lng2 float64) bool {
	minLat, maxLat := math.Min(lat1, lat2), math.Max(lat1, lat2)
	minLng, maxLng := math.Min(lng1, lng2), math.Max(lng1, lng2)
	return lat >= minLat && lat <= maxLat && long >= minLng && long <= maxLng
}
