package geo

import "math"

// Earth radius in km used by the Haversine formula.
const earthRadiusKm = 6371

// DistanceKm returns the great-circle distance in kilometers between two
// points given in decimal degrees. Inputs outside valid latitude/longitude
// ranges are a caller contract and are not validated.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
